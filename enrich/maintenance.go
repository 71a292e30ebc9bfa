package enrich

import (
	"context"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/trailofbits/it-depends/cache"
	"github.com/trailofbits/it-depends/dependencies"
	"github.com/trailofbits/it-depends/log"
	"github.com/trailofbits/it-depends/resolver"
)

const defaultGitHubAPIBase = "https://api.github.com"

// RepositoryURLResolver is implemented by an ecosystem resolver that can look
// up a source-code repository URL for one of its own packages (only
// ecosystem/cargo does, grounded on CargoResolver.get_repository_url's
// crates.io "repository" field lookup). MaintenanceEnricher type-asserts
// resolver.ByName(pkg.Source) against this interface exactly where the
// Python original used hasattr(pkg.resolver, "get_repository_url").
type RepositoryURLResolver interface {
	RepositoryURL(ctx context.Context, pkg dependencies.Package) (string, bool)
}

var githubURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`github\.com[:/]([^/]+)/([^/.]+)(?:\.git)?`),
	regexp.MustCompile(`github\.com/([^/]+)/([^/]+?)(?:\.git)?$`),
}

// extractGitHubRepo pulls (owner, repo) out of a GitHub URL in any of the
// common HTTPS/SSH/.git-suffixed forms, ported from
// maintenance.py's extract_github_repo.
func extractGitHubRepo(url string) (owner, repo string, ok bool) {
	if url == "" {
		return "", "", false
	}
	for _, pattern := range githubURLPatterns {
		m := pattern.FindStringSubmatch(url)
		if m != nil {
			return m[1], m[2], true
		}
	}
	return "", "", false
}

// MaintenanceEnricher checks each package's upstream GitHub repository for
// how recently it was pushed to, ported from maintenance.py's
// check_maintenance_status/GitHubClient.
type MaintenanceEnricher struct {
	httpClient         *http.Client
	apiBase            string
	token              string
	StaleThresholdDays int
	MaxWorkers         int
}

// NewMaintenanceEnricher builds a GitHub-backed enricher. token may be empty
// (unauthenticated requests are rate-limited far more aggressively by
// GitHub, matching GitHubClient's own optional bearer token).
func NewMaintenanceEnricher(token string) *MaintenanceEnricher {
	return NewMaintenanceEnricherWithBaseURL(defaultGitHubAPIBase, token)
}

// NewMaintenanceEnricherWithBaseURL builds a GitHub-backed enricher that
// queries a custom API base instead of the live GitHub API (for tests).
func NewMaintenanceEnricherWithBaseURL(apiBase, token string) *MaintenanceEnricher {
	return &MaintenanceEnricher{
		httpClient:         &http.Client{Timeout: 10 * time.Second},
		apiBase:            apiBase,
		token:              token,
		StaleThresholdDays: 365,
		MaxWorkers:         DefaultMaxWorkers(),
	}
}

func (e *MaintenanceEnricher) Name() string { return "maintenance" }

// Enrich checks every package currently in c for a resolvable GitHub
// repository and attaches the MaintenanceInfo it finds (or the reason it
// couldn't), mirroring check_maintenance_status's per-package dispatch and
// its refusal to let one package's failure abort the whole pass.
func (e *MaintenanceEnricher) Enrich(ctx context.Context, c cache.PackageCache) error {
	pkgs := c.Packages()
	g, gctx := errgroup.WithContext(ctx)
	if e.MaxWorkers > 0 {
		g.SetLimit(e.MaxWorkers)
	}
	for _, pkg := range pkgs {
		pkg := pkg
		g.Go(func() error {
			base := dependencies.PackageOf(pkg)
			info := e.check(gctx, base)
			c.Add(rewrap(pkg, base.WithMaintenance(info)))
			return nil
		})
	}
	return g.Wait()
}

func (e *MaintenanceEnricher) check(ctx context.Context, pkg dependencies.Package) dependencies.MaintenanceInfo {
	repoURL, ok := e.repositoryURL(ctx, pkg)
	if !ok {
		return dependencies.MaintenanceInfo{Error: "No GitHub repository URL found"}
	}

	owner, repo, ok := extractGitHubRepo(repoURL)
	if !ok {
		return dependencies.MaintenanceInfo{RepositoryURL: repoURL, Error: "Repository not hosted on GitHub"}
	}

	pushedAt, err := e.fetchPushedAt(ctx, owner, repo)
	if err != nil {
		log.Debugf("enrich: maintenance: %s/%s: %v", owner, repo, err)
		return dependencies.MaintenanceInfo{RepositoryURL: repoURL, Error: "Failed to fetch repository metadata"}
	}
	if pushedAt == "" {
		return dependencies.MaintenanceInfo{RepositoryURL: repoURL, Error: "No commit date found"}
	}

	lastCommit, err := time.Parse(time.RFC3339, pushedAt)
	if err != nil {
		log.Debugf("enrich: maintenance: failed to parse date %q for %s/%s: %v", pushedAt, owner, repo, err)
		return dependencies.MaintenanceInfo{RepositoryURL: repoURL, Error: "Failed to parse commit date"}
	}
	daysSince := int(time.Since(lastCommit).Hours() / 24)

	return dependencies.MaintenanceInfo{
		RepositoryURL:   repoURL,
		LastCommitDate:  pushedAt,
		IsStale:         daysSince > e.StaleThresholdDays,
		DaysSinceUpdate: daysSince,
	}
}

// repositoryURL asks pkg's own resolver for a repository URL if it knows how
// (only cargo does), matching the hasattr(pkg.resolver, "get_repository_url")
// check in check_maintenance_status.
func (e *MaintenanceEnricher) repositoryURL(ctx context.Context, pkg dependencies.Package) (string, bool) {
	r, ok := resolver.ByName(pkg.Source)
	if !ok {
		return "", false
	}
	provider, ok := r.(RepositoryURLResolver)
	if !ok {
		return "", false
	}
	return provider.RepositoryURL(ctx, pkg)
}

func (e *MaintenanceEnricher) fetchPushedAt(ctx context.Context, owner, repo string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.apiBase+"/repos/"+owner+"/"+repo, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if e.token != "" {
		req.Header.Set("Authorization", "token "+e.token)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if remaining, err := strconv.Atoi(resp.Header.Get("X-RateLimit-Remaining")); err == nil && remaining < 10 {
		log.Warnf("enrich: maintenance: GitHub API rate limit low: %d requests remaining", remaining)
	}
	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode == http.StatusForbidden {
		log.Warnf("enrich: maintenance: GitHub API rate limit exceeded")
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	pushedAt := gjson.GetBytes(body, "pushed_at").String()
	if pushedAt == "" {
		pushedAt = gjson.GetBytes(body, "created_at").String()
	}
	return pushedAt, nil
}
