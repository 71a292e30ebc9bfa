package enrich

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/trailofbits/it-depends/cache"
	"github.com/trailofbits/it-depends/dependencies"
	"github.com/trailofbits/it-depends/repository"
	"github.com/trailofbits/it-depends/resolver"
)

const maintenanceTestSource = "enrichtestmaint"

// fakeRepoResolver is a minimal DependencyResolver that also implements
// RepositoryURLResolver, standing in for ecosystem/cargo in these tests.
type fakeRepoResolver struct {
	repoURL string
}

func (f *fakeRepoResolver) Name() string        { return maintenanceTestSource }
func (f *fakeRepoResolver) Description() string { return "test fixture" }
func (f *fakeRepoResolver) Resolve(ctx context.Context, dep dependencies.Dependency) ([]dependencies.Package, error) {
	return nil, nil
}
func (f *fakeRepoResolver) CanResolveFromSource(repo repository.SourceRepository) bool { return false }
func (f *fakeRepoResolver) ResolveFromSource(ctx context.Context, repo repository.SourceRepository, c resolver.PackageMatcher) (dependencies.SourcePackage, bool, error) {
	return dependencies.SourcePackage{}, false, nil
}
func (f *fakeRepoResolver) CanUpdateDependencies(pkg dependencies.Package) bool { return false }
func (f *fakeRepoResolver) UpdateDependencies(ctx context.Context, pkg dependencies.Package) (dependencies.Package, error) {
	return pkg, nil
}
func (f *fakeRepoResolver) IsAvailable() resolver.ResolverAvailability { return resolver.Available() }
func (f *fakeRepoResolver) DockerSetup() *resolver.DockerSetup         { return nil }

func (f *fakeRepoResolver) RepositoryURL(ctx context.Context, pkg dependencies.Package) (string, bool) {
	if f.repoURL == "" {
		return "", false
	}
	return f.repoURL, true
}

func TestExtractGitHubRepo(t *testing.T) {
	cases := []struct {
		url       string
		wantOwner string
		wantRepo  string
		wantOK    bool
	}{
		{"https://github.com/trailofbits/it-depends", "trailofbits", "it-depends", true},
		{"https://github.com/trailofbits/it-depends.git", "trailofbits", "it-depends", true},
		{"git@github.com:trailofbits/it-depends.git", "trailofbits", "it-depends", true},
		{"https://gitlab.com/trailofbits/it-depends", "", "", false},
		{"", "", "", false},
	}
	for _, c := range cases {
		owner, repo, ok := extractGitHubRepo(c.url)
		if ok != c.wantOK || owner != c.wantOwner || repo != c.wantRepo {
			t.Errorf("extractGitHubRepo(%q) = (%q, %q, %v), want (%q, %q, %v)",
				c.url, owner, repo, ok, c.wantOwner, c.wantRepo, c.wantOK)
		}
	}
}

func TestMaintenanceEnricherAttachesFreshRepo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"pushed_at":"2026-07-01T00:00:00Z","created_at":"2010-01-01T00:00:00Z"}`))
	}))
	defer srv.Close()

	resolver.Register(&fakeRepoResolver{repoURL: "https://github.com/someorg/somerepo"})

	c := cache.New()
	pkg := dependencies.NewPackage(maintenanceTestSource, "tracked-pkg", dependencies.MustParseVersion("1.0.0"))
	c.Add(pkg)

	e := NewMaintenanceEnricherWithBaseURL(srv.URL, "")
	if err := e.Enrich(context.Background(), c); err != nil {
		t.Fatalf("Enrich error: %v", err)
	}

	matches := c.Match(dependencies.NewDependency(maintenanceTestSource, "tracked-pkg", dependencies.SimpleSpec{}))
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	info := dependencies.PackageOf(matches[0]).Maintenance()
	if info == nil {
		t.Fatalf("expected maintenance info to be attached")
	}
	if info.IsStale {
		t.Errorf("expected a recently pushed repo to not be stale")
	}
	if info.RepositoryURL != "https://github.com/someorg/somerepo" {
		t.Errorf("unexpected repository URL: %s", info.RepositoryURL)
	}
}

func TestMaintenanceEnricherNoRepositoryURL(t *testing.T) {
	const noRepoSource = "enrichtestmaintnorepo"
	resolver.Register(&fakeRepoResolver{repoURL: ""})
	// fakeRepoResolver above is registered under maintenanceTestSource; build
	// a package under a source with no registered resolver at all to exercise
	// the "hasattr" failure path.
	c := cache.New()
	pkg := dependencies.NewPackage(noRepoSource, "untracked-pkg", dependencies.MustParseVersion("1.0.0"))
	c.Add(pkg)

	e := NewMaintenanceEnricherWithBaseURL("http://unused.invalid", "")
	if err := e.Enrich(context.Background(), c); err != nil {
		t.Fatalf("Enrich error: %v", err)
	}

	matches := c.Match(dependencies.NewDependency(noRepoSource, "untracked-pkg", dependencies.SimpleSpec{}))
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	info := dependencies.PackageOf(matches[0]).Maintenance()
	if info == nil {
		t.Fatalf("expected maintenance info to be attached even on failure")
	}
	if info.Error == "" {
		t.Errorf("expected an error reason when no repository URL can be found")
	}
}
