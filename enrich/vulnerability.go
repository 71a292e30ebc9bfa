package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/trailofbits/it-depends/cache"
	"github.com/trailofbits/it-depends/dependencies"
	"github.com/trailofbits/it-depends/log"
)

// defaultOSVQueryURL is the OSV project's batch-free single-package query
// endpoint, matching OSVProject.QUERY_URL.
const defaultOSVQueryURL = "https://api.osv.dev/v1/query"

// VulnerabilityEnricher queries the OSV project for every package in a cache,
// ported from audit.py's vulnerabilities()/OSVProject.
type VulnerabilityEnricher struct {
	httpClient *http.Client
	queryURL   string
	MaxWorkers int
}

// NewVulnerabilityEnricher builds an OSV-backed enricher with a sensible
// request timeout and worker count.
func NewVulnerabilityEnricher() *VulnerabilityEnricher {
	return NewVulnerabilityEnricherWithURL(defaultOSVQueryURL)
}

// NewVulnerabilityEnricherWithURL builds an OSV-backed enricher that queries
// a custom endpoint instead of the live OSV API (for tests).
func NewVulnerabilityEnricherWithURL(queryURL string) *VulnerabilityEnricher {
	return &VulnerabilityEnricher{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		queryURL:   queryURL,
		MaxWorkers: DefaultMaxWorkers(),
	}
}

func (e *VulnerabilityEnricher) Name() string { return "osv" }

// Enrich queries OSV for every package currently in c and attaches whatever
// vulnerabilities it finds, mirroring vulnerabilities()'s
// ThreadPoolExecutor/as_completed dispatch: a failed per-package query is
// logged and skipped rather than aborting the whole enrichment pass.
func (e *VulnerabilityEnricher) Enrich(ctx context.Context, c cache.PackageCache) error {
	pkgs := c.Packages()
	g, gctx := errgroup.WithContext(ctx)
	if e.MaxWorkers > 0 {
		g.SetLimit(e.MaxWorkers)
	}
	for _, pkg := range pkgs {
		pkg := pkg
		g.Go(func() error {
			base := dependencies.PackageOf(pkg)
			vulns, err := e.query(gctx, base)
			if err != nil {
				log.Warnf("enrich: osv: %s: %v", base.FullName(), err)
				return nil
			}
			if len(vulns) == 0 {
				return nil
			}
			c.Add(rewrap(pkg, base.WithVulnerabilities(vulns...)))
			return nil
		})
	}
	return g.Wait()
}

func (e *VulnerabilityEnricher) query(ctx context.Context, pkg dependencies.Package) ([]dependencies.Vulnerability, error) {
	body, err := json.Marshal(struct {
		Version string `json:"version"`
		Package struct {
			Name string `json:"name"`
		} `json:"package"`
	}{
		Version: pkg.Version.String(),
		Package: struct {
			Name string `json:"name"`
		}{Name: pkg.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("enrich: osv: encoding query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.queryURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("osv: status %s", resp.Status)
	}

	var out []dependencies.Vulnerability
	for _, v := range gjson.GetBytes(respBody, "vulns").Array() {
		summary := v.Get("summary").String()
		if summary == "" {
			summary = v.Get("details").String()
		}
		if summary == "" {
			summary = "N/A"
		}
		var aliases []string
		for _, a := range v.Get("aliases").Array() {
			aliases = append(aliases, a.String())
		}
		out = append(out, dependencies.Vulnerability{
			ID:      v.Get("id").String(),
			Aliases: aliases,
			Summary: summary,
		})
	}
	return out, nil
}
