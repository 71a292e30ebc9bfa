package enrich

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/trailofbits/it-depends/cache"
	"github.com/trailofbits/it-depends/dependencies"
)

const vulnTestSource = "enrichtestvuln"

func TestVulnerabilityEnricherAttachesFindings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"vulns":[{"id":"GHSA-xxxx","summary":"bad thing","aliases":["CVE-2024-0001"]}]}`))
	}))
	defer srv.Close()

	c := cache.New()
	pkg := dependencies.NewPackage(vulnTestSource, "vulnerable-pkg", dependencies.MustParseVersion("1.0.0"))
	c.Add(pkg)

	e := NewVulnerabilityEnricherWithURL(srv.URL)
	if err := e.Enrich(context.Background(), c); err != nil {
		t.Fatalf("Enrich error: %v", err)
	}

	matches := c.Match(dependencies.NewDependency(vulnTestSource, "vulnerable-pkg", dependencies.SimpleSpec{}))
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	got := dependencies.PackageOf(matches[0])
	if len(got.Vulnerabilities()) != 1 {
		t.Fatalf("expected 1 vulnerability attached, got %d", len(got.Vulnerabilities()))
	}
	if got.Vulnerabilities()[0].ID != "GHSA-xxxx" {
		t.Fatalf("unexpected vulnerability ID: %s", got.Vulnerabilities()[0].ID)
	}
}

func TestVulnerabilityEnricherFallsBackOnMissingSummaryAndAliases(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"vulns":[{"id":"123"}]}`))
	}))
	defer srv.Close()

	c := cache.New()
	pkg := dependencies.NewPackage(vulnTestSource, "sparse-pkg", dependencies.MustParseVersion("1.0.0"))
	c.Add(pkg)

	e := NewVulnerabilityEnricherWithURL(srv.URL)
	if err := e.Enrich(context.Background(), c); err != nil {
		t.Fatalf("Enrich error: %v", err)
	}

	matches := c.Match(dependencies.NewDependency(vulnTestSource, "sparse-pkg", dependencies.SimpleSpec{}))
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	vulns := dependencies.PackageOf(matches[0]).Vulnerabilities()
	if len(vulns) != 1 {
		t.Fatalf("expected 1 vulnerability attached, got %d", len(vulns))
	}
	if vulns[0].ID != "123" {
		t.Fatalf("unexpected vulnerability ID: %s", vulns[0].ID)
	}
	if vulns[0].Summary != "N/A" {
		t.Errorf("expected a missing summary to fall back to %q, got %q", "N/A", vulns[0].Summary)
	}
	if len(vulns[0].Aliases) != 0 {
		t.Errorf("expected a missing aliases list to fall back to empty, got %v", vulns[0].Aliases)
	}
}

func TestVulnerabilityEnricherSkipsFailedQueries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := cache.New()
	pkg := dependencies.NewPackage(vulnTestSource, "erroring-pkg", dependencies.MustParseVersion("1.0.0"))
	c.Add(pkg)

	e := NewVulnerabilityEnricherWithURL(srv.URL)
	if err := e.Enrich(context.Background(), c); err != nil {
		t.Fatalf("Enrich should log and continue, not fail: %v", err)
	}

	matches := c.Match(dependencies.NewDependency(vulnTestSource, "erroring-pkg", dependencies.SimpleSpec{}))
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if len(dependencies.PackageOf(matches[0]).Vulnerabilities()) != 0 {
		t.Fatalf("expected no vulnerabilities attached after a failed query")
	}
}
