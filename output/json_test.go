package output

import (
	"encoding/json"
	"testing"

	"github.com/trailofbits/it-depends/cache"
	"github.com/trailofbits/it-depends/dependencies"
)

const testSource = "outputtest"

func TestToJSONRendersDependenciesAndVulnerabilities(t *testing.T) {
	dep := dependencies.NewDependency(testSource, "libb", dependencies.SimpleSpec{})
	a := dependencies.NewPackage(testSource, "liba", dependencies.MustParseVersion("1.0.0"), dep)
	a = a.WithVulnerabilities(dependencies.Vulnerability{ID: "GHSA-xxxx", Aliases: []string{"CVE-2024-0001", "CVE-2024-0002"}})
	b := dependencies.NewPackage(testSource, "libb", dependencies.MustParseVersion("2.0.0"))

	c := cache.New()
	c.Add(a)
	c.Add(b)

	out, err := ToJSON(c)
	if err != nil {
		t.Fatalf("ToJSON error: %v", err)
	}

	var parsed map[string]map[string]packageObj
	if err := json.Unmarshal(out, &parsed); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}

	aObj, ok := parsed[testSource+":liba"]["1.0.0"]
	if !ok {
		t.Fatalf("expected an entry for %s:liba@1.0.0, got %+v", testSource, parsed)
	}
	if aObj.Dependencies[testSource+":libb"] != "*" {
		t.Fatalf("expected wildcard spec string for libb dependency, got %q", aObj.Dependencies[testSource+":libb"])
	}
	if len(aObj.Vulnerabilities) != 1 || aObj.Vulnerabilities[0] != "GHSA-xxxx (CVE-2024-0001, CVE-2024-0002)" {
		t.Fatalf("unexpected vulnerabilities rendering: %+v", aObj.Vulnerabilities)
	}

	if _, ok := parsed[testSource+":libb"]["2.0.0"]; !ok {
		t.Fatalf("expected an entry for %s:libb@2.0.0", testSource)
	}
}

func TestToJSONMarksSourcePackages(t *testing.T) {
	root := dependencies.NewSourcePackage(
		dependencies.NewPackage(testSource, "root", dependencies.MustParseVersion("1.0.0")),
		stringerRepo("/tmp/root"),
	)

	c := cache.New()
	c.Add(root)

	out, err := ToJSON(c)
	if err != nil {
		t.Fatalf("ToJSON error: %v", err)
	}

	var parsed map[string]map[string]packageObj
	if err := json.Unmarshal(out, &parsed); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}

	obj := parsed[testSource+":root"]["1.0.0"]
	if !obj.IsSourcePackage {
		t.Fatalf("expected is_source_package to be true for a SourcePackage")
	}
}

type stringerRepo string

func (s stringerRepo) String() string { return string(s) }
