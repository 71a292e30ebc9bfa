package output

import (
	"strings"
	"testing"

	"github.com/trailofbits/it-depends/cache"
	"github.com/trailofbits/it-depends/dependencies"
)

func TestToDotRootsAtSourcePackagesAndMarksVulnerabilities(t *testing.T) {
	dep := dependencies.NewDependency(testSource, "libb", dependencies.SimpleSpec{})
	libb := dependencies.NewPackage(testSource, "libb", dependencies.MustParseVersion("1.0.0"))
	libb = libb.WithVulnerabilities(dependencies.Vulnerability{ID: "GHSA-yyyy"})

	root := dependencies.NewSourcePackage(
		dependencies.NewPackage(testSource, "app", dependencies.MustParseVersion("1.0.0"), dep),
		stringerRepo("/tmp/app"),
	)

	c := cache.New()
	c.Add(root)
	c.Add(libb)

	out := ToDot(c)

	if !strings.Contains(out, "shape=\"triangle\"") {
		t.Fatalf("expected a triangle node for the vulnerable package, got:\n%s", out)
	}
	if !strings.Contains(out, "shape=\"rectangle\"") {
		t.Fatalf("expected a rectangle node for the root package, got:\n%s", out)
	}
	if !strings.Contains(out, "shape=\"oval\"") {
		t.Fatalf("expected an oval node for the dependency, got:\n%s", out)
	}
}

func TestToDotFallsBackToAllPackagesWithoutSources(t *testing.T) {
	a := dependencies.NewPackage(testSource, "standalone", dependencies.MustParseVersion("1.0.0"))
	c := cache.New()
	c.Add(a)

	out := ToDot(c)
	if !strings.Contains(out, testSource+":standalone@1.0.0") {
		t.Fatalf("expected standalone package node label in output:\n%s", out)
	}
}
