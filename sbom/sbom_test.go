package sbom

import (
	"testing"

	"github.com/trailofbits/it-depends/cache"
	"github.com/trailofbits/it-depends/dependencies"
)

const testSource = "sbomtest"

func mustVersion(t *testing.T, s string) dependencies.SemVersion {
	t.Helper()
	return dependencies.MustParseVersion(s)
}

func TestPackageSetAddDetectsVersionConflict(t *testing.T) {
	set := newPackageSet()
	set.add(dependencies.NewPackage(testSource, "a", mustVersion(t, "1.0")))
	if !set.isValid {
		t.Fatalf("expected valid after first add")
	}
	set.add(dependencies.NewPackage(testSource, "a", mustVersion(t, "2.0")))
	if set.isValid {
		t.Errorf("expected a conflicting version of the same package to invalidate the set")
	}
}

func TestPackageSetAddTracksUnsatisfiedThenResolves(t *testing.T) {
	dep := dependencies.NewDependency(testSource, "b", dependencies.SimpleSpec{})
	a := dependencies.NewPackage(testSource, "a", mustVersion(t, "1.0"), dep)
	set := newPackageSet()
	set.add(a)
	if set.isComplete {
		t.Fatalf("expected incomplete while b is unresolved")
	}
	groups := set.unsatisfiedDependencies()
	if len(groups) != 1 || groups[0].dep.Package != "b" {
		t.Fatalf("expected one unsatisfied group for b, got %+v", groups)
	}

	set.add(dependencies.NewPackage(testSource, "b", mustVersion(t, "1.0")))
	if !set.isComplete {
		t.Errorf("expected complete once b is added")
	}
	if len(set.unsatisfiedDependencies()) != 0 {
		t.Errorf("expected no unsatisfied dependencies left")
	}
}

func TestUnsatisfiedDependenciesCombinesCompoundSpec(t *testing.T) {
	specAtLeastOne, err := dependencies.ParseSimpleSpec(">=1.0")
	if err != nil {
		t.Fatalf("ParseSimpleSpec: %v", err)
	}
	specBelowThree, err := dependencies.ParseSimpleSpec("<3.0")
	if err != nil {
		t.Fatalf("ParseSimpleSpec: %v", err)
	}
	a := dependencies.NewPackage(testSource, "a", mustVersion(t, "1.0"),
		dependencies.NewDependency(testSource, "shared", specAtLeastOne))
	b := dependencies.NewPackage(testSource, "b", mustVersion(t, "1.0"),
		dependencies.NewDependency(testSource, "shared", specBelowThree))

	set := newPackageSet()
	set.add(a)
	set.add(b)

	groups := set.unsatisfiedDependencies()
	if len(groups) != 1 {
		t.Fatalf("expected a single combined group, got %d", len(groups))
	}
	group := groups[0]
	if len(group.requiredBy) != 2 {
		t.Errorf("expected both a and b to require the shared package, got %v", group.requiredBy)
	}
	if !group.dep.Spec.Matches(mustVersion(t, "2.0")) {
		t.Errorf("expected the compound spec to match 2.0 (>=1.0,<3.0)")
	}
	if group.dep.Spec.Matches(mustVersion(t, "3.5")) {
		t.Errorf("expected the compound spec to reject 3.5 (violates <3.0)")
	}
}

func buildMatcherCache(t *testing.T, pkgs ...dependencies.Package) *cache.InMemoryPackageCache {
	t.Helper()
	c := cache.New()
	for _, p := range pkgs {
		c.Add(p)
	}
	return c
}

func TestResolveSimpleChain(t *testing.T) {
	b := dependencies.NewPackage(testSource, "b", mustVersion(t, "1.0"))
	root := dependencies.NewPackage(testSource, "root", mustVersion(t, "1.0"),
		dependencies.NewDependency(testSource, "b", dependencies.SimpleSpec{}))

	c := buildMatcherCache(t, b)
	out := Resolve(root, c, true)

	pkgs := out.Packages()
	if len(pkgs) != 2 {
		t.Fatalf("expected root+b, got %v", pkgs)
	}
	edges := out.Edges()
	if len(edges) != 1 || edges[0].From.Name != "root" || edges[0].To.Name != "b" {
		t.Fatalf("expected a single root->b edge, got %+v", edges)
	}
}

func TestResolveUnresolvableDependencyYieldsRootOnly(t *testing.T) {
	root := dependencies.NewPackage(testSource, "root", mustVersion(t, "1.0"),
		dependencies.NewDependency(testSource, "missing", dependencies.SimpleSpec{}))

	c := buildMatcherCache(t) // empty: nothing can satisfy "missing"
	out := Resolve(root, c, true)

	if len(out.Edges()) != 0 {
		t.Errorf("expected no edges when the dependency can't be satisfied, got %v", out.Edges())
	}
	pkgs := out.Packages()
	if len(pkgs) != 1 || pkgs[0].Name != "root" {
		t.Fatalf("expected only the root package, got %v", pkgs)
	}
}

func TestResolveAmbiguousVersionPicksOneAccordingToOrder(t *testing.T) {
	bOld := dependencies.NewPackage(testSource, "b", mustVersion(t, "1.0"))
	bNew := dependencies.NewPackage(testSource, "b", mustVersion(t, "2.0"))
	root := dependencies.NewPackage(testSource, "root", mustVersion(t, "1.0"),
		dependencies.NewDependency(testSource, "b", dependencies.SimpleSpec{}))

	c := buildMatcherCache(t, bOld, bNew)

	// Resolve stops at the first complete resolution it finds, matching
	// _cli.py's own break-after-first handling of resolve_sbom's results,
	// rather than unioning every alternative together. orderAscending picks
	// which version of the ambiguous dependency that first resolution uses.
	ascending := Resolve(root, c, true)
	versionsOf := func(out *SBOM) []string {
		var vs []string
		for _, p := range out.Packages() {
			if p.Name == "b" {
				vs = append(vs, p.Version.String())
			}
		}
		return vs
	}
	if vs := versionsOf(ascending); len(vs) != 1 || vs[0] != "1.0.0" {
		t.Errorf("expected orderAscending=true to resolve to a single b@1.0, got %v", vs)
	}

	descending := Resolve(root, c, false)
	if vs := versionsOf(descending); len(vs) != 1 || vs[0] != "2.0.0" {
		t.Errorf("expected orderAscending=false to resolve to a single b@2.0, got %v", vs)
	}
}

func TestSBOMOrDeduplicatesEdges(t *testing.T) {
	root := dependencies.NewPackage(testSource, "root", mustVersion(t, "1.0"))
	b := dependencies.NewPackage(testSource, "b", mustVersion(t, "1.0"))
	s1 := New([]dependencies.Package{root}, []Edge{{From: root, To: b}})
	s2 := New([]dependencies.Package{root}, []Edge{{From: root, To: b}})

	merged := s1.Or(s2)
	if len(merged.Edges()) != 1 {
		t.Errorf("expected duplicate edges to collapse, got %v", merged.Edges())
	}
}

func TestToCycloneDXRoundTrip(t *testing.T) {
	root := dependencies.NewPackage(testSource, "root", mustVersion(t, "1.0"))
	b := dependencies.NewPackage(testSource, "b", mustVersion(t, "1.0"))
	s := New([]dependencies.Package{root}, []Edge{{From: root, To: b}})

	bom := s.ToCycloneDX("0.0.0-test")
	if bom.Components == nil || len(*bom.Components) != 2 {
		t.Fatalf("expected 2 components, got %v", bom.Components)
	}
	if bom.Dependencies == nil || len(*bom.Dependencies) != 1 {
		t.Fatalf("expected 1 dependency entry, got %v", bom.Dependencies)
	}
	if bom.Metadata == nil || bom.Metadata.Component == nil || bom.Metadata.Component.Name != "root" {
		t.Errorf("expected the root package as the BOM's metadata component")
	}
}
