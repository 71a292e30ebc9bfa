package cache

import (
	"testing"

	"github.com/trailofbits/it-depends/dependencies"
)

const src = "cachetest"

func mkPkg(name, version string, deps ...dependencies.Dependency) dependencies.Package {
	return dependencies.NewPackage(src, name, dependencies.MustParseVersion(version), deps...)
}

func TestAddAndGet(t *testing.T) {
	c := New()
	p := mkPkg("foo", "1.0.0")
	c.Add(p)

	if c.Len() != 1 {
		t.Fatalf("expected 1 package, got %d", c.Len())
	}
	got, found := c.Get(src, "foo", dependencies.MustParseVersion("1.0.0"))
	if !found {
		t.Fatalf("expected to find the added package")
	}
	if !dependencies.PackageOf(got).Equal(p) {
		t.Fatalf("expected the retrieved package to equal what was added")
	}
}

func TestAddMergesRatherThanOverwrites(t *testing.T) {
	c := New()
	dep1 := dependencies.NewDependency(src, "a", nil)
	dep2 := dependencies.NewDependency(src, "b", nil)
	c.Add(mkPkg("foo", "1.0.0", dep1))
	c.Add(mkPkg("foo", "1.0.0", dep2))

	got, _ := c.Get(src, "foo", dependencies.MustParseVersion("1.0.0"))
	deps := dependencies.PackageOf(got).Dependencies()
	if len(deps) != 2 {
		t.Fatalf("expected merge to union dependency sets, got %d deps", len(deps))
	}
}

func TestAddNeverDemotesSourcePackage(t *testing.T) {
	c := New()
	sp := dependencies.NewSourcePackage(mkPkg("foo", "1.0.0"), stubRepo("/path"))
	c.Add(sp)
	c.Add(mkPkg("foo", "1.0.0", dependencies.NewDependency(src, "a", nil)))

	got, _ := c.Get(src, "foo", dependencies.MustParseVersion("1.0.0"))
	if _, ok := dependencies.IsSourcePackage(got); !ok {
		t.Fatalf("expected the cached entry to remain a SourcePackage after a plain Package merge")
	}
}

type stubRepo string

func (r stubRepo) String() string { return string(r) }

func TestContains(t *testing.T) {
	c := New()
	p := mkPkg("foo", "1.0.0")
	if c.Contains(p) {
		t.Fatalf("expected an empty cache not to contain anything")
	}
	c.Add(p)
	if !c.Contains(p) {
		t.Fatalf("expected the cache to contain what was just added")
	}
}

func TestWasResolvedSetResolved(t *testing.T) {
	c := New()
	dep := dependencies.NewDependency(src, "foo", nil)
	if c.WasResolved(dep) {
		t.Fatalf("expected a fresh cache not to mark anything resolved")
	}
	c.SetResolved(dep)
	if !c.WasResolved(dep) {
		t.Fatalf("expected SetResolved to be observed by WasResolved")
	}
}

func TestWasUpdatedSetUpdatedUpdatedBy(t *testing.T) {
	c := New()
	p := mkPkg("foo", "1.0.0")
	c.Add(p)
	if c.WasUpdated(p, "pip") {
		t.Fatalf("expected a freshly added package not to be marked updated")
	}
	c.SetUpdated(p, "pip")
	c.SetUpdated(p, "npm")
	if !c.WasUpdated(p, "pip") {
		t.Fatalf("expected SetUpdated to be observed by WasUpdated")
	}
	by := c.UpdatedBy(p)
	if len(by) != 2 || by[0] != "npm" || by[1] != "pip" {
		t.Fatalf("expected UpdatedBy to report both resolvers sorted, got %v", by)
	}
}

func TestMatchAndLatestMatch(t *testing.T) {
	c := New()
	c.Add(mkPkg("foo", "1.0.0"))
	c.Add(mkPkg("foo", "2.0.0"))
	c.Add(mkPkg("foo", "3.0.0"))

	dep := dependencies.NewDependency(src, "foo", dependencies.MustParseSimpleSpec(">=2.0.0"))
	matches := c.Match(dep)
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches for >=2.0.0, got %d", len(matches))
	}

	latest, found := c.LatestMatch(dep)
	if !found {
		t.Fatalf("expected a latest match")
	}
	if dependencies.PackageOf(latest).Version.String() != "3.0.0" {
		t.Fatalf("expected the latest match to be 3.0.0, got %s", dependencies.PackageOf(latest).Version.String())
	}
}

func TestPackageFullNamesAndVersions(t *testing.T) {
	c := New()
	c.Add(mkPkg("foo", "1.0.0"))
	c.Add(mkPkg("foo", "2.0.0"))
	c.Add(mkPkg("bar", "1.0.0"))

	names := c.PackageFullNames()
	if len(names) != 2 || names[0] != src+":bar" || names[1] != src+":foo" {
		t.Fatalf("unexpected full names: %v", names)
	}

	versions := c.PackageVersions(src + ":foo")
	if len(versions) != 2 {
		t.Fatalf("expected 2 versions of foo, got %d", len(versions))
	}
}

func TestUnresolvedDependencies(t *testing.T) {
	c := New()
	dep := dependencies.NewDependency(src, "bar", nil)
	c.Add(mkPkg("foo", "1.0.0", dep))

	unresolved := c.UnresolvedDependencies(nil)
	if len(unresolved) != 1 {
		t.Fatalf("expected 1 unresolved dependency, got %d", len(unresolved))
	}

	c.SetResolved(dep)
	unresolved = c.UnresolvedDependencies(nil)
	if len(unresolved) != 0 {
		t.Fatalf("expected no unresolved dependencies once marked resolved, got %d", len(unresolved))
	}
}

func TestSourcePackages(t *testing.T) {
	c := New()
	c.Add(mkPkg("foo", "1.0.0"))
	sp := dependencies.NewSourcePackage(mkPkg("bar", "1.0.0"), stubRepo("/path"))
	c.Add(sp)

	sps := c.SourcePackages()
	if len(sps) != 1 || sps[0].Name != "bar" {
		t.Fatalf("expected exactly one source package (bar), got %v", sps)
	}
}

func TestToGraphAddsMatchedEdges(t *testing.T) {
	c := New()
	dep := dependencies.NewDependency(src, "bar", nil)
	c.Add(mkPkg("foo", "1.0.0", dep))
	c.Add(mkPkg("bar", "1.0.0"))

	g := c.ToGraph()
	if g.Len() != 2 {
		t.Fatalf("expected 2 nodes in the graph, got %d", g.Len())
	}
}
