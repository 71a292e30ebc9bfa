package dependencies

import "testing"

func TestPackageStringRoundTrip(t *testing.T) {
	dep := NewDependency("pip", "six", MustParseSimpleSpec(">=1.0.0"))
	p := NewPackage("pip", "requests", MustParseVersion("2.5.0"), dep)
	str := p.String()
	parsed, err := PackageFromString(str)
	if err != nil {
		t.Fatalf("PackageFromString(%q) error: %v", str, err)
	}
	if !p.Equal(parsed) {
		t.Fatalf("expected round-tripped package to equal the original: %+v vs %+v", p, parsed)
	}
	if len(parsed.Dependencies()) != 1 || parsed.Dependencies()[0].Package != "six" {
		t.Fatalf("expected the dependency bracket to round-trip, got %+v", parsed.Dependencies())
	}
}

func TestPackageStringOmitsEmptyBracket(t *testing.T) {
	p := NewPackage("pip", "requests", MustParseVersion("2.5.0"))
	if p.String() != "pip:requests@2.5.0" {
		t.Fatalf("expected no bracket suffix for a dependency-free package, got %q", p.String())
	}
}

func TestPackageKeyAndFullName(t *testing.T) {
	p := NewPackage("npm", "lodash", MustParseVersion("4.17.21"))
	if p.Key() != "npm:lodash@4.17.21" {
		t.Fatalf("unexpected Key(): %q", p.Key())
	}
	if p.FullName() != "npm:lodash" {
		t.Fatalf("unexpected FullName(): %q", p.FullName())
	}
}

func TestPackageEqualIgnoresDependencies(t *testing.T) {
	a := NewPackage("pip", "requests", MustParseVersion("2.5.0"))
	b := a.WithDependencies(NewDependency("pip", "six", nil))
	if !a.Equal(b) {
		t.Fatalf("expected identity equality to ignore attached dependencies")
	}
}

func TestPackageLessOrdersByNameThenSourceThenVersion(t *testing.T) {
	a := NewPackage("pip", "alpha", MustParseVersion("1.0.0"))
	b := NewPackage("pip", "beta", MustParseVersion("1.0.0"))
	if !a.Less(b) {
		t.Fatalf("expected alpha < beta")
	}
	c := NewPackage("npm", "alpha", MustParseVersion("1.0.0"))
	d := NewPackage("pip", "alpha", MustParseVersion("1.0.0"))
	if !c.Less(d) {
		t.Fatalf("expected npm:alpha < pip:alpha when names tie")
	}
}

func TestPackageWithDependenciesUnionsBySetSemantics(t *testing.T) {
	dep := NewDependency("pip", "six", nil)
	p := NewPackage("pip", "requests", MustParseVersion("2.5.0"), dep)
	p2 := p.WithDependencies(dep, NewDependency("pip", "urllib3", nil))
	if len(p2.Dependencies()) != 2 {
		t.Fatalf("expected the duplicate dependency to collapse, got %d deps", len(p2.Dependencies()))
	}
	if len(p.Dependencies()) != 1 {
		t.Fatalf("expected WithDependencies not to mutate the receiver")
	}
}

func TestPackageWithVulnerabilitiesUnionsByID(t *testing.T) {
	p := NewPackage("pip", "requests", MustParseVersion("2.5.0"))
	p2 := p.WithVulnerabilities(Vulnerability{ID: "GHSA-1"})
	p3 := p2.WithVulnerabilities(Vulnerability{ID: "GHSA-1"}, Vulnerability{ID: "GHSA-2"})
	if len(p3.Vulnerabilities()) != 2 {
		t.Fatalf("expected vulnerabilities to union by ID, got %d", len(p3.Vulnerabilities()))
	}
	if len(p.Vulnerabilities()) != 0 {
		t.Fatalf("expected WithVulnerabilities not to mutate the receiver")
	}
}

func TestPackageToDependencyMatchesExactVersionOnly(t *testing.T) {
	p := NewPackage("pip", "requests", MustParseVersion("2.5.0"))
	dep := p.ToDependency()
	if !dep.Match(p) {
		t.Fatalf("expected a package's own ToDependency to match itself")
	}
	other := NewPackage("pip", "requests", MustParseVersion("2.6.0"))
	if dep.Match(other) {
		t.Fatalf("expected ToDependency to pin the exact version")
	}
}

func TestPackageFromStringRejectsMalformedInput(t *testing.T) {
	if _, err := PackageFromString("no-colon"); err == nil {
		t.Fatalf("expected an error for a missing ':'")
	}
	if _, err := PackageFromString("pip:requests"); err == nil {
		t.Fatalf("expected an error for a missing '@'")
	}
}
