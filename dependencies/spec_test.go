package dependencies

import "testing"

func TestParseSimpleSpecWildcard(t *testing.T) {
	for _, expr := range []string{"", "*"} {
		s, err := ParseSimpleSpec(expr)
		if err != nil {
			t.Fatalf("ParseSimpleSpec(%q) error: %v", expr, err)
		}
		if !s.Matches(MustParseVersion("9.9.9")) {
			t.Fatalf("expected %q to match everything", expr)
		}
		if s.String() != "*" {
			t.Fatalf("expected %q to render as *, got %q", expr, s.String())
		}
	}
}

func TestParseSimpleSpecBareVersionMeansEquals(t *testing.T) {
	s := MustParseSimpleSpec("1.2.3")
	if !s.Matches(MustParseVersion("1.2.3")) {
		t.Fatalf("expected bare version to match itself")
	}
	if s.Matches(MustParseVersion("1.2.4")) {
		t.Fatalf("expected bare version not to match a different version")
	}
}

func TestParseSimpleSpecConjunctionOfClauses(t *testing.T) {
	s := MustParseSimpleSpec(">=1.0.0,<2.0.0")
	if !s.Matches(MustParseVersion("1.5.0")) {
		t.Fatalf("expected 1.5.0 to satisfy >=1.0.0,<2.0.0")
	}
	if s.Matches(MustParseVersion("2.0.0")) {
		t.Fatalf("expected 2.0.0 not to satisfy >=1.0.0,<2.0.0")
	}
	if s.Matches(MustParseVersion("0.9.0")) {
		t.Fatalf("expected 0.9.0 not to satisfy >=1.0.0,<2.0.0")
	}
}

func TestSimpleSpecUnionNarrowsRatherThanWidens(t *testing.T) {
	a := MustParseSimpleSpec(">=1.0.0")
	b := MustParseSimpleSpec("<2.0.0")
	u := a.Union(b)
	if !u.Matches(MustParseVersion("1.5.0")) {
		t.Fatalf("expected the union to match a version in both ranges")
	}
	if u.Matches(MustParseVersion("2.5.0")) {
		t.Fatalf("expected the union to reject a version only satisfying one clause")
	}
}

func TestWildcardSpecUnion(t *testing.T) {
	w := WildcardSpec{}
	other := MustParseSimpleSpec(">=1.0.0")
	if w.Union(other).String() != other.String() {
		t.Fatalf("expected wildcard union with a spec to yield that spec")
	}
	if w.Union(nil).String() != "*" {
		t.Fatalf("expected wildcard union with nil to stay a wildcard")
	}
}

func TestSimpleSpecStringIsSortedAndStable(t *testing.T) {
	a := MustParseSimpleSpec("<2.0.0,>=1.0.0")
	b := MustParseSimpleSpec(">=1.0.0,<2.0.0")
	if a.String() != b.String() {
		t.Fatalf("expected clause order not to affect canonical string: %q vs %q", a.String(), b.String())
	}
}
