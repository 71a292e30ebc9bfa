package pip

import "testing"

func TestParseRequiresDist(t *testing.T) {
	cases := []struct {
		raw      string
		name     string
		specifier string
	}{
		{`requests (>=2.0)`, "requests", ">=2.0"},
		{`requests>=2.0`, "requests", ">=2.0"},
		{`idna (>=2.5,<4) ; extra == "socks"`, "idna", ">=2.5,<4"},
		{`certifi`, "certifi", ""},
	}
	for _, c := range cases {
		name, specifier, ok := parseRequiresDist(c.raw)
		if !ok {
			t.Errorf("parseRequiresDist(%q) failed to parse", c.raw)
			continue
		}
		if name != c.name || specifier != c.specifier {
			t.Errorf("parseRequiresDist(%q) = (%q, %q), want (%q, %q)", c.raw, name, specifier, c.name, c.specifier)
		}
	}
}

func TestParseRequirementsTxtLine(t *testing.T) {
	dep, ok := parseRequirementsTxtLine("flask>=2.0,<3.0")
	if !ok {
		t.Fatal("expected line to parse")
	}
	if dep.Package != "flask" {
		t.Errorf("Package = %q", dep.Package)
	}
	if dep.Spec.String() != "<3.0,>=2.0" {
		t.Errorf("Spec = %q", dep.Spec.String())
	}

	if _, ok := parseRequirementsTxtLine("# a comment"); ok {
		t.Error("expected comment line to be skipped")
	}
	if _, ok := parseRequirementsTxtLine(""); ok {
		t.Error("expected blank line to be skipped")
	}
}
