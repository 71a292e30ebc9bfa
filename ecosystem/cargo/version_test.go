package cargo

import (
	"testing"

	"github.com/trailofbits/it-depends/dependencies"
)

func mustVersion(t *testing.T, s string) dependencies.Version {
	t.Helper()
	v, err := dependencies.ParseVersion(s)
	if err != nil {
		t.Fatalf("ParseVersion(%q): %v", s, err)
	}
	return v
}

func TestParseSpecBareIsCaret(t *testing.T) {
	spec, err := ParseSpec("1.2.3")
	if err != nil {
		t.Fatalf("ParseSpec: %v", err)
	}
	if !spec.Matches(mustVersion(t, "1.9.0")) {
		t.Error("expected bare 1.2.3 to behave as a caret requirement and match 1.9.0")
	}
	if spec.Matches(mustVersion(t, "2.0.0")) {
		t.Error("expected bare 1.2.3 caret requirement to not match 2.0.0")
	}
}

func TestParseSpecExactOperator(t *testing.T) {
	spec, err := ParseSpec("=1.2.3")
	if err != nil {
		t.Fatalf("ParseSpec: %v", err)
	}
	if !spec.Matches(mustVersion(t, "1.2.3")) {
		t.Error("expected =1.2.3 to match 1.2.3")
	}
	if spec.Matches(mustVersion(t, "1.2.4")) {
		t.Error("expected =1.2.3 to not match 1.2.4")
	}
}

func TestParseSpecTilde(t *testing.T) {
	spec, err := ParseSpec("~1.2")
	if err != nil {
		t.Fatalf("ParseSpec: %v", err)
	}
	if !spec.Matches(mustVersion(t, "1.2.9")) {
		t.Error("expected ~1.2 to match 1.2.9")
	}
	if spec.Matches(mustVersion(t, "1.3.0")) {
		t.Error("expected ~1.2 to not match 1.3.0")
	}
}

func TestParseSpecWildcard(t *testing.T) {
	spec, err := ParseSpec("1.*")
	if err != nil {
		t.Fatalf("ParseSpec: %v", err)
	}
	if !spec.Matches(mustVersion(t, "1.9.0")) {
		t.Error("expected 1.* to match 1.9.0")
	}
	if spec.Matches(mustVersion(t, "2.0.0")) {
		t.Error("expected 1.* to not match 2.0.0")
	}
}
