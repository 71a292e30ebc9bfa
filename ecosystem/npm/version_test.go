package npm

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

func TestParseSpecCaret(t *testing.T) {
	spec, err := ParseSpec("^1.2.3")
	if err != nil {
		t.Fatalf("ParseSpec: %v", err)
	}
	if !spec.Matches(mustVersion(t, "1.9.0")) {
		t.Error("expected ^1.2.3 to match 1.9.0")
	}
	if spec.Matches(mustVersion(t, "2.0.0")) {
		t.Error("expected ^1.2.3 to not match 2.0.0")
	}
	if spec.Matches(mustVersion(t, "1.2.2")) {
		t.Error("expected ^1.2.3 to not match 1.2.2")
	}
}

func TestParseSpecCaretZeroMajor(t *testing.T) {
	spec, err := ParseSpec("^0.2.3")
	if err != nil {
		t.Fatalf("ParseSpec: %v", err)
	}
	if !spec.Matches(mustVersion(t, "0.2.9")) {
		t.Error("expected ^0.2.3 to match 0.2.9")
	}
	if spec.Matches(mustVersion(t, "0.3.0")) {
		t.Error("expected ^0.2.3 to not match 0.3.0")
	}
}

func TestParseSpecTilde(t *testing.T) {
	spec, err := ParseSpec("~1.2.3")
	if err != nil {
		t.Fatalf("ParseSpec: %v", err)
	}
	if !spec.Matches(mustVersion(t, "1.2.9")) {
		t.Error("expected ~1.2.3 to match 1.2.9")
	}
	if spec.Matches(mustVersion(t, "1.3.0")) {
		t.Error("expected ~1.2.3 to not match 1.3.0")
	}
}

func TestParseSpecOr(t *testing.T) {
	spec, err := ParseSpec("^1.0.0 || ^2.0.0")
	if err != nil {
		t.Fatalf("ParseSpec: %v", err)
	}
	if !spec.Matches(mustVersion(t, "1.5.0")) {
		t.Error("expected OR spec to match 1.5.0")
	}
	if !spec.Matches(mustVersion(t, "2.5.0")) {
		t.Error("expected OR spec to match 2.5.0")
	}
	if spec.Matches(mustVersion(t, "3.0.0")) {
		t.Error("expected OR spec to not match 3.0.0")
	}
}

func TestParseSpecXRange(t *testing.T) {
	spec, err := ParseSpec("1.2.x")
	if err != nil {
		t.Fatalf("ParseSpec: %v", err)
	}
	if !spec.Matches(mustVersion(t, "1.2.7")) {
		t.Error("expected 1.2.x to match 1.2.7")
	}
	if spec.Matches(mustVersion(t, "1.3.0")) {
		t.Error("expected 1.2.x to not match 1.3.0")
	}
}

func TestParseSpecExact(t *testing.T) {
	spec, err := ParseSpec("1.2.3")
	if err != nil {
		t.Fatalf("ParseSpec: %v", err)
	}
	if !spec.Matches(mustVersion(t, "1.2.3")) {
		t.Error("expected exact spec to match 1.2.3")
	}
	if spec.Matches(mustVersion(t, "1.2.4")) {
		t.Error("expected exact spec to not match 1.2.4")
	}
}
