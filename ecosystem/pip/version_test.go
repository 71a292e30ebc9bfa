package pip

import (
	"testing"

	"github.com/trailofbits/it-depends/dependencies"
)

func TestParseSpecCompatibleRelease(t *testing.T) {
	spec, err := ParseSpec("~=1.4.2")
	if err != nil {
		t.Fatalf("ParseSpec: %v", err)
	}
	if spec.String() != "<1.5,>=1.4.2" {
		t.Errorf("spec = %q, want <1.5,>=1.4.2", spec.String())
	}
}

func TestParseSpecArbitraryEquality(t *testing.T) {
	spec, err := ParseSpec("===1.2.3")
	if err != nil {
		t.Fatalf("ParseSpec: %v", err)
	}
	if spec.String() != "==1.2.3" {
		t.Errorf("spec = %q, want ==1.2.3", spec.String())
	}
}

func TestParseSpecPlainRange(t *testing.T) {
	spec, err := ParseSpec(">=1.0,<2.0")
	if err != nil {
		t.Fatalf("ParseSpec: %v", err)
	}
	v1, _ := dependencies.ParseVersion("1.5.0")
	v2, _ := dependencies.ParseVersion("2.0.0")
	if !spec.Matches(v1) {
		t.Error("expected 1.5.0 to match >=1.0,<2.0")
	}
	if spec.Matches(v2) {
		t.Error("expected 2.0.0 to not match >=1.0,<2.0")
	}
}
