package cargo

import (
	"testing"

	"github.com/BurntSushi/toml"
)

const sampleManifest = `
[package]
name = "mycrate"
version = "0.3.1"

[dependencies]
serde = "1.0"
rand = { version = "0.8", features = ["small_rng"] }
`

func TestResolveFromSourceManifestParsing(t *testing.T) {
	var manifest cargoManifest
	md, err := toml.Decode(sampleManifest, &manifest)
	if err != nil {
		t.Fatalf("toml.Decode: %v", err)
	}
	if manifest.Package.Name != "mycrate" || manifest.Package.Version != "0.3.1" {
		t.Errorf("package = %+v", manifest.Package)
	}
	serde, ok := decodeDependencyRequirement(md, manifest.Dependencies["serde"])
	if !ok || serde != "1.0" {
		t.Errorf("serde requirement = %q, ok=%v", serde, ok)
	}
	rnd, ok := decodeDependencyRequirement(md, manifest.Dependencies["rand"])
	if !ok || rnd != "0.8" {
		t.Errorf("rand requirement = %q, ok=%v", rnd, ok)
	}
}
