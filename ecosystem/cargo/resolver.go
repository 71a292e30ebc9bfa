package cargo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/tidwall/gjson"

	"github.com/trailofbits/it-depends/dependencies"
	"github.com/trailofbits/it-depends/log"
	"github.com/trailofbits/it-depends/repository"
	"github.com/trailofbits/it-depends/resolver"
)

// Name is this ecosystem's resolver source identity.
const Name = "cargo"

const cratesIOBase = "https://crates.io/api/v1/crates"

// Resolver resolves Rust crate dependencies against the crates.io registry
// API, grounded on cargo.py's CargoResolver but replacing its `cargo
// metadata`/`cargo init` subprocess dance (which needs a real cargo
// toolchain and, for CargoResolver.resolve, even synthesizes a throwaway
// crate on disk just to get cargo to resolve one dependency) with direct
// calls to the same registry cargo itself talks to.
type Resolver struct {
	httpClient *http.Client
}

func New() *Resolver {
	return &Resolver{httpClient: &http.Client{Timeout: 30 * time.Second}}
}

func init() {
	resolver.Register(New())
}

func (r *Resolver) Name() string { return Name }

func (r *Resolver) Description() string {
	return "classifies the dependencies of Rust packages using the crates.io registry"
}

func (r *Resolver) IsAvailable() resolver.ResolverAvailability {
	return resolver.Available()
}

// DockerSetup is nil: crates.io resolution needs no sandboxed install step
// the way pip/npm/ubuntu's native-library probing does. cargo.py itself
// defines no docker_setup for CargoResolver either.
func (r *Resolver) DockerSetup() *resolver.DockerSetup { return nil }

func (r *Resolver) CanUpdateDependencies(pkg dependencies.Package) bool { return false }

func (r *Resolver) UpdateDependencies(ctx context.Context, pkg dependencies.Package) (dependencies.Package, error) {
	return pkg, nil
}

// RepositoryURL looks up pkg's "repository" field from its crates.io crate
// metadata, for the enrich package's maintenance-status checker. Mirrors
// CargoResolver.get_repository_url.
func (r *Resolver) RepositoryURL(ctx context.Context, pkg dependencies.Package) (string, bool) {
	body, err := r.get(ctx, fmt.Sprintf("%s/%s", cratesIOBase, pkg.Name))
	if err != nil {
		return "", false
	}
	url := gjson.GetBytes(body, "crate.repository").String()
	return url, url != ""
}

func (r *Resolver) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cargo: GET %s: status %s", url, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// Resolve fetches dep.Package's version list from crates.io, filters by
// dep.Spec, and fetches each matching version's dependency list, mirroring
// CargoResolver.resolve's effect without the cargo-init subprocess
// workaround it uses to get there.
func (r *Resolver) Resolve(ctx context.Context, dep dependencies.Dependency) ([]dependencies.Package, error) {
	body, err := r.get(ctx, fmt.Sprintf("%s/%s", cratesIOBase, dep.Package))
	if err != nil {
		return nil, fmt.Errorf("cargo: fetching %s: %w", dep.Package, err)
	}

	var pkgs []dependencies.Package
	for _, v := range gjson.GetBytes(body, "versions").Array() {
		if v.Get("yanked").Bool() {
			continue
		}
		versionStr := v.Get("num").String()
		sv, err := dependencies.ParseVersion(versionStr)
		if err != nil {
			continue
		}
		if !dep.Spec.Matches(sv) {
			continue
		}
		deps, err := r.fetchVersionDependencies(ctx, dep.Package, versionStr)
		if err != nil {
			log.Warnf("cargo: fetching dependencies of %s %s: %v", dep.Package, versionStr, err)
			deps = nil
		}
		pkgs = append(pkgs, dependencies.NewPackage(Name, dep.Package, sv, deps...))
	}
	return pkgs, nil
}

func (r *Resolver) fetchVersionDependencies(ctx context.Context, name, version string) ([]dependencies.Dependency, error) {
	body, err := r.get(ctx, fmt.Sprintf("%s/%s/%s/dependencies", cratesIOBase, name, version))
	if err != nil {
		return nil, err
	}
	merged := map[string]dependencies.Dependency{}
	for _, d := range gjson.GetBytes(body, "dependencies").Array() {
		// kind "normal" only: dev/build dependencies aren't part of what a
		// consumer of this crate actually pulls in, matching
		// get_dependencies' `if dep["kind"] is not None: continue` filter.
		if d.Get("kind").String() != "normal" {
			continue
		}
		if d.Get("optional").Bool() {
			continue
		}
		depName := d.Get("crate_id").String()
		spec, err := ParseSpec(d.Get("req").String())
		if err != nil {
			spec = Spec{}
		}
		if existing, ok := merged[depName]; ok {
			merged[depName] = dependencies.NewDependency(Name, depName, existing.Spec.Union(spec))
		} else {
			merged[depName] = dependencies.NewDependency(Name, depName, spec)
		}
	}
	out := make([]dependencies.Dependency, 0, len(merged))
	for _, d := range merged {
		out = append(out, d)
	}
	return out, nil
}

type cargoManifest struct {
	Package struct {
		Name    string `toml:"name"`
		Version string `toml:"version"`
	} `toml:"package"`
	Dependencies map[string]toml.Primitive `toml:"dependencies"`
}

// CanResolveFromSource reports whether repo has a Cargo.toml.
func (r *Resolver) CanResolveFromSource(repo repository.SourceRepository) bool {
	_, err := os.Stat(filepath.Join(repo.Path, "Cargo.toml"))
	return err == nil
}

// ResolveFromSource parses repo's Cargo.toml, grounded on the package/
// dependencies sections get_dependencies reads out of `cargo metadata`'s
// JSON (which itself is built from Cargo.toml); dependency version
// requirements are read as either a bare string ("1.2.3") or the
// {version = "..."} table form, both valid Cargo.toml shapes.
func (r *Resolver) ResolveFromSource(ctx context.Context, repo repository.SourceRepository, cache resolver.PackageMatcher) (dependencies.SourcePackage, bool, error) {
	if !r.CanResolveFromSource(repo) {
		return dependencies.SourcePackage{}, false, nil
	}
	var manifest cargoManifest
	md, err := toml.DecodeFile(filepath.Join(repo.Path, "Cargo.toml"), &manifest)
	if err != nil {
		return dependencies.SourcePackage{}, false, fmt.Errorf("cargo: parsing Cargo.toml: %w", err)
	}

	name := manifest.Package.Name
	if name == "" {
		name = filepath.Base(repo.Path)
	}
	versionStr := manifest.Package.Version
	if versionStr == "" {
		versionStr = "0.0.0"
	}
	version, err := dependencies.ParseVersion(versionStr)
	if err != nil {
		version = dependencies.MustParseVersion("0.0.0")
	}

	var deps []dependencies.Dependency
	for depName, prim := range manifest.Dependencies {
		reqStr, ok := decodeDependencyRequirement(md, prim)
		if !ok {
			reqStr = "*"
		}
		spec, err := ParseSpec(reqStr)
		if err != nil {
			spec = Spec{}
		}
		deps = append(deps, dependencies.NewDependency(Name, depName, spec))
	}
	pkg := dependencies.NewPackage(Name, name, version, deps...)
	return dependencies.NewSourcePackage(pkg, repo), true, nil
}

// decodeDependencyRequirement handles both Cargo.toml dependency shapes: a
// bare version string, or a table with a "version" key (used alongside
// "features"/"optional"/"path"/"git" etc).
func decodeDependencyRequirement(md toml.MetaData, prim toml.Primitive) (string, bool) {
	var asString string
	if err := md.PrimitiveDecode(prim, &asString); err == nil && asString != "" {
		return asString, true
	}
	var asTable struct {
		Version string `toml:"version"`
	}
	if err := md.PrimitiveDecode(prim, &asTable); err == nil && asTable.Version != "" {
		return asTable.Version, true
	}
	return "", false
}
