package gomod

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/mod/modfile"

	"github.com/trailofbits/it-depends/dependencies"
	"github.com/trailofbits/it-depends/log"
	"github.com/trailofbits/it-depends/repository"
	"github.com/trailofbits/it-depends/resolver"
)

// Name is this ecosystem's resolver source identity, matching the purl type
// mapping already established in purl.FromResolverSource.
const Name = "gomod"

// Resolver resolves Go module dependencies straight from go.mod content,
// grounded on go.py's GoResolver: fetch a module's go.mod over HTTP (via the
// module proxy-adjacent raw-source convention every github.com-hosted module
// supports) and parse its require block with golang.org/x/mod/modfile rather
// than go.py's hand-rolled regexes, since modfile already handles every
// go.mod syntax variant (single-line, block, replace/exclude directives)
// this module would otherwise have to re-derive.
type Resolver struct {
	httpClient *http.Client
}

// New builds a Resolver with a bounded-timeout HTTP client for fetching
// go.mod files from source hosts.
func New() *Resolver {
	return &Resolver{httpClient: &http.Client{Timeout: 30 * time.Second}}
}

func init() {
	resolver.Register(New())
}

func (r *Resolver) Name() string { return Name }

func (r *Resolver) Description() string {
	return "Resolves Go module dependencies by parsing go.mod content fetched from a module's source repository"
}

func (r *Resolver) IsAvailable() resolver.ResolverAvailability {
	return resolver.Available()
}

// DockerSetup is nil: Go modules are resolved from go.mod text alone, with
// no package manager install step to sandbox for native-library probing
// (unlike pip/npm, which install real artifacts ubuntu/native probe).
func (r *Resolver) DockerSetup() *resolver.DockerSetup { return nil }

func (r *Resolver) CanUpdateDependencies(pkg dependencies.Package) bool { return false }

func (r *Resolver) UpdateDependencies(ctx context.Context, pkg dependencies.Package) (dependencies.Package, error) {
	return pkg, nil
}

// Resolve fetches go.mod for dep's import path at the version dep.Spec
// pins (gomod specs are always exact-match, per GoSpec/Spec) and returns the
// single Package it describes, with its own require block as dependencies.
func (r *Resolver) Resolve(ctx context.Context, dep dependencies.Dependency) ([]dependencies.Package, error) {
	spec, ok := dep.Spec.(Spec)
	if !ok || spec.wildcard {
		return nil, fmt.Errorf("gomod: cannot resolve %s without an exact pinned version", dep)
	}
	data, err := r.fetchGoMod(ctx, dep.Package, spec.target)
	if err != nil {
		return nil, err
	}
	pkg, err := packageFromModFile(dep.Package, Version(spec.target), data)
	if err != nil {
		return nil, err
	}
	return []dependencies.Package{pkg}, nil
}

// fetchGoMod retrieves the raw go.mod text for modulePath at version from
// the repository's raw-content endpoint, grounded on go.py's
// GoModule.from_github (raw.githubusercontent.com/{org}/{repo}/{tag}/go.mod).
// Non-github import paths fall back to a shallow clone checked out at HEAD
// and read from disk — a documented simplification of the original's full
// git-hash-checkout fallback chain, since this module has no need to
// reproduce history-spanning tag resolution for non-github hosts.
func (r *Resolver) fetchGoMod(ctx context.Context, modulePath, version string) ([]byte, error) {
	if strings.HasPrefix(modulePath, "github.com/") {
		parts := strings.SplitN(strings.TrimPrefix(modulePath, "github.com/"), "/", 3)
		if len(parts) >= 2 {
			org, repo := parts[0], parts[1]
			url := fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/%s/go.mod", org, repo, version)
			if data, err := r.get(ctx, url); err == nil {
				return data, nil
			}
			log.Debugf("gomod: raw fetch of %s@%s failed, falling back to clone", modulePath, version)
		}
	}

	repo, err := repository.ResolveImportPath(ctx, modulePath)
	if err != nil {
		return nil, fmt.Errorf("gomod: resolving import path %s: %w", modulePath, err)
	}
	src, err := repository.Clone(repo.Repo)
	if err != nil {
		return nil, fmt.Errorf("gomod: cloning %s: %w", repo.Repo, err)
	}
	return os.ReadFile(filepath.Join(src.Path, "go.mod"))
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
		return nil, fmt.Errorf("gomod: GET %s: status %s", url, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// packageFromModFile parses go.mod content into a Package whose name and
// pinned version are given explicitly (go.mod's own "module" directive
// names the module but not the version being resolved — that comes from the
// Dependency or the git tag/commit it was fetched at), with one Dependency
// per require directive.
func packageFromModFile(name string, version Version, data []byte) (dependencies.Package, error) {
	mf, err := modfile.Parse("go.mod", data, nil)
	if err != nil {
		return dependencies.Package{}, fmt.Errorf("gomod: parsing go.mod for %s: %w", name, err)
	}
	pkg := dependencies.NewPackage(Name, name, version)
	for _, req := range mf.Require {
		if req.Indirect {
			continue
		}
		depSpec, specErr := ParseSpec(req.Mod.Version)
		if specErr != nil {
			return dependencies.Package{}, specErr
		}
		pkg = pkg.WithDependencies(dependencies.NewDependency(Name, req.Mod.Path, depSpec))
	}
	return pkg, nil
}

// CanResolveFromSource reports whether repo looks like a Go module root.
func (r *Resolver) CanResolveFromSource(repo repository.SourceRepository) bool {
	_, err := os.Stat(filepath.Join(repo.Path, "go.mod"))
	return err == nil
}

// ResolveFromSource parses repo's own go.mod, building a synthetic
// pseudo-version pinned to the present moment (this module has no cached
// commit metadata for an arbitrary working tree the way the original's
// GitPython-backed resolve_from_source does when it derives a real
// pseudo-version from the checkout's HEAD commit; the synthetic stamp is
// still exact-match comparable, just not reproducible across runs).
func (r *Resolver) ResolveFromSource(ctx context.Context, repo repository.SourceRepository, cache resolver.PackageMatcher) (dependencies.SourcePackage, bool, error) {
	modPath := filepath.Join(repo.Path, "go.mod")
	data, err := os.ReadFile(modPath)
	if err != nil {
		return dependencies.SourcePackage{}, false, nil
	}
	mf, err := modfile.Parse("go.mod", data, nil)
	if err != nil || mf.Module == nil {
		return dependencies.SourcePackage{}, false, fmt.Errorf("gomod: parsing %s: %w", modPath, err)
	}

	pkg, err := packageFromModFile(mf.Module.Mod.Path, localPseudoVersion(), data)
	if err != nil {
		return dependencies.SourcePackage{}, false, err
	}
	return dependencies.NewSourcePackage(pkg, repo), true, nil
}

// localPseudoVersion stamps a v0.0.0-<UTC timestamp>-local pseudo-version
// for a checkout that was never actually tagged, following the shape (if
// not the exact hash semantics) of Go's real pseudo-version format.
func localPseudoVersion() Version {
	return Version("v0.0.0-" + time.Now().UTC().Format("20060102150405") + "-local")
}
