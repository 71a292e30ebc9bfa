package npm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/trailofbits/it-depends/dependencies"
	"github.com/trailofbits/it-depends/log"
	"github.com/trailofbits/it-depends/repository"
	"github.com/trailofbits/it-depends/resolver"
)

// Name is this ecosystem's resolver source identity.
const Name = "npm"

const npmRegistry = "https://registry.npmjs.org"

// Resolver resolves JavaScript package dependencies against the npm
// registry's own JSON API, grounded on npm.py's NPMResolver but replacing
// its `npm view --json` subprocess shellout with a direct HTTP GET of the
// registry document `npm view` itself reads from — removing a dependency
// on a working npm/node install this module has no other use for.
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
	return "classifies the dependencies of JavaScript packages using the npm registry"
}

func (r *Resolver) IsAvailable() resolver.ResolverAvailability {
	return resolver.Available()
}

// DockerSetup mirrors npm.py's docker_setup.
func (r *Resolver) DockerSetup() *resolver.DockerSetup {
	return &resolver.DockerSetup{
		AptGetPackages:       []string{"npm"},
		InstallPackageScript: "#!/usr/bin/env bash\nnpm install $1@$2\n",
		LoadPackageScript:    "#!/usr/bin/env bash\nnode -e \"require(\\\"$1\\\")\"\n",
		BaselineScript:       "#!/usr/bin/env node -e \"\"\n",
	}
}

func (r *Resolver) CanUpdateDependencies(pkg dependencies.Package) bool { return false }

func (r *Resolver) UpdateDependencies(ctx context.Context, pkg dependencies.Package) (dependencies.Package, error) {
	return pkg, nil
}

// scopedName prefixes a two-segment "scope/name" dependency name with "@",
// mirroring NPMResolver.resolve's fixup for scoped packages declared
// without their leading "@" (an it-depends-internal representation quirk,
// not something that actually appears in npm registry names).
func scopedName(name string) string {
	if strings.Count(name, "/") == 1 && !strings.HasPrefix(name, "@") {
		return "@" + name
	}
	return name
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
		return nil, fmt.Errorf("npm: GET %s: status %s", url, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// Resolve fetches the registry's full package document, filters its
// "versions" map by dep.Spec, and yields one Package per matching version
// with that version's own "dependencies" map turned into Dependencies.
func (r *Resolver) Resolve(ctx context.Context, dep dependencies.Dependency) ([]dependencies.Package, error) {
	name := scopedName(dep.Package)
	if dep.Alias != "" {
		name = scopedName(dep.Alias)
	}
	body, err := r.get(ctx, npmRegistry+"/"+escapeScopedName(name))
	if err != nil {
		return nil, fmt.Errorf("npm: fetching %s: %w", name, err)
	}

	var pkgs []dependencies.Package
	gjson.GetBytes(body, "versions").ForEach(func(version, info gjson.Result) bool {
		sv, err := dependencies.ParseVersion(version.String())
		if err != nil {
			return true
		}
		if !dep.Spec.Matches(sv) {
			return true
		}
		var deps []dependencies.Dependency
		info.Get("dependencies").ForEach(func(depName, depVersion gjson.Result) bool {
			d, ok := dependencyFromDeclaration(depName.String(), depVersion.String(), Name)
			if ok {
				deps = append(deps, d)
			}
			return true
		})
		pkgs = append(pkgs, dependencies.NewPackage(Name, dep.Package, sv, deps...))
		return true
	})
	return pkgs, nil
}

// escapeScopedName percent-encodes a scoped package name's leading "@" and
// "/" the way the npm registry's REST API requires ("@scope%2Fname").
func escapeScopedName(name string) string {
	if !strings.HasPrefix(name, "@") {
		return name
	}
	return "@" + strings.Replace(strings.TrimPrefix(name, "@"), "/", "%2F", 1)
}

// dependencyFromDeclaration parses one package.json/registry dependency
// declaration, handling the "<alias>@npm:<name>" aliasing form alongside
// ordinary "<name>": "<range>" entries, grounded on
// generate_dependency_from_information.
func dependencyFromDeclaration(name, declaredVersion, source string) (dependencies.Dependency, bool) {
	if strings.HasPrefix(declaredVersion, "npm:") {
		rest := strings.TrimPrefix(declaredVersion, "npm:")
		if strings.Count(rest, "@") != 1 {
			log.Warnf("npm: unsupported aliased dependency declaration %s@%s", name, declaredVersion)
			return dependencies.Dependency{}, false
		}
		parts := strings.SplitN(rest, "@", 2)
		spec, err := ParseSpec(parts[1])
		if err != nil {
			spec = wildcard()
		}
		d := dependencies.NewDependency(source, name, spec)
		d.Alias = parts[0]
		return d, true
	}
	spec, err := ParseSpec(declaredVersion)
	if err != nil {
		spec = wildcard()
	}
	return dependencies.NewDependency(source, name, spec), true
}

func wildcard() dependencies.VersionSpec {
	s, _ := ParseSpec("*")
	return s
}

// CanResolveFromSource reports whether repo has a package.json.
func (r *Resolver) CanResolveFromSource(repo repository.SourceRepository) bool {
	_, err := os.Stat(filepath.Join(repo.Path, "package.json"))
	return err == nil
}

type packageJSON struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Dependencies map[string]string `json:"dependencies"`
}

// ResolveFromSource parses repo's package.json, grounded on
// NPMResolver.from_package_json.
func (r *Resolver) ResolveFromSource(ctx context.Context, repo repository.SourceRepository, cache resolver.PackageMatcher) (dependencies.SourcePackage, bool, error) {
	if !r.CanResolveFromSource(repo) {
		return dependencies.SourcePackage{}, false, nil
	}
	data, err := os.ReadFile(filepath.Join(repo.Path, "package.json"))
	if err != nil {
		return dependencies.SourcePackage{}, false, err
	}
	var pj packageJSON
	if err := json.Unmarshal(data, &pj); err != nil {
		return dependencies.SourcePackage{}, false, fmt.Errorf("npm: parsing package.json: %w", err)
	}
	name := pj.Name
	if name == "" {
		name = filepath.Base(repo.Path)
	}
	versionStr := pj.Version
	if versionStr == "" {
		versionStr = "0"
	}
	version, err := dependencies.ParseVersion(versionStr)
	if err != nil {
		version = dependencies.MustParseVersion("0.0.0")
	}

	var deps []dependencies.Dependency
	for depName, declared := range pj.Dependencies {
		if d, ok := dependencyFromDeclaration(depName, declared, Name); ok {
			deps = append(deps, d)
		}
	}
	pkg := dependencies.NewPackage(Name, name, version, deps...)
	return dependencies.NewSourcePackage(pkg, repo), true, nil
}
