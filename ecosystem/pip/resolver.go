package pip

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/trailofbits/it-depends/dependencies"
	"github.com/trailofbits/it-depends/log"
	"github.com/trailofbits/it-depends/repository"
	"github.com/trailofbits/it-depends/resolver"
)

// Name is this ecosystem's resolver source identity.
const Name = "pip"

const pypiBase = "https://pypi.org/pypi"

// Resolver resolves Python package dependencies against PyPI's JSON API,
// grounded on pip.py's PipResolver but replacing its johnnydep/pip
// subprocess shellout with direct HTTP calls — pip.py itself only ever uses
// johnnydep to read metadata PyPI already serves as JSON, so talking to the
// registry directly removes a Python-interpreter dependency this module has
// no other use for.
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
	return "classifies the dependencies of Python packages using the PyPI JSON API"
}

func (r *Resolver) IsAvailable() resolver.ResolverAvailability {
	return resolver.Available()
}

// DockerSetup mirrors pip.py's docker_setup: a bare python3 + pip
// environment able to install and import one package, used by the native
// resolver to probe for shared-library dependencies pip itself can't see.
func (r *Resolver) DockerSetup() *resolver.DockerSetup {
	return &resolver.DockerSetup{
		AptGetPackages:       []string{"python3", "python3-pip", "python3-dev", "gcc"},
		InstallPackageScript: "#!/usr/bin/env bash\npip3 install $1==$2\n",
		LoadPackageScript:    "#!/usr/bin/env bash\npython3 -c \"import $1\"\n",
		BaselineScript:       "#!/usr/bin/env python3 -c \"\"\n",
	}
}

func (r *Resolver) CanUpdateDependencies(pkg dependencies.Package) bool { return false }

func (r *Resolver) UpdateDependencies(ctx context.Context, pkg dependencies.Package) (dependencies.Package, error) {
	return pkg, nil
}

type pypiProject struct {
	releases map[string]bool // version string -> has at least one non-yanked file
}

func (r *Resolver) fetchProject(ctx context.Context, name string) (*pypiProject, error) {
	body, err := r.get(ctx, fmt.Sprintf("%s/%s/json", pypiBase, name))
	if err != nil {
		return nil, err
	}
	releases := gjson.GetBytes(body, "releases")
	proj := &pypiProject{releases: map[string]bool{}}
	releases.ForEach(func(version, files gjson.Result) bool {
		yanked := true
		for _, f := range files.Array() {
			if !f.Get("yanked").Bool() {
				yanked = false
				break
			}
		}
		proj.releases[version.String()] = !yanked || len(files.Array()) == 0
		return true
	})
	return proj, nil
}

// requiresDistPattern splits a PEP 508 requirement string (e.g.
// `requests (>=2.0) ; extra == "socks"`, or the simpler modern
// `requests>=2.0`) into its distribution name and raw specifier text,
// dropping any environment marker after ";" since this module has no
// notion of optional/conditional dependencies.
var requiresDistPattern = regexp.MustCompile(`^\s*([A-Za-z0-9_.\-]+)\s*(\[[^\]]*\])?\s*\(?([^;)]*)\)?`)

func parseRequiresDist(raw string) (name, specifier string, ok bool) {
	raw = strings.SplitN(raw, ";", 2)[0]
	m := requiresDistPattern.FindStringSubmatch(raw)
	if m == nil {
		return "", "", false
	}
	return m[1], strings.TrimSpace(m[3]), true
}

func (r *Resolver) fetchVersionDependencies(ctx context.Context, name, version string) ([]dependencies.Dependency, error) {
	body, err := r.get(ctx, fmt.Sprintf("%s/%s/%s/json", pypiBase, name, version))
	if err != nil {
		return nil, err
	}
	var deps []dependencies.Dependency
	for _, rd := range gjson.GetBytes(body, "info.requires_dist").Array() {
		depName, specifier, ok := parseRequiresDist(rd.String())
		if !ok {
			continue
		}
		spec, err := ParseSpec(specifier)
		if err != nil {
			log.Debugf("pip: ignoring unparsable specifier %q for %s: %v", specifier, depName, err)
			spec = dependencies.SimpleSpec{}
		}
		deps = append(deps, dependencies.NewDependency(Name, depName, spec))
	}
	return deps, nil
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
		return nil, fmt.Errorf("pip: GET %s: status %s", url, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// Resolve fetches dep.Package's PyPI release list, filters it by dep.Spec,
// and fetches per-version metadata for each match to build its dependency
// set, mirroring resolve_dist's non-recursive (recurse=False) mode — the
// mode PipResolver.resolve always actually uses.
func (r *Resolver) Resolve(ctx context.Context, dep dependencies.Dependency) ([]dependencies.Package, error) {
	proj, err := r.fetchProject(ctx, dep.Package)
	if err != nil {
		return nil, fmt.Errorf("pip: fetching %s: %w", dep.Package, err)
	}
	var versions []string
	for v, hasFiles := range proj.releases {
		if !hasFiles {
			continue
		}
		versions = append(versions, v)
	}
	sort.Strings(versions)

	var pkgs []dependencies.Package
	for _, v := range versions {
		sv, err := dependencies.ParseVersion(v)
		if err != nil {
			continue
		}
		if !dep.Spec.Matches(sv) {
			continue
		}
		pkgDeps, err := r.fetchVersionDependencies(ctx, dep.Package, v)
		if err != nil {
			log.Warnf("pip: fetching dependencies of %s==%s: %v", dep.Package, v, err)
			pkgDeps = nil
		}
		pkgs = append(pkgs, dependencies.NewPackage(Name, dep.Package, sv, pkgDeps...))
	}
	return pkgs, nil
}

// CanResolveFromSource reports whether repo looks like a Python project,
// mirroring PipResolver.can_resolve_from_source.
func (r *Resolver) CanResolveFromSource(repo repository.SourceRepository) bool {
	for _, name := range []string{"setup.py", "pyproject.toml", "requirements.txt"} {
		if _, err := os.Stat(filepath.Join(repo.Path, name)); err == nil {
			return true
		}
	}
	return false
}

// ResolveFromSource builds a SourcePackage from repo's requirements.txt,
// since this module has no Python interpreter to shell out to `pip wheel`
// the way PipSourcePackage.from_repo does for a setup.py/pyproject.toml
// project. When only a setup.py/pyproject.toml is present (no
// requirements.txt), CanResolveFromSource still recognizes the project
// (matching the original's detection), but the resulting SourcePackage
// carries no dependencies since this resolver has no way to read its
// metadata without invoking Python.
func (r *Resolver) ResolveFromSource(ctx context.Context, repo repository.SourceRepository, cache resolver.PackageMatcher) (dependencies.SourcePackage, bool, error) {
	if !r.CanResolveFromSource(repo) {
		return dependencies.SourcePackage{}, false, nil
	}
	var deps []dependencies.Dependency
	if data, err := os.ReadFile(filepath.Join(repo.Path, "requirements.txt")); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			dep, ok := parseRequirementsTxtLine(line)
			if ok {
				deps = append(deps, dep)
			}
		}
	} else {
		log.Infof("pip: %s has no requirements.txt; resolving name/version only", repo.Path)
	}
	name := filepath.Base(repo.Path)
	version := dependencies.MustParseVersion("0.0.0")
	if v, err := os.ReadFile(filepath.Join(repo.Path, "VERSION")); err == nil {
		if parsed, err := dependencies.ParseVersion(strings.TrimSpace(string(v))); err == nil {
			version = parsed
		}
	} else {
		log.Infof("pip: could not detect version for %s, using %s", repo.Path, version)
	}
	pkg := dependencies.NewPackage(Name, name, version, deps...)
	return dependencies.NewSourcePackage(pkg, repo), true, nil
}

// parseRequirementsTxtLine parses one requirements.txt line into a
// Dependency, grounded on PipResolver.parse_requirements_txt_line.
func parseRequirementsTxtLine(line string) (dependencies.Dependency, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return dependencies.Dependency{}, false
	}
	delimiterPos := -1
	for _, delim := range []string{"=", "<", ">", "~", "!"} {
		if pos := strings.IndexAny(line, delim); pos >= 0 && (delimiterPos < 0 || pos < delimiterPos) {
			delimiterPos = pos
		}
	}
	if delimiterPos < 0 {
		return dependencies.NewDependency(Name, line, dependencies.SimpleSpec{}), true
	}
	name := strings.TrimSpace(line[:delimiterPos])
	spec, err := ParseSpec(line[delimiterPos:])
	if err != nil {
		spec = dependencies.SimpleSpec{}
	}
	return dependencies.NewDependency(Name, name, spec), true
}
