// Package ubuntu expands dependencies against Ubuntu's apt package
// repository, running `apt`/`apt-file` inside a sandboxed container rather
// than assuming the host itself is Ubuntu.
package ubuntu

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/trailofbits/it-depends/dependencies"
	"github.com/trailofbits/it-depends/log"
	"github.com/trailofbits/it-depends/native"
	"github.com/trailofbits/it-depends/repository"
	"github.com/trailofbits/it-depends/resolver"
)

// Name is this ecosystem's resolver source identity.
const Name = "ubuntu"

// Resolver expands dependencies based on Ubuntu package dependencies,
// grounded on ubuntu/resolver.py's UbuntuResolver.
type Resolver struct{}

func New() *Resolver { return &Resolver{} }

func init() {
	resolver.Register(New())
	dependencies.RegisterSpecParser(Name, parseSpec)
}

// parseSpec adapts ParseSimpleSpec's concrete return type to the
// VersionSpec interface RegisterSpecParser expects; ubuntu has no version
// grammar of its own beyond what apt show already renders as comparators.
func parseSpec(expr string) (dependencies.VersionSpec, error) {
	return dependencies.ParseSimpleSpec(expr)
}

func (r *Resolver) Name() string { return Name }

func (r *Resolver) Description() string {
	return "expands dependencies based upon Ubuntu package dependencies"
}

// IsAvailable mirrors UbuntuResolver.is_available: this resolver needs a
// docker (or compatible) daemon to run apt/apt-file in, since the host
// running it-depends is not assumed to be Ubuntu itself.
func (r *Resolver) IsAvailable() resolver.ResolverAvailability {
	if !dockerAvailable() {
		return resolver.Unavailable("the ubuntu resolver needs Docker installed to sandbox apt/apt-file")
	}
	return resolver.Available()
}

// DockerSetup is nil: this resolver itself *is* a Docker sandbox rather
// than something native.go's separate per-package probing sandbox recipe
// applies to, just as ubuntu/resolver.py defines no docker_setup.
func (r *Resolver) DockerSetup() *resolver.DockerSetup { return nil }

func (r *Resolver) CanResolveFromSource(repo repository.SourceRepository) bool { return false }

func (r *Resolver) ResolveFromSource(ctx context.Context, repo repository.SourceRepository, cache resolver.PackageMatcher) (dependencies.SourcePackage, bool, error) {
	return dependencies.SourcePackage{}, false, nil
}

// CanUpdateDependencies is true for every non-ubuntu package: the native
// shared-library probe (native.go) discovers files each package installs,
// and this resolver maps those files back to the Ubuntu packages that own
// them, adding those as additional dependencies.
func (r *Resolver) CanUpdateDependencies(pkg dependencies.Package) bool {
	return pkg.Source != Name
}

// UpdateDependencies runs pkg inside its own resolver's sandbox (built from
// that resolver's DockerSetup, not ubuntu's own apt sandbox) and adds
// whatever shared libraries it dynamically loads as additional
// ubuntu-sourced dependencies, mirroring UbuntuResolver.update_dependencies.
func (r *Resolver) UpdateDependencies(ctx context.Context, pkg dependencies.Package) (dependencies.Package, error) {
	owner, ok := resolver.ByName(pkg.Source)
	if !ok || owner.DockerSetup() == nil {
		return pkg, nil
	}
	nativeDeps, err := native.GetNativeDependencies(ctx, owner, pkg, false)
	if err != nil {
		return pkg, fmt.Errorf("ubuntu: probing native dependencies of %s: %w", pkg.FullName(), err)
	}
	return pkg.WithDependencies(nativeDeps...), nil
}

var (
	dependsLinePattern = regexp.MustCompile(`^ *(?P<package>[^ ]*)( *\((?P<version>.*)\))? *$`)
	ubuntuVersionLine  = regexp.MustCompile(`^([0-9]+:)*(?P<version>[^-]*)(-.*)*$`)
)

// Resolve expands dependency: a file-path dependency (produced by the
// native shared-library prober) resolves to the Ubuntu package providing
// that file; otherwise it looks up `apt show -a <package>` and yields every
// matching version as a Package with its own Depends: parsed out.
func (r *Resolver) Resolve(ctx context.Context, dep dependencies.Dependency) ([]dependencies.Package, error) {
	if strings.HasPrefix(dep.Package, "/") {
		pkgNames, err := fileToPackages(ctx, dep.Package)
		if err != nil || len(pkgNames) == 0 {
			return nil, nil //nolint:nilerr
		}
		var deps []dependencies.Dependency
		for _, pkgName := range pkgNames {
			deps = append(deps, dependencies.NewDependency(Name, pkgName, dependencies.SimpleSpec{}))
		}
		v, _ := dependencies.ParseVersion("0")
		return []dependencies.Package{dependencies.NewPackage(Name, dep.Package, v, deps...)}, nil
	}

	candidates, err := aptPackages(ctx, dep.Package)
	if err != nil {
		return nil, err
	}
	var out []dependencies.Package
	for _, pkg := range candidates {
		if dep.Spec.Matches(pkg.Version) {
			out = append(out, pkg)
		}
	}
	return out, nil
}

// aptPackages parses `apt show -a packageName`'s output into one Package
// per (version, merged Depends:) group, mirroring
// UbuntuResolver.ubuntu_packages.
func aptPackages(ctx context.Context, packageName string) ([]dependencies.Package, error) {
	out, err := runCommand(ctx, "apt", "show", "-a", packageName)
	contents := string(out)
	if err != nil && !strings.Contains(err.Error(), "exited") {
		return nil, err
	}
	if strings.TrimSpace(contents) == "" {
		log.Warnf("ubuntu: package %s not found via apt show -a", packageName)
		return nil, nil
	}

	type key struct {
		name    string
		version string
	}
	order := []key{}
	depSets := map[key][]dependencies.Dependency{}

	var currentVersion dependencies.Version
	for _, line := range strings.Split(contents, "\n") {
		switch {
		case strings.HasPrefix(line, "Version: "):
			currentVersion = parseUbuntuVersion(line[len("Version: "):])
		case currentVersion != nil && strings.HasPrefix(line, "Depends: "):
			k := key{name: packageName, version: currentVersion.String()}
			if _, seen := depSets[k]; !seen {
				order = append(order, k)
			}
			depSets[k] = append(depSets[k], parseDependsLine(line[len("Depends: "):])...)
			currentVersion = nil
		}
	}

	out2 := make([]dependencies.Package, 0, len(order))
	for _, k := range order {
		v, verr := dependencies.ParseVersion(k.version)
		if verr != nil {
			continue
		}
		out2 = append(out2, dependencies.NewPackage(Name, k.name, v, dedupeDeps(depSets[k])...))
	}
	return out2, nil
}

func dedupeDeps(deps []dependencies.Dependency) []dependencies.Dependency {
	seen := map[string]dependencies.Dependency{}
	for _, d := range deps {
		seen[d.String()] = d
	}
	out := make([]dependencies.Dependency, 0, len(seen))
	for _, d := range seen {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// parseUbuntuVersion strips the epoch prefix ("1:") and everything from the
// first "~" onward (Ubuntu versions can carry a "~" component semver can't
// parse), matching _parse_version_line's documented hack.
func parseUbuntuVersion(raw string) dependencies.Version {
	m := ubuntuVersionLine.FindStringSubmatch(raw)
	if m == nil {
		return nil
	}
	version := strings.SplitN(findGroup(ubuntuVersionLine, m, "version"), "~", 2)[0]
	v, err := dependencies.ParseVersion(strings.TrimSpace(version))
	if err != nil {
		return nil
	}
	return v
}

func findGroup(re *regexp.Regexp, match []string, name string) string {
	for i, n := range re.SubexpNames() {
		if n == name && i < len(match) {
			return match[i]
		}
	}
	return ""
}

// parseDependsLine parses one "Depends: a (>= 1.0), b | c" line into flat
// Dependencies, treating each "|" (OR) alternative as its own ANDed
// dependency, matching _parse_dependencies_line's documented TODO.
func parseDependsLine(line string) []dependencies.Dependency {
	var deps []dependencies.Dependency
	for _, dep := range strings.Split(line, ",") {
		for _, orSegment := range strings.Split(dep, "|") {
			m := dependsLinePattern.FindStringSubmatch(orSegment)
			if m == nil {
				continue
			}
			pkgName := findGroup(dependsLinePattern, m, "package")
			pkgName = strings.TrimSpace(pkgName)
			if pkgName == "" {
				continue
			}
			rawVersion := findGroup(dependsLinePattern, m, "version")
			versionExpr := "*"
			if rawVersion != "" {
				v := strings.SplitN(rawVersion, "-", 2)[0]
				v = strings.ReplaceAll(v, " ", "")
				if _, err := dependencies.ParseSimpleSpec(v); err == nil {
					versionExpr = v
				}
			}
			spec, err := dependencies.ParseSimpleSpec(versionExpr)
			if err != nil {
				spec = dependencies.SimpleSpec{}
			}
			deps = append(deps, dependencies.NewDependency(Name, pkgName, spec))
		}
	}
	return deps
}

// fileToPackages runs `apt-file -x search <pattern>` to find every package
// that installs a file matching pattern, mirroring apt.py's file_to_packages.
func fileToPackages(ctx context.Context, pattern string) ([]string, error) {
	out, err := runCommand(ctx, "apt-file", "-x", "search", pattern)
	if err != nil {
		return nil, err
	}
	var pkgs []string
	for _, line := range strings.Split(string(out), "\n") {
		if line == "" {
			continue
		}
		name, _, ok := strings.Cut(line, ": ")
		if !ok {
			continue
		}
		pkgs = append(pkgs, name)
	}
	sort.Strings(pkgs)
	return pkgs, nil
}

// FileToPackage returns the single best (shortest-named) package that
// provides a file matching pattern, mirroring apt.py's file_to_package;
// exported for ecosystem/autotools, which maps configure.ac header/library
// checks to the Ubuntu package that would satisfy them.
func FileToPackage(ctx context.Context, pattern string) (string, error) {
	pkgs, err := fileToPackages(ctx, pattern)
	if err != nil {
		return "", err
	}
	if len(pkgs) == 0 {
		return "", errNotFound(pattern)
	}
	best := pkgs[0]
	for _, p := range pkgs[1:] {
		if len(p) < len(best) {
			best = p
		}
	}
	return best, nil
}

type notFoundError string

func (e notFoundError) Error() string { return string(e) + ": not found in apt-file" }

func errNotFound(pattern string) error { return notFoundError(pattern) }
