package dependencies

import (
	"fmt"
	"sort"
	"strings"
)

// Package is a resolved unit in one ecosystem: a name and version together
// with everything known to depend from it. Equality is on (source, name,
// version) only — two Packages with the same key but different dependency
// sets are the same package at different points in its enrichment, which is
// exactly what PackageCache.add's monotonic union models.
type Package struct {
	Source  string
	Name    string
	Version Version

	dependencies    map[string]Dependency    // keyed by Dependency.String()
	vulnerabilities map[string]Vulnerability // keyed by ID
	maintenance     *MaintenanceInfo
}

// NewPackage builds a Package from its identity and an initial dependency
// set (duplicates collapse by Dependency.String()).
func NewPackage(source, name string, version Version, deps ...Dependency) Package {
	p := Package{Source: source, Name: name, Version: version}
	p.dependencies = depSet(deps)
	return p
}

func depSet(deps []Dependency) map[string]Dependency {
	m := make(map[string]Dependency, len(deps))
	for _, d := range deps {
		m[d.String()] = d
	}
	return m
}

func vulnSet(vulns []Vulnerability) map[string]Vulnerability {
	m := make(map[string]Vulnerability, len(vulns))
	for _, v := range vulns {
		m[v.ID] = v
	}
	return m
}

// Key is the cache identity "source:name@version", used as a map key by
// PackageCache implementations.
func (p Package) Key() string {
	return fmt.Sprintf("%s:%s@%s", p.Source, p.Name, p.Version.String())
}

// FullName is "source:name", without the version.
func (p Package) FullName() string {
	return p.Source + ":" + p.Name
}

// Equal compares only the (source, name, version) identity, per spec.
func (p Package) Equal(other Package) bool {
	return p.Source == other.Source && p.Name == other.Name && p.Version.String() == other.Version.String()
}

// Less orders packages by (name, source, version string), for deterministic
// output and the SBOM backtracker's version-descending/ascending sort.
func (p Package) Less(other Package) bool {
	if p.Name != other.Name {
		return p.Name < other.Name
	}
	if p.Source != other.Source {
		return p.Source < other.Source
	}
	return p.Version.String() < other.Version.String()
}

// Dependencies returns this package's dependency set, sorted for
// deterministic iteration.
func (p Package) Dependencies() []Dependency {
	out := make([]Dependency, 0, len(p.dependencies))
	for _, d := range p.dependencies {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Vulnerabilities returns this package's vulnerability set, sorted by ID.
func (p Package) Vulnerabilities() []Vulnerability {
	out := make([]Vulnerability, 0, len(p.vulnerabilities))
	for _, v := range p.vulnerabilities {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Maintenance returns the attached MaintenanceInfo, or nil if this package
// hasn't been enriched yet.
func (p Package) Maintenance() *MaintenanceInfo { return p.maintenance }

// WithDependencies returns a copy of p whose dependency set is the union of
// its current set and newDeps (set semantics, by Dependency.String()).
func (p Package) WithDependencies(newDeps ...Dependency) Package {
	merged := make(map[string]Dependency, len(p.dependencies)+len(newDeps))
	for k, v := range p.dependencies {
		merged[k] = v
	}
	for _, d := range newDeps {
		merged[d.String()] = d
	}
	p.dependencies = merged
	return p
}

// WithVulnerabilities returns a copy of p whose vulnerability set is the
// union of its current set and newVulns (set semantics, by ID).
func (p Package) WithVulnerabilities(newVulns ...Vulnerability) Package {
	merged := make(map[string]Vulnerability, len(p.vulnerabilities)+len(newVulns))
	for k, v := range p.vulnerabilities {
		merged[k] = v
	}
	for _, v := range newVulns {
		merged[v.ID] = v
	}
	p.vulnerabilities = merged
	return p
}

// WithMaintenance returns a copy of p carrying the given MaintenanceInfo.
func (p Package) WithMaintenance(m MaintenanceInfo) Package {
	p.maintenance = &m
	return p
}

// ToDependency yields the exact-version Dependency this package satisfies:
// (source, name, spec="=version").
func (p Package) ToDependency() Dependency {
	spec, err := parseSpecFor(p.Source, "="+p.Version.String())
	if err != nil {
		spec = WildcardSpec{}
	}
	return NewDependency(p.Source, p.Name, spec)
}

// String renders the canonical round-trip form
// "source:name@version[dep1,dep2,...]", omitting the bracket suffix when
// there are no dependencies.
func (p Package) String() string {
	base := fmt.Sprintf("%s:%s@%s", p.Source, p.Name, p.Version.String())
	deps := p.Dependencies()
	if len(deps) == 0 {
		return base
	}
	parts := make([]string, len(deps))
	for i, d := range deps {
		parts[i] = d.String()
	}
	return base + "[" + strings.Join(parts, ",") + "]"
}

// PackageFromString parses the round-trip form produced by String, using
// ParseVersion for the version component (ecosystem-specific version
// parsing, when it differs, is handled by resolvers constructing Packages
// directly rather than through this generic parser).
func PackageFromString(description string) (Package, error) {
	source, tail, ok := strings.Cut(description, ":")
	if !ok {
		return Package{}, fmt.Errorf("dependencies: cannot parse package %q: missing ':'", description)
	}
	name, versionAndDeps, ok := strings.Cut(tail, "@")
	if !ok {
		return Package{}, fmt.Errorf("dependencies: cannot parse package %q: missing '@'", description)
	}
	versionStr := versionAndDeps
	var depStrs []string
	if idx := strings.Index(versionAndDeps, "["); idx >= 0 {
		versionStr = versionAndDeps[:idx]
		depsBlock := strings.TrimSuffix(versionAndDeps[idx+1:], "]")
		depsBlock = strings.TrimSpace(depsBlock)
		if depsBlock != "" {
			depStrs = strings.Split(depsBlock, ",")
		}
	}
	version, err := ParseVersion(versionStr)
	if err != nil {
		return Package{}, fmt.Errorf("dependencies: cannot parse package %q: %w", description, err)
	}
	deps := make([]Dependency, 0, len(depStrs))
	for _, ds := range depStrs {
		d, err := DependencyFromString(ds)
		if err != nil {
			return Package{}, fmt.Errorf("dependencies: cannot parse package %q: %w", description, err)
		}
		deps = append(deps, d)
	}
	return NewPackage(source, name, version, deps...), nil
}
