package dependencies

import (
	"fmt"
	"strings"
)

// SpecParser parses a version-spec string in one ecosystem's syntax.
// Ecosystem packages register one of these via RegisterSpecParser so that
// Dependency.FromString and Package.FromString can round-trip without this
// package needing to import every ecosystem.
type SpecParser func(expr string) (VersionSpec, error)

var specParsers = map[string]SpecParser{}

// RegisterSpecParser associates a resolver ("source") name with the parser
// for its version-spec syntax. Called from ecosystem package init()s.
func RegisterSpecParser(source string, parser SpecParser) {
	specParsers[source] = parser
}

func parseSpecFor(source, expr string) (VersionSpec, error) {
	if parser, ok := specParsers[source]; ok {
		return parser(expr)
	}
	return ParseSimpleSpec(expr)
}

// ParseSpecFor parses expr as a version spec in the syntax registered for
// source (via RegisterSpecParser), falling back to SimpleSpec's syntax for
// ecosystems that never registered their own. Exported for cache
// implementations that need to round-trip a spec string read back from
// persistent storage.
func ParseSpecFor(source, expr string) (VersionSpec, error) {
	return parseSpecFor(source, expr)
}

// Dependency is a (source, package name, version spec) triple, optionally
// carrying an alias for ecosystems (npm) that allow renaming a dependency
// within a tree. Two Dependencies are equal iff source, package, spec
// string, and alias all match.
type Dependency struct {
	Source  string
	Package string
	Spec    VersionSpec
	// Alias is the local name this dependency is imported as, e.g. npm's
	// `"foo": "npm:bar@^1.0"`. Empty for ordinary dependencies.
	Alias string
}

// NewDependency builds a Dependency, defaulting Spec to a wildcard when nil.
func NewDependency(source, pkg string, spec VersionSpec) Dependency {
	if spec == nil {
		spec = WildcardSpec{}
	}
	return Dependency{Source: source, Package: pkg, Spec: spec}
}

// FullName is "source:package", the cache key prefix used to look up all
// versions of a package regardless of version constraint.
func (d Dependency) FullName() string {
	return d.Source + ":" + d.Package
}

// String renders the canonical "source:package@spec" form, or, for an
// aliased dependency, "source:alias@package@spec" (matching
// AliasedDependency.__str__ in the Python original).
func (d Dependency) String() string {
	specStr := "*"
	if d.Spec != nil {
		specStr = d.Spec.String()
	}
	if d.Alias != "" {
		return fmt.Sprintf("%s:%s@%s@%s", d.Source, d.Alias, d.Package, specStr)
	}
	return fmt.Sprintf("%s:%s@%s", d.Source, d.Package, specStr)
}

// Match reports whether pkg satisfies d: same source and package name, and
// pkg's version matches d's spec. Used by the SBOM backtracker to tell
// whether a candidate package resolves an outstanding dependency.
func (d Dependency) Match(pkg Package) bool {
	if d.Source != pkg.Source || d.Package != pkg.Name {
		return false
	}
	if d.Spec == nil {
		return true
	}
	return d.Spec.Matches(pkg.Version)
}

// Equal reports whether two dependencies have the same source, package,
// alias, and canonical spec string.
func (d Dependency) Equal(other Dependency) bool {
	specA, specB := "*", "*"
	if d.Spec != nil {
		specA = d.Spec.String()
	}
	if other.Spec != nil {
		specB = other.Spec.String()
	}
	return d.Source == other.Source && d.Package == other.Package && d.Alias == other.Alias && specA == specB
}

// DependencyFromString parses "source:package@spec" (or, with an alias,
// "source:alias@package@spec") into a Dependency. A missing "@spec" suffix
// defaults to the wildcard spec.
func DependencyFromString(description string) (Dependency, error) {
	source, tail, ok := strings.Cut(description, ":")
	if !ok {
		return Dependency{}, fmt.Errorf("dependencies: cannot parse dependency %q: missing ':'", description)
	}
	parts := strings.Split(tail, "@")
	switch len(parts) {
	case 1:
		return NewDependency(source, parts[0], WildcardSpec{}), nil
	case 2:
		spec, err := parseSpecFor(source, parts[1])
		if err != nil {
			return Dependency{}, fmt.Errorf("dependencies: cannot parse dependency %q: %w", description, err)
		}
		return NewDependency(source, parts[0], spec), nil
	case 3:
		// alias@package@spec
		spec, err := parseSpecFor(source, parts[2])
		if err != nil {
			return Dependency{}, fmt.Errorf("dependencies: cannot parse dependency %q: %w", description, err)
		}
		d := NewDependency(source, parts[1], spec)
		d.Alias = parts[0]
		return d, nil
	default:
		return Dependency{}, fmt.Errorf("dependencies: cannot parse dependency %q", description)
	}
}
