package dependencies

import "fmt"

// SourceRepository is the minimal shape this package needs from a checked-out
// source tree. The repository package's SourceRepository satisfies it; kept
// as an interface here (rather than importing the repository package
// directly) so dependencies never has to import anything that itself might
// one day want to import dependencies.
type SourceRepository interface {
	String() string
}

// SourcePackage is a Package resolved directly from a source checkout
// (resolve_from_source) rather than from a registry. It carries the
// repository it came from so the CLI can report where a root package's
// source lives and so graph.CollapseVersions can tell root nodes apart from
// ordinary dependency nodes.
type SourcePackage struct {
	Package
	SourceRepo SourceRepository
}

// NewSourcePackage builds a SourcePackage from an already-constructed
// Package and the repository it was resolved from.
func NewSourcePackage(pkg Package, repo SourceRepository) SourcePackage {
	return SourcePackage{Package: pkg, SourceRepo: repo}
}

// String appends the repository path to the ordinary Package rendering, so
// source packages are distinguishable in human-readable output.
func (sp SourcePackage) String() string {
	return fmt.Sprintf("%s (%s)", sp.Package.String(), sp.SourceRepo)
}

// IsSourcePackage is a cheap type-switch helper for code (graph, cache) that
// receives a Package and needs to know whether it's really a SourcePackage
// underneath, mirroring the Python original's hasattr(pkg, 'source_repo')
// checks.
func IsSourcePackage(pkg any) (SourcePackage, bool) {
	sp, ok := pkg.(SourcePackage)
	return sp, ok
}

// PackageOf extracts the embedded Package identity from either a Package or
// a SourcePackage, for code that stores both kinds in the same collection
// (cache, graph) and needs their shared (source, name, version, deps) shape
// without caring which concrete type it is.
func PackageOf(x any) Package {
	switch p := x.(type) {
	case SourcePackage:
		return p.Package
	case Package:
		return p
	default:
		panic(fmt.Sprintf("dependencies: not a Package or SourcePackage: %T", x))
	}
}
