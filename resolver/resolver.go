// Package resolver defines the DependencyResolver contract every ecosystem
// package implements, and the registry the resolution engine and CLI use to
// look resolvers up by name or iterate all of them.
package resolver

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/trailofbits/it-depends/dependencies"
	"github.com/trailofbits/it-depends/repository"
)

// DockerSetup describes how to build a sandbox container for probing a
// package's native shared-library dependencies (used by the native
// package). A resolver that has no native artifacts to probe returns nil
// from DockerSetup.
type DockerSetup struct {
	AptGetPackages      []string
	InstallPackageScript string
	LoadPackageScript    string
	BaselineScript       string
	PostInstall          string
}

// ResolverAvailability reports whether a resolver's underlying tooling
// (a package manager binary, network access to a registry) is usable right
// now, and why not when it isn't.
type ResolverAvailability struct {
	Available bool
	Reason    string
}

// Available is ResolverAvailability{Available: true}.
func Available() ResolverAvailability { return ResolverAvailability{Available: true} }

// Unavailable builds a ResolverAvailability{Available: false} with the
// given human-readable reason.
func Unavailable(reason string) ResolverAvailability {
	return ResolverAvailability{Available: false, Reason: reason}
}

// DependencyResolver finds the set of Packages that satisfy a Dependency
// within one ecosystem, and can also resolve a SourcePackage directly out
// of a checked-out repository and cross-enrich packages discovered by other
// resolvers. Implementations are registered once via Register and are
// expected to be stateless (or internally synchronized) since the
// resolution engine calls every method from multiple goroutines.
type DependencyResolver interface {
	// Name is this resolver's "source" identity, e.g. "pip", "npm", "ubuntu".
	Name() string
	Description() string

	// Resolve yields every package that satisfies dep.
	Resolve(ctx context.Context, dep dependencies.Dependency) ([]dependencies.Package, error)

	// CanResolveFromSource reports whether this resolver recognizes repo as
	// one of its own (e.g. a Cargo.toml, package.json, go.mod present).
	CanResolveFromSource(repo repository.SourceRepository) bool
	// ResolveFromSource builds the SourcePackage described by repo, using
	// cache to resolve any dependency versions it needs along the way.
	// Returns found=false if repo turned out not to be resolvable after all.
	ResolveFromSource(ctx context.Context, repo repository.SourceRepository, cache PackageMatcher) (pkg dependencies.SourcePackage, found bool, err error)

	// CanUpdateDependencies reports whether this resolver has anything to
	// add to a package it didn't itself resolve (cross-resolver enrichment,
	// e.g. the native resolver adding shared-library deps to a pip package).
	CanUpdateDependencies(pkg dependencies.Package) bool
	// UpdateDependencies returns pkg with any additional dependencies this
	// resolver can discover unioned in.
	UpdateDependencies(ctx context.Context, pkg dependencies.Package) (dependencies.Package, error)

	// IsAvailable reports whether this resolver's tooling can run right now.
	IsAvailable() ResolverAvailability
	// DockerSetup returns the sandbox recipe for probing this resolver's
	// packages for native shared-library dependencies, or nil if this
	// ecosystem has none.
	DockerSetup() *DockerSetup
}

// PackageMatcher is the subset of cache.PackageCache that ResolveFromSource
// implementations need: looking up what's already resolved without
// depending on the concrete cache package (which would cycle, since cache
// needs nothing from resolver but conceptually sits below it in this
// module's dependency order).
type PackageMatcher interface {
	Match(dep dependencies.Dependency) []any
	LatestMatch(dep dependencies.Dependency) (any, bool)
}

var (
	mu        sync.Mutex
	resolvers = map[string]DependencyResolver{}
)

// Register adds r to the global registry, keyed by r.Name(). Called once
// from each ecosystem package's init().
func Register(r DependencyResolver) {
	mu.Lock()
	defer mu.Unlock()
	resolvers[r.Name()] = r
}

// ubuntuSortsLast mirrors ubuntu/resolver.py's Resolver.__lt__, which always
// returns False: every ordering this module performs over resolvers (the
// --list report, the order update_dependencies is offered to each resolver
// in) places ubuntu last, since its apt-based resolution is the slowest and
// the most likely to act as a catch-all for files other resolvers didn't
// claim.
func ubuntuSortsLast(a, b string) bool {
	if a == "ubuntu" {
		return false
	}
	if b == "ubuntu" {
		return true
	}
	return a < b
}

// All returns every registered resolver, sorted by name with "ubuntu"
// always sorted last.
func All() []DependencyResolver {
	mu.Lock()
	defer mu.Unlock()
	names := make([]string, 0, len(resolvers))
	for name := range resolvers {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return ubuntuSortsLast(names[i], names[j]) })
	out := make([]DependencyResolver, len(names))
	for i, name := range names {
		out[i] = resolvers[name]
	}
	return out
}

// ByName looks up a registered resolver by its Name().
func ByName(name string) (DependencyResolver, bool) {
	mu.Lock()
	defer mu.Unlock()
	r, ok := resolvers[name]
	return r, ok
}

// MustByName is ByName, panicking if name isn't registered. Intended for
// ecosystem packages that need to look up a sibling resolver they know must
// already be registered (e.g. gomod delegating native-library probing to
// the same DockerSetup machinery ubuntu uses).
func MustByName(name string) DependencyResolver {
	r, ok := ByName(name)
	if !ok {
		panic(fmt.Sprintf("resolver: no resolver registered named %q", name))
	}
	return r
}

// IsKnown reports whether name is a registered resolver.
func IsKnown(name string) bool {
	_, ok := ByName(name)
	return ok
}
