// Package cache holds the resolved-package store every resolver reads from
// and writes to: which dependencies have been fully expanded, which
// packages have been cross-enriched by which resolvers, and the packages
// themselves, content-addressed by (source, name, version).
package cache

import (
	"sort"
	"strings"
	"sync"

	"github.com/trailofbits/it-depends/dependencies"
	"github.com/trailofbits/it-depends/graph"
)

// PackageCache is a collection of resolved packages, queryable by exact
// identity or by dependency match, and tracking which dependencies have
// been resolved and which packages have been updated by which resolvers.
// Implementations must be safe for concurrent use: the resolution engine
// calls into a cache from multiple worker goroutines at once.
//
// Entries are stored as `any` rather than dependencies.Package because a
// cache holds both ordinary Packages and SourcePackages side by side, the
// same way the Python original's cache holds both interchangeably and tells
// them apart with hasattr(pkg, 'source_repo'); dependencies.PackageOf
// extracts the shared identity from either.
type PackageCache interface {
	// Open and Close bracket a logical session with the cache (e.g.
	// acquiring/releasing a database handle). Callers that only read or
	// write a handful of times may ignore them; the resolution engine calls
	// Open once at startup and Close once at shutdown.
	Open() error
	Close() error

	Len() int
	Packages() []any

	Contains(pkg any) bool

	WasResolved(dep dependencies.Dependency) bool
	SetResolved(dep dependencies.Dependency)

	WasUpdated(pkg any, resolver string) bool
	SetUpdated(pkg any, resolver string)
	UpdatedBy(pkg any) []string

	PackageFullNames() []string
	PackageVersions(packageFullName string) []any

	// Match yields every package in the cache whose (source, name) matches
	// dep.FullName() and whose version satisfies dep.Spec. It performs no
	// resolution of its own — only a lookup against what's already cached.
	Match(dep dependencies.Dependency) []any
	// Get looks up the single package with the exact given identity, or
	// reports found=false.
	Get(source, name string, version dependencies.Version) (pkg any, found bool)
	// LatestMatch returns the highest-versioned package matching dep, or
	// found=false if none match.
	LatestMatch(dep dependencies.Dependency) (pkg any, found bool)

	// Add inserts pkg, unioning its dependency set with any existing entry
	// at the same identity rather than overwriting it. InMemoryPackageCache
	// unions vulnerability sets the same way; SQLCache does not store
	// vulnerabilities.
	Add(pkg any)
	Extend(pkgs []any)

	// UnresolvedDependencies lists, in first-seen order with duplicates
	// removed, every dependency declared by pkgs (or by every package in
	// the cache, if pkgs is nil) that hasn't yet been marked resolved.
	UnresolvedDependencies(pkgs []any) []dependencies.Dependency

	// SourcePackages returns every SourcePackage currently in the cache.
	SourcePackages() []dependencies.SourcePackage

	// ToGraph renders every package and its matched dependencies into a
	// DependencyGraph.
	ToGraph() *graph.DependencyGraph
}

// InMemoryPackageCache is the default PackageCache: a nested map held
// entirely in process memory, with no persistence across runs. It mirrors
// cache.py's InMemoryPackageCache, made genuinely concurrency-safe with a
// mutex — Python's GIL let the original get away without one.
type InMemoryPackageCache struct {
	mu sync.Mutex
	// source -> name -> version string -> package (Package or SourcePackage)
	store map[string]map[string]map[string]any

	resolved map[string]map[string]struct{} // "source:package" -> dep string -> present
	updated  map[string]map[string]struct{} // package.Key() -> resolver name -> present
}

var _ PackageCache = (*InMemoryPackageCache)(nil)

// New returns an empty InMemoryPackageCache.
func New() *InMemoryPackageCache {
	return &InMemoryPackageCache{
		store:    map[string]map[string]map[string]any{},
		resolved: map[string]map[string]struct{}{},
		updated:  map[string]map[string]struct{}{},
	}
}

// Open is a no-op for the in-memory cache; it exists to satisfy
// PackageCache for callers that treat every implementation uniformly.
func (c *InMemoryPackageCache) Open() error { return nil }

// Close is a no-op for the in-memory cache.
func (c *InMemoryPackageCache) Close() error { return nil }

// Len reports the total number of packages across every source and name.
func (c *InMemoryPackageCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lenLocked()
}

func (c *InMemoryPackageCache) lenLocked() int {
	n := 0
	for _, names := range c.store {
		for _, versions := range names {
			n += len(versions)
		}
	}
	return n
}

// Packages returns every package in the cache, in no particular order.
func (c *InMemoryPackageCache) Packages() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]any, 0, c.lenLocked())
	for _, names := range c.store {
		for _, versions := range names {
			for _, pkg := range versions {
				out = append(out, pkg)
			}
		}
	}
	return out
}

// Contains reports whether pkg (matched by its (source, name, version)
// identity) is already present.
func (c *InMemoryPackageCache) Contains(pkg any) bool {
	base := dependencies.PackageOf(pkg)
	_, found := c.Get(base.Source, base.Name, base.Version)
	return found
}

// WasResolved reports whether SetResolved has previously been called for an
// identical dependency (same source, package, spec string, and alias).
func (c *InMemoryPackageCache) WasResolved(dep dependencies.Dependency) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.resolved[dep.FullName()]
	if !ok {
		return false
	}
	_, ok = set[dep.String()]
	return ok
}

// SetResolved marks dep as having been fully expanded into packages.
func (c *InMemoryPackageCache) SetResolved(dep dependencies.Dependency) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := dep.FullName()
	set, ok := c.resolved[key]
	if !ok {
		set = map[string]struct{}{}
		c.resolved[key] = set
	}
	set[dep.String()] = struct{}{}
}

// WasUpdated reports whether resolver has already offered pkg its
// can_update_dependencies/update_dependencies treatment.
func (c *InMemoryPackageCache) WasUpdated(pkg any, resolver string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.updated[dependencies.PackageOf(pkg).Key()]
	if !ok {
		return false
	}
	_, ok = set[resolver]
	return ok
}

// SetUpdated marks pkg as having been processed by resolver's
// update_dependencies step.
func (c *InMemoryPackageCache) SetUpdated(pkg any, resolver string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := dependencies.PackageOf(pkg).Key()
	set, ok := c.updated[key]
	if !ok {
		set = map[string]struct{}{}
		c.updated[key] = set
	}
	set[resolver] = struct{}{}
}

// UpdatedBy returns every resolver name that has updated pkg, sorted.
func (c *InMemoryPackageCache) UpdatedBy(pkg any) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	set := c.updated[dependencies.PackageOf(pkg).Key()]
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// PackageFullNames returns every distinct "source:name" present, sorted.
func (c *InMemoryPackageCache) PackageFullNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	seen := map[string]struct{}{}
	for source, names := range c.store {
		for name := range names {
			seen[source+":"+name] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// PackageVersions returns every known version of the given "source:name"
// package, in no particular order.
func (c *InMemoryPackageCache) PackageVersions(packageFullName string) []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	source, name, ok := strings.Cut(packageFullName, ":")
	if !ok {
		return nil
	}
	versions := c.store[source][name]
	out := make([]any, 0, len(versions))
	for _, pkg := range versions {
		out = append(out, pkg)
	}
	return out
}

// Match yields every cached package whose (source, name) matches dep and
// whose version satisfies dep.Spec.
func (c *InMemoryPackageCache) Match(dep dependencies.Dependency) []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	versions := c.store[dep.Source][dep.Package]
	out := make([]any, 0, len(versions))
	for _, pkg := range versions {
		if dep.Spec == nil || dep.Spec.Matches(dependencies.PackageOf(pkg).Version) {
			out = append(out, pkg)
		}
	}
	return out
}

// Get looks up the exact (source, name, version) identity.
func (c *InMemoryPackageCache) Get(source, name string, version dependencies.Version) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pkg, ok := c.store[source][name][version.String()]
	return pkg, ok
}

// LatestMatch returns the highest-versioned package matching dep.
func (c *InMemoryPackageCache) LatestMatch(dep dependencies.Dependency) (any, bool) {
	matches := c.Match(dep)
	if len(matches) == 0 {
		return nil, false
	}
	latest := matches[0]
	for _, pkg := range matches[1:] {
		if dependencies.PackageOf(pkg).Version.Compare(dependencies.PackageOf(latest).Version) > 0 {
			latest = pkg
		}
	}
	return latest, true
}

// Add inserts pkg, unioning its dependency and vulnerability sets with any
// package already cached at the same identity instead of overwriting it —
// the monotonic merge every resolver's enrichment relies on.
func (c *InMemoryPackageCache) Add(pkg any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	base := dependencies.PackageOf(pkg)
	names, ok := c.store[base.Source]
	if !ok {
		names = map[string]map[string]any{}
		c.store[base.Source] = names
	}
	versions, ok := names[base.Name]
	if !ok {
		versions = map[string]any{}
		names[base.Name] = versions
	}
	versionKey := base.Version.String()
	if existing, ok := versions[versionKey]; ok {
		pkg = mergePackages(existing, pkg)
	}
	versions[versionKey] = pkg
}

// mergePackages unions the dependency, vulnerability, and maintenance state
// of newPkg into existing, preferring existing's concrete type (Package vs
// SourcePackage) so a later plain Package never demotes an already-cached
// SourcePackage.
func mergePackages(existing, newPkg any) any {
	existingBase := dependencies.PackageOf(existing)
	newBase := dependencies.PackageOf(newPkg)
	merged := existingBase.WithDependencies(newBase.Dependencies()...).WithVulnerabilities(newBase.Vulnerabilities()...)
	if m := merged.Maintenance(); m == nil {
		if nm := newBase.Maintenance(); nm != nil {
			merged = merged.WithMaintenance(*nm)
		}
	}
	if sp, ok := dependencies.IsSourcePackage(existing); ok {
		sp.Package = merged
		return sp
	}
	if sp, ok := dependencies.IsSourcePackage(newPkg); ok {
		sp.Package = merged
		return sp
	}
	return merged
}

// Extend adds every package in pkgs.
func (c *InMemoryPackageCache) Extend(pkgs []any) {
	for _, pkg := range pkgs {
		c.Add(pkg)
	}
}

// UnresolvedDependencies lists, deduplicated, every dependency of pkgs (or
// of the whole cache, if pkgs is nil) that hasn't been marked resolved.
func (c *InMemoryPackageCache) UnresolvedDependencies(pkgs []any) []dependencies.Dependency {
	if pkgs == nil {
		pkgs = c.Packages()
	}
	seen := map[string]struct{}{}
	var out []dependencies.Dependency
	for _, pkg := range pkgs {
		for _, dep := range dependencies.PackageOf(pkg).Dependencies() {
			if c.WasResolved(dep) {
				continue
			}
			key := dep.String()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, dep)
		}
	}
	return out
}

// SourcePackages returns every SourcePackage currently cached.
func (c *InMemoryPackageCache) SourcePackages() []dependencies.SourcePackage {
	var out []dependencies.SourcePackage
	for _, pkg := range c.Packages() {
		if sp, ok := dependencies.IsSourcePackage(pkg); ok {
			out = append(out, sp)
		}
	}
	return out
}

// ToGraph renders the cache into a DependencyGraph: one node per package,
// with an edge to every cached package that satisfies each dependency.
func (c *InMemoryPackageCache) ToGraph() *graph.DependencyGraph {
	g := graph.New()
	for _, pkg := range c.Packages() {
		g.AddNode(pkg)
		for _, dep := range dependencies.PackageOf(pkg).Dependencies() {
			for _, matched := range c.Match(dep) {
				g.AddEdge(pkg, matched, dep)
			}
		}
	}
	return g
}
