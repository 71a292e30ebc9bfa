// Package resolution runs the work-list fixed-point engine that expands a
// root Dependency, Package, or SourceRepository into the full transitive
// closure of Packages that satisfy it, threading every resolver's work
// through a bounded worker pool.
package resolution

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/trailofbits/it-depends/cache"
	"github.com/trailofbits/it-depends/dependencies"
	"github.com/trailofbits/it-depends/repository"
	"github.com/trailofbits/it-depends/resolver"
	"github.com/trailofbits/it-depends/stats"
)

// Options configures a Resolve call. Nil or zero fields default to an
// in-memory cache, one worker per logical CPU, and no progress reporting.
// DepthLimit has no such default: its zero value makes Resolve return an
// empty repository, so set it to Unbounded to traverse everything.
type Options struct {
	// Cache is the package cache resolvers read from and write to while
	// resolving. Defaults to a fresh cache.New() if nil.
	Cache cache.PackageCache
	// DepthLimit bounds how many dependency hops are traversed from the
	// root. Any negative value, such as resolution.Unbounded, means
	// unbounded. Zero, including the zero value of Options, returns an empty
	// repository immediately.
	DepthLimit int
	// MaxWorkers bounds how many resolve/update tasks run concurrently.
	// Defaults to runtime.NumCPU() if zero or negative.
	MaxWorkers int
	// Collector receives progress notifications. Defaults to
	// stats.NoopCollector{} if nil.
	Collector stats.Collector
}

// Unbounded is the DepthLimit value meaning "traverse every dependency".
const Unbounded = -1

// Resolve expands root (a dependencies.Dependency, dependencies.Package, or
// repository.SourceRepository) into a PackageCache holding every reachable
// Package, mirroring resolution.py's resolve.
func Resolve(ctx context.Context, root any, opts Options) (cache.PackageCache, error) {
	if opts.DepthLimit == 0 {
		return cache.New(), nil
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = runtime.NumCPU()
	}
	if opts.Collector == nil {
		opts.Collector = stats.NoopCollector{}
	}
	c := opts.Cache
	if c == nil {
		c = cache.New()
	}
	if err := c.Open(); err != nil {
		return nil, fmt.Errorf("resolution: opening cache: %w", err)
	}
	defer c.Close()

	e := &engine{
		cache:      c,
		repo:       cache.New(),
		depthLimit: opts.DepthLimit,
		maxWorkers: opts.MaxWorkers,
		collector:  opts.Collector,
		queued:     map[string]struct{}{},
		sem:        semaphore.NewWeighted(int64(opts.MaxWorkers)),
		results:    make(chan taskResult),
	}

	var rootDep dependencies.Dependency
	var rootIsDep bool

	switch v := root.(type) {
	case dependencies.Dependency:
		rootDep = v
		rootIsDep = true
		e.unresolvedDeps = append(e.unresolvedDeps, depthItem[dependencies.Dependency]{item: v, depth: 0})
		e.queued[v.String()] = struct{}{}
	case dependencies.Package:
		e.unupdatedPkgs = append(e.unupdatedPkgs, depthItem[any]{item: v, depth: 0})
	case dependencies.SourcePackage:
		e.unupdatedPkgs = append(e.unupdatedPkgs, depthItem[any]{item: v, depth: 0})
	case repository.SourceRepository:
		found := false
		for _, r := range resolver.All() {
			if !r.CanResolveFromSource(v) {
				continue
			}
			srcPkg, ok, err := r.ResolveFromSource(ctx, v, c)
			if err != nil {
				return nil, fmt.Errorf("resolution: %s.ResolveFromSource: %w", r.Name(), err)
			}
			if !ok {
				continue
			}
			found = true
			e.unupdatedPkgs = append(e.unupdatedPkgs, depthItem[any]{item: srcPkg, depth: 0})
		}
		if !found {
			return nil, fmt.Errorf("resolution: cannot resolve %s from source with any registered resolver", v)
		}
	default:
		return nil, fmt.Errorf("resolution: root must be a Dependency, Package, or SourceRepository, got %T", root)
	}

	start := time.Now()
	err := e.run(ctx, root, rootDep, rootIsDep)
	opts.Collector.AfterRun(time.Since(start), e.repo.Len(), err)
	if err != nil {
		return e.repo, err
	}
	return e.repo, nil
}

type depthItem[T any] struct {
	item  T
	depth int
}

type taskResult struct {
	dep *depResult
	pkg *pkgResult
}

type depResult struct {
	dep      dependencies.Dependency
	packages []dependencies.Package
	depth    int
	err      error
}

type pkgResult struct {
	pkg       any
	was       bool
	updatedBy []string
	depth     int
	err       error
}

// engine holds one Resolve call's mutable state. It is only ever touched
// from the goroutine running run, except for the results channel, which
// worker goroutines write to — so no additional locking is needed around
// the queues themselves.
type engine struct {
	cache      cache.PackageCache
	repo       cache.PackageCache
	depthLimit int
	maxWorkers int
	collector  stats.Collector

	unresolvedDeps []depthItem[dependencies.Dependency]
	unupdatedPkgs  []depthItem[any]
	queued         map[string]struct{}

	sem     *semaphore.Weighted
	results chan taskResult
	inFlight int
}

// run drives the main work-list loop, mirroring resolve's while loop:
// drain the cache to a fixed point, dispatch up to maxWorkers new tasks,
// then harvest whichever completes first.
func (e *engine) run(ctx context.Context, root any, rootDep dependencies.Dependency, rootIsDep bool) error {
	rootPackageKey := ""
	switch root.(type) {
	case dependencies.Package, dependencies.SourcePackage:
		rootPackageKey = dependencies.PackageOf(root).Key()
	}
	isRoot := func(x any) bool {
		if rootPackageKey == "" {
			return false
		}
		return dependencies.PackageOf(x).Key() == rootPackageKey
	}
	depIsRoot := func(d dependencies.Dependency) bool {
		return rootIsDep && d.String() == rootDep.String()
	}

	for len(e.unresolvedDeps) > 0 || len(e.unupdatedPkgs) > 0 || e.inFlight > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.drainFixedPoint(isRoot, depIsRoot)

		for len(e.unupdatedPkgs) > 0 && e.sem.TryAcquire(1) {
			item := e.unupdatedPkgs[0]
			e.unupdatedPkgs = e.unupdatedPkgs[1:]
			e.inFlight++
			go e.updatePackage(ctx, item.item, item.depth)
		}
		for len(e.unresolvedDeps) > 0 && e.sem.TryAcquire(1) {
			item := e.unresolvedDeps[0]
			e.unresolvedDeps = e.unresolvedDeps[1:]
			e.inFlight++
			go e.resolveDep(ctx, item.item, item.depth)
		}

		if e.inFlight == 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res := <-e.results:
			e.inFlight--
			e.sem.Release(1)
			if res.dep != nil {
				if res.dep.err != nil {
					return fmt.Errorf("resolution: resolving %s: %w", res.dep.dep, res.dep.err)
				}
				e.processResolution(res.dep.dep, res.dep.packages, res.dep.depth, false, depIsRoot(res.dep.dep))
			} else {
				if res.pkg.err != nil {
					return fmt.Errorf("resolution: updating %s: %w", dependencies.PackageOf(res.pkg.pkg).Key(), res.pkg.err)
				}
				e.processUpdatedPackage(res.pkg.pkg, res.pkg.depth, res.pkg.updatedBy, res.pkg.was, isRoot(res.pkg.pkg))
			}
		}
	}
	return nil
}

// drainFixedPoint repeatedly scans both queues for entries already
// satisfied by the cache, re-scanning until neither queue changes,
// mirroring resolve's "reached_fixed_point" inner while loop.
func (e *engine) drainFixedPoint(isRoot func(any) bool, depIsRoot func(dependencies.Dependency) bool) {
	for {
		changed := false

		var notUpdated []depthItem[any]
		for _, item := range e.unupdatedPkgs {
			wasUpdatable := false
			pending := false
			for _, r := range resolver.All() {
				if r.CanUpdateDependencies(item.item) {
					wasUpdatable = true
					if !e.cache.WasUpdated(item.item, r.Name()) {
						pending = true
						break
					}
				}
			}
			if pending {
				notUpdated = append(notUpdated, item)
				continue
			}
			pkg := item.item
			if wasUpdatable {
				base := dependencies.PackageOf(pkg)
				if cached, ok := e.cache.Get(base.Source, base.Name, base.Version); ok {
					pkg = cached
				}
			}
			e.processUpdatedPackage(pkg, item.depth, nil, false, isRoot(pkg))
		}
		if len(notUpdated) != len(e.unupdatedPkgs) {
			changed = true
		}
		e.unupdatedPkgs = notUpdated

		var notCached []depthItem[dependencies.Dependency]
		for _, item := range e.unresolvedDeps {
			if !depIsRoot(item.item) && e.cache.WasResolved(item.item) {
				matches := e.cache.Match(item.item)
				pkgs := make([]dependencies.Package, 0, len(matches))
				for _, m := range matches {
					pkgs = append(pkgs, dependencies.PackageOf(m))
				}
				e.processResolution(item.item, pkgs, item.depth, true, depIsRoot(item.item))
			} else {
				notCached = append(notCached, item)
			}
		}
		if len(notCached) != len(e.unresolvedDeps) {
			changed = true
		}
		e.unresolvedDeps = notCached

		if !changed {
			return
		}
	}
}

func (e *engine) resolveDep(ctx context.Context, dep dependencies.Dependency, depth int) {
	start := time.Now()
	r, ok := resolver.ByName(dep.Source)
	var packages []dependencies.Package
	var err error
	if !ok {
		err = fmt.Errorf("no resolver registered for source %q", dep.Source)
	} else {
		packages, err = r.Resolve(ctx, dep)
	}
	e.collector.AfterDependencyResolved(dep.String(), len(packages), time.Since(start), err)
	e.results <- taskResult{dep: &depResult{dep: dep, packages: packages, depth: depth, err: err}}
}

func (e *engine) updatePackage(ctx context.Context, pkg any, depth int) {
	start := time.Now()
	oldKey := depSetKey(dependencies.PackageOf(pkg).Dependencies())
	var updatedBy []string
	var err error
	for _, r := range resolver.All() {
		if !r.CanUpdateDependencies(pkg) {
			continue
		}
		pkg, err = updateOne(ctx, r, pkg)
		if err != nil {
			break
		}
		updatedBy = append(updatedBy, r.Name())
	}
	was := err == nil && depSetKey(dependencies.PackageOf(pkg).Dependencies()) != oldKey
	e.collector.AfterPackageUpdated(dependencies.PackageOf(pkg).Key(), updatedBy, time.Since(start), err)
	e.results <- taskResult{pkg: &pkgResult{pkg: pkg, was: was, updatedBy: updatedBy, depth: depth, err: err}}
}

// updateOne calls r.UpdateDependencies on pkg, preserving a SourcePackage's
// repository if pkg was one (Package.WithDependencies-style resolvers only
// know how to build a plain Package).
func updateOne(ctx context.Context, r resolver.DependencyResolver, pkg any) (any, error) {
	base := dependencies.PackageOf(pkg)
	updated, err := r.UpdateDependencies(ctx, base)
	if err != nil {
		return pkg, err
	}
	if sp, ok := dependencies.IsSourcePackage(pkg); ok {
		sp.Package = updated
		return sp, nil
	}
	return updated, nil
}

func depSetKey(deps []dependencies.Dependency) string {
	strs := make([]string, len(deps))
	for i, d := range deps {
		strs[i] = d.String()
	}
	sort.Strings(strs)
	return fmt.Sprint(strs)
}

// processUpdatedPackage implements resolve's process_updated_package:
// record pkg in the repository, mark it enriched in the cache when it
// genuinely changed, and enqueue any newly-discovered dependencies.
func (e *engine) processUpdatedPackage(pkg any, depth int, updatedBy []string, wasUpdated bool, isRoot bool) {
	e.repo.Add(pkg)
	if _, isSource := dependencies.IsSourcePackage(pkg); !isSource && !isRoot {
		if wasUpdated {
			e.cache.Add(pkg)
		}
		for _, r := range updatedBy {
			e.repo.SetUpdated(pkg, r)
			e.cache.SetUpdated(pkg, r)
		}
	}
	if e.depthLimit >= 0 && depth >= e.depthLimit {
		return
	}
	for _, dep := range dependencies.PackageOf(pkg).Dependencies() {
		key := dep.String()
		if _, seen := e.queued[key]; seen {
			continue
		}
		e.queued[key] = struct{}{}
		e.unresolvedDeps = append(e.unresolvedDeps, depthItem[dependencies.Dependency]{item: dep, depth: depth + 1})
	}
}

// processResolution implements resolve's process_resolution: record dep as
// resolved and enqueue every package it expanded to for update processing.
func (e *engine) processResolution(dep dependencies.Dependency, pkgs []dependencies.Package, depth int, alreadyCached bool, isRoot bool) {
	e.repo.SetResolved(dep)
	if !alreadyCached && !isRoot {
		e.cache.SetResolved(dep)
		for _, p := range pkgs {
			e.cache.Add(p)
		}
	}
	for _, p := range pkgs {
		e.unupdatedPkgs = append(e.unupdatedPkgs, depthItem[any]{item: p, depth: depth})
	}
}
