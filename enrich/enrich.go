// Package enrich cross-references every package already sitting in a
// resolved cache.PackageCache against external vulnerability and
// maintenance-status databases, attaching what it learns without touching
// dependency resolution itself. Grounded on audit.py/maintenance.py, with
// the bounded-concurrency dispatch shape borrowed from the teacher's own
// enricher/baseimage and enricher/license packages (both use
// errgroup.WithContext + SetLimit over one query per item).
package enrich

import (
	"context"
	"runtime"

	"github.com/trailofbits/it-depends/cache"
	"github.com/trailofbits/it-depends/dependencies"
)

// DefaultMaxWorkers matches audit.py/maintenance.py's ThreadPoolExecutor
// default of None, which Python's own executor resolves to
// min(32, os.cpu_count()+4); NumCPU is close enough here without importing
// a constant this module has no other use for.
func DefaultMaxWorkers() int {
	if n := runtime.NumCPU(); n > 0 {
		return n
	}
	return 1
}

// Enricher cross-references every package in c against one external
// information source, merging whatever it learns back into c. Each
// implementation is responsible for its own concurrency bound.
type Enricher interface {
	Name() string
	Enrich(ctx context.Context, c cache.PackageCache) error
}

// rewrap reassembles pkg's concrete type (Package or SourcePackage) around
// updated, so cross-referencing a SourcePackage's vulnerabilities or
// maintenance status never demotes it to a plain Package the way a naive
// `return updated` would. Mirrors cache.go's mergePackages and resolution.go's
// updatePackage, both solving the same "don't drop source_repo" problem.
func rewrap(original any, updated dependencies.Package) any {
	if sp, ok := dependencies.IsSourcePackage(original); ok {
		sp.Package = updated
		return sp
	}
	return updated
}
