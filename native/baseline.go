package native

import (
	"context"

	"github.com/trailofbits/it-depends/dependencies"
	"github.com/trailofbits/it-depends/resolver"
)

// baselinesByName caches each resolver's baseline shared-library set
// (the libraries loaded by a bare sandbox with nothing installed), mirroring
// BASELINES_BY_SOURCE. Guarded by containerLock, same as native.py's single
// _CONTAINER_LOCK.
var baselinesByName = map[string][]dependencies.Dependency{}

func baselineFor(ctx context.Context, r resolver.DependencyResolver) ([]dependencies.Dependency, error) {
	containerLock.Lock()
	if baseline, ok := baselinesByName[r.Name()]; ok {
		containerLock.Unlock()
		return baseline, nil
	}
	containerLock.Unlock()

	c, err := containerFor(ctx, r)
	if err != nil {
		return nil, err
	}
	baseline, err := baselineDependencies(ctx, c)
	if err != nil {
		return nil, err
	}

	containerLock.Lock()
	baselinesByName[r.Name()] = baseline
	containerLock.Unlock()
	return baseline, nil
}

// inBaseline reports whether dep is already present in baseline, so it can
// be excluded as noise inherent to the sandbox rather than caused by pkg.
func inBaseline(dep dependencies.Dependency, baseline []dependencies.Dependency) bool {
	for _, b := range baseline {
		if b.Equal(dep) {
			return true
		}
	}
	return false
}
