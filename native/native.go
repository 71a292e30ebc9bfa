package native

import (
	"context"

	"github.com/trailofbits/it-depends/dependencies"
	"github.com/trailofbits/it-depends/resolver"
)

// GetNativeDependencies installs pkg inside its resolver's sandbox and
// traces the shared libraries it dynamically loads, returning one
// "ubuntu"-sourced Dependency per distinct library path. Returns no
// dependencies (and no error) for a resolver with no DockerSetup, mirroring
// get_native_dependencies's early return when resolver.docker_setup() is
// unset. When useBaseline is true, libraries already present in the bare
// sandbox (loaded by the dynamic linker itself, strace's own machinery,
// etc.) are excluded, matching native.py's use_baseline flag.
func GetNativeDependencies(ctx context.Context, r resolver.DependencyResolver, pkg dependencies.Package, useBaseline bool) ([]dependencies.Dependency, error) {
	if r.DockerSetup() == nil {
		return nil, nil
	}

	container, err := containerFor(ctx, r)
	if err != nil {
		return nil, err
	}

	var baseline []dependencies.Dependency
	if useBaseline {
		baseline, err = baselineFor(ctx, r)
		if err != nil {
			return nil, err
		}
	}

	found, err := packageDependencies(ctx, container, pkg)
	if err != nil {
		return nil, err
	}

	if !useBaseline {
		return found, nil
	}

	out := make([]dependencies.Dependency, 0, len(found))
	for _, dep := range found {
		if !inBaseline(dep, baseline) {
			out = append(out, dep)
		}
	}
	return out, nil
}
