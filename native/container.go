package native

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/testcontainers/testcontainers-go"

	"github.com/trailofbits/it-depends/log"
	"github.com/trailofbits/it-depends/resolver"
)

// containersByName caches one built-and-started sandbox container per
// resolver name, mirroring CONTAINERS_BY_SOURCE; containerLock guards both
// this cache and baselinesByName (baseline.go), matching native.py's
// single _CONTAINER_LOCK covering both dicts.
var (
	containerLock  sync.Mutex
	containersByName = map[string]testcontainers.Container{}
)

// containerFor returns the sandbox container for r, building and starting
// it from r.DockerSetup() on first use. Mirrors container_for.
func containerFor(ctx context.Context, r resolver.DependencyResolver) (testcontainers.Container, error) {
	containerLock.Lock()
	defer containerLock.Unlock()

	if c, ok := containersByName[r.Name()]; ok {
		return c, nil
	}

	setup := r.DockerSetup()
	if setup == nil {
		return nil, fmt.Errorf("native: resolver %q does not support native dependency resolution", r.Name())
	}

	archive, err := buildContext(setup)
	if err != nil {
		return nil, err
	}

	log.Debugf("native: building sandbox image for %s", r.Name())
	req := testcontainers.ContainerRequest{
		FromDockerfile: testcontainers.FromDockerfile{
			ContextArchive: archive,
			Dockerfile:     "Dockerfile",
			Repo:           "it-depends-" + r.Name(),
			KeepImage:      true,
		},
		Cmd: []string{"sleep", "infinity"},
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("native: starting sandbox container for %s: %w", r.Name(), err)
	}

	containersByName[r.Name()] = c
	return c, nil
}

// execInContainer runs args inside c and returns its combined output,
// mirroring DockerContainer.run as adapted in ecosystem/ubuntu/docker.go.
func execInContainer(ctx context.Context, c testcontainers.Container, args ...string) ([]byte, error) {
	exitCode, reader, err := c.Exec(ctx, args)
	if err != nil {
		return nil, err
	}
	out, readErr := io.ReadAll(reader)
	if readErr != nil {
		return nil, readErr
	}
	if exitCode != 0 {
		return out, fmt.Errorf("native: command %v exited %d: %s", args, exitCode, out)
	}
	return out, nil
}
