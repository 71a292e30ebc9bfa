package ubuntu

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/testcontainers/testcontainers-go"

	"github.com/trailofbits/it-depends/log"
)

// sandbox is a single long-lived ubuntu:20.04 container with apt-file
// installed, used to run `apt`/`apt-file` the same way docker.py's
// run_command does against its cached _container: build once, exec many
// commands against it. testcontainers-go replaces docker.py's hand-rolled
// InMemoryDockerfile + DockerContainer wrapper around the raw Docker SDK.
var (
	sandboxOnce sync.Once
	sandbox     testcontainers.Container
	sandboxErr  error
)

const sandboxImage = "ubuntu:20.04"

func getSandbox(ctx context.Context) (testcontainers.Container, error) {
	sandboxOnce.Do(func() {
		req := testcontainers.ContainerRequest{
			Image:      sandboxImage,
			Cmd:        []string{"sleep", "infinity"},
			WaitingFor: nil,
		}
		c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: req,
			Started:          true,
		})
		if err != nil {
			sandboxErr = fmt.Errorf("ubuntu: starting sandbox container: %w", err)
			return
		}
		setup := [][]string{
			{"apt-get", "update"},
			{"apt-get", "install", "-y", "apt-file"},
			{"apt-file", "update"},
		}
		for _, cmd := range setup {
			if _, err := execInContainer(ctx, c, cmd); err != nil {
				sandboxErr = fmt.Errorf("ubuntu: provisioning sandbox (%v): %w", cmd, err)
				return
			}
		}
		sandbox = c
	})
	return sandbox, sandboxErr
}

func execInContainer(ctx context.Context, c testcontainers.Container, args []string) ([]byte, error) {
	exitCode, reader, err := c.Exec(ctx, args)
	if err != nil {
		return nil, err
	}
	out, readErr := io.ReadAll(reader)
	if readErr != nil {
		return nil, readErr
	}
	if exitCode != 0 {
		return out, fmt.Errorf("command %v exited %d: %s", args, exitCode, out)
	}
	return out, nil
}

// runCommand runs args inside the shared sandbox container and returns its
// combined output, mirroring docker.py's run_command. It's a var, not a
// plain func, so tests can substitute it the way test_ubuntu.py patches
// docker.run_command, without standing up a real container.
var runCommand = func(ctx context.Context, args ...string) ([]byte, error) {
	c, err := getSandbox(ctx)
	if err != nil {
		return nil, err
	}
	log.Debugf("ubuntu: running %v in sandbox container", args)
	return execInContainer(ctx, c, args)
}

// dockerAvailable reports whether a `docker` executable is on PATH, the same
// check is_available performs before claiming this resolver can run at all.
// Other container CLIs such as podman are not looked for.
func dockerAvailable() bool {
	_, err := exec.LookPath("docker")
	return err == nil
}
