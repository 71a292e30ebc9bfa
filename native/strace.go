package native

import (
	"context"
	"regexp"
	"strings"

	"github.com/testcontainers/testcontainers-go"

	"github.com/trailofbits/it-depends/dependencies"
)

// straceLibraryPattern pulls the path argument out of an open(2)/openat(2)
// strace line: the first quoted argument of open, or the quoted argument
// after the directory fd of openat.
var straceLibraryPattern = regexp.MustCompile(`^open(at)?\(\s*(?:[^,"]*,\s*)?"((.+?)([^./]+)\.so(\.(.+?))?)".*`)

// traceDependencies runs command (optionally preceded by preCommand) inside
// container under `strace -f -e open,openat` and yields a Dependency for
// every distinct shared-library path it opened, sourced from "ubuntu" so
// the ubuntu resolver can map each file back to the package that owns it.
// Mirrors get_dependencies, minus the stdout-to-tempfile indirection strace.py
// needed only to separate strace's stderr tracing output from the traced
// program's own stdout; testcontainers-go's Exec already gives us strace's
// stream directly.
func traceDependencies(ctx context.Context, container testcontainers.Container, preCommand, command string) ([]dependencies.Dependency, error) {
	full := command
	if preCommand != "" {
		full = preCommand + " > /dev/null 2>/dev/null && " + full
	}
	traced := "strace -e open,openat -f " + full + " 3>&1 1>&2 2>&3"

	out, err := execInContainer(ctx, container, "bash", "-c", traced)
	if err != nil {
		// strace wraps an exiting subprocess, so a nonzero status doesn't
		// mean the trace itself failed; fall through and parse whatever
		// strace produced anyway.
		if out == nil {
			return nil, err
		}
	}

	var deps []dependencies.Dependency
	seen := map[string]bool{}
	for _, line := range strings.Split(string(out), "\n") {
		m := straceLibraryPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		path := m[2]
		if path == "/etc/ld.so.cache" || !strings.HasPrefix(path, "/") || seen[path] {
			continue
		}
		seen[path] = true
		deps = append(deps, dependencies.NewDependency("ubuntu", path, dependencies.SimpleSpec{}))
	}
	return deps, nil
}

func packageDependencies(ctx context.Context, container testcontainers.Container, pkg dependencies.Package) ([]dependencies.Dependency, error) {
	return traceDependencies(
		ctx, container,
		"./install.sh "+pkg.Name+" "+pkg.Version.String(),
		"./run.sh "+pkg.Name,
	)
}

func baselineDependencies(ctx context.Context, container testcontainers.Container) ([]dependencies.Dependency, error) {
	return traceDependencies(ctx, container, "", "./baseline.sh")
}
