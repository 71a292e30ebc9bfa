// Package native probes a resolved package for the shared libraries it
// dynamically loads, by installing it inside a disposable sandbox container
// and tracing its open(2)/openat(2) calls with strace. Grounded on
// native.py, with the per-resolver container cache it shares with
// ecosystem/ubuntu's own apt sandbox (docker.go) replaced by
// testcontainers-go rather than the Python original's hand-rolled
// InMemoryDockerfile/DockerContainer wrapper around the raw Docker SDK.
package native

import (
	"archive/tar"
	"bytes"
	"fmt"
	"strings"

	"github.com/trailofbits/it-depends/resolver"
)

// buildContext renders setup into an in-memory tar archive containing a
// Dockerfile plus its three support scripts, suitable for
// testcontainers-go's FromDockerfile.ContextArchive. Mirrors
// make_dockerfile's string template and its three InMemoryFile attachments.
func buildContext(setup *resolver.DockerSetup) (*bytes.Buffer, error) {
	dockerfile := fmt.Sprintf(`FROM ubuntu:20.04

RUN mkdir -p /workdir

RUN ln -fs /usr/share/zoneinfo/America/New_York /etc/localtime

RUN DEBIAN_FRONTEND=noninteractive apt-get update && apt-get install -y --no-install-recommends strace %s

%s

WORKDIR /workdir

COPY install.sh .
COPY run.sh .
COPY baseline.sh .
RUN chmod +x *.sh
`, strings.Join(setup.AptGetPackages, " "), setup.PostInstall)

	files := map[string]string{
		"Dockerfile":   dockerfile,
		"install.sh":   setup.InstallPackageScript,
		"run.sh":       setup.LoadPackageScript,
		"baseline.sh":  setup.BaselineScript,
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, contents := range files {
		hdr := &tar.Header{
			Name: name,
			Mode: 0o755,
			Size: int64(len(contents)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, fmt.Errorf("native: writing tar header for %s: %w", name, err)
		}
		if _, err := tw.Write([]byte(contents)); err != nil {
			return nil, fmt.Errorf("native: writing tar contents for %s: %w", name, err)
		}
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("native: closing tar archive: %w", err)
	}
	return &buf, nil
}
