// Package repository locates and materializes the source tree a resolver
// needs in order to call can_resolve_from_source/resolve_from_source: either
// a directory already on disk, or a git remote that gets cloned into a
// process-lifetime temp directory.
package repository

import (
	"fmt"
	"os"
	"sync"

	"github.com/go-git/go-git/v5"

	"github.com/trailofbits/it-depends/log"
)

// SourceRepository is a directory containing a package's source, whether
// supplied directly by the caller or cloned from a VCS remote.
type SourceRepository struct {
	Path string
}

// FromFilesystem wraps an existing directory, performing no I/O.
func FromFilesystem(path string) SourceRepository {
	return SourceRepository{Path: path}
}

var cloneDirs struct {
	mu    sync.Mutex
	paths []string
}

func trackForCleanup(path string) {
	cloneDirs.mu.Lock()
	cloneDirs.paths = append(cloneDirs.paths, path)
	cloneDirs.mu.Unlock()
}

// CleanupClones removes every temp directory created by Clone during this
// process's lifetime. The CLI entrypoint defers this once at startup, the
// same role atexit.register(cleanup) plays in the Python original.
func CleanupClones() {
	cloneDirs.mu.Lock()
	defer cloneDirs.mu.Unlock()
	for _, p := range cloneDirs.paths {
		_ = os.RemoveAll(p)
	}
	cloneDirs.paths = nil
}

// Clone shallow-clones gitURL into a fresh temp directory and returns a
// SourceRepository rooted at it. The clone is registered for removal by
// CleanupClones; callers that want it removed sooner may os.RemoveAll it
// themselves.
func Clone(gitURL string) (SourceRepository, error) {
	tmpdir, err := os.MkdirTemp("", "it-depends-repo-")
	if err != nil {
		return SourceRepository{}, fmt.Errorf("repository: creating temp dir for %s: %w", gitURL, err)
	}
	trackForCleanup(tmpdir)

	log.Debugf("cloning %s into %s", gitURL, tmpdir)
	_, err = git.PlainClone(tmpdir, false, &git.CloneOptions{
		URL:   gitURL,
		Depth: 1,
	})
	if err != nil {
		return SourceRepository{}, fmt.Errorf("repository: cloning %s: %w", gitURL, err)
	}
	return SourceRepository{Path: tmpdir}, nil
}

func (r SourceRepository) String() string { return r.Path }

// disableSSHPooling mirrors the Python original's env overrides before
// shelling out to git: no interactive credential prompts, and no ssh
// connection-multiplexing socket left behind in a temp HOME.
func disableSSHPooling() {
	if os.Getenv("GIT_TERMINAL_PROMPT") == "" {
		_ = os.Setenv("GIT_TERMINAL_PROMPT", "0")
	}
	if os.Getenv("GIT_SSH") == "" && os.Getenv("GIT_SSH_COMMAND") == "" {
		_ = os.Setenv("GIT_SSH_COMMAND", "ssh -o ControlMaster=no")
	}
}

func init() {
	disableSSHPooling()
}
