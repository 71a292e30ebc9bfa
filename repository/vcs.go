package repository

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

// VCS describes a version-control system resolvers can clone from: its
// command name and the URL schemes it's willing to try, in preference
// order. Modeled on vcs.py's VCS/Git classes, trimmed to the one VCS every
// ecosystem in this module actually needs: git.
type VCS struct {
	Name   string
	Cmd    string
	Scheme []string
}

// Git is the only VCS this module resolves against; the Python original
// also stubs out a schemeless "mod" pseudo-VCS for Go's module proxy, which
// this module doesn't need since ecosystem/gomod resolves modules from
// go.mod content rather than by cloning.
var Git = VCS{
	Name:   "Git",
	Cmd:    "git",
	Scheme: []string{"https", "git", "http", "ssh"},
}

// Ping tries each of the VCS's schemes against repo in order (via
// `git ls-remote <scheme>://repo`) and returns the first one that succeeds,
// or "" if none do.
func (v VCS) Ping(ctx context.Context, repo string) string {
	for _, scheme := range v.Scheme {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		cmd := exec.CommandContext(ctx, v.Cmd, "ls-remote", scheme+"://"+repo)
		err := cmd.Run()
		cancel()
		if err == nil {
			return scheme
		}
	}
	return ""
}

// Repository is a VCS root resolved from an import-path-like string, e.g.
// "github.com/btcsuite/btcd" -> repo "https://github.com/btcsuite/btcd".
type Repository struct {
	Repo string
	Root string
	VCS  VCS
}

var githubPattern = regexp.MustCompile(`^(github\.com/[A-Za-z0-9_.\-]+/[A-Za-z0-9_.\-]+)(/[A-Za-z0-9_.\-]+)*$`)

// generalPattern matches a bare host/path ending in a VCS-specific suffix,
// e.g. "example.com/foo/bar.git" — the schemeless fallback case in vcs.py
// that has to Ping to discover which scheme the host actually serves.
var generalPattern = regexp.MustCompile(`^(([a-z0-9\-]+\.)+[a-z0-9.\-]+(:[0-9]+)?(/~?[A-Za-z0-9_.\-]+)+?)\.(git|hg|svn|bzr|fossil)(/~?[A-Za-z0-9_.\-]+)*$`)

// ResolveImportPath turns an import-path-shaped string into a cloneable
// Repository. It covers the two cases this module actually needs —
// github.com paths (used directly, no suffix probing) and generic
// "host/path.git"-shaped paths (probed via VCS.Ping to pick a scheme) — and
// deliberately skips the Python original's dynamic <meta name="go-import">
// discovery for arbitrary custom domains, since every resolver that needs
// VCS resolution in this module targets github.com repositories.
func ResolveImportPath(ctx context.Context, path string) (Repository, error) {
	if m := githubPattern.FindStringSubmatch(path); m != nil {
		root := m[1]
		if strings.HasSuffix(root, ".git") {
			return Repository{}, fmt.Errorf("repository: invalid github.com import path %q", path)
		}
		return Repository{Repo: "https://" + root, Root: root, VCS: Git}, nil
	}
	if m := generalPattern.FindStringSubmatch(path); m != nil {
		root := m[0]
		repoHost := m[1]
		scheme := Git.Ping(ctx, repoHost)
		if scheme == "" {
			scheme = Git.Scheme[0]
		}
		return Repository{Repo: scheme + "://" + repoHost, Root: root, VCS: Git}, nil
	}
	return Repository{}, fmt.Errorf("repository: unable to resolve repository for %q", path)
}
