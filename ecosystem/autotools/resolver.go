// Package autotools resolves the native dependencies of an autotools-based
// repository by tracing the AC_CHECK_HEADER/AC_CHECK_LIB/PKG_CHECK_MODULES
// macros expanded out of its configure.ac, then mapping each header/library/
// pkg-config file onto the Ubuntu package that provides it.
package autotools

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/trailofbits/it-depends/dependencies"
	"github.com/trailofbits/it-depends/ecosystem/ubuntu"
	"github.com/trailofbits/it-depends/log"
	"github.com/trailofbits/it-depends/repository"
	"github.com/trailofbits/it-depends/resolver"
)

// Name is this ecosystem's resolver source identity.
const Name = "autotools"

// Resolver classifies the dependencies of autotools-based native packages
// by parsing configure.ac, grounded on autotools.py's AutotoolsResolver.
type Resolver struct{}

func New() *Resolver { return &Resolver{} }

func init() {
	resolver.Register(New())
}

func (r *Resolver) Name() string { return Name }

func (r *Resolver) Description() string {
	return "classifies the dependencies of native/autotools packages by parsing configure.ac"
}

// IsAvailable mirrors AutotoolsResolver.is_available: tracing configure.ac
// needs autoconf (which in turn pulls in aclocal) on PATH.
func (r *Resolver) IsAvailable() resolver.ResolverAvailability {
	if _, err := exec.LookPath("autoconf"); err != nil {
		return resolver.Unavailable("`autoconf` does not appear to be installed; make sure it is installed and in the PATH")
	}
	return resolver.Available()
}

// DockerSetup is nil: this resolver shells out to host tooling (autoconf)
// rather than producing an artifact native.go would sandbox-probe.
func (r *Resolver) DockerSetup() *resolver.DockerSetup { return nil }

// CanResolveFromSource reports whether repo has a configure.ac, matching
// can_resolve_from_source. It does not check that autoconf is installed;
// that is reported by IsAvailable, which the resolution engine does not
// call (only the CLI's --list report does).
func (r *Resolver) CanResolveFromSource(repo repository.SourceRepository) bool {
	_, err := os.Stat(filepath.Join(repo.Path, "configure.ac"))
	return err == nil
}

func (r *Resolver) CanUpdateDependencies(pkg dependencies.Package) bool { return false }

func (r *Resolver) UpdateDependencies(ctx context.Context, pkg dependencies.Package) (dependencies.Package, error) {
	return pkg, nil
}

// Resolve is a no-op: autotools packages are only ever discovered by
// resolving a source checkout, never fetched from a registry by name/spec,
// matching AutotoolsResolver defining no resolve of its own beyond the base
// class's empty default.
func (r *Resolver) Resolve(ctx context.Context, dep dependencies.Dependency) ([]dependencies.Package, error) {
	return nil, nil
}

var dollarVarPattern = regexp.MustCompile(`\$([a-zA-Z_0-9]+)|\$\{([_a-zA-Z0-9]+)\}`)

// ResolveFromSource builds repo's configure.ac into a trace of every
// AC_CHECK_HEADER/AC_CHECK_LIB/PKG_CHECK_MODULES invocation, resolving each
// checked header/library/module to the Ubuntu package that provides it,
// matching AutotoolsResolver.resolve_from_source.
func (r *Resolver) ResolveFromSource(ctx context.Context, repo repository.SourceRepository, cache resolver.PackageMatcher) (dependencies.SourcePackage, bool, error) {
	if !r.CanResolveFromSource(repo) {
		return dependencies.SourcePackage{}, false, nil
	}
	log.Infof("autotools: getting dependencies for %s", repo.Path)

	tmp, err := os.CreateTemp("", "it-depends-configure-*.ac")
	if err != nil {
		return dependencies.SourcePackage{}, false, fmt.Errorf("autotools: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := runIn(repo.Path, "aclocal", "--output="+tmpPath); err != nil {
		return dependencies.SourcePackage{}, false, fmt.Errorf("autotools: aclocal: %w", err)
	}
	confAC, err := os.ReadFile(filepath.Join(repo.Path, "configure.ac"))
	if err != nil {
		return dependencies.SourcePackage{}, false, fmt.Errorf("autotools: reading configure.ac: %w", err)
	}
	if err := appendFile(tmpPath, confAC); err != nil {
		return dependencies.SourcePackage{}, false, fmt.Errorf("autotools: assembling aclocal env: %w", err)
	}

	trace, err := runInCapture(repo.Path, "autoconf",
		"-t", "AC_CHECK_HEADER:$n:$1",
		"-t", "AC_CHECK_LIB:$n:$1.$2",
		"-t", "PKG_CHECK_MODULES:$n:$2",
		"-t", "PKG_CHECK_MODULES_STATIC:$n",
		tmpPath,
	)
	if err != nil {
		return dependencies.SourcePackage{}, false, fmt.Errorf("autotools: tracing configure.ac macros: %w", err)
	}
	configure, err := runInCapture(repo.Path, "autoconf", tmpPath)
	if err != nil {
		return dependencies.SourcePackage{}, false, fmt.Errorf("autotools: expanding configure.ac: %w", err)
	}

	var deps []dependencies.Dependency
	for _, line := range strings.Split(trace, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		log.Debugf("autotools: handling macro %q", line)
		parts := strings.Split(line, ":")
		macro := parts[0]
		args := parts[1:]

		resolved := make([]string, 0, len(args))
		ok := true
		for _, arg := range args {
			v, rerr := replaceVariables(arg, configure)
			if rerr != nil {
				log.Infof("autotools: %v", rerr)
				ok = false
				break
			}
			resolved = append(resolved, v)
		}
		if !ok {
			continue
		}

		dep, derr := expandMacro(ctx, macro, resolved)
		if derr != nil {
			log.Warnf("autotools: %v", derr)
			continue
		}
		if dep != nil {
			deps = append(deps, *dep)
		}
	}

	name, nerr := replaceVariables("$PACKAGE_NAME", configure)
	if nerr != nil {
		log.Warnf("autotools: %v", nerr)
		name = filepath.Base(repo.Path)
	}
	name = strings.Trim(name, `"'`)

	versionStr, verr := replaceVariables("$PACKAGE_VERSION", configure)
	if verr != nil {
		log.Warnf("autotools: %v", verr)
		versionStr = "0.0.0"
	}
	version, perr := dependencies.ParseVersion(strings.Trim(versionStr, `"'`))
	if perr != nil {
		version = dependencies.MustParseVersion("0.0.0")
	}

	pkg := dependencies.NewPackage(Name, name, version, deps...)
	return dependencies.NewSourcePackage(pkg, repo), true, nil
}

// expandMacro builds the Dependency described by one traced macro
// invocation, mirroring _ac_check_header/_ac_check_lib/_pkg_check_modules.
func expandMacro(ctx context.Context, macro string, args []string) (*dependencies.Dependency, error) {
	switch macro {
	case "AC_CHECK_HEADER":
		if len(args) < 1 || args[0] == "" {
			return nil, nil
		}
		log.Infof("AC_CHECK_HEADER %s", args[0])
		pkgName, err := ubuntu.FileToPackage(ctx, regexp.QuoteMeta(args[0]))
		if err != nil {
			return nil, fmt.Errorf("AC_CHECK_HEADER %s: %w", args[0], err)
		}
		return wildcardUbuntuDep(pkgName), nil
	case "AC_CHECK_LIB":
		if len(args) < 1 || args[0] == "" {
			return nil, nil
		}
		libFile, _, found := strings.Cut(args[0], ".")
		if !found {
			libFile = args[0]
		}
		log.Infof("AC_CHECK_LIB %s", libFile)
		pkgName, err := ubuntu.FileToPackage(ctx, "lib"+regexp.QuoteMeta(libFile)+"(.a|.so)")
		if err != nil {
			return nil, fmt.Errorf("AC_CHECK_LIB %s: %w", libFile, err)
		}
		return wildcardUbuntuDep(pkgName), nil
	case "PKG_CHECK_MODULES":
		if len(args) < 1 || args[0] == "" {
			return nil, nil
		}
		fields := strings.Fields(args[0])
		moduleName := fields[0]
		version := "*"
		if len(fields) > 1 {
			version = strings.Join(fields[1:], "")
		}
		log.Infof("PKG_CHECK_MODULES %s.pc, %s", moduleName, version)
		pkgName, err := ubuntu.FileToPackage(ctx, regexp.QuoteMeta(moduleName+".pc"))
		if err != nil {
			return nil, fmt.Errorf("PKG_CHECK_MODULES %s: %w", moduleName, err)
		}
		spec, serr := dependencies.ParseSimpleSpec(version)
		if serr != nil {
			spec = dependencies.SimpleSpec{}
		}
		dep := dependencies.NewDependency("ubuntu", pkgName, spec)
		return &dep, nil
	default:
		return nil, fmt.Errorf("macro not supported: %q", macro)
	}
}

func wildcardUbuntuDep(pkgName string) *dependencies.Dependency {
	dep := dependencies.NewDependency("ubuntu", pkgName, dependencies.SimpleSpec{})
	return &dep
}

// replaceVariables resolves every $VAR/${VAR} reference in token against a
// `var="value"` (or 'value') assignment found in configure. When several
// assignments exist it logs a warning and uses the first; when none exists
// it logs a warning and leaves that reference in place. It returns an error
// only if a "$" is still present in the token afterwards.
func replaceVariables(token, configure string) (string, error) {
	if !strings.Contains(token, "$") {
		return token, nil
	}
	matches := dollarVarPattern.FindAllStringSubmatch(token, -1)
	seen := map[string]bool{}
	var vars []string
	for _, m := range matches {
		name := m[1]
		if name == "" {
			name = m[2]
		}
		if name != "" && !seen[name] {
			seen[name] = true
			vars = append(vars, name)
		}
	}
	for _, v := range vars {
		log.Infof("autotools: trying to find bindings for %s in configure", v)
		solutions := findAssignments(configure, v, '"')
		solutions = append(solutions, findAssignments(configure, v, '\'')...)
		if len(solutions) > 1 {
			log.Warnf("autotools: found several solutions for %s: %v", v, solutions)
		}
		if len(solutions) == 0 {
			log.Warnf("autotools: no solution found for binding %s", v)
			continue
		}
		sol := solutions[0]
		token = strings.ReplaceAll(token, "$"+v, sol)
		token = strings.ReplaceAll(token, "${"+v+"}", sol)
	}
	if strings.Contains(token, "$") {
		return "", fmt.Errorf("could not find a binding for variable/s in %s", token)
	}
	return token, nil
}

func findAssignments(configure, varName string, quote byte) []string {
	pattern := regexp.MustCompile(regexp.QuoteMeta(varName) + `=\s*` + string(quote) + `([^` + string(quote) + `]*)` + string(quote))
	var out []string
	for _, m := range pattern.FindAllStringSubmatch(configure, -1) {
		out = append(out, m[1])
	}
	return out
}

func runIn(dir string, name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %v: %w: %s", name, args, err, out)
	}
	return nil
}

func runInCapture(dir string, name string, args ...string) (string, error) {
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("%s %v: %w", name, args, err)
	}
	return string(out), nil
}

func appendFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(data)
	return err
}
