// Package sbom resolves one concrete, self-consistent set of package
// versions out of an already-populated cache.PackageCache (the SBOM
// backtracker) and renders the result as a CycloneDX document, grounded on
// resolver.py's PackageSet/PartialResolution/resolve_sbom and sbom.py's SBOM.
package sbom

import (
	"sort"

	"github.com/trailofbits/it-depends/dependencies"
)

type packageKey struct {
	name   string
	source string
}

func keyOf(pkg dependencies.Package) packageKey {
	return packageKey{name: pkg.Name, source: pkg.Source}
}

// unsatisfied tracks every Dependency still outstanding for one (source,
// name) pair, together with the packages that declared it.
type unsatisfied struct {
	dep      dependencies.Dependency
	required map[string]dependencies.Package // requiring package Key() -> package
}

// packageSet is the committed, versioned package set of one PartialResolution
// node: at most one version per (source, name), plus the residual unsatisfied
// dependency map, ported from resolver.py's PackageSet.
type packageSet struct {
	packages    map[packageKey]dependencies.Package
	unsatisfied map[packageKey]map[string]*unsatisfied // dep.String() -> entry
	isValid     bool
	isComplete  bool
}

func newPackageSet() *packageSet {
	return &packageSet{
		packages:    map[packageKey]dependencies.Package{},
		unsatisfied: map[packageKey]map[string]*unsatisfied{},
		isValid:     true,
		isComplete:  true,
	}
}

func (s *packageSet) copy() *packageSet {
	out := &packageSet{
		packages:    make(map[packageKey]dependencies.Package, len(s.packages)),
		unsatisfied: make(map[packageKey]map[string]*unsatisfied, len(s.unsatisfied)),
		isValid:     s.isValid,
		isComplete:  s.isComplete,
	}
	for k, v := range s.packages {
		out.packages[k] = v
	}
	for k, deps := range s.unsatisfied {
		cp := make(map[string]*unsatisfied, len(deps))
		for depStr, u := range deps {
			required := make(map[string]dependencies.Package, len(u.required))
			for rk, rv := range u.required {
				required[rk] = rv
			}
			cp[depStr] = &unsatisfied{dep: u.dep, required: required}
		}
		out.unsatisfied[k] = cp
	}
	return out
}

// add merges pkg into the set, mirroring PackageSet.add: a conflicting
// version at the same (source, name) invalidates the whole set, resolving
// any outstanding dependency that pkg's version now satisfies and recording
// any of pkg's own dependencies not yet present as newly unsatisfied.
func (s *packageSet) add(pkg dependencies.Package) {
	key := keyOf(pkg)
	if existing, ok := s.packages[key]; ok && existing.Version.String() != pkg.Version.String() {
		s.isValid = false
	}
	if !s.isValid {
		return
	}
	s.packages[key] = pkg

	if deps, ok := s.unsatisfied[key]; ok {
		for depStr, u := range deps {
			if u.dep.Match(pkg) {
				delete(deps, depStr)
			}
		}
		if len(deps) == 0 {
			delete(s.unsatisfied, key)
		}
	}

	for _, dep := range pkg.Dependencies() {
		depKey := packageKey{name: dep.Package, source: dep.Source}
		if satisfiedBy, ok := s.packages[depKey]; !ok {
			deps, ok := s.unsatisfied[depKey]
			if !ok {
				deps = map[string]*unsatisfied{}
				s.unsatisfied[depKey] = deps
			}
			u, ok := deps[dep.String()]
			if !ok {
				u = &unsatisfied{dep: dep, required: map[string]dependencies.Package{}}
				deps[dep.String()] = u
			}
			u.required[pkg.Key()] = pkg
		} else if !dep.Match(satisfiedBy) {
			s.isValid = false
			break
		}
	}

	s.isComplete = s.isValid && len(s.unsatisfied) == 0
}

// unsatisfiedGroup is one outstanding dependency requirement, possibly
// combining several Dependencies that target the same (source, name) into a
// single conjunction (the Python original's CompoundSpec).
type unsatisfiedGroup struct {
	dep        dependencies.Dependency
	requiredBy []dependencies.Package
}

// unsatisfiedDependencies lists every outstanding requirement, smallest
// requiring-set first, matching PackageSet.unsatisfied_dependencies's sort
// key of (len(deps), package key).
func (s *packageSet) unsatisfiedDependencies() []unsatisfiedGroup {
	keys := make([]packageKey, 0, len(s.unsatisfied))
	for k := range s.unsatisfied {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		li, lj := len(s.unsatisfied[keys[i]]), len(s.unsatisfied[keys[j]])
		if li != lj {
			return li < lj
		}
		if keys[i].name != keys[j].name {
			return keys[i].name < keys[j].name
		}
		return keys[i].source < keys[j].source
	})

	var out []unsatisfiedGroup
	for _, key := range keys {
		deps := s.unsatisfied[key]
		if len(deps) == 0 {
			continue
		}
		if len(deps) == 1 {
			for _, u := range deps {
				out = append(out, unsatisfiedGroup{dep: u.dep, requiredBy: requiringPackages(u)})
			}
			continue
		}
		// Several requirements target the same package: combine their specs
		// with a conjunction (VersionSpec.Union already implements AND
		// semantics for this purpose) and union their requiring packages.
		var combined dependencies.VersionSpec
		seen := map[string]dependencies.Package{}
		var depSource, depPackage string
		for _, u := range deps {
			depSource, depPackage = u.dep.Source, u.dep.Package
			if combined == nil {
				combined = u.dep.Spec
			} else {
				combined = combined.Union(u.dep.Spec)
			}
			for rk, rv := range u.required {
				seen[rk] = rv
			}
		}
		dep := dependencies.NewDependency(depSource, depPackage, combined)
		var requiredBy []dependencies.Package
		for _, p := range seen {
			requiredBy = append(requiredBy, p)
		}
		sort.Slice(requiredBy, func(i, j int) bool { return requiredBy[i].Less(requiredBy[j]) })
		out = append(out, unsatisfiedGroup{dep: dep, requiredBy: requiredBy})
	}
	return out
}

func requiringPackages(u *unsatisfied) []dependencies.Package {
	out := make([]dependencies.Package, 0, len(u.required))
	for _, p := range u.required {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// packagesSorted returns every package committed to the set, sorted for
// deterministic iteration.
func (s *packageSet) packagesSorted() []dependencies.Package {
	out := make([]dependencies.Package, 0, len(s.packages))
	for _, p := range s.packages {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}
