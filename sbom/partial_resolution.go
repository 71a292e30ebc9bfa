package sbom

import (
	"sort"
	"strings"

	"github.com/trailofbits/it-depends/dependencies"
)

// dependencyEdge is one (package, depends_on) edge committed by some node in
// a PartialResolution's ancestor chain.
type dependencyEdge struct {
	from dependencies.Package
	to   dependencies.Package
}

// partialResolution is one node of the backtracking search: the packages
// newly committed at this node (requiringPackages, addedPackages), the
// PackageSet accumulated so far, and a pointer to the parent node it was
// built from. Ported from resolver.py's PartialResolution.
type partialResolution struct {
	requiringPackages []dependencies.Package // self._packages
	addedPackages     []dependencies.Package // self._dependencies
	packages          *packageSet
	parent            *partialResolution
}

func newPartialResolution(requiringPackages, addedPackages []dependencies.Package, parent *partialResolution) *partialResolution {
	pr := &partialResolution{
		requiringPackages: requiringPackages,
		addedPackages:     addedPackages,
		parent:            parent,
	}
	if parent != nil {
		pr.packages = parent.packages.copy()
	} else {
		pr.packages = newPackageSet()
	}
	for _, p := range requiringPackages {
		pr.packages.add(p)
		if !pr.packages.isValid {
			break
		}
	}
	if pr.packages.isValid {
		for _, p := range addedPackages {
			pr.packages.add(p)
			if !pr.packages.isValid {
				break
			}
		}
	}
	return pr
}

func rootPartialResolution(root dependencies.Package) *partialResolution {
	return newPartialResolution([]dependencies.Package{root}, nil, nil)
}

func (pr *partialResolution) isValid() bool    { return pr.packages.isValid }
func (pr *partialResolution) isComplete() bool { return pr.packages.isComplete }

// add builds the child reached by satisfying a dependency of every package
// in requiredBy with dependsOn, mirroring PartialResolution.add.
func (pr *partialResolution) add(requiredBy []dependencies.Package, dependsOn dependencies.Package) *partialResolution {
	return newPartialResolution(requiredBy, []dependencies.Package{dependsOn}, pr)
}

// edges walks the ancestor chain collecting every (package, depends_on) pair
// committed along the way, matching PartialResolution.dependencies.
func (pr *partialResolution) edges() []dependencyEdge {
	var out []dependencyEdge
	for node := pr; node != nil; node = node.parent {
		addedSorted := append([]dependencies.Package(nil), node.addedPackages...)
		sort.Slice(addedSorted, func(i, j int) bool { return addedSorted[i].Less(addedSorted[j]) })
		for _, to := range addedSorted {
			for _, from := range node.requiringPackages {
				out = append(out, dependencyEdge{from: from, to: to})
			}
		}
	}
	return out
}

// historyKey is a canonical string identifying this node's committed
// PackageSet, used in place of Python's PartialResolution.__hash__/__eq__
// (which compare committed package sets) for the DFS's visited-set.
func (pr *partialResolution) historyKey() string {
	pkgs := pr.packages.packagesSorted()
	keys := make([]string, len(pkgs))
	for i, p := range pkgs {
		keys[i] = p.Key()
	}
	return strings.Join(keys, "|")
}
