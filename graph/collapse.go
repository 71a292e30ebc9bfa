package graph

import (
	"fmt"
	"sort"

	"github.com/trailofbits/it-depends/dependencies"
	"github.com/trailofbits/it-depends/log"
)

// CollapseVersions groups every version of a (source, name) package into a
// single node. When several versions are merged, the merged node's
// dependencies become wildcard-versioned, since a collapsed node no longer
// identifies which version of a dependency was actually used. A (source,
// name) with a single version is kept unchanged, so its dependency specs
// and the edges built from them are not wildcarded. If any of the collapsed instances was a SourcePackage, the
// result is a SourcePackage too (using the first source repo found, logging
// a warning if instances disagree on which repo). The result is memoized:
// calling it again on an already-collapsed graph is a no-op.
func (g *DependencyGraph) CollapseVersions() *DependencyGraph {
	if g.collapsed {
		return g
	}
	out := New()
	byName := g.PackagesByName()

	collapsedByFullName := map[string]any{}
	names := make([][2]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if names[i][0] != names[j][0] {
			return names[i][0] < names[j][0]
		}
		return names[i][1] < names[j][1]
	})

	for _, name := range names {
		source, pkgName := name[0], name[1]
		instances := byName[name]

		depSet := map[string]dependencies.Dependency{}
		for _, inst := range instances {
			for _, d := range dependencies.PackageOf(inst).Dependencies() {
				wildcard := dependencies.NewDependency(d.Source, d.Package, dependencies.WildcardSpec{})
				depSet[wildcard.FullName()] = wildcard
			}
		}
		deps := make([]dependencies.Dependency, 0, len(depSet))
		for _, d := range depSet {
			deps = append(deps, d)
		}

		var collapsed any
		if len(instances) == 1 {
			collapsed = instances[0]
		} else {
			maxVersion := instances[0]
			for _, inst := range instances[1:] {
				if dependencies.PackageOf(inst).Version.Compare(dependencies.PackageOf(maxVersion).Version) > 0 {
					maxVersion = inst
				}
			}
			var sourcePkgs []dependencies.SourcePackage
			for _, inst := range instances {
				if sp, ok := dependencies.IsSourcePackage(inst); ok {
					sourcePkgs = append(sourcePkgs, sp)
				}
			}
			if len(sourcePkgs) > 0 {
				repo := sourcePkgs[0].SourceRepo
				distinct := map[string]struct{}{repo.String(): {}}
				for _, sp := range sourcePkgs[1:] {
					distinct[sp.SourceRepo.String()] = struct{}{}
				}
				if len(distinct) > 1 {
					log.Warnf("package %s:%s is provided by multiple source repositories; collapsing to %s", source, pkgName, repo)
				}
				base := dependencies.NewPackage(source, pkgName, dependencies.PackageOf(maxVersion).Version, deps...)
				collapsed = dependencies.NewSourcePackage(base, repo)
			} else {
				collapsed = dependencies.NewPackage(source, pkgName, dependencies.PackageOf(maxVersion).Version, deps...)
			}
		}
		collapsedByFullName[source+":"+pkgName] = collapsed
		out.AddNode(collapsed)
	}

	for _, key := range out.order {
		pkg := out.nodes[key]
		for _, dep := range dependencies.PackageOf(pkg).Dependencies() {
			if target, ok := collapsedByFullName[dep.FullName()]; ok {
				out.AddEdge(pkg, target, dep)
			}
		}
	}
	out.collapsed = true
	return out
}

// DistanceTo computes the edit distance between this graph and other. When
// normalize is false (the default), 0 means identical and larger values mean
// more different. When normalize is true, the result is in [0,1] with 1.0
// meaning identical. Both graphs are collapsed first if they aren't already.
func (g *DependencyGraph) DistanceTo(other *DependencyGraph, normalize bool) (float64, error) {
	from := g
	if !from.collapsed {
		from = from.CollapseVersions()
	}
	compareFrom := from
	if len(from.roots) == 0 {
		compareFrom = from.FindRoots()
	}

	to := other
	if !to.collapsed {
		to = to.CollapseVersions()
	}
	compareTo := to
	if len(compareTo.roots) == 0 {
		compareTo = compareTo.FindRoots()
	}

	return compareRootedGraphs(compareFrom, compareTo, normalize)
}

func compareRootedGraphs(g1, g2 *DependencyGraph, normalize bool) (float64, error) {
	if len(g1.roots) == 0 || len(g2.roots) == 0 {
		return 0, fmt.Errorf("graph: both graphs must have at least one root")
	}
	nodes1 := map[string]struct{}{}
	for _, key := range g1.order {
		if _, isRoot := g1.roots[key]; !isRoot {
			nodes1[key] = struct{}{}
		}
	}
	nodes2 := map[string]struct{}{}
	for _, key := range g2.order {
		if _, isRoot := g2.roots[key]; !isRoot {
			nodes2[key] = struct{}{}
		}
	}

	var common, notIn2, notIn1 []string
	for key := range nodes1 {
		if _, ok := nodes2[key]; ok {
			common = append(common, key)
		} else {
			notIn2 = append(notIn2, key)
		}
	}
	for key := range nodes2 {
		if _, ok := nodes1[key]; !ok {
			notIn1 = append(notIn1, key)
		}
	}

	distance := 0.0
	for _, key := range common {
		d1 := g1.ShortestPathFromRoot(key)
		d2 := g2.ShortestPathFromRoot(key)
		if d1 != d2 {
			distance += 1.0/float64(minInt(d1, d2)) - 1.0/float64(maxInt(d1, d2))
		}
	}
	for _, key := range notIn2 {
		distance += 1.0 / float64(maxInt(g1.ShortestPathFromRoot(key), 1))
	}
	for _, key := range notIn1 {
		distance += 1.0 / float64(maxInt(g2.ShortestPathFromRoot(key), 1))
	}

	if normalize {
		if distance > 0.0 {
			maxDistance := 0.0
			for _, key := range g1.order {
				maxDistance += float64(maxInt(g1.ShortestPathFromRoot(key), 1))
			}
			for _, key := range g2.order {
				maxDistance += float64(maxInt(g2.ShortestPathFromRoot(key), 1))
			}
			if maxDistance > 0 {
				distance /= maxDistance
			}
		}
		distance = 1.0 - distance
	}
	return distance, nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
