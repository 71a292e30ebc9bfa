package output

import (
	"github.com/emicklei/dot"

	"github.com/trailofbits/it-depends/cache"
	"github.com/trailofbits/it-depends/dependencies"
)

// ToDot renders c's dependency hierarchy as Graphviz DOT source, mirroring
// cache.py's to_dot: a triangle node per vulnerable package, a rectangle
// per healthy one, an oval per distinct Dependency, with edges
// package -> dependency -> every package in c currently satisfying it
// (matched live against c, same as to_dot's own self.match call, rather
// than against a separately-built graph's fixed edge set). Rooted at c's
// SourcePackages when there are any, at every package otherwise. Uses
// go.mod's github.com/emicklei/dot (also used elsewhere in the retrieval
// pack for exactly this shape of dependency-graph rendering) rather than
// shelling out to a `dot` binary or hand-writing DOT syntax.
func ToDot(c cache.PackageCache) string {
	sources := c.SourcePackages()
	var roots []any
	if len(sources) > 0 {
		for _, sp := range sources {
			roots = append(roots, sp)
		}
	} else {
		roots = c.Packages()
	}

	out := dot.NewGraph(dot.Directed)
	packageNodes := map[string]dot.Node{}
	dependencyNodes := map[string]dot.Node{}

	addPackage := func(pkg any) dot.Node {
		base := dependencies.PackageOf(pkg)
		key := base.Key()
		if n, ok := packageNodes[key]; ok {
			return n
		}
		shape := "rectangle"
		if len(base.Vulnerabilities()) > 0 {
			shape = "triangle"
		}
		n := out.Node(key).Label(base.String()).Attr("shape", shape)
		packageNodes[key] = n
		return n
	}

	stack := append([]any{}, roots...)
	for len(stack) > 0 {
		pkg := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		pNode := addPackage(pkg)
		for _, dep := range dependencies.PackageOf(pkg).Dependencies() {
			depKey := dep.String()
			dNode, alreadyExpanded := dependencyNodes[depKey]
			if !alreadyExpanded {
				dNode = out.Node("dep:" + depKey).Label(depKey).Attr("shape", "oval")
				dependencyNodes[depKey] = dNode
			}
			out.Edge(pNode, dNode)
			if alreadyExpanded {
				continue
			}
			for _, match := range c.Match(dep) {
				_, packageAlreadySeen := packageNodes[dependencies.PackageOf(match).Key()]
				mNode := addPackage(match)
				out.Edge(dNode, mNode)
				if !packageAlreadySeen {
					stack = append(stack, match)
				}
			}
		}
	}

	return out.String()
}
