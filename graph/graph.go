// Package graph builds the dependency graph a resolved set of packages
// forms, and compares two such graphs with the edit-distance metric used by
// the CLI's --compare flag. It mirrors the RootedDiGraph/DependencyGraph
// pair in the Python original, specialized directly to dependencies.Package
// instead of staying generic over an arbitrary node/root type pair, since
// this module only ever builds one kind of rooted graph.
package graph

import (
	"fmt"
	"sort"

	"github.com/trailofbits/it-depends/dependencies"
)

func packageKey(pkg any) string {
	switch p := pkg.(type) {
	case dependencies.SourcePackage:
		return p.Key()
	case dependencies.Package:
		return p.Key()
	default:
		panic(fmt.Sprintf("graph: not a Package or SourcePackage: %T", pkg))
	}
}

// DependencyGraph is a directed graph rooted at its SourcePackage nodes: an
// edge u -> v means u declares a dependency satisfied by v. It holds at most
// one edge per ordered pair; adding another replaces its dependency label.
type DependencyGraph struct {
	nodes map[string]any
	order []string
	edges map[string]map[string]dependencies.Dependency
	roots map[string]struct{}

	collapsed bool

	allPairs map[string]map[string]int
	fromRoot map[string]int
}

// New returns an empty DependencyGraph.
func New() *DependencyGraph {
	return &DependencyGraph{
		nodes: map[string]any{},
		edges: map[string]map[string]dependencies.Dependency{},
		roots: map[string]struct{}{},
	}
}

func (g *DependencyGraph) invalidateCaches() {
	g.allPairs = nil
	g.fromRoot = nil
}

// AddNode inserts pkg (a dependencies.Package or dependencies.SourcePackage)
// if it isn't already present, tracking it as a root when it's a
// SourcePackage.
func (g *DependencyGraph) AddNode(pkg any) {
	key := packageKey(pkg)
	if _, ok := g.nodes[key]; ok {
		return
	}
	g.nodes[key] = pkg
	g.order = append(g.order, key)
	if _, ok := pkg.(dependencies.SourcePackage); ok {
		g.roots[key] = struct{}{}
	}
	g.invalidateCaches()
}

// AddEdge records that from depends on to via dep, adding both endpoints as
// nodes first if necessary.
func (g *DependencyGraph) AddEdge(from, to any, dep dependencies.Dependency) {
	g.AddNode(from)
	g.AddNode(to)
	fromKey, toKey := packageKey(from), packageKey(to)
	m, ok := g.edges[fromKey]
	if !ok {
		m = map[string]dependencies.Dependency{}
		g.edges[fromKey] = m
	}
	m[toKey] = dep
	g.invalidateCaches()
}

// Nodes returns every package in the graph, in insertion order.
func (g *DependencyGraph) Nodes() []any {
	out := make([]any, len(g.order))
	for i, k := range g.order {
		out[i] = g.nodes[k]
	}
	return out
}

// Len reports the number of nodes in the graph.
func (g *DependencyGraph) Len() int { return len(g.nodes) }

// SourcePackages returns the graph's roots.
func (g *DependencyGraph) SourcePackages() []dependencies.SourcePackage {
	out := make([]dependencies.SourcePackage, 0, len(g.roots))
	for key := range g.roots {
		out = append(out, g.nodes[key].(dependencies.SourcePackage))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// InDegree returns the number of distinct edges pointing at key.
func (g *DependencyGraph) inDegree(key string) int {
	n := 0
	for _, targets := range g.edges {
		if _, ok := targets[key]; ok {
			n++
		}
	}
	return n
}

// FindRoots returns a copy of this graph whose roots are recomputed as the
// nodes with in-degree zero, ignoring whichever nodes were originally
// SourcePackages. Used when comparing two graphs and one of them has no
// SourcePackage nodes to root at.
func (g *DependencyGraph) FindRoots() *DependencyGraph {
	out := New()
	for _, key := range g.order {
		out.nodes[key] = g.nodes[key]
		out.order = append(out.order, key)
	}
	for from, targets := range g.edges {
		m := map[string]dependencies.Dependency{}
		for to, dep := range targets {
			m[to] = dep
		}
		out.edges[from] = m
	}
	for _, key := range g.order {
		if g.inDegree(key) == 0 {
			out.roots[key] = struct{}{}
		}
	}
	return out
}

func (g *DependencyGraph) ensureAllPairs() {
	if g.allPairs != nil {
		return
	}
	g.allPairs = map[string]map[string]int{}
	for _, start := range g.order {
		g.allPairs[start] = bfs(g.edges, start)
	}
}

func bfs(edges map[string]map[string]dependencies.Dependency, start string) map[string]int {
	dist := map[string]int{start: 0}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for next := range edges[cur] {
			if _, seen := dist[next]; !seen {
				dist[next] = dist[cur] + 1
				queue = append(queue, next)
			}
		}
	}
	return dist
}

// ShortestPathLength returns the shortest path length from fromKey to
// toKey, or -1 if toKey is unreachable.
func (g *DependencyGraph) ShortestPathLength(fromKey, toKey string) int {
	g.ensureAllPairs()
	lengths, ok := g.allPairs[fromKey]
	if !ok {
		return -1
	}
	d, ok := lengths[toKey]
	if !ok {
		return -1
	}
	return d
}

// ShortestPathFromRoot returns the shortest distance from any root to key,
// or -1 if the graph has no roots or key is unreachable from all of them.
func (g *DependencyGraph) ShortestPathFromRoot(key string) int {
	if len(g.roots) == 0 {
		return -1
	}
	if len(g.roots) > 1 {
		best := -1
		for root := range g.roots {
			d := g.ShortestPathLength(root, key)
			if d < 0 {
				continue
			}
			if best < 0 || d < best {
				best = d
			}
		}
		return best
	}
	if g.fromRoot == nil {
		var root string
		for r := range g.roots {
			root = r
		}
		g.fromRoot = bfs(g.edges, root)
	}
	d, ok := g.fromRoot[key]
	if !ok {
		return -1
	}
	return d
}

// Edge describes one edge leaving a package in the graph.
type Edge struct {
	To         any
	Dependency dependencies.Dependency
}

// OutEdges returns every edge leaving pkg, sorted by target key for
// deterministic iteration (DOT/HTML rendering, DFS traversal).
func (g *DependencyGraph) OutEdges(pkg any) []Edge {
	targets := g.edges[packageKey(pkg)]
	keys := make([]string, 0, len(targets))
	for k := range targets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Edge, 0, len(keys))
	for _, k := range keys {
		out = append(out, Edge{To: g.nodes[k], Dependency: targets[k]})
	}
	return out
}

// PackagesByName groups every node by (source, name), across versions.
func (g *DependencyGraph) PackagesByName() map[[2]string][]any {
	ret := map[[2]string][]any{}
	for _, key := range g.order {
		pkg := g.nodes[key]
		base := dependencies.PackageOf(pkg)
		name := [2]string{base.Source, base.Name}
		ret[name] = append(ret[name], pkg)
	}
	return ret
}
