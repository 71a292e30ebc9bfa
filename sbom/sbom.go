package sbom

import (
	"fmt"
	"sort"
	"strings"

	"github.com/CycloneDX/cyclonedx-go"
	"github.com/google/uuid"
	"github.com/trailofbits/it-depends/dependencies"
	"github.com/trailofbits/it-depends/purl"
)

// SBOM is one concrete, self-consistent resolution of a root package's
// dependency tree: a set of (package, depends_on) edges plus the root
// packages it was resolved for. Ported from sbom.py's SBOM class.
type SBOM struct {
	dependencies []dependencyEdge
	rootPackages []dependencies.Package
}

func edgeKey(e dependencyEdge) string {
	return e.from.Key() + "->" + e.to.Key()
}

// Edge is one (package, depends_on) pair, exported so callers outside this
// package (such as the output package's tests) can build or inspect an SBOM
// without depending on the backtracker's internal node type.
type Edge struct {
	From dependencies.Package
	To   dependencies.Package
}

// New builds an SBOM directly from a flat edge list and root-package set.
func New(rootPackages []dependencies.Package, edges []Edge) *SBOM {
	out := make([]dependencyEdge, len(edges))
	for i, e := range edges {
		out[i] = dependencyEdge{from: e.From, to: e.To}
	}
	return &SBOM{dependencies: out, rootPackages: append([]dependencies.Package{}, rootPackages...)}
}

// Edges returns the SBOM's (package, depends_on) pairs.
func (s *SBOM) Edges() []Edge {
	out := make([]Edge, len(s.dependencies))
	for i, e := range s.dependencies {
		out[i] = Edge{From: e.from, To: e.to}
	}
	return out
}

// RootPackages returns the packages this SBOM was resolved for.
func (s *SBOM) RootPackages() []dependencies.Package {
	return append([]dependencies.Package{}, s.rootPackages...)
}

// Or unions two SBOMs' edges and root packages, mirroring SBOM.__or__ (used
// by the CLI to fold the resolutions of several root packages together).
func (s *SBOM) Or(other *SBOM) *SBOM {
	seen := map[string]bool{}
	var merged []dependencyEdge
	for _, e := range s.dependencies {
		if !seen[edgeKey(e)] {
			seen[edgeKey(e)] = true
			merged = append(merged, e)
		}
	}
	for _, e := range other.dependencies {
		if !seen[edgeKey(e)] {
			seen[edgeKey(e)] = true
			merged = append(merged, e)
		}
	}
	rootSeen := map[string]bool{}
	var roots []dependencies.Package
	for _, p := range append(append([]dependencies.Package{}, s.rootPackages...), other.rootPackages...) {
		if !rootSeen[p.Key()] {
			rootSeen[p.Key()] = true
			roots = append(roots, p)
		}
	}
	return &SBOM{dependencies: merged, rootPackages: roots}
}

// Packages returns every package this SBOM mentions, root or dependency,
// deduplicated and sorted.
func (s *SBOM) Packages() []dependencies.Package {
	seen := map[string]dependencies.Package{}
	for _, p := range s.rootPackages {
		seen[p.Key()] = p
	}
	for _, e := range s.dependencies {
		seen[e.from.Key()] = e.from
		seen[e.to.Key()] = e.to
	}
	out := make([]dependencies.Package, 0, len(seen))
	for _, p := range seen {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// String renders the comma-separated full names of every package in the
// SBOM, matching SBOM.__str__.
func (s *SBOM) String() string {
	pkgs := s.Packages()
	names := make([]string, len(pkgs))
	for i, p := range pkgs {
		names[i] = p.FullName()
	}
	return strings.Join(names, ", ")
}

// ToCycloneDX renders the SBOM as a CycloneDX 1.5 BOM: one Component per
// package (root packages as APPLICATION, everything else as LIBRARY),
// connected by the same (package, depends_on) edges the backtracker
// committed to, plus the tool/metadata boilerplate sbom.py's to_cyclonedx
// attaches to every document it produces.
func (s *SBOM) ToCycloneDX(toolVersion string) *cyclonedx.BOM {
	bom := cyclonedx.NewBOM()
	// expanded maps a package's cache key to the BOM-ref its Component was
	// given, built up before any Component is appended so that appends never
	// need to invalidate a previously taken address into the slice.
	expanded := map[string]string{}
	var components []cyclonedx.Component
	var rootRef string

	roots := append([]dependencies.Package{}, s.rootPackages...)
	sort.Slice(roots, func(i, j int) bool { return roots[i].FullName() > roots[j].FullName() })

	for _, root := range roots {
		bomRef := root.FullName()
		expanded[root.Key()] = bomRef
		components = append(components, componentFor(root, bomRef, cyclonedx.ComponentTypeApplication))
		rootRef = bomRef
	}

	tools := []cyclonedx.Tool{
		{
			Name:    "it-depends",
			Version: toolVersion,
			ExternalReferences: &[]cyclonedx.ExternalReference{
				{
					URL:  "https://github.com/trailofbits/it-depends",
					Type: cyclonedx.ERTypeWebsite,
				},
			},
		},
	}
	bom.Metadata = &cyclonedx.Metadata{
		Tools: &cyclonedx.ToolsChoice{Tools: &tools},
	}

	type depEdge struct {
		ref     string
		depends string
	}
	var cdxDeps []depEdge

	componentRef := func(pkg dependencies.Package) string {
		if ref, ok := expanded[pkg.Key()]; ok {
			return ref
		}
		bomRef := fmt.Sprintf("%s@%s", pkg.FullName(), pkg.Version.String())
		expanded[pkg.Key()] = bomRef
		components = append(components, componentFor(pkg, bomRef, cyclonedx.ComponentTypeLibrary))
		return bomRef
	}

	edges := append([]dependencyEdge{}, s.dependencies...)
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].from.Key() != edges[j].from.Key() {
			return edges[i].from.Key() < edges[j].from.Key()
		}
		return edges[i].to.Key() < edges[j].to.Key()
	})
	for _, e := range edges {
		fromRef := componentRef(e.from)
		toRef := componentRef(e.to)
		cdxDeps = append(cdxDeps, depEdge{ref: fromRef, depends: toRef})
	}

	bom.Components = &components
	if rootRef != "" {
		for i := range components {
			if components[i].BOMRef == rootRef {
				bom.Metadata.Component = &components[i]
				break
			}
		}
	}

	if len(cdxDeps) > 0 {
		byRef := map[string][]string{}
		var order []string
		for _, d := range cdxDeps {
			if _, ok := byRef[d.ref]; !ok {
				order = append(order, d.ref)
			}
			byRef[d.ref] = append(byRef[d.ref], d.depends)
		}
		deps := make([]cyclonedx.Dependency, 0, len(order))
		for _, ref := range order {
			targets := byRef[ref]
			deps = append(deps, cyclonedx.Dependency{Ref: ref, Dependencies: &targets})
		}
		bom.Dependencies = &deps
	}

	return bom
}

func componentFor(pkg dependencies.Package, bomRef string, typ cyclonedx.ComponentType) cyclonedx.Component {
	c := cyclonedx.Component{
		BOMRef:  bomRef,
		Type:    typ,
		Name:    pkg.Name,
		Version: pkg.Version.String(),
	}
	c.PackageURL = purl.FromResolverSource(pkg.Source, pkg.Name, pkg.Version.String()).String()
	return c
}

// NewBOMRef mints a random CycloneDX serial number (a UUID), for callers that
// need a BOM-level identifier rather than a component bom-ref.
func NewBOMRef() string {
	return uuid.New().String()
}
