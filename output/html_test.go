package output

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/trailofbits/it-depends/dependencies"
	"github.com/trailofbits/it-depends/graph"
)

func TestToHTMLEmbedsNodesAndEdges(t *testing.T) {
	dep := dependencies.NewDependency(testSource, "libb", dependencies.SimpleSpec{})
	root := dependencies.NewSourcePackage(
		dependencies.NewPackage(testSource, "app", dependencies.MustParseVersion("1.0.0"), dep),
		stringerRepo("/tmp/app"),
	)
	libb := dependencies.NewPackage(testSource, "libb", dependencies.MustParseVersion("2.0.0"))

	g := graph.New()
	g.AddEdge(root, libb, dep)

	out, err := ToHTML(g, false)
	if err != nil {
		t.Fatalf("ToHTML error: %v", err)
	}

	if !strings.Contains(out, "vis.DataSet") {
		t.Fatalf("expected the vis.js template to be present, got:\n%s", out)
	}

	nodesStart := strings.Index(out, "nodes = new vis.DataSet(") + len("nodes = new vis.DataSet(")
	nodesEnd := strings.Index(out[nodesStart:], ");") + nodesStart
	var nodes []visNode
	if err := json.Unmarshal([]byte(out[nodesStart:nodesEnd]), &nodes); err != nil {
		t.Fatalf("failed to decode embedded nodes JSON: %v\n%s", err, out[nodesStart:nodesEnd])
	}
	if len(nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d: %+v", len(nodes), nodes)
	}

	var rootNode *visNode
	for i := range nodes {
		if strings.HasPrefix(nodes[i].Label, testSource+":app@") {
			rootNode = &nodes[i]
		}
	}
	if rootNode == nil {
		t.Fatalf("expected a node labeled for the root package, got %+v", nodes)
	}
	if rootNode.Shape != "square" || rootNode.Color != "red" {
		t.Fatalf("expected the source package to be styled as a red square, got %+v", rootNode)
	}

	edgesStart := strings.Index(out, "edges = new vis.DataSet(") + len("edges = new vis.DataSet(")
	edgesEnd := strings.Index(out[edgesStart:], ");") + edgesStart
	var edges []visEdge
	if err := json.Unmarshal([]byte(out[edgesStart:edgesEnd]), &edges); err != nil {
		t.Fatalf("failed to decode embedded edges JSON: %v\n%s", err, out[edgesStart:edgesEnd])
	}
	if len(edges) != 1 {
		t.Fatalf("expected 1 edge, got %d: %+v", len(edges), edges)
	}
}
