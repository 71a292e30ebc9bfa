package output

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/trailofbits/it-depends/dependencies"
	"github.com/trailofbits/it-depends/graph"
)

// htmlTemplate embeds a vis.js network viewer, ported verbatim (structure
// and styling) from it_depends/html.py's TEMPLATE; $NODES/$EDGES are
// substituted with JSON (the Python original substitutes a dict repr,
// which is valid JS object-literal syntax only by the coincidence of
// Python and JS sharing quoting rules — JSON is the equivalent, portable
// choice here).
const htmlTemplate = `<html>
<head>
<style type="text/css">
mynetwork {
    width: 100%;
    height: 100%;
    border: 1px solid lightgray;
}
</style>

<link rel="stylesheet" href="https://cdnjs.cloudflare.com/ajax/libs/vis/4.16.1/vis.css" type="text/css" />
<script type="text/javascript" src="https://cdnjs.cloudflare.com/ajax/libs/vis/4.16.1/vis-network.min.js"> </script>
<center>
<h1>Dependency Graph</h1>
</center>
</head>


<body>
<div id = "mynetwork"></div>

<script type="text/javascript">

var edges;
var nodes;
var network;
var container;
var options, data;

function drawGraph() {
    var container = document.getElementById('mynetwork');

    nodes = new vis.DataSet($NODES);
    edges = new vis.DataSet($EDGES);

    data = {nodes: nodes, edges: edges};

    const options = {
        manipulation: false,
        height: "90%",
        physics: {
            hierarchicalRepulsion: {
              nodeDistance: 300,
            },
          },
        edges: {
            color: {
                inherit: false
            },
        },
        layout: {
            improvedLayout: false
        }
    };

    network = new vis.Network(container, data, options);
    return network;
}

drawGraph();

</script>
</body>
</html>
`

type visNode struct {
	ID          int    `json:"id"`
	Label       string `json:"label"`
	Shape       string `json:"shape,omitempty"`
	Color       string `json:"color,omitempty"`
	BorderWidth int    `json:"borderWidth,omitempty"`
}

type visEdge struct {
	From  int    `json:"from"`
	To    int    `json:"to"`
	Shape string `json:"shape"`
	Label string `json:"label,omitempty"`
}

// ToHTML renders g as a self-contained vis.js network page, mirroring
// graph_to_html. When collapseVersions is true (the Python default), g is
// first collapsed with CollapseVersions and dependency-edge labels omit
// the version constraint.
func ToHTML(g *graph.DependencyGraph, collapseVersions bool) (string, error) {
	if collapseVersions {
		g = g.CollapseVersions()
	}

	nodeKeys := make([]string, 0, g.Len())
	for _, pkg := range g.Nodes() {
		nodeKeys = append(nodeKeys, dependencies.PackageOf(pkg).Key())
	}
	sort.Strings(nodeKeys)

	nodeIDs := map[string]int{}
	packagesByKey := map[string]any{}
	for _, pkg := range g.Nodes() {
		packagesByKey[dependencies.PackageOf(pkg).Key()] = pkg
	}
	for i, key := range nodeKeys {
		nodeIDs[key] = i
	}

	var nodes []visNode
	var edges []visEdge
	for _, key := range nodeKeys {
		pkg := packagesByKey[key]
		base := dependencies.PackageOf(pkg)
		n := visNode{ID: nodeIDs[key], Label: base.FullName() + "@" + base.Version.String()}
		if _, ok := dependencies.IsSourcePackage(pkg); ok {
			n.Shape = "square"
			n.Color = "red"
			n.BorderWidth = 4
		}
		nodes = append(nodes, n)

		for _, edge := range g.OutEdges(pkg) {
			toKey := dependencies.PackageOf(edge.To).Key()
			toID, ok := nodeIDs[toKey]
			if !ok {
				continue
			}
			var label string
			if collapseVersions {
				label = edge.Dependency.FullName()
			} else {
				label = edge.Dependency.String()
			}
			e := visEdge{From: nodeIDs[key], To: toID, Shape: "dot"}
			if label != dependencies.PackageOf(edge.To).FullName() {
				e.Label = label
			}
			edges = append(edges, e)
		}
	}

	nodesJSON, err := json.Marshal(nodes)
	if err != nil {
		return "", err
	}
	edgesJSON, err := json.Marshal(edges)
	if err != nil {
		return "", err
	}

	out := strings.Replace(htmlTemplate, "$NODES", string(nodesJSON), 1)
	out = strings.Replace(out, "$EDGES", string(edgesJSON), 1)
	return out, nil
}
