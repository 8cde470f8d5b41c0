package visualize

import (
	"github.com/emicklei/dot"

	"github.com/l7mp/difflow/pkg/dataflow"
)

// DotGenerator generates Graphviz DOT diagrams.
type DotGenerator struct{}

// Generate creates a Graphviz DOT diagram with one cluster per iteration scope.
func (d *DotGenerator) Generate(g *Graph) string {
	return BuildDotGraph(g).String()
}

// BuildDotGraph creates a dot.Graph from the visualization graph. Every iteration scope becomes
// a cluster nested in the cluster of its parent.
func BuildDotGraph(g *Graph) *dot.Graph {
	graph := dot.NewGraph(dot.Directed)
	graph.Attr("rankdir", "LR")    // Left to right layout.
	graph.Attr("compound", "true") // Allow edges between clusters.
	graph.Attr("newrank", "true")
	graph.Attr("label", g.Name)
	graph.Attr("labelloc", "t")
	graph.Attr("fontsize", "16")

	clusters := map[string]*dot.Graph{}
	nodes := map[int]dot.Node{}
	for _, s := range g.Scopes {
		// scopes are listed after their parents
		parent, ok := clusters[s.Parent]
		var cluster *dot.Graph
		switch {
		case s.Parent == "" || !ok:
			cluster = graph
		default:
			cluster = parent.Subgraph(ScopeLabel(s.Name), dot.ClusterOption{})
			cluster.Attr("style", "rounded,dashed")
			cluster.Attr("fontname", "helvetica")
		}
		clusters[s.Name] = cluster

		for _, op := range s.Operators {
			nodes[op.ID] = styleDotNode(cluster.Node(nodeID(op.ID)), op)
		}
	}

	for _, e := range g.Edges {
		from, to := nodes[e.From], nodes[e.To]
		edge := graph.Edge(from, to).Attr("fontname", "helvetica").Attr("fontsize", "10")
		switch {
		case e.Feedback:
			edge.Attr("style", "dashed").Attr("color", "blue").Attr("label", "feedback")
		case e.Crossing:
			edge.Attr("color", "gray40")
		}
	}

	return graph
}

func styleDotNode(n dot.Node, op OperatorNode) dot.Node {
	n.Attr("label", nodeLabel(op)).Attr("fontname", "helvetica")
	switch op.Type {
	case dataflow.OpTypeLinear:
		n.Attr("shape", "ellipse").Attr("style", "filled").Attr("fillcolor", "lightgreen")
	case dataflow.OpTypeBilinear:
		n.Attr("shape", "box").Attr("style", "filled,rounded").Attr("fillcolor", "lightblue").
			Attr("color", "darkblue").Attr("penwidth", "2")
	case dataflow.OpTypeNonLinear:
		n.Attr("shape", "box").Attr("style", "filled,rounded").Attr("fillcolor", "lightyellow")
	default:
		n.Attr("shape", "box").Attr("style", "filled").Attr("fillcolor", "lightcyan")
	}
	return n
}
