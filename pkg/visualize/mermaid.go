package visualize

import (
	"fmt"
	"strings"

	"github.com/emicklei/dot"

	"github.com/l7mp/difflow/pkg/dataflow"
)

// MermaidGenerator generates Mermaid flowchart diagrams.
type MermaidGenerator struct{}

// Generate creates a Mermaid flowchart titled with the graph name, wrapped in a markdown code
// block. Mermaid output of the dot library has no clusters, so operators of nested scopes carry
// the scope in their label.
func (m *MermaidGenerator) Generate(g *Graph) string {
	var b strings.Builder
	b.WriteString("```mermaid\n")
	if g.Name != "" {
		fmt.Fprintf(&b, "---\ntitle: %s\n---\n", g.Name)
	}
	b.WriteString(dot.MermaidFlowchart(buildMermaidGraph(g), dot.MermaidLeftToRight))
	b.WriteString("```\n")
	return b.String()
}

// buildMermaidGraph creates a flat dot.Graph whose attributes are the ones the Mermaid writer
// understands: shapes are dot.MermaidShape values and styles are CSS.
func buildMermaidGraph(g *Graph) *dot.Graph {
	graph := dot.NewGraph(dot.Directed)

	nodes := map[int]dot.Node{}
	for _, s := range g.Scopes {
		for _, op := range s.Operators {
			label := nodeLabel(op)
			if s.Depth > 1 {
				label = fmt.Sprintf("%s in %s", label, ScopeLabel(s.Name))
			}
			nodes[op.ID] = styleMermaidNode(graph.Node(nodeID(op.ID)), op, label)
		}
	}

	for _, e := range g.Edges {
		edge := graph.Edge(nodes[e.From], nodes[e.To])
		if e.Feedback {
			edge.Attr("label", "feedback")
		}
	}

	return graph
}

func styleMermaidNode(n dot.Node, op OperatorNode, label string) dot.Node {
	n.Attr("label", label)
	switch op.Type {
	case dataflow.OpTypeLinear:
		n.Attr("shape", dot.MermaidShapeStadium).Attr("style", "fill:#90ee90")
	case dataflow.OpTypeBilinear:
		n.Attr("shape", dot.MermaidShapeSubroutine).Attr("style", "fill:#add8e6,stroke:#00008b,stroke-width:2px")
	case dataflow.OpTypeNonLinear:
		n.Attr("shape", dot.MermaidShapeRound).Attr("style", "fill:#ffffe0")
	default:
		n.Attr("shape", dot.MermaidShapeAsymmetric).Attr("style", "fill:#e0ffff")
	}
	return n
}
