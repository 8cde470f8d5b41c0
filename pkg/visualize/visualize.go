// Package visualize renders the operator graph of a dataflow worker as diagrams.
package visualize

import (
	"fmt"
	"sort"
	"strings"

	"github.com/l7mp/difflow/pkg/dataflow"
)

// Generator renders a graph in some diagram format.
type Generator interface {
	Generate(g *Graph) string
}

// NewGenerator returns the generator for a format: "dot" or "mermaid".
func NewGenerator(format string) (Generator, error) {
	switch strings.ToLower(format) {
	case "dot", "graphviz":
		return &DotGenerator{}, nil
	case "mermaid":
		return &MermaidGenerator{}, nil
	default:
		return nil, fmt.Errorf("unknown diagram format %q", format)
	}
}

// Graph represents the visualization graph of a dataflow.
type Graph struct {
	Name   string
	Scopes []ScopeNode
	Edges  []Connection
}

// ScopeNode is a scope with the operators created in it.
type ScopeNode struct {
	Name      string
	Parent    string
	Depth     int
	Operators []OperatorNode
}

// OperatorNode is a single operator.
type OperatorNode struct {
	ID   int
	Name string
	Type dataflow.OperatorType
}

// Connection is a data dependency between two operators.
type Connection struct {
	From, To int
	// Feedback marks edges that close an iteration loop: the input of a variable.
	Feedback bool
	// Crossing marks edges that enter or leave a scope.
	Crossing bool
}

// BuildGraph constructs a visualization graph from the plan of a worker.
func BuildGraph(name string, plan dataflow.Plan) *Graph {
	g := &Graph{Name: name, Scopes: make([]ScopeNode, 0, len(plan.Scopes))}

	index := map[string]int{}
	for _, s := range plan.Scopes {
		index[s.Name] = len(g.Scopes)
		g.Scopes = append(g.Scopes, ScopeNode{Name: s.Name, Parent: s.Parent, Depth: s.Depth})
	}

	scopeOf := map[int]string{}
	for _, op := range plan.Operators {
		i, ok := index[op.Scope]
		if !ok {
			continue
		}
		g.Scopes[i].Operators = append(g.Scopes[i].Operators, OperatorNode{ID: op.ID, Name: op.Name, Type: op.Type})
		scopeOf[op.ID] = op.Scope
	}

	for _, op := range plan.Operators {
		for _, in := range op.Inputs {
			if _, ok := scopeOf[in]; !ok {
				continue
			}
			g.Edges = append(g.Edges, Connection{
				From:     in,
				To:       op.ID,
				Feedback: in > op.ID,
				Crossing: scopeOf[in] != scopeOf[op.ID],
			})
		}
	}
	sort.SliceStable(g.Edges, func(i, j int) bool {
		if g.Edges[i].To != g.Edges[j].To {
			return g.Edges[i].To < g.Edges[j].To
		}
		return g.Edges[i].From < g.Edges[j].From
	})

	return g
}

// Operators returns the number of operators in the graph.
func (g *Graph) Operators() int {
	n := 0
	for _, s := range g.Scopes {
		n += len(s.Operators)
	}
	return n
}

// ScopeLabel returns the last segment of a scope path for display.
func ScopeLabel(name string) string {
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[i+1:]
	}
	return name
}

func nodeID(id int) string { return fmt.Sprintf("op%d", id) }

func nodeLabel(op OperatorNode) string { return fmt.Sprintf("%s #%d", op.Name, op.ID) }
