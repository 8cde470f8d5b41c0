// Package graphs implements incremental graph algorithms on top of the dataflow engine.
//
// Every algorithm is a function from input collections to an output collection, to be called
// while building a dataflow. The output is maintained as the inputs change: inserting or
// removing edges yields the corresponding changes of the result, not a recomputation.
//
// Available algorithms:
//   - Connected: connected components by label propagation.
//   - Bijkstra, ShortestPaths: bidirectional breadth-first search between goal pairs, returning
//     distances or the DAG of all shortest paths.
//   - Triangles: triangle enumeration with a per-edge choice of the cheaper extension.
//   - Truss, TrussNested: k-truss decomposition, two ways.
//   - PageRank: bounded-surfer PageRank in integer arithmetic.
//   - Neighborhoods: nodes within a bounded number of hops from a set of roots.
//   - ScoreEdges, PathScores: edges scored by the replies between the people they connect.
package graphs

import (
	"github.com/l7mp/difflow/pkg/dataflow"
)

// Node is a graph node identifier.
type Node = uint32

// Edge is a directed edge from Key to Val.
type Edge = dataflow.KV[Node, Node]

// NewEdge creates an edge.
func NewEdge(src, dst Node) Edge { return Edge{Key: src, Val: dst} }

func swap(e Edge) Edge { return Edge{Key: e.Val, Val: e.Key} }

func source(e Edge) Node { return e.Key }

// Undirected orients every edge from the smaller to the larger node, drops self-loops and
// removes duplicates.
func Undirected(edges dataflow.Collection[Edge]) dataflow.Collection[Edge] {
	oriented := dataflow.Map(edges, func(e Edge) Edge {
		if e.Key > e.Val {
			return swap(e)
		}
		return e
	})
	return oriented.Filter(func(e Edge) bool { return e.Key != e.Val }).Distinct()
}

// Nodes returns the distinct endpoints of edges.
func Nodes(edges dataflow.Collection[Edge]) dataflow.Collection[Node] {
	return dataflow.FlatMap(edges, func(e Edge) []Node { return []Node{e.Key, e.Val} }).Distinct()
}
