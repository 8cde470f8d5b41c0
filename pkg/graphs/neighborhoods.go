package graphs

import (
	"github.com/l7mp/difflow/pkg/dataflow"
)

// Neighborhoods computes the nodes within a bounded number of hops from a set of roots. Roots
// are (node, steps) pairs; the output holds a (root, node) pair for every node reachable from
// the root along at most steps edges, including the root itself.
func Neighborhoods(edges dataflow.Collection[Edge], roots dataflow.Collection[dataflow.KV[Node, uint32]]) dataflow.Collection[Edge] {
	// (node, (root, steps left))
	start := dataflow.Map(roots, func(r dataflow.KV[Node, uint32]) dataflow.KV[Node, hop] {
		return dataflow.Pair(r.Key, hop{node: r.Key, len: r.Val})
	})
	byNode := dataflow.ArrangeByKey(edges)

	reached := dataflow.Iterate(start, func(inner *dataflow.Scope, x dataflow.Collection[dataflow.KV[Node, hop]]) dataflow.Collection[dataflow.KV[Node, hop]] {
		moving := dataflow.ArrangeByKey(x.Filter(func(r dataflow.KV[Node, hop]) bool { return r.Val.len > 0 }))
		next := dataflow.JoinCore(moving, byNode.Enter(inner), func(_ Node, h hop, dst Node) (dataflow.KV[Node, hop], bool) {
			return dataflow.Pair(dst, hop{node: h.node, len: h.len - 1}), true
		})
		return next.Concat(start.Enter(inner)).Distinct()
	})

	return dataflow.Map(reached, func(r dataflow.KV[Node, hop]) Edge { return NewEdge(r.Val.node, r.Key) }).Distinct()
}
