package graphs

import (
	"cmp"
	"math/bits"

	"github.com/l7mp/difflow/pkg/dataflow"
	"github.com/l7mp/difflow/pkg/lattice"
)

// Connected labels every node with the smallest node of its connected component, treating edges
// as undirected. The output holds one (node, label) pair per node.
//
// Each node starts out as its own label, but self-labels are injected at an iteration
// proportional to the bit length of the node, so that small labels get a head start and large
// ones are mostly overtaken before they would start to spread.
func Connected(nodes dataflow.Collection[Node], edges dataflow.Collection[Edge]) dataflow.Collection[dataflow.KV[Node, Node]] {
	forward := dataflow.ArrangeByKey(edges)
	reverse := dataflow.ArrangeByKey(dataflow.Map(edges, swap))

	return dataflow.Iterative(edges.Scope(), "connected", func(inner *dataflow.Scope) dataflow.Collection[dataflow.KV[Node, Node]] {
		self := dataflow.Map(nodes, func(n Node) dataflow.KV[Node, Node] { return dataflow.Pair(n, n) }).
			Enter(inner).
			Delay(func(kv dataflow.KV[Node, Node], t lattice.Time) lattice.Time {
				return t.WithInner(t.Inner() + 256*uint64(bits.Len32(kv.Key)))
			})

		labels := dataflow.NewVariable[dataflow.KV[Node, Node]](inner)
		byNode := dataflow.ArrangeByKey(labels.Collection)
		propagate := func(_ Node, label, dst Node) (dataflow.KV[Node, Node], bool) {
			return dataflow.Pair(dst, label), true
		}
		fwd := dataflow.JoinCore(byNode, forward.Enter(inner), propagate)
		rev := dataflow.JoinCore(byNode, reverse.Enter(inner), propagate)

		result := dataflow.Reduce(self.Concat(fwd, rev), cmp.Compare[Node],
			func(_ Node, in []dataflow.Weighted[Node]) []dataflow.Weighted[Node] {
				return []dataflow.Weighted[Node]{{Value: in[0].Value, Count: 1}}
			})
		return labels.Set(result)
	})
}
