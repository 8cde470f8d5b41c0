package graphs

import (
	"github.com/l7mp/difflow/pkg/dataflow"
	"github.com/l7mp/difflow/pkg/lattice"
)

const (
	// DefaultSurfers is the initial number of surfers per node.
	DefaultSurfers int64 = 6_000_000
	// DefaultReset is the number of surfers injected at every node in every round.
	DefaultReset int64 = 1_000_000
)

// PageRankConfig parametrizes PageRank.
type PageRankConfig struct {
	// Iterations bounds the number of rounds. Zero iterates until the surfer counts stop
	// changing, which in general does not happen when Reset is positive.
	Iterations uint32
	// Init is the number of surfers every node starts with. Zero means DefaultSurfers.
	Init int64
	// Reset is the number of surfers injected at every node in every round. Negative values
	// disable the injection, zero means DefaultReset.
	Reset int64
}

func (c PageRankConfig) surfers() (int64, int64) {
	init, reset := c.Init, c.Reset
	if init == 0 {
		init = DefaultSurfers
	}
	if reset == 0 {
		reset = DefaultReset
	}
	if reset < 0 {
		reset = 0
	}
	return init, reset
}

// PageRank computes a PageRank proportional score per node by simulating surfers in integer
// arithmetic. In every round, five sixths of the surfers at each node are spread evenly over its
// out-edges, rounding down, the rest leave, and every node receives the reset. The output holds
// every node with a multiplicity equal to its surfer count after the last round.
func PageRank(cfg PageRankConfig, nodes dataflow.Collection[Node], edges dataflow.Collection[Edge]) dataflow.Collection[Node] {
	init, reset := cfg.surfers()
	degrees := dataflow.Count(dataflow.Map(edges, source))
	byNode := dataflow.ArrangeByKey(edges)

	return dataflow.Iterative(edges.Scope(), "pagerank", func(inner *dataflow.Scope) dataflow.Collection[Node] {
		nodes := nodes.Enter(inner)
		seed := dataflow.Explode(nodes, func(n Node) []dataflow.Weighted[Node] {
			return []dataflow.Weighted[Node]{{Value: n, Count: init}}
		})
		resets := dataflow.Explode(nodes, func(n Node) []dataflow.Weighted[Node] {
			return []dataflow.Weighted[Node]{{Value: n, Count: reset}}
		})

		ranks := dataflow.NewVariableFrom(seed)

		// (node, degree) with the surfers at node as multiplicity
		weighted := dataflow.JoinCore(dataflow.ArrangeByKey(degrees.Enter(inner)), ranks.ArrangeBySelf(),
			func(n Node, degree int64, _ dataflow.Unit) (dataflow.KV[Node, int64], bool) {
				return dataflow.Pair(n, degree), true
			})
		perEdge := dataflow.Map(weighted.Threshold(func(kv dataflow.KV[Node, int64], surfers int64) int64 {
			if kv.Val <= 0 {
				return 0
			}
			return (5 * surfers) / (6 * kv.Val)
		}), func(kv dataflow.KV[Node, int64]) Node { return kv.Key })

		pushed := dataflow.JoinCore(byNode.Enter(inner), perEdge.ArrangeBySelf(), func(_ Node, dst Node, _ dataflow.Unit) (Node, bool) {
			return dst, true
		}).Concat(resets).Consolidate()

		if cfg.Iterations > 0 {
			bound := uint64(cfg.Iterations)
			pushed = pushed.FilterTime(func(t lattice.Time) bool { return t.Inner() < bound })
		}

		return ranks.Set(pushed)
	})
}
