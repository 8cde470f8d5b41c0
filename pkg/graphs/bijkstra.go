package graphs

import (
	"cmp"

	"github.com/l7mp/difflow/pkg/dataflow"
)

// hop is the far end of a path together with its length: the source of a path in forward
// searches and the target in reverse ones.
type hop struct {
	node Node
	len  uint32
}

func compareHops(a, b hop) int {
	if c := cmp.Compare(a.len, b.len); c != 0 {
		return c
	}
	return cmp.Compare(a.node, b.node)
}

// shortestHops keeps every value of minimal length.
func shortestHops[K comparable](_ K, in []dataflow.Weighted[hop]) []dataflow.Weighted[hop] {
	var out []dataflow.Weighted[hop]
	for _, w := range in {
		if w.Value.len == in[0].Value.len {
			out = append(out, dataflow.Weighted[hop]{Value: w.Value, Count: 1})
		}
	}
	return out
}

// Bijkstra computes the length of the shortest directed path for every goal pair (source,
// target) whose target is reachable from its source. It grows a forward search from every
// source and a reverse search from every target, one hop per round, and stops extending a goal
// once the two searches have met.
func Bijkstra(edges dataflow.Collection[Edge], goals dataflow.Collection[Edge]) dataflow.Collection[dataflow.KV[Edge, uint32]] {
	goals = goals.Distinct()

	return dataflow.Iterative(edges.Scope(), "bijkstra", func(inner *dataflow.Scope) dataflow.Collection[dataflow.KV[Edge, uint32]] {
		goals := goals.Enter(inner)
		edges := edges.Enter(inner)

		// forward: (node, (src, dist)), reverse: (node, (dst, dist))
		forward := dataflow.NewVariableFrom(dataflow.Map(goals, func(g Edge) dataflow.KV[Node, hop] {
			return dataflow.Pair(g.Key, hop{node: g.Key})
		}).Distinct())
		reverse := dataflow.NewVariableFrom(dataflow.Map(goals, func(g Edge) dataflow.KV[Node, hop] {
			return dataflow.Pair(g.Val, hop{node: g.Val})
		}).Distinct())

		met := dataflow.Join(forward.Collection, reverse.Collection, func(_ Node, f, r hop) dataflow.KV[Edge, uint32] {
			return dataflow.Pair(NewEdge(f.node, r.node), f.len+r.len)
		})
		reached := dataflow.Reduce(dataflow.Semijoin(met, goals), cmp.Compare[uint32],
			func(_ Edge, in []dataflow.Weighted[uint32]) []dataflow.Weighted[uint32] {
				return []dataflow.Weighted[uint32]{{Value: in[0].Value, Count: 1}}
			})

		active := dataflow.Map(reached, func(r dataflow.KV[Edge, uint32]) Edge { return r.Key }).
			Negate().
			Concat(goals).
			Consolidate()

		forward.Set(expand(forward.Collection, edges, dataflow.Map(active, source).Distinct()))
		reverse.Set(expand(reverse.Collection, dataflow.Map(edges, swap), dataflow.Map(active, target).Distinct()))

		return reached
	})
}

func target(e Edge) Node { return e.Val }

// expand extends the searches of the active origins by one hop along edges and keeps the
// shortest distance per (node, origin).
func expand(search dataflow.Collection[dataflow.KV[Node, hop]], edges dataflow.Collection[Edge], active dataflow.Collection[Node]) dataflow.Collection[dataflow.KV[Node, hop]] {
	byOrigin := dataflow.Map(search, func(s dataflow.KV[Node, hop]) dataflow.KV[Node, hop] {
		return dataflow.Pair(s.Val.node, hop{node: s.Key, len: s.Val.len})
	})
	frontier := dataflow.Map(dataflow.Semijoin(byOrigin, active), func(s dataflow.KV[Node, hop]) dataflow.KV[Node, hop] {
		return dataflow.Pair(s.Val.node, hop{node: s.Key, len: s.Val.len})
	})
	next := dataflow.Join(frontier, edges, func(_ Node, h hop, dst Node) dataflow.KV[Node, hop] {
		return dataflow.Pair(dst, hop{node: h.node, len: h.len + 1})
	})

	type reach = dataflow.KV[Node, Node]
	byPair := dataflow.Map(next.Concat(search), func(s dataflow.KV[Node, hop]) dataflow.KV[reach, uint32] {
		return dataflow.Pair(reach{Key: s.Key, Val: s.Val.node}, s.Val.len)
	})
	shortest := dataflow.Reduce(byPair, cmp.Compare[uint32],
		func(_ reach, in []dataflow.Weighted[uint32]) []dataflow.Weighted[uint32] {
			return []dataflow.Weighted[uint32]{{Value: in[0].Value, Count: 1}}
		})
	return dataflow.Map(shortest, func(s dataflow.KV[reach, uint32]) dataflow.KV[Node, hop] {
		return dataflow.Pair(s.Key.Key, hop{node: s.Key.Val, len: s.Val})
	})
}

// ShortestPaths computes, for every goal pair (source, target) with source != target, the
// edges that lie on some shortest directed path from source to target. The result pairs each
// goal with the edges of its shortest-path DAG; goals whose target is unreachable have no
// edges.
//
// The searches track edges instead of nodes: a forward entry ((m1, m2), (src, len)) means that
// the edge m1 -> m2 ends a shortest path of length len from src, and a reverse entry
// ((m1, m2), (dst, len)) that the edge starts a shortest path of length len to dst. Every
// search is seeded with a pseudo-edge (x, x) of length 0. A goal is reached through the edges
// present in both searches with minimal combined length, and the DAG is then unwound from these
// meeting edges towards both ends.
func ShortestPaths(edges dataflow.Collection[Edge], goals dataflow.Collection[Edge]) dataflow.Collection[dataflow.KV[Edge, Edge]] {
	goals = goals.Filter(func(g Edge) bool { return g.Key != g.Val }).Distinct()

	dag := dataflow.Iterative(edges.Scope(), "shortest-paths", func(inner *dataflow.Scope) dataflow.Collection[dataflow.KV[Edge, Edge]] {
		goals := goals.Enter(inner)
		edges := edges.Enter(inner)

		forward := dataflow.NewVariable[dataflow.KV[Edge, hop]](inner)
		reverse := dataflow.NewVariable[dataflow.KV[Edge, hop]](inner)

		// reached ((src, dst), (m1, m2)): src -*-> m1 -> m2 -*-> dst is a shortest path
		type meeting struct {
			len uint32
			mid Edge
		}
		met := dataflow.Join(forward.Collection, reverse.Collection, func(mid Edge, f, r hop) dataflow.KV[Edge, meeting] {
			return dataflow.Pair(NewEdge(f.node, r.node), meeting{len: f.len + r.len, mid: mid})
		})
		reached := dataflow.Reduce(dataflow.Semijoin(met, goals),
			func(a, b meeting) int {
				if c := cmp.Compare(a.len, b.len); c != 0 {
					return c
				}
				if c := cmp.Compare(a.mid.Key, b.mid.Key); c != 0 {
					return c
				}
				return cmp.Compare(a.mid.Val, b.mid.Val)
			},
			func(_ Edge, in []dataflow.Weighted[meeting]) []dataflow.Weighted[Edge] {
				var out []dataflow.Weighted[Edge]
				for _, w := range in {
					if w.Value.len == in[0].Value.len {
						out = append(out, dataflow.Weighted[Edge]{Value: w.Value.mid, Count: 1})
					}
				}
				return out
			})

		active := dataflow.Map(reached, func(r dataflow.KV[Edge, Edge]) Edge { return r.Key }).
			Distinct().
			Negate().
			Concat(goals).
			Consolidate()

		forwardNext := expandEdges(forward.Collection, edges, dataflow.Map(active, source).Distinct())
		reverseNext := dataflow.Map(
			expandEdges(dataflow.Map(reverse.Collection, flipHop), dataflow.Map(edges, swap), dataflow.Map(active, target).Distinct()),
			flipHop)

		// forward DAG: ((src, m2), m1), reverse DAG: ((dst, m1), m2)
		forwardDAG := dataflow.Map(forward.Collection, func(f dataflow.KV[Edge, hop]) dataflow.KV[Edge, Node] {
			return dataflow.Pair(NewEdge(f.Val.node, f.Key.Val), f.Key.Key)
		})
		reverseDAG := dataflow.Map(reverse.Collection, func(r dataflow.KV[Edge, hop]) dataflow.KV[Edge, Node] {
			return dataflow.Pair(NewEdge(r.Val.node, r.Key.Key), r.Key.Val)
		})

		shortest := dataflow.NewVariable[dataflow.KV[Edge, Edge]](inner)
		towardsSource := dataflow.Join(
			dataflow.Map(shortest.Collection, func(s dataflow.KV[Edge, Edge]) dataflow.KV[Edge, Node] {
				return dataflow.Pair(NewEdge(s.Key.Key, s.Val.Key), s.Key.Val)
			}),
			forwardDAG,
			func(k Edge, dst, m0 Node) dataflow.KV[Edge, Edge] {
				return dataflow.Pair(NewEdge(k.Key, dst), NewEdge(m0, k.Val))
			})
		towardsTarget := dataflow.Join(
			dataflow.Map(shortest.Collection, func(s dataflow.KV[Edge, Edge]) dataflow.KV[Edge, Node] {
				return dataflow.Pair(NewEdge(s.Key.Val, s.Val.Val), s.Key.Key)
			}),
			reverseDAG,
			func(k Edge, src, m2 Node) dataflow.KV[Edge, Edge] {
				return dataflow.Pair(NewEdge(src, k.Key), NewEdge(k.Val, m2))
			})
		short := towardsSource.Concat(towardsTarget, reached).Distinct()
		shortest.Set(short)

		forward.Set(forwardNext.Concat(dataflow.Map(goals, func(g Edge) dataflow.KV[Edge, hop] {
			return dataflow.Pair(NewEdge(g.Key, g.Key), hop{node: g.Key})
		})))
		reverse.Set(reverseNext.Concat(dataflow.Map(goals, func(g Edge) dataflow.KV[Edge, hop] {
			return dataflow.Pair(NewEdge(g.Val, g.Val), hop{node: g.Val})
		})))

		return short
	})

	// drop the pseudo-edges
	return dag.Filter(func(p dataflow.KV[Edge, Edge]) bool { return p.Val.Key != p.Val.Val })
}

// flipHop reverses the edge of a search entry.
func flipHop(s dataflow.KV[Edge, hop]) dataflow.KV[Edge, hop] {
	return dataflow.Pair(swap(s.Key), s.Val)
}

// expandEdges extends an edge-tracking search of the active origins by one hop along edges and
// keeps, for every (m2, origin), the entries of minimal length. Entries are ((m1, m2), (origin,
// len)); reverse searches are expanded along reversed edges with their entries flipped.
func expandEdges(search dataflow.Collection[dataflow.KV[Edge, hop]], edges dataflow.Collection[Edge], active dataflow.Collection[Node]) dataflow.Collection[dataflow.KV[Edge, hop]] {
	byOrigin := dataflow.Map(search, func(s dataflow.KV[Edge, hop]) dataflow.KV[Node, hop] {
		return dataflow.Pair(s.Val.node, hop{node: s.Key.Val, len: s.Val.len})
	})
	frontier := dataflow.Map(dataflow.Semijoin(byOrigin, active), func(s dataflow.KV[Node, hop]) dataflow.KV[Node, hop] {
		return dataflow.Pair(s.Val.node, hop{node: s.Key, len: s.Val.len})
	})
	next := dataflow.Join(frontier, edges, func(m1 Node, h hop, m2 Node) dataflow.KV[Edge, hop] {
		return dataflow.Pair(NewEdge(m1, m2), hop{node: h.node, len: h.len + 1})
	})

	// ((m2, origin), (len, m1))
	byEnd := dataflow.Map(next.Concat(search), func(s dataflow.KV[Edge, hop]) dataflow.KV[Edge, hop] {
		return dataflow.Pair(NewEdge(s.Key.Val, s.Val.node), hop{node: s.Key.Key, len: s.Val.len})
	})
	shortest := dataflow.Reduce(byEnd, compareHops, shortestHops[Edge])
	return dataflow.Map(shortest, func(s dataflow.KV[Edge, hop]) dataflow.KV[Edge, hop] {
		return dataflow.Pair(NewEdge(s.Val.node, s.Key.Key), hop{node: s.Key.Val, len: s.Val.len})
	})
}
