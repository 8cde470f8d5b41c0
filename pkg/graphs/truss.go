package graphs

import (
	"cmp"
	"math"

	"github.com/l7mp/difflow/pkg/dataflow"
	"github.com/l7mp/difflow/pkg/lattice"
)

// Level is the truss level of an edge: the largest k such that the edge belongs to a subgraph in
// which every edge is part of at least k triangles. Edges in no triangle have level 0.
type Level = dataflow.KV[Edge, uint32]

// labelled is a triangle with the labels of the edges looked up so far.
type labelled struct {
	a, b, c    Node
	ab, ac, bc uint32
}

// Truss computes the truss level of every edge of an undirected graph. Edge orientation and
// duplicates are ignored.
//
// Every edge starts with an unbounded label. In each round, every triangle proposes to each of
// its edges the smaller label of its two other edges, and each edge takes the largest k such
// that at least k of its proposals are at least k. Labels only decrease and settle at the truss
// levels.
func Truss(edges dataflow.Collection[Edge]) dataflow.Collection[Level] {
	edges = Undirected(edges)
	triangles := dataflow.Map(Triangles(edges), func(t Triangle) dataflow.KV[Edge, labelled] {
		return dataflow.Pair(NewEdge(t.B, t.C), labelled{a: t.A, b: t.B, c: t.C})
	})

	start := dataflow.Map(edges, func(e Edge) Level { return dataflow.Pair(e, uint32(math.MaxUint32)) })
	levels := dataflow.Iterate(start, func(inner *dataflow.Scope, labels dataflow.Collection[Level]) dataflow.Collection[Level] {
		byEdge := dataflow.ArrangeByKey(labels)

		withBC := dataflow.JoinCore(dataflow.ArrangeByKey(triangles.Enter(inner)), byEdge,
			func(_ Edge, t labelled, label uint32) (dataflow.KV[Edge, labelled], bool) {
				t.bc = label
				return dataflow.Pair(NewEdge(t.a, t.b), t), true
			})
		withAB := dataflow.JoinCore(dataflow.ArrangeByKey(withBC), byEdge,
			func(_ Edge, t labelled, label uint32) (dataflow.KV[Edge, labelled], bool) {
				t.ab = label
				return dataflow.Pair(NewEdge(t.a, t.c), t), true
			})
		complete := dataflow.JoinCore(dataflow.ArrangeByKey(withAB), byEdge,
			func(_ Edge, t labelled, label uint32) (labelled, bool) {
				t.ac = label
				return t, true
			})

		proposals := dataflow.FlatMap(complete, func(t labelled) []Level {
			return []Level{
				dataflow.Pair(NewEdge(t.a, t.b), min(t.ac, t.bc)),
				dataflow.Pair(NewEdge(t.a, t.c), min(t.ab, t.bc)),
				dataflow.Pair(NewEdge(t.b, t.c), min(t.ab, t.ac)),
			}
		})
		return dataflow.Reduce(proposals, cmp.Compare[uint32], hIndex)
	})

	return withZeroLevels(edges, levels)
}

// hIndex returns the largest k such that at least k of the labels are at least k, walking the
// labels from the largest down with a running total. Labels with a transiently non-positive
// count are not counted.
func hIndex(_ Edge, in []dataflow.Weighted[uint32]) []dataflow.Weighted[uint32] {
	var total uint32
	for i := len(in) - 1; i >= 0; i-- {
		label := in[i].Value
		if total >= label {
			return []dataflow.Weighted[uint32]{{Value: total, Count: 1}}
		}
		if in[i].Count <= 0 {
			continue
		}
		total += uint32(min(in[i].Count, math.MaxUint32))
		if total >= label {
			return []dataflow.Weighted[uint32]{{Value: label, Count: 1}}
		}
	}
	return []dataflow.Weighted[uint32]{{Value: total, Count: 1}}
}

// TrussNested computes the same levels as Truss by peeling. The outer loop holds one copy of an
// edge per level the edge has reached; in round r an inner loop keeps an edge active while it
// is part of more active triangles than its level, and the edges still active at the inner
// fixpoint advance a level.
//
// The inner loop of round r picks up where the one of round r-1 stopped: levels of round r enter
// the inner loop at iteration 1024·r, so the iterations before that replay the earlier rounds
// unchanged.
func TrussNested(edges dataflow.Collection[Edge]) dataflow.Collection[Level] {
	edges = Undirected(edges)
	triangles := Triangles(edges)

	empty := edges.Filter(func(Edge) bool { return false })
	counted := dataflow.Iterate(empty, func(outer *dataflow.Scope, levels dataflow.Collection[Edge]) dataflow.Collection[Edge] {
		triangles := triangles.Enter(outer)

		advance := dataflow.Iterate(edges.Enter(outer), func(inner *dataflow.Scope, active dataflow.Collection[Edge]) dataflow.Collection[Edge] {
			spread := levels.Enter(inner).Delay(func(_ Edge, t lattice.Time) lattice.Time {
				return t.WithInner(1024 * t.Pop().Inner())
			})

			activeBySelf := active.ArrangeBySelf()
			keep := func(k Edge, v Node, _ dataflow.Unit) (dataflow.KV[Edge, Node], bool) { return dataflow.Pair(k, v), true }
			abc := dataflow.Map(triangles.Enter(inner), func(t Triangle) dataflow.KV[Edge, Node] {
				return dataflow.Pair(NewEdge(t.A, t.B), t.C)
			})
			withAB := dataflow.JoinCore(dataflow.ArrangeByKey(abc), activeBySelf, keep)
			acb := dataflow.Map(withAB, func(kv dataflow.KV[Edge, Node]) dataflow.KV[Edge, Node] {
				return dataflow.Pair(NewEdge(kv.Key.Key, kv.Val), kv.Key.Val)
			})
			withAC := dataflow.JoinCore(dataflow.ArrangeByKey(acb), activeBySelf, keep)
			bca := dataflow.Map(withAC, func(kv dataflow.KV[Edge, Node]) dataflow.KV[Edge, Node] {
				return dataflow.Pair(NewEdge(kv.Val, kv.Key.Val), kv.Key.Key)
			})
			withBC := dataflow.JoinCore(dataflow.ArrangeByKey(bca), activeBySelf, keep)

			support := dataflow.FlatMap(withBC, func(kv dataflow.KV[Edge, Node]) []Edge {
				t := Triangle{A: kv.Val, B: kv.Key.Key, C: kv.Key.Val}
				e := t.Edges()
				return e[:]
			})
			return support.Concat(spread.Negate()).Threshold(func(_ Edge, count int64) int64 {
				if count > 0 {
					return 1
				}
				return 0
			})
		})

		return levels.Concat(advance).Consolidate()
	})

	levels := dataflow.Map(dataflow.Count(counted), func(kv dataflow.KV[Edge, int64]) Level {
		return dataflow.Pair(kv.Key, uint32(kv.Val))
	})
	return withZeroLevels(edges, levels)
}

// withZeroLevels adds level 0 for the edges that have no level.
func withZeroLevels(edges dataflow.Collection[Edge], levels dataflow.Collection[Level]) dataflow.Collection[Level] {
	all := dataflow.Map(edges, func(e Edge) dataflow.KV[Edge, dataflow.Unit] { return dataflow.KV[Edge, dataflow.Unit]{Key: e} })
	leveled := dataflow.Map(levels, func(l Level) Edge { return l.Key })
	zero := dataflow.Map(dataflow.Antijoin(all, leveled), func(kv dataflow.KV[Edge, dataflow.Unit]) Level {
		return dataflow.Pair(kv.Key, uint32(0))
	})
	return levels.Concat(zero)
}
