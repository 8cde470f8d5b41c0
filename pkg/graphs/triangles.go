package graphs

import (
	"cmp"
	"fmt"
	"math"

	"github.com/l7mp/difflow/pkg/dataflow"
)

// Triangle is a triangle of the graph with A < B < C.
type Triangle struct {
	A, B, C Node
}

// String returns "(a, b, c)".
func (t Triangle) String() string { return fmt.Sprintf("(%d, %d, %d)", t.A, t.B, t.C) }

// Edges returns the three edges of the triangle.
func (t Triangle) Edges() [3]Edge {
	return [3]Edge{NewEdge(t.A, t.B), NewEdge(t.A, t.C), NewEdge(t.B, t.C)}
}

const (
	extendSource = 1
	extendTarget = 2
)

// Triangles enumerates the triangles of a graph given by edges oriented from the smaller to the
// larger node; other edges are ignored. Each triangle (a, b, c) is found exactly once, from its
// edge (a, b): the edge is extended either through the out-edges of a or through those of b,
// whichever side proposes fewer candidates, and each candidate is kept if its closing edge
// exists.
func Triangles(edges dataflow.Collection[Edge]) dataflow.Collection[Triangle] {
	edges = edges.Filter(func(e Edge) bool { return e.Key < e.Val })

	asSelf := edges.ArrangeBySelf()
	forward := dataflow.ArrangeByKey(edges)
	reverse := dataflow.ArrangeByKey(dataflow.Map(edges, swap))
	// each node with multiplicity equal to its out-degree
	degrees := dataflow.Map(edges, source).ArrangeBySelf()

	bySource := dataflow.JoinCore(forward, degrees, func(src, dst Node, _ dataflow.Unit) (dataflow.KV[Edge, int], bool) {
		return dataflow.Pair(NewEdge(src, dst), extendSource), true
	})
	byTarget := dataflow.JoinCore(reverse, degrees, func(dst, src Node, _ dataflow.Unit) (dataflow.KV[Edge, int], bool) {
		return dataflow.Pair(NewEdge(src, dst), extendTarget), true
	})

	winners := dataflow.Reduce(bySource.Concat(byTarget), cmp.Compare[int],
		func(_ Edge, in []dataflow.Weighted[int]) []dataflow.Weighted[int] {
			if len(in) != 2 {
				return nil
			}
			side, least := 0, int64(math.MaxInt64)
			for _, w := range in {
				if w.Count < least {
					side, least = w.Value, w.Count
				}
			}
			return []dataflow.Weighted[int]{{Value: side, Count: 1}}
		})

	// extend (a, b) through the out-edges of a and check (b, c)
	fromSource := dataflow.FlatMap(winners, func(w dataflow.KV[Edge, int]) []Edge {
		if w.Val == extendSource {
			return []Edge{w.Key}
		}
		return nil
	})
	viaSource := dataflow.JoinCore(
		dataflow.ArrangeByKey(dataflow.JoinCore(dataflow.ArrangeByKey(fromSource), forward,
			func(a, b, c Node) (dataflow.KV[Edge, Node], bool) {
				return dataflow.Pair(NewEdge(b, c), a), true
			})),
		asSelf,
		func(bc Edge, a Node, _ dataflow.Unit) (Triangle, bool) {
			return Triangle{A: a, B: bc.Key, C: bc.Val}, true
		})

	// extend (a, b) through the out-edges of b and check (a, c)
	fromTarget := dataflow.FlatMap(winners, func(w dataflow.KV[Edge, int]) []Edge {
		if w.Val == extendTarget {
			return []Edge{swap(w.Key)}
		}
		return nil
	})
	viaTarget := dataflow.JoinCore(
		dataflow.ArrangeByKey(dataflow.JoinCore(dataflow.ArrangeByKey(fromTarget), forward,
			func(b, a, c Node) (dataflow.KV[Edge, Node], bool) {
				return dataflow.Pair(NewEdge(a, c), b), true
			})),
		asSelf,
		func(ac Edge, b Node, _ dataflow.Unit) (Triangle, bool) {
			return Triangle{A: ac.Key, B: b, C: ac.Val}, true
		})

	return viaSource.Concat(viaTarget)
}
