package graphs

import (
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/l7mp/difflow/pkg/dataflow"
)

// distances runs a breadth-first search for every goal.
func distances(edges *dataflow.ZSet[Edge], goals []Edge) *dataflow.ZSet[dataflow.KV[Edge, uint32]] {
	adj := map[Node][]Node{}
	for _, e := range edges.Elements() {
		adj[e.Key] = append(adj[e.Key], e.Val)
	}
	ret := dataflow.NewZSet[dataflow.KV[Edge, uint32]]()
	for _, g := range goals {
		dist := map[Node]uint32{g.Key: 0}
		queue := []Node{g.Key}
		for len(queue) > 0 {
			n := queue[0]
			queue = queue[1:]
			for _, m := range adj[n] {
				if _, ok := dist[m]; !ok {
					dist[m] = dist[n] + 1
					queue = append(queue, m)
				}
			}
		}
		if d, ok := dist[g.Val]; ok {
			ret.Insert(dataflow.Pair(g, d), 1)
		}
	}
	return ret
}

var path = []Edge{NewEdge(0, 1), NewEdge(1, 2), NewEdge(2, 3), NewEdge(3, 4)}

var _ = Describe("Bijkstra", func() {
	var (
		h     *harness[dataflow.KV[Edge, uint32]]
		goals []Edge
	)

	BeforeEach(func() {
		goals = []Edge{NewEdge(0, 4), NewEdge(2, 7), NewEdge(5, 5), NewEdge(9, 1)}
		h = newHarness(func(s *dataflow.Scope, edges dataflow.Collection[Edge]) dataflow.Collection[dataflow.KV[Edge, uint32]] {
			return Bijkstra(edges, dataflow.NewCollection(s, goals))
		})
	})

	It("should measure a path", func() {
		insertAll(h.edges, path...)
		Expect(h.commit().Equal(zsetOf(
			dataflow.Pair(NewEdge(0, 4), uint32(4)),
			dataflow.Pair(NewEdge(5, 5), uint32(0)),
		))).To(BeTrue())

		h.edges.Insert(NewEdge(1, 4))
		Expect(h.commit().Contains(dataflow.Pair(NewEdge(0, 4), uint32(2)))).To(BeTrue())

		h.edges.Remove(NewEdge(1, 4))
		h.edges.Remove(NewEdge(2, 3))
		Expect(h.commit().Equal(zsetOf(dataflow.Pair(NewEdge(5, 5), uint32(0))))).To(BeTrue())
	})

	It("should match breadth-first search on random graphs", func() {
		r := rand.New(rand.NewSource(17))
		acc := dataflow.NewZSet[Edge]()
		for round := 0; round < 6; round++ {
			for i := 0; i < 8; i++ {
				e := NewEdge(Node(r.Intn(10)), Node(r.Intn(10)))
				if acc.Contains(e) {
					h.edges.Remove(e)
					acc.Insert(e, -1)
				} else {
					h.edges.Insert(e)
					acc.Insert(e, 1)
				}
			}
			got, want := h.commit(), distances(acc, goals)
			Expect(got.Equal(want)).To(BeTrue(), "round %d: got %s, want %s", round, got, want)
		}
	})
})

var _ = Describe("ShortestPaths", func() {
	var h *harness[dataflow.KV[Edge, Edge]]

	BeforeEach(func() {
		h = newHarness(func(s *dataflow.Scope, edges dataflow.Collection[Edge]) dataflow.Collection[dataflow.KV[Edge, Edge]] {
			return ShortestPaths(edges, dataflow.NewCollection(s, []Edge{NewEdge(0, 4), NewEdge(3, 3)}))
		})
	})

	onPath := func(edges ...Edge) *dataflow.ZSet[dataflow.KV[Edge, Edge]] {
		ret := dataflow.NewZSet[dataflow.KV[Edge, Edge]]()
		for _, e := range edges {
			ret.Insert(dataflow.Pair(NewEdge(0, 4), e), 1)
		}
		return ret
	}

	It("should return the edges of the only path", func() {
		insertAll(h.edges, path...)
		Expect(h.commit().Equal(onPath(path...))).To(BeTrue())

		h.edges.Remove(NewEdge(2, 3))
		Expect(h.commit().IsZero()).To(BeTrue())
	})

	It("should return every edge of a diamond", func() {
		insertAll(h.edges, NewEdge(0, 1), NewEdge(0, 2), NewEdge(1, 4), NewEdge(2, 4), NewEdge(4, 5))
		Expect(h.commit().Equal(onPath(NewEdge(0, 1), NewEdge(0, 2), NewEdge(1, 4), NewEdge(2, 4)))).To(BeTrue())

		h.edges.Insert(NewEdge(0, 4))
		Expect(h.commit().Equal(onPath(NewEdge(0, 4)))).To(BeTrue())

		h.edges.Remove(NewEdge(0, 4))
		h.edges.Remove(NewEdge(0, 1))
		Expect(h.commit().Equal(onPath(NewEdge(0, 2), NewEdge(2, 4)))).To(BeTrue())
	})

	It("should keep only the shortest of several paths", func() {
		// 0->1->2->3->4 and 0->5->4
		insertAll(h.edges, path...)
		insertAll(h.edges, NewEdge(0, 5), NewEdge(5, 4))
		Expect(h.commit().Equal(onPath(NewEdge(0, 5), NewEdge(5, 4)))).To(BeTrue())
	})
})
