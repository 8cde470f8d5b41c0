package graphs

import (
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/l7mp/difflow/pkg/dataflow"
)

// within lists the nodes at most steps hops away from each root.
func within(edges *dataflow.ZSet[Edge], roots []dataflow.KV[Node, uint32]) *dataflow.ZSet[Edge] {
	adj := map[Node][]Node{}
	for _, e := range edges.Elements() {
		adj[e.Key] = append(adj[e.Key], e.Val)
	}
	ret := dataflow.NewZSet[Edge]()
	for _, r := range roots {
		seen := map[Node]bool{r.Key: true}
		frontier := []Node{r.Key}
		for step := uint32(0); step < r.Val; step++ {
			next := []Node{}
			for _, n := range frontier {
				for _, m := range adj[n] {
					if !seen[m] {
						seen[m] = true
						next = append(next, m)
					}
				}
			}
			frontier = next
		}
		for n := range seen {
			ret.Insert(NewEdge(r.Key, n), 1)
		}
	}
	return ret.Distinct()
}

var _ = Describe("Neighborhoods", func() {
	var (
		h     *harness[Edge]
		roots []dataflow.KV[Node, uint32]
	)

	BeforeEach(func() {
		roots = []dataflow.KV[Node, uint32]{dataflow.Pair[Node, uint32](0, 2), dataflow.Pair[Node, uint32](3, 0),
			dataflow.Pair[Node, uint32](3, 1), dataflow.Pair[Node, uint32](7, 3)}
		h = newHarness(func(s *dataflow.Scope, edges dataflow.Collection[Edge]) dataflow.Collection[Edge] {
			return Neighborhoods(edges, dataflow.NewCollection(s, roots))
		})
	})

	It("should stop after the given number of hops", func() {
		insertAll(h.edges, path...)
		got := h.commit()
		Expect(got.Contains(NewEdge(0, 2))).To(BeTrue())
		Expect(got.Contains(NewEdge(0, 3))).To(BeFalse())
		Expect(got.Contains(NewEdge(3, 3))).To(BeTrue())
		Expect(got.Contains(NewEdge(3, 4))).To(BeTrue())
		Expect(got.Equal(within(dataflow.FromSlice(path), roots))).To(BeTrue())
	})

	It("should match breadth-first search on random graphs", func() {
		r := rand.New(rand.NewSource(8))
		acc := dataflow.NewZSet[Edge]()
		for round := 0; round < 6; round++ {
			for i := 0; i < 7; i++ {
				e := NewEdge(Node(r.Intn(12)), Node(r.Intn(12)))
				if acc.Contains(e) {
					h.edges.Remove(e)
					acc.Insert(e, -1)
				} else {
					h.edges.Insert(e)
					acc.Insert(e, 1)
				}
			}
			got, want := h.commit(), within(acc, roots)
			Expect(got.Equal(want)).To(BeTrue(), "round %d: got %s, want %s", round, got, want)
		}
	})
})
