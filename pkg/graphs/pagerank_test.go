package graphs

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/l7mp/difflow/pkg/dataflow"
)

func pageRankHarness(cfg PageRankConfig) *harness[Node] {
	return newHarness(func(_ *dataflow.Scope, edges dataflow.Collection[Edge]) dataflow.Collection[Node] {
		return PageRank(cfg, Nodes(edges), edges)
	})
}

var _ = Describe("PageRank", func() {
	star := []Edge{NewEdge(0, 1), NewEdge(0, 2)}

	It("should spread surfers over out-edges", func() {
		h := pageRankHarness(PageRankConfig{Iterations: 1})
		insertAll(h.edges, star...)
		ranks := h.commit()
		Expect(ranks.Multiplicity(0)).To(Equal(int64(1_000_000)))
		Expect(ranks.Multiplicity(1)).To(Equal(int64(3_500_000)))
		Expect(ranks.Multiplicity(2)).To(Equal(int64(3_500_000)))
	})

	It("should round down per edge", func() {
		h := pageRankHarness(PageRankConfig{Iterations: 2})
		insertAll(h.edges, star...)
		ranks := h.commit()
		Expect(ranks.Multiplicity(0)).To(Equal(int64(1_000_000)))
		Expect(ranks.Multiplicity(1)).To(Equal(int64(1_416_666)))
		Expect(ranks.Multiplicity(2)).To(Equal(int64(1_416_666)))
	})

	It("should converge on a cycle without a bound", func() {
		h := pageRankHarness(PageRankConfig{})
		insertAll(h.edges, NewEdge(0, 1), NewEdge(1, 0))
		ranks := h.commit()
		Expect(ranks.UniqueCount()).To(Equal(2))
		Expect(ranks.Multiplicity(0)).To(Equal(DefaultSurfers))
		Expect(ranks.Multiplicity(1)).To(Equal(DefaultSurfers))
	})

	It("should follow edge changes", func() {
		h := pageRankHarness(PageRankConfig{Iterations: 1})
		insertAll(h.edges, star...)
		h.commit()

		h.edges.Remove(NewEdge(0, 2))
		h.edges.Insert(NewEdge(2, 1))
		ranks := h.commit()
		// node 1 gets 5M from node 0 and 5M from node 2
		Expect(ranks.Multiplicity(0)).To(Equal(int64(1_000_000)))
		Expect(ranks.Multiplicity(1)).To(Equal(int64(11_000_000)))
		Expect(ranks.Multiplicity(2)).To(Equal(int64(1_000_000)))
	})

	It("should keep scores positive with resets", func() {
		h := pageRankHarness(PageRankConfig{Iterations: 5})
		insertAll(h.edges, NewEdge(0, 1), NewEdge(1, 2), NewEdge(2, 0), NewEdge(2, 3), NewEdge(4, 3))
		ranks := h.commit()
		Expect(ranks.UniqueCount()).To(Equal(5))
		for _, w := range ranks.Entries() {
			Expect(w.Count).To(BeNumerically(">=", 1_000_000), "node %d", w.Value)
		}
	})

	It("should only lose surfers without resets", func() {
		edges := []Edge{NewEdge(0, 1), NewEdge(1, 2), NewEdge(2, 0), NewEdge(2, 3), NewEdge(0, 3)}
		last := int64(4 * DefaultSurfers)
		for iterations := uint32(1); iterations <= 5; iterations++ {
			h := pageRankHarness(PageRankConfig{Iterations: iterations, Reset: -1})
			insertAll(h.edges, edges...)
			total := h.commit().Size()
			Expect(total).To(BeNumerically("<", last), "after %d rounds", iterations)
			last = total
		}
	})
})
