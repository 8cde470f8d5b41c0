package graphs

import (
	"context"
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/l7mp/difflow/pkg/dataflow"
)

// bruteTriangles enumerates the triangles of a set of oriented edges.
func bruteTriangles(edges *dataflow.ZSet[Edge]) *dataflow.ZSet[Triangle] {
	ret := dataflow.NewZSet[Triangle]()
	for _, ab := range edges.Elements() {
		for _, ac := range edges.Elements() {
			if ab.Key != ac.Key || ab.Val >= ac.Val {
				continue
			}
			if edges.Contains(NewEdge(ab.Val, ac.Val)) {
				ret.Insert(Triangle{A: ab.Key, B: ab.Val, C: ac.Val}, 1)
			}
		}
	}
	return ret
}

// bruteTruss peels the graph level by level: at level k every edge in fewer than k triangles
// of the remaining graph is removed until none is left, and the edges removed get level k-1.
func bruteTruss(edges *dataflow.ZSet[Edge]) *dataflow.ZSet[Level] {
	ret := dataflow.NewZSet[Level]()
	alive := edges.Distinct()
	for k := uint32(1); !alive.IsZero(); k++ {
		for {
			support := map[Edge]uint32{}
			for _, t := range bruteTriangles(alive).Elements() {
				for _, e := range t.Edges() {
					support[e]++
				}
			}
			removed := false
			for _, e := range alive.Elements() {
				if support[e] < k {
					ret.Insert(dataflow.Pair(e, k-1), 1)
					alive.Insert(e, -1)
					removed = true
				}
			}
			if !removed {
				break
			}
		}
	}
	return ret
}

var _ = Describe("Triangles", func() {
	var h *harness[Triangle]

	BeforeEach(func() {
		h = newHarness(func(_ *dataflow.Scope, edges dataflow.Collection[Edge]) dataflow.Collection[Triangle] {
			return Triangles(edges)
		})
	})

	It("should find the triangles of a square with a diagonal", func() {
		insertAll(h.edges, NewEdge(1, 2), NewEdge(2, 3), NewEdge(3, 4), NewEdge(1, 4), NewEdge(1, 3))
		Expect(h.commit().Equal(zsetOf(Triangle{A: 1, B: 2, C: 3}, Triangle{A: 1, B: 3, C: 4}))).To(BeTrue())

		h.edges.Remove(NewEdge(1, 3))
		Expect(h.commit().IsZero()).To(BeTrue())
	})

	It("should match brute force on random graphs", func() {
		r := rand.New(rand.NewSource(5))
		acc := dataflow.NewZSet[Edge]()
		for round := 0; round < 5; round++ {
			for _, e := range randomGraph(r, 14, 20) {
				if acc.Contains(e) {
					h.edges.Remove(e)
					acc.Insert(e, -1)
				} else {
					h.edges.Insert(e)
					acc.Insert(e, 1)
				}
			}
			got := h.commit()
			Expect(got.Equal(bruteTriangles(acc))).To(BeTrue(), "round %d: %s", round, got)
		}
	})
})

var _ = Describe("Truss", func() {
	for _, variant := range []struct {
		name  string
		truss func(dataflow.Collection[Edge]) dataflow.Collection[Level]
	}{
		{"labels", Truss},
		{"peeling", TrussNested},
	} {
		Context("with "+variant.name, func() {
			var h *harness[Level]

			BeforeEach(func() {
				h = newHarness(func(_ *dataflow.Scope, edges dataflow.Collection[Edge]) dataflow.Collection[Level] {
					return variant.truss(edges)
				})
			})

			It("should give level 0 to edges in no triangle", func() {
				insertAll(h.edges, NewEdge(1, 2), NewEdge(2, 3))
				Expect(h.commit().Equal(zsetOf(Level{Key: NewEdge(1, 2)}, Level{Key: NewEdge(2, 3)}))).To(BeTrue())
			})

			It("should give level 1 to a single triangle", func() {
				insertAll(h.edges, NewEdge(1, 2), NewEdge(3, 2), NewEdge(1, 3))
				Expect(h.commit().Equal(zsetOf(
					dataflow.Pair(NewEdge(1, 2), uint32(1)),
					dataflow.Pair(NewEdge(2, 3), uint32(1)),
					dataflow.Pair(NewEdge(1, 3), uint32(1)),
				))).To(BeTrue())
			})

			It("should track a growing clique", func() {
				insertAll(h.edges, NewEdge(1, 2), NewEdge(1, 3), NewEdge(2, 3), NewEdge(1, 4), NewEdge(2, 4))
				levels := h.commit()
				Expect(levels.Contains(dataflow.Pair(NewEdge(1, 2), uint32(1)))).To(BeTrue())
				Expect(levels.Size()).To(Equal(int64(5)))

				// closing K4 puts every edge in two triangles
				h.edges.Insert(NewEdge(3, 4))
				levels = h.commit()
				Expect(levels.Size()).To(Equal(int64(6)))
				for _, l := range levels.Elements() {
					Expect(l.Val).To(Equal(uint32(2)), "edge %v", l.Key)
				}

				h.edges.Remove(NewEdge(1, 2))
				levels = h.commit()
				Expect(levels.Contains(dataflow.Pair(NewEdge(3, 4), uint32(1)))).To(BeTrue())
				Expect(levels.Contains(dataflow.Pair(NewEdge(1, 2), uint32(1)))).To(BeFalse())
			})

			It("should match peeling by brute force", func() {
				r := rand.New(rand.NewSource(int64(len(variant.name))))
				acc := dataflow.NewZSet[Edge]()
				for round := 0; round < 4; round++ {
					for _, e := range randomGraph(r, 12, 24) {
						if acc.Contains(e) {
							h.edges.Remove(e)
							acc.Insert(e, -1)
						} else {
							h.edges.Insert(e)
							acc.Insert(e, 1)
						}
					}
					got, want := h.commit(), bruteTruss(acc)
					Expect(got.Equal(want)).To(BeTrue(), "round %d: got %s, want %s", round, got, want)
				}
			})
		})
	}

	It("should compute the same levels with both variants", func() {
		var labels, peeled *dataflow.Capture[Level]
		h := newHarness(func(_ *dataflow.Scope, edges dataflow.Collection[Edge]) dataflow.Collection[Edge] {
			labels = Truss(edges).Capture()
			peeled = TrussNested(edges).Capture()
			return edges
		})

		r := rand.New(rand.NewSource(23))
		acc := dataflow.NewZSet[Edge]()
		for round := 0; round < 8; round++ {
			for _, e := range randomGraph(r, 16, 30) {
				if acc.Contains(e) {
					h.edges.Remove(e)
					acc.Insert(e, -1)
					continue
				}
				// duplicates and reversed edges are normalized away
				if r.Intn(4) == 0 {
					e = swap(e)
				}
				h.edges.Insert(e)
				acc.Insert(NewEdge(min(e.Key, e.Val), max(e.Key, e.Val)), 1)
			}
			t := h.time
			h.commit()
			Expect(labels.At(t).Equal(peeled.At(t))).To(BeTrue(), "round %d: %s vs %s", round, labels.At(t), peeled.At(t))
			Expect(labels.At(t).Equal(bruteTruss(acc))).To(BeTrue(), "round %d", round)
		}
	})

	It("should ignore labels with non-positive counts", func() {
		level := func(in ...dataflow.Weighted[uint32]) uint32 {
			out := hIndex(NewEdge(1, 2), in)
			Expect(out).To(HaveLen(1))
			return out[0].Value
		}
		Expect(level(dataflow.Weighted[uint32]{Value: 2, Count: 3}, dataflow.Weighted[uint32]{Value: 5, Count: -1})).To(Equal(uint32(2)))
		Expect(level(dataflow.Weighted[uint32]{Value: 4, Count: -2})).To(Equal(uint32(0)))
		Expect(level(dataflow.Weighted[uint32]{Value: 1, Count: 0}, dataflow.Weighted[uint32]{Value: 3, Count: 3})).To(Equal(uint32(3)))
	})
})

var _ = Describe("Pending times", func() {
	It("should compute every time of a single run", func() {
		const nodes, times = 14, 8
		var labels, peeled *dataflow.Capture[Level]
		var triangles *dataflow.Capture[Triangle]
		var components *dataflow.Capture[dataflow.KV[Node, Node]]
		h := newHarness(func(s *dataflow.Scope, edges dataflow.Collection[Edge]) dataflow.Collection[Edge] {
			all := make([]Node, nodes)
			for i := range all {
				all[i] = Node(i)
			}
			labels = Truss(edges).Capture()
			peeled = TrussNested(edges).Capture()
			triangles = Triangles(edges).Capture()
			components = Connected(dataflow.NewCollection(s, all), edges).Capture()
			return edges
		})

		// every time stays pending until the single run below
		r := rand.New(rand.NewSource(8))
		acc := dataflow.NewZSet[Edge]()
		snapshots := make([]*dataflow.ZSet[Edge], times)
		for t := 0; t < times; t++ {
			for _, e := range randomGraph(r, nodes, 12) {
				if acc.Contains(e) {
					h.edges.Remove(e)
					acc.Insert(e, -1)
				} else {
					h.edges.Insert(e)
					acc.Insert(e, 1)
				}
			}
			snapshots[t] = acc.Clone()
			h.time++
			Expect(h.edges.AdvanceTo(h.time)).To(Succeed())
		}
		Expect(h.worker.Run(context.Background())).To(Succeed())

		for t, snap := range snapshots {
			at := uint64(t)
			want := bruteTruss(snap)
			Expect(labels.At(at).Equal(want)).To(BeTrue(), "time %d: got %s, want %s", t, labels.At(at), want)
			Expect(peeled.At(at).Equal(want)).To(BeTrue(), "time %d: got %s, want %s", t, peeled.At(at), want)
			Expect(triangles.At(at).Equal(bruteTriangles(snap))).To(BeTrue(), "time %d", t)
			Expect(components.At(at).Equal(unionFind(nodes, snap))).To(BeTrue(), "time %d", t)
		}
	})
})
