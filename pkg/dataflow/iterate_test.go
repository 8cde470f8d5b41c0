package dataflow

import (
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/l7mp/difflow/pkg/lattice"
)

// reachable computes the nodes reachable from roots in the given scope.
func reachable(edges Collection[edge], roots Collection[uint32]) Collection[uint32] {
	return Iterate(roots, func(inner *Scope, x Collection[uint32]) Collection[uint32] {
		e := edges.Enter(inner)
		frontier := Map(x, func(n uint32) KV[uint32, Unit] { return KV[uint32, Unit]{Key: n} })
		next := Join(frontier, e, func(_ uint32, _ Unit, dst uint32) uint32 { return dst })
		return roots.Enter(inner).Concat(next).Distinct()
	})
}

// bfs is the reference implementation of reachable.
func bfs(edges *ZSet[edge], roots []uint32) *ZSet[uint32] {
	adj := map[uint32][]uint32{}
	for _, e := range edges.Elements() {
		adj[e.Key] = append(adj[e.Key], e.Val)
	}
	seen := NewZSet[uint32]()
	queue := append([]uint32(nil), roots...)
	for _, r := range roots {
		seen.counts[r] = 1
	}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, m := range adj[n] {
			if !seen.Contains(m) {
				seen.counts[m] = 1
				queue = append(queue, m)
			}
		}
	}
	return seen
}

var _ = Describe("Iteration", func() {
	var (
		w     *Worker
		edges *InputHandle[edge]
		reach *Capture[uint32]
	)

	BeforeEach(func() {
		w = NewWorker(logger)
		Expect(w.Dataflow(func(s *Scope) {
			var e Collection[edge]
			edges, e = NewInput[edge](s)
			reach = reachable(e, NewCollection(s, []uint32{1})).Capture()
		})).To(Succeed())
	})

	AfterEach(func() { w.Close() })

	It("should compute and maintain a fixpoint", func() {
		edges.Insert(Pair[uint32, uint32](1, 2))
		edges.Insert(Pair[uint32, uint32](2, 3))
		edges.Insert(Pair[uint32, uint32](3, 4))
		Expect(edges.AdvanceTo(1)).To(Succeed())
		runAll(w)
		Expect(reach.At(0).Equal(zsetOf[uint32](1, 2, 3, 4))).To(BeTrue(), reach.At(0).String())

		edges.Remove(Pair[uint32, uint32](2, 3))
		Expect(edges.AdvanceTo(2)).To(Succeed())
		runAll(w)
		Expect(reach.At(1).Equal(zsetOf[uint32](1, 2))).To(BeTrue(), reach.At(1).String())

		edges.Insert(Pair[uint32, uint32](4, 1))
		edges.Insert(Pair[uint32, uint32](2, 4))
		Expect(edges.AdvanceTo(3)).To(Succeed())
		runAll(w)
		Expect(reach.At(2).Equal(zsetOf[uint32](1, 2, 4))).To(BeTrue(), reach.At(2).String())

		edges.Remove(Pair[uint32, uint32](2, 4))
		Expect(edges.AdvanceTo(4)).To(Succeed())
		runAll(w)
		Expect(reach.At(3).Equal(zsetOf[uint32](1, 2))).To(BeTrue(), reach.At(3).String())
	})

	It("should agree with breadth-first search on random changes", func() {
		r := rand.New(rand.NewSource(3))
		acc := NewZSet[edge]()
		for t := uint64(0); t < 15; t++ {
			for i := 0; i < 4; i++ {
				e := Pair(uint32(r.Intn(10)), uint32(r.Intn(10)))
				if acc.Contains(e) {
					edges.Remove(e)
					acc.Insert(e, -1)
				} else {
					edges.Insert(e)
					acc.Insert(e, 1)
				}
			}
			Expect(edges.AdvanceTo(t + 1)).To(Succeed())
			runAll(w)

			want := bfs(acc, []uint32{1})
			Expect(reach.At(t).Equal(want)).To(BeTrue(), "time %d: got %s, want %s", t, reach.At(t), want)
		}
	})
})

var _ = Describe("Nested iteration", func() {
	It("should run inner loops to quiescence for each outer round", func() {
		w := NewWorker(logger)
		defer w.Close()
		var edges *InputHandle[edge]
		var out *Capture[uint32]
		Expect(w.Dataflow(func(s *Scope) {
			var e Collection[edge]
			edges, e = NewInput[edge](s)
			roots := NewCollection(s, []uint32{0})
			out = Iterative(s, "outer", func(outer *Scope) Collection[uint32] {
				x := NewVariableFrom(roots.Enter(outer))
				inner := reachable(e.Enter(outer), x.Collection)
				return x.Set(x.Concat(inner).Distinct())
			}).Capture()
		})).To(Succeed())

		edges.Insert(Pair[uint32, uint32](0, 1))
		edges.Insert(Pair[uint32, uint32](1, 2))
		Expect(edges.AdvanceTo(1)).To(Succeed())
		runAll(w)
		Expect(out.At(0).Equal(zsetOf[uint32](0, 1, 2))).To(BeTrue(), out.At(0).String())

		edges.Remove(Pair[uint32, uint32](0, 1))
		edges.Close()
		runAll(w)
		Expect(out.At(1).Equal(zsetOf[uint32](0))).To(BeTrue(), out.At(1).String())

		depths := []int{}
		for _, sc := range w.Plan().Scopes {
			depths = append(depths, sc.Depth)
		}
		Expect(depths).To(Equal([]int{1, 2, 3}))
	})

	It("should bound iterations by filtering times", func() {
		w := NewWorker(logger)
		defer w.Close()
		var out *Capture[int]
		Expect(w.Dataflow(func(s *Scope) {
			seed := NewCollection(s, []int{0})
			out = Iterate(seed, func(_ *Scope, x Collection[int]) Collection[int] {
				next := Map(x, func(n int) int { return n + 1 })
				return next.FilterTime(func(t lattice.Time) bool { return t.Inner() < 3 })
			}).Capture()
		})).To(Succeed())
		runAll(w)

		// x0 = {0}, x1 = {1}, x2 = {2}, x3 = {3} and later rounds are suppressed, which leaves
		// the collection at its last value.
		Expect(out.At(0).Equal(zsetOf(3))).To(BeTrue(), out.At(0).String())
	})
})
