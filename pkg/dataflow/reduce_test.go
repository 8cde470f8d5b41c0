package dataflow

import (
	"cmp"
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Reductions", func() {
	var (
		w                *Worker
		in               *InputHandle[string]
		counts           *Capture[KV[string, int64]]
		distinct, odd    *Capture[string]
		keyed            *InputHandle[KV[int, int]]
		minimum, sumDiff *Capture[KV[int, int]]
	)

	BeforeEach(func() {
		w = NewWorker(logger)
		Expect(w.Dataflow(func(s *Scope) {
			var c Collection[string]
			in, c = NewInput[string](s)
			counts = Count(c).Capture()
			distinct = c.Distinct().Capture()
			odd = c.Threshold(func(_ string, n int64) int64 { return n % 2 }).Capture()

			var kv Collection[KV[int, int]]
			keyed, kv = NewInput[KV[int, int]](s)
			minimum = Reduce(kv, cmp.Compare[int], func(_ int, in []Weighted[int]) []Weighted[int] {
				return []Weighted[int]{{Value: in[0].Value, Count: 1}}
			}).Capture()
			sumDiff = Reduce(kv, cmp.Compare[int], func(_ int, in []Weighted[int]) []Weighted[int] {
				sum := 0
				for _, v := range in {
					sum += v.Value * int(v.Count)
				}
				return []Weighted[int]{{Value: sum, Count: 1}}
			}).Capture()
		})).To(Succeed())
	})

	AfterEach(func() { w.Close() })

	advance := func(t uint64) {
		GinkgoHelper()
		Expect(in.AdvanceTo(t)).To(Succeed())
		Expect(keyed.AdvanceTo(t)).To(Succeed())
		runAll(w)
	}

	It("should count, distinct and threshold", func() {
		in.Insert("a")
		in.Insert("a")
		in.Insert("a")
		in.Insert("b")
		advance(1)

		Expect(counts.At(0).Equal(zsetOf(Pair("a", int64(3)), Pair("b", int64(1))))).To(BeTrue())
		Expect(distinct.At(0).Equal(zsetOf("a", "b"))).To(BeTrue())
		Expect(odd.At(0).Equal(zsetOf("a", "b"))).To(BeTrue())

		in.Remove("a")
		in.Remove("b")
		advance(2)

		Expect(counts.At(1).Equal(zsetOf(Pair("a", int64(2))))).To(BeTrue(), counts.At(1).String())
		Expect(distinct.At(1).Equal(zsetOf("a"))).To(BeTrue())
		Expect(odd.At(1).IsZero()).To(BeTrue())
	})

	It("should compact the state of updated keys", func() {
		var node *reduceNode[string, string, Unit, int64, KV[string, int64]]
		for _, n := range w.root.nodes {
			if r, ok := n.(*reduceNode[string, string, Unit, int64, KV[string, int64]]); ok {
				node = r
			}
		}
		Expect(node).NotTo(BeNil())

		for i := 1; i <= 50; i++ {
			in.Insert("a")
			advance(uint64(i))
			Expect(node.times["a"]).To(HaveLen(1))
			Expect(len(node.inputs["a"])).To(BeNumerically("<=", 2))
			// the compacted output plus the retraction and the new count
			Expect(len(node.outputs["a"])).To(BeNumerically("<=", 3))
		}
		Expect(counts.At(49).Equal(zsetOf(Pair("a", int64(50))))).To(BeTrue(), counts.At(49).String())

		for i := 0; i < 50; i++ {
			in.Remove("a")
		}
		advance(51)
		in.Insert("a")
		advance(52)
		Expect(counts.At(51).Equal(zsetOf(Pair("a", int64(1))))).To(BeTrue(), counts.At(51).String())
		// the insertions and removals consolidate away
		Expect(node.inputs["a"]).To(HaveLen(1))
	})

	It("should pass negative counts to the logic", func() {
		in.Remove("a")
		advance(1)

		Expect(counts.At(0).Equal(zsetOf(Pair("a", int64(-1))))).To(BeTrue())
		Expect(distinct.At(0).IsZero()).To(BeTrue())
		Expect(odd.At(0).Multiplicity("a")).To(Equal(int64(-1)))
	})

	It("should maintain the minimum per key", func() {
		keyed.Insert(Pair(1, 5))
		keyed.Insert(Pair(1, 3))
		keyed.Insert(Pair(2, 7))
		advance(1)
		Expect(minimum.At(0).Equal(zsetOf(Pair(1, 3), Pair(2, 7)))).To(BeTrue())

		keyed.Remove(Pair(1, 3))
		advance(2)
		Expect(minimum.At(1).Equal(zsetOf(Pair(1, 5), Pair(2, 7)))).To(BeTrue())

		keyed.Remove(Pair(1, 5))
		advance(3)
		Expect(minimum.At(2).Equal(zsetOf(Pair(2, 7)))).To(BeTrue())
		Expect(minimum.Since(1, 2).Equal(FromUpdates([]Update[KV[int, int]]{{Data: Pair(1, 5), Diff: -1}}))).To(BeTrue())
	})

	It("should not depend on how updates are batched", func() {
		r := rand.New(rand.NewSource(11))
		var ups []KV[int, int]
		var diffs []int64
		acc := NewZSet[KV[int, int]]()
		for i := 0; i < 60; i++ {
			kv := Pair(r.Intn(5), r.Intn(10))
			d := int64(1)
			if acc.Multiplicity(kv) > 0 && r.Intn(2) == 0 {
				d = -1
			}
			acc.Insert(kv, d)
			ups = append(ups, kv)
			diffs = append(diffs, d)
		}

		// one update per time
		for i := range ups {
			keyed.Update(ups[i], diffs[i])
			advance(uint64(i + 1))
		}
		stepwise := sumDiff.At(uint64(len(ups))).Clone()

		// a single batch on a fresh worker
		w2 := NewWorker(logger)
		defer w2.Close()
		var h *InputHandle[KV[int, int]]
		var batched *Capture[KV[int, int]]
		Expect(w2.Dataflow(func(s *Scope) {
			var kv Collection[KV[int, int]]
			h, kv = NewInput[KV[int, int]](s)
			batched = Reduce(kv, cmp.Compare[int], func(_ int, in []Weighted[int]) []Weighted[int] {
				sum := 0
				for _, v := range in {
					sum += v.Value * int(v.Count)
				}
				return []Weighted[int]{{Value: sum, Count: 1}}
			}).Capture()
		})).To(Succeed())
		for i := range ups {
			h.Update(ups[i], diffs[i])
		}
		h.Close()
		runAll(w2)

		Expect(batched.Contents().Equal(stepwise)).To(BeTrue(), "batched %s, stepwise %s", batched.Contents(), stepwise)
	})
})
