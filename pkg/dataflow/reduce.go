package dataflow

import (
	"slices"

	"github.com/l7mp/difflow/pkg/lattice"
)

// Reduce groups a keyed collection by key and, for each key, applies logic to the accumulated
// values of the key, sorted by cmp, with their non-zero multiplicities. The output of logic is
// the full output for the key; the operator emits the difference against what it has emitted
// before.
//
// Reductions are not incremental in their input: whenever the input of a key changes at time t,
// the output of the key is re-derived from scratch at t and at every least upper bound of t with
// earlier update times of the key, since the accumulated input may differ at each of those.
func Reduce[K, V, R comparable](c Collection[KV[K, V]], cmp func(V, V) int, logic func(K, []Weighted[V]) []Weighted[R]) Collection[KV[K, R]] {
	return reduceCore(c, "Reduce",
		func(kv KV[K, V]) (K, V) { return kv.Key, kv.Val },
		cmp, logic,
		func(k K, r R) KV[K, R] { return KV[K, R]{Key: k, Val: r} })
}

// Threshold keeps each distinct element with a multiplicity computed from its accumulated count.
// The function is only called for elements with a non-zero count.
func (c Collection[T]) Threshold(f func(T, int64) int64) Collection[T] {
	return reduceCore(c, "Threshold",
		func(x T) (T, Unit) { return x, Unit{} },
		func(Unit, Unit) int { return 0 },
		func(x T, in []Weighted[Unit]) []Weighted[Unit] {
			if d := f(x, in[0].Count); d != 0 {
				return []Weighted[Unit]{{Count: d}}
			}
			return nil
		},
		func(x T, _ Unit) T { return x })
}

// Distinct keeps one copy of each element with a positive accumulated count.
func (c Collection[T]) Distinct() Collection[T] {
	return c.Threshold(func(_ T, count int64) int64 {
		if count > 0 {
			return 1
		}
		return 0
	})
}

// Count emits for each distinct element its accumulated count.
func Count[T comparable](c Collection[T]) Collection[KV[T, int64]] {
	return reduceCore(c, "Count",
		func(x T) (T, Unit) { return x, Unit{} },
		func(Unit, Unit) int { return 0 },
		func(_ T, in []Weighted[Unit]) []Weighted[int64] {
			return []Weighted[int64]{{Value: in[0].Count, Count: 1}}
		},
		func(x T, n int64) KV[T, int64] { return KV[T, int64]{Key: x, Val: n} })
}

func reduceCore[I, K, V, R, O comparable](c Collection[I], name string, split func(I) (K, V),
	cmp func(V, V) int, logic func(K, []Weighted[V]) []Weighted[R], merge func(K, R) O) Collection[O] {
	c.check(name, c.scope)
	out := newCollection[O](c.scope, c.scope.register(name, OpTypeNonLinear, c.op))
	n := &reduceNode[I, K, V, R, O]{
		in:        newQueue[I](),
		split:     split,
		cmp:       cmp,
		logic:     logic,
		merge:     merge,
		inputs:    make(map[K][]traceEntry[V]),
		outputs:   make(map[K][]traceEntry[R]),
		times:     make(map[K]map[lattice.Time]struct{}),
		scheduled: make(map[lattice.Time]map[K]struct{}),
		compacted: make(map[K]uint64),
		out:       out.stream,
	}
	c.stream.subscribe(n.in.push)
	c.scope.addNode(n)
	return out
}

type reduceNode[I, K, V, R, O comparable] struct {
	in    *queue[I]
	split func(I) (K, V)
	cmp   func(V, V) int
	logic func(K, []Weighted[V]) []Weighted[R]
	merge func(K, R) O

	// per-key input and output histories
	inputs  map[K][]traceEntry[V]
	outputs map[K][]traceEntry[R]
	// per-key set of times the key must be evaluated at, closed under least upper bounds
	times map[K]map[lattice.Time]struct{}
	// keys to re-evaluate at future times
	scheduled map[lattice.Time]map[K]struct{}
	// root time each key was last compacted at
	compacted map[K]uint64

	out *stream[O]
}

func (n *reduceNode[I, K, V, R, O]) eachPending(f func(lattice.Time)) {
	n.in.each(f)
	for t := range n.scheduled {
		if !n.in.has(t) {
			f(t)
		}
	}
}

func (n *reduceNode[I, K, V, R, O]) hasWork(t lattice.Time) bool {
	_, ok := n.scheduled[t]
	return ok || n.in.has(t)
}

func (n *reduceNode[I, K, V, R, O]) run(t lattice.Time) error {
	ups := n.in.take(t)
	countUpdates("reduce", len(ups))

	keys := n.scheduled[t]
	delete(n.scheduled, t)
	if keys == nil {
		keys = make(map[K]struct{})
	}

	floor := t.Floor()
	for k := range keys {
		n.compact(k, floor)
	}
	for _, u := range ups {
		k, v := n.split(u.Data)
		n.compact(k, floor)
		n.inputs[k] = append(n.inputs[k], traceEntry[V]{val: v, time: t, diff: u.Diff})
		n.schedule(k, t)
		keys[k] = struct{}{}
	}

	var res []Update[O]
	for k := range keys {
		res = append(res, n.evaluate(k, t)...)
	}
	n.out.push(res)
	return nil
}

// schedule adds t to the evaluation times of key k and schedules the key at every new least
// upper bound of t with an existing evaluation time.
func (n *reduceNode[I, K, V, R, O]) schedule(k K, t lattice.Time) {
	set, ok := n.times[k]
	if !ok {
		set = make(map[lattice.Time]struct{})
		n.times[k] = set
	}
	if _, ok := set[t]; ok {
		return
	}

	var lubs []lattice.Time
	for s := range set {
		if l := s.Join(t); l != t {
			if _, ok := set[l]; !ok {
				lubs = append(lubs, l)
			}
		}
	}
	set[t] = struct{}{}
	for _, l := range lubs {
		if _, ok := set[l]; ok {
			continue
		}
		set[l] = struct{}{}
		ks, ok := n.scheduled[l]
		if !ok {
			ks = make(map[K]struct{})
			n.scheduled[l] = ks
		}
		ks[k] = struct{}{}
	}
}

// evaluate re-derives the output of key k at time t and returns the changes.
func (n *reduceNode[I, K, V, R, O]) evaluate(k K, t lattice.Time) []Update[O] {
	acc := NewZSet[V]()
	for _, e := range n.inputs[k] {
		if e.time.LessEqual(t) {
			acc.Insert(e.val, e.diff)
		}
	}

	want := NewZSet[R]()
	if !acc.IsZero() {
		in := acc.Entries()
		slices.SortFunc(in, func(a, b Weighted[V]) int { return n.cmp(a.Value, b.Value) })
		for _, w := range n.logic(k, in) {
			want.Insert(w.Value, w.Count)
		}
	}

	have := NewZSet[R]()
	for _, e := range n.outputs[k] {
		if e.time.LessEqual(t) {
			have.Insert(e.val, e.diff)
		}
	}

	var res []Update[O]
	for _, w := range want.Subtract(have).Entries() {
		n.outputs[k] = append(n.outputs[k], traceEntry[R]{val: w.Value, time: t, diff: w.Count})
		res = append(res, Update[O]{Data: n.merge(k, w.Value), Time: t, Diff: w.Count})
	}
	return res
}

// compact advances the state of key k to floor. The worker processes root times in order, so
// every later update and evaluation of the key happens at or above floor, where the advanced
// histories accumulate to the same contents and the advanced times have the same least upper
// bounds. At the root scope this collapses the state of a key to a single time.
func (n *reduceNode[I, K, V, R, O]) compact(k K, floor lattice.Time) {
	if c, ok := n.compacted[k]; ok && c >= floor.Outer() {
		return
	}
	n.compacted[k] = floor.Outer()

	if in := advance(n.inputs[k], floor); len(in) > 0 {
		n.inputs[k] = in
	} else {
		delete(n.inputs, k)
	}
	if out := advance(n.outputs[k], floor); len(out) > 0 {
		n.outputs[k] = out
	} else {
		delete(n.outputs, k)
	}

	if set, ok := n.times[k]; ok {
		next := make(map[lattice.Time]struct{}, len(set))
		for s := range set {
			next[s.Join(floor)] = struct{}{}
		}
		n.times[k] = next
	}
}

// advance joins the times of a history with floor and consolidates the result.
func advance[V comparable](entries []traceEntry[V], floor lattice.Time) []traceEntry[V] {
	type key struct {
		val  V
		time lattice.Time
	}
	sums := make(map[key]int64, len(entries))
	order := make([]key, 0, len(entries))
	for _, e := range entries {
		k := key{e.val, e.time.Join(floor)}
		if _, ok := sums[k]; !ok {
			order = append(order, k)
		}
		sums[k] += e.diff
	}
	ret := entries[:0]
	for _, k := range order {
		if d := sums[k]; d != 0 {
			ret = append(ret, traceEntry[V]{val: k.val, time: k.time, diff: d})
		}
	}
	return ret
}
