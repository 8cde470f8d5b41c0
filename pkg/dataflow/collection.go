package dataflow

import (
	"github.com/l7mp/difflow/pkg/lattice"
)

// Collection is a time-varying multiset, represented by the stream of its updates. The contents
// of a collection at time t are the sum of the diffs of all updates at times less than or equal
// to t. Collections are values bound to a scope and to the dataflow that created them.
type Collection[T comparable] struct {
	scope    *Scope
	dataflow int
	stream   *stream[T]
	op       int
}

func newCollection[T comparable](s *Scope, op int) Collection[T] {
	return Collection[T]{scope: s, dataflow: s.worker.building, stream: newStream[T](), op: op}
}

// Scope returns the scope of the collection.
func (c Collection[T]) Scope() *Scope { return c.scope }

// check panics unless the collection can be used in the dataflow being built in scope s.
func (c Collection[T]) check(op string, s *Scope) {
	if c.stream == nil {
		misuse("%s: uninitialized collection", op)
	}
	if c.scope != s {
		misuse("%s: collection of scope %q used in scope %q", op, c.scope.name, s.name)
	}
	if c.dataflow != s.worker.building {
		misuse("%s: collection built in another dataflow; import an arrangement instead", op)
	}
}

// Map applies a function to each element.
func Map[T, R comparable](c Collection[T], f func(T) R) Collection[R] {
	c.check("Map", c.scope)
	out := newCollection[R](c.scope, c.scope.register("Map", OpTypeLinear, c.op))
	c.stream.subscribe(func(ups []Update[T]) {
		res := make([]Update[R], len(ups))
		for i, u := range ups {
			res[i] = Update[R]{Data: f(u.Data), Time: u.Time, Diff: u.Diff}
		}
		out.stream.push(res)
	})
	return out
}

// FlatMap maps each element to zero or more elements.
func FlatMap[T, R comparable](c Collection[T], f func(T) []R) Collection[R] {
	c.check("FlatMap", c.scope)
	out := newCollection[R](c.scope, c.scope.register("FlatMap", OpTypeLinear, c.op))
	c.stream.subscribe(func(ups []Update[T]) {
		res := make([]Update[R], 0, len(ups))
		for _, u := range ups {
			for _, r := range f(u.Data) {
				res = append(res, Update[R]{Data: r, Time: u.Time, Diff: u.Diff})
			}
		}
		out.stream.push(res)
	})
	return out
}

// Explode maps each element to zero or more weighted elements. The diff of an output is the
// product of the input diff and the weight, which turns data into multiplicities.
func Explode[T, R comparable](c Collection[T], f func(T) []Weighted[R]) Collection[R] {
	c.check("Explode", c.scope)
	out := newCollection[R](c.scope, c.scope.register("Explode", OpTypeLinear, c.op))
	c.stream.subscribe(func(ups []Update[T]) {
		res := make([]Update[R], 0, len(ups))
		for _, u := range ups {
			for _, w := range f(u.Data) {
				if d := u.Diff * w.Count; d != 0 {
					res = append(res, Update[R]{Data: w.Value, Time: u.Time, Diff: d})
				}
			}
		}
		out.stream.push(res)
	})
	return out
}

// Filter keeps the elements that satisfy the predicate.
func (c Collection[T]) Filter(pred func(T) bool) Collection[T] {
	c.check("Filter", c.scope)
	out := newCollection[T](c.scope, c.scope.register("Filter", OpTypeLinear, c.op))
	c.stream.subscribe(func(ups []Update[T]) {
		res := make([]Update[T], 0, len(ups))
		for _, u := range ups {
			if pred(u.Data) {
				res = append(res, u)
			}
		}
		out.stream.push(res)
	})
	return out
}

// Concat returns the multiset union of the collections: diffs add up.
func (c Collection[T]) Concat(others ...Collection[T]) Collection[T] {
	c.check("Concat", c.scope)
	inputs := []int{c.op}
	for _, o := range others {
		o.check("Concat", c.scope)
		inputs = append(inputs, o.op)
	}
	out := newCollection[T](c.scope, c.scope.register("Concat", OpTypeLinear, inputs...))
	c.stream.subscribe(out.stream.push)
	for _, o := range others {
		o.stream.subscribe(out.stream.push)
	}
	return out
}

// Negate flips the sign of every diff.
func (c Collection[T]) Negate() Collection[T] {
	c.check("Negate", c.scope)
	out := newCollection[T](c.scope, c.scope.register("Negate", OpTypeLinear, c.op))
	c.stream.subscribe(func(ups []Update[T]) {
		res := make([]Update[T], len(ups))
		for i, u := range ups {
			res[i] = Update[T]{Data: u.Data, Time: u.Time, Diff: -u.Diff}
		}
		out.stream.push(res)
	})
	return out
}

// Inspect calls f on every update passing through.
func (c Collection[T]) Inspect(f func(Update[T])) Collection[T] {
	c.check("Inspect", c.scope)
	out := newCollection[T](c.scope, c.scope.register("Inspect", OpTypeLinear, c.op))
	c.stream.subscribe(func(ups []Update[T]) {
		for _, u := range ups {
			f(u)
		}
		out.stream.push(ups)
	})
	return out
}

// FilterTime keeps the updates whose time satisfies the predicate. Bounded iterations use this to
// suppress rounds beyond a limit.
func (c Collection[T]) FilterTime(pred func(lattice.Time) bool) Collection[T] {
	c.check("FilterTime", c.scope)
	out := newCollection[T](c.scope, c.scope.register("FilterTime", OpTypeLinear, c.op))
	c.stream.subscribe(func(ups []Update[T]) {
		res := make([]Update[T], 0, len(ups))
		for _, u := range ups {
			if pred(u.Time) {
				res = append(res, u)
			}
		}
		out.stream.push(res)
	})
	return out
}

// Delay moves updates to a later time computed from the data and the original time. Moving an
// update to an earlier or incomparable time is an error.
func (c Collection[T]) Delay(f func(T, lattice.Time) lattice.Time) Collection[T] {
	c.check("Delay", c.scope)
	out := newCollection[T](c.scope, c.scope.register("Delay", OpTypeLinear, c.op))
	c.stream.subscribe(func(ups []Update[T]) {
		res := make([]Update[T], len(ups))
		for i, u := range ups {
			t := f(u.Data, u.Time)
			if !u.Time.LessEqual(t) {
				misuse("Delay: cannot move update from %s back to %s", u.Time, t)
			}
			res[i] = Update[T]{Data: u.Data, Time: t, Diff: u.Diff}
		}
		out.stream.push(res)
	})
	return out
}

// Consolidate sums the diffs of identical updates at each time. It does not change the contents
// of the collection, only its representation.
func (c Collection[T]) Consolidate() Collection[T] {
	c.check("Consolidate", c.scope)
	n := &consolidateNode[T]{in: newQueue[T]()}
	out := newCollection[T](c.scope, c.scope.register("Consolidate", OpTypeStructural, c.op))
	n.out = out.stream
	c.stream.subscribe(n.in.push)
	c.scope.addNode(n)
	return out
}

type consolidateNode[T comparable] struct {
	in  *queue[T]
	out *stream[T]
}

func (n *consolidateNode[T]) eachPending(f func(lattice.Time)) { n.in.each(f) }
func (n *consolidateNode[T]) hasWork(t lattice.Time) bool { return n.in.has(t) }

func (n *consolidateNode[T]) run(t lattice.Time) error {
	ups := n.in.take(t)
	countUpdates("consolidate", len(ups))
	n.out.push(consolidate(ups))
	return nil
}

// Enter brings a collection of the enclosing scope into the iteration scope inner. Its updates
// appear at iteration 0 of the corresponding outer time.
func (c Collection[T]) Enter(inner *Scope) Collection[T] {
	if inner.parent == nil {
		misuse("Enter: scope %q is not an iteration scope", inner.name)
	}
	c.check("Enter", inner.parent)
	out := newCollection[T](inner, inner.register("Enter", OpTypeStructural, c.op))
	c.stream.subscribe(func(ups []Update[T]) {
		out.stream.push(mapTimes(ups, func(t lattice.Time) lattice.Time { return t.Push(0) }))
	})
	return out
}

// Leave returns the collection to the enclosing scope. The iteration coordinate is projected
// away, so the result accumulates to the contents of the final iteration.
func (c Collection[T]) Leave() Collection[T] {
	outer := c.scope.parent
	if outer == nil {
		misuse("Leave: collection is in the root scope")
	}
	c.check("Leave", c.scope)
	out := newCollection[T](outer, outer.register("Leave", OpTypeStructural, c.op))
	c.stream.subscribe(func(ups []Update[T]) {
		out.stream.push(mapTimes(ups, lattice.Time.Pop))
	})
	return out
}

// Probe returns a handle to observe the progress of the worker. Only root collections can be
// probed.
func (c Collection[T]) Probe() *Probe {
	if c.scope.parent != nil {
		misuse("Probe: only collections of the root scope can be probed")
	}
	c.check("Probe", c.scope)
	c.scope.register("Probe", OpTypeStructural, c.op)
	return &Probe{worker: c.scope.worker}
}
