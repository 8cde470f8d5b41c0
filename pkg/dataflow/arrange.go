package dataflow

import (
	"github.com/l7mp/difflow/pkg/lattice"
)

// trace is the indexed history of a keyed collection: for each key, the updates of its values in
// the order they were processed. A trace has a single writer, the arrange operator that owns it,
// and is shared by reference between its readers.
type trace[K, V comparable] struct {
	keys     map[K][]traceEntry[V]
	refs     int
	released bool
}

type traceEntry[V comparable] struct {
	val  V
	time lattice.Time
	diff int64
}

func (tr *trace[K, V]) retain() {
	if tr.released {
		misuse("arrangement used after release")
	}
	tr.refs++
}

func (tr *trace[K, V]) release() {
	if tr.refs == 0 {
		return
	}
	tr.refs--
	if tr.refs == 0 {
		tr.keys = nil
		tr.released = true
	}
}

func (tr *trace[K, V]) live() map[K][]traceEntry[V] {
	if tr.released {
		misuse("arrangement read after release")
	}
	return tr.keys
}

// Arranged is an index over a keyed collection: a shareable, read-only view of its accumulated
// history, organized by key. Joins and reductions read the index instead of maintaining their own
// copy of the input. An index may be used by any number of operators in its scope, entered into
// nested scopes, and imported into later dataflows of the same worker.
type Arranged[K, V comparable] struct {
	scope    *Scope
	dataflow int
	trace    *trace[K, V]
	batches  *stream[KV[K, V]]
	remap    func(lattice.Time) lattice.Time
	replay   bool
	op       int
	owned    bool
	released bool
}

// ArrangeByKey indexes a collection of key-value pairs by key.
func ArrangeByKey[K, V comparable](c Collection[KV[K, V]]) *Arranged[K, V] {
	c.check("ArrangeByKey", c.scope)
	op := c.scope.register("ArrangeByKey", OpTypeStructural, c.op)
	a := newArrangement[K, V](c.scope, op)
	c.stream.subscribe(a.feed)
	return a.handle
}

// ArrangeBySelf indexes a collection by its elements.
func (c Collection[T]) ArrangeBySelf() *Arranged[T, Unit] {
	c.check("ArrangeBySelf", c.scope)
	op := c.scope.register("ArrangeBySelf", OpTypeStructural, c.op)
	a := newArrangement[T, Unit](c.scope, op)
	c.stream.subscribe(func(ups []Update[T]) {
		kvs := make([]Update[KV[T, Unit]], len(ups))
		for i, u := range ups {
			kvs[i] = Update[KV[T, Unit]]{Data: KV[T, Unit]{Key: u.Data}, Time: u.Time, Diff: u.Diff}
		}
		a.feed(kvs)
	})
	return a.handle
}

type arrangeNode[K, V comparable] struct {
	in     *queue[KV[K, V]]
	trace  *trace[K, V]
	out    *stream[KV[K, V]]
	handle *Arranged[K, V]
}

func newArrangement[K, V comparable](s *Scope, op int) *arrangeNode[K, V] {
	tr := &trace[K, V]{keys: make(map[K][]traceEntry[V]), refs: 1}
	s.worker.onClose(tr.release)
	n := &arrangeNode[K, V]{in: newQueue[KV[K, V]](), trace: tr, out: newStream[KV[K, V]]()}
	n.handle = &Arranged[K, V]{
		scope:    s,
		dataflow: s.worker.building,
		trace:    tr,
		batches:  n.out,
		remap:    func(t lattice.Time) lattice.Time { return t },
		op:       op,
	}
	s.addNode(n)
	return n
}

func (n *arrangeNode[K, V]) feed(ups []Update[KV[K, V]]) { n.in.push(ups) }

func (n *arrangeNode[K, V]) eachPending(f func(lattice.Time)) { n.in.each(f) }
func (n *arrangeNode[K, V]) hasWork(t lattice.Time) bool { return n.in.has(t) }

func (n *arrangeNode[K, V]) run(t lattice.Time) error {
	batch := consolidate(n.in.take(t))
	countUpdates("arrange", len(batch))
	keys := n.trace.live()
	for _, u := range batch {
		keys[u.Data.Key] = append(keys[u.Data.Key], traceEntry[V]{val: u.Data.Val, time: t, diff: u.Diff})
	}
	n.out.push(batch)
	return nil
}

func (a *Arranged[K, V]) check(op string, s *Scope) {
	if a.scope != s {
		misuse("%s: arrangement of scope %q used in scope %q", op, a.scope.name, s.name)
	}
	if a.dataflow != s.worker.building {
		misuse("%s: arrangement built in another dataflow; use Import", op)
	}
	if a.released {
		misuse("%s: arrangement handle already released", op)
	}
}

// subscribe registers a consumer of the batches of the index. The consumer holds a reference to
// the trace until the worker is closed. Consumers of an imported index first receive its history
// as a single batch.
func (a *Arranged[K, V]) subscribe(f func([]Update[KV[K, V]])) {
	a.trace.retain()
	a.scope.worker.onClose(a.trace.release)
	a.batches.subscribe(f)
	if a.replay {
		f(a.history())
	}
}

// history returns the accumulated history of the trace in the time domain of the handle.
func (a *Arranged[K, V]) history() []Update[KV[K, V]] {
	var ret []Update[KV[K, V]]
	for k, entries := range a.trace.live() {
		for _, e := range entries {
			ret = append(ret, Update[KV[K, V]]{Data: KV[K, V]{Key: k, Val: e.val}, Time: a.remap(e.time), Diff: e.diff})
		}
	}
	return consolidate(ret)
}

// Enter brings the index into the iteration scope inner without copying it. Its history appears
// at iteration 0 of the corresponding outer times.
func (a *Arranged[K, V]) Enter(inner *Scope) *Arranged[K, V] {
	if inner.parent == nil {
		misuse("Enter: scope %q is not an iteration scope", inner.name)
	}
	a.check("Enter", inner.parent)
	push := func(t lattice.Time) lattice.Time { return t.Push(0) }
	return a.derive(inner, inner.register("EnterArrangement", OpTypeStructural, a.op), push)
}

// Import makes an index built in an earlier dataflow usable in the dataflow being built. The
// history of the index is advanced to the current epoch of the worker: the operators of the new
// dataflow see the accumulated contents as of that epoch as a single batch, followed by later
// changes as they happen. The imported handle holds a reference to the trace until Release is
// called or the worker is closed.
func (a *Arranged[K, V]) Import(s *Scope) *Arranged[K, V] {
	if s.parent != nil || a.scope.parent != nil {
		misuse("Import: only root arrangements can be imported into the root scope")
	}
	if s.worker != a.scope.worker {
		misuse("Import: arrangements cannot be shared across workers")
	}
	if a.released {
		misuse("Import: arrangement handle already released")
	}
	floor := lattice.Root(s.worker.epoch)
	advance := func(t lattice.Time) lattice.Time { return t.Join(floor) }
	imported := a.derive(s, s.register("ImportArrangement", OpTypeStructural), advance)
	imported.replay = true
	imported.owned = true
	a.trace.retain()
	s.worker.onClose(imported.Release)
	return imported
}

// derive creates a handle in scope s reading the same trace with times mapped by f.
func (a *Arranged[K, V]) derive(s *Scope, op int, f func(lattice.Time) lattice.Time) *Arranged[K, V] {
	d := &Arranged[K, V]{
		scope:    s,
		dataflow: s.worker.building,
		trace:    a.trace,
		batches:  newStream[KV[K, V]](),
		remap:    func(t lattice.Time) lattice.Time { return f(a.remap(t)) },
		replay:   a.replay,
		op:       op,
	}
	a.batches.subscribe(func(ups []Update[KV[K, V]]) { d.batches.push(mapTimes(ups, f)) })
	return d
}

// Release drops the reference held by an imported handle. The trace is freed once neither
// handles nor operators refer to it. Releasing other handles is a no-op, their references are
// held by the operators and released when the worker is closed.
func (a *Arranged[K, V]) Release() {
	if !a.owned || a.released {
		return
	}
	a.released = true
	a.trace.release()
}

// Lookup returns the accumulated values of a key at time t, which must have the depth of the
// scope of the index.
func (a *Arranged[K, V]) Lookup(key K, t lattice.Time) *ZSet[V] {
	z := NewZSet[V]()
	for _, e := range a.trace.live()[key] {
		if a.remap(e.time).LessEqual(t) {
			z.Insert(e.val, e.diff)
		}
	}
	return z
}

// Len returns the number of keys the index has seen.
func (a *Arranged[K, V]) Len() int { return len(a.trace.live()) }

// Refs returns the number of references held on the underlying trace.
func (a *Arranged[K, V]) Refs() int { return a.trace.refs }

// AsCollection turns the index back into a collection.
func AsCollection[K, V, R comparable](a *Arranged[K, V], f func(K, V) R) Collection[R] {
	a.check("AsCollection", a.scope)
	s := a.scope
	out := newCollection[R](s, s.register("AsCollection", OpTypeLinear, a.op))
	n := &asCollectionNode[K, V, R]{in: newQueue[KV[K, V]](), f: f, out: out.stream}
	s.addNode(n)
	a.subscribe(n.in.push)
	return out
}

type asCollectionNode[K, V, R comparable] struct {
	in  *queue[KV[K, V]]
	f   func(K, V) R
	out *stream[R]
}

func (n *asCollectionNode[K, V, R]) eachPending(f func(lattice.Time)) { n.in.each(f) }
func (n *asCollectionNode[K, V, R]) hasWork(t lattice.Time) bool { return n.in.has(t) }

func (n *asCollectionNode[K, V, R]) run(t lattice.Time) error {
	ups := n.in.take(t)
	res := make([]Update[R], len(ups))
	for i, u := range ups {
		res[i] = Update[R]{Data: n.f(u.Data.Key, u.Data.Val), Time: u.Time, Diff: u.Diff}
	}
	n.out.push(res)
	return nil
}
