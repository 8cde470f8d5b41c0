package dataflow

import (
	"fmt"

	"github.com/l7mp/difflow/pkg/lattice"
)

// InputHandle feeds updates into a root collection. Updates are buffered at the handle's current
// time and handed to the dataflow together when the handle is flushed or advanced; the worker
// processes them once every input has advanced past their time. The handle holds back the
// worker's frontier at its current time until it is closed.
type InputHandle[T comparable] struct {
	node   *inputNode[T]
	time   uint64
	buffer []Update[T]
	closed bool
}

// NewInput creates an input handle and the collection it feeds. The handle starts at the
// worker's current epoch.
func NewInput[T comparable](s *Scope) (*InputHandle[T], Collection[T]) {
	if s.parent != nil {
		misuse("NewInput: inputs can only be created in the root scope")
	}
	out := newCollection[T](s, s.register("Input", OpTypeStructural))
	n := &inputNode[T]{in: newQueue[T](), out: out.stream}
	s.addNode(n)
	h := &InputHandle[T]{node: n, time: s.worker.epoch}
	s.worker.inputs = append(s.worker.inputs, h)
	return h, out
}

// NewCollection creates a root collection with the given static contents. The elements appear
// at the worker's current epoch.
func NewCollection[T comparable](s *Scope, xs []T) Collection[T] {
	h, c := NewInput[T](s)
	for _, x := range xs {
		h.Insert(x)
	}
	h.Close()
	return c
}

func (h *InputHandle[T]) frontier() (lattice.Time, bool) {
	return lattice.Root(h.time), !h.closed
}

// Time returns the current time of the handle.
func (h *InputHandle[T]) Time() uint64 { return h.time }

// Insert adds one copy of x at the current time.
func (h *InputHandle[T]) Insert(x T) { h.Update(x, 1) }

// Remove retracts one copy of x at the current time.
func (h *InputHandle[T]) Remove(x T) { h.Update(x, -1) }

// Update changes the multiplicity of x by diff at the current time.
func (h *InputHandle[T]) Update(x T, diff int64) {
	if h.closed || diff == 0 {
		return
	}
	h.buffer = append(h.buffer, Update[T]{Data: x, Time: lattice.Root(h.time), Diff: diff})
}

// Flush hands the buffered updates to the dataflow.
func (h *InputHandle[T]) Flush() {
	if len(h.buffer) == 0 {
		return
	}
	h.node.in.push(h.buffer)
	h.buffer = nil
}

// AdvanceTo flushes the buffered updates and moves the handle to time t. The worker may process
// times before t once every other input has advanced past them as well.
func (h *InputHandle[T]) AdvanceTo(t uint64) error {
	if h.closed {
		return fmt.Errorf("input: %w", ErrClosed)
	}
	if t < h.time {
		return newDataflowError(fmt.Sprintf("input: cannot advance from time %d back to %d", h.time, t), nil)
	}
	h.Flush()
	h.time = t
	return nil
}

// Close flushes the buffered updates and releases the hold on the frontier.
func (h *InputHandle[T]) Close() {
	if h.closed {
		return
	}
	h.Flush()
	h.closed = true
}

type inputNode[T comparable] struct {
	in  *queue[T]
	out *stream[T]
}

func (n *inputNode[T]) eachPending(f func(lattice.Time)) { n.in.each(f) }
func (n *inputNode[T]) hasWork(t lattice.Time) bool { return n.in.has(t) }

func (n *inputNode[T]) run(t lattice.Time) error {
	ups := consolidate(n.in.take(t))
	countUpdates("input", len(ups))
	n.out.push(ups)
	return nil
}

// Capture records the updates of a root collection so that they can be inspected once the worker
// has caught up.
type Capture[T comparable] struct {
	updates []Update[T]
	drained int
}

// Capture returns a sink that records every update of the collection.
func (c Collection[T]) Capture() *Capture[T] {
	if c.scope.parent != nil {
		misuse("Capture: only collections of the root scope can be captured")
	}
	c.check("Capture", c.scope)
	c.scope.register("Capture", OpTypeStructural, c.op)
	cp := &Capture[T]{}
	c.stream.subscribe(func(ups []Update[T]) { cp.updates = append(cp.updates, ups...) })
	return cp
}

// Updates returns the updates recorded so far, consolidated.
func (cp *Capture[T]) Updates() []Update[T] { return consolidate(cp.updates) }

// Drain returns the updates recorded since the previous call, consolidated.
func (cp *Capture[T]) Drain() []Update[T] {
	ups := consolidate(cp.updates[cp.drained:])
	cp.drained = len(cp.updates)
	return ups
}

// At returns the contents of the collection at root time t.
func (cp *Capture[T]) At(t uint64) *ZSet[T] {
	z := NewZSet[T]()
	at := lattice.Root(t)
	for _, u := range cp.updates {
		if u.Time.LessEqual(at) {
			z.Insert(u.Data, u.Diff)
		}
	}
	return z
}

// Contents returns the contents of the collection accumulated over all updates recorded so far.
func (cp *Capture[T]) Contents() *ZSet[T] { return FromUpdates(cp.updates) }

// Since returns the net change of the collection over the root times in (from, to].
func (cp *Capture[T]) Since(from, to uint64) *ZSet[T] {
	return cp.At(to).Subtract(cp.At(from))
}
