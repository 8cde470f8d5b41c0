package dataflow

import (
	"github.com/l7mp/difflow/pkg/lattice"
)

// stream is a push-based edge of the dataflow graph. Linear operators are applied eagerly as
// subscribers of their input stream; stateful operators buffer their input in a queue and run
// when the scheduler reaches the corresponding time. Subscribers must not modify the slice they
// receive.
type stream[T comparable] struct {
	subs []func([]Update[T])
}

func newStream[T comparable]() *stream[T] { return &stream[T]{} }

func (s *stream[T]) subscribe(f func([]Update[T])) { s.subs = append(s.subs, f) }

func (s *stream[T]) push(ups []Update[T]) {
	if len(ups) == 0 {
		return
	}
	for _, f := range s.subs {
		f(ups)
	}
}

// queue buffers updates by time until an operator gets scheduled for that time.
type queue[T comparable] struct {
	batches map[lattice.Time][]Update[T]
}

func newQueue[T comparable]() *queue[T] {
	return &queue[T]{batches: make(map[lattice.Time][]Update[T])}
}

func (q *queue[T]) push(ups []Update[T]) {
	for _, u := range ups {
		q.batches[u.Time] = append(q.batches[u.Time], u)
	}
}

func (q *queue[T]) has(t lattice.Time) bool {
	_, ok := q.batches[t]
	return ok
}

func (q *queue[T]) take(t lattice.Time) []Update[T] {
	b := q.batches[t]
	delete(q.batches, t)
	return b
}

func (q *queue[T]) each(f func(lattice.Time)) {
	for t := range q.batches {
		f(t)
	}
}

// mapTimes returns a copy of the updates with their times transformed.
func mapTimes[T comparable](ups []Update[T], f func(lattice.Time) lattice.Time) []Update[T] {
	ret := make([]Update[T], len(ups))
	for i, u := range ups {
		ret[i] = Update[T]{Data: u.Data, Time: f(u.Time), Diff: u.Diff}
	}
	return ret
}
