// Package sink delivers the output updates of a dataflow to the outside world.
package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/l7mp/difflow/pkg/dataflow"
)

// Sink consumes batches of output updates. The updates of a batch are consolidated and belong
// to root times that the dataflow has completed.
type Sink[T comparable] interface {
	Write(ctx context.Context, ups []dataflow.Update[T]) error
}

// Multi writes every batch to all of its sinks.
type Multi[T comparable] []Sink[T]

// Write implements Sink. All sinks get the batch even if some fail.
func (m Multi[T]) Write(ctx context.Context, ups []dataflow.Update[T]) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, ups); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Writer prints updates, one per line.
type Writer[T comparable] struct {
	mu     sync.Mutex
	w      io.Writer
	prefix string
}

// NewWriter creates a sink that prints to w. Each line starts with prefix.
func NewWriter[T comparable](w io.Writer, prefix string) *Writer[T] {
	return &Writer[T]{w: w, prefix: prefix}
}

// Write implements Sink.
func (s *Writer[T]) Write(_ context.Context, ups []dataflow.Update[T]) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range ups {
		if _, err := fmt.Fprintf(s.w, "%s%v\t%d\t%+d\n", s.prefix, u.Data, u.Time.Outer(), u.Diff); err != nil {
			return fmt.Errorf("write: %w", err)
		}
	}
	return nil
}

// Func adapts a function to a Sink.
type Func[T comparable] func(ctx context.Context, ups []dataflow.Update[T]) error

// Write implements Sink.
func (f Func[T]) Write(ctx context.Context, ups []dataflow.Update[T]) error { return f(ctx, ups) }
