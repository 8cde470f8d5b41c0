package dataflow

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/l7mp/difflow/pkg/lattice"
)

// frontierSource is something that may still produce updates at or after its time, e.g., an
// open input handle.
type frontierSource interface {
	frontier() (lattice.Time, bool)
}

// Plan is a snapshot of the dataflow graph of a worker.
type Plan struct {
	Scopes    []ScopeInfo
	Operators []OperatorInfo
}

// Worker runs dataflows on a single-threaded cooperative event loop. Dataflows are built with
// Dataflow and driven by repeatedly calling Step, typically until a probe reports that the output
// has caught up with the inputs. A worker is not safe for concurrent use; run several workers for
// parallelism.
type Worker struct {
	root      *Scope
	ops       []OperatorInfo
	scopes    []ScopeInfo
	scopeSeq  int
	building  int
	dataflows int
	checks    []func() error
	inputs    []frontierSource
	epoch     uint64
	closers   []func()
	ctx       context.Context
	err       error
	closed    bool

	logger, log logr.Logger
}

// NewWorker creates a new worker.
func NewWorker(logger logr.Logger) *Worker {
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}

	w := &Worker{
		logger: logger,
		log:    logger.WithName("worker"),
	}
	w.root = newScope(w, nil, "root", 1)
	w.scopes = append(w.scopes, ScopeInfo{Name: "root", Depth: 1})
	return w
}

// Dataflow builds a new dataflow on the root scope. Collections built in one dataflow cannot be
// used in another; share state across dataflows by importing arrangements. Misuse of the API
// during the build is returned as a *DataflowError, after which the worker must be discarded.
func (w *Worker) Dataflow(build func(s *Scope)) (err error) {
	if w.closed {
		return ErrClosed
	}
	if w.err != nil {
		return w.err
	}

	w.dataflows++
	w.building = w.dataflows
	w.checks = nil
	defer func() {
		w.building = 0
		if err != nil {
			w.err = err
		}
	}()
	defer recoverMisuse(&err)

	w.log.V(2).Info("building dataflow", "id", w.dataflows)
	build(w.root)
	for _, check := range w.checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

// Step processes the smallest pending root time that no open input can still produce updates
// at, running every nested iteration to quiescence. It returns true if a time was processed.
func (w *Worker) Step(ctx context.Context) (bool, error) {
	if w.closed {
		return false, ErrClosed
	}
	if w.err != nil {
		return false, w.err
	}
	if err := ctx.Err(); err != nil {
		w.err = fmt.Errorf("%w: %w", ErrPoisoned, err)
		return false, w.err
	}

	frontier := w.Frontier()
	t, ok := w.root.next(func(t lattice.Time) bool { return !frontier.LessEqual(t) })
	if !ok {
		return false, nil
	}

	start := time.Now()
	w.ctx = ctx
	err := func() (err error) {
		defer recoverMisuse(&err)
		return w.root.runAt(t)
	}()
	w.ctx = nil
	if err != nil {
		w.err = fmt.Errorf("%w: %w", ErrPoisoned, err)
		return false, w.err
	}

	if t.Outer() >= w.epoch {
		w.epoch = t.Outer() + 1
	}
	stepDuration.Observe(time.Since(start).Seconds())
	pendingTimes.Set(float64(w.pending()))
	w.log.V(2).Info("processed time", "time", t.String(), "duration", time.Since(start).String())

	return true, nil
}

// StepWhile steps the worker as long as cond holds. Returns ErrNoProgress if cond still holds but
// nothing can be processed, which means some input must advance first.
func (w *Worker) StepWhile(ctx context.Context, cond func() bool) error {
	for cond() {
		ok, err := w.Step(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNoProgress
		}
	}
	return nil
}

// Run steps the worker until no pending time can be processed.
func (w *Worker) Run(ctx context.Context) error {
	for {
		ok, err := w.Step(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
}

// Frontier returns the antichain of root times at which open inputs may still produce updates.
// An empty frontier means all inputs are closed.
func (w *Worker) Frontier() *lattice.Antichain {
	f := lattice.NewAntichain()
	for _, in := range w.inputs {
		if t, open := in.frontier(); open {
			f.Insert(t)
		}
	}
	return f
}

// Epoch returns the smallest root time that has not been processed yet.
func (w *Worker) Epoch() uint64 { return w.epoch }

// Plan returns a snapshot of the operators and scopes built so far.
func (w *Worker) Plan() Plan {
	return Plan{
		Scopes:    append([]ScopeInfo(nil), w.scopes...),
		Operators: append([]OperatorInfo(nil), w.ops...),
	}
}

// Close releases the arrangements held by operators. The worker cannot be used afterwards.
func (w *Worker) Close() {
	if w.closed {
		return
	}
	for _, f := range w.closers {
		f()
	}
	w.closers = nil
	w.closed = true
	w.log.V(2).Info("worker closed")
}

func (w *Worker) onClose(f func()) { w.closers = append(w.closers, f) }

func (w *Worker) ctxErr() error {
	if w.ctx == nil {
		return nil
	}
	return w.ctx.Err()
}

// pending counts the distinct root times with pending work.
func (w *Worker) pending() int {
	times := map[lattice.Time]bool{}
	for _, n := range w.root.nodes {
		n.eachPending(func(t lattice.Time) { times[t] = true })
	}
	return len(times)
}

// lessThanPending reports whether some pending root time is less than t.
func (w *Worker) lessThanPending(t lattice.Time) bool {
	found := false
	for _, n := range w.root.nodes {
		n.eachPending(func(p lattice.Time) {
			if p.Less(t) {
				found = true
			}
		})
		if found {
			return true
		}
	}
	return false
}

// Probe observes the progress of a worker with respect to a collection.
type Probe struct {
	worker *Worker
}

// LessThan reports whether the probed output may still change at some root time less than t,
// either because the worker has pending work there or because an input may still produce updates
// there.
func (p *Probe) LessThan(t uint64) bool {
	target := lattice.Root(t)
	return p.worker.Frontier().LessThan(target) || p.worker.lessThanPending(target)
}

// Done reports whether the probed output is complete: all inputs are closed and no work is
// pending.
func (p *Probe) Done() bool {
	return p.worker.Frontier().IsEmpty() && p.worker.pending() == 0
}
