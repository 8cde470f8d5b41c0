// Package driver runs a graph computation over an edge file: it indexes the edges, builds the
// query dataflow of the configured algorithm on top of the index, feeds the edges round by round
// and delivers the output changes of every round to the configured sinks.
package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/l7mp/difflow/internal/config"
	"github.com/l7mp/difflow/internal/graphio"
	"github.com/l7mp/difflow/internal/sink"
	"github.com/l7mp/difflow/pkg/dataflow"
	"github.com/l7mp/difflow/pkg/graphs"
	"github.com/l7mp/difflow/pkg/sudoku"
	"github.com/l7mp/difflow/pkg/util"
)

// ErrNoHub is returned when the WebSocket sink is enabled but no hub is available.
var ErrNoHub = errors.New("websocket sink enabled without a hub")

// Options are the runtime dependencies of a driver.
type Options struct {
	Logger logr.Logger
	// Out receives the inspected updates and the Sudoku grid. Defaults to os.Stdout.
	Out io.Writer
	// Hub serves the WebSocket sink.
	Hub *sink.Hub
	// Redis overrides the client of the Redis sink.
	Redis sink.Evaler
}

// Summary describes a finished run.
type Summary struct {
	RunID     string
	Algorithm string
	// Edges is the number of edge updates fed.
	Edges int
	// Rounds is the number of completed rounds.
	Rounds int
	// Output is the size of the accumulated output.
	Output  int64
	Elapsed time.Duration
	Plan    dataflow.Plan
}

// Driver runs one configuration.
type Driver struct {
	cfg    *config.Config
	opts   Options
	runID  string
	log    logr.Logger
	closer []func() error
}

// New creates a driver for a validated configuration.
func New(cfg *config.Config, opts Options) *Driver {
	if opts.Logger.GetSink() == nil {
		opts.Logger = logr.Discard()
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	id := uuid.NewString()
	return &Driver{
		cfg:   cfg,
		opts:  opts,
		runID: id,
		log:   opts.Logger.WithName("driver").WithValues("run", id, "algorithm", cfg.Algorithm),
	}
}

// RunID returns the identifier the driver tags its logs and sink messages with.
func (d *Driver) RunID() string { return d.runID }

// output is the type-erased view of an attached result collection.
type output interface {
	// flush delivers the updates recorded since the last flush to the sinks.
	flush(ctx context.Context) (int, error)
	size() int64
}

type attached[T comparable] struct {
	capture *dataflow.Capture[T]
	sinks   sink.Multi[T]
	acc     *dataflow.ZSet[T]
}

func (a *attached[T]) flush(ctx context.Context) (int, error) {
	ups := a.capture.Drain()
	if len(ups) == 0 {
		return 0, nil
	}
	for _, u := range ups {
		a.acc.Insert(u.Data, u.Diff)
	}
	return len(ups), a.sinks.Write(ctx, ups)
}

func (a *attached[T]) size() int64 { return a.acc.Size() }

// attach captures a result collection and connects it to the configured sinks.
func attach[T comparable](d *Driver, c dataflow.Collection[T]) (*attached[T], error) {
	a := &attached[T]{capture: c.Capture(), acc: dataflow.NewZSet[T]()}

	if d.cfg.Inspect {
		a.sinks = append(a.sinks, sink.NewWriter[T](d.opts.Out, ""))
	}

	if r := d.cfg.Sinks.Redis; r != nil {
		client := d.opts.Redis
		if client == nil {
			c := sink.NewGoRedisEvaler(r.Addr, r.DB)
			d.closer = append(d.closer, c.Close)
			client = c
		}
		a.sinks = append(a.sinks, sink.NewRedis[T](client, r.Key))
		d.log.V(1).Info("redis sink enabled", "addr", r.Addr, "key", r.Key)
	}

	if d.cfg.Sinks.WebSocket {
		if d.opts.Hub == nil {
			return nil, ErrNoHub
		}
		a.sinks = append(a.sinks, sink.NewBroadcaster[T](d.opts.Hub, d.runID))
	}

	return a, nil
}

// Run executes the configuration. Without follow mode it returns once every round is processed.
// In follow mode it keeps applying the changes of the edge file until the context is cancelled,
// which is not reported as an error.
func (d *Driver) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	defer d.close()

	w := dataflow.NewWorker(d.opts.Logger)
	defer w.Close()

	summary := &Summary{RunID: d.runID, Algorithm: d.cfg.Algorithm}
	var err error
	if d.cfg.Algorithm == config.Sudoku {
		err = d.runSudoku(ctx, w, summary)
	} else {
		err = d.runGraph(ctx, w, summary)
	}
	summary.Plan = w.Plan()
	summary.Elapsed = time.Since(start)
	if err != nil {
		return summary, err
	}

	d.log.Info("run finished", "rounds", summary.Rounds, "edges", summary.Edges,
		"output", summary.Output, "elapsed", summary.Elapsed.String())
	return summary, nil
}

func (d *Driver) close() {
	for _, c := range d.closer {
		if err := c(); err != nil {
			d.log.V(1).Info("closing sink failed", "error", err.Error())
		}
	}
	d.closer = nil
}

func (d *Driver) runSudoku(ctx context.Context, w *dataflow.Worker, summary *Summary) error {
	cells, err := sudoku.Parse(d.cfg.Puzzle)
	if err != nil {
		return err
	}

	var (
		out   output
		board *dataflow.Capture[sudoku.Cell]
		aerr  error
	)
	if err := w.Dataflow(func(s *dataflow.Scope) {
		solved := sudoku.Solve(dataflow.NewCollection(s, cells))
		board = solved.Capture()
		out, aerr = attach(d, solved)
	}); err != nil {
		return fmt.Errorf("build dataflow: %w", err)
	}
	if aerr != nil {
		return aerr
	}

	if err := w.Run(ctx); err != nil {
		return err
	}
	if _, err := out.flush(ctx); err != nil {
		return err
	}
	summary.Rounds = 1
	summary.Output = out.size()

	contents := board.Contents()
	if _, err := io.WriteString(d.opts.Out, sudoku.Grid(contents)); err != nil {
		return err
	}
	d.log.Info("puzzle processed", "solved", sudoku.Solved(contents), "candidates", contents.Size())
	return nil
}

// query builds the dataflow of the configured algorithm.
func (d *Driver) query(s *dataflow.Scope, edges dataflow.Collection[graphs.Edge]) (output, error) {
	switch d.cfg.Algorithm {
	case config.Connected:
		return attach(d, graphs.Connected(graphs.Nodes(edges), edges))
	case config.Bijkstra, config.ShortestPaths:
		goals, err := d.goals()
		if err != nil {
			return nil, err
		}
		gs := dataflow.NewCollection(s, goals)
		if d.cfg.Algorithm == config.Bijkstra {
			return attach(d, graphs.Bijkstra(edges, gs))
		}
		return attach(d, graphs.ShortestPaths(edges, gs))
	case config.Triangles:
		return attach(d, graphs.Triangles(graphs.Undirected(edges)))
	case config.Truss:
		return attach(d, graphs.Truss(edges))
	case config.TrussNested:
		return attach(d, graphs.TrussNested(edges))
	case config.PageRank:
		pr := graphs.PageRankConfig{
			Iterations: d.cfg.PageRank.Iterations,
			Init:       d.cfg.PageRank.Init,
			Reset:      d.cfg.PageRank.Reset,
		}
		return attach(d, graphs.PageRank(pr, graphs.Nodes(edges), edges))
	case config.Neighborhoods:
		roots, err := d.roots()
		if err != nil {
			return nil, err
		}
		return attach(d, graphs.Neighborhoods(edges, dataflow.NewCollection(s, roots)))
	}
	return nil, fmt.Errorf("%w: unknown algorithm %q", config.ErrInvalid, d.cfg.Algorithm)
}

func (d *Driver) goals() ([]graphs.Edge, error) {
	goals := util.Map(func(g config.Pair) graphs.Edge { return graphs.NewEdge(g.Src, g.Dst) }, d.cfg.Goals)
	if d.cfg.GoalsFile != "" {
		more, err := graphio.ReadPairsFile(d.cfg.GoalsFile)
		if err != nil {
			return nil, fmt.Errorf("goals: %w", err)
		}
		goals = append(goals, more...)
	}
	return goals, nil
}

func (d *Driver) roots() ([]dataflow.KV[graphs.Node, uint32], error) {
	roots := util.Map(func(r config.Root) dataflow.KV[graphs.Node, uint32] { return dataflow.Pair(r.Node, r.Steps) }, d.cfg.Roots)
	if d.cfg.RootsFile != "" {
		more, err := graphio.ReadPairsFile(d.cfg.RootsFile)
		if err != nil {
			return nil, fmt.Errorf("roots: %w", err)
		}
		for _, p := range more {
			roots = append(roots, dataflow.Pair(p.Key, p.Val))
		}
	}
	return roots, nil
}

// runner feeds the edge input and waits for the query output.
type runner struct {
	*Driver
	worker  *dataflow.Worker
	input   *dataflow.InputHandle[graphs.Edge]
	probe   *dataflow.Probe
	out     output
	summary *Summary
}

func (d *Driver) runGraph(ctx context.Context, w *dataflow.Worker, summary *Summary) error {
	edges, err := graphio.ReadEdgesFile(d.cfg.Edges)
	if err != nil {
		return err
	}
	d.log.Info("edges loaded", "edges", len(edges), "path", d.cfg.Edges)

	r := &runner{Driver: d, worker: w, summary: summary}

	var forward *dataflow.Arranged[graphs.Node, graphs.Node]
	if err := w.Dataflow(func(s *dataflow.Scope) {
		var c dataflow.Collection[graphs.Edge]
		r.input, c = dataflow.NewInput[graphs.Edge](s)
		forward = dataflow.ArrangeByKey(c)
	}); err != nil {
		return fmt.Errorf("build index: %w", err)
	}

	if d.cfg.Preload {
		if err := r.feed(ctx, edges); err != nil {
			return err
		}
		if err := w.StepWhile(ctx, func() bool { return w.Epoch() < r.input.Time() }); err != nil {
			return fmt.Errorf("index: %w", err)
		}
		d.log.Info("data indexed", "keys", forward.Len(), "epoch", w.Epoch())
	}

	if err := r.build(forward); err != nil {
		return err
	}

	if d.cfg.Preload {
		// the imported history shows up at the current epoch
		if err := r.wait(ctx, w.Epoch()); err != nil {
			return err
		}
	} else if err := r.feed(ctx, edges); err != nil {
		return err
	}

	if !d.cfg.Follow {
		r.input.Close()
		if err := w.Run(ctx); err != nil {
			return err
		}
		if _, err := r.out.flush(ctx); err != nil {
			return err
		}
		summary.Output = r.out.size()
		return nil
	}

	return r.follow(ctx, graphio.Edges(edges))
}

// build creates the query dataflow on top of the edge index.
func (r *runner) build(forward *dataflow.Arranged[graphs.Node, graphs.Node]) error {
	var qerr error
	if err := r.worker.Dataflow(func(s *dataflow.Scope) {
		edges := dataflow.AsCollection(forward.Import(s), graphs.NewEdge)
		r.out, qerr = r.query(s, edges)
		if qerr == nil {
			r.probe = edges.Probe()
		}
	}); err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return qerr
}

// feed splits the edges into rounds and processes them one by one. Without a query dataflow
// the rounds are only indexed.
func (r *runner) feed(ctx context.Context, edges []graphio.TimedEdge) error {
	batch := r.cfg.Batch
	if batch == 0 {
		batch = len(edges)
	}
	for i := 0; i < len(edges); i += batch {
		round := edges[i:min(i+batch, len(edges))]
		for _, e := range round {
			if !r.cfg.RoundTimes && e.Time > r.input.Time() {
				if err := r.input.AdvanceTo(e.Time); err != nil {
					return err
				}
			}
			r.input.Insert(e.Edge)
		}
		t := r.input.Time()
		if err := r.input.AdvanceTo(t + 1); err != nil {
			return err
		}
		r.summary.Edges += len(round)
		if r.out == nil {
			continue
		}
		if err := r.wait(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// wait processes every root time up to t and flushes the output changes to the sinks.
func (r *runner) wait(ctx context.Context, t uint64) error {
	start := time.Now()
	if r.input.Time() <= t {
		if err := r.input.AdvanceTo(t + 1); err != nil {
			return err
		}
	}
	if err := r.worker.StepWhile(ctx, func() bool { return r.probe.LessThan(t + 1) }); err != nil {
		return fmt.Errorf("round %d: %w", t, err)
	}
	n, err := r.out.flush(ctx)
	if err != nil {
		return fmt.Errorf("round %d: %w", t, err)
	}
	r.summary.Rounds++
	r.summary.Output = r.out.size()
	r.log.V(1).Info("round complete", "time", t, "changes", n, "output", r.summary.Output,
		"duration", time.Since(start).String())
	return nil
}

// follow applies the changes of the edge file whenever it is written, until the context is
// cancelled.
func (r *runner) follow(ctx context.Context, current []graphs.Edge) error {
	changed := make(chan struct{}, 1)
	if err := config.WatchFile(ctx, r.cfg.Edges, func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}, r.log); err != nil {
		return err
	}
	r.log.Info("following edge file", "path", r.cfg.Edges)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
		}

		timed, err := graphio.ReadEdgesFile(r.cfg.Edges)
		if err != nil {
			// editors may leave a partial file behind, the next write fixes it
			r.log.Error(err, "reading edge file failed, keeping the current graph")
			continue
		}
		next := graphio.Edges(timed)
		diff := graphio.Diff(current, next)
		current = next
		if diff.IsZero() {
			continue
		}

		t := r.input.Time()
		for _, e := range diff.Entries() {
			r.input.Update(e.Value, e.Count)
			r.summary.Edges++
		}
		r.log.V(1).Info("edge file changed", "changes", diff.UniqueCount(), "time", t)
		if err := r.wait(ctx, t); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}
