package dataflow

import (
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/l7mp/difflow/pkg/lattice"
)

// OperatorType classifies operators by how they incrementalize.
type OperatorType int

const (
	OpTypeLinear     OperatorType = iota // Op^Δ = Op, applied eagerly as updates arrive
	OpTypeBilinear                       // joins: Δa⋈b + a⋈Δb
	OpTypeNonLinear                      // reductions: re-derived per key and time
	OpTypeStructural                     // inputs, arrangements, variables, scope boundaries
)

// String returns the type name.
func (t OperatorType) String() string {
	switch t {
	case OpTypeLinear:
		return "linear"
	case OpTypeBilinear:
		return "bilinear"
	case OpTypeNonLinear:
		return "nonlinear"
	default:
		return "structural"
	}
}

// OperatorInfo describes an operator of the dataflow graph.
type OperatorInfo struct {
	ID     int
	Name   string
	Type   OperatorType
	Scope  string
	Inputs []int
}

// ScopeInfo describes a scope of the dataflow graph.
type ScopeInfo struct {
	Name   string
	Parent string
	Depth  int
}

// node is a schedulable operator. Nodes buffer their input by time and run when their scope
// processes that time.
type node interface {
	// eachPending calls f for every time the node has work at, in the node's scope.
	eachPending(f func(lattice.Time))
	// hasWork reports whether the node has work at t.
	hasWork(t lattice.Time) bool
	// run processes the work at t.
	run(t lattice.Time) error
}

// Scope is a region of the dataflow graph sharing a timestamp depth. The root scope of a worker
// has depth 1; every iteration scope adds one coordinate. A scope processes its pending times in
// lexicographic order and, at each time, runs its nodes in creation order, which is a
// topological order of the acyclic part of the graph. Cycles only close through variables,
// which advance the innermost coordinate.
type Scope struct {
	worker *Worker
	parent *Scope
	name   string
	depth  int
	nodes  []node
	rounds uint64
	log    logr.Logger
}

func newScope(w *Worker, parent *Scope, name string, depth int) *Scope {
	return &Scope{
		worker: w,
		parent: parent,
		name:   name,
		depth:  depth,
		log:    w.logger.WithName(name),
	}
}

// Name returns the unique name of the scope.
func (s *Scope) Name() string { return s.name }

// Depth returns the number of timestamp coordinates in the scope.
func (s *Scope) Depth() int { return s.depth }

// Parent returns the enclosing scope or nil for the root scope.
func (s *Scope) Parent() *Scope { return s.parent }

// Worker returns the worker that owns the scope.
func (s *Scope) Worker() *Worker { return s.worker }

// Rounds returns the number of times the scope has been processed.
func (s *Scope) Rounds() uint64 { return s.rounds }

// register records an operator and returns its ID. Operators can only be created while building
// a dataflow.
func (s *Scope) register(name string, typ OperatorType, inputs ...int) int {
	w := s.worker
	if w.building == 0 {
		misuse("operator %q created outside of Worker.Dataflow", name)
	}
	id := len(w.ops)
	w.ops = append(w.ops, OperatorInfo{ID: id, Name: name, Type: typ, Scope: s.name, Inputs: inputs})
	return id
}

func (s *Scope) addNode(n node) { s.nodes = append(s.nodes, n) }

// newChild creates an iteration scope nested in s. The child is not scheduled until attached.
func (s *Scope) newChild(name string) *Scope {
	w := s.worker
	if w.building == 0 {
		misuse("scope %q created outside of Worker.Dataflow", name)
	}
	if s.depth >= lattice.MaxDepth {
		misuse("scope %q: iteration scopes cannot be nested deeper than %d", name, lattice.MaxDepth-1)
	}
	w.scopeSeq++
	child := newScope(w, s, fmt.Sprintf("%s/%s-%d", s.name, name, w.scopeSeq), s.depth+1)
	w.scopes = append(w.scopes, ScopeInfo{Name: child.name, Parent: s.name, Depth: child.depth})
	return child
}

// attach schedules the child scope as a node of s.
func (s *Scope) attach(child *Scope) {
	s.addNode(&scopeNode{scope: child})
}

// next returns the lexicographically smallest pending time accepted by the filter.
func (s *Scope) next(accept func(lattice.Time) bool) (lattice.Time, bool) {
	var best lattice.Time
	found := false
	for _, n := range s.nodes {
		n.eachPending(func(t lattice.Time) {
			if !accept(t) {
				return
			}
			if !found || t.Compare(best) < 0 {
				best, found = t, true
			}
		})
	}
	return best, found
}

// runAt runs every node with work at time t. Nodes are visited in creation order; the pass is
// repeated in case an operator created out of order feeds an earlier node at the same time.
func (s *Scope) runAt(t lattice.Time) error {
	s.rounds++
	scopeRounds.WithLabelValues(s.name).Inc()
	s.log.V(4).Info("processing round", "time", t.String())

	for {
		worked := false
		for _, n := range s.nodes {
			if !n.hasWork(t) {
				continue
			}
			if err := n.run(t); err != nil {
				return err
			}
			worked = true
		}
		if !worked {
			return nil
		}
	}
}

// drain processes all pending times of the scope that extend the outer time, i.e., runs the
// iteration to quiescence for that outer time.
func (s *Scope) drain(outer lattice.Time) error {
	start := time.Now()
	var rounds uint64
	for {
		if err := s.worker.ctxErr(); err != nil {
			return err
		}
		t, ok := s.next(func(t lattice.Time) bool { return t.Pop() == outer })
		if !ok {
			break
		}
		if err := s.runAt(t); err != nil {
			return err
		}
		rounds++
	}
	s.log.V(4).Info("iteration converged", "outer", outer.String(), "rounds", rounds,
		"duration", time.Since(start).String())
	return nil
}

// scopeNode schedules a child scope inside its parent.
type scopeNode struct {
	scope *Scope
}

func (n *scopeNode) eachPending(f func(lattice.Time)) {
	for _, c := range n.scope.nodes {
		c.eachPending(func(t lattice.Time) { f(t.Pop()) })
	}
}

func (n *scopeNode) hasWork(t lattice.Time) bool {
	found := false
	n.eachPending(func(p lattice.Time) {
		if p == t {
			found = true
		}
	})
	return found
}

func (n *scopeNode) run(t lattice.Time) error { return n.scope.drain(t) }
