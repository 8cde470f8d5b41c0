package dataflow

import (
	"fmt"

	"github.com/l7mp/difflow/pkg/lattice"
)

// Variable is a recursively defined collection of an iteration scope. Its contents at iteration
// i+1 are the contents of the collection it is set to at iteration i; at iteration 0 it holds its
// seed, if any. A variable must be set exactly once, with a collection of its own scope.
type Variable[T comparable] struct {
	Collection[T]
	node *variableNode[T]
	set  bool
}

// NewVariable creates an initially empty variable in the iteration scope s.
func NewVariable[T comparable](s *Scope) *Variable[T] {
	if s.parent == nil {
		misuse("NewVariable: variables can only be created in iteration scopes")
	}
	op := s.register("Variable", OpTypeStructural)
	n := &variableNode[T]{in: newQueue[T](), out: newStream[T]()}
	s.addNode(n)

	v := &Variable[T]{
		Collection: Collection[T]{scope: s, dataflow: s.worker.building, stream: n.out, op: op},
		node:       n,
	}
	s.worker.checks = append(s.worker.checks, func() error {
		if !v.set {
			return newDataflowError(fmt.Sprintf("variable %d in scope %q is never set", op, s.name), nil)
		}
		return nil
	})
	return v
}

// NewVariableFrom creates a variable that holds seed at iteration 0.
func NewVariableFrom[T comparable](seed Collection[T]) *Variable[T] {
	v := NewVariable[T](seed.scope)
	seed.check("NewVariableFrom", v.scope)
	seed.stream.subscribe(func(ups []Update[T]) {
		v.node.in.push(ups)
		retract := make([]Update[T], len(ups))
		for i, u := range ups {
			retract[i] = Update[T]{Data: u.Data, Time: u.Time.Step(), Diff: -u.Diff}
		}
		v.node.in.push(retract)
	})
	return v
}

// Set binds the definition of the variable and returns result for convenience.
func (v *Variable[T]) Set(result Collection[T]) Collection[T] {
	if v.set {
		misuse("Variable.Set: variable %d is already set", v.op)
	}
	result.check("Variable.Set", v.scope)
	v.set = true
	v.scope.worker.ops[v.op].Inputs = append(v.scope.worker.ops[v.op].Inputs, result.op)
	result.stream.subscribe(func(ups []Update[T]) {
		v.node.in.push(mapTimes(ups, lattice.Time.Step))
	})
	return result
}

type variableNode[T comparable] struct {
	in  *queue[T]
	out *stream[T]
}

func (n *variableNode[T]) eachPending(f func(lattice.Time)) { n.in.each(f) }
func (n *variableNode[T]) hasWork(t lattice.Time) bool { return n.in.has(t) }

func (n *variableNode[T]) run(t lattice.Time) error {
	ups := consolidate(n.in.take(t))
	countUpdates("variable", len(ups))
	n.out.push(ups)
	return nil
}

// Iterative creates an iteration scope nested in s, builds its body and returns the collection
// the body returns, left to s. Bodies define their variables with NewVariable or
// NewVariableFrom and bring outer collections in with Enter.
func Iterative[T comparable](s *Scope, name string, body func(inner *Scope) Collection[T]) Collection[T] {
	inner := s.newChild(name)
	result := body(inner)
	s.attach(inner)
	return result.Leave()
}

// Iterate computes the fixpoint of body starting from c: x0 = c and x(i+1) = body(x(i)). It
// returns the fixpoint left to the scope of c.
func Iterate[T comparable](c Collection[T], body func(inner *Scope, x Collection[T]) Collection[T]) Collection[T] {
	return Iterative(c.scope, "iterate", func(inner *Scope) Collection[T] {
		x := NewVariableFrom(c.Enter(inner))
		return x.Set(body(inner, x.Collection))
	})
}
