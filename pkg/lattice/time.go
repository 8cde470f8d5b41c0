// Package lattice implements the logical timestamps of the dataflow engine.
//
// A Time is a vector of unsigned counters. The outermost coordinate is the root (input) time and
// every nested iteration scope adds one coordinate at the end. Times are partially ordered
// pointwise (the product order), the least upper bound of two times is their pointwise maximum,
// and the lexicographic order is a linear extension of the partial order: if a <= b then a
// precedes or equals b lexicographically. The scheduler relies on the latter to process times one
// by one without ever having to revisit a time it has already completed.
package lattice

import (
	"fmt"
	"strings"
)

// MaxDepth is the maximum number of coordinates in a timestamp, i.e., one root coordinate and up
// to three nested iteration scopes.
const MaxDepth = 4

// Time is a logical timestamp. Time is comparable and can be used as a map key.
type Time struct {
	coords [MaxDepth]uint64
	depth  uint8
}

// New creates a timestamp from the given coordinates, outermost first.
func New(coords ...uint64) Time {
	if len(coords) == 0 || len(coords) > MaxDepth {
		panic(fmt.Sprintf("lattice: invalid timestamp depth %d", len(coords)))
	}
	t := Time{depth: uint8(len(coords))}
	copy(t.coords[:], coords)
	return t
}

// Root returns a root (depth 1) timestamp.
func Root(t uint64) Time { return Time{coords: [MaxDepth]uint64{t}, depth: 1} }

// Minimum returns the least timestamp at the given depth.
func Minimum(depth int) Time {
	if depth < 1 || depth > MaxDepth {
		panic(fmt.Sprintf("lattice: invalid timestamp depth %d", depth))
	}
	return Time{depth: uint8(depth)}
}

// Floor returns the least timestamp of the same depth with the root coordinate of t.
func (t Time) Floor() Time { return Time{coords: [MaxDepth]uint64{t.coords[0]}, depth: t.depth} }

// Depth returns the number of coordinates.
func (t Time) Depth() int { return int(t.depth) }

// Coord returns the i-th coordinate, outermost first.
func (t Time) Coord(i int) uint64 { return t.coords[i] }

// Outer returns the root coordinate.
func (t Time) Outer() uint64 { return t.coords[0] }

// Inner returns the innermost coordinate.
func (t Time) Inner() uint64 { return t.coords[t.depth-1] }

// WithInner returns a copy of the timestamp with the innermost coordinate replaced.
func (t Time) WithInner(c uint64) Time {
	t.coords[t.depth-1] = c
	return t
}

// Push extends the timestamp with a new innermost coordinate. This is how a timestamp enters a
// nested scope.
func (t Time) Push(c uint64) Time {
	if int(t.depth) >= MaxDepth {
		panic(fmt.Sprintf("lattice: cannot nest beyond depth %d", MaxDepth))
	}
	t.coords[t.depth] = c
	t.depth++
	return t
}

// Pop removes the innermost coordinate. This is how a timestamp leaves a nested scope.
func (t Time) Pop() Time {
	if t.depth <= 1 {
		panic("lattice: cannot leave the root scope")
	}
	t.depth--
	t.coords[t.depth] = 0
	return t
}

// Step returns the timestamp with the innermost coordinate advanced by one.
func (t Time) Step() Time {
	t.coords[t.depth-1]++
	return t
}

// LessEqual reports whether t <= o in the product partial order.
func (t Time) LessEqual(o Time) bool {
	t.mustMatch(o)
	for i := 0; i < int(t.depth); i++ {
		if t.coords[i] > o.coords[i] {
			return false
		}
	}
	return true
}

// Less reports whether t < o in the product partial order.
func (t Time) Less(o Time) bool { return t != o && t.LessEqual(o) }

// Join returns the least upper bound of the two timestamps.
func (t Time) Join(o Time) Time {
	t.mustMatch(o)
	for i := 0; i < int(t.depth); i++ {
		t.coords[i] = max(t.coords[i], o.coords[i])
	}
	return t
}

// Meet returns the greatest lower bound of the two timestamps.
func (t Time) Meet(o Time) Time {
	t.mustMatch(o)
	for i := 0; i < int(t.depth); i++ {
		t.coords[i] = min(t.coords[i], o.coords[i])
	}
	return t
}

// Compare orders timestamps lexicographically, outermost coordinate first. The result is -1, 0
// or +1.
func (t Time) Compare(o Time) int {
	t.mustMatch(o)
	for i := 0; i < int(t.depth); i++ {
		switch {
		case t.coords[i] < o.coords[i]:
			return -1
		case t.coords[i] > o.coords[i]:
			return 1
		}
	}
	return 0
}

// String returns a human readable representation, e.g., "(3, 1)".
func (t Time) String() string {
	parts := make([]string, t.depth)
	for i := range parts {
		parts[i] = fmt.Sprintf("%d", t.coords[i])
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func (t Time) mustMatch(o Time) {
	if t.depth != o.depth {
		panic(fmt.Sprintf("lattice: comparing timestamps of different depth: %s vs %s", t, o))
	}
}
