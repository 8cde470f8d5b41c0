package lattice

import (
	"slices"
	"strings"
)

// Antichain is a set of mutually incomparable timestamps. It represents a frontier: the set of
// times at which something might still happen. A time t is beyond the frontier when some element
// of the antichain is less than or equal to t.
type Antichain struct {
	elements []Time
}

// NewAntichain creates an antichain from the minimal elements of the given times.
func NewAntichain(times ...Time) *Antichain {
	a := &Antichain{}
	for _, t := range times {
		a.Insert(t)
	}
	return a
}

// Insert adds a time to the antichain unless it is dominated by an existing element. Elements
// dominated by the new time are removed. Returns true if the antichain changed.
func (a *Antichain) Insert(t Time) bool {
	for _, e := range a.elements {
		if e.LessEqual(t) {
			return false
		}
	}
	a.elements = slices.DeleteFunc(a.elements, func(e Time) bool { return t.LessEqual(e) })
	a.elements = append(a.elements, t)
	return true
}

// Elements returns the elements in lexicographic order.
func (a *Antichain) Elements() []Time {
	ret := slices.Clone(a.elements)
	slices.SortFunc(ret, Time.Compare)
	return ret
}

// IsEmpty returns true if the antichain has no elements, i.e., nothing can happen anymore.
func (a *Antichain) IsEmpty() bool { return len(a.elements) == 0 }

// LessThan reports whether some element of the antichain is strictly less than t.
func (a *Antichain) LessThan(t Time) bool {
	for _, e := range a.elements {
		if e.Less(t) {
			return true
		}
	}
	return false
}

// LessEqual reports whether some element of the antichain is less than or equal to t.
func (a *Antichain) LessEqual(t Time) bool {
	for _, e := range a.elements {
		if e.LessEqual(t) {
			return true
		}
	}
	return false
}

// String returns the elements as a set, e.g., "{(1, 0), (0, 3)}".
func (a *Antichain) String() string {
	parts := []string{}
	for _, e := range a.Elements() {
		parts = append(parts, e.String())
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
