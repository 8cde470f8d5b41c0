package dataflow

import (
	"fmt"
	"sort"
	"strings"
)

// ZSet is a multiset with signed integer multiplicities. Entries with zero multiplicity are
// dropped eagerly, so two ZSets with the same contents are indistinguishable.
type ZSet[T comparable] struct {
	counts map[T]int64
}

// NewZSet creates an empty ZSet.
func NewZSet[T comparable]() *ZSet[T] {
	return &ZSet[T]{counts: make(map[T]int64)}
}

// SingletonZSet creates a ZSet containing a single element with multiplicity 1.
func SingletonZSet[T comparable](x T) *ZSet[T] {
	z := NewZSet[T]()
	z.Insert(x, 1)
	return z
}

// FromSlice creates a ZSet from a slice, each element with multiplicity 1.
func FromSlice[T comparable](xs []T) *ZSet[T] {
	z := NewZSet[T]()
	for _, x := range xs {
		z.Insert(x, 1)
	}
	return z
}

// FromUpdates creates a ZSet by summing the diffs of the given updates, ignoring their times.
func FromUpdates[T comparable](ups []Update[T]) *ZSet[T] {
	z := NewZSet[T]()
	for _, u := range ups {
		z.Insert(u.Data, u.Diff)
	}
	return z
}

// Insert adds an element with the given multiplicity in place.
func (z *ZSet[T]) Insert(x T, count int64) {
	if count == 0 {
		return
	}
	c := z.counts[x] + count
	if c == 0 {
		delete(z.counts, x)
		return
	}
	z.counts[x] = c
}

// Add performs Z-set addition (union with multiplicity) and returns a new ZSet.
func (z *ZSet[T]) Add(other *ZSet[T]) *ZSet[T] {
	result := z.Clone()
	if other == nil {
		return result
	}
	for x, c := range other.counts {
		result.Insert(x, c)
	}
	return result
}

// Subtract performs Z-set subtraction and returns a new ZSet.
func (z *ZSet[T]) Subtract(other *ZSet[T]) *ZSet[T] {
	result := z.Clone()
	if other == nil {
		return result
	}
	for x, c := range other.counts {
		result.Insert(x, -c)
	}
	return result
}

// Negate flips the sign of every multiplicity.
func (z *ZSet[T]) Negate() *ZSet[T] {
	result := NewZSet[T]()
	for x, c := range z.counts {
		result.counts[x] = -c
	}
	return result
}

// Distinct converts the ZSet to set semantics: positive multiplicities become 1, the rest is
// dropped.
func (z *ZSet[T]) Distinct() *ZSet[T] {
	result := NewZSet[T]()
	for x, c := range z.counts {
		if c > 0 {
			result.counts[x] = 1
		}
	}
	return result
}

// Unique converts the ZSet to set semantics preserving the sign of multiplicities.
func (z *ZSet[T]) Unique() *ZSet[T] {
	result := NewZSet[T]()
	for x, c := range z.counts {
		if c > 0 {
			result.counts[x] = 1
		} else {
			result.counts[x] = -1
		}
	}
	return result
}

// Clone returns a copy of the ZSet.
func (z *ZSet[T]) Clone() *ZSet[T] {
	result := &ZSet[T]{counts: make(map[T]int64, len(z.counts))}
	for x, c := range z.counts {
		result.counts[x] = c
	}
	return result
}

// Entries returns the elements with their multiplicities (including negative ones) in no
// particular order.
func (z *ZSet[T]) Entries() []Weighted[T] {
	result := make([]Weighted[T], 0, len(z.counts))
	for x, c := range z.counts {
		result = append(result, Weighted[T]{Value: x, Count: c})
	}
	return result
}

// Elements returns the elements with positive multiplicity, ignoring multiplicities.
func (z *ZSet[T]) Elements() []T {
	result := make([]T, 0, len(z.counts))
	for x, c := range z.counts {
		if c > 0 {
			result = append(result, x)
		}
	}
	return result
}

// IsZero checks if the ZSet is empty.
func (z *ZSet[T]) IsZero() bool { return len(z.counts) == 0 }

// Size returns the number of elements counting only positive multiplicities.
func (z *ZSet[T]) Size() int64 {
	var total int64
	for _, c := range z.counts {
		if c > 0 {
			total += c
		}
	}
	return total
}

// TotalSize returns the number of elements, counting both positive and negative multiplicities.
func (z *ZSet[T]) TotalSize() int64 {
	var total int64
	for _, c := range z.counts {
		if c > 0 {
			total += c
		} else {
			total -= c
		}
	}
	return total
}

// UniqueCount returns the number of distinct elements with positive multiplicity.
func (z *ZSet[T]) UniqueCount() int {
	n := 0
	for _, c := range z.counts {
		if c > 0 {
			n++
		}
	}
	return n
}

// Multiplicity returns the multiplicity of an element.
func (z *ZSet[T]) Multiplicity(x T) int64 { return z.counts[x] }

// Contains checks if an element exists with positive multiplicity.
func (z *ZSet[T]) Contains(x T) bool { return z.counts[x] > 0 }

// Equal reports whether two ZSets have the same contents.
func (z *ZSet[T]) Equal(other *ZSet[T]) bool {
	if len(z.counts) != len(other.counts) {
		return false
	}
	for x, c := range z.counts {
		if other.counts[x] != c {
			return false
		}
	}
	return true
}

// String returns a string representation of the ZSet for debugging. Elements are sorted by their
// printed form so that the output is stable.
func (z *ZSet[T]) String() string {
	if z.IsZero() {
		return "∅"
	}

	parts := make([]string, 0, len(z.counts))
	for x, c := range z.counts {
		parts = append(parts, fmt.Sprintf("%v×%d", x, c))
	}
	sort.Strings(parts)
	return "{" + strings.Join(parts, ", ") + "}"
}
