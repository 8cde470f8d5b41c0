package dataflow

import (
	"fmt"

	"github.com/l7mp/difflow/pkg/lattice"
)

// Update is a change to a collection: Diff copies of Data appear (or disappear, if Diff is
// negative) at Time.
type Update[T comparable] struct {
	Data T
	Time lattice.Time
	Diff int64
}

// String returns a human readable form, e.g., "(1 -> 2)@(0, 3)×-1".
func (u Update[T]) String() string { return fmt.Sprintf("%v@%s×%d", u.Data, u.Time, u.Diff) }

// KV is a key-value pair. Keyed operators (joins, reductions, arrangements) expect collections
// of KV.
type KV[K, V comparable] struct {
	Key K
	Val V
}

// Pair creates a KV.
func Pair[K, V comparable](k K, v V) KV[K, V] { return KV[K, V]{Key: k, Val: v} }

// String returns "key -> val".
func (kv KV[K, V]) String() string { return fmt.Sprintf("(%v -> %v)", kv.Key, kv.Val) }

// Unit is the value type of collections arranged by self.
type Unit = struct{}

// Weighted is a value with a signed multiplicity. Reduction logic receives the accumulated
// contents of a key as a sorted list of Weighted values and returns its output in the same form.
type Weighted[T comparable] struct {
	Value T
	Count int64
}

// consolidate sums the diffs of updates with the same data and time and drops the ones that
// cancel out.
func consolidate[T comparable](ups []Update[T]) []Update[T] {
	if len(ups) < 2 {
		if len(ups) == 1 && ups[0].Diff == 0 {
			return nil
		}
		return ups
	}

	type key struct {
		data T
		time lattice.Time
	}
	sums := make(map[key]int64, len(ups))
	order := make([]key, 0, len(ups))
	for _, u := range ups {
		k := key{u.Data, u.Time}
		if _, ok := sums[k]; !ok {
			order = append(order, k)
		}
		sums[k] += u.Diff
	}

	ret := make([]Update[T], 0, len(order))
	for _, k := range order {
		if d := sums[k]; d != 0 {
			ret = append(ret, Update[T]{Data: k.data, Time: k.time, Diff: d})
		}
	}
	return ret
}
