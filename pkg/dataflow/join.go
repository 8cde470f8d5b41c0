package dataflow

import (
	"github.com/l7mp/difflow/pkg/lattice"
)

// JoinCore joins two indexes on their keys. For every pair of matching updates it calls f and, if
// f returns true, emits the result at the least upper bound of the two times with the product of
// the two diffs.
//
// The join is bilinear and incremental: at time t it joins the new batch of a against the whole
// history of b (which already includes b's batch at t), and the new batch of b against the
// history of a excluding a's batch at t, so that no pair is produced twice.
func JoinCore[K, V1, V2, R comparable](a *Arranged[K, V1], b *Arranged[K, V2], f func(K, V1, V2) (R, bool)) Collection[R] {
	s := a.scope
	a.check("JoinCore", s)
	b.check("JoinCore", s)
	out := newCollection[R](s, s.register("JoinCore", OpTypeBilinear, a.op, b.op))
	n := &joinNode[K, V1, V2, R]{
		a:   a,
		b:   b,
		qa:  newQueue[KV[K, V1]](),
		qb:  newQueue[KV[K, V2]](),
		f:   f,
		out: out.stream,
	}
	s.addNode(n)
	a.subscribe(n.qa.push)
	b.subscribe(n.qb.push)
	return out
}

type joinNode[K, V1, V2, R comparable] struct {
	a   *Arranged[K, V1]
	b   *Arranged[K, V2]
	qa  *queue[KV[K, V1]]
	qb  *queue[KV[K, V2]]
	f   func(K, V1, V2) (R, bool)
	out *stream[R]
}

func (n *joinNode[K, V1, V2, R]) eachPending(f func(lattice.Time)) {
	n.qa.each(f)
	n.qb.each(f)
}

func (n *joinNode[K, V1, V2, R]) hasWork(t lattice.Time) bool { return n.qa.has(t) || n.qb.has(t) }

func (n *joinNode[K, V1, V2, R]) run(t lattice.Time) error {
	da, db := n.qa.take(t), n.qb.take(t)
	countUpdates("join", len(da)+len(db))

	var res []Update[R]
	if len(da) > 0 {
		history := n.b.trace.live()
		for _, u := range da {
			for _, e := range history[u.Data.Key] {
				if r, ok := n.f(u.Data.Key, u.Data.Val, e.val); ok {
					res = append(res, Update[R]{Data: r, Time: u.Time.Join(n.b.remap(e.time)), Diff: u.Diff * e.diff})
				}
			}
		}
	}
	if len(db) > 0 {
		history := n.a.trace.live()
		for _, u := range db {
			for _, e := range history[u.Data.Key] {
				et := n.a.remap(e.time)
				if et == t {
					continue
				}
				if r, ok := n.f(u.Data.Key, e.val, u.Data.Val); ok {
					res = append(res, Update[R]{Data: r, Time: et.Join(u.Time), Diff: e.diff * u.Diff})
				}
			}
		}
	}

	n.out.push(consolidate(res))
	return nil
}

// Join joins two keyed collections. It arranges both inputs by key; use JoinCore to reuse
// existing indexes.
func Join[K, V1, V2, R comparable](a Collection[KV[K, V1]], b Collection[KV[K, V2]], f func(K, V1, V2) R) Collection[R] {
	return JoinCore(ArrangeByKey(a), ArrangeByKey(b), func(k K, v1 V1, v2 V2) (R, bool) {
		return f(k, v1, v2), true
	})
}

// Semijoin keeps the records of c whose key is present in keys. Only presence matters: a key
// counts as present if its accumulated multiplicity in keys is positive, and the diffs of c are
// passed through unchanged.
func Semijoin[K, V comparable](c Collection[KV[K, V]], keys Collection[K]) Collection[KV[K, V]] {
	return JoinCore(ArrangeByKey(c), keys.Distinct().ArrangeBySelf(), func(k K, v V, _ Unit) (KV[K, V], bool) {
		return KV[K, V]{Key: k, Val: v}, true
	})
}

// Antijoin keeps the records of c whose key is not present in keys.
func Antijoin[K, V comparable](c Collection[KV[K, V]], keys Collection[K]) Collection[KV[K, V]] {
	return c.Concat(Semijoin(c, keys).Negate())
}
