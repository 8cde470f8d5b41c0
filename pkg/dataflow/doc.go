// Package dataflow implements a differential dataflow engine: incremental computation on
// collections that change over partially ordered logical time.
//
// A collection is a multiset with signed multiplicities (a Z-set) that evolves over time; it is
// represented by its updates, triples of data, time and diff. The contents of a collection at a
// time are the sum of the updates at all times less than or equal to it. Operators transform
// collections of updates into collections of updates so that the contents of the output at every
// time equal the result of the operator applied to the contents of the input at that time, no
// matter how the input updates were batched.
//
// Key components:
//   - ZSet: consolidated multisets, used to inspect the contents of collections.
//   - Collection: time-varying multisets bound to a scope.
//   - Arranged: shared, reference-counted indexes over keyed collections.
//   - Scope: a region of the dataflow sharing a timestamp depth; iteration scopes nest.
//   - Variable: the handle of a recursively defined collection in an iteration scope.
//   - Worker: the single-threaded scheduler that runs dataflows.
//   - InputHandle, Probe, Capture: the interface to the driver.
//
// Operator types:
//   - Linear: map, filter, flat map, concat, negate. Applied eagerly as updates arrive.
//   - Bilinear: joins. Each new batch is joined against the history of the other side.
//   - Nonlinear: reduce, threshold, distinct, count. Re-derived per key at every time the key's
//     input changes and at the least upper bounds of those times.
//
// Example usage:
//
//	w := dataflow.NewWorker(logger)
//	var edges *dataflow.InputHandle[dataflow.KV[uint32, uint32]]
//	var out *dataflow.Capture[uint32]
//	err := w.Dataflow(func(s *dataflow.Scope) {
//		var c dataflow.Collection[dataflow.KV[uint32, uint32]]
//		edges, c = dataflow.NewInput[dataflow.KV[uint32, uint32]](s)
//		out = dataflow.Map(c, func(e dataflow.KV[uint32, uint32]) uint32 { return e.Key }).Distinct().Capture()
//	})
//	edges.Insert(dataflow.Pair[uint32, uint32](1, 2))
//	edges.AdvanceTo(1)
//	err = w.Run(ctx)
package dataflow
