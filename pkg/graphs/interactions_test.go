package graphs

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/l7mp/difflow/pkg/dataflow"
)

// forumFixture is a small discussion between persons 1, 2 and 3.
//
//	post 100 by 2 in forum 7:  comment 200 by 1
//	post 101 by 3 in forum 8:  comment 201 by 2
//	                             comment 202 by 1
//	                               comment 205 by 2
//	                                 comment 206 by 1
//	post 102 by 1 in forum 9:  comment 207 by 3
var (
	forumPosts = []Post{
		{ID: 100, Author: 2, Forum: 7},
		{ID: 101, Author: 3, Forum: 8},
		{ID: 102, Author: 1, Forum: 9},
	}
	forumComments = []Comment{
		{ID: 200, Author: 1, ReplyOf: 100},
		{ID: 201, Author: 2, ReplyOf: 101},
		{ID: 202, Author: 1, ReplyOf: 201},
		{ID: 205, Author: 2, ReplyOf: 202},
		{ID: 206, Author: 1, ReplyOf: 205},
		{ID: 207, Author: 3, ReplyOf: 102},
	}
)

type scoreHarness struct {
	worker   *dataflow.Worker
	edges    *dataflow.InputHandle[Edge]
	posts    *dataflow.InputHandle[Post]
	comments *dataflow.InputHandle[Comment]
	out      *dataflow.Capture[Score]
	time     uint64
}

func newScoreHarness(build func(s *dataflow.Scope, edges dataflow.Collection[Edge], posts dataflow.Collection[Post], comments dataflow.Collection[Comment]) dataflow.Collection[Score]) *scoreHarness {
	GinkgoHelper()
	h := &scoreHarness{worker: dataflow.NewWorker(logger)}
	Expect(h.worker.Dataflow(func(s *dataflow.Scope) {
		var edges dataflow.Collection[Edge]
		var posts dataflow.Collection[Post]
		var comments dataflow.Collection[Comment]
		h.edges, edges = dataflow.NewInput[Edge](s)
		h.posts, posts = dataflow.NewInput[Post](s)
		h.comments, comments = dataflow.NewInput[Comment](s)
		h.out = build(s, edges, posts, comments).Capture()
	})).To(Succeed())
	DeferCleanup(h.worker.Close)

	for _, p := range forumPosts {
		h.posts.Insert(p)
	}
	for _, c := range forumComments {
		h.comments.Insert(c)
	}
	return h
}

func (h *scoreHarness) commit() *dataflow.ZSet[Score] {
	GinkgoHelper()
	t := h.time
	h.time++
	Expect(h.edges.AdvanceTo(h.time)).To(Succeed())
	Expect(h.posts.AdvanceTo(h.time)).To(Succeed())
	Expect(h.comments.AdvanceTo(h.time)).To(Succeed())
	Expect(h.worker.Run(context.Background())).To(Succeed())
	return h.out.At(t)
}

func scores(points map[Score]int64) *dataflow.ZSet[Score] {
	z := dataflow.NewZSet[Score]()
	for s, n := range points {
		z.Insert(s, n)
	}
	return z
}

var _ = Describe("Edge scores", func() {
	var h *scoreHarness

	BeforeEach(func() {
		h = newScoreHarness(func(_ *dataflow.Scope, edges dataflow.Collection[Edge], posts dataflow.Collection[Post], comments dataflow.Collection[Comment]) dataflow.Collection[Score] {
			return ScoreEdges(edges, posts, comments)
		})
	})

	It("should score replies to posts and to comments by the forum of the thread", func() {
		insertAll(h.edges, NewEdge(1, 2), NewEdge(2, 3))
		got, want := h.commit(), scores(map[Score]int64{
			dataflow.Pair(NewEdge(1, 2), Forum(7)): 2,
			dataflow.Pair(NewEdge(2, 3), Forum(8)): 2,
			// comments 202 and 206, three replies deep
			dataflow.Pair(NewEdge(1, 2), Forum(8)): 2,
		})
		Expect(got.Equal(want)).To(BeTrue(), "got %s, want %s", got, want)
	})

	It("should only score the given edges", func() {
		insertAll(h.edges, NewEdge(2, 1))
		got, want := h.commit(), scores(map[Score]int64{
			dataflow.Pair(NewEdge(2, 1), Forum(8)): 1,
		})
		Expect(got.Equal(want)).To(BeTrue(), "got %s, want %s", got, want)
	})

	It("should follow changes of the edges and the comments", func() {
		insertAll(h.edges, NewEdge(1, 2), NewEdge(2, 3))
		h.commit()

		// comment 206 loses its thread
		h.comments.Remove(Comment{ID: 205, Author: 2, ReplyOf: 202})
		h.edges.Remove(NewEdge(2, 3))
		got, want := h.commit(), scores(map[Score]int64{
			dataflow.Pair(NewEdge(1, 2), Forum(7)): 2,
			dataflow.Pair(NewEdge(1, 2), Forum(8)): 1,
		})
		Expect(got.Equal(want)).To(BeTrue(), "got %s, want %s", got, want)

		h.comments.Insert(Comment{ID: 205, Author: 2, ReplyOf: 202})
		got = h.commit()
		Expect(got.Contains(dataflow.Pair(NewEdge(1, 2), Forum(8)))).To(BeTrue())
		Expect(h.out.Since(1, 2).Equal(scores(map[Score]int64{
			dataflow.Pair(NewEdge(1, 2), Forum(8)): 1,
		}))).To(BeTrue())
	})
})

var _ = Describe("Path scores", func() {
	It("should score the edges of the shortest paths only", func() {
		goals := []Edge{NewEdge(1, 3)}
		h := newScoreHarness(func(s *dataflow.Scope, edges dataflow.Collection[Edge], posts dataflow.Collection[Post], comments dataflow.Collection[Comment]) dataflow.Collection[Score] {
			return PathScores(edges, dataflow.NewCollection(s, goals), posts, comments)
		})

		// 3 -> 1 closes a cycle but is on no path from 1 to 3
		insertAll(h.edges, NewEdge(1, 2), NewEdge(2, 3), NewEdge(3, 1))
		got, want := h.commit(), scores(map[Score]int64{
			dataflow.Pair(NewEdge(1, 2), Forum(7)): 2,
			dataflow.Pair(NewEdge(2, 3), Forum(8)): 2,
			dataflow.Pair(NewEdge(1, 2), Forum(8)): 2,
		})
		Expect(got.Equal(want)).To(BeTrue(), "got %s, want %s", got, want)

		// a shortcut takes 1 -> 2 -> 3 off the shortest paths
		h.edges.Insert(NewEdge(1, 3))
		Expect(h.commit().IsZero()).To(BeTrue())
	})
})
