package graphs

import (
	"github.com/l7mp/difflow/pkg/dataflow"
)

// Text identifies a post or a comment. Posts and comments share one id space.
type Text = uint32

// Forum identifies a forum.
type Forum = uint32

// Post is a message opening a thread in a forum.
type Post struct {
	ID     Text
	Author Node
	Forum  Forum
}

// Comment is a reply to a post or to another comment.
type Comment struct {
	ID      Text
	Author  Node
	ReplyOf Text
}

// Score is an edge with the forum of the thread an interaction along the edge happened in. The
// multiplicity of a score is the number of points the edge gets from that forum.
type Score = dataflow.KV[Edge, Forum]

// ScoreEdges scores the edges by the interactions of their endpoints. An edge (a, b) gets two
// points for every reply of a to a post of b and one point for every reply of a to a comment of
// b, both attributed to the forum of the post the thread started with. Comments whose thread
// cannot be followed back to a post score nothing; reply chains must be acyclic.
func ScoreEdges(edges dataflow.Collection[Edge], posts dataflow.Collection[Post], comments dataflow.Collection[Comment]) dataflow.Collection[Score] {
	// (reply of, author)
	replies := dataflow.Map(comments, func(c Comment) dataflow.KV[Text, Node] {
		return dataflow.Pair(c.ReplyOf, c.Author)
	})
	postsByID := dataflow.Map(posts, func(p Post) dataflow.KV[Text, Post] { return dataflow.Pair(p.ID, p) })
	commentsByID := dataflow.Map(comments, func(c Comment) dataflow.KV[Text, Comment] { return dataflow.Pair(c.ID, c) })

	// ids are keys, so the joins do not multiply: filter on the edges after joining
	toPosts := dataflow.Semijoin(dataflow.Join(replies, postsByID, func(_ Text, author Node, p Post) Score {
		return dataflow.Pair(NewEdge(author, p.Author), p.Forum)
	}), edges)
	toComments := dataflow.Semijoin(dataflow.Join(replies, commentsByID, func(_ Text, author Node, c Comment) dataflow.KV[Edge, Text] {
		return dataflow.Pair(NewEdge(author, c.Author), c.ReplyOf)
	}), edges)

	// every text points at its parent, posts at themselves
	parents := dataflow.Map(comments, func(c Comment) dataflow.KV[Text, Text] { return dataflow.Pair(c.ID, c.ReplyOf) }).
		Concat(dataflow.Map(posts, func(p Post) dataflow.KV[Text, Text] { return dataflow.Pair(p.ID, p.ID) }))

	// climb each thread one reply per iteration until it reaches its post
	start := dataflow.Map(toComments, func(s dataflow.KV[Edge, Text]) dataflow.KV[Text, Edge] {
		return dataflow.Pair(s.Val, s.Key)
	})
	roots := dataflow.Iterate(start, func(inner *dataflow.Scope, x dataflow.Collection[dataflow.KV[Text, Edge]]) dataflow.Collection[dataflow.KV[Text, Edge]] {
		return dataflow.Join(parents.Enter(inner), x, func(_ Text, parent Text, e Edge) dataflow.KV[Text, Edge] {
			return dataflow.Pair(parent, e)
		})
	})
	viaComments := dataflow.Join(roots, postsByID, func(_ Text, e Edge, p Post) Score {
		return dataflow.Pair(e, p.Forum)
	})

	viaPosts := dataflow.Explode(toPosts, func(s Score) []dataflow.Weighted[Score] {
		return []dataflow.Weighted[Score]{{Value: s, Count: 2}}
	})
	return viaComments.Concat(viaPosts)
}

// PathScores scores the edges on the shortest paths between the goal pairs by the interactions
// of the people they connect. Edges shared by several goals are scored once.
func PathScores(knows dataflow.Collection[Edge], goals dataflow.Collection[Edge], posts dataflow.Collection[Post], comments dataflow.Collection[Comment]) dataflow.Collection[Score] {
	relevant := dataflow.Map(ShortestPaths(knows, goals), func(p dataflow.KV[Edge, Edge]) Edge { return p.Val }).Distinct()
	return ScoreEdges(relevant, posts, comments)
}
