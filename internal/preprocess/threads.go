package preprocess

import (
	"sort"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/goldfish-inc/oceanid/twcs-miner/internal/tweets"
)

// AssignThreads sets MainTweetID on every tweet and sorts the result by
// (MainTweetID, CreatedAt).
//
// Replies form a directed graph parent -> child. Each weakly connected component
// is one conversation and its root is the node without incoming edges. The root
// may be a tweet that is not part of ts (e.g. dropped by sampling); its id is
// still used. Tweets outside the graph fall back to their parent id, then to
// their own id.
func AssignThreads(ts []tweets.Tweet) []tweets.Tweet {
	directed := simple.NewDirectedGraph()
	undirected := simple.NewUndirectedGraph()
	for _, tw := range ts {
		if !tw.HasParent() || tw.InResponseTo == tw.TweetID {
			continue
		}
		from, to := simple.Node(tw.InResponseTo), simple.Node(tw.TweetID)
		directed.SetEdge(directed.NewEdge(from, to))
		undirected.SetEdge(undirected.NewEdge(from, to))
	}

	main := make(map[int64]int64)
	for _, comp := range topo.ConnectedComponents(undirected) {
		root := int64(-1)
		fallback := int64(-1)
		for _, n := range comp {
			id := n.ID()
			if fallback < 0 || id < fallback {
				fallback = id
			}
			if directed.To(id).Len() == 0 && (root < 0 || id < root) {
				root = id
			}
		}
		// a reply cycle has no root
		if root < 0 {
			root = fallback
		}
		for _, n := range comp {
			main[n.ID()] = root
		}
	}

	out := make([]tweets.Tweet, len(ts))
	copy(out, ts)
	for i := range out {
		switch id, ok := main[out[i].TweetID]; {
		case ok:
			out[i].MainTweetID = id
		case out[i].HasParent():
			out[i].MainTweetID = out[i].InResponseTo
		default:
			out[i].MainTweetID = out[i].TweetID
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].MainTweetID != out[b].MainTweetID {
			return out[a].MainTweetID < out[b].MainTweetID
		}
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})
	return out
}
