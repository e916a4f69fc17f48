// Package recompute derives cached aggregate counters from their child
// records and repairs caches that have drifted.
package recompute

import (
	"github.com/pesio-ai/be-proc-requests/internal/domain"
)

// Counter names.
const (
	TotalEstimated = "total_estimated"
	LineTotals     = "line_totals"
	UpvoteCount    = "upvote_count"
	DownvoteCount  = "downvote_count"
	VoteCount      = "vote_count"
)

// Counters maps counter name to value.
type Counters map[string]int64

// Diff returns the names whose values differ between c and other, in the
// order given by names.
func (c Counters) Diff(other Counters, names ...string) []string {
	var out []string
	for _, n := range names {
		if c[n] != other[n] {
			out = append(out, n)
		}
	}
	return out
}

// RequestCounters recomputes a request's line totals and total from
// quantity and unit price. The returned items carry corrected LineTotal
// values; the input slice is not modified.
func RequestCounters(items []domain.LineItem) (Counters, []domain.LineItem, error) {
	r := &domain.Request{Items: append([]domain.LineItem(nil), items...)}
	if err := r.RecalculateTotal(); err != nil {
		return nil, nil, err
	}
	return Counters{TotalEstimated: r.TotalEstimated}, r.Items, nil
}

// IdeaCounters tallies votes. vote_count is up minus down.
func IdeaCounters(votes []domain.Vote) Counters {
	var up, down int64
	for _, v := range votes {
		switch v.Direction {
		case domain.VoteUp:
			up++
		case domain.VoteDown:
			down++
		}
	}
	return Counters{
		UpvoteCount:   up,
		DownvoteCount: down,
		VoteCount:     up - down,
	}
}

// IdeaCached reads the cached counters off an idea.
func IdeaCached(idea domain.Idea) Counters {
	return Counters{
		UpvoteCount:   idea.UpvoteCount,
		DownvoteCount: idea.DownvoteCount,
		VoteCount:     idea.VoteCount,
	}
}

// ApplyIdea writes c onto idea.
func ApplyIdea(idea *domain.Idea, c Counters) {
	idea.UpvoteCount = c[UpvoteCount]
	idea.DownvoteCount = c[DownvoteCount]
	idea.VoteCount = c[VoteCount]
}
