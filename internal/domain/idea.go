package domain

import (
	"strings"
	"time"
)

// VoteDirection is an up or down vote.
type VoteDirection string

const (
	VoteUp   VoteDirection = "UP"
	VoteDown VoteDirection = "DOWN"
)

// ParseVoteDirection accepts any case.
func ParseVoteDirection(v string) (VoteDirection, bool) {
	d := VoteDirection(strings.ToUpper(strings.TrimSpace(v)))
	return d, d == VoteUp || d == VoteDown
}

// Idea carries cached vote counters; Vote rows are the source of truth.
type Idea struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	SubmittedBy   string    `json:"submitted_by"`
	UpvoteCount   int64     `json:"upvote_count"`
	DownvoteCount int64     `json:"downvote_count"`
	VoteCount     int64     `json:"vote_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Vote is one user's vote on an idea. A user holds at most one vote per idea.
type Vote struct {
	IdeaID    string        `json:"idea_id"`
	UserID    string        `json:"user_id"`
	Direction VoteDirection `json:"direction"`
	CreatedAt time.Time     `json:"created_at"`
}
