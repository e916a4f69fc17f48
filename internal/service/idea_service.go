package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pesio-ai/be-proc-requests/internal/common/errors"
	"github.com/pesio-ai/be-proc-requests/internal/common/logger"
	"github.com/pesio-ai/be-proc-requests/internal/domain"
)

// IdeaService manages ideas and their votes.
type IdeaService struct {
	ideas    IdeaStore
	identity IdentityClientInterface
	log      *logger.Logger
	now      func() time.Time
}

// NewIdeaService creates a new IdeaService.
func NewIdeaService(ideas IdeaStore, identity IdentityClientInterface, log *logger.Logger) *IdeaService {
	return &IdeaService{ideas: ideas, identity: identity, log: log, now: time.Now}
}

// CreateIdea records a new idea with zeroed counters.
func (s *IdeaService) CreateIdea(ctx context.Context, title, submittedBy string) (*domain.Idea, error) {
	actor, err := resolveActor(ctx, s.identity, submittedBy)
	if err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, errors.InvalidInput("title", "is required")
	}

	now := s.now().UTC()
	idea := &domain.Idea{
		ID:          uuid.NewString(),
		Title:       title,
		SubmittedBy: actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.ideas.Create(ctx, idea); err != nil {
		return nil, err
	}
	s.log.Info().Str("idea_id", idea.ID).Str("submitted_by", actor.ID).Msg("Idea created")
	return idea, nil
}

// CastVote records or changes the caller's vote and returns the idea with
// counters recounted from the votes.
func (s *IdeaService) CastVote(ctx context.Context, ideaID, userID, direction string) (*domain.Idea, error) {
	actor, err := resolveActor(ctx, s.identity, userID)
	if err != nil {
		return nil, err
	}
	if actor.Blocked {
		return nil, domain.NewError(domain.KindUnauthorized, "actor %s is blocked", actor.ID)
	}
	dir, ok := domain.ParseVoteDirection(direction)
	if !ok {
		return nil, errors.InvalidInput("direction", "must be UP or DOWN")
	}
	if ideaID == "" {
		return nil, errors.InvalidInput("idea_id", "is required")
	}

	idea, err := s.ideas.CastVote(ctx, &domain.Vote{
		IdeaID:    ideaID,
		UserID:    actor.ID,
		Direction: dir,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug().
		Str("idea_id", ideaID).
		Str("user_id", actor.ID).
		Str("direction", string(dir)).
		Int64("vote_count", idea.VoteCount).
		Msg("Vote cast")
	return idea, nil
}

// GetIdea retrieves an idea.
func (s *IdeaService) GetIdea(ctx context.Context, id string) (*domain.Idea, error) {
	if id == "" {
		return nil, errors.InvalidInput("id", "is required")
	}
	return s.ideas.GetByID(ctx, id)
}
