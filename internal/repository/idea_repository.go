package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-proc-requests/internal/common/database"
	"github.com/pesio-ai/be-proc-requests/internal/common/errors"
	"github.com/pesio-ai/be-proc-requests/internal/domain"
	"github.com/pesio-ai/be-proc-requests/internal/recompute"
)

// IdeaRepository handles ideas and their votes.
type IdeaRepository struct {
	db *database.DB
}

// NewIdeaRepository creates a new IdeaRepository.
func NewIdeaRepository(db *database.DB) *IdeaRepository {
	return &IdeaRepository{db: db}
}

// Create inserts an idea with zeroed counters.
func (r *IdeaRepository) Create(ctx context.Context, idea *domain.Idea) error {
	query := `
		INSERT INTO ideas (id, title, submitted_by)
		VALUES ($1, $2, $3)
		RETURNING upvote_count, downvote_count, vote_count, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query, idea.ID, idea.Title, idea.SubmittedBy).Scan(
		&idea.UpvoteCount, &idea.DownvoteCount, &idea.VoteCount, &idea.CreatedAt, &idea.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create idea")
	}
	return nil
}

// GetByID retrieves an idea.
func (r *IdeaRepository) GetByID(ctx context.Context, id string) (*domain.Idea, error) {
	idea, err := scanIdea(r.db.QueryRow(ctx, `
		SELECT id, title, submitted_by, upvote_count, downvote_count, vote_count, created_at, updated_at
		FROM ideas
		WHERE id = $1
	`, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("idea", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get idea")
	}
	return idea, nil
}

// CastVote stores the user's vote, replacing any earlier one, and rewrites
// the idea's counters from its vote rows in the same transaction.
func (r *IdeaRepository) CastVote(ctx context.Context, vote *domain.Vote) (*domain.Idea, error) {
	var idea *domain.Idea
	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		// Row lock serializes concurrent votes on one idea.
		var err error
		idea, err = scanIdea(tx.QueryRow(ctx, `
			SELECT id, title, submitted_by, upvote_count, downvote_count, vote_count, created_at, updated_at
			FROM ideas
			WHERE id = $1
			FOR UPDATE
		`, vote.IdeaID))
		if err == pgx.ErrNoRows {
			return errors.NotFound("idea", vote.IdeaID)
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to lock idea")
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO idea_votes (idea_id, user_id, direction)
			VALUES ($1, $2, $3)
			ON CONFLICT (idea_id, user_id) DO UPDATE SET direction = EXCLUDED.direction
			RETURNING created_at
		`, vote.IdeaID, vote.UserID, vote.Direction).Scan(&vote.CreatedAt)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to store vote")
		}

		votes, err := queryVotes(ctx, tx, vote.IdeaID)
		if err != nil {
			return err
		}
		recompute.ApplyIdea(idea, recompute.IdeaCounters(votes))

		err = tx.QueryRow(ctx, `
			UPDATE ideas
			SET upvote_count = $2, downvote_count = $3, vote_count = $4, updated_at = NOW()
			WHERE id = $1
			RETURNING updated_at
		`, idea.ID, idea.UpvoteCount, idea.DownvoteCount, idea.VoteCount).Scan(&idea.UpdatedAt)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to update idea counters")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return idea, nil
}

// IdeaSnapshots pages through ideas by id with their votes.
func (r *IdeaRepository) IdeaSnapshots(ctx context.Context, afterID string, limit int) ([]recompute.IdeaSnapshot, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id::text, title, submitted_by, upvote_count, downvote_count, vote_count, created_at, updated_at
		FROM ideas
		WHERE id::text > $1
		ORDER BY id::text
		LIMIT $2
	`, afterID, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to page ideas")
	}
	var snaps []recompute.IdeaSnapshot
	for rows.Next() {
		idea, err := scanIdea(rows)
		if err != nil {
			rows.Close()
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan idea")
		}
		snaps = append(snaps, recompute.IdeaSnapshot{Idea: *idea})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to page ideas")
	}

	for i := range snaps {
		votes, err := queryVotes(ctx, r.db.Pool, snaps[i].Idea.ID)
		if err != nil {
			return nil, err
		}
		snaps[i].Votes = votes
	}
	return snaps, nil
}

// OverwriteIdeaCounters writes actual only while the cached counters still
// equal expected.
func (r *IdeaRepository) OverwriteIdeaCounters(ctx context.Context, ideaID string, expected, actual recompute.Counters) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE ideas
		SET upvote_count = $5, downvote_count = $6, vote_count = $7, updated_at = NOW()
		WHERE id = $1 AND upvote_count = $2 AND downvote_count = $3 AND vote_count = $4
	`, ideaID,
		expected[recompute.UpvoteCount], expected[recompute.DownvoteCount], expected[recompute.VoteCount],
		actual[recompute.UpvoteCount], actual[recompute.DownvoteCount], actual[recompute.VoteCount])
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeInternal, "failed to overwrite idea counters")
	}
	return tag.RowsAffected() == 1, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryVotes(ctx context.Context, q querier, ideaID string) ([]domain.Vote, error) {
	rows, err := q.Query(ctx, `
		SELECT idea_id, user_id, direction, created_at
		FROM idea_votes
		WHERE idea_id = $1
	`, ideaID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get votes")
	}
	defer rows.Close()

	votes := make([]domain.Vote, 0)
	for rows.Next() {
		var v domain.Vote
		if err := rows.Scan(&v.IdeaID, &v.UserID, &v.Direction, &v.CreatedAt); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan vote")
		}
		votes = append(votes, v)
	}
	return votes, rows.Err()
}

func scanIdea(sc scanner) (*domain.Idea, error) {
	idea := &domain.Idea{}
	err := sc.Scan(
		&idea.ID,
		&idea.Title,
		&idea.SubmittedBy,
		&idea.UpvoteCount,
		&idea.DownvoteCount,
		&idea.VoteCount,
		&idea.CreatedAt,
		&idea.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return idea, nil
}
