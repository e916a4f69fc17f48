package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-proc-requests/internal/common/database"
	"github.com/pesio-ai/be-proc-requests/internal/common/errors"
	"github.com/pesio-ai/be-proc-requests/internal/domain"
)

// StatusHistoryRepository reads the per-request status trail. Rows are only
// written through a Changeset so they commit with the status change.
type StatusHistoryRepository struct {
	db *database.DB
}

// NewStatusHistoryRepository creates a new StatusHistoryRepository.
func NewStatusHistoryRepository(db *database.DB) *StatusHistoryRepository {
	return &StatusHistoryRepository{db: db}
}

func insertHistory(ctx context.Context, tx pgx.Tx, e *domain.StatusHistoryEntry) error {
	query := `
		INSERT INTO request_status_history
		    (request_id, from_status, to_status, action, actor_id, comment)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	err := tx.QueryRow(ctx, query,
		e.RequestID,
		e.FromStatus,
		e.ToStatus,
		e.Action,
		e.ActorID,
		e.Comment,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to record status history")
	}
	return nil
}

// ListByRequest returns a request's history oldest-first.
func (r *StatusHistoryRepository) ListByRequest(ctx context.Context, requestID string) ([]*domain.StatusHistoryEntry, error) {
	query := `
		SELECT id, request_id, from_status, to_status, action, actor_id, comment, created_at
		FROM request_status_history
		WHERE request_id = $1
		ORDER BY created_at ASC, id
	`

	rows, err := r.db.Query(ctx, query, requestID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get status history")
	}
	defer rows.Close()

	entries := make([]*domain.StatusHistoryEntry, 0)
	for rows.Next() {
		e := &domain.StatusHistoryEntry{}
		if err := rows.Scan(
			&e.ID,
			&e.RequestID,
			&e.FromStatus,
			&e.ToStatus,
			&e.Action,
			&e.ActorID,
			&e.Comment,
			&e.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan status history")
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
