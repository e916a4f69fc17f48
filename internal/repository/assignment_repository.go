package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-proc-requests/internal/common/database"
	"github.com/pesio-ai/be-proc-requests/internal/common/errors"
	"github.com/pesio-ai/be-proc-requests/internal/domain"
)

// AssignmentRepository reads officer assignments. The newest row per request
// is the current assignee.
type AssignmentRepository struct {
	db *database.DB
}

// NewAssignmentRepository creates a new AssignmentRepository.
func NewAssignmentRepository(db *database.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

func insertAssignment(ctx context.Context, tx pgx.Tx, a *domain.WorkflowAssignment) error {
	query := `
		INSERT INTO workflow_assignments
		    (id, request_id, officer_id, strategy, cursor_used, load_at_pick, assigned_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING assigned_at
	`
	err := tx.QueryRow(ctx, query,
		a.ID,
		a.RequestID,
		a.OfficerID,
		a.Strategy,
		a.CursorUsed,
		a.LoadAtPick,
		a.AssignedBy,
	).Scan(&a.AssignedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to record assignment")
	}
	return nil
}

// ListByRequest returns a request's assignments newest-first.
func (r *AssignmentRepository) ListByRequest(ctx context.Context, requestID string) ([]*domain.WorkflowAssignment, error) {
	query := `
		SELECT id, request_id, officer_id, strategy, cursor_used, load_at_pick, assigned_by, assigned_at
		FROM workflow_assignments
		WHERE request_id = $1
		ORDER BY assigned_at DESC
	`

	rows, err := r.db.Query(ctx, query, requestID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list assignments")
	}
	defer rows.Close()

	out := make([]*domain.WorkflowAssignment, 0)
	for rows.Next() {
		a := &domain.WorkflowAssignment{}
		if err := rows.Scan(
			&a.ID,
			&a.RequestID,
			&a.OfficerID,
			&a.Strategy,
			&a.CursorUsed,
			&a.LoadAtPick,
			&a.AssignedBy,
			&a.AssignedAt,
		); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan assignment")
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
