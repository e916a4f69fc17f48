package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-proc-requests/internal/common/database"
	"github.com/pesio-ai/be-proc-requests/internal/common/errors"
	"github.com/pesio-ai/be-proc-requests/internal/domain"
)

// SettingsRepository owns the single load_balancing_settings row, including
// the shared round-robin cursor.
type SettingsRepository struct {
	db *database.DB
}

// NewSettingsRepository creates a new SettingsRepository.
func NewSettingsRepository(db *database.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get reads the settings row.
func (r *SettingsRepository) Get(ctx context.Context) (*domain.LoadBalancingSettings, error) {
	query := `
		SELECT enabled, strategy, auto_assign_on_approve, last_rr_index, updated_by, updated_at
		FROM load_balancing_settings
		WHERE id = 1
	`

	s := &domain.LoadBalancingSettings{}
	err := r.db.QueryRow(ctx, query).Scan(
		&s.Enabled,
		&s.Strategy,
		&s.AutoAssignOnApprove,
		&s.LastRoundRobinIndex,
		&s.UpdatedBy,
		&s.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("load_balancing_settings", "1")
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get load balancing settings")
	}
	return s, nil
}

// Update writes the operator-controlled fields. The cursor is left alone.
func (r *SettingsRepository) Update(ctx context.Context, s *domain.LoadBalancingSettings) error {
	query := `
		UPDATE load_balancing_settings
		SET enabled = $1,
		    strategy = $2,
		    auto_assign_on_approve = $3,
		    updated_by = $4,
		    updated_at = NOW()
		WHERE id = 1
		RETURNING last_rr_index, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		s.Enabled,
		s.Strategy,
		s.AutoAssignOnApprove,
		s.UpdatedBy,
	).Scan(&s.LastRoundRobinIndex, &s.UpdatedAt)
	if err == pgx.ErrNoRows {
		return errors.NotFound("load_balancing_settings", "1")
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update load balancing settings")
	}
	return nil
}

// Advance moves the round-robin cursor one step modulo n in a single
// statement and returns the position it held before the move. Concurrent
// callers serialize on the row lock, so each sees a distinct position.
func (r *SettingsRepository) Advance(ctx context.Context, n int) (int, error) {
	if n <= 0 {
		return 0, errors.InvalidInput("n", "must be positive")
	}

	query := `
		UPDATE load_balancing_settings
		SET last_rr_index = (last_rr_index % $1 + 1) % $1
		WHERE id = 1
		RETURNING (last_rr_index + $1 - 1) % $1
	`

	var before int
	err := r.db.QueryRow(ctx, query, n).Scan(&before)
	if err == pgx.ErrNoRows {
		return 0, errors.NotFound("load_balancing_settings", "1")
	}
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to advance round-robin cursor")
	}
	return before, nil
}
