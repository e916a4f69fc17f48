package repository

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pesio-ai/be-proc-requests/internal/common/database"
	"github.com/pesio-ai/be-proc-requests/internal/common/errors"
	"github.com/pesio-ai/be-proc-requests/internal/domain"
)

const pgUniqueViolation = "23505"

// ThresholdRulesRepository handles CRUD for threshold_rules.
type ThresholdRulesRepository struct {
	db *database.DB
}

// NewThresholdRulesRepository creates a new ThresholdRulesRepository.
func NewThresholdRulesRepository(db *database.DB) *ThresholdRulesRepository {
	return &ThresholdRulesRepository{db: db}
}

// Create stores rule as the active rule for its (type, currency) pair,
// retiring whichever rule was active for that pair.
func (r *ThresholdRulesRepository) Create(ctx context.Context, rule *domain.ThresholdRule) error {
	rule.ProcurementType = strings.ToLower(strings.TrimSpace(rule.ProcurementType))
	rule.Currency = strings.ToUpper(strings.TrimSpace(rule.Currency))
	rule.IsActive = true

	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			UPDATE threshold_rules
			SET is_active = FALSE, updated_at = NOW()
			WHERE LOWER(procurement_type) = $1 AND UPPER(currency) = $2 AND is_active
		`, rule.ProcurementType, rule.Currency); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to retire threshold rule")
		}

		query := `
			INSERT INTO threshold_rules (procurement_type, currency, cutoff, is_active)
			VALUES ($1, $2, $3, TRUE)
			RETURNING id, created_at, updated_at
		`
		return tx.QueryRow(ctx, query,
			rule.ProcurementType,
			rule.Currency,
			rule.Cutoff,
		).Scan(&rule.ID, &rule.CreatedAt, &rule.UpdatedAt)
	})

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return errors.New(errors.ErrCodeConflict, "an active threshold rule for this type and currency was created concurrently")
	}
	if err != nil && errors.CodeOf(err) == errors.ErrCodeInternal {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create threshold rule")
	}
	return err
}

// ListActive returns the rules the threshold policy evaluates.
func (r *ThresholdRulesRepository) ListActive(ctx context.Context) ([]domain.ThresholdRule, error) {
	return r.list(ctx, true)
}

// List returns all rules, retired ones included.
func (r *ThresholdRulesRepository) List(ctx context.Context) ([]domain.ThresholdRule, error) {
	return r.list(ctx, false)
}

func (r *ThresholdRulesRepository) list(ctx context.Context, activeOnly bool) ([]domain.ThresholdRule, error) {
	query := `
		SELECT id, procurement_type, currency, cutoff, is_active, created_at, updated_at
		FROM threshold_rules
	`
	if activeOnly {
		query += " WHERE is_active = TRUE"
	}
	query += " ORDER BY procurement_type ASC, currency ASC, created_at DESC"

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list threshold rules")
	}
	defer rows.Close()

	rules := make([]domain.ThresholdRule, 0)
	for rows.Next() {
		var rule domain.ThresholdRule
		if err := rows.Scan(
			&rule.ID,
			&rule.ProcurementType,
			&rule.Currency,
			&rule.Cutoff,
			&rule.IsActive,
			&rule.CreatedAt,
			&rule.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan threshold rule")
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// Deactivate retires a rule. Requests of that type then fail open until a
// new rule is created.
func (r *ThresholdRulesRepository) Deactivate(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE threshold_rules
		SET is_active = FALSE, updated_at = NOW()
		WHERE id = $1
	`, id)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to deactivate threshold rule")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("threshold_rule", id)
	}
	return nil
}
