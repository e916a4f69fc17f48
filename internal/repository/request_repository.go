package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-proc-requests/internal/common/database"
	"github.com/pesio-ai/be-proc-requests/internal/common/errors"
	"github.com/pesio-ai/be-proc-requests/internal/domain"
	"github.com/pesio-ai/be-proc-requests/internal/recompute"
)

// RequestWrite is one request row written by a Changeset.
type RequestWrite struct {
	Request *domain.Request
	// ExpectedVersion guards an update. Zero inserts a new row.
	ExpectedVersion int64
	// WriteItems replaces the stored line items with Request.Items.
	WriteItems bool
}

// Changeset is everything one workflow operation commits. It is applied in
// a single transaction or not at all.
type Changeset struct {
	Requests    []RequestWrite
	History     []*domain.StatusHistoryEntry
	Assignments []*domain.WorkflowAssignment
}

// RequestFilter narrows List.
type RequestFilter struct {
	Status       *domain.Status
	DepartmentID *string
	RequesterID  *string
	AssigneeID   *string
	Limit        int
	Offset       int
}

// RequestRepository handles procurement request data operations.
type RequestRepository struct {
	db *database.DB
}

// NewRequestRepository creates a new request repository
func NewRequestRepository(db *database.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

const requestColumns = `
	id, reference, title, description, department_id, requester_id,
	currency, procurement_types, total_estimated, status, assignee_id,
	is_combined, combined_request_id, member_request_ids,
	requires_executive_approval, executive_reviewed, resubmission_count, version,
	created_at, updated_at`

// ── Writes ────────────────────────────────────────────────────────────────────

// Apply commits cs atomically. An update whose expected version no longer
// matches aborts the whole changeset with ConcurrentModification.
func (r *RequestRepository) Apply(ctx context.Context, cs *Changeset) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		for _, w := range cs.Requests {
			var err error
			if w.ExpectedVersion == 0 {
				err = insertRequest(ctx, tx, w.Request)
			} else {
				err = updateRequest(ctx, tx, w.Request, w.ExpectedVersion)
			}
			if err != nil {
				return err
			}
			if w.WriteItems {
				if err := replaceItems(ctx, tx, w.Request); err != nil {
					return err
				}
			}
		}
		for _, h := range cs.History {
			if err := insertHistory(ctx, tx, h); err != nil {
				return err
			}
		}
		for _, a := range cs.Assignments {
			if err := insertAssignment(ctx, tx, a); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertRequest(ctx context.Context, tx pgx.Tx, req *domain.Request) error {
	query := `
		INSERT INTO procurement_requests
		    (id, reference, title, description, department_id, requester_id,
		     currency, procurement_types, total_estimated, status, assignee_id,
		     is_combined, combined_request_id, member_request_ids,
		     requires_executive_approval, executive_reviewed, resubmission_count, version)
		VALUES ($1, $2, $3, $4, $5, $6,
		        $7, $8, $9, $10, $11,
		        $12, $13, $14,
		        $15, $16, $17, 1)
		RETURNING version, created_at, updated_at
	`

	err := tx.QueryRow(ctx, query,
		req.ID,
		req.Reference,
		req.Title,
		req.Description,
		req.DepartmentID,
		req.RequesterID,
		req.Currency,
		nonNil(req.ProcurementTypes),
		req.TotalEstimated,
		req.Status,
		req.AssigneeID,
		req.IsCombined,
		req.CombinedRequestID,
		nonNil(req.MemberRequestIDs),
		req.RequiresExecutiveApproval,
		req.ExecutiveReviewed,
		req.ResubmissionCount,
	).Scan(&req.Version, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create request")
	}
	return nil
}

func updateRequest(ctx context.Context, tx pgx.Tx, req *domain.Request, expected int64) error {
	query := `
		UPDATE procurement_requests
		SET title = $3,
		    description = $4,
		    procurement_types = $5,
		    total_estimated = $6,
		    status = $7,
		    assignee_id = $8,
		    combined_request_id = $9,
		    member_request_ids = $10,
		    requires_executive_approval = $11,
		    executive_reviewed = $12,
		    resubmission_count = $13,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING version, updated_at
	`

	err := tx.QueryRow(ctx, query,
		req.ID,
		expected,
		req.Title,
		req.Description,
		nonNil(req.ProcurementTypes),
		req.TotalEstimated,
		req.Status,
		req.AssigneeID,
		req.CombinedRequestID,
		nonNil(req.MemberRequestIDs),
		req.RequiresExecutiveApproval,
		req.ExecutiveReviewed,
		req.ResubmissionCount,
	).Scan(&req.Version, &req.UpdatedAt)

	if err == pgx.ErrNoRows {
		return domain.NewError(domain.KindConcurrentModification,
			"request %s changed since version %d", req.ID, expected)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update request")
	}
	return nil
}

func replaceItems(ctx context.Context, tx pgx.Tx, req *domain.Request) error {
	if _, err := tx.Exec(ctx, `DELETE FROM procurement_request_items WHERE request_id = $1`, req.ID); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to clear request items")
	}

	batch := &pgx.Batch{}
	for i := range req.Items {
		it := &req.Items[i]
		it.RequestID = req.ID
		batch.Queue(`
			INSERT INTO procurement_request_items
			    (id, request_id, source_request_id, line_number,
			     description, quantity, unit_price, line_total)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, it.ID, it.RequestID, it.SourceRequestID, it.LineNumber,
			it.Description, it.Quantity, it.UnitPrice, it.LineTotal)
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to write request items")
	}
	return nil
}

// ── Reads ─────────────────────────────────────────────────────────────────────

// GetByID retrieves a request with its items.
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*domain.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM procurement_requests WHERE id = $1`

	req, err := scanRequest(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("request", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get request")
	}

	items, err := r.GetItems(ctx, id)
	if err != nil {
		return nil, err
	}
	req.Items = items
	return req, nil
}

// GetByIDs retrieves several requests with items, in the order of ids.
// A missing id is NotFound.
func (r *RequestRepository) GetByIDs(ctx context.Context, ids []string) ([]*domain.Request, error) {
	out := make([]*domain.Request, 0, len(ids))
	for _, id := range ids {
		req, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, nil
}

// GetStatus reads only the status column.
func (r *RequestRepository) GetStatus(ctx context.Context, id string) (domain.Status, error) {
	var status domain.Status
	err := r.db.QueryRow(ctx, `SELECT status FROM procurement_requests WHERE id = $1`, id).Scan(&status)
	if err == pgx.ErrNoRows {
		return "", errors.NotFound("request", id)
	}
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "failed to get request status")
	}
	return status, nil
}

// GetItems returns a request's items ordered by line number.
func (r *RequestRepository) GetItems(ctx context.Context, requestID string) ([]domain.LineItem, error) {
	query := `
		SELECT id, request_id, source_request_id, line_number,
		       description, quantity, unit_price, line_total
		FROM procurement_request_items
		WHERE request_id = $1
		ORDER BY line_number
	`

	rows, err := r.db.Query(ctx, query, requestID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get request items")
	}
	defer rows.Close()

	items := make([]domain.LineItem, 0)
	for rows.Next() {
		var it domain.LineItem
		if err := rows.Scan(
			&it.ID,
			&it.RequestID,
			&it.SourceRequestID,
			&it.LineNumber,
			&it.Description,
			&it.Quantity,
			&it.UnitPrice,
			&it.LineTotal,
		); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan request item")
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// List returns requests without items, newest first.
func (r *RequestRepository) List(ctx context.Context, f RequestFilter) ([]*domain.Request, int64, error) {
	where, args := listConditions(f)

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM procurement_requests`+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to count requests")
	}

	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `SELECT ` + requestColumns + ` FROM procurement_requests` + where +
		fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)

	rows, err := r.db.Query(ctx, query, append(args, limit, f.Offset)...)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to list requests")
	}
	defer rows.Close()

	reqs := make([]*domain.Request, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan request")
		}
		reqs = append(reqs, req)
	}
	return reqs, total, rows.Err()
}

func listConditions(f RequestFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(column string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if f.Status != nil {
		add("status", string(*f.Status))
	}
	if f.DepartmentID != nil {
		add("department_id", *f.DepartmentID)
	}
	if f.RequesterID != nil {
		add("requester_id", *f.RequesterID)
	}
	if f.AssigneeID != nil {
		add("assignee_id", *f.AssigneeID)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ── Load counting ─────────────────────────────────────────────────────────────

// inactiveStatuses do not count toward an officer's load.
var inactiveStatuses = []string{
	string(domain.StatusClosed),
	string(domain.StatusRejected),
	string(domain.StatusDepartmentReturned),
	string(domain.StatusFinanceReturned),
}

// terminalStatuses release the members of a combined parent.
var terminalStatuses = []string{
	string(domain.StatusClosed),
	string(domain.StatusRejected),
}

// ActiveCounts returns, per officer, the number of assigned requests that are
// neither terminal nor returned. Members frozen under a live combined parent
// are not counted; the parent carries that work. Officers with none map to zero.
func (r *RequestRepository) ActiveCounts(ctx context.Context, officerIDs []string) (map[string]int, error) {
	query := `
		SELECT r.assignee_id, COUNT(*)
		FROM procurement_requests r
		WHERE r.assignee_id = ANY($1)
		  AND NOT (r.status = ANY($2))
		  AND NOT EXISTS (
			SELECT 1 FROM procurement_requests p
			WHERE p.id = r.combined_request_id AND NOT (p.status = ANY($3))
		  )
		GROUP BY r.assignee_id
	`

	rows, err := r.db.Query(ctx, query, officerIDs, inactiveStatuses, terminalStatuses)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to count active requests")
	}
	defer rows.Close()

	counts := make(map[string]int, len(officerIDs))
	for _, id := range officerIDs {
		counts[id] = 0
	}
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan active count")
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

// ── Reconciliation ────────────────────────────────────────────────────────────

// RequestSnapshots pages through requests by id with their items.
func (r *RequestRepository) RequestSnapshots(ctx context.Context, afterID string, limit int) ([]recompute.RequestSnapshot, error) {
	query := `
		SELECT id::text, version, total_estimated
		FROM procurement_requests
		WHERE id::text > $1
		ORDER BY id::text
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, afterID, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to page requests")
	}
	var snaps []recompute.RequestSnapshot
	for rows.Next() {
		var s recompute.RequestSnapshot
		if err := rows.Scan(&s.ID, &s.Version, &s.TotalEstimated); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan request snapshot")
		}
		snaps = append(snaps, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to page requests")
	}

	for i := range snaps {
		items, err := r.GetItems(ctx, snaps[i].ID)
		if err != nil {
			return nil, err
		}
		snaps[i].Items = items
	}
	return snaps, nil
}

// OverwriteRequestTotals writes recomputed totals while the request is still
// at snap.Version. The version is not bumped: the business state is unchanged.
func (r *RequestRepository) OverwriteRequestTotals(ctx context.Context, snap recompute.RequestSnapshot, items []domain.LineItem, total int64) (bool, error) {
	applied := false
	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE procurement_requests
			SET total_estimated = $3
			WHERE id = $1 AND version = $2
		`, snap.ID, snap.Version, total)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to overwrite request total")
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		for _, it := range items {
			if _, err := tx.Exec(ctx, `
				UPDATE procurement_request_items
				SET line_total = $2
				WHERE id = $1
			`, it.ID, it.LineTotal); err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to overwrite line total")
			}
		}
		applied = true
		return nil
	})
	return applied, err
}

// ── scan helpers ──────────────────────────────────────────────────────────────

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(sc scanner) (*domain.Request, error) {
	req := &domain.Request{}
	err := sc.Scan(
		&req.ID,
		&req.Reference,
		&req.Title,
		&req.Description,
		&req.DepartmentID,
		&req.RequesterID,
		&req.Currency,
		&req.ProcurementTypes,
		&req.TotalEstimated,
		&req.Status,
		&req.AssigneeID,
		&req.IsCombined,
		&req.CombinedRequestID,
		&req.MemberRequestIDs,
		&req.RequiresExecutiveApproval,
		&req.ExecutiveReviewed,
		&req.ResubmissionCount,
		&req.Version,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return req, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
