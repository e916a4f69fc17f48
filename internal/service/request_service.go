package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pesio-ai/be-proc-requests/internal/common/errors"
	"github.com/pesio-ai/be-proc-requests/internal/common/logger"
	"github.com/pesio-ai/be-proc-requests/internal/domain"
	"github.com/pesio-ai/be-proc-requests/internal/repository"
)

// RequestService handles request authoring: drafts, line items and reads.
type RequestService struct {
	requests RequestStore
	audit    AuditStore
	identity IdentityClientInterface
	log      *logger.Logger
	now      func() time.Time
}

// NewRequestService creates a new request service
func NewRequestService(
	requests RequestStore,
	audit AuditStore,
	identity IdentityClientInterface,
	log *logger.Logger,
) *RequestService {
	return &RequestService{
		requests: requests,
		audit:    audit,
		identity: identity,
		log:      log,
		now:      time.Now,
	}
}

// CreateRequestInput represents a create request call
type CreateRequestInput struct {
	Title            string
	Description      *string
	DepartmentID     string
	Currency         string
	ProcurementTypes []string
	Items            []ItemInput
	CreatedBy        string
}

// ItemInput represents one line item. UnitPrice is in minor units.
type ItemInput struct {
	Description string
	Quantity    int64
	UnitPrice   int64
}

// CreateDraft creates a request in DRAFT owned by the caller.
func (s *RequestService) CreateDraft(ctx context.Context, in *CreateRequestInput) (*domain.Request, error) {
	actor, err := resolveActor(ctx, s.identity, in.CreatedBy)
	if err != nil {
		return nil, err
	}
	if actor.Blocked {
		return nil, domain.NewError(domain.KindUnauthorized, "actor %s is blocked", actor.ID)
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, errors.InvalidInput("title", "is required")
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if len(currency) != 3 {
		return nil, errors.InvalidInput("currency", "must be a 3-letter ISO code")
	}

	department := actor.DepartmentID
	if in.DepartmentID != "" && in.DepartmentID != department {
		if !actor.HasRole(domain.RoleAdmin) {
			return nil, domain.NewError(domain.KindUnauthorized,
				"actor %s may not create requests for department %s", actor.ID, in.DepartmentID)
		}
		department = in.DepartmentID
	}
	if department == "" {
		return nil, errors.InvalidInput("department_id", "is required")
	}

	types, err := normalizeTypes(in.ProcurementTypes)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	req := &domain.Request{
		ID:               uuid.NewString(),
		Reference:        newReference(now),
		Title:            title,
		Description:      in.Description,
		DepartmentID:     department,
		RequesterID:      actor.ID,
		Currency:         currency,
		ProcurementTypes: types,
		Status:           domain.StatusDraft,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if req.Items, err = buildItems(req.ID, in.Items); err != nil {
		return nil, err
	}
	if err := req.RecalculateTotal(); err != nil {
		return nil, err
	}

	cs := &repository.Changeset{
		Requests: []repository.RequestWrite{{Request: req, WriteItems: true}},
	}
	if err := s.requests.Apply(ctx, cs); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("request_id", req.ID).
		Str("reference", req.Reference).
		Str("department_id", req.DepartmentID).
		Int64("total_estimated", req.TotalEstimated).
		Msg("Request created")

	status := req.Status
	s.appendAudit(ctx, &domain.AuditEntry{
		RequestID:   req.ID,
		Action:      "created",
		PerformedBy: actor.ID,
		StatusAfter: &status,
		Metadata:    map[string]any{"reference": req.Reference, "total_estimated": req.TotalEstimated},
	})
	return req, nil
}

// ReplaceItemsInput replaces every line item of a request.
type ReplaceItemsInput struct {
	RequestID string
	// ExpectedVersion, when set, must match the stored version.
	ExpectedVersion int64
	Items           []ItemInput
	UpdatedBy       string
}

// ReplaceItems swaps the line items of an editable request and recomputes
// its total in the same write.
func (s *RequestService) ReplaceItems(ctx context.Context, in *ReplaceItemsInput) (*domain.Request, error) {
	actor, err := resolveActor(ctx, s.identity, in.UpdatedBy)
	if err != nil {
		return nil, err
	}
	req, err := s.requests.GetByID(ctx, in.RequestID)
	if err != nil {
		return nil, err
	}
	if in.ExpectedVersion != 0 && in.ExpectedVersion != req.Version {
		return nil, domain.NewError(domain.KindConcurrentModification,
			"request %s is at version %d, not %d", req.ID, req.Version, in.ExpectedVersion)
	}

	switch {
	case req.IsMember():
		return nil, domain.NewError(domain.KindRequestIsCombined,
			"request %s is part of combined request %s", req.ID, *req.CombinedRequestID)
	case req.IsCombined:
		return nil, domain.NewError(domain.KindIllegalTransition,
			"items of combined request %s come from its members", req.ID)
	case !req.Status.IsEditable():
		return nil, domain.NewError(domain.KindIllegalTransition,
			"items cannot change while request %s is %s", req.ID, req.Status)
	case !req.ItemsEditable():
		return nil, domain.NewError(domain.KindIllegalTransition,
			"items of request %s are frozen after executive review", req.ID)
	}
	if actor.Blocked || (req.RequesterID != actor.ID && !actor.HasRole(domain.RoleAdmin)) {
		return nil, domain.NewError(domain.KindUnauthorized, "actor %s may not edit request %s", actor.ID, req.ID)
	}

	next := req.Clone()
	if next.Items, err = buildItems(req.ID, in.Items); err != nil {
		return nil, err
	}
	if err := next.RecalculateTotal(); err != nil {
		return nil, err
	}

	cs := &repository.Changeset{
		Requests: []repository.RequestWrite{{Request: next, ExpectedVersion: req.Version, WriteItems: true}},
	}
	if err := s.requests.Apply(ctx, cs); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("request_id", req.ID).
		Int("items", len(next.Items)).
		Int64("total_estimated", next.TotalEstimated).
		Msg("Request items replaced")

	s.appendAudit(ctx, &domain.AuditEntry{
		RequestID:    req.ID,
		Action:       "items_replaced",
		PerformedBy:  actor.ID,
		StatusBefore: &req.Status,
		StatusAfter:  &next.Status,
		Metadata: map[string]any{
			"total_before": req.TotalEstimated,
			"total_after":  next.TotalEstimated,
			"items":        len(next.Items),
		},
	})
	return next, nil
}

// GetRequest retrieves a request with its items.
func (s *RequestService) GetRequest(ctx context.Context, id string) (*domain.Request, error) {
	if id == "" {
		return nil, errors.InvalidInput("id", "is required")
	}
	return s.requests.GetByID(ctx, id)
}

// ListRequests returns a page of requests and the total match count.
func (s *RequestService) ListRequests(ctx context.Context, filter repository.RequestFilter) ([]*domain.Request, int64, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, 0, errors.InvalidInput("status", "unknown status "+string(*filter.Status))
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, 0, errors.InvalidInput("limit", "limit and offset cannot be negative")
	}
	return s.requests.List(ctx, filter)
}

func (s *RequestService) appendAudit(ctx context.Context, entry *domain.AuditEntry) {
	if err := s.audit.Append(ctx, entry); err != nil {
		s.log.Warn().Err(err).
			Str("request_id", entry.RequestID).
			Str("action", entry.Action).
			Msg("Failed to write audit log entry")
	}
}

func buildItems(requestID string, in []ItemInput) ([]domain.LineItem, error) {
	if len(in) == 0 {
		return nil, errors.InvalidInput("items", "at least one item is required")
	}
	items := make([]domain.LineItem, 0, len(in))
	for i, it := range in {
		desc := strings.TrimSpace(it.Description)
		if desc == "" {
			return nil, errors.InvalidInput(fmt.Sprintf("items[%d].description", i), "is required")
		}
		items = append(items, domain.LineItem{
			ID:          uuid.NewString(),
			RequestID:   requestID,
			Description: desc,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
		})
	}
	return items, nil
}

func normalizeTypes(in []string) ([]string, error) {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil, errors.InvalidInput("procurement_types", "at least one procurement type is required")
	}
	return out, nil
}

// newReference formats REQ-YYYYMMDD-XXXXXX.
func newReference(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:6]
	return fmt.Sprintf("REQ-%s-%s", now.Format("20060102"), suffix)
}
