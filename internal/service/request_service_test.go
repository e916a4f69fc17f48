package service

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-proc-requests/internal/common/errors"
	"github.com/pesio-ai/be-proc-requests/internal/common/logger"
	"github.com/pesio-ai/be-proc-requests/internal/domain"
	"github.com/pesio-ai/be-proc-requests/internal/repository"
)

func newRequestService(reqs ...*domain.Request) (*RequestService, *memoryRequests, *memoryAudit) {
	store := newMemoryRequests(reqs...)
	audit := &memoryAudit{}
	identity := newIdentity(requester, deptManager, admin)
	return NewRequestService(store, audit, identity, logger.Nop()), store, audit
}

func TestCreateDraft(t *testing.T) {
	svc, store, audit := newRequestService()

	req, err := svc.CreateDraft(context.Background(), &CreateRequestInput{
		Title:            "  Laptops ",
		Currency:         "usd",
		ProcurementTypes: []string{"Goods", "goods", " IT "},
		Items: []ItemInput{
			{Description: "laptop", Quantity: 3, UnitPrice: 120000},
			{Description: "dock", Quantity: 3, UnitPrice: 15000},
		},
		CreatedBy: requester.ID,
	})
	require.NoError(t, err)

	assert.Equal(t, "Laptops", req.Title)
	assert.Equal(t, "USD", req.Currency)
	assert.Equal(t, []string{"goods", "it"}, req.ProcurementTypes)
	assert.Equal(t, deptA, req.DepartmentID)
	assert.Equal(t, requester.ID, req.RequesterID)
	assert.Equal(t, domain.StatusDraft, req.Status)
	assert.Equal(t, int64(405000), req.TotalEstimated)
	assert.Equal(t, int64(360000), req.Items[0].LineTotal)
	assert.Equal(t, 2, req.Items[1].LineNumber)
	assert.Regexp(t, regexp.MustCompile(`^REQ-\d{8}-[0-9A-F]{6}$`), req.Reference)
	assert.Equal(t, int64(1), req.Version)

	stored := store.row(req.ID)
	assert.Equal(t, req.TotalEstimated, stored.TotalEstimated)
	assert.Equal(t, []string{"created"}, audit.actions(req.ID))
}

func TestCreateDraft_Validation(t *testing.T) {
	base := func() *CreateRequestInput {
		return &CreateRequestInput{
			Title:            "Chairs",
			Currency:         "EUR",
			ProcurementTypes: []string{"goods"},
			Items:            []ItemInput{{Description: "chair", Quantity: 1, UnitPrice: 100}},
			CreatedBy:        requester.ID,
		}
	}

	tests := []struct {
		name   string
		mutate func(*CreateRequestInput)
		code   errors.ErrorCode
	}{
		{"missing title", func(in *CreateRequestInput) { in.Title = " " }, errors.ErrCodeInvalidInput},
		{"bad currency", func(in *CreateRequestInput) { in.Currency = "EURO" }, errors.ErrCodeInvalidInput},
		{"no types", func(in *CreateRequestInput) { in.ProcurementTypes = []string{""} }, errors.ErrCodeInvalidInput},
		{"no items", func(in *CreateRequestInput) { in.Items = nil }, errors.ErrCodeInvalidInput},
		{"zero quantity", func(in *CreateRequestInput) { in.Items[0].Quantity = 0 }, errors.ErrCodeInvalidInput},
		{"negative price", func(in *CreateRequestInput) { in.Items[0].UnitPrice = -1 }, errors.ErrCodeInvalidInput},
		{"blank item", func(in *CreateRequestInput) { in.Items[0].Description = "" }, errors.ErrCodeInvalidInput},
		{"unknown actor", func(in *CreateRequestInput) { in.CreatedBy = "ghost" }, errors.ErrCodeUnauthorized},
		{"foreign department", func(in *CreateRequestInput) { in.DepartmentID = deptB }, errors.ErrCodeForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, _ := newRequestService()
			in := base()
			tt.mutate(in)
			_, err := svc.CreateDraft(context.Background(), in)
			assert.Equal(t, tt.code, errors.CodeOf(err))
			assert.Empty(t, store.rows)
		})
	}
}

func TestCreateDraft_AdminPicksDepartment(t *testing.T) {
	svc, _, _ := newRequestService()
	req, err := svc.CreateDraft(context.Background(), &CreateRequestInput{
		Title:            "Desks",
		DepartmentID:     deptB,
		Currency:         "EUR",
		ProcurementTypes: []string{"goods"},
		Items:            []ItemInput{{Description: "desk", Quantity: 2, UnitPrice: 50}},
		CreatedBy:        admin.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, deptB, req.DepartmentID)
}

func TestReplaceItems(t *testing.T) {
	svc, store, audit := newRequestService(inStatus(draft("r-1", 100), domain.StatusDepartmentReturned))

	req, err := svc.ReplaceItems(context.Background(), &ReplaceItemsInput{
		RequestID:       "r-1",
		ExpectedVersion: 1,
		Items:           []ItemInput{{Description: "bigger", Quantity: 4, UnitPrice: 250}},
		UpdatedBy:       requester.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), req.TotalEstimated)
	assert.Equal(t, int64(2), req.Version)

	stored := store.row("r-1")
	require.Len(t, stored.Items, 1)
	assert.Equal(t, "bigger", stored.Items[0].Description)
	assert.Equal(t, int64(1000), stored.TotalEstimated)
	assert.Equal(t, []string{"items_replaced"}, audit.actions("r-1"))
}

func TestReplaceItems_Rejected(t *testing.T) {
	member := draft("r-3", 100)
	parentID := "r-parent"
	member.CombinedRequestID = &parentID
	parent := draft("r-4", 100)
	parent.IsCombined = true

	items := []ItemInput{{Description: "x", Quantity: 1, UnitPrice: 1}}
	tests := []struct {
		name    string
		id      string
		actor   string
		version int64
		want    error
	}{
		{"past editable status", "r-1", requester.ID, 0, domain.ErrIllegalTransition},
		{"not the owner", "r-2", deptManager.ID, 0, domain.ErrUnauthorized},
		{"stale version", "r-2", requester.ID, 7, domain.ErrConcurrentModification},
		{"combined member", "r-3", requester.ID, 0, domain.ErrRequestIsCombined},
		{"combined parent", "r-4", requester.ID, 0, domain.ErrIllegalTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, _ := newRequestService(
				inStatus(draft("r-1", 100), domain.StatusDepartmentReview),
				draft("r-2", 100),
				member,
				parent,
			)
			_, err := svc.ReplaceItems(context.Background(), &ReplaceItemsInput{
				RequestID:       tt.id,
				ExpectedVersion: tt.version,
				Items:           items,
				UpdatedBy:       tt.actor,
			})
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, int64(1), store.row(tt.id).Version)
		})
	}
}

func TestReplaceItems_FrozenAfterExecutiveReview(t *testing.T) {
	reviewed := inStatus(draft("r-1", 100), domain.StatusFinanceReturned)
	reviewed.ExecutiveReviewed = true
	svc, store, audit := newRequestService(reviewed, inStatus(draft("r-2", 100), domain.StatusFinanceReturned))

	items := []ItemInput{{Description: "bigger", Quantity: 100, UnitPrice: 1000}}
	_, err := svc.ReplaceItems(context.Background(), &ReplaceItemsInput{
		RequestID: "r-1",
		Items:     items,
		UpdatedBy: requester.ID,
	})
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)
	assert.Equal(t, int64(100), store.row("r-1").TotalEstimated)
	assert.Empty(t, audit.actions("r-1"))

	// Without an executive review a finance return stays editable.
	req, err := svc.ReplaceItems(context.Background(), &ReplaceItemsInput{
		RequestID: "r-2",
		Items:     items,
		UpdatedBy: requester.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(100000), req.TotalEstimated)
}

func TestListRequests(t *testing.T) {
	svc, _, _ := newRequestService(draft("r-1", 1), inStatus(draft("r-2", 1), domain.StatusSubmitted))

	status := domain.StatusSubmitted
	out, total, err := svc.ListRequests(context.Background(), repository.RequestFilter{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "r-2", out[0].ID)

	bogus := domain.Status("LIMBO")
	_, _, err = svc.ListRequests(context.Background(), repository.RequestFilter{Status: &bogus})
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))
}

func TestGetRequest_NotFound(t *testing.T) {
	svc, _, _ := newRequestService()
	_, err := svc.GetRequest(context.Background(), "missing")
	assert.Equal(t, errors.ErrCodeNotFound, errors.CodeOf(err))
}
