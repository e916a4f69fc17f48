package handler

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-proc-requests/internal/combiner"
	"github.com/pesio-ai/be-proc-requests/internal/common/errors"
	"github.com/pesio-ai/be-proc-requests/internal/common/logger"
	"github.com/pesio-ai/be-proc-requests/internal/domain"
	"github.com/pesio-ai/be-proc-requests/internal/recompute"
	"github.com/pesio-ai/be-proc-requests/internal/repository"
	"github.com/pesio-ai/be-proc-requests/internal/service"
)

type httpFixture struct {
	workflow *mockWorkflow
	requests *mockRequests
	ideas    *mockIdeas
	settings *mockSettings
	mux      *http.ServeMux
}

func newHTTPFixture() *httpFixture {
	f := &httpFixture{
		workflow: new(mockWorkflow),
		requests: new(mockRequests),
		ideas:    new(mockIdeas),
		settings: new(mockSettings),
		mux:      http.NewServeMux(),
	}
	NewHTTPHandler(f.workflow, f.requests, f.ideas, f.settings, logger.Nop()).Register(f.mux)
	return f
}

func (f *httpFixture) do(method, path, actor, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if actor != "" {
		req.Header.Set(ActorHeader, actor)
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestPerformAction_HTTP(t *testing.T) {
	f := newHTTPFixture()
	f.workflow.On("PerformAction", mock.Anything, "r-1", domain.ActionApprove, "u-1",
		service.ActionPayload{Comment: "looks fine"}).
		Return(&service.TransitionResult{
			Request: &domain.Request{ID: "r-1", Status: domain.StatusDepartmentApproved, Version: 3},
			From:    domain.StatusDepartmentReview,
			To:      domain.StatusDepartmentApproved,
			Action:  domain.ActionApprove,
		}, nil)

	rec := f.do(http.MethodPost, "/api/v1/requests/action", "u-1",
		`{"id":"r-1","action":"APPROVE","comment":"looks fine"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "DEPARTMENT_APPROVED", body["to"])
	assert.Equal(t, float64(3), body["request"].(map[string]any)["version"])
	f.workflow.AssertExpectations(t)
}

func TestErrorMapping_HTTP(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
		kind   string
	}{
		{"concurrent modification", domain.NewError(domain.KindConcurrentModification, "stale"), http.StatusConflict, "CONFLICT", "CONCURRENT_MODIFICATION"},
		{"unauthorized actor", domain.NewError(domain.KindUnauthorized, "no"), http.StatusForbidden, "FORBIDDEN", "UNAUTHORIZED"},
		{"illegal transition", domain.NewError(domain.KindIllegalTransition, "no"), http.StatusUnprocessableEntity, "PRECONDITION_FAILED", "ILLEGAL_TRANSITION"},
		{"no officers", domain.NewError(domain.KindNoEligibleAssignee, "none"), http.StatusServiceUnavailable, "UNAVAILABLE", "NO_ELIGIBLE_ASSIGNEE"},
		{"not found", errors.NotFound("request", "r-9"), http.StatusNotFound, "NOT_FOUND", ""},
		{"missing actor", errors.New(errors.ErrCodeUnauthorized, "actor id is required"), http.StatusUnauthorized, "UNAUTHORIZED", ""},
		{"internal", stderrors.New("pool exhausted"), http.StatusInternalServerError, "INTERNAL", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newHTTPFixture()
			f.workflow.On("PerformAction", mock.Anything, "r-9", domain.ActionSubmit, "u-1", service.ActionPayload{}).
				Return(nil, tt.err)

			rec := f.do(http.MethodPost, "/api/v1/requests/action", "u-1", `{"id":"r-9","action":"submit"}`)

			assert.Equal(t, tt.status, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, tt.code, body["code"])
			if tt.kind != "" {
				assert.Equal(t, tt.kind, body["kind"])
			}
			if tt.status == http.StatusInternalServerError {
				assert.Equal(t, "internal error", body["message"])
			}
		})
	}
}

func TestMethodAndInputChecks_HTTP(t *testing.T) {
	f := newHTTPFixture()

	assert.Equal(t, http.StatusMethodNotAllowed, f.do(http.MethodGet, "/api/v1/requests/action", "u-1", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/v1/requests/action", "u-1", "{").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/v1/requests/get", "u-1", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, f.do(http.MethodDelete, "/api/v1/settings/load-balancing", "u-1", "").Code)
}

func TestCreateRequest_HTTP(t *testing.T) {
	f := newHTTPFixture()
	f.requests.On("CreateDraft", mock.Anything, mock.MatchedBy(func(in *service.CreateRequestInput) bool {
		return in.CreatedBy == "u-1" && in.Title == "Chairs" && len(in.Items) == 1 &&
			in.Items[0] == service.ItemInput{Description: "chair", Quantity: 4, UnitPrice: 2500}
	})).Return(&domain.Request{ID: "r-1", Status: domain.StatusDraft, TotalEstimated: 10000}, nil)

	rec := f.do(http.MethodPost, "/api/v1/requests", "u-1", `{
		"title": "Chairs", "currency": "EUR", "procurement_types": ["goods"],
		"items": [{"description": "chair", "quantity": 4, "unit_price": 2500}]
	}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, float64(10000), decode(t, rec)["total_estimated"])
	f.requests.AssertExpectations(t)
}

func TestListRequests_HTTP(t *testing.T) {
	f := newHTTPFixture()
	status := domain.StatusSubmitted
	dept := "dept-a"
	f.requests.On("ListRequests", mock.Anything, repository.RequestFilter{
		Status:       &status,
		DepartmentID: &dept,
		Limit:        10,
		Offset:       20,
	}).Return([]*domain.Request(nil), int64(0), nil)

	rec := f.do(http.MethodGet, "/api/v1/requests/list?status=submitted&department_id=dept-a&page=3&page_size=10", "u-1", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, []any{}, body["requests"])
	assert.Equal(t, float64(3), body["page"])
	f.requests.AssertExpectations(t)
}

func TestCombineRequests_HTTP(t *testing.T) {
	f := newHTTPFixture()
	f.workflow.On("Combine", mock.Anything, []string{"r-1", "r-2"}, "u-pm").
		Return(&combiner.Combination{
			Parent:  &domain.Request{ID: "c-1", IsCombined: true, MemberRequestIDs: []string{"r-1", "r-2"}},
			Members: []*domain.Request{{ID: "r-1"}, {ID: "r-2"}},
		}, nil)

	rec := f.do(http.MethodPost, "/api/v1/requests/combine", "u-pm", `{"request_ids":["r-1","r-2"]}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "c-1", body["combined"].(map[string]any)["id"])
	assert.Len(t, body["members"], 2)
}

func TestSettings_HTTP(t *testing.T) {
	f := newHTTPFixture()
	f.settings.On("UpdateLoadBalancing", mock.Anything, &service.UpdateLoadBalancingInput{
		Enabled: true, Strategy: "ROUND_ROBIN", AutoAssignOnApprove: true, UpdatedBy: "u-admin",
	}).Return(&domain.LoadBalancingSettings{Enabled: true, Strategy: domain.StrategyRoundRobin}, nil)
	f.settings.On("Reconcile", mock.Anything, "u-admin").
		Return(&recompute.Report{RequestsScanned: 12}, nil)

	rec := f.do(http.MethodPut, "/api/v1/settings/load-balancing", "u-admin",
		`{"enabled":true,"strategy":"ROUND_ROBIN","auto_assign_on_approve":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ROUND_ROBIN", decode(t, rec)["strategy"])

	rec = f.do(http.MethodPost, "/api/v1/admin/reconcile", "u-admin", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(12), decode(t, rec)["requests_scanned"])

	f.settings.AssertExpectations(t)
}

func TestCastVote_HTTP(t *testing.T) {
	f := newHTTPFixture()
	f.ideas.On("CastVote", mock.Anything, "idea-1", "u-1", "up").
		Return(&domain.Idea{ID: "idea-1", UpvoteCount: 1, VoteCount: 1}, nil)

	rec := f.do(http.MethodPost, "/api/v1/ideas/vote", "u-1", `{"idea_id":"idea-1","direction":"up"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["vote_count"])
}
