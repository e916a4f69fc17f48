package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/pesio-ai/be-proc-requests/internal/combiner"
	"github.com/pesio-ai/be-proc-requests/internal/common/errors"
	"github.com/pesio-ai/be-proc-requests/internal/common/logger"
	"github.com/pesio-ai/be-proc-requests/internal/domain"
	"github.com/pesio-ai/be-proc-requests/internal/recompute"
	"github.com/pesio-ai/be-proc-requests/internal/repository"
	"github.com/pesio-ai/be-proc-requests/internal/service"
)

// ActorHeader names the caller. Authentication happens upstream.
const ActorHeader = "X-Actor-ID"

// WorkflowAPI is the workflow surface the transports expose.
type WorkflowAPI interface {
	PerformAction(ctx context.Context, requestID string, action domain.Action, actorID string, payload service.ActionPayload) (*service.TransitionResult, error)
	Combine(ctx context.Context, requestIDs []string, actorID string) (*combiner.Combination, error)
	Uncombine(ctx context.Context, combinedID, actorID string) (*combiner.Separation, error)
	AvailableActions(ctx context.Context, requestID, actorID string) ([]domain.Action, error)
	GetHistory(ctx context.Context, requestID string) ([]*domain.StatusHistoryEntry, error)
	GetAssignments(ctx context.Context, requestID string) ([]*domain.WorkflowAssignment, error)
	GetAuditTrail(ctx context.Context, requestID string) ([]*domain.AuditEntry, error)
}

// RequestAPI is the request authoring surface.
type RequestAPI interface {
	CreateDraft(ctx context.Context, in *service.CreateRequestInput) (*domain.Request, error)
	ReplaceItems(ctx context.Context, in *service.ReplaceItemsInput) (*domain.Request, error)
	GetRequest(ctx context.Context, id string) (*domain.Request, error)
	ListRequests(ctx context.Context, filter repository.RequestFilter) ([]*domain.Request, int64, error)
}

// IdeaAPI is the idea voting surface.
type IdeaAPI interface {
	CreateIdea(ctx context.Context, title, submittedBy string) (*domain.Idea, error)
	CastVote(ctx context.Context, ideaID, userID, direction string) (*domain.Idea, error)
	GetIdea(ctx context.Context, id string) (*domain.Idea, error)
}

// SettingsAPI is the administrative surface.
type SettingsAPI interface {
	GetLoadBalancing(ctx context.Context) (*domain.LoadBalancingSettings, error)
	UpdateLoadBalancing(ctx context.Context, in *service.UpdateLoadBalancingInput) (*domain.LoadBalancingSettings, error)
	ListThresholdRules(ctx context.Context) ([]domain.ThresholdRule, error)
	CreateThresholdRule(ctx context.Context, in *service.CreateThresholdRuleInput) (*domain.ThresholdRule, error)
	DeactivateThresholdRule(ctx context.Context, id, actorID string) error
	Reconcile(ctx context.Context, actorID string) (*recompute.Report, error)
}

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	workflow WorkflowAPI
	requests RequestAPI
	ideas    IdeaAPI
	settings SettingsAPI
	log      *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(workflow WorkflowAPI, requests RequestAPI, ideas IdeaAPI, settings SettingsAPI, log *logger.Logger) *HTTPHandler {
	return &HTTPHandler{
		workflow: workflow,
		requests: requests,
		ideas:    ideas,
		settings: settings,
		log:      log,
	}
}

// Register mounts every route under /api/v1 on mux.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/requests", h.CreateRequest)
	mux.HandleFunc("/api/v1/requests/get", h.GetRequest)
	mux.HandleFunc("/api/v1/requests/list", h.ListRequests)
	mux.HandleFunc("/api/v1/requests/items", h.ReplaceItems)
	mux.HandleFunc("/api/v1/requests/action", h.PerformAction)
	mux.HandleFunc("/api/v1/requests/actions", h.AvailableActions)
	mux.HandleFunc("/api/v1/requests/combine", h.CombineRequests)
	mux.HandleFunc("/api/v1/requests/uncombine", h.UncombineRequest)
	mux.HandleFunc("/api/v1/requests/history", h.GetHistory)
	mux.HandleFunc("/api/v1/requests/assignments", h.GetAssignments)
	mux.HandleFunc("/api/v1/requests/audit", h.GetAuditTrail)

	mux.HandleFunc("/api/v1/settings/load-balancing", h.LoadBalancing)
	mux.HandleFunc("/api/v1/settings/threshold-rules", h.ThresholdRules)
	mux.HandleFunc("/api/v1/settings/threshold-rules/deactivate", h.DeactivateThresholdRule)

	mux.HandleFunc("/api/v1/ideas", h.CreateIdea)
	mux.HandleFunc("/api/v1/ideas/get", h.GetIdea)
	mux.HandleFunc("/api/v1/ideas/vote", h.CastVote)

	mux.HandleFunc("/api/v1/admin/reconcile", h.Reconcile)
}

// ── Requests ──────────────────────────────────────────────────────────────────

type itemBody struct {
	Description string `json:"description"`
	Quantity    int64  `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
}

func toItemInputs(in []itemBody) []service.ItemInput {
	out := make([]service.ItemInput, 0, len(in))
	for _, it := range in {
		out = append(out, service.ItemInput(it))
	}
	return out
}

// CreateRequest handles create draft HTTP requests
func (h *HTTPHandler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		Title            string     `json:"title"`
		Description      *string    `json:"description"`
		DepartmentID     string     `json:"department_id"`
		Currency         string     `json:"currency"`
		ProcurementTypes []string   `json:"procurement_types"`
		Items            []itemBody `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	req, err := h.requests.CreateDraft(r.Context(), &service.CreateRequestInput{
		Title:            body.Title,
		Description:      body.Description,
		DepartmentID:     body.DepartmentID,
		Currency:         body.Currency,
		ProcurementTypes: body.ProcurementTypes,
		Items:            toItemInputs(body.Items),
		CreatedBy:        actorID(r),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// GetRequest handles get request HTTP requests
func (h *HTTPHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Request ID is required", http.StatusBadRequest)
		return
	}

	req, err := h.requests.GetRequest(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// ListRequests handles list requests HTTP requests
func (h *HTTPHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	filter := repository.RequestFilter{
		DepartmentID: optional(q.Get("department_id")),
		RequesterID:  optional(q.Get("requester_id")),
		AssigneeID:   optional(q.Get("assignee_id")),
	}
	if s := q.Get("status"); s != "" {
		status := domain.Status(strings.ToUpper(s))
		filter.Status = &status
	}

	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(q.Get("page_size"))
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}
	filter.Limit = pageSize
	filter.Offset = (page - 1) * pageSize

	reqs, total, err := h.requests.ListRequests(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if reqs == nil {
		reqs = []*domain.Request{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"requests":  reqs,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ReplaceItems handles replace items HTTP requests
func (h *HTTPHandler) ReplaceItems(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		ID      string     `json:"id"`
		Version int64      `json:"version"`
		Items   []itemBody `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	req, err := h.requests.ReplaceItems(r.Context(), &service.ReplaceItemsInput{
		RequestID:       body.ID,
		ExpectedVersion: body.Version,
		Items:           toItemInputs(body.Items),
		UpdatedBy:       actorID(r),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// ── Workflow ──────────────────────────────────────────────────────────────────

// PerformAction handles workflow action HTTP requests
func (h *HTTPHandler) PerformAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		ID     string `json:"id"`
		Action string `json:"action"`
		service.ActionPayload
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	action := domain.Action(strings.ToLower(strings.TrimSpace(body.Action)))
	res, err := h.workflow.PerformAction(r.Context(), body.ID, action, actorID(r), body.ActionPayload)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// AvailableActions handles available actions HTTP requests
func (h *HTTPHandler) AvailableActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Request ID is required", http.StatusBadRequest)
		return
	}

	actions, err := h.workflow.AvailableActions(r.Context(), id, actorID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "actions": actions})
}

// CombineRequests handles combine HTTP requests
func (h *HTTPHandler) CombineRequests(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		RequestIDs []string `json:"request_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	combo, err := h.workflow.Combine(r.Context(), body.RequestIDs, actorID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"combined": combo.Parent,
		"members":  combo.Members,
	})
}

// UncombineRequest handles uncombine HTTP requests
func (h *HTTPHandler) UncombineRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	sep, err := h.workflow.Uncombine(r.Context(), body.ID, actorID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"combined": sep.Parent,
		"members":  sep.Members,
	})
}

// GetHistory handles status history HTTP requests
func (h *HTTPHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	h.listByRequest(w, r, func(ctx context.Context, id string) (any, error) {
		return h.workflow.GetHistory(ctx, id)
	})
}

// GetAssignments handles assignment history HTTP requests
func (h *HTTPHandler) GetAssignments(w http.ResponseWriter, r *http.Request) {
	h.listByRequest(w, r, func(ctx context.Context, id string) (any, error) {
		return h.workflow.GetAssignments(ctx, id)
	})
}

// GetAuditTrail handles audit trail HTTP requests
func (h *HTTPHandler) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	h.listByRequest(w, r, func(ctx context.Context, id string) (any, error) {
		return h.workflow.GetAuditTrail(ctx, id)
	})
}

func (h *HTTPHandler) listByRequest(w http.ResponseWriter, r *http.Request, fetch func(context.Context, string) (any, error)) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Request ID is required", http.StatusBadRequest)
		return
	}

	out, err := fetch(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "entries": out})
}

// ── Settings ──────────────────────────────────────────────────────────────────

// LoadBalancing handles reading and replacing load balancing settings
func (h *HTTPHandler) LoadBalancing(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s, err := h.settings.GetLoadBalancing(r.Context())
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, s)

	case http.MethodPut:
		var body struct {
			Enabled             bool   `json:"enabled"`
			Strategy            string `json:"strategy"`
			AutoAssignOnApprove bool   `json:"auto_assign_on_approve"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		s, err := h.settings.UpdateLoadBalancing(r.Context(), &service.UpdateLoadBalancingInput{
			Enabled:             body.Enabled,
			Strategy:            body.Strategy,
			AutoAssignOnApprove: body.AutoAssignOnApprove,
			UpdatedBy:           actorID(r),
		})
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, s)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// ThresholdRules handles listing and creating threshold rules
func (h *HTTPHandler) ThresholdRules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		rules, err := h.settings.ListThresholdRules(r.Context())
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if rules == nil {
			rules = []domain.ThresholdRule{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"rules": rules})

	case http.MethodPost:
		var body struct {
			ProcurementType string `json:"procurement_type"`
			Currency        string `json:"currency"`
			Cutoff          int64  `json:"cutoff"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		rule, err := h.settings.CreateThresholdRule(r.Context(), &service.CreateThresholdRuleInput{
			ProcurementType: body.ProcurementType,
			Currency:        body.Currency,
			Cutoff:          body.Cutoff,
			CreatedBy:       actorID(r),
		})
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, rule)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// DeactivateThresholdRule handles retiring a threshold rule
func (h *HTTPHandler) DeactivateThresholdRule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.settings.DeactivateThresholdRule(r.Context(), body.ID, actorID(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reconcile runs one backfill pass and returns its report
func (h *HTTPHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	report, err := h.settings.Reconcile(r.Context(), actorID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ── Ideas ─────────────────────────────────────────────────────────────────────

// CreateIdea handles create idea HTTP requests
func (h *HTTPHandler) CreateIdea(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	idea, err := h.ideas.CreateIdea(r.Context(), body.Title, actorID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, idea)
}

// GetIdea handles get idea HTTP requests
func (h *HTTPHandler) GetIdea(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Idea ID is required", http.StatusBadRequest)
		return
	}

	idea, err := h.ideas.GetIdea(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, idea)
}

// CastVote handles vote HTTP requests
func (h *HTTPHandler) CastVote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		IdeaID    string `json:"idea_id"`
		Direction string `json:"direction"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	idea, err := h.ideas.CastVote(r.Context(), body.IdeaID, actorID(r), body.Direction)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, idea)
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func actorID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(ActorHeader))
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

type errorBody struct {
	Code    string `json:"code"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errors.CodeOf(err)
	status := httpStatus(code)

	body := errorBody{Code: string(code), Message: err.Error()}
	var werr *domain.Error
	if errors.As(err, &werr) {
		body.Kind = string(werr.Kind)
	}
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		body.Field = appErr.Field
	}

	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		body.Message = "internal error"
	}
	writeJSON(w, status, body)
}

func httpStatus(code errors.ErrorCode) int {
	switch code {
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeConflict:
		return http.StatusConflict
	case errors.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case errors.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case errors.ErrCodeForbidden:
		return http.StatusForbidden
	case errors.ErrCodePreconditionFailed:
		return http.StatusUnprocessableEntity
	case errors.ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
