package service

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/pesio-ai/be-proc-requests/internal/assignment"
	"github.com/pesio-ai/be-proc-requests/internal/combiner"
	"github.com/pesio-ai/be-proc-requests/internal/common/errors"
	"github.com/pesio-ai/be-proc-requests/internal/common/logger"
	"github.com/pesio-ai/be-proc-requests/internal/domain"
	"github.com/pesio-ai/be-proc-requests/internal/metrics"
	"github.com/pesio-ai/be-proc-requests/internal/repository"
	"github.com/pesio-ai/be-proc-requests/internal/statemachine"
	"github.com/pesio-ai/be-proc-requests/internal/threshold"
)

// WorkflowDeps are the collaborators of WorkflowService. Metrics, Vendors and
// Notifier may be nil.
type WorkflowDeps struct {
	Requests    RequestStore
	History     HistoryStore
	Assignments AssignmentStore
	Audit       AuditStore
	Settings    SettingsStore
	Thresholds  ThresholdRuleStore
	Identity    IdentityClientInterface
	Notifier    Notifier
	Vendors     VendorDispatcher
	Machine     *statemachine.Machine
	Balancer    *assignment.Balancer
	Combiner    *combiner.Combiner
	Metrics     *metrics.Metrics
}

// ActionPayload carries the optional inputs of an action.
type ActionPayload struct {
	Comment  string `json:"comment,omitempty"`
	Override bool   `json:"override,omitempty"`
	// OfficerID names the assignee for a manual assign.
	OfficerID string `json:"officer_id,omitempty"`
	// CombineWith lists the other sources for a combine action.
	CombineWith []string `json:"combine_with,omitempty"`
}

// TransitionResult reports a committed action. Request is the state after
// every follow-up, including an automatic assignment.
type TransitionResult struct {
	Request           *domain.Request            `json:"request"`
	From              domain.Status              `json:"from"`
	To                domain.Status              `json:"to"`
	Action            domain.Action              `json:"action"`
	Assignment        *domain.WorkflowAssignment `json:"assignment,omitempty"`
	AssignmentPending bool                       `json:"assignment_pending,omitempty"`
	AssignmentError   string                     `json:"assignment_error,omitempty"`
	MissingThresholds []string                   `json:"missing_thresholds,omitempty"`
	PurchaseOrderID   string                     `json:"purchase_order_id,omitempty"`
}

// WorkflowService orchestrates request transitions. Every committed change
// writes the request, its history and any assignment in one transaction;
// audit, notifications and vendor dispatch follow the commit and never undo it.
type WorkflowService struct {
	requests    RequestStore
	history     HistoryStore
	assignments AssignmentStore
	audit       AuditStore
	settings    SettingsStore
	thresholds  ThresholdRuleStore
	identity    IdentityClientInterface
	notifier    Notifier
	vendors     VendorDispatcher
	machine     *statemachine.Machine
	balancer    *assignment.Balancer
	combiner    *combiner.Combiner
	metrics     *metrics.Metrics
	log         *logger.Logger
	now         func() time.Time
}

// NewWorkflowService creates a new WorkflowService.
func NewWorkflowService(deps WorkflowDeps, log *logger.Logger) *WorkflowService {
	if deps.Machine == nil {
		deps.Machine = statemachine.New()
	}
	if deps.Combiner == nil {
		deps.Combiner = combiner.New(nil)
	}
	return &WorkflowService{
		requests:    deps.Requests,
		history:     deps.History,
		assignments: deps.Assignments,
		audit:       deps.Audit,
		settings:    deps.Settings,
		thresholds:  deps.Thresholds,
		identity:    deps.Identity,
		notifier:    deps.Notifier,
		vendors:     deps.Vendors,
		machine:     deps.Machine,
		balancer:    deps.Balancer,
		combiner:    deps.Combiner,
		metrics:     deps.Metrics,
		log:         log,
		now:         time.Now,
	}
}

// ── Actions ───────────────────────────────────────────────────────────────────

// PerformAction applies action to a request on behalf of actorID.
func (s *WorkflowService) PerformAction(
	ctx context.Context,
	requestID string,
	action domain.Action,
	actorID string,
	payload ActionPayload,
) (*TransitionResult, error) {
	res, err := s.performAction(ctx, requestID, action, actorID, payload)
	if err != nil {
		s.metrics.ObserveWorkflowError(string(action), err)
		return nil, err
	}
	return res, nil
}

func (s *WorkflowService) performAction(
	ctx context.Context,
	requestID string,
	action domain.Action,
	actorID string,
	payload ActionPayload,
) (*TransitionResult, error) {
	if requestID == "" {
		return nil, errors.InvalidInput("request_id", "is required")
	}
	if _, ok := domain.ParseAction(string(action)); !ok {
		return nil, errors.InvalidInput("action", "unknown action "+string(action))
	}

	if action == domain.ActionCombine {
		combo, err := s.Combine(ctx, append([]string{requestID}, payload.CombineWith...), actorID)
		if err != nil {
			return nil, err
		}
		return &TransitionResult{
			Request: combo.Parent,
			From:    combo.Parent.Status,
			To:      combo.Parent.Status,
			Action:  domain.ActionCombine,
		}, nil
	}

	actor, err := s.resolveActor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	res, err := s.transition(ctx, req, actor, action, payload)
	if err != nil {
		return nil, err
	}

	if res.To == domain.StatusDepartmentApproved && res.From != res.To {
		s.autoAssign(ctx, res)
	}
	return res, nil
}

// transition runs one state machine step against req and commits it.
func (s *WorkflowService) transition(
	ctx context.Context,
	req *domain.Request,
	actor *domain.Actor,
	action domain.Action,
	payload ActionPayload,
) (*TransitionResult, error) {
	parentStatus, err := s.parentStatus(ctx, req)
	if err != nil {
		return nil, err
	}

	outcome, err := s.machine.Transition(req, statemachine.Input{
		Action:       action,
		Actor:        actor,
		Override:     payload.Override,
		OfficerID:    payload.OfficerID,
		ParentStatus: parentStatus,
	})
	if err != nil {
		return nil, err
	}

	next := req.Clone()
	next.Status = outcome.To
	if outcome.Resubmission {
		next.ResubmissionCount++
	}
	if outcome.Effects.MarkExecutiveReviewed {
		next.ExecutiveReviewed = true
	}
	res := &TransitionResult{From: outcome.From, To: outcome.To, Action: action}

	var eval threshold.Evaluation
	if outcome.Effects.EvaluateThreshold {
		rules, err := s.thresholds.ListActive(ctx)
		if err != nil {
			return nil, err
		}
		eval = threshold.Evaluate(next, rules)
		next.RequiresExecutiveApproval = eval.Required
		res.MissingThresholds = eval.Missing
	}

	cs := &repository.Changeset{
		Requests: []repository.RequestWrite{{Request: next, ExpectedVersion: req.Version}},
	}

	if action == domain.ActionAssign {
		a, err := s.pickAssignee(ctx, next, outcome, actor, payload.OfficerID)
		if err != nil {
			return nil, err
		}
		next.AssigneeID = &a.OfficerID
		cs.Assignments = append(cs.Assignments, a)
		res.Assignment = a
	}

	var comment *string
	if payload.Comment != "" {
		comment = &payload.Comment
	}
	if outcome.Effects.RecordHistory {
		cs.History = append(cs.History, &domain.StatusHistoryEntry{
			RequestID:  req.ID,
			FromStatus: outcome.From,
			ToStatus:   outcome.To,
			Action:     action,
			ActorID:    actor.ID,
			Comment:    comment,
		})
	}

	if err := s.requests.Apply(ctx, cs); err != nil {
		return nil, err
	}
	res.Request = next

	s.log.Info().
		Str("request_id", req.ID).
		Str("action", string(action)).
		Str("from", string(outcome.From)).
		Str("to", string(outcome.To)).
		Str("actor_id", actor.ID).
		Int64("version", next.Version).
		Msg("Request transitioned")

	s.metrics.ObserveTransition(outcome.From, outcome.To, action)
	if res.Assignment != nil {
		s.metrics.ObserveAssignment(res.Assignment.Strategy)
	}

	meta := map[string]any{"reference": next.Reference, "version": next.Version}
	if payload.Comment != "" {
		meta["comment"] = payload.Comment
	}
	if payload.Override {
		meta["override"] = true
	}
	if res.Assignment != nil {
		meta["officer_id"] = res.Assignment.OfficerID
		meta["strategy"] = res.Assignment.Strategy
	}
	if outcome.Resubmission {
		meta["resubmission_count"] = next.ResubmissionCount
	}
	s.appendAudit(ctx, &domain.AuditEntry{
		RequestID:    req.ID,
		Action:       string(action),
		PerformedBy:  actor.ID,
		StatusBefore: &outcome.From,
		StatusAfter:  &outcome.To,
		Metadata:     meta,
	})

	s.afterThreshold(ctx, next, actor, eval)
	s.notifyTransition(ctx, next, actor, outcome)

	if outcome.To == domain.StatusSentToVendor && outcome.From != outcome.To {
		res.PurchaseOrderID = s.dispatch(ctx, next, actor)
	}
	return res, nil
}

func (s *WorkflowService) parentStatus(ctx context.Context, req *domain.Request) (*domain.Status, error) {
	if !req.IsMember() {
		return nil, nil
	}
	st, err := s.requests.GetStatus(ctx, *req.CombinedRequestID)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// releaseFinished drops the link of members whose parent is terminal so they
// can be combined again. The stored link is only replaced when the new
// combination commits.
func (s *WorkflowService) releaseFinished(ctx context.Context, sources []*domain.Request) ([]*domain.Request, error) {
	out := make([]*domain.Request, len(sources))
	for i, src := range sources {
		out[i] = src
		st, err := s.parentStatus(ctx, src)
		if err != nil {
			return nil, err
		}
		if st != nil && st.IsTerminal() {
			released := src.Clone()
			released.CombinedRequestID = nil
			out[i] = released
		}
	}
	return out, nil
}

// ── Assignment ────────────────────────────────────────────────────────────────

// pickAssignee resolves the officer for an assign action, either the one
// named by the caller or the balancer's pick.
func (s *WorkflowService) pickAssignee(
	ctx context.Context,
	req *domain.Request,
	outcome *statemachine.Outcome,
	actor *domain.Actor,
	officerID string,
) (*domain.WorkflowAssignment, error) {
	role, err := s.machine.AssigneeRole(outcome.To)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to resolve assignee role")
	}

	a := &domain.WorkflowAssignment{
		ID:         uuid.NewString(),
		RequestID:  req.ID,
		AssignedBy: actor.ID,
		AssignedAt: s.now().UTC(),
	}

	if !outcome.Effects.ComputeAssignment {
		officer, err := s.identity.GetActor(ctx, officerID)
		if err != nil {
			if errors.Is(err, errors.ErrCodeNotFound) {
				return nil, errors.InvalidInput("officer_id", "unknown officer "+officerID)
			}
			return nil, err
		}
		if officer.Blocked || !officer.HasRole(role) {
			return nil, errors.InvalidInput("officer_id", officerID+" is not an eligible "+string(role))
		}
		a.OfficerID = officer.ID
		a.Strategy = domain.StrategyManual
		return a, nil
	}

	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	if !settings.Enabled || settings.Strategy == domain.StrategyManual {
		return nil, errors.InvalidInput("officer_id", "is required while automatic assignment is off")
	}
	actors, err := s.identity.ListUsersWithRole(ctx, role)
	if err != nil {
		return nil, err
	}
	decision, err := s.balancer.Assign(ctx, assignment.EligibleOfficers(actors, role), *settings)
	if err != nil {
		return nil, err
	}
	if decision == nil {
		return nil, errors.InvalidInput("officer_id", "is required while automatic assignment is off")
	}
	a.OfficerID = decision.Officer.ID
	a.Strategy = decision.Strategy
	a.CursorUsed = decision.CursorUsed
	a.LoadAtPick = decision.LoadAtPick
	return a, nil
}

// autoAssign hands a freshly approved request to procurement as the system
// actor. Failure leaves the request approved and flags it for manual triage.
func (s *WorkflowService) autoAssign(ctx context.Context, res *TransitionResult) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		s.log.Warn().Err(err).Str("request_id", res.Request.ID).Msg("Failed to read load balancing settings")
		return
	}
	if !settings.Enabled || !settings.AutoAssignOnApprove || settings.Strategy == domain.StrategyManual {
		return
	}

	assigned, err := s.transition(ctx, res.Request, domain.SystemActor(), domain.ActionAssign, ActionPayload{})
	if err == nil {
		res.Request = assigned.Request
		res.Assignment = assigned.Assignment
		return
	}

	res.AssignmentPending = true
	res.AssignmentError = err.Error()
	s.metrics.ObserveAssignmentFailure(err)
	s.log.Warn().Err(err).
		Str("request_id", res.Request.ID).
		Msg("Automatic assignment failed; request awaits manual assignment")

	status := res.Request.Status
	s.appendAudit(ctx, &domain.AuditEntry{
		RequestID:    res.Request.ID,
		Action:       "assignment_pending",
		PerformedBy:  domain.SystemActorID,
		StatusBefore: &status,
		StatusAfter:  &status,
		Metadata:     map[string]any{"error": err.Error(), "strategy": settings.Strategy},
	})
	s.notify(ctx, domain.EventAssignmentPending, res.Request, domain.SystemActorID,
		s.usersWithRole(ctx, "", domain.RoleProcurementManager),
		map[string]any{"reason": err.Error()})
}

// ── Combine ───────────────────────────────────────────────────────────────────

// Combine folds the given requests into a new combined request. The parent
// and every member update commit together or not at all.
func (s *WorkflowService) Combine(ctx context.Context, requestIDs []string, actorID string) (*combiner.Combination, error) {
	combo, err := s.combine(ctx, requestIDs, actorID)
	if err != nil {
		s.metrics.ObserveWorkflowError(string(domain.ActionCombine), err)
		return nil, err
	}
	return combo, nil
}

func (s *WorkflowService) combine(ctx context.Context, requestIDs []string, actorID string) (*combiner.Combination, error) {
	ids := distinctIDs(requestIDs)
	if len(ids) < 2 {
		return nil, domain.NewError(domain.KindInsufficientSources,
			"at least two distinct requests are required, got %d", len(ids))
	}

	actor, err := s.resolveActor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	sources, err := s.requests.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if sources, err = s.releaseFinished(ctx, sources); err != nil {
		return nil, err
	}

	combo, err := s.combiner.Combine(sources, actor)
	if err != nil {
		return nil, err
	}
	for _, src := range sources {
		if _, err := s.machine.Transition(src, statemachine.Input{Action: domain.ActionCombine, Actor: actor}); err != nil {
			return nil, err
		}
	}

	cs := &repository.Changeset{
		Requests: []repository.RequestWrite{{Request: combo.Parent, WriteItems: true}},
	}
	for i, m := range combo.Members {
		cs.Requests = append(cs.Requests, repository.RequestWrite{Request: m, ExpectedVersion: sources[i].Version})
		cs.History = append(cs.History, &domain.StatusHistoryEntry{
			RequestID:  m.ID,
			FromStatus: m.Status,
			ToStatus:   m.Status,
			Action:     domain.ActionCombine,
			ActorID:    actor.ID,
		})
	}
	if err := s.requests.Apply(ctx, cs); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("combined_request_id", combo.Parent.ID).
		Str("reference", combo.Parent.Reference).
		Strs("members", combo.Parent.MemberRequestIDs).
		Int64("total_estimated", combo.Parent.TotalEstimated).
		Str("actor_id", actor.ID).
		Msg("Requests combined")
	s.metrics.ObserveCombination("combine")

	draft := domain.StatusDraft
	s.appendAudit(ctx, &domain.AuditEntry{
		RequestID:   combo.Parent.ID,
		Action:      "combined",
		PerformedBy: actor.ID,
		StatusAfter: &draft,
		Metadata: map[string]any{
			"members":         combo.Parent.MemberRequestIDs,
			"total_estimated": combo.Parent.TotalEstimated,
		},
	})

	recipients := make([]string, 0, len(combo.Members))
	for _, m := range combo.Members {
		st := m.Status
		s.appendAudit(ctx, &domain.AuditEntry{
			RequestID:    m.ID,
			Action:       "combined_into",
			PerformedBy:  actor.ID,
			StatusBefore: &st,
			StatusAfter:  &st,
			Metadata:     map[string]any{"combined_request_id": combo.Parent.ID},
		})
		recipients = append(recipients, m.RequesterID)
	}
	s.notify(ctx, domain.EventRequestCombined, combo.Parent, actor.ID, recipients,
		map[string]any{"members": combo.Parent.MemberRequestIDs})

	return combo, nil
}

// Uncombine rejects a DRAFT combined request and releases its members.
func (s *WorkflowService) Uncombine(ctx context.Context, combinedID, actorID string) (*combiner.Separation, error) {
	sep, err := s.uncombine(ctx, combinedID, actorID)
	if err != nil {
		s.metrics.ObserveWorkflowError("uncombine", err)
		return nil, err
	}
	return sep, nil
}

func (s *WorkflowService) uncombine(ctx context.Context, combinedID, actorID string) (*combiner.Separation, error) {
	actor, err := s.resolveActor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	parent, err := s.requests.GetByID(ctx, combinedID)
	if err != nil {
		return nil, err
	}
	// Whoever may combine at DRAFT may also undo it.
	if parent.Status == domain.StatusDraft {
		if _, err := s.machine.Transition(parent, statemachine.Input{Action: domain.ActionCombine, Actor: actor}); err != nil {
			return nil, err
		}
	}

	members, err := s.requests.GetByIDs(ctx, parent.MemberRequestIDs)
	if err != nil {
		return nil, err
	}
	sep, err := s.combiner.Uncombine(parent, members)
	if err != nil {
		return nil, err
	}

	cs := &repository.Changeset{
		Requests: []repository.RequestWrite{{Request: sep.Parent, ExpectedVersion: parent.Version}},
		History: []*domain.StatusHistoryEntry{{
			RequestID:  parent.ID,
			FromStatus: parent.Status,
			ToStatus:   sep.Parent.Status,
			Action:     domain.ActionReject,
			ActorID:    actor.ID,
		}},
	}
	for i, m := range sep.Members {
		cs.Requests = append(cs.Requests, repository.RequestWrite{Request: m, ExpectedVersion: members[i].Version})
	}
	if err := s.requests.Apply(ctx, cs); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("combined_request_id", parent.ID).
		Strs("members", parent.MemberRequestIDs).
		Str("actor_id", actor.ID).
		Msg("Combined request dissolved")
	s.metrics.ObserveCombination("uncombine")
	s.metrics.ObserveTransition(parent.Status, sep.Parent.Status, domain.ActionReject)

	s.appendAudit(ctx, &domain.AuditEntry{
		RequestID:    parent.ID,
		Action:       "uncombined",
		PerformedBy:  actor.ID,
		StatusBefore: &parent.Status,
		StatusAfter:  &sep.Parent.Status,
		Metadata:     map[string]any{"members": parent.MemberRequestIDs},
	})
	recipients := make([]string, 0, len(sep.Members))
	for _, m := range sep.Members {
		recipients = append(recipients, m.RequesterID)
	}
	s.notify(ctx, domain.EventRequestUncombined, sep.Parent, actor.ID, recipients,
		map[string]any{"members": parent.MemberRequestIDs})

	return sep, nil
}

// ── Queries ───────────────────────────────────────────────────────────────────

// AvailableActions lists what actorID may attempt on the request now.
func (s *WorkflowService) AvailableActions(ctx context.Context, requestID, actorID string) ([]domain.Action, error) {
	actor, err := s.resolveActor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	parentStatus, err := s.parentStatus(ctx, req)
	if err != nil {
		return nil, err
	}
	actions := s.machine.AvailableActions(req, actor, parentStatus)
	if actions == nil {
		actions = []domain.Action{}
	}
	return actions, nil
}

// GetHistory returns the request's status history oldest-first.
func (s *WorkflowService) GetHistory(ctx context.Context, requestID string) ([]*domain.StatusHistoryEntry, error) {
	if _, err := s.requests.GetStatus(ctx, requestID); err != nil {
		return nil, err
	}
	return s.history.ListByRequest(ctx, requestID)
}

// GetAssignments returns the request's assignments newest-first.
func (s *WorkflowService) GetAssignments(ctx context.Context, requestID string) ([]*domain.WorkflowAssignment, error) {
	if _, err := s.requests.GetStatus(ctx, requestID); err != nil {
		return nil, err
	}
	return s.assignments.ListByRequest(ctx, requestID)
}

// GetAuditTrail returns the request's audit entries.
func (s *WorkflowService) GetAuditTrail(ctx context.Context, requestID string) ([]*domain.AuditEntry, error) {
	if _, err := s.requests.GetStatus(ctx, requestID); err != nil {
		return nil, err
	}
	return s.audit.GetByRequestID(ctx, requestID)
}

// ── Side effects ──────────────────────────────────────────────────────────────

func (s *WorkflowService) afterThreshold(ctx context.Context, req *domain.Request, actor *domain.Actor, eval threshold.Evaluation) {
	if len(eval.Missing) > 0 {
		s.log.Warn().
			Err(eval.MissingError()).
			Str("request_id", req.ID).
			Strs("missing", eval.Missing).
			Msg("Threshold rules missing; escalation not applied for these types")
		s.notify(ctx, domain.EventThresholdConfigMissing, req, actor.ID,
			s.usersWithRole(ctx, "", domain.RoleAdmin),
			map[string]any{"missing": eval.Missing})
	}
	if eval.Required {
		s.metrics.ObserveEscalation()
		payload := map[string]any{"total_estimated": req.TotalEstimated, "currency": req.Currency}
		if eval.Governing != nil {
			payload["procurement_type"] = eval.Governing.ProcurementType
			payload["cutoff"] = eval.Governing.Cutoff
		}
		s.notify(ctx, domain.EventExecutiveApprovalReqd, req, actor.ID,
			s.usersWithRole(ctx, "", domain.RoleProcurementManager), payload)
	}
}

func (s *WorkflowService) notifyTransition(ctx context.Context, req *domain.Request, actor *domain.Actor, outcome *statemachine.Outcome) {
	payload := map[string]any{
		"reference": req.Reference,
		"from":      outcome.From,
		"to":        outcome.To,
		"action":    outcome.Action,
	}

	if outcome.From != outcome.To {
		s.notify(ctx, domain.EventRequestStatusChanged, req, actor.ID, []string{req.RequesterID}, payload)
	}
	if outcome.To == domain.StatusSubmitted && outcome.From != outcome.To {
		s.notify(ctx, domain.EventRequestSubmitted, req, actor.ID,
			s.usersWithRole(ctx, req.DepartmentID, domain.RoleDeptManager, domain.RoleHOD), payload)
	}
	if outcome.Effects.NotifyAssignee && req.AssigneeID != nil && *req.AssigneeID != actor.ID {
		s.notify(ctx, domain.EventRequestAssigned, req, actor.ID, []string{*req.AssigneeID}, payload)
	}
}

func (s *WorkflowService) dispatch(ctx context.Context, req *domain.Request, actor *domain.Actor) string {
	if s.vendors == nil {
		return ""
	}
	poID, err := s.vendors.DispatchPurchaseOrder(ctx, req)
	status := req.Status
	if err != nil {
		s.log.Error().Err(err).Str("request_id", req.ID).Msg("Failed to dispatch purchase order to vendors")
		s.appendAudit(ctx, &domain.AuditEntry{
			RequestID:    req.ID,
			Action:       "vendor_dispatch_failed",
			PerformedBy:  actor.ID,
			StatusBefore: &status,
			StatusAfter:  &status,
			Metadata:     map[string]any{"error": err.Error()},
		})
		return ""
	}
	s.appendAudit(ctx, &domain.AuditEntry{
		RequestID:    req.ID,
		Action:       "vendor_dispatched",
		PerformedBy:  actor.ID,
		StatusBefore: &status,
		StatusAfter:  &status,
		Metadata:     map[string]any{"purchase_order_id": poID},
	})
	return poID
}

func (s *WorkflowService) notify(ctx context.Context, eventType string, req *domain.Request, actorID string, recipients []string, payload map[string]any) {
	if s.notifier == nil || len(recipients) == 0 {
		return
	}
	s.notifier.Publish(ctx, &domain.NotificationEvent{
		ID:         uuid.NewString(),
		EventType:  eventType,
		RequestID:  req.ID,
		ActorID:    actorID,
		Recipients: recipients,
		Payload:    payload,
	})
}

// usersWithRole collects recipients holding any of roles, limited to
// departmentID when set. Lookup failures only cost the notification.
func (s *WorkflowService) usersWithRole(ctx context.Context, departmentID string, roles ...domain.Role) []string {
	seen := map[string]bool{}
	var out []string
	for _, role := range roles {
		users, err := s.identity.ListUsersWithRole(ctx, role)
		if err != nil {
			s.log.Warn().Err(err).Str("role", string(role)).Msg("Failed to resolve notification recipients")
			continue
		}
		for _, u := range users {
			if u.Blocked || seen[u.ID] || (departmentID != "" && u.DepartmentID != departmentID) {
				continue
			}
			seen[u.ID] = true
			out = append(out, u.ID)
		}
	}
	sort.Strings(out)
	return out
}

func (s *WorkflowService) appendAudit(ctx context.Context, entry *domain.AuditEntry) {
	if err := s.audit.Append(ctx, entry); err != nil {
		s.log.Warn().Err(err).
			Str("request_id", entry.RequestID).
			Str("action", entry.Action).
			Msg("Failed to write audit log entry")
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func (s *WorkflowService) resolveActor(ctx context.Context, actorID string) (*domain.Actor, error) {
	return resolveActor(ctx, s.identity, actorID)
}

// resolveActor loads a caller from identity. The system actor cannot be
// claimed from outside; it only exists for engine-initiated steps.
func resolveActor(ctx context.Context, identity IdentityClientInterface, actorID string) (*domain.Actor, error) {
	if actorID == "" {
		return nil, errors.New(errors.ErrCodeUnauthorized, "actor id is required")
	}
	if actorID == domain.SystemActorID {
		return nil, domain.NewError(domain.KindUnauthorized, "the system actor cannot be used by callers")
	}
	actor, err := identity.GetActor(ctx, actorID)
	if err != nil {
		if errors.Is(err, errors.ErrCodeNotFound) {
			return nil, errors.New(errors.ErrCodeUnauthorized, "unknown actor "+actorID)
		}
		return nil, err
	}
	return actor, nil
}

func distinctIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
