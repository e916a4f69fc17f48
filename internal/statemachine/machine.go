// Package statemachine decides whether a procurement request may take an
// action and what the action leads to. It performs no I/O.
package statemachine

import (
	"fmt"

	"github.com/pesio-ai/be-proc-requests/internal/domain"
)

// Input describes one attempted action.
type Input struct {
	Action domain.Action
	Actor  *domain.Actor
	// Override lets a manager forward a request below the executive threshold.
	Override bool
	// OfficerID is the explicitly chosen assignee for an assign action.
	OfficerID string
	// ParentStatus is the combined parent's status when the request is a member.
	ParentStatus *domain.Status
}

// Effects are the side effects a committed transition asks the caller to run.
type Effects struct {
	RecordHistory     bool
	NotifyAssignee    bool
	EvaluateThreshold bool
	ComputeAssignment bool
	// MarkExecutiveReviewed freezes the threshold decision and the items.
	MarkExecutiveReviewed bool
}

// Outcome is the result of a legal transition.
type Outcome struct {
	From         domain.Status
	To           domain.Status
	Action       domain.Action
	Effects      Effects
	Resubmission bool
}

type edge struct {
	from   domain.Status
	action domain.Action
}

// Machine evaluates transitions against an authorization table.
type Machine struct {
	rules            map[edge]Transition
	maxResubmissions int
}

// Option configures a Machine.
type Option func(*Machine)

// WithMaxResubmissions bounds how many times a returned request may be
// resubmitted. Zero leaves it unbounded.
func WithMaxResubmissions(n int) Option {
	return func(m *Machine) {
		if n > 0 {
			m.maxResubmissions = n
		}
	}
}

// WithTransitions replaces the default table.
func WithTransitions(ts []Transition) Option {
	return func(m *Machine) {
		m.rules = index(ts)
	}
}

// New returns a Machine over DefaultTransitions unless overridden.
func New(opts ...Option) *Machine {
	m := &Machine{rules: index(DefaultTransitions())}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func index(ts []Transition) map[edge]Transition {
	rules := make(map[edge]Transition, len(ts))
	for _, t := range ts {
		rules[edge{t.From, t.Action}] = t
	}
	return rules
}

// Transition checks, in order: terminal status, combined-member freeze,
// table membership, actor authorization, then action guards.
func (m *Machine) Transition(req *domain.Request, in Input) (*Outcome, error) {
	from := req.Status

	if from.IsTerminal() {
		return nil, domain.NewError(domain.KindTerminalState, "request %s is %s", req.ID, from)
	}

	if req.IsMember() && (in.ParentStatus == nil || !in.ParentStatus.IsTerminal()) {
		return nil, domain.NewError(domain.KindRequestIsCombined,
			"request %s is part of combined request %s", req.ID, *req.CombinedRequestID)
	}

	rule, ok := m.rules[edge{from, in.Action}]
	if !ok {
		return nil, domain.NewError(domain.KindIllegalTransition, "cannot %s a request in %s", in.Action, from)
	}

	if err := authorize(req, in.Actor, rule); err != nil {
		return nil, err
	}

	out := &Outcome{From: from, To: rule.To, Action: in.Action}

	switch {
	case from == domain.StatusProcurementReview && in.Action == domain.ActionApprove:
		if req.RequiresExecutiveApproval && !req.ExecutiveReviewed {
			return nil, domain.NewError(domain.KindIllegalTransition,
				"request %s exceeds the executive threshold and must be forwarded", req.ID)
		}
	case in.Action == domain.ActionForwardToExecutive:
		if !req.RequiresExecutiveApproval && !in.Override {
			return nil, domain.NewError(domain.KindIllegalTransition,
				"request %s is below the executive threshold; forwarding needs a manager override", req.ID)
		}
	case from.IsReturned() && in.Action == domain.ActionSubmit:
		if m.maxResubmissions > 0 && req.ResubmissionCount >= m.maxResubmissions {
			return nil, domain.NewError(domain.KindIllegalTransition,
				"request %s reached the resubmission limit of %d", req.ID, m.maxResubmissions)
		}
		out.Resubmission = true
	}

	out.Effects = effectsFor(req, out, in)
	return out, nil
}

// The threshold is decided on entry to PROCUREMENT_REVIEW and never again
// once an executive has reviewed the request.
func effectsFor(req *domain.Request, out *Outcome, in Input) Effects {
	e := Effects{RecordHistory: true}
	if out.To == domain.StatusProcurementReview && out.From != domain.StatusProcurementReview && !req.ExecutiveReviewed {
		e.EvaluateThreshold = true
	}
	if out.To == domain.StatusExecutiveReview {
		e.MarkExecutiveReviewed = true
	}
	if out.Action == domain.ActionAssign {
		e.ComputeAssignment = in.OfficerID == ""
		e.NotifyAssignee = true
	}
	if out.From != out.To && assigneeActs(out.To) {
		e.NotifyAssignee = true
	}
	return e
}

// assigneeActs reports whether the procurement assignee owns the next move
// in status s.
func assigneeActs(s domain.Status) bool {
	switch s {
	case domain.StatusProcurementReview, domain.StatusFinanceReturned,
		domain.StatusFinanceApproved, domain.StatusSentToVendor:
		return true
	}
	return false
}

func authorize(req *domain.Request, actor *domain.Actor, rule Transition) error {
	if actor == nil {
		return domain.NewError(domain.KindUnauthorized, "no actor")
	}
	if actor.Blocked {
		return domain.NewError(domain.KindUnauthorized, "actor %s is blocked", actor.ID)
	}
	for _, g := range rule.Grants {
		if actor.HasRole(g.Role) && inScope(req, actor, g.Scope) {
			return nil
		}
	}
	return domain.NewError(domain.KindUnauthorized,
		"actor %s may not %s a request in %s", actor.ID, rule.Action, rule.From)
}

func inScope(req *domain.Request, actor *domain.Actor, scope Scope) bool {
	switch scope {
	case ScopeOwner:
		return req.RequesterID == actor.ID
	case ScopeDepartment:
		return actor.DepartmentID != "" && actor.DepartmentID == req.DepartmentID
	case ScopeAssignee:
		return req.IsAssignee(actor.ID)
	default:
		return true
	}
}

// Lookup returns the table row for (from, action).
func (m *Machine) Lookup(from domain.Status, action domain.Action) (Transition, bool) {
	t, ok := m.rules[edge{from, action}]
	return t, ok
}

// AvailableActions lists the actions actor could attempt on req right now,
// ignoring guards that depend on threshold state.
func (m *Machine) AvailableActions(req *domain.Request, actor *domain.Actor, parentStatus *domain.Status) []domain.Action {
	if req.IsMember() && (parentStatus == nil || !parentStatus.IsTerminal()) {
		return nil
	}
	var out []domain.Action
	for _, a := range domain.AllActions {
		rule, ok := m.rules[edge{req.Status, a}]
		if !ok {
			continue
		}
		if authorize(req, actor, rule) == nil {
			out = append(out, a)
		}
	}
	return out
}

// AssigneeRole returns the role whose holders may be assigned to work a
// request sitting in status s.
func (m *Machine) AssigneeRole(s domain.Status) (domain.Role, error) {
	for _, a := range domain.AllActions {
		rule, ok := m.rules[edge{s, a}]
		if !ok {
			continue
		}
		for _, g := range rule.Grants {
			if g.Scope == ScopeAssignee {
				return g.Role, nil
			}
		}
	}
	return "", fmt.Errorf("no assignee role for status %s", s)
}
