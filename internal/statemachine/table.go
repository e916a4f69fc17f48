package statemachine

import "github.com/pesio-ai/be-proc-requests/internal/domain"

// Scope narrows a role grant to actors related to the request.
type Scope uint8

const (
	// ScopeAny grants the role regardless of relationship.
	ScopeAny Scope = iota
	// ScopeOwner requires the actor to be the requester.
	ScopeOwner
	// ScopeDepartment requires the actor to belong to the request's department.
	ScopeDepartment
	// ScopeAssignee requires the actor to be the current assignee.
	ScopeAssignee
)

func (s Scope) String() string {
	switch s {
	case ScopeOwner:
		return "owner"
	case ScopeDepartment:
		return "department"
	case ScopeAssignee:
		return "assignee"
	default:
		return "any"
	}
}

// Grant authorizes a role, within a scope, to take one transition.
type Grant struct {
	Role  domain.Role
	Scope Scope
}

// Transition is one row of the authorization table.
type Transition struct {
	From   domain.Status
	Action domain.Action
	To     domain.Status
	Grants []Grant
}

func anyOf(roles ...domain.Role) []Grant {
	out := make([]Grant, 0, len(roles))
	for _, r := range roles {
		out = append(out, Grant{Role: r, Scope: ScopeAny})
	}
	return out
}

func owner(r domain.Role) Grant    { return Grant{Role: r, Scope: ScopeOwner} }
func dept(r domain.Role) Grant     { return Grant{Role: r, Scope: ScopeDepartment} }
func assignee(r domain.Role) Grant { return Grant{Role: r, Scope: ScopeAssignee} }

func of(gs ...Grant) []Grant { return gs }

func join(sets ...[]Grant) []Grant {
	var out []Grant
	for _, s := range sets {
		out = append(out, s...)
	}
	return out
}

// DefaultTransitions returns the procurement request workflow.
func DefaultTransitions() []Transition {
	var (
		admin         = anyOf(domain.RoleAdmin)
		deptReviewers = join(of(dept(domain.RoleDeptManager), dept(domain.RoleHOD)), admin)
		procurement   = anyOf(domain.RoleProcurementOfficer, domain.RoleProcurementManager, domain.RoleAdmin)
		procAssignee  = join(of(assignee(domain.RoleProcurementOfficer)), anyOf(domain.RoleProcurementManager, domain.RoleAdmin))
		assigners     = anyOf(domain.RoleProcurementManager, domain.RoleAdmin, domain.RoleSystem)
		finance       = anyOf(domain.RoleFinanceOfficer, domain.RoleFinanceManager, domain.RoleAdmin)
		submitters    = join(of(
			owner(domain.RoleRequester),
			owner(domain.RoleProcurementOfficer),
			owner(domain.RoleProcurementManager),
		), admin)
	)

	return []Transition{
		// Department stage
		{domain.StatusDraft, domain.ActionSubmit, domain.StatusSubmitted, submitters},
		{domain.StatusDraft, domain.ActionCombine, domain.StatusDraft, procurement},
		{domain.StatusDraft, domain.ActionReject, domain.StatusRejected, join(of(owner(domain.RoleRequester)), admin)},

		{domain.StatusSubmitted, domain.ActionReview, domain.StatusDepartmentReview, deptReviewers},
		{domain.StatusSubmitted, domain.ActionCombine, domain.StatusSubmitted, procurement},
		{domain.StatusSubmitted, domain.ActionReject, domain.StatusRejected, deptReviewers},

		{domain.StatusDepartmentReview, domain.ActionApprove, domain.StatusDepartmentApproved, deptReviewers},
		{domain.StatusDepartmentReview, domain.ActionReturn, domain.StatusDepartmentReturned, deptReviewers},
		{domain.StatusDepartmentReview, domain.ActionCombine, domain.StatusDepartmentReview, procurement},
		{domain.StatusDepartmentReview, domain.ActionReject, domain.StatusRejected, deptReviewers},

		{domain.StatusDepartmentReturned, domain.ActionSubmit, domain.StatusSubmitted, submitters},
		{domain.StatusDepartmentReturned, domain.ActionReject, domain.StatusRejected, join(of(owner(domain.RoleRequester)), deptReviewers)},

		// Procurement stage
		{domain.StatusDepartmentApproved, domain.ActionAssign, domain.StatusProcurementReview, assigners},
		{domain.StatusDepartmentApproved, domain.ActionReject, domain.StatusRejected, anyOf(domain.RoleProcurementManager, domain.RoleAdmin)},

		{domain.StatusProcurementReview, domain.ActionApprove, domain.StatusFinanceReview, procAssignee},
		{domain.StatusProcurementReview, domain.ActionForwardToExecutive, domain.StatusExecutiveReview, anyOf(domain.RoleProcurementManager, domain.RoleAdmin)},
		{domain.StatusProcurementReview, domain.ActionAssign, domain.StatusProcurementReview, assigners},
		{domain.StatusProcurementReview, domain.ActionCombine, domain.StatusProcurementReview, procurement},
		{domain.StatusProcurementReview, domain.ActionReject, domain.StatusRejected, procAssignee},

		// Executive stage
		{domain.StatusExecutiveReview, domain.ActionApprove, domain.StatusExecutiveApproved, anyOf(domain.RoleExecutive, domain.RoleAdmin)},
		{domain.StatusExecutiveReview, domain.ActionReject, domain.StatusRejected, anyOf(domain.RoleExecutive, domain.RoleAdmin)},

		{domain.StatusExecutiveApproved, domain.ActionReview, domain.StatusFinanceReview, finance},
		{domain.StatusExecutiveApproved, domain.ActionReject, domain.StatusRejected, join(finance, anyOf(domain.RoleExecutive))},

		// Finance stage
		{domain.StatusFinanceReview, domain.ActionApprove, domain.StatusFinanceApproved, finance},
		{domain.StatusFinanceReview, domain.ActionReturn, domain.StatusFinanceReturned, finance},
		{domain.StatusFinanceReview, domain.ActionReject, domain.StatusRejected, finance},

		{domain.StatusFinanceReturned, domain.ActionSubmit, domain.StatusProcurementReview, procAssignee},
		{domain.StatusFinanceReturned, domain.ActionReject, domain.StatusRejected, join(of(owner(domain.RoleRequester)), procAssignee)},

		// Dispatch
		{domain.StatusFinanceApproved, domain.ActionSendToVendor, domain.StatusSentToVendor, procAssignee},
		{domain.StatusFinanceApproved, domain.ActionReject, domain.StatusRejected, anyOf(domain.RoleProcurementManager, domain.RoleFinanceManager, domain.RoleAdmin)},

		{domain.StatusSentToVendor, domain.ActionClose, domain.StatusClosed, procAssignee},
		{domain.StatusSentToVendor, domain.ActionReject, domain.StatusRejected, procAssignee},
	}
}
