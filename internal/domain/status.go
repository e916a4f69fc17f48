package domain

import "strings"

// Status is a procurement request workflow status.
type Status string

const (
	StatusDraft              Status = "DRAFT"
	StatusSubmitted          Status = "SUBMITTED"
	StatusDepartmentReview   Status = "DEPARTMENT_REVIEW"
	StatusDepartmentApproved Status = "DEPARTMENT_APPROVED"
	StatusDepartmentReturned Status = "DEPARTMENT_RETURNED"
	StatusProcurementReview  Status = "PROCUREMENT_REVIEW"
	StatusFinanceReview      Status = "FINANCE_REVIEW"
	StatusFinanceApproved    Status = "FINANCE_APPROVED"
	StatusFinanceReturned    Status = "FINANCE_RETURNED"
	StatusExecutiveReview    Status = "EXECUTIVE_REVIEW"
	StatusExecutiveApproved  Status = "EXECUTIVE_APPROVED"
	StatusSentToVendor       Status = "SENT_TO_VENDOR"
	StatusClosed             Status = "CLOSED"
	StatusRejected           Status = "REJECTED"
)

// AllStatuses lists every status in workflow order.
var AllStatuses = []Status{
	StatusDraft,
	StatusSubmitted,
	StatusDepartmentReview,
	StatusDepartmentApproved,
	StatusDepartmentReturned,
	StatusProcurementReview,
	StatusFinanceReview,
	StatusFinanceApproved,
	StatusFinanceReturned,
	StatusExecutiveReview,
	StatusExecutiveApproved,
	StatusSentToVendor,
	StatusClosed,
	StatusRejected,
}

// IsTerminal reports whether no transition may leave s.
func (s Status) IsTerminal() bool {
	return s == StatusClosed || s == StatusRejected
}

// IsReturned reports whether s is a send-back status awaiting resubmission.
func (s Status) IsReturned() bool {
	return s == StatusDepartmentReturned || s == StatusFinanceReturned
}

// IsEditable reports whether line items may be changed in s.
func (s Status) IsEditable() bool {
	return s == StatusDraft || s.IsReturned()
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// ParseStatus converts a case-insensitive name to a Status.
func ParseStatus(v string) (Status, bool) {
	s := Status(strings.ToUpper(strings.TrimSpace(v)))
	return s, s.Valid()
}

// Action is a workflow verb an actor asks the engine to perform.
type Action string

const (
	ActionSubmit             Action = "submit"
	ActionReview             Action = "review"
	ActionApprove            Action = "approve"
	ActionReturn             Action = "return"
	ActionReject             Action = "reject"
	ActionForwardToExecutive Action = "forward-to-executive"
	ActionAssign             Action = "assign"
	ActionCombine            Action = "combine"
	ActionSendToVendor       Action = "send-to-vendor"
	ActionClose              Action = "close"
)

// AllActions lists every action.
var AllActions = []Action{
	ActionSubmit,
	ActionReview,
	ActionApprove,
	ActionReturn,
	ActionReject,
	ActionForwardToExecutive,
	ActionAssign,
	ActionCombine,
	ActionSendToVendor,
	ActionClose,
}

// ParseAction accepts the canonical name as well as the underscore form
// ("forward_to_executive").
func ParseAction(v string) (Action, bool) {
	a := Action(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(v)), "_", "-"))
	for _, known := range AllActions {
		if a == known {
			return a, true
		}
	}
	return "", false
}

// Role is a closed set of role tags. Roles are compared exactly, never by
// substring.
type Role string

const (
	RoleRequester          Role = "REQUESTER"
	RoleDeptManager        Role = "DEPT_MANAGER"
	RoleHOD                Role = "HOD"
	RoleProcurementOfficer Role = "PROCUREMENT_OFFICER"
	RoleProcurementManager Role = "PROCUREMENT_MANAGER"
	RoleFinanceOfficer     Role = "FINANCE_OFFICER"
	RoleFinanceManager     Role = "FINANCE_MANAGER"
	RoleExecutive          Role = "EXECUTIVE"
	RoleAdmin              Role = "ADMIN"
	RoleSystem             Role = "SYSTEM"
)

// AllRoles lists every role.
var AllRoles = []Role{
	RoleRequester,
	RoleDeptManager,
	RoleHOD,
	RoleProcurementOfficer,
	RoleProcurementManager,
	RoleFinanceOfficer,
	RoleFinanceManager,
	RoleExecutive,
	RoleAdmin,
	RoleSystem,
}

// ParseRole maps an identity-service role name onto the closed set. Unknown
// names are dropped by the caller.
func ParseRole(v string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(v)))
	for _, known := range AllRoles {
		if r == known {
			return r, true
		}
	}
	return "", false
}
