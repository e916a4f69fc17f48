package domain

import "time"

// StatusHistoryEntry is one committed status change.
type StatusHistoryEntry struct {
	ID         string    `json:"id"`
	RequestID  string    `json:"request_id"`
	FromStatus Status    `json:"from_status"`
	ToStatus   Status    `json:"to_status"`
	Action     Action    `json:"action"`
	ActorID    string    `json:"actor_id"`
	Comment    *string   `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// AuditEntry is an append-only audit record.
type AuditEntry struct {
	ID           string         `json:"id"`
	RequestID    string         `json:"request_id"`
	Action       string         `json:"action"`
	PerformedBy  string         `json:"performed_by"`
	StatusBefore *Status        `json:"status_before,omitempty"`
	StatusAfter  *Status        `json:"status_after,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Notification event types.
const (
	EventRequestSubmitted       = "request_submitted"
	EventRequestStatusChanged   = "request_status_changed"
	EventRequestAssigned        = "request_assigned"
	EventAssignmentPending      = "request_assignment_pending"
	EventRequestCombined        = "request_combined"
	EventRequestUncombined      = "request_uncombined"
	EventExecutiveApprovalReqd  = "request_executive_approval_required"
	EventThresholdConfigMissing = "threshold_rule_missing"
)

// NotificationEvent is emitted after a committed change.
type NotificationEvent struct {
	ID         string         `json:"id"`
	EventType  string         `json:"event_type"`
	RequestID  string         `json:"request_id"`
	ActorID    string         `json:"actor_id"`
	Recipients []string       `json:"recipients"`
	Payload    map[string]any `json:"payload,omitempty"`
}
