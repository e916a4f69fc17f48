package domain

import (
	"strings"
	"time"
)

// AssignmentStrategy selects how the balancer picks an officer.
type AssignmentStrategy string

const (
	StrategyRoundRobin  AssignmentStrategy = "ROUND_ROBIN"
	StrategyLeastLoaded AssignmentStrategy = "LEAST_LOADED"
	StrategyManual      AssignmentStrategy = "MANUAL"
)

// ParseStrategy accepts any case.
func ParseStrategy(v string) (AssignmentStrategy, bool) {
	s := AssignmentStrategy(strings.ToUpper(strings.TrimSpace(v)))
	switch s {
	case StrategyRoundRobin, StrategyLeastLoaded, StrategyManual:
		return s, true
	}
	return "", false
}

// WorkflowAssignment records one officer assignment. The newest row per
// request is the current assignee.
type WorkflowAssignment struct {
	ID         string             `json:"id"`
	RequestID  string             `json:"request_id"`
	OfficerID  string             `json:"officer_id"`
	Strategy   AssignmentStrategy `json:"strategy"`
	CursorUsed *int               `json:"cursor_used,omitempty"`
	LoadAtPick *int               `json:"load_at_pick,omitempty"`
	AssignedBy string             `json:"assigned_by"`
	AssignedAt time.Time          `json:"assigned_at"`
}

// LoadBalancingSettings is the single settings row read by every
// assignment decision.
type LoadBalancingSettings struct {
	Enabled             bool               `json:"enabled"`
	Strategy            AssignmentStrategy `json:"strategy"`
	AutoAssignOnApprove bool               `json:"auto_assign_on_approve"`
	LastRoundRobinIndex int                `json:"last_round_robin_index"`
	UpdatedBy           *string            `json:"updated_by,omitempty"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

// Officer is a candidate assignee.
type Officer struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}
