package service

import (
	"context"

	"github.com/pesio-ai/be-proc-requests/internal/domain"
	"github.com/pesio-ai/be-proc-requests/internal/recompute"
	"github.com/pesio-ai/be-proc-requests/internal/repository"
)

// RequestStore persists requests. Apply commits a whole changeset or nothing.
type RequestStore interface {
	GetByID(ctx context.Context, id string) (*domain.Request, error)
	GetByIDs(ctx context.Context, ids []string) ([]*domain.Request, error)
	GetStatus(ctx context.Context, id string) (domain.Status, error)
	List(ctx context.Context, filter repository.RequestFilter) ([]*domain.Request, int64, error)
	Apply(ctx context.Context, cs *repository.Changeset) error
}

// HistoryStore reads status history.
type HistoryStore interface {
	ListByRequest(ctx context.Context, requestID string) ([]*domain.StatusHistoryEntry, error)
}

// AssignmentStore reads assignment history.
type AssignmentStore interface {
	ListByRequest(ctx context.Context, requestID string) ([]*domain.WorkflowAssignment, error)
}

// AuditStore appends and reads the audit trail.
type AuditStore interface {
	Append(ctx context.Context, entry *domain.AuditEntry) error
	GetByRequestID(ctx context.Context, requestID string) ([]*domain.AuditEntry, error)
}

// SettingsStore reads and writes load balancing settings.
type SettingsStore interface {
	Get(ctx context.Context) (*domain.LoadBalancingSettings, error)
	Update(ctx context.Context, s *domain.LoadBalancingSettings) error
}

// ThresholdRuleStore manages threshold rules.
type ThresholdRuleStore interface {
	ListActive(ctx context.Context) ([]domain.ThresholdRule, error)
	List(ctx context.Context) ([]domain.ThresholdRule, error)
	Create(ctx context.Context, rule *domain.ThresholdRule) error
	Deactivate(ctx context.Context, id string) error
}

// IdeaStore manages ideas and votes.
type IdeaStore interface {
	Create(ctx context.Context, idea *domain.Idea) error
	GetByID(ctx context.Context, id string) (*domain.Idea, error)
	CastVote(ctx context.Context, vote *domain.Vote) (*domain.Idea, error)
}

// IdentityClientInterface resolves users from the identity service.
type IdentityClientInterface interface {
	GetActor(ctx context.Context, userID string) (*domain.Actor, error)
	ListUsersWithRole(ctx context.Context, role domain.Role) ([]domain.Actor, error)
}

// Notifier emits notification events. Implementations never fail the caller.
type Notifier interface {
	Publish(ctx context.Context, event *domain.NotificationEvent)
}

// VendorDispatcher hands requests that reach SENT_TO_VENDOR to vendors.
type VendorDispatcher interface {
	DispatchPurchaseOrder(ctx context.Context, req *domain.Request) (string, error)
}

// Reconciler runs one backfill pass.
type Reconciler interface {
	Run(ctx context.Context) (*recompute.Report, error)
}
