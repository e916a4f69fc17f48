package service

import (
	"context"
	"strings"

	"github.com/pesio-ai/be-proc-requests/internal/common/errors"
	"github.com/pesio-ai/be-proc-requests/internal/common/logger"
	"github.com/pesio-ai/be-proc-requests/internal/domain"
	"github.com/pesio-ai/be-proc-requests/internal/recompute"
)

// SettingsService administers load balancing, threshold rules and
// reconciliation. Every operation requires an administrative role.
type SettingsService struct {
	settings   SettingsStore
	thresholds ThresholdRuleStore
	reconciler Reconciler
	identity   IdentityClientInterface
	log        *logger.Logger
}

// NewSettingsService creates a new SettingsService. reconciler may be nil.
func NewSettingsService(
	settings SettingsStore,
	thresholds ThresholdRuleStore,
	reconciler Reconciler,
	identity IdentityClientInterface,
	log *logger.Logger,
) *SettingsService {
	return &SettingsService{
		settings:   settings,
		thresholds: thresholds,
		reconciler: reconciler,
		identity:   identity,
		log:        log,
	}
}

// ── Load balancing ────────────────────────────────────────────────────────────

// GetLoadBalancing returns the current settings.
func (s *SettingsService) GetLoadBalancing(ctx context.Context) (*domain.LoadBalancingSettings, error) {
	return s.settings.Get(ctx)
}

// UpdateLoadBalancingInput carries the operator-controlled settings.
type UpdateLoadBalancingInput struct {
	Enabled             bool
	Strategy            string
	AutoAssignOnApprove bool
	UpdatedBy           string
}

// UpdateLoadBalancing replaces the settings. The round-robin cursor is kept.
func (s *SettingsService) UpdateLoadBalancing(ctx context.Context, in *UpdateLoadBalancingInput) (*domain.LoadBalancingSettings, error) {
	actor, err := s.requireRole(ctx, in.UpdatedBy, domain.RoleAdmin, domain.RoleProcurementManager)
	if err != nil {
		return nil, err
	}
	strategy, ok := domain.ParseStrategy(in.Strategy)
	if !ok {
		return nil, errors.InvalidInput("strategy", "must be ROUND_ROBIN, LEAST_LOADED or MANUAL")
	}

	updated := &domain.LoadBalancingSettings{
		Enabled:             in.Enabled,
		Strategy:            strategy,
		AutoAssignOnApprove: in.AutoAssignOnApprove,
		UpdatedBy:           &actor.ID,
	}
	if err := s.settings.Update(ctx, updated); err != nil {
		return nil, err
	}

	s.log.Info().
		Bool("enabled", updated.Enabled).
		Str("strategy", string(updated.Strategy)).
		Bool("auto_assign_on_approve", updated.AutoAssignOnApprove).
		Str("updated_by", actor.ID).
		Msg("Load balancing settings updated")
	return updated, nil
}

// ── Threshold rules ───────────────────────────────────────────────────────────

// ListThresholdRules returns every rule, active or not.
func (s *SettingsService) ListThresholdRules(ctx context.Context) ([]domain.ThresholdRule, error) {
	return s.thresholds.List(ctx)
}

// CreateThresholdRuleInput defines a cutoff for one (type, currency) pair.
type CreateThresholdRuleInput struct {
	ProcurementType string
	Currency        string
	Cutoff          int64
	CreatedBy       string
}

// CreateThresholdRule installs a rule, retiring any active rule for the pair.
func (s *SettingsService) CreateThresholdRule(ctx context.Context, in *CreateThresholdRuleInput) (*domain.ThresholdRule, error) {
	actor, err := s.requireRole(ctx, in.CreatedBy, domain.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.ProcurementType) == "" {
		return nil, errors.InvalidInput("procurement_type", "is required")
	}
	if len(strings.TrimSpace(in.Currency)) != 3 {
		return nil, errors.InvalidInput("currency", "must be a 3-letter ISO code")
	}
	if in.Cutoff < 0 {
		return nil, errors.InvalidInput("cutoff", "cannot be negative")
	}

	rule := &domain.ThresholdRule{
		ProcurementType: strings.TrimSpace(in.ProcurementType),
		Currency:        strings.TrimSpace(in.Currency),
		Cutoff:          in.Cutoff,
		IsActive:        true,
	}
	if err := s.thresholds.Create(ctx, rule); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("rule_id", rule.ID).
		Str("procurement_type", rule.ProcurementType).
		Str("currency", rule.Currency).
		Int64("cutoff", rule.Cutoff).
		Str("created_by", actor.ID).
		Msg("Threshold rule created")
	return rule, nil
}

// DeactivateThresholdRule retires a rule.
func (s *SettingsService) DeactivateThresholdRule(ctx context.Context, id, actorID string) error {
	actor, err := s.requireRole(ctx, actorID, domain.RoleAdmin)
	if err != nil {
		return err
	}
	if err := s.thresholds.Deactivate(ctx, id); err != nil {
		return err
	}
	s.log.Info().Str("rule_id", id).Str("deactivated_by", actor.ID).Msg("Threshold rule deactivated")
	return nil
}

// ── Reconciliation ────────────────────────────────────────────────────────────

// Reconcile runs one backfill pass on demand.
func (s *SettingsService) Reconcile(ctx context.Context, actorID string) (*recompute.Report, error) {
	if _, err := s.requireRole(ctx, actorID, domain.RoleAdmin); err != nil {
		return nil, err
	}
	if s.reconciler == nil {
		return nil, errors.New(errors.ErrCodeUnavailable, "reconciliation is not configured")
	}
	return s.reconciler.Run(ctx)
}

func (s *SettingsService) requireRole(ctx context.Context, actorID string, roles ...domain.Role) (*domain.Actor, error) {
	actor, err := resolveActor(ctx, s.identity, actorID)
	if err != nil {
		return nil, err
	}
	if !actor.Blocked {
		for _, r := range roles {
			if actor.HasRole(r) {
				return actor, nil
			}
		}
	}
	return nil, domain.NewError(domain.KindUnauthorized, "actor %s may not change workflow settings", actor.ID)
}
