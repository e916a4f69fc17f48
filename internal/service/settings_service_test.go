package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-proc-requests/internal/common/errors"
	"github.com/pesio-ai/be-proc-requests/internal/common/logger"
	"github.com/pesio-ai/be-proc-requests/internal/domain"
	"github.com/pesio-ai/be-proc-requests/internal/recompute"
)

func TestUpdateLoadBalancing(t *testing.T) {
	settings := &memorySettings{s: domain.LoadBalancingSettings{Strategy: domain.StrategyManual, LastRoundRobinIndex: 3}}
	svc := NewSettingsService(settings, &memoryThresholds{}, nil, newIdentity(procManager, requester), logger.Nop())

	got, err := svc.UpdateLoadBalancing(context.Background(), &UpdateLoadBalancingInput{
		Enabled:             true,
		Strategy:            "least_loaded",
		AutoAssignOnApprove: true,
		UpdatedBy:           procManager.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StrategyLeastLoaded, got.Strategy)
	assert.Equal(t, 3, settings.s.LastRoundRobinIndex, "cursor survives a settings change")
	require.NotNil(t, settings.s.UpdatedBy)
	assert.Equal(t, procManager.ID, *settings.s.UpdatedBy)

	_, err = svc.UpdateLoadBalancing(context.Background(), &UpdateLoadBalancingInput{Strategy: "random", UpdatedBy: procManager.ID})
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))

	_, err = svc.UpdateLoadBalancing(context.Background(), &UpdateLoadBalancingInput{Strategy: "MANUAL", UpdatedBy: requester.ID})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestThresholdRules(t *testing.T) {
	ctx := context.Background()
	rules := &memoryThresholds{}
	svc := NewSettingsService(&memorySettings{}, rules, nil, newIdentity(admin, procManager), logger.Nop())

	first, err := svc.CreateThresholdRule(ctx, &CreateThresholdRuleInput{ProcurementType: "goods", Currency: "USD", Cutoff: 1000, CreatedBy: admin.ID})
	require.NoError(t, err)
	_, err = svc.CreateThresholdRule(ctx, &CreateThresholdRuleInput{ProcurementType: "goods", Currency: "USD", Cutoff: 5000, CreatedBy: admin.ID})
	require.NoError(t, err)

	active, _ := rules.ListActive(ctx)
	require.Len(t, active, 1)
	assert.Equal(t, int64(5000), active[0].Cutoff)

	all, err := svc.ListThresholdRules(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	assert.Equal(t, errors.ErrCodeNotFound, errors.CodeOf(svc.DeactivateThresholdRule(ctx, first.ID, admin.ID)))
	assert.NoError(t, svc.DeactivateThresholdRule(ctx, active[0].ID, admin.ID))

	_, err = svc.CreateThresholdRule(ctx, &CreateThresholdRuleInput{ProcurementType: "goods", Currency: "USD", Cutoff: -1, CreatedBy: admin.ID})
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))
	_, err = svc.CreateThresholdRule(ctx, &CreateThresholdRuleInput{ProcurementType: "goods", Currency: "USD", Cutoff: 1, CreatedBy: procManager.ID})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestReconcile(t *testing.T) {
	rec := new(mockReconciler)
	rec.On("Run", mock.Anything).Return(&recompute.Report{RequestsScanned: 4}, nil).Once()
	svc := NewSettingsService(&memorySettings{}, &memoryThresholds{}, rec, newIdentity(admin, requester), logger.Nop())

	report, err := svc.Reconcile(context.Background(), admin.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, report.RequestsScanned)

	_, err = svc.Reconcile(context.Background(), requester.ID)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	rec.AssertExpectations(t)

	_, err = NewSettingsService(&memorySettings{}, &memoryThresholds{}, nil, newIdentity(admin), logger.Nop()).
		Reconcile(context.Background(), admin.ID)
	assert.Equal(t, errors.ErrCodeUnavailable, errors.CodeOf(err))
}

// memoryIdeas keeps votes as the source of truth and derives counters the
// way the repository does.
type memoryIdeas struct {
	mu    sync.Mutex
	ideas map[string]*domain.Idea
	votes map[string]map[string]domain.Vote
}

func (m *memoryIdeas) Create(_ context.Context, idea *domain.Idea) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *idea
	m.ideas[idea.ID] = &c
	return nil
}

func (m *memoryIdeas) GetByID(_ context.Context, id string) (*domain.Idea, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idea, ok := m.ideas[id]
	if !ok {
		return nil, errors.NotFound("idea", id)
	}
	c := *idea
	return &c, nil
}

func (m *memoryIdeas) CastVote(_ context.Context, v *domain.Vote) (*domain.Idea, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idea, ok := m.ideas[v.IdeaID]
	if !ok {
		return nil, errors.NotFound("idea", v.IdeaID)
	}
	if m.votes[v.IdeaID] == nil {
		m.votes[v.IdeaID] = map[string]domain.Vote{}
	}
	m.votes[v.IdeaID][v.UserID] = *v
	all := make([]domain.Vote, 0, len(m.votes[v.IdeaID]))
	for _, vote := range m.votes[v.IdeaID] {
		all = append(all, vote)
	}
	recompute.ApplyIdea(idea, recompute.IdeaCounters(all))
	c := *idea
	return &c, nil
}

func TestIdeaVoting(t *testing.T) {
	ctx := context.Background()
	store := &memoryIdeas{ideas: map[string]*domain.Idea{}, votes: map[string]map[string]domain.Vote{}}
	svc := NewIdeaService(store, newIdentity(requester, deptManager, admin), logger.Nop())

	idea, err := svc.CreateIdea(ctx, "Bulk toner contract", requester.ID)
	require.NoError(t, err)
	assert.Zero(t, idea.VoteCount)

	_, err = svc.CastVote(ctx, idea.ID, requester.ID, "up")
	require.NoError(t, err)
	_, err = svc.CastVote(ctx, idea.ID, deptManager.ID, "UP")
	require.NoError(t, err)
	got, err := svc.CastVote(ctx, idea.ID, admin.ID, "down")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.UpvoteCount)
	assert.Equal(t, int64(1), got.DownvoteCount)
	assert.Equal(t, int64(1), got.VoteCount)

	// Changing a vote replaces it rather than adding another.
	got, err = svc.CastVote(ctx, idea.ID, requester.ID, "down")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.UpvoteCount)
	assert.Equal(t, int64(2), got.DownvoteCount)
	assert.Equal(t, int64(-1), got.VoteCount)

	_, err = svc.CastVote(ctx, idea.ID, requester.ID, "sideways")
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))
	_, err = svc.CastVote(ctx, "missing", requester.ID, "up")
	assert.Equal(t, errors.ErrCodeNotFound, errors.CodeOf(err))
	_, err = svc.CreateIdea(ctx, " ", requester.ID)
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))
}
