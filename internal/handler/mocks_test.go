package handler

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/pesio-ai/be-proc-requests/internal/combiner"
	"github.com/pesio-ai/be-proc-requests/internal/domain"
	"github.com/pesio-ai/be-proc-requests/internal/recompute"
	"github.com/pesio-ai/be-proc-requests/internal/repository"
	"github.com/pesio-ai/be-proc-requests/internal/service"
)

type mockWorkflow struct{ mock.Mock }

func (m *mockWorkflow) PerformAction(ctx context.Context, requestID string, action domain.Action, actorID string, payload service.ActionPayload) (*service.TransitionResult, error) {
	args := m.Called(ctx, requestID, action, actorID, payload)
	res, _ := args.Get(0).(*service.TransitionResult)
	return res, args.Error(1)
}

func (m *mockWorkflow) Combine(ctx context.Context, requestIDs []string, actorID string) (*combiner.Combination, error) {
	args := m.Called(ctx, requestIDs, actorID)
	res, _ := args.Get(0).(*combiner.Combination)
	return res, args.Error(1)
}

func (m *mockWorkflow) Uncombine(ctx context.Context, combinedID, actorID string) (*combiner.Separation, error) {
	args := m.Called(ctx, combinedID, actorID)
	res, _ := args.Get(0).(*combiner.Separation)
	return res, args.Error(1)
}

func (m *mockWorkflow) AvailableActions(ctx context.Context, requestID, actorID string) ([]domain.Action, error) {
	args := m.Called(ctx, requestID, actorID)
	res, _ := args.Get(0).([]domain.Action)
	return res, args.Error(1)
}

func (m *mockWorkflow) GetHistory(ctx context.Context, requestID string) ([]*domain.StatusHistoryEntry, error) {
	args := m.Called(ctx, requestID)
	res, _ := args.Get(0).([]*domain.StatusHistoryEntry)
	return res, args.Error(1)
}

func (m *mockWorkflow) GetAssignments(ctx context.Context, requestID string) ([]*domain.WorkflowAssignment, error) {
	args := m.Called(ctx, requestID)
	res, _ := args.Get(0).([]*domain.WorkflowAssignment)
	return res, args.Error(1)
}

func (m *mockWorkflow) GetAuditTrail(ctx context.Context, requestID string) ([]*domain.AuditEntry, error) {
	args := m.Called(ctx, requestID)
	res, _ := args.Get(0).([]*domain.AuditEntry)
	return res, args.Error(1)
}

type mockRequests struct{ mock.Mock }

func (m *mockRequests) CreateDraft(ctx context.Context, in *service.CreateRequestInput) (*domain.Request, error) {
	args := m.Called(ctx, in)
	res, _ := args.Get(0).(*domain.Request)
	return res, args.Error(1)
}

func (m *mockRequests) ReplaceItems(ctx context.Context, in *service.ReplaceItemsInput) (*domain.Request, error) {
	args := m.Called(ctx, in)
	res, _ := args.Get(0).(*domain.Request)
	return res, args.Error(1)
}

func (m *mockRequests) GetRequest(ctx context.Context, id string) (*domain.Request, error) {
	args := m.Called(ctx, id)
	res, _ := args.Get(0).(*domain.Request)
	return res, args.Error(1)
}

func (m *mockRequests) ListRequests(ctx context.Context, filter repository.RequestFilter) ([]*domain.Request, int64, error) {
	args := m.Called(ctx, filter)
	res, _ := args.Get(0).([]*domain.Request)
	return res, args.Get(1).(int64), args.Error(2)
}

type mockIdeas struct{ mock.Mock }

func (m *mockIdeas) CreateIdea(ctx context.Context, title, submittedBy string) (*domain.Idea, error) {
	args := m.Called(ctx, title, submittedBy)
	res, _ := args.Get(0).(*domain.Idea)
	return res, args.Error(1)
}

func (m *mockIdeas) CastVote(ctx context.Context, ideaID, userID, direction string) (*domain.Idea, error) {
	args := m.Called(ctx, ideaID, userID, direction)
	res, _ := args.Get(0).(*domain.Idea)
	return res, args.Error(1)
}

func (m *mockIdeas) GetIdea(ctx context.Context, id string) (*domain.Idea, error) {
	args := m.Called(ctx, id)
	res, _ := args.Get(0).(*domain.Idea)
	return res, args.Error(1)
}

type mockSettings struct{ mock.Mock }

func (m *mockSettings) GetLoadBalancing(ctx context.Context) (*domain.LoadBalancingSettings, error) {
	args := m.Called(ctx)
	res, _ := args.Get(0).(*domain.LoadBalancingSettings)
	return res, args.Error(1)
}

func (m *mockSettings) UpdateLoadBalancing(ctx context.Context, in *service.UpdateLoadBalancingInput) (*domain.LoadBalancingSettings, error) {
	args := m.Called(ctx, in)
	res, _ := args.Get(0).(*domain.LoadBalancingSettings)
	return res, args.Error(1)
}

func (m *mockSettings) ListThresholdRules(ctx context.Context) ([]domain.ThresholdRule, error) {
	args := m.Called(ctx)
	res, _ := args.Get(0).([]domain.ThresholdRule)
	return res, args.Error(1)
}

func (m *mockSettings) CreateThresholdRule(ctx context.Context, in *service.CreateThresholdRuleInput) (*domain.ThresholdRule, error) {
	args := m.Called(ctx, in)
	res, _ := args.Get(0).(*domain.ThresholdRule)
	return res, args.Error(1)
}

func (m *mockSettings) DeactivateThresholdRule(ctx context.Context, id, actorID string) error {
	return m.Called(ctx, id, actorID).Error(0)
}

func (m *mockSettings) Reconcile(ctx context.Context, actorID string) (*recompute.Report, error) {
	args := m.Called(ctx, actorID)
	res, _ := args.Get(0).(*recompute.Report)
	return res, args.Error(1)
}
