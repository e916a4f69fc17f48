package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/pesio-ai/be-proc-requests/internal/assignment"
	"github.com/pesio-ai/be-proc-requests/internal/common/errors"
	"github.com/pesio-ai/be-proc-requests/internal/common/logger"
	"github.com/pesio-ai/be-proc-requests/internal/domain"
	"github.com/pesio-ai/be-proc-requests/internal/recompute"
	"github.com/pesio-ai/be-proc-requests/internal/repository"
	"github.com/pesio-ai/be-proc-requests/internal/statemachine"
)

// memoryRequests mirrors RequestRepository.Apply: every write in a changeset
// is version-checked before any is applied.
type memoryRequests struct {
	mu          sync.Mutex
	rows        map[string]*domain.Request
	history     []*domain.StatusHistoryEntry
	assignments []*domain.WorkflowAssignment
	applies     int

	// gate, when set, holds the first gated readers until all have read.
	gate  *sync.WaitGroup
	gated atomic.Int32
	limit int32
}

func newMemoryRequests(reqs ...*domain.Request) *memoryRequests {
	m := &memoryRequests{rows: map[string]*domain.Request{}}
	for _, r := range reqs {
		if r.Version == 0 {
			r.Version = 1
		}
		m.rows[r.ID] = r.Clone()
	}
	return m
}

func (m *memoryRequests) holdReaders(n int) {
	m.gate = &sync.WaitGroup{}
	m.gate.Add(n)
	m.limit = int32(n)
}

func (m *memoryRequests) GetByID(_ context.Context, id string) (*domain.Request, error) {
	m.mu.Lock()
	row, ok := m.rows[id]
	var out *domain.Request
	if ok {
		out = row.Clone()
	}
	m.mu.Unlock()

	if m.gate != nil && m.gated.Add(1) <= m.limit {
		m.gate.Done()
		m.gate.Wait()
	}
	if !ok {
		return nil, errors.NotFound("request", id)
	}
	return out, nil
}

func (m *memoryRequests) GetByIDs(ctx context.Context, ids []string) ([]*domain.Request, error) {
	out := make([]*domain.Request, 0, len(ids))
	for _, id := range ids {
		r, err := m.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *memoryRequests) GetStatus(_ context.Context, id string) (domain.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return "", errors.NotFound("request", id)
	}
	return row.Status, nil
}

func (m *memoryRequests) List(_ context.Context, f repository.RequestFilter) ([]*domain.Request, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Request
	for _, r := range m.rows {
		if f.Status != nil && r.Status != *f.Status {
			continue
		}
		if f.RequesterID != nil && r.RequesterID != *f.RequesterID {
			continue
		}
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

func (m *memoryRequests) Apply(_ context.Context, cs *repository.Changeset) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range cs.Requests {
		if w.ExpectedVersion == 0 {
			if _, exists := m.rows[w.Request.ID]; exists {
				return errors.New(errors.ErrCodeConflict, "duplicate request "+w.Request.ID)
			}
			continue
		}
		row, ok := m.rows[w.Request.ID]
		if !ok || row.Version != w.ExpectedVersion {
			return domain.NewError(domain.KindConcurrentModification,
				"request %s changed since version %d", w.Request.ID, w.ExpectedVersion)
		}
	}

	for _, w := range cs.Requests {
		stored := w.Request.Clone()
		if w.ExpectedVersion == 0 {
			stored.Version = 1
		} else {
			stored.Version = w.ExpectedVersion + 1
			if !w.WriteItems {
				stored.Items = m.rows[stored.ID].Items
			}
		}
		w.Request.Version = stored.Version
		m.rows[stored.ID] = stored
	}
	for i, h := range cs.History {
		h.ID = fmt.Sprintf("h-%d-%d", m.applies, i)
		m.history = append(m.history, h)
	}
	m.assignments = append(m.assignments, cs.Assignments...)
	m.applies++
	return nil
}

func (m *memoryRequests) row(id string) *domain.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id].Clone()
}

func (m *memoryRequests) ListByRequest(_ context.Context, requestID string) ([]*domain.StatusHistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.StatusHistoryEntry
	for _, h := range m.history {
		if h.RequestID == requestID {
			out = append(out, h)
		}
	}
	return out, nil
}

type memoryAssignments struct{ reqs *memoryRequests }

func (m memoryAssignments) ListByRequest(_ context.Context, requestID string) ([]*domain.WorkflowAssignment, error) {
	m.reqs.mu.Lock()
	defer m.reqs.mu.Unlock()
	var out []*domain.WorkflowAssignment
	for i := len(m.reqs.assignments) - 1; i >= 0; i-- {
		if a := m.reqs.assignments[i]; a.RequestID == requestID {
			out = append(out, a)
		}
	}
	return out, nil
}

type memoryAudit struct {
	mu      sync.Mutex
	entries []*domain.AuditEntry
	err     error
}

func (m *memoryAudit) Append(_ context.Context, e *domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *memoryAudit) GetByRequestID(_ context.Context, requestID string) ([]*domain.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.AuditEntry
	for _, e := range m.entries {
		if e.RequestID == requestID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memoryAudit) actions(requestID string) []string {
	entries, _ := m.GetByRequestID(context.Background(), requestID)
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Action)
	}
	return out
}

type memorySettings struct {
	mu sync.Mutex
	s  domain.LoadBalancingSettings
}

func (m *memorySettings) Get(context.Context) (*domain.LoadBalancingSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.s
	return &s, nil
}

func (m *memorySettings) Update(_ context.Context, s *domain.LoadBalancingSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.LastRoundRobinIndex = m.s.LastRoundRobinIndex
	s.UpdatedAt = time.Now()
	m.s = *s
	return nil
}

// Advance implements assignment.CursorStore on the same row, as the
// repository does.
func (m *memorySettings) Advance(_ context.Context, n int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.s.LastRoundRobinIndex % n
	m.s.LastRoundRobinIndex = (idx + 1) % n
	return idx, nil
}

type memoryThresholds struct {
	rules []domain.ThresholdRule
}

func (m *memoryThresholds) ListActive(context.Context) ([]domain.ThresholdRule, error) {
	var out []domain.ThresholdRule
	for _, r := range m.rules {
		if r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memoryThresholds) List(context.Context) ([]domain.ThresholdRule, error) {
	return append([]domain.ThresholdRule(nil), m.rules...), nil
}

func (m *memoryThresholds) Create(_ context.Context, rule *domain.ThresholdRule) error {
	for i := range m.rules {
		if m.rules[i].ProcurementType == rule.ProcurementType && m.rules[i].Currency == rule.Currency {
			m.rules[i].IsActive = false
		}
	}
	rule.ID = fmt.Sprintf("rule-%d", len(m.rules)+1)
	m.rules = append(m.rules, *rule)
	return nil
}

func (m *memoryThresholds) Deactivate(_ context.Context, id string) error {
	for i := range m.rules {
		if m.rules[i].ID == id && m.rules[i].IsActive {
			m.rules[i].IsActive = false
			return nil
		}
	}
	return errors.NotFound("threshold_rule", id)
}

type memoryIdentity struct {
	actors map[string]domain.Actor
}

func newIdentity(actors ...domain.Actor) *memoryIdentity {
	m := &memoryIdentity{actors: map[string]domain.Actor{}}
	for _, a := range actors {
		m.actors[a.ID] = a
	}
	return m
}

func (m *memoryIdentity) GetActor(_ context.Context, id string) (*domain.Actor, error) {
	a, ok := m.actors[id]
	if !ok {
		return nil, errors.NotFound("user", id)
	}
	return &a, nil
}

func (m *memoryIdentity) ListUsersWithRole(_ context.Context, role domain.Role) ([]domain.Actor, error) {
	var out []domain.Actor
	for _, a := range m.actors {
		if a.HasRole(role) {
			out = append(out, a)
		}
	}
	return out, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []*domain.NotificationEvent
}

func (n *recordingNotifier) Publish(_ context.Context, e *domain.NotificationEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *recordingNotifier) recipients(eventType string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, e := range n.events {
		if e.EventType == eventType {
			out = append(out, e.Recipients...)
		}
	}
	return out
}

type mockVendors struct{ mock.Mock }

func (m *mockVendors) DispatchPurchaseOrder(ctx context.Context, req *domain.Request) (string, error) {
	args := m.Called(ctx, req.ID)
	return args.String(0), args.Error(1)
}

type mockReconciler struct{ mock.Mock }

func (m *mockReconciler) Run(ctx context.Context) (*recompute.Report, error) {
	args := m.Called(ctx)
	report, _ := args.Get(0).(*recompute.Report)
	return report, args.Error(1)
}

type zeroLoads struct{}

func (zeroLoads) ActiveCounts(_ context.Context, ids []string) (map[string]int, error) {
	out := make(map[string]int, len(ids))
	for _, id := range ids {
		out[id] = 0
	}
	return out, nil
}

// ── Fixture ───────────────────────────────────────────────────────────────────

const (
	deptA = "dept-a"
	deptB = "dept-b"
)

var (
	requester   = domain.Actor{ID: "u-req", Roles: []domain.Role{domain.RoleRequester}, DepartmentID: deptA}
	deptManager = domain.Actor{ID: "u-dm", Roles: []domain.Role{domain.RoleDeptManager}, DepartmentID: deptA}
	hodOther    = domain.Actor{ID: "u-hod-b", Roles: []domain.Role{domain.RoleHOD}, DepartmentID: deptB}
	procManager = domain.Actor{ID: "u-pm", Roles: []domain.Role{domain.RoleProcurementManager}}
	officerA    = domain.Actor{ID: "off-a", Roles: []domain.Role{domain.RoleProcurementOfficer}}
	officerB    = domain.Actor{ID: "off-b", Roles: []domain.Role{domain.RoleProcurementOfficer}}
	blockedOff  = domain.Actor{ID: "off-x", Roles: []domain.Role{domain.RoleProcurementOfficer}, Blocked: true}
	financeOff  = domain.Actor{ID: "u-fin", Roles: []domain.Role{domain.RoleFinanceOfficer}}
	executive   = domain.Actor{ID: "u-exec", Roles: []domain.Role{domain.RoleExecutive}}
	admin       = domain.Actor{ID: "u-admin", Roles: []domain.Role{domain.RoleAdmin}}
)

type fixture struct {
	requests   *memoryRequests
	audit      *memoryAudit
	settings   *memorySettings
	thresholds *memoryThresholds
	identity   *memoryIdentity
	notifier   *recordingNotifier
	vendors    *mockVendors
	svc        *WorkflowService
}

type fixtureOption func(*fixture)

func withOfficers(actors ...domain.Actor) fixtureOption {
	return func(f *fixture) {
		for _, a := range actors {
			f.identity.actors[a.ID] = a
		}
	}
}

func withoutOfficers() fixtureOption {
	return func(f *fixture) {
		for id, a := range f.identity.actors {
			if a.HasRole(domain.RoleProcurementOfficer) {
				delete(f.identity.actors, id)
			}
		}
	}
}

func withSettings(s domain.LoadBalancingSettings) fixtureOption {
	return func(f *fixture) { f.settings.s = s }
}

func withRules(rules ...domain.ThresholdRule) fixtureOption {
	return func(f *fixture) { f.thresholds.rules = rules }
}

func newFixture(reqs []*domain.Request, opts ...fixtureOption) *fixture {
	f := &fixture{
		requests:   newMemoryRequests(reqs...),
		audit:      &memoryAudit{},
		settings:   &memorySettings{s: domain.LoadBalancingSettings{Strategy: domain.StrategyManual}},
		thresholds: &memoryThresholds{},
		identity: newIdentity(requester, deptManager, hodOther, procManager,
			officerA, officerB, blockedOff, financeOff, executive, admin),
		notifier: &recordingNotifier{},
		vendors:  &mockVendors{},
	}
	for _, opt := range opts {
		opt(f)
	}
	f.svc = NewWorkflowService(WorkflowDeps{
		Requests:    f.requests,
		History:     f.requests,
		Assignments: memoryAssignments{f.requests},
		Audit:       f.audit,
		Settings:    f.settings,
		Thresholds:  f.thresholds,
		Identity:    f.identity,
		Notifier:    f.notifier,
		Vendors:     f.vendors,
		Machine:     statemachine.New(),
		Balancer:    assignment.NewBalancer(zeroLoads{}, f.settings),
	}, logger.Nop())
	return f
}

func draft(id string, total int64, types ...string) *domain.Request {
	if len(types) == 0 {
		types = []string{"goods"}
	}
	return &domain.Request{
		ID:               id,
		Reference:        "REQ-20260101-" + id,
		Title:            "Request " + id,
		DepartmentID:     deptA,
		RequesterID:      requester.ID,
		Currency:         "USD",
		ProcurementTypes: types,
		Items: []domain.LineItem{
			{ID: id + "-1", RequestID: id, LineNumber: 1, Description: "item", Quantity: 1, UnitPrice: total, LineTotal: total},
		},
		TotalEstimated: total,
		Status:         domain.StatusDraft,
		Version:        1,
	}
}

func inStatus(r *domain.Request, s domain.Status) *domain.Request {
	r.Status = s
	return r
}

func assignedTo(r *domain.Request, officerID string) *domain.Request {
	r.AssigneeID = &officerID
	return r
}
