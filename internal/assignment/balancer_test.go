package assignment

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-proc-requests/internal/domain"
)

type memoryCursor struct {
	mu  sync.Mutex
	pos int
}

func (c *memoryCursor) Advance(_ context.Context, n int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pre := c.pos % n
	c.pos = (pre + 1) % n
	return pre, nil
}

type memoryLoads struct {
	counts map[string]int
}

func (l *memoryLoads) ActiveCounts(_ context.Context, ids []string) (map[string]int, error) {
	out := make(map[string]int, len(ids))
	for _, id := range ids {
		out[id] = l.counts[id]
	}
	return out, nil
}

type mockLoads struct {
	mock.Mock
}

func (m *mockLoads) ActiveCounts(ctx context.Context, ids []string) (map[string]int, error) {
	args := m.Called(ctx, ids)
	if v := args.Get(0); v != nil {
		return v.(map[string]int), args.Error(1)
	}
	return nil, args.Error(1)
}

func officers(ids ...string) []domain.Officer {
	out := make([]domain.Officer, len(ids))
	for i, id := range ids {
		out[i] = domain.Officer{ID: id}
	}
	return out
}

func settings(s domain.AssignmentStrategy) domain.LoadBalancingSettings {
	return domain.LoadBalancingSettings{Enabled: true, Strategy: s}
}

func TestAssign_RoundRobinFairness(t *testing.T) {
	ctx := context.Background()
	cursor := &memoryCursor{pos: 2}
	b := NewBalancer(nil, cursor)
	eligible := officers("o-4", "o-1", "o-3", "o-2")

	picked := make(map[string]int)
	var order []string
	for i := 0; i < len(eligible); i++ {
		d, err := b.Assign(ctx, eligible, settings(domain.StrategyRoundRobin))
		require.NoError(t, err)
		picked[d.Officer.ID]++
		order = append(order, d.Officer.ID)
		require.NotNil(t, d.CursorUsed)
	}

	for _, o := range eligible {
		assert.Equal(t, 1, picked[o.ID], "officer %s", o.ID)
	}
	// Cursor started at 2 over the ID-sorted list.
	assert.Equal(t, []string{"o-3", "o-4", "o-1", "o-2"}, order)
}

func TestAssign_RoundRobinConcurrentCallsNeverCollide(t *testing.T) {
	ctx := context.Background()
	b := NewBalancer(nil, &memoryCursor{})
	eligible := officers("a", "b", "c", "d", "e")

	var mu sync.Mutex
	picked := make(map[string]int)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := b.Assign(ctx, eligible, settings(domain.StrategyRoundRobin))
			if err != nil {
				return
			}
			mu.Lock()
			picked[d.Officer.ID]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	for _, o := range eligible {
		assert.Equal(t, 10, picked[o.ID])
	}
}

func TestAssign_LeastLoaded(t *testing.T) {
	ctx := context.Background()
	loads := &memoryLoads{counts: map[string]int{"o-1": 3, "o-3": 1, "o-2": 2}}
	b := NewBalancer(loads, nil)
	eligible := officers("o-1", "o-2", "o-3")

	d, err := b.Assign(ctx, eligible, settings(domain.StrategyLeastLoaded))
	require.NoError(t, err)
	assert.Equal(t, "o-3", d.Officer.ID)
	require.NotNil(t, d.LoadAtPick)
	assert.Equal(t, 1, *d.LoadAtPick)

	loads.counts["o-3"]++

	d, err = b.Assign(ctx, eligible, settings(domain.StrategyLeastLoaded))
	require.NoError(t, err)
	assert.Equal(t, "o-2", d.Officer.ID, "o-2 and o-3 tie at 2; lowest ID wins")
}

func TestAssign_LeastLoadedTieBreaksOnLowestID(t *testing.T) {
	loads := &memoryLoads{counts: map[string]int{}}
	d, err := NewBalancer(loads, nil).Assign(context.Background(), officers("zed", "amy", "kim"), settings(domain.StrategyLeastLoaded))
	require.NoError(t, err)
	assert.Equal(t, "amy", d.Officer.ID)
}

func TestAssign_LeastLoadedCounterFailure(t *testing.T) {
	loads := new(mockLoads)
	loads.On("ActiveCounts", mock.Anything, []string{"a", "b"}).Return(nil, errors.New("db down"))

	_, err := NewBalancer(loads, nil).Assign(context.Background(), officers("b", "a"), settings(domain.StrategyLeastLoaded))
	assert.Error(t, err)
	loads.AssertExpectations(t)
}

func TestAssign_ManualAndDisabled(t *testing.T) {
	b := NewBalancer(nil, nil)

	d, err := b.Assign(context.Background(), officers("a"), settings(domain.StrategyManual))
	assert.NoError(t, err)
	assert.Nil(t, d)

	d, err = b.Assign(context.Background(), officers("a"), domain.LoadBalancingSettings{Strategy: domain.StrategyRoundRobin})
	assert.NoError(t, err)
	assert.Nil(t, d)
}

func TestAssign_NoEligible(t *testing.T) {
	for _, s := range []domain.AssignmentStrategy{domain.StrategyRoundRobin, domain.StrategyLeastLoaded} {
		_, err := NewBalancer(&memoryLoads{}, &memoryCursor{}).Assign(context.Background(), nil, settings(s))
		assert.ErrorIs(t, err, domain.ErrNoEligibleAssignee, string(s))
	}
}

func TestEligibleOfficers(t *testing.T) {
	actors := []domain.Actor{
		{ID: "o-3", Roles: []domain.Role{domain.RoleProcurementOfficer}},
		{ID: "o-1", Roles: []domain.Role{domain.RoleProcurementOfficer}, Blocked: true},
		{ID: "o-2", Roles: []domain.Role{domain.RoleProcurementOfficer, domain.RoleRequester}},
		{ID: "m-1", Roles: []domain.Role{domain.RoleProcurementManager}},
		{ID: "o-3", Roles: []domain.Role{domain.RoleProcurementOfficer}},
	}

	got := EligibleOfficers(actors, domain.RoleProcurementOfficer)
	assert.Equal(t, officers("o-2", "o-3"), got)
}
