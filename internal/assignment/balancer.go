// Package assignment picks the procurement officer who receives a request.
package assignment

import (
	"context"
	"fmt"
	"sort"

	"github.com/pesio-ai/be-proc-requests/internal/domain"
)

// LoadCounter reports how many active requests each officer holds. Active
// means assigned and in a status that is neither terminal nor returned.
type LoadCounter interface {
	ActiveCounts(ctx context.Context, officerIDs []string) (map[string]int, error)
}

// CursorStore owns the shared round-robin cursor. Advance atomically moves
// the cursor one step modulo n and returns the position before the move.
type CursorStore interface {
	Advance(ctx context.Context, n int) (int, error)
}

// Decision is the balancer's pick and the evidence behind it.
type Decision struct {
	Officer    domain.Officer
	Strategy   domain.AssignmentStrategy
	CursorUsed *int
	LoadAtPick *int
}

// Balancer implements the configured assignment strategies.
type Balancer struct {
	loads  LoadCounter
	cursor CursorStore
}

// NewBalancer creates a Balancer.
func NewBalancer(loads LoadCounter, cursor CursorStore) *Balancer {
	return &Balancer{loads: loads, cursor: cursor}
}

// Assign selects one officer from eligible. It returns a nil Decision and no
// error when balancing is disabled or the strategy is MANUAL.
func (b *Balancer) Assign(ctx context.Context, eligible []domain.Officer, settings domain.LoadBalancingSettings) (*Decision, error) {
	if !settings.Enabled || settings.Strategy == domain.StrategyManual {
		return nil, nil
	}
	if len(eligible) == 0 {
		return nil, domain.NewError(domain.KindNoEligibleAssignee, "no eligible officers")
	}

	officers := sortedByID(eligible)

	switch settings.Strategy {
	case domain.StrategyLeastLoaded:
		return b.leastLoaded(ctx, officers)
	case domain.StrategyRoundRobin:
		return b.roundRobin(ctx, officers)
	default:
		return nil, fmt.Errorf("unknown assignment strategy %q", settings.Strategy)
	}
}

func (b *Balancer) leastLoaded(ctx context.Context, officers []domain.Officer) (*Decision, error) {
	ids := make([]string, len(officers))
	for i, o := range officers {
		ids[i] = o.ID
	}
	counts, err := b.loads.ActiveCounts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to count officer load: %w", err)
	}

	// officers is sorted by ID, so the first minimum wins ties.
	best := 0
	for i := 1; i < len(officers); i++ {
		if counts[officers[i].ID] < counts[officers[best].ID] {
			best = i
		}
	}
	load := counts[officers[best].ID]
	return &Decision{
		Officer:    officers[best],
		Strategy:   domain.StrategyLeastLoaded,
		LoadAtPick: &load,
	}, nil
}

func (b *Balancer) roundRobin(ctx context.Context, officers []domain.Officer) (*Decision, error) {
	idx, err := b.cursor.Advance(ctx, len(officers))
	if err != nil {
		return nil, fmt.Errorf("failed to advance round-robin cursor: %w", err)
	}
	idx %= len(officers)
	if idx < 0 {
		idx += len(officers)
	}
	return &Decision{
		Officer:    officers[idx],
		Strategy:   domain.StrategyRoundRobin,
		CursorUsed: &idx,
	}, nil
}

// EligibleOfficers keeps unblocked actors holding role, deduplicated and
// ordered by ID.
func EligibleOfficers(actors []domain.Actor, role domain.Role) []domain.Officer {
	seen := make(map[string]bool, len(actors))
	out := make([]domain.Officer, 0, len(actors))
	for i := range actors {
		a := &actors[i]
		if a.Blocked || !a.HasRole(role) || seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		out = append(out, domain.Officer{ID: a.ID, Name: a.Name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortedByID(in []domain.Officer) []domain.Officer {
	out := append([]domain.Officer(nil), in...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
