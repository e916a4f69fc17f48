// Package combiner folds several standalone requests into one combined
// request. It performs no I/O; callers persist the result atomically.
package combiner

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pesio-ai/be-proc-requests/internal/domain"
)

// DefaultCombinableStatuses are the statuses a source may be in.
var DefaultCombinableStatuses = []domain.Status{
	domain.StatusDraft,
	domain.StatusSubmitted,
	domain.StatusDepartmentReview,
	domain.StatusProcurementReview,
}

// Combination is a new parent and the updated sources pointing at it.
type Combination struct {
	Parent  *domain.Request
	Members []*domain.Request
}

// Separation is an undone combination: the parent moved to REJECTED and the
// members released.
type Separation struct {
	Parent  *domain.Request
	Members []*domain.Request
}

// Combiner builds combined requests.
type Combiner struct {
	combinable map[domain.Status]bool
	now        func() time.Time
	newID      func() string
}

// Option configures a Combiner.
type Option func(*Combiner)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Combiner) { c.now = now }
}

// WithIDGenerator overrides uuid generation.
func WithIDGenerator(newID func() string) Option {
	return func(c *Combiner) { c.newID = newID }
}

// New creates a Combiner. An empty statuses list means DefaultCombinableStatuses.
func New(statuses []domain.Status, opts ...Option) *Combiner {
	if len(statuses) == 0 {
		statuses = DefaultCombinableStatuses
	}
	c := &Combiner{
		combinable: make(map[domain.Status]bool, len(statuses)),
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, s := range statuses {
		c.combinable[s] = true
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Combinable reports whether s is a configured combinable status.
func (c *Combiner) Combinable(s domain.Status) bool {
	return c.combinable[s]
}

// Combine validates sources and builds the parent. Nothing is mutated on
// failure: sources are cloned before being linked. Any source still linked to
// a parent is rejected, so callers clear the link of members whose parent has
// finished before combining them again.
func (c *Combiner) Combine(sources []*domain.Request, actor *domain.Actor) (*Combination, error) {
	distinct := dedupe(sources)
	if len(distinct) < 2 {
		return nil, domain.NewError(domain.KindInsufficientSources,
			"at least two distinct requests are required, got %d", len(distinct))
	}

	currency := strings.ToUpper(distinct[0].Currency)
	for _, src := range distinct {
		if src.IsCombined || src.IsMember() {
			return nil, domain.NewError(domain.KindAlreadyCombined, "request %s is already combined", src.ID)
		}
		if !c.combinable[src.Status] {
			return nil, domain.NewError(domain.KindIneligibleStatus,
				"request %s is %s and cannot be combined", src.ID, src.Status)
		}
		if strings.ToUpper(src.Currency) != currency {
			return nil, domain.NewError(domain.KindCurrencyMismatch,
				"request %s is in %s, expected %s", src.ID, src.Currency, currency)
		}
	}

	now := c.now().UTC()
	parentID := c.newID()

	department := distinct[0].DepartmentID
	if actor != nil && actor.DepartmentID != "" {
		department = actor.DepartmentID
	}
	requester := ""
	if actor != nil {
		requester = actor.ID
	}

	parent := &domain.Request{
		ID:               parentID,
		Reference:        c.reference(now),
		Title:            fmt.Sprintf("Combined procurement of %d requests", len(distinct)),
		DepartmentID:     department,
		RequesterID:      requester,
		Currency:         currency,
		ProcurementTypes: unionTypes(distinct),
		Status:           domain.StatusDraft,
		IsCombined:       true,
		MemberRequestIDs: make([]string, 0, len(distinct)),
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	members := make([]*domain.Request, 0, len(distinct))
	for _, src := range distinct {
		parent.MemberRequestIDs = append(parent.MemberRequestIDs, src.ID)
		srcID := src.ID
		for _, it := range src.Items {
			parent.Items = append(parent.Items, domain.LineItem{
				ID:              c.newID(),
				RequestID:       parentID,
				SourceRequestID: &srcID,
				Description:     it.Description,
				Quantity:        it.Quantity,
				UnitPrice:       it.UnitPrice,
			})
		}

		m := src.Clone()
		m.CombinedRequestID = &parentID
		m.UpdatedAt = now
		members = append(members, m)
	}

	if err := parent.RecalculateTotal(); err != nil {
		return nil, err
	}

	return &Combination{Parent: parent, Members: members}, nil
}

// Uncombine releases members from a parent that has not left DRAFT. The
// parent is rejected rather than removed so its history survives.
func (c *Combiner) Uncombine(parent *domain.Request, members []*domain.Request) (*Separation, error) {
	if !parent.IsCombined {
		return nil, domain.NewError(domain.KindIneligibleStatus, "request %s is not a combined request", parent.ID)
	}
	if parent.Status != domain.StatusDraft {
		return nil, domain.NewError(domain.KindIneligibleStatus,
			"combined request %s is %s; only DRAFT can be uncombined", parent.ID, parent.Status)
	}

	now := c.now().UTC()
	out := &Separation{Parent: parent.Clone(), Members: make([]*domain.Request, 0, len(members))}
	out.Parent.Status = domain.StatusRejected
	out.Parent.UpdatedAt = now

	for _, m := range members {
		if m.CombinedRequestID == nil || *m.CombinedRequestID != parent.ID {
			return nil, domain.NewError(domain.KindIllegalTransition,
				"request %s is not a member of %s", m.ID, parent.ID)
		}
		released := m.Clone()
		released.CombinedRequestID = nil
		released.UpdatedAt = now
		out.Members = append(out.Members, released)
	}
	return out, nil
}

func (c *Combiner) reference(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(c.newID(), "-", ""))
	if len(suffix) > 6 {
		suffix = suffix[:6]
	}
	return fmt.Sprintf("%s%s-%s", domain.CombinedReferencePrefix, now.Format("20060102"), suffix)
}

func dedupe(in []*domain.Request) []*domain.Request {
	seen := make(map[string]bool, len(in))
	out := make([]*domain.Request, 0, len(in))
	for _, r := range in {
		if r == nil || seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		out = append(out, r)
	}
	return out
}

func unionTypes(reqs []*domain.Request) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range reqs {
		for _, t := range r.ProcurementTypes {
			k := strings.ToLower(strings.TrimSpace(t))
			if k == "" || seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}
