package recompute

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-proc-requests/internal/domain"
)

// RequestSnapshot is a request's cached total together with its items, read
// at one version.
type RequestSnapshot struct {
	ID             string
	Version        int64
	TotalEstimated int64
	Items          []domain.LineItem
}

// RequestSource pages through requests and overwrites their cached totals.
// OverwriteRequestTotals must only apply while the request is still at
// snap.Version and reports whether it did.
type RequestSource interface {
	RequestSnapshots(ctx context.Context, afterID string, limit int) ([]RequestSnapshot, error)
	OverwriteRequestTotals(ctx context.Context, snap RequestSnapshot, items []domain.LineItem, total int64) (bool, error)
}

// IdeaSnapshot is an idea with its cached counters and its votes.
type IdeaSnapshot struct {
	Idea  domain.Idea
	Votes []domain.Vote
}

// IdeaSource pages through ideas and overwrites their counters.
// OverwriteIdeaCounters must only apply while the cache still equals
// expected and reports whether it did.
type IdeaSource interface {
	IdeaSnapshots(ctx context.Context, afterID string, limit int) ([]IdeaSnapshot, error)
	OverwriteIdeaCounters(ctx context.Context, ideaID string, expected, actual Counters) (bool, error)
}

// Observer receives reconciliation telemetry.
type Observer interface {
	ObserveCorrection(aggregate, counter string)
	ObserveRun(duration time.Duration, scanned, corrections int, err error)
}

// Correction is one repaired counter.
type Correction struct {
	Aggregate string `json:"aggregate"`
	ID        string `json:"id"`
	Counter   string `json:"counter"`
	Was       int64  `json:"was"`
	Now       int64  `json:"now"`
}

// Report summarizes one reconciliation pass.
type Report struct {
	RequestsScanned int          `json:"requests_scanned"`
	IdeasScanned    int          `json:"ideas_scanned"`
	Skipped         int          `json:"skipped"`
	Corrections     []Correction `json:"corrections"`
	StartedAt       time.Time    `json:"started_at"`
	FinishedAt      time.Time    `json:"finished_at"`
}

// Reconciler repairs drifted caches. Child records are ground truth; a
// second run with no intervening writes makes no corrections.
type Reconciler struct {
	requests  RequestSource
	ideas     IdeaSource
	observer  Observer
	batchSize int
	log       zerolog.Logger
}

// NewReconciler creates a Reconciler. Either source may be nil.
func NewReconciler(requests RequestSource, ideas IdeaSource, observer Observer, batchSize int, log zerolog.Logger) *Reconciler {
	if batchSize <= 0 {
		batchSize = 200
	}
	return &Reconciler{
		requests:  requests,
		ideas:     ideas,
		observer:  observer,
		batchSize: batchSize,
		log:       log.With().Str("component", "reconciler").Logger(),
	}
}

// Run performs one full pass.
func (r *Reconciler) Run(ctx context.Context) (*Report, error) {
	report := &Report{StartedAt: time.Now().UTC()}

	err := r.reconcileRequests(ctx, report)
	if err == nil {
		err = r.reconcileIdeas(ctx, report)
	}

	report.FinishedAt = time.Now().UTC()
	if r.observer != nil {
		r.observer.ObserveRun(report.FinishedAt.Sub(report.StartedAt),
			report.RequestsScanned+report.IdeasScanned, len(report.Corrections), err)
	}

	evt := r.log.Info()
	if err != nil {
		evt = r.log.Error().Err(err)
	}
	evt.Int("requests_scanned", report.RequestsScanned).
		Int("ideas_scanned", report.IdeasScanned).
		Int("corrections", len(report.Corrections)).
		Int("skipped", report.Skipped).
		Msg("Reconciliation finished")

	return report, err
}

func (r *Reconciler) reconcileRequests(ctx context.Context, report *Report) error {
	if r.requests == nil {
		return nil
	}
	after := ""
	for {
		page, err := r.requests.RequestSnapshots(ctx, after, r.batchSize)
		if err != nil {
			return err
		}
		for _, snap := range page {
			report.RequestsScanned++
			if err := r.reconcileRequest(ctx, snap, report); err != nil {
				return err
			}
			after = snap.ID
		}
		if len(page) < r.batchSize {
			return nil
		}
	}
}

func (r *Reconciler) reconcileRequest(ctx context.Context, snap RequestSnapshot, report *Report) error {
	actual, items, err := RequestCounters(snap.Items)
	if err != nil {
		r.log.Warn().Err(err).Str("request_id", snap.ID).Msg("Cannot recompute request total; skipping")
		report.Skipped++
		return nil
	}

	var fixes []Correction
	if snap.TotalEstimated != actual[TotalEstimated] {
		fixes = append(fixes, Correction{
			Aggregate: "request", ID: snap.ID, Counter: TotalEstimated,
			Was: snap.TotalEstimated, Now: actual[TotalEstimated],
		})
	}
	for i := range items {
		if snap.Items[i].LineTotal != items[i].LineTotal {
			fixes = append(fixes, Correction{
				Aggregate: "request", ID: snap.ID, Counter: LineTotals,
				Was: snap.Items[i].LineTotal, Now: items[i].LineTotal,
			})
		}
	}
	if len(fixes) == 0 {
		return nil
	}

	applied, err := r.requests.OverwriteRequestTotals(ctx, snap, items, actual[TotalEstimated])
	if err != nil {
		return err
	}
	if !applied {
		// Changed underneath us; the writer recomputed it.
		report.Skipped++
		return nil
	}
	r.record(report, fixes)
	return nil
}

func (r *Reconciler) reconcileIdeas(ctx context.Context, report *Report) error {
	if r.ideas == nil {
		return nil
	}
	after := ""
	for {
		page, err := r.ideas.IdeaSnapshots(ctx, after, r.batchSize)
		if err != nil {
			return err
		}
		for _, snap := range page {
			report.IdeasScanned++
			cached := IdeaCached(snap.Idea)
			actual := IdeaCounters(snap.Votes)
			drifted := cached.Diff(actual, UpvoteCount, DownvoteCount, VoteCount)
			after = snap.Idea.ID
			if len(drifted) == 0 {
				continue
			}

			applied, err := r.ideas.OverwriteIdeaCounters(ctx, snap.Idea.ID, cached, actual)
			if err != nil {
				return err
			}
			if !applied {
				report.Skipped++
				continue
			}
			fixes := make([]Correction, 0, len(drifted))
			for _, name := range drifted {
				fixes = append(fixes, Correction{
					Aggregate: "idea", ID: snap.Idea.ID, Counter: name,
					Was: cached[name], Now: actual[name],
				})
			}
			r.record(report, fixes)
		}
		if len(page) < r.batchSize {
			return nil
		}
	}
}

func (r *Reconciler) record(report *Report, fixes []Correction) {
	for _, c := range fixes {
		r.log.Warn().
			Str("aggregate", c.Aggregate).
			Str("id", c.ID).
			Str("counter", c.Counter).
			Int64("was", c.Was).
			Int64("now", c.Now).
			Msg("Corrected drifted counter")
		if r.observer != nil {
			r.observer.ObserveCorrection(c.Aggregate, c.Counter)
		}
	}
	report.Corrections = append(report.Corrections, fixes...)
}

// Start runs Run every interval until ctx is cancelled. A failed pass is
// retried on the next tick.
func (r *Reconciler) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.log.Info().Dur("interval", interval).Msg("Reconciler started")
	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("Reconciler stopped")
			return
		case <-ticker.C:
			_, _ = r.Run(ctx)
		}
	}
}
