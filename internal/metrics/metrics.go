// Package metrics exposes Prometheus instruments for the workflow engine.
package metrics

import (
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	apperrors "github.com/pesio-ai/be-proc-requests/internal/common/errors"
	"github.com/pesio-ai/be-proc-requests/internal/domain"
)

// ErrorKindInternal labels failures outside the workflow taxonomy.
const ErrorKindInternal = "INTERNAL"

// Config labels every instrument.
type Config struct {
	ServiceName string
	Environment string
}

// Metrics holds the workflow instruments.
type Metrics struct {
	transitions        *prometheus.CounterVec
	workflowErrors     *prometheus.CounterVec
	assignments        *prometheus.CounterVec
	assignmentFailures *prometheus.CounterVec
	combinations       *prometheus.CounterVec
	escalations        prometheus.Counter
	notifyFailures     *prometheus.CounterVec
	corrections        *prometheus.CounterVec
	reconcileRuns      *prometheus.CounterVec
	reconcileDuration  prometheus.Histogram
	reconcileScanned   prometheus.Counter
}

// New registers the instruments with registerer, or with the default
// registerer when nil.
func New(registerer prometheus.Registerer, cfg Config) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "be-proc-requests"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "procurement_request_transitions_total",
			Help:        "Committed request status transitions.",
			ConstLabels: constLabels,
		}, []string{"from", "to", "action"}),
		workflowErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "procurement_workflow_errors_total",
			Help:        "Rejected workflow operations by error kind.",
			ConstLabels: constLabels,
		}, []string{"operation", "kind"}),
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "procurement_assignments_total",
			Help:        "Officer assignments by strategy.",
			ConstLabels: constLabels,
		}, []string{"strategy"}),
		assignmentFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "procurement_assignment_failures_total",
			Help:        "Automatic assignments that could not pick an officer.",
			ConstLabels: constLabels,
		}, []string{"reason"}),
		combinations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "procurement_combinations_total",
			Help:        "Combine and uncombine operations.",
			ConstLabels: constLabels,
		}, []string{"operation"}),
		escalations: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "procurement_executive_escalations_total",
			Help:        "Requests flagged for executive approval.",
			ConstLabels: constLabels,
		}),
		notifyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "procurement_notification_failures_total",
			Help:        "Notifications that could not be published.",
			ConstLabels: constLabels,
		}, []string{"event"}),
		corrections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "procurement_reconcile_corrections_total",
			Help:        "Drifted cached counters repaired by the reconciler.",
			ConstLabels: constLabels,
		}, []string{"aggregate", "counter"}),
		reconcileRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "procurement_reconcile_runs_total",
			Help:        "Reconciliation passes by result.",
			ConstLabels: constLabels,
		}, []string{"result"}),
		reconcileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "procurement_reconcile_duration_seconds",
			Help:        "Reconciliation pass latency.",
			Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			ConstLabels: constLabels,
		}),
		reconcileScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "procurement_reconcile_scanned_total",
			Help:        "Aggregates inspected by the reconciler.",
			ConstLabels: constLabels,
		}),
	}

	registerer.MustRegister(
		m.transitions,
		m.workflowErrors,
		m.assignments,
		m.assignmentFailures,
		m.combinations,
		m.escalations,
		m.notifyFailures,
		m.corrections,
		m.reconcileRuns,
		m.reconcileDuration,
		m.reconcileScanned,
	)
	return m
}

// ObserveTransition counts a committed transition.
func (m *Metrics) ObserveTransition(from, to domain.Status, action domain.Action) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(from), string(to), string(action)).Inc()
}

// ObserveWorkflowError counts a failed operation by its error kind.
func (m *Metrics) ObserveWorkflowError(operation string, err error) {
	if m == nil || err == nil {
		return
	}
	m.workflowErrors.WithLabelValues(operation, ClassifyError(err)).Inc()
}

// ObserveAssignment counts an assignment.
func (m *Metrics) ObserveAssignment(strategy domain.AssignmentStrategy) {
	if m == nil {
		return
	}
	m.assignments.WithLabelValues(string(strategy)).Inc()
}

// ObserveAssignmentFailure counts an automatic assignment left pending.
func (m *Metrics) ObserveAssignmentFailure(err error) {
	if m == nil {
		return
	}
	m.assignmentFailures.WithLabelValues(ClassifyError(err)).Inc()
}

// ObserveCombination counts a combine or uncombine.
func (m *Metrics) ObserveCombination(operation string) {
	if m == nil {
		return
	}
	m.combinations.WithLabelValues(operation).Inc()
}

// ObserveEscalation counts a request flagged for executive approval.
func (m *Metrics) ObserveEscalation() {
	if m == nil {
		return
	}
	m.escalations.Inc()
}

// ObserveNotificationFailure counts a dropped notification.
func (m *Metrics) ObserveNotificationFailure(eventType string) {
	if m == nil {
		return
	}
	m.notifyFailures.WithLabelValues(eventType).Inc()
}

// ObserveCorrection counts one repaired counter.
func (m *Metrics) ObserveCorrection(aggregate, counter string) {
	if m == nil {
		return
	}
	m.corrections.WithLabelValues(aggregate, counter).Inc()
}

// ObserveRun records one reconciliation pass.
func (m *Metrics) ObserveRun(duration time.Duration, scanned, _ int, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.reconcileRuns.WithLabelValues(result).Inc()
	m.reconcileDuration.Observe(duration.Seconds())
	m.reconcileScanned.Add(float64(scanned))
}

// ClassifyError maps err to a low-cardinality label.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}
	var werr *domain.Error
	if errors.As(err, &werr) {
		return string(werr.Kind)
	}
	if code := apperrors.CodeOf(err); code != apperrors.ErrCodeInternal {
		return string(code)
	}
	return ErrorKindInternal
}
