package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "designaudit"

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Current number of HTTP requests being processed",
		},
	)
)

// Rule engine metrics
var (
	RuleEvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_evaluations_total",
			Help:      "Total number of rule evaluations by verdict",
		},
		[]string{"category", "status"},
	)

	RuleDocumentsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_documents_rejected_total",
			Help:      "Rule definition documents skipped because they were malformed",
		},
		[]string{"file"},
	)

	RulesLoaded = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rules_loaded",
			Help:      "Number of rule definitions currently loaded per category",
		},
		[]string{"category"},
	)
)

// Calculation metrics
var (
	CalculationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calculations_total",
			Help:      "Total number of finished calculations by outcome",
		},
		[]string{"type", "outcome"},
	)

	CalculationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "calculation_duration_seconds",
			Help:      "Calculation execution time distribution",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		},
		[]string{"type"},
	)

	ViolationsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "violations_detected_total",
			Help:      "Total number of violations recorded by severity",
		},
		[]string{"severity"},
	)
)

// Safety metrics
var (
	OverrideRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "override_requests_total",
			Help:      "Total number of override requests by result",
		},
		[]string{"result"},
	)

	ExportDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "export_decisions_total",
			Help:      "Total number of export gate evaluations by decision",
		},
		[]string{"decision"},
	)
)

// Version metrics
var (
	VersionsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "versions_created_total",
			Help:      "Total number of design versions created",
		},
		[]string{"origin"},
	)

	VersionArchiveFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "version_archive_failures_total",
			Help:      "Total number of version documents that could not be archived",
		},
	)
)

// Outcome label values
const (
	OutcomeExportable = "exportable"
	OutcomeBlocked    = "blocked"
	OutcomeFailed     = "failed"
)

// BoolDecision maps an export decision to its label value.
func BoolDecision(canExport bool) string {
	if canExport {
		return "allowed"
	}
	return "blocked"
}
