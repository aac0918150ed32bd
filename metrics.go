/*
Copyright © 2024-2026 Acronis International GmbH.

Released under MIT license.
*/

package dbtx

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TxOutcome is how a top-level transaction ended.
type TxOutcome string

// Transaction outcomes.
const (
	TxOutcomeCommit      TxOutcome = "commit"
	TxOutcomeRollback    TxOutcome = "rollback"
	TxOutcomeCommitError TxOutcome = "commit_error"
)

// TxMetricsCollector observes top-level transactions.
type TxMetricsCollector interface {
	ObserveTx(outcome TxOutcome, duration time.Duration)
}

// MigrationStatus is the result of applying a single migration script.
type MigrationStatus string

// Migration statuses.
const (
	MigrationStatusApplied MigrationStatus = "applied"
	MigrationStatusFailed  MigrationStatus = "failed"
)

// MigrationMetricsCollector observes applied migration scripts.
type MigrationMetricsCollector interface {
	IncMigrations(status MigrationStatus)
}

// DefaultTxDurationBuckets is default buckets for the transaction duration histogram (in seconds).
var DefaultTxDurationBuckets = []float64{0.001, 0.01, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// PrometheusMetrics collects transaction and migration metrics in Prometheus format.
type PrometheusMetrics struct {
	TxDurations     *prometheus.HistogramVec
	MigrationsTotal *prometheus.CounterVec
}

var (
	_ TxMetricsCollector        = (*PrometheusMetrics)(nil)
	_ MigrationMetricsCollector = (*PrometheusMetrics)(nil)
)

// PrometheusMetricsOption is a functional option for NewPrometheusMetrics.
type PrometheusMetricsOption func(*prometheusMetricsOptions)

type prometheusMetricsOptions struct {
	namespace       string
	durationBuckets []float64
	constLabels     prometheus.Labels
}

// WithPrometheusNamespace sets a namespace (metric name prefix) for all metrics.
func WithPrometheusNamespace(ns string) PrometheusMetricsOption {
	return func(o *prometheusMetricsOptions) {
		o.namespace = ns
	}
}

// WithPrometheusDurationBuckets sets buckets for the transaction duration histogram.
func WithPrometheusDurationBuckets(buckets []float64) PrometheusMetricsOption {
	return func(o *prometheusMetricsOptions) {
		o.durationBuckets = buckets
	}
}

// WithPrometheusConstLabels sets constant labels that will be applied to all metrics.
func WithPrometheusConstLabels(labels prometheus.Labels) PrometheusMetricsOption {
	return func(o *prometheusMetricsOptions) {
		o.constLabels = labels
	}
}

// NewPrometheusMetrics creates a new metrics collector.
func NewPrometheusMetrics(options ...PrometheusMetricsOption) *PrometheusMetrics {
	opts := prometheusMetricsOptions{durationBuckets: DefaultTxDurationBuckets}
	for _, opt := range options {
		opt(&opts)
	}
	return &PrometheusMetrics{
		TxDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   opts.namespace,
			Name:        "db_tx_duration_seconds",
			Help:        "Duration of top-level database transactions by outcome.",
			Buckets:     opts.durationBuckets,
			ConstLabels: opts.constLabels,
		}, []string{"outcome"}),
		MigrationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.namespace,
			Name:        "db_migrations_total",
			Help:        "Number of migration scripts executed by status.",
			ConstLabels: opts.constLabels,
		}, []string{"status"}),
	}
}

// MustRegister registers all metrics in the default Prometheus registry.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(pm.TxDurations, pm.MigrationsTotal)
}

// Unregister cancels registration of all metrics in the default Prometheus registry.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.TxDurations)
	prometheus.Unregister(pm.MigrationsTotal)
}

// ObserveTx implements TxMetricsCollector.
func (pm *PrometheusMetrics) ObserveTx(outcome TxOutcome, duration time.Duration) {
	pm.TxDurations.WithLabelValues(string(outcome)).Observe(duration.Seconds())
}

// IncMigrations implements MigrationMetricsCollector.
func (pm *PrometheusMetrics) IncMigrations(status MigrationStatus) {
	pm.MigrationsTotal.WithLabelValues(string(status)).Inc()
}

type disabledMetrics struct{}

func (disabledMetrics) ObserveTx(TxOutcome, time.Duration) {}

func (disabledMetrics) IncMigrations(MigrationStatus) {}
