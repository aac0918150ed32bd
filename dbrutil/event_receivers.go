/*
Copyright © 2024-2026 Acronis International GmbH.

Released under MIT license.
*/

package dbrutil

import (
	"strings"
	"time"

	"github.com/acronis/go-appkit/log"
	"github.com/gocraft/dbr/v2"
	"github.com/prometheus/client_golang/prometheus"
)

// SlowQueryLogEventReceiver logs SQL queries that take longer than the threshold.
// Only annotated queries (the comment starts with the annotation prefix, see dbr's Comment) are logged.
type SlowQueryLogEventReceiver struct {
	*dbr.NullEventReceiver
	logger           log.FieldLogger
	minTime          time.Duration
	annotationPrefix string
}

// NewSlowQueryLogEventReceiver creates a new SlowQueryLogEventReceiver.
func NewSlowQueryLogEventReceiver(
	logger log.FieldLogger, minTime time.Duration, annotationPrefix string,
) *SlowQueryLogEventReceiver {
	return &SlowQueryLogEventReceiver{&dbr.NullEventReceiver{}, logger, minTime, annotationPrefix}
}

// TimingKv logs the query if it was slow.
func (r *SlowQueryLogEventReceiver) TimingKv(eventName string, nanoseconds int64, kvs map[string]string) {
	duration := time.Duration(nanoseconds)
	if duration < r.minTime {
		return
	}
	annotation := ParseAnnotationInQuery(kvs["sql"], r.annotationPrefix)
	if annotation == "" {
		return
	}
	r.logger.Warn("slow SQL query",
		log.String("annotation", annotation),
		log.String("event", eventName),
		log.Int64("duration_ms", duration.Milliseconds()),
	)
}

// QueryMetricsEventReceiver observes durations of annotated SQL queries in a Prometheus histogram.
type QueryMetricsEventReceiver struct {
	*dbr.NullEventReceiver
	durations        *prometheus.HistogramVec
	annotationPrefix string
}

// NewQueryMetricsEventReceiver creates a new QueryMetricsEventReceiver.
// The histogram must have exactly one label, the query annotation.
func NewQueryMetricsEventReceiver(durations *prometheus.HistogramVec, annotationPrefix string) *QueryMetricsEventReceiver {
	return &QueryMetricsEventReceiver{&dbr.NullEventReceiver{}, durations, annotationPrefix}
}

// NewQueryDurationsHistogram creates the histogram for NewQueryMetricsEventReceiver.
func NewQueryDurationsHistogram(namespace string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "db_query_duration_seconds",
		Help:      "A histogram of the SQL query durations.",
		Buckets:   []float64{0.001, 0.01, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"query"})
}

// TimingKv observes the query duration.
func (r *QueryMetricsEventReceiver) TimingKv(_ string, nanoseconds int64, kvs map[string]string) {
	annotation := ParseAnnotationInQuery(kvs["sql"], r.annotationPrefix)
	if annotation == "" {
		return
	}
	r.durations.WithLabelValues(annotation).Observe(time.Duration(nanoseconds).Seconds())
}

// CompositeReceiver passes every event to all of its receivers.
type CompositeReceiver struct {
	Receivers []dbr.EventReceiver
}

var _ dbr.EventReceiver = (*CompositeReceiver)(nil)

// NewCompositeReceiver creates a new CompositeReceiver.
func NewCompositeReceiver(receivers []dbr.EventReceiver) *CompositeReceiver {
	return &CompositeReceiver{receivers}
}

// Event receives a simple notification when various events occur.
func (r *CompositeReceiver) Event(eventName string) {
	for _, recv := range r.Receivers {
		recv.Event(eventName)
	}
}

// EventKv receives a notification when various events occur along with optional key/value data.
func (r *CompositeReceiver) EventKv(eventName string, kvs map[string]string) {
	for _, recv := range r.Receivers {
		recv.EventKv(eventName, kvs)
	}
}

// EventErr receives a notification of an error if one occurs.
func (r *CompositeReceiver) EventErr(eventName string, err error) error {
	for _, recv := range r.Receivers {
		_ = recv.EventErr(eventName, err)
	}
	return err
}

// EventErrKv receives a notification of an error if one occurs along with optional key/value data.
func (r *CompositeReceiver) EventErrKv(eventName string, err error, kvs map[string]string) error {
	for _, recv := range r.Receivers {
		_ = recv.EventErrKv(eventName, err, kvs)
	}
	return err
}

// Timing receives the time an event took to happen.
func (r *CompositeReceiver) Timing(eventName string, nanoseconds int64) {
	for _, recv := range r.Receivers {
		recv.Timing(eventName, nanoseconds)
	}
}

// TimingKv receives the time an event took to happen along with optional key/value data.
func (r *CompositeReceiver) TimingKv(eventName string, nanoseconds int64, kvs map[string]string) {
	for _, recv := range r.Receivers {
		recv.TimingKv(eventName, nanoseconds, kvs)
	}
}

// ParseAnnotationInQuery returns the first comment of the query that starts with the prefix.
func ParseAnnotationInQuery(query, prefix string) string {
	if prefix == "" {
		return ""
	}
	for {
		start := strings.Index(query, "/*")
		if start == -1 {
			return ""
		}
		query = query[start+2:]
		end := strings.Index(query, "*/")
		if end == -1 {
			return ""
		}
		comment := strings.TrimSpace(query[:end])
		if strings.HasPrefix(comment, prefix) {
			return comment
		}
		query = query[end+2:]
	}
}
