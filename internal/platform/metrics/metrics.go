// Package metrics registers the Prometheus instruments for the ledger.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service. A nil *Metrics is
// safe to call so tests can skip registration.
type Metrics struct {
	ActionsAccepted    *prometheus.CounterVec
	ActionsRejected    *prometheus.CounterVec
	AppendDuration     prometheus.Histogram
	AppendConflicts    prometheus.Counter
	AttachmentsDeleted prometheus.Counter
	AttachmentsKept    prometheus.Counter
	GCFailures         prometheus.Counter
	FeedPublished      prometheus.Counter
	FeedErrors         prometheus.Counter
	HTTPDuration       *prometheus.HistogramVec
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		ActionsAccepted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "civreg_actions_accepted_total",
			Help: "Accepted ledger actions by action type.",
		}, []string{"type"}),
		ActionsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "civreg_actions_rejected_total",
			Help: "Rejected submissions by error kind.",
		}, []string{"kind"}),
		AppendDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "civreg_append_duration_seconds",
			Help:    "Latency of the ledger append path.",
			Buckets: prometheus.DefBuckets,
		}),
		AppendConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civreg_append_conflicts_total",
			Help: "Optimistic concurrency conflicts retried internally.",
		}),
		AttachmentsDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civreg_attachments_deleted_total",
			Help: "Unreferenced attachments removed by draft GC.",
		}),
		AttachmentsKept: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civreg_attachments_kept_total",
			Help: "Attachments checked by GC but still referenced.",
		}),
		GCFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civreg_attachment_gc_failures_total",
			Help: "Attachment existence-check or delete failures (left orphaned).",
		}),
		FeedPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civreg_feed_published_total",
			Help: "Change-feed messages published to Kafka.",
		}),
		FeedErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civreg_feed_errors_total",
			Help: "Change-feed publish failures.",
		}),
		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "civreg_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) ObserveAppend(d time.Duration) {
	if m == nil {
		return
	}
	m.AppendDuration.Observe(d.Seconds())
}

func (m *Metrics) IncAccepted(actionType string) {
	if m == nil {
		return
	}
	m.ActionsAccepted.WithLabelValues(actionType).Inc()
}

func (m *Metrics) IncRejected(kind string) {
	if m == nil {
		return
	}
	m.ActionsRejected.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncConflict() {
	if m == nil {
		return
	}
	m.AppendConflicts.Inc()
}

func (m *Metrics) IncAttachmentDeleted() {
	if m == nil {
		return
	}
	m.AttachmentsDeleted.Inc()
}

func (m *Metrics) IncAttachmentKept() {
	if m == nil {
		return
	}
	m.AttachmentsKept.Inc()
}

func (m *Metrics) IncGCFailure() {
	if m == nil {
		return
	}
	m.GCFailures.Inc()
}

func (m *Metrics) IncFeedPublished() {
	if m == nil {
		return
	}
	m.FeedPublished.Inc()
}

func (m *Metrics) IncFeedError() {
	if m == nil {
		return
	}
	m.FeedErrors.Inc()
}

func (m *Metrics) ObserveHTTP(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPDuration.WithLabelValues(method, route, status).Observe(d.Seconds())
}
