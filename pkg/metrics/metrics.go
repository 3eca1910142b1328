package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PeersTotal counts known peers by connectivity state (spec
	// types.PeerState: disconnected, connecting, synced, syncing, error).
	PeersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "peervault_peers_total",
			Help: "Known peers by connectivity state",
		},
		[]string{"state"},
	)

	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "peervault_sessions_active",
			Help: "Number of live sync sessions",
		},
	)

	SessionStateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peervault_session_state_transitions_total",
			Help: "Sync session state machine transitions by destination state",
		},
		[]string{"state"},
	)

	DocSizeBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "peervault_document_size_bytes",
			Help: "Size in bytes of the current persisted document snapshot",
		},
	)

	BlobCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "peervault_blob_count",
			Help: "Number of distinct blobs in the blob store",
		},
	)

	BlobBytesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "peervault_blob_bytes_total",
			Help: "Total bytes of content stored in the blob store",
		},
	)

	BlobTransfersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peervault_blob_transfers_total",
			Help: "Blob transfers by direction (sent/received)",
		},
		[]string{"direction"},
	)

	GCRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peervault_gc_runs_total",
			Help: "Garbage collector runs by outcome",
		},
		[]string{"outcome"},
	)

	GCDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "peervault_gc_duration_seconds",
			Help:    "Garbage collection run duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	GCBlobBytesReclaimed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "peervault_gc_blob_bytes_reclaimed_total",
			Help: "Cumulative bytes reclaimed by orphan blob cleanup",
		},
	)

	SyncErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peervault_sync_errors_total",
			Help: "Sync session errors by vaulterr code",
		},
		[]string{"code"},
	)

	HandshakeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "peervault_handshake_duration_seconds",
			Help:    "Time from session open to entering Live state",
			Buckets: prometheus.DefBuckets,
		},
	)

	CloudSyncRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peervault_cloud_sync_runs_total",
			Help: "Object-storage sync runs by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		PeersTotal,
		SessionsActive,
		SessionStateTransitions,
		DocSizeBytes,
		BlobCount,
		BlobBytesTotal,
		BlobTransfersTotal,
		GCRunsTotal,
		GCDuration,
		GCBlobBytesReclaimed,
		SyncErrorsTotal,
		HandshakeDuration,
		CloudSyncRunsTotal,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
