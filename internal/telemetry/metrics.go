// Package telemetry exposes walk and sync counters as Prometheus metrics.
//
// Metrics are opt-in: components hold a *SyncMetrics that is nil unless the
// binary was started with METRICS_ENABLED, and every method on a nil
// *SyncMetrics is a no-op. Nothing is pushed anywhere; the desktop server
// serves the registry on /metrics for local scraping only.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pawtrail"

// Completion paths for WalkCompleted.
const (
	PathOnline = "online"
	PathQueued = "queued"
)

// SyncMetrics holds the walk-core collectors.
type SyncMetrics struct {
	syncPasses         prometheus.Counter
	walksSynced        prometheus.Counter
	walksFailed        prometheus.Counter
	walksCompleted     *prometheus.CounterVec
	checkpointFailures prometheus.Counter
	pendingWalks       prometheus.Gauge
}

// NewSyncMetrics registers the collectors on reg.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	factory := promauto.With(reg)

	return &SyncMetrics{
		syncPasses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "walk_sync_passes_total",
			Help:      "Sync passes that ran over the pending queue.",
		}),
		walksSynced: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "walks_synced_total",
			Help:      "Queued walks confirmed by the remote store.",
		}),
		walksFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "walks_sync_failed_total",
			Help:      "Queued walk upload attempts that failed and were left for retry.",
		}),
		walksCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "walks_completed_total",
			Help:      "Finished walks handed to the sync engine, by the path they took.",
		}, []string{"path"}),
		checkpointFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_failures_total",
			Help:      "Periodic active-walk checkpoints that could not be written.",
		}),
		pendingWalks: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_walks",
			Help:      "Walks waiting for upload (pending or failed).",
		}),
	}
}

// SyncPass records one completed sync pass.
func (m *SyncMetrics) SyncPass(synced, failed int) {
	if m == nil {
		return
	}
	m.syncPasses.Inc()
	m.walksSynced.Add(float64(synced))
	m.walksFailed.Add(float64(failed))
}

// WalkCompleted records a finished walk and whether it went straight to the
// remote store or into the queue.
func (m *SyncMetrics) WalkCompleted(path string) {
	if m == nil {
		return
	}
	m.walksCompleted.WithLabelValues(path).Inc()
}

// CheckpointFailed records a checkpoint write failure.
func (m *SyncMetrics) CheckpointFailed() {
	if m == nil {
		return
	}
	m.checkpointFailures.Inc()
}

// SetPending publishes the current pending badge count.
func (m *SyncMetrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.pendingWalks.Set(float64(n))
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
