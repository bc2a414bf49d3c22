// Package metrics exposes Prometheus instrumentation for the resource
// cache.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the service registers.
type Metrics struct {
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	ResourceOps *prometheus.CounterVec
	OpErrors    *prometheus.CounterVec
	OpDuration  *prometheus.HistogramVec

	SyncTicks     prometheus.Counter
	SyncKeysTotal prometheus.Counter
	SyncErrors    prometheus.Counter
	SyncLastRun   prometheus.Gauge
	QueueDepth    prometheus.Gauge
}

// New registers and returns a Metrics instance against the default
// registry.
func New() *Metrics {
	return &Metrics{
		CacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rescache_cache_hits_total",
			Help: "Cache tier hits, by operation.",
		}, []string{"operation"}),
		CacheMisses: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rescache_cache_misses_total",
			Help: "Cache tier misses, by operation.",
		}, []string{"operation"}),
		ResourceOps: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rescache_resource_operations_total",
			Help: "Resource API calls, by operation.",
		}, []string{"operation"}),
		OpErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rescache_resource_operation_errors_total",
			Help: "Resource API call failures, by operation.",
		}, []string{"operation"}),
		OpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rescache_resource_operation_duration_seconds",
			Help:    "Resource API call latency, by operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		SyncTicks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rescache_sync_ticks_total",
			Help: "Background sync sweeps performed.",
		}),
		SyncKeysTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rescache_sync_keys_reconciled_total",
			Help: "Keys reconciled to blob storage by the background sweep.",
		}),
		SyncErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rescache_sync_errors_total",
			Help: "Errors encountered while reconciling a key.",
		}),
		SyncLastRun: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "rescache_sync_last_run_timestamp_seconds",
			Help: "Unix timestamp of the last completed sync sweep.",
		}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "rescache_sync_queue_depth",
			Help: "Approximate number of keys pending reconciliation, last observed.",
		}),
	}
}

// Handler returns the HTTP handler serving the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
