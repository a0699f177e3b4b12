package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	entriesQueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "finqueue",
			Name:      "entries_queued_total",
			Help:      "Queue entries accepted, by type.",
		},
		[]string{"type"},
	)

	entriesSynced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "finqueue",
			Name:      "entries_synced_total",
			Help:      "Queue entries delivered and removed, by type.",
		},
		[]string{"type"},
	)

	deliveryFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "finqueue",
			Name:      "delivery_failures_total",
			Help:      "Failed delivery attempts, by type.",
		},
		[]string{"type"},
	)

	deadLettered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "finqueue",
			Name:      "entries_dead_lettered_total",
			Help:      "Entries that exhausted their retries.",
		},
	)

	syncPasses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "finqueue",
			Name:      "sync_passes_total",
			Help:      "Completed sync passes.",
		},
	)

	syncPassDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "finqueue",
			Name:      "sync_pass_duration_seconds",
			Help:      "Time spent draining the queue per pass.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	pendingEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "finqueue",
			Name:      "pending_entries",
			Help:      "Entries currently awaiting delivery.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "finqueue",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			entriesQueued,
			entriesSynced,
			deliveryFailures,
			deadLettered,
			syncPasses,
			syncPassDuration,
			pendingEntries,
			httpRequests,
		)
	})
}

func IncQueued(entryType string)          { entriesQueued.WithLabelValues(entryType).Inc() }
func IncSynced(entryType string)          { entriesSynced.WithLabelValues(entryType).Inc() }
func IncDeliveryFailure(entryType string) { deliveryFailures.WithLabelValues(entryType).Inc() }
func IncDeadLettered()                    { deadLettered.Inc() }
func IncSyncPass()                        { syncPasses.Inc() }
func ObservePassDuration(seconds float64) { syncPassDuration.Observe(seconds) }
func SetPendingEntries(n int)             { pendingEntries.Set(float64(n)) }
func IncHTTP(endpoint string)             { httpRequests.WithLabelValues(endpoint).Inc() }
