package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	heartbeatTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tillsync",
			Name:      "heartbeat_ticks_total",
			Help:      "Heartbeat polls by outcome.",
		},
		[]string{"outcome"},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tillsync",
			Name:      "queue_depth",
			Help:      "Pending items in the offline queue.",
		},
	)

	itemsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tillsync",
			Name:      "items_processed_total",
			Help:      "Drained queue items by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	itemsAbandoned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tillsync",
			Name:      "items_abandoned_total",
			Help:      "Queue items moved to the abandoned list.",
		},
	)

	tokenRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tillsync",
			Name:      "token_refreshes_total",
			Help:      "Token refresh attempts by outcome.",
		},
		[]string{"outcome"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(heartbeatTicks, queueDepth, itemsProcessed, itemsAbandoned, tokenRefreshes)
	})
}

// IncHeartbeat increments the heartbeat counter for an outcome label.
func IncHeartbeat(outcome string) {
	heartbeatTicks.WithLabelValues(outcome).Inc()
}

// SetQueueDepth records the current pending queue depth.
func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

// IncProcessed increments the processed counter for kind/outcome labels.
func IncProcessed(kind, outcome string) {
	itemsProcessed.WithLabelValues(kind, outcome).Inc()
}

// IncAbandoned increments the abandoned-items counter.
func IncAbandoned() {
	itemsAbandoned.Inc()
}

// IncTokenRefresh increments the refresh counter for an outcome label.
func IncTokenRefresh(outcome string) {
	tokenRefreshes.WithLabelValues(outcome).Inc()
}
