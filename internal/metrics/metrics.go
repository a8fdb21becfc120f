package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/iudanet/taskkeeper/internal/models"
)

const namespace = "taskkeeper"

var (
	once sync.Once

	syncRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "records_total",
			Help:      "Queued mutations processed by the sync engine, by outcome.",
		},
		[]string{"entity_type", "action", "outcome"},
	)

	syncDrainDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "drain_duration_seconds",
			Help:      "Duration of a full pass over the offline queue.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		},
	)

	queuePending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "pending_records",
			Help:      "Mutations waiting to reach the server.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		},
		[]string{"route", "code"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(syncRecords, syncDrainDuration, queuePending, httpRequests)
	})
}

// SyncRecorder feeds sync engine and queue events into the client metrics.
type SyncRecorder struct{}

// RecordOutcome counts a processed record.
func (SyncRecorder) RecordOutcome(entityType models.EntityType, action models.Action, outcome string) {
	syncRecords.WithLabelValues(string(entityType), string(action), outcome).Inc()
}

// ObserveDrain records the duration of a drain.
func (SyncRecorder) ObserveDrain(d time.Duration) {
	syncDrainDuration.Observe(d.Seconds())
}

// SetPending sets the queue depth gauge.
func (SyncRecorder) SetPending(n int) {
	queuePending.Set(float64(n))
}

// IncHTTP increments the request counter for a route pattern and status code.
func IncHTTP(route string, code int) {
	httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}
