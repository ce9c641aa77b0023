package core

import (
	"expvar"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsRecorder receives session and service operation outcomes.
type MetricsRecorder interface {
	Observe(operation string, success bool, duration time.Duration)
	ObserveLiveRows(rows int)
}

type noopMetrics struct{}

func (noopMetrics) Observe(string, bool, time.Duration) {}
func (noopMetrics) ObserveLiveRows(int)                 {}

// PrometheusMetricsRecorder exports operation counters, durations, and live
// set sizes to a Prometheus registry.
type PrometheusMetricsRecorder struct {
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
	liveRows   prometheus.Histogram
}

// NewPrometheusMetricsRecorder registers the tapeview collectors on reg.
// Registering twice on the same registry panics.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) *PrometheusMetricsRecorder {
	factory := promauto.With(reg)
	return &PrometheusMetricsRecorder{
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tapeview_operations_total",
			Help: "Session operations by outcome",
		}, []string{"operation", "status"}),
		durations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tapeview_operation_duration_seconds",
			Help:    "Duration of session operations including recompute and publish",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.25, 1},
		}, []string{"operation"}),
		liveRows: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "tapeview_live_set_rows",
			Help:    "Rows in each published live set",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
	}
}

// Observe implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) Observe(operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	r.operations.WithLabelValues(operation, statusLabel(success)).Inc()
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveLiveRows implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) ObserveLiveRows(rows int) {
	r.liveRows.Observe(float64(rows))
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

var expvarSeq uint64

// ExpvarMetricsRecorder publishes aggregate timing and result counters via
// expvar for deployments without a Prometheus scraper. Durations are totals
// in milliseconds per operation.
type ExpvarMetricsRecorder struct {
	name         string
	mu           sync.Mutex
	durations    map[string]float64
	results      map[string]map[string]int64
	lastLiveRows int
}

// ExpvarMetricsSnapshot captures a read-only view of the recorded metrics.
type ExpvarMetricsSnapshot struct {
	DurationsMS  map[string]float64          `json:"durations_ms_total"`
	Results      map[string]map[string]int64 `json:"results_total"`
	LastLiveRows int                         `json:"last_live_rows"`
	RecordedAt   time.Time                   `json:"recorded_at"`
}

// NewExpvarMetricsRecorder constructs an expvar-backed recorder and publishes it
// under the supplied name. When name is empty, a unique identifier is generated.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		id := atomic.AddUint64(&expvarSeq, 1)
		name = fmt.Sprintf("tapeview_metrics_%d", id)
	}
	rec := &ExpvarMetricsRecorder{
		name:      name,
		durations: make(map[string]float64),
		results:   make(map[string]map[string]int64),
	}
	expvar.Publish(name, expvar.Func(func() any {
		return rec.Snapshot()
	}))
	return rec
}

// Name returns the expvar export name associated with the recorder.
func (r *ExpvarMetricsRecorder) Name() string {
	return r.name
}

// Snapshot returns an immutable copy of the aggregated metrics.
func (r *ExpvarMetricsRecorder) Snapshot() ExpvarMetricsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	durations := make(map[string]float64, len(r.durations))
	for op, total := range r.durations {
		durations[op] = total
	}
	results := make(map[string]map[string]int64, len(r.results))
	for op, statusCounts := range r.results {
		cpy := make(map[string]int64, len(statusCounts))
		for status, count := range statusCounts {
			cpy[status] = count
		}
		results[op] = cpy
	}
	return ExpvarMetricsSnapshot{
		DurationsMS:  durations,
		Results:      results,
		LastLiveRows: r.lastLiveRows,
		RecordedAt:   time.Now().UTC(),
	}
}

// Observe implements MetricsRecorder.
func (r *ExpvarMetricsRecorder) Observe(operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	ms := float64(duration) / float64(time.Millisecond)
	status := statusLabel(success)

	r.mu.Lock()
	r.durations[operation] += ms
	if _, ok := r.results[operation]; !ok {
		r.results[operation] = make(map[string]int64, 2)
	}
	r.results[operation][status]++
	r.mu.Unlock()
}

// ObserveLiveRows implements MetricsRecorder.
func (r *ExpvarMetricsRecorder) ObserveLiveRows(rows int) {
	r.mu.Lock()
	r.lastLiveRows = rows
	r.mu.Unlock()
}
