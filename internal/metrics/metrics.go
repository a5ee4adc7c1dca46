// Package metrics exposes Prometheus collectors for the resolution service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Tier outcomes.
const (
	OutcomeHit     = "hit"
	OutcomeMiss    = "miss"
	OutcomeFailure = "failure"
	OutcomeOK      = "ok"
)

var (
	tierLookupsTotal           *prometheus.CounterVec
	tierLookupDurationSeconds  *prometheus.HistogramVec
	resolutionsTotal           *prometheus.CounterVec
	writeBacksTotal            *prometheus.CounterVec
	colorResolutionsTotal      *prometheus.CounterVec
	colorBackfillsTotal        *prometheus.CounterVec
	tasksInFlight              prometheus.Gauge
	taskPanicsTotal            prometheus.Counter
	tasksRejectedTotal         prometheus.Counter
	bookmarksImported          prometheus.Gauge
	historyPrunedTotal         prometheus.Counter
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		tierLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitemeta_tier_lookups_total",
				Help: "Store lookups performed by the resolution pipeline, labeled by tier and outcome.",
			},
			[]string{"tier", "outcome"},
		)

		tierLookupDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sitemeta_tier_lookup_duration_seconds",
				Help:    "Histogram of store lookup latencies, labeled by tier.",
				Buckets: []float64{0.001, 0.005, 0.025, 0.1, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"tier"},
		)

		resolutionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitemeta_resolutions_total",
				Help: "Completed resolutions, labeled by the tier that answered and the mode.",
			},
			[]string{"source", "mode"},
		)

		writeBacksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitemeta_writebacks_total",
				Help: "Asynchronous store writes, labeled by operation and outcome.",
			},
			[]string{"op", "outcome"},
		)

		colorResolutionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitemeta_color_resolutions_total",
				Help: "Color resolutions, labeled by the step that produced the color.",
			},
			[]string{"source"},
		)

		colorBackfillsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitemeta_color_backfills_total",
				Help: "Background color backfills, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		tasksInFlight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sitemeta_background_tasks_in_flight",
				Help: "Number of supervised background tasks currently running or queued.",
			},
		)

		taskPanicsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sitemeta_background_task_panics_total",
				Help: "Total panics recovered from background tasks.",
			},
		)

		tasksRejectedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sitemeta_background_tasks_rejected_total",
				Help: "Total background tasks refused because the supervisor was shutting down.",
			},
		)

		bookmarksImported = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sitemeta_bookmarks_imported",
				Help: "Number of bookmarks marked during the last import.",
			},
		)

		historyPrunedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sitemeta_history_pruned_total",
				Help: "Total history rows removed by the pruner.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveTierLookup records one store lookup.
func ObserveTierLookup(tier, outcome string, duration time.Duration) {
	Init()
	tierLookupsTotal.WithLabelValues(tier, outcome).Inc()
	tierLookupDurationSeconds.WithLabelValues(tier).Observe(duration.Seconds())
}

// ObserveResolution records which tier answered a resolution.
func ObserveResolution(source, mode string) {
	Init()
	resolutionsTotal.WithLabelValues(source, mode).Inc()
}

// ObserveWriteBack records the outcome of an asynchronous store write.
func ObserveWriteBack(op string, err error) {
	Init()
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeFailure
	}
	writeBacksTotal.WithLabelValues(op, outcome).Inc()
}

// ObserveColorResolution records the step that produced a color.
func ObserveColorResolution(source string) {
	Init()
	colorResolutionsTotal.WithLabelValues(source).Inc()
}

// ObserveColorBackfill records a background color backfill.
func ObserveColorBackfill(outcome string) {
	Init()
	colorBackfillsTotal.WithLabelValues(outcome).Inc()
}

// IncTasksInFlight increments the background task gauge.
func IncTasksInFlight() {
	Init()
	tasksInFlight.Inc()
}

// DecTasksInFlight decrements the background task gauge.
func DecTasksInFlight() {
	Init()
	tasksInFlight.Dec()
}

// ObserveTaskPanic counts a recovered panic.
func ObserveTaskPanic() {
	Init()
	taskPanicsTotal.Inc()
}

// ObserveTaskRejected counts a task refused during shutdown.
func ObserveTaskRejected() {
	Init()
	tasksRejectedTotal.Inc()
}

// SetBookmarksImported publishes the size of the last bookmark import.
func SetBookmarksImported(n int) {
	Init()
	bookmarksImported.Set(float64(n))
}

// ObserveHistoryPruned adds n pruned rows.
func ObserveHistoryPruned(n int64) {
	Init()
	if n > 0 {
		historyPrunedTotal.Add(float64(n))
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
