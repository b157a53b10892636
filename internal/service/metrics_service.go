package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the API and
// the lifecycle sweep.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	sweepRuns         prometheus.Counter
	sweepDuration     prometheus.Observer
	classesCompleted  prometheus.Counter
	bookingsAttended  prometheus.Counter
	bookingsDeferred  prometheus.Counter
	sweepUnitFailures prometheus.Counter

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "availability_cache_latency_seconds",
		Help:    "Latency for availability cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "availability_cache_hit_ratio",
		Help: "Ratio of availability cache hits to total lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "availability_cache_hits_total",
		Help: "Total availability cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "availability_cache_misses_total",
		Help: "Total availability cache misses",
	})

	sweepRuns := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lifecycle_sweep_runs_total",
		Help: "Total lifecycle sweep executions",
	})

	sweepDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "lifecycle_sweep_duration_seconds",
		Help:    "Duration of full lifecycle sweep passes",
		Buckets: prometheus.DefBuckets,
	})

	classesCompleted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lifecycle_classes_completed_total",
		Help: "Classes transitioned to completed by the sweep",
	})

	bookingsAttended := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lifecycle_bookings_attended_total",
		Help: "Bookings transitioned to attended by the sweep",
	})

	bookingsDeferred := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lifecycle_bookings_deferred_total",
		Help: "Bookings left scheduled because the observer clock had not caught up",
	})

	sweepUnitFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lifecycle_sweep_unit_failures_total",
		Help: "Sweep units that rolled back and were skipped",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		requestDuration, requestTotal,
		cacheLatency, cacheHitRatio, cacheHits, cacheMisses,
		sweepRuns, sweepDuration, classesCompleted, bookingsAttended, bookingsDeferred, sweepUnitFailures,
		goroutines,
	)

	return &MetricsService{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
		cacheLatency:      cacheLatency,
		cacheHitRatio:     cacheHitRatio,
		cacheHits:         cacheHits,
		cacheMisses:       cacheMisses,
		sweepRuns:         sweepRuns,
		sweepDuration:     sweepDuration,
		classesCompleted:  classesCompleted,
		bookingsAttended:  bookingsAttended,
		bookingsDeferred:  bookingsDeferred,
		sweepUnitFailures: sweepUnitFailures,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a cache hit or miss and updates the ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveSweep records the outcome of one sweep pass.
func (m *MetricsService) ObserveSweep(report *SweepReport, duration time.Duration) {
	if m == nil || report == nil {
		return
	}
	m.sweepRuns.Inc()
	m.sweepDuration.Observe(duration.Seconds())
	m.classesCompleted.Add(float64(report.ClassesCompleted))
	m.bookingsAttended.Add(float64(report.BookingsAttended))
	m.bookingsDeferred.Add(float64(report.BookingsDeferred))
	m.sweepUnitFailures.Add(float64(report.UnitFailures))
}
