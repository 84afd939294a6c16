package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP traffic, the cache
// and the ledger's own integrity signals (fallback seats, storage degradation).
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	registrations   *prometheus.CounterVec
	seatIssuance    *prometheus.CounterVec
	referralChecks  *prometheus.CounterVec
	storageFailures *prometheus.CounterVec
	integrity       *prometheus.CounterVec
	autosaves       *prometheus.CounterVec
	exportJobs      *prometheus.CounterVec
	ledgerSize      prometheus.Gauge

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers core Prometheus collectors.
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
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_latency_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	registrations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registrations_total",
		Help: "Completed registrations by exam center",
	}, []string{"center"})

	seatIssuance := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "seat_issuance_total",
		Help: "Seat numbers issued, by kind (issued or fallback)",
	}, []string{"kind"})

	referralChecks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "referral_validations_total",
		Help: "Referral code validations by outcome",
	}, []string{"status"})

	storageFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_storage_failures_total",
		Help: "Persistence failures that degraded to in-memory state",
	}, []string{"operation"})

	integrity := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_integrity_failures_total",
		Help: "Integrity violations detected by the ledger, by kind",
	}, []string{"kind"})

	autosaves := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "draft_autosaves_total",
		Help: "Draft autosave attempts by result",
	}, []string{"result"})

	exportJobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "export_jobs_total",
		Help: "Ledger export jobs by format and final status",
	}, []string{"format", "status"})

	ledgerSize := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_records",
		Help: "Number of records currently held in the ledger",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		registrations, seatIssuance, referralChecks, storageFailures, integrity, autosaves, exportJobs, ledgerSize, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		registrations:   registrations,
		seatIssuance:    seatIssuance,
		referralChecks:  referralChecks,
		storageFailures: storageFailures,
		integrity:       integrity,
		autosaves:       autosaves,
		exportJobs:      exportJobs,
		ledgerSize:      ledgerSize,
	}
}

// Registry exposes the underlying registry (tests gather from it).
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
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
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
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

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordRegistration counts a completed registration.
func (m *MetricsService) RecordRegistration(center string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(center).Inc()
}

// RecordSeatIssuance counts issued and fallback seat numbers.
func (m *MetricsService) RecordSeatIssuance(kind string) {
	if m == nil {
		return
	}
	m.seatIssuance.WithLabelValues(kind).Inc()
}

// RecordReferralValidation counts referral validation outcomes.
func (m *MetricsService) RecordReferralValidation(status string) {
	if m == nil {
		return
	}
	m.referralChecks.WithLabelValues(status).Inc()
}

// RecordStorageFailure counts a persistence call that degraded to memory.
func (m *MetricsService) RecordStorageFailure(operation string) {
	if m == nil {
		return
	}
	m.storageFailures.WithLabelValues(operation).Inc()
}

// RecordIntegrityFailure counts a detected integrity violation such as a seat collision.
func (m *MetricsService) RecordIntegrityFailure(kind string) {
	if m == nil {
		return
	}
	m.integrity.WithLabelValues(kind).Inc()
}

// RecordAutosave counts autosave outcomes (saved, skipped, failed).
func (m *MetricsService) RecordAutosave(result string) {
	if m == nil {
		return
	}
	m.autosaves.WithLabelValues(result).Inc()
}

// RecordExportJob counts finished export jobs.
func (m *MetricsService) RecordExportJob(format, status string) {
	if m == nil {
		return
	}
	m.exportJobs.WithLabelValues(format, status).Inc()
}

// SetLedgerSize publishes the current number of records.
func (m *MetricsService) SetLedgerSize(n int) {
	if m == nil {
		return
	}
	m.ledgerSize.Set(float64(n))
}
