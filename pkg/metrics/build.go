package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CacheMetrics records rebuild and query-side measurements.
type CacheMetrics struct {
	buildDuration *prometheus.HistogramVec
	buildSuccess  *prometheus.CounterVec
	buildFailure  *prometheus.CounterVec
	rowsLoaded    *prometheus.CounterVec
	queryDuration prometheus.Histogram
}

// NewCacheMetrics registers the cache metrics on the provided registerer.
func NewCacheMetrics(reg prometheus.Registerer) *CacheMetrics {
	if reg == nil {
		return &CacheMetrics{}
	}
	buildDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_cache_build_duration_seconds",
		Help:    "Duration of cache rebuild phases in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"phase"})
	buildSuccess := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_cache_build_success",
		Help: "Successful cache builds.",
	}, []string{"kind"})
	buildFailure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_cache_build_failure",
		Help: "Failed cache builds.",
	}, []string{"kind"})
	rowsLoaded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_cache_rows_loaded_total",
		Help: "Rows bulk-loaded into cache tables.",
	}, []string{"table"})
	queryDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "catalog_cache_query_duration_seconds",
		Help:    "Duration of cache queries in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(buildDuration, buildSuccess, buildFailure, rowsLoaded, queryDuration)
	return &CacheMetrics{
		buildDuration: buildDuration,
		buildSuccess:  buildSuccess,
		buildFailure:  buildFailure,
		rowsLoaded:    rowsLoaded,
		queryDuration: queryDuration,
	}
}

// ObserveBuildPhase records the duration of one rebuild phase.
func (m *CacheMetrics) ObserveBuildPhase(phase string, duration time.Duration) {
	if m == nil || m.buildDuration == nil {
		return
	}
	m.buildDuration.WithLabelValues(normalizeLabel(phase)).Observe(duration.Seconds())
}

// IncBuildSuccess increments the success counter for the build kind.
func (m *CacheMetrics) IncBuildSuccess(kind string) {
	if m == nil || m.buildSuccess == nil {
		return
	}
	m.buildSuccess.WithLabelValues(normalizeLabel(kind)).Inc()
}

// IncBuildFailure increments the failure counter for the build kind.
func (m *CacheMetrics) IncBuildFailure(kind string) {
	if m == nil || m.buildFailure == nil {
		return
	}
	m.buildFailure.WithLabelValues(normalizeLabel(kind)).Inc()
}

// AddRowsLoaded counts rows flushed into the named cache table.
func (m *CacheMetrics) AddRowsLoaded(table string, count int) {
	if m == nil || m.rowsLoaded == nil || count <= 0 {
		return
	}
	m.rowsLoaded.WithLabelValues(normalizeLabel(table)).Add(float64(count))
}

// ObserveQuery records the duration of one cache query.
func (m *CacheMetrics) ObserveQuery(duration time.Duration) {
	if m == nil || m.queryDuration == nil {
		return
	}
	m.queryDuration.Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(strings.ToLower(value))
	if trimmed == "" {
		return "unknown"
	}
	return strings.ReplaceAll(trimmed, " ", "_")
}
