package observability

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/helixir/citation-discovery-service/internal/domain"
)

// Metrics contains all Prometheus metrics for the citation discovery service.
// Metrics are organized by subsystem: resolutions, discoveries, provider
// calls, provider HTTP requests, cache and the HTTP API.
//
// Metrics implements resolver.Recorder, cache.Recorder and
// papersources.Observer.
type Metrics struct {
	// ResolutionsTotal counts reference resolutions, labeled by mode
	// ("blended" or "single").
	ResolutionsTotal *prometheus.CounterVec

	// ResolutionDuration observes end-to-end resolution time in seconds.
	ResolutionDuration *prometheus.HistogramVec

	// CandidatesPerResolution observes how many candidates a resolution returned.
	CandidatesPerResolution *prometheus.HistogramVec

	// DiscoveriesTotal counts topic discoveries, labeled by provider.
	DiscoveriesTotal *prometheus.CounterVec

	// DiscoveryDuration observes topic discovery time in seconds.
	DiscoveryDuration *prometheus.HistogramVec

	// CandidatesPerDiscovery observes how many candidates a discovery returned.
	CandidatesPerDiscovery *prometheus.HistogramVec

	// ProviderCallsTotal counts provider queries, labeled by source and tier.
	ProviderCallsTotal *prometheus.CounterVec

	// ProviderCallsFailed counts provider queries that failed and were
	// treated as empty, labeled by source, tier and error type.
	ProviderCallsFailed *prometheus.CounterVec

	// ProviderCallDuration observes provider query time in seconds, cache
	// hits included.
	ProviderCallDuration *prometheus.HistogramVec

	// SourceRequestsTotal counts HTTP attempts against provider APIs, labeled
	// by source and status code ("error" for transport failures).
	SourceRequestsTotal *prometheus.CounterVec

	// SourceRequestDuration observes provider HTTP attempt time in seconds.
	SourceRequestDuration *prometheus.HistogramVec

	// SourceRateLimited counts 429 responses, labeled by source.
	SourceRateLimited *prometheus.CounterVec

	// CacheHits counts cache hits, labeled by query kind.
	CacheHits *prometheus.CounterVec

	// CacheMisses counts cache misses, labeled by query kind.
	CacheMisses *prometheus.CounterVec

	// HTTPRequestsTotal counts API requests, labeled by route, method and status.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPRequestDuration observes API request time in seconds.
	HTTPRequestDuration *prometheus.HistogramVec

	// CacheEntries reports the in-memory cache size. Nil until
	// ObserveCacheSize is called.
	CacheEntries prometheus.GaugeFunc

	factory   promauto.Factory
	namespace string
}

// NewMetrics creates a new Metrics instance registered with the default
// Prometheus registry. The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, namespace)
}

// NewMetricsWith creates a Metrics instance registered with reg. A nil reg
// leaves the metrics unregistered.
func NewMetricsWith(reg prometheus.Registerer, namespace string) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		factory:   f,
		namespace: namespace,

		// Resolutions
		ResolutionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Total number of reference resolutions by mode",
		}, []string{"mode"}),
		ResolutionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resolution_duration_seconds",
			Help:      "Duration of reference resolutions in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"mode"}),
		CandidatesPerResolution: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "candidates_per_resolution",
			Help:      "Number of candidates returned per resolution",
			Buckets:   []float64{0, 1, 2, 3, 4, 5},
		}, []string{"mode"}),

		// Discoveries
		DiscoveriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discoveries_total",
			Help:      "Total number of topic discoveries by source",
		}, []string{"source"}),
		DiscoveryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "discovery_duration_seconds",
			Help:      "Duration of topic discoveries in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"source"}),
		CandidatesPerDiscovery: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "candidates_per_discovery",
			Help:      "Number of candidates returned per discovery",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 200},
		}, []string{"source"}),

		// Provider calls
		ProviderCallsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "Total number of provider queries by source and tier",
		}, []string{"source", "tier"}),
		ProviderCallsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_failed_total",
			Help:      "Total number of provider queries that failed",
		}, []string{"source", "tier", "error_type"}),
		ProviderCallDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_call_duration_seconds",
			Help:      "Duration of provider queries in seconds",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source", "tier"}),

		// Sources
		SourceRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_total",
			Help:      "Total number of HTTP requests to paper sources",
		}, []string{"source", "status"}),
		SourceRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_request_duration_seconds",
			Help:      "Duration of HTTP requests to paper sources in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"source"}),
		SourceRateLimited: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_rate_limited_total",
			Help:      "Total number of rate limit responses from paper sources",
		}, []string{"source"}),

		// Cache
		CacheHits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of provider cache hits by query kind",
		}, []string{"kind"}),
		CacheMisses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of provider cache misses by query kind",
		}, []string{"kind"}),

		// HTTP API
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of API requests",
		}, []string{"route", "method", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of API requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
}

// RecordResolution records a finished reference resolution.
func (m *Metrics) RecordResolution(mode string, candidates int, d time.Duration) {
	m.ResolutionsTotal.WithLabelValues(mode).Inc()
	m.ResolutionDuration.WithLabelValues(mode).Observe(d.Seconds())
	m.CandidatesPerResolution.WithLabelValues(mode).Observe(float64(candidates))
}

// RecordDiscovery records a finished topic discovery.
func (m *Metrics) RecordDiscovery(source string, candidates int, d time.Duration) {
	m.DiscoveriesTotal.WithLabelValues(source).Inc()
	m.DiscoveryDuration.WithLabelValues(source).Observe(d.Seconds())
	m.CandidatesPerDiscovery.WithLabelValues(source).Observe(float64(candidates))
}

// RecordProviderCall records one provider query. A non-nil err counts as a
// failure classified by ErrorType.
func (m *Metrics) RecordProviderCall(source, tier string, err error, d time.Duration) {
	m.ProviderCallsTotal.WithLabelValues(source, tier).Inc()
	m.ProviderCallDuration.WithLabelValues(source, tier).Observe(d.Seconds())
	if err != nil {
		m.ProviderCallsFailed.WithLabelValues(source, tier, ErrorType(err)).Inc()
	}
}

// RecordSourceRequest records one HTTP attempt against a paper source.
func (m *Metrics) RecordSourceRequest(source string, statusCode int, d time.Duration) {
	status := "error"
	if statusCode > 0 {
		status = strconv.Itoa(statusCode)
	}
	m.SourceRequestsTotal.WithLabelValues(source, status).Inc()
	m.SourceRequestDuration.WithLabelValues(source).Observe(d.Seconds())
}

// RecordSourceRateLimited records a rate limit response from a source.
func (m *Metrics) RecordSourceRateLimited(source string) {
	m.SourceRateLimited.WithLabelValues(source).Inc()
}

// ObserveCacheSize exports size as the cache_entries gauge, sampled on every
// scrape.
func (m *Metrics) ObserveCacheSize(size func() int) {
	m.CacheEntries = m.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "cache_entries",
		Help:      "Number of provider responses held in the in-memory cache",
	}, func() float64 { return float64(size()) })
}

// RecordCacheHit records a cache hit.
func (m *Metrics) RecordCacheHit(kind string) {
	m.CacheHits.WithLabelValues(kind).Inc()
}

// RecordCacheMiss records a cache miss.
func (m *Metrics) RecordCacheMiss(kind string) {
	m.CacheMisses.WithLabelValues(kind).Inc()
}

// RecordHTTPRequest records a served API request.
func (m *Metrics) RecordHTTPRequest(route, method string, status int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

// ErrorType maps an error to a low-cardinality metric label.
func ErrorType(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, context.Canceled), errors.Is(err, domain.ErrCancelled):
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrParseFailure):
		return "parse"
	case errors.Is(err, domain.ErrUnsupportedQuery):
		return "unsupported"
	case errors.Is(err, domain.ErrProviderUnavailable):
		return "unavailable"
	}
	return "other"
}
