// Package metrics exposes Prometheus collectors for the crawler and search service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlerPagesTotal             *prometheus.CounterVec
	crawlerButtonsTotal           prometheus.Counter
	crawlerEmbeddingsTotal        *prometheus.CounterVec
	crawlerActiveWorkers          prometheus.Gauge
	crawlerFrontierDepth          prometheus.Gauge
	crawlerRateLimitDelaysSeconds *prometheus.HistogramVec
	searchRequestsTotal           *prometheus.CounterVec
	searchDurationSeconds         prometheus.Histogram
	httpRequestsTotal             *prometheus.CounterVec
	httpRequestDurationSeconds    *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indieseas_pages_total",
				Help: "Total number of pages processed, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		crawlerButtonsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "indieseas_buttons_total",
				Help: "Total number of 88x31 buttons accepted by the classifier.",
			},
		)

		crawlerEmbeddingsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indieseas_embeddings_total",
				Help: "Total number of embedding records written, labeled by field type.",
			},
			[]string{"type"},
		)

		crawlerActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "indieseas_active_workers",
				Help: "Number of workers currently processing a URL.",
			},
		)

		crawlerFrontierDepth = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "indieseas_frontier_depth",
				Help: "Number of URLs currently queued in the frontier.",
			},
		)

		crawlerRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "indieseas_rate_limit_delays_seconds",
				Help:    "Histogram of per-domain politeness wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		searchRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indieseas_search_requests_total",
				Help: "Total number of search requests, labeled by result.",
			},
			[]string{"result"},
		)

		searchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "indieseas_search_duration_seconds",
				Help:    "Histogram of end-to-end search latencies.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indieseas_http_requests_total",
				Help: "Total number of HTTP requests served, labeled by method and status.",
			},
			[]string{"method", "status"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "indieseas_http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies by route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage increments the page counter for the given crawl outcome.
func ObservePage(site, outcome string) {
	crawlerPagesTotal.WithLabelValues(SanitizeSite(site), outcome).Inc()
}

// ObserveButton increments the accepted-button counter.
func ObserveButton() {
	crawlerButtonsTotal.Inc()
}

// ObserveEmbedding increments the embedding counter for the given field type.
func ObserveEmbedding(fieldType string) {
	// Chunk tags carry an index suffix; collapse them to one label value.
	if strings.HasPrefix(fieldType, "raw_text_chunk_") {
		fieldType = "raw_text_chunk"
	}
	crawlerEmbeddingsTotal.WithLabelValues(fieldType).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	crawlerActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	crawlerActiveWorkers.Dec()
}

// SetFrontierDepth records the current frontier queue length.
func SetFrontierDepth(n int) {
	crawlerFrontierDepth.Set(float64(n))
}

// ObserveRateLimitDelay records the duration of a politeness wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	crawlerRateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveSearch records one search request and its latency.
func ObserveSearch(result string, duration time.Duration) {
	searchRequestsTotal.WithLabelValues(result).Inc()
	searchDurationSeconds.Observe(duration.Seconds())
}

// ObserveHTTPRequest records one served HTTP request.
func ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
