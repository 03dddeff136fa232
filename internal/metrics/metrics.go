// Package metrics exposes Prometheus collectors for the scraper.
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
	scraperPagesTotal             *prometheus.CounterVec
	scraperBytesTotal             *prometheus.CounterVec
	scraperBlockedTotal           *prometheus.CounterVec
	scraperEmergencySleepSeconds  prometheus.Counter
	scraperDownloadsTotal         *prometheus.CounterVec
	scraperDownloadBytesTotal     prometheus.Counter
	scraperActiveDownloads        prometheus.Gauge
	scraperRateLimitDelaysSeconds *prometheus.HistogramVec
	httpRequestsTotal             *prometheus.CounterVec
	httpRequestDurationSeconds    *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scraperPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_pages_total",
				Help: "Total number of pages fetched, labeled by site and status code.",
			},
			[]string{"site", "code"},
		)

		scraperBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_bytes_total",
				Help: "Total number of page bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		scraperBlockedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_blocked_total",
				Help: "Total number of blocked attempts (non-200 or transport error), labeled by site and code.",
			},
			[]string{"site", "code"},
		)

		scraperEmergencySleepSeconds = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "scraper_emergency_sleep_seconds_total",
				Help: "Total seconds spent in emergency sleep after blocked attempts.",
			},
		)

		scraperDownloadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_downloads_total",
				Help: "Total number of replay downloads, labeled by outcome.",
			},
			[]string{"status"},
		)

		scraperDownloadBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "scraper_download_bytes_total",
				Help: "Total number of replay bytes written to disk.",
			},
		)

		scraperActiveDownloads = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scraper_active_downloads",
				Help: "Number of replay downloads currently streaming.",
			},
		)

		scraperRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scraper_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests served, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
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

// ObserveFetch counts one fetched page.
func ObserveFetch(site string, code int, bytesFetched int) {
	Init()
	sanitizedSite := SanitizeSite(site)
	scraperPagesTotal.WithLabelValues(sanitizedSite, strconv.Itoa(code)).Inc()
	if bytesFetched > 0 {
		scraperBytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
}

// ObserveBlocked counts a blocked attempt. A zero code means the request never
// produced a response.
func ObserveBlocked(site string, code int) {
	Init()
	label := "transport"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	scraperBlockedTotal.WithLabelValues(SanitizeSite(site), label).Inc()
}

// ObserveEmergencySleep adds d to the emergency sleep counter.
func ObserveEmergencySleep(d time.Duration) {
	Init()
	scraperEmergencySleepSeconds.Add(d.Seconds())
}

// ObserveDownload counts a finished replay download.
func ObserveDownload(status string, bytesWritten int64) {
	Init()
	scraperDownloadsTotal.WithLabelValues(status).Inc()
	if bytesWritten > 0 {
		scraperDownloadBytesTotal.Add(float64(bytesWritten))
	}
}

// IncActiveDownloads increments the active downloads gauge.
func IncActiveDownloads() {
	Init()
	scraperActiveDownloads.Inc()
}

// DecActiveDownloads decrements the active downloads gauge.
func DecActiveDownloads() {
	Init()
	scraperActiveDownloads.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	scraperRateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest records one request served by the metrics endpoint.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
