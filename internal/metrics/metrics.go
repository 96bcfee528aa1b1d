// Package metrics exposes Prometheus collectors for the asset pipeline and the
// serve wrapper.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Asset outcome labels.
const (
	StatusFetched = "fetched"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

var (
	assetsTotal                *prometheus.CounterVec
	assetBytesTotal            prometheus.Counter
	downloadDurationSeconds    *prometheus.HistogramVec
	compressionSavedBytesTotal prometheus.Counter
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	httpSlowRequestsTotal      prometheus.Counter

	once sync.Once
)

// Init registers the collectors. It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		assetsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitepreview_assets_total",
				Help: "Preview assets processed, labeled by status.",
			},
			[]string{"status"},
		)

		assetBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sitepreview_asset_bytes_total",
				Help: "Bytes downloaded for preview assets.",
			},
		)

		downloadDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sitepreview_download_duration_seconds",
				Help:    "Histogram of screenshot download latencies, labeled by result.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"result"},
		)

		compressionSavedBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sitepreview_compression_saved_bytes_total",
				Help: "Bytes removed by in-place image compression.",
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		httpSlowRequestsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "http_slow_requests_total",
				Help: "Requests that exceeded the slow request threshold.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAsset counts one pipeline outcome.
func ObserveAsset(status string, bytesFetched int64) {
	assetsTotal.WithLabelValues(status).Inc()
	if bytesFetched > 0 {
		assetBytesTotal.Add(float64(bytesFetched))
	}
}

// ObserveDownload records how long a download attempt took.
func ObserveDownload(success bool, duration time.Duration) {
	result := "success"
	if !success {
		result = "error"
	}
	downloadDurationSeconds.WithLabelValues(result).Observe(duration.Seconds())
}

// ObserveCompression records bytes saved by compression.
func ObserveCompression(saved int64) {
	if saved > 0 {
		compressionSavedBytesTotal.Add(float64(saved))
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveSlowRequest counts a request over the slow threshold.
func ObserveSlowRequest() {
	httpSlowRequestsTotal.Inc()
}

// WriteTextfile dumps the default registry in the node_exporter textfile format.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
