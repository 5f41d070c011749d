// prometheus.go - Prometheus metrics exporter
package server

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// PrometheusExporter renders the internal metrics in the Prometheus text
// format.
type PrometheusExporter struct {
	build BuildInfo
}

func NewPrometheusExporter(build BuildInfo) *PrometheusExporter {
	return &PrometheusExporter{build: build}
}

func writeMetric(b *strings.Builder, name, kind, help string, value any) {
	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
}

// Handler returns an HTTP handler for the /metrics endpoint
func (p *PrometheusExporter) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot := GetMetrics().Snapshot()

		var output strings.Builder

		output.WriteString("# HELP clip_info Application version info\n")
		output.WriteString("# TYPE clip_info gauge\n")
		fmt.Fprintf(&output, "clip_info{version=\"%s\",commit=\"%s\"} 1\n\n",
			prometheusLabel(p.build.Version), prometheusLabel(p.build.Commit))

		writeMetric(&output, "clip_requests_total", "counter", "Total number of HTTP requests", snapshot.RequestsTotal)
		writeMetric(&output, "clip_request_errors_4xx_total", "counter", "HTTP responses with a 4xx status", snapshot.RequestErrors4xx)
		writeMetric(&output, "clip_request_errors_5xx_total", "counter", "HTTP responses with a 5xx status", snapshot.RequestErrors5xx)
		writeMetric(&output, "clip_rate_limited_total", "counter", "Requests rejected by a rate limiter", snapshot.RateLimitedTotal)

		writeMetric(&output, "clip_uploads_total", "counter", "Committed shares", snapshot.UploadsTotal)
		writeMetric(&output, "clip_uploads_secure_total", "counter", "Committed PIN shares", snapshot.UploadsSecureTotal)
		writeMetric(&output, "clip_upload_bytes_total", "counter", "Attachment bytes uploaded", snapshot.UploadBytesTotal)
		writeMetric(&output, "clip_upload_errors_total", "counter", "Rejected or failed uploads", snapshot.UploadErrorsTotal)

		writeMetric(&output, "clip_retrievals_total", "counter", "PIN and latest lookups", snapshot.RetrievalsTotal)
		writeMetric(&output, "clip_retrieval_misses_total", "counter", "Lookups that found nothing live", snapshot.RetrievalMissesTotal)

		writeMetric(&output, "clip_downloads_total", "counter", "Attachment downloads", snapshot.DownloadsTotal)
		writeMetric(&output, "clip_download_bytes_total", "counter", "Attachment bytes served", snapshot.DownloadBytesTotal)

		writeMetric(&output, "clip_sweeps_total", "counter", "Manual cleanup runs", snapshot.SweepsTotal)
		writeMetric(&output, "clip_swept_items_total", "counter", "Items removed by manual cleanup", snapshot.SweptItemsTotal)

		output.WriteString("# HELP clip_request_duration_ms Request duration percentiles by route\n")
		output.WriteString("# TYPE clip_request_duration_ms summary\n")
		for _, route := range recordedRoutes() {
			p50, p95, p99 := GetRequestDurationPercentiles(route)
			label := prometheusLabel(route)
			fmt.Fprintf(&output, "clip_request_duration_ms{route=\"%s\",quantile=\"0.5\"} %.3f\n", label, p50)
			fmt.Fprintf(&output, "clip_request_duration_ms{route=\"%s\",quantile=\"0.95\"} %.3f\n", label, p95)
			fmt.Fprintf(&output, "clip_request_duration_ms{route=\"%s\",quantile=\"0.99\"} %.3f\n", label, p99)
		}
		output.WriteString("\n")

		writeMetric(&output, "clip_uptime_seconds", "counter", "Application uptime in seconds",
			fmt.Sprintf("%.0f", time.Since(serverStartTime).Seconds()))

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(output.String()))
	}
}

// prometheusLabel escapes quotes and backslashes in a label value.
func prometheusLabel(value string) string {
	value = strings.ReplaceAll(value, "\\", "\\\\")
	value = strings.ReplaceAll(value, "\"", "\\\"")
	return value
}

// MetricsSummary keeps recent request durations per route
type MetricsSummary struct {
	mu               sync.RWMutex
	requestDurations map[string][]float64 // route -> durations in ms
}

var (
	metricsSummary = &MetricsSummary{
		requestDurations: make(map[string][]float64),
	}
	serverStartTime = time.Now()
)

// RecordRequestDuration records the duration of a request for histogram metrics
func RecordRequestDuration(route string, durationMs float64) {
	metricsSummary.mu.Lock()
	defer metricsSummary.mu.Unlock()

	durations := append(metricsSummary.requestDurations[route], durationMs)

	// Keep only last 1000 samples per route
	if len(durations) > 1000 {
		durations = durations[len(durations)-1000:]
	}

	metricsSummary.requestDurations[route] = durations
}

func recordedRoutes() []string {
	metricsSummary.mu.RLock()
	defer metricsSummary.mu.RUnlock()

	routes := make([]string, 0, len(metricsSummary.requestDurations))
	for r := range metricsSummary.requestDurations {
		routes = append(routes, r)
	}
	sort.Strings(routes)
	return routes
}

// GetRequestDurationPercentiles returns percentile data for request durations
func GetRequestDurationPercentiles(route string) (p50, p95, p99 float64) {
	metricsSummary.mu.RLock()
	defer metricsSummary.mu.RUnlock()

	durations := metricsSummary.requestDurations[route]
	if len(durations) == 0 {
		return 0, 0, 0
	}

	sorted := make([]float64, len(durations))
	copy(sorted, durations)
	sort.Float64s(sorted)

	p50 = sorted[len(sorted)*50/100]
	p95 = sorted[len(sorted)*95/100]
	p99 = sorted[len(sorted)*99/100]

	return
}
