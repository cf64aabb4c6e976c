package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	matchPreviewsTotal   *prometheus.CounterVec
	matchClassifications *prometheus.CounterVec
	queueActionsTotal    *prometheus.CounterVec
	limitRejectionsTotal *prometheus.CounterVec
	batchesSubmitted     *prometheus.CounterVec
	batchFilesSubmitted  *prometheus.HistogramVec
	rateLimitedTotal     *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rbk",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rbk",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "rbk",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	matchPreviewsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rbk",
			Subsystem: "match",
			Name:      "previews_total",
			Help:      "Total filenames classified through the preview endpoint.",
		},
		[]string{"service"},
	)
	matchClassifications := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rbk",
			Subsystem: "match",
			Name:      "classifications_total",
			Help:      "Match classifications by tier.",
		},
		[]string{"service", "tier"},
	)
	queueActionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rbk",
			Subsystem: "queue",
			Name:      "actions_total",
			Help:      "Queue state transitions by action and result.",
		},
		[]string{"service", "action", "result"},
	)
	limitRejectionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rbk",
			Subsystem: "queue",
			Name:      "limit_rejections_total",
			Help:      "Pick attempts rejected by the per-staff concurrency limit.",
		},
		[]string{"service"},
	)
	batchesSubmitted := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rbk",
			Subsystem: "batch",
			Name:      "submitted_total",
			Help:      "Total report batches accepted for processing.",
		},
		[]string{"service"},
	)
	batchFilesSubmitted := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rbk",
			Subsystem: "batch",
			Name:      "submitted_files",
			Help:      "Distribution of files per accepted batch.",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100, 200},
		},
		[]string{"service"},
	)
	rateLimitedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rbk",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		matchPreviewsTotal,
		matchClassifications,
		queueActionsTotal,
		limitRejectionsTotal,
		batchesSubmitted,
		batchFilesSubmitted,
		rateLimitedTotal,
	)

	return &HTTPServerMetrics{
		registry:             registry,
		requestTotal:         requestTotal,
		requestDuration:      requestDuration,
		requestInFlight:      requestInFlight,
		matchPreviewsTotal:   matchPreviewsTotal,
		matchClassifications: matchClassifications,
		queueActionsTotal:    queueActionsTotal,
		limitRejectionsTotal: limitRejectionsTotal,
		batchesSubmitted:     batchesSubmitted,
		batchFilesSubmitted:  batchFilesSubmitted,
		rateLimitedTotal:     rateLimitedTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/documents/"):
		return "/v1/documents/{document_id}"
	case strings.HasPrefix(path, "/v1/batches/") && path != "/v1/batches/preview":
		return "/v1/batches/{batch_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordMatchPreview(service string, classified int) {
	if classified > 0 {
		m.matchPreviewsTotal.WithLabelValues(service).Add(float64(classified))
	}
}

func (m *HTTPServerMetrics) RecordMatchClassification(service, tier string) {
	if tier == "" {
		tier = "unknown"
	}
	m.matchClassifications.WithLabelValues(service, tier).Inc()
}

func (m *HTTPServerMetrics) RecordQueueAction(service, action string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.queueActionsTotal.WithLabelValues(service, action, result).Inc()
}

func (m *HTTPServerMetrics) RecordLimitRejection(service string) {
	m.limitRejectionsTotal.WithLabelValues(service).Inc()
}

func (m *HTTPServerMetrics) RecordBatchSubmitted(service string, fileCount int) {
	m.batchesSubmitted.WithLabelValues(service).Inc()
	m.batchFilesSubmitted.WithLabelValues(service).Observe(float64(fileCount))
}

func (m *HTTPServerMetrics) RecordRateLimited(service string) {
	m.rateLimitedTotal.WithLabelValues(service).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
