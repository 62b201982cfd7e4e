package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dermafusion"

type HTTPServerMetrics struct {
	registry *prometheus.Registry
	service  string

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	diagnosisRunsTotal   *prometheus.CounterVec
	diagnosisDuration    *prometheus.HistogramVec
	diagnosisLabels      *prometheus.HistogramVec
	rateLimitedTotal     prometheus.Counter
	backendFailuresTotal *prometheus.CounterVec
	breakerTransitions   *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80},
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	diagnosisRunsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "diagnosis",
			Name:      "runs_total",
			Help:      "Total diagnosis runs by operation, input mode and status.",
		},
		[]string{"service", "operation", "mode", "status"},
	)
	diagnosisDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "diagnosis",
			Name:      "duration_seconds",
			Help:      "Diagnosis run duration in seconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		},
		[]string{"service", "operation"},
	)
	diagnosisLabels := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "diagnosis",
			Name:      "ranked_labels",
			Help:      "Distribution of ranked labels per successful diagnosis run.",
			Buckets:   []float64{0, 1, 2, 3, 4, 5, 8},
		},
		[]string{"service", "operation"},
	)
	rateLimitedTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Total requests rejected by the rate limiter.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	backendFailuresTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "backend_failures_total",
			Help:      "Total failed generative backend attempts before fallback.",
		},
		[]string{"service", "provider", "model"},
	)
	breakerTransitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "breaker_transitions_total",
			Help:      "Total circuit breaker state transitions by target state.",
		},
		[]string{"service", "operation", "to"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		diagnosisRunsTotal,
		diagnosisDuration,
		diagnosisLabels,
		rateLimitedTotal,
		backendFailuresTotal,
		breakerTransitions,
	)

	return &HTTPServerMetrics{
		registry:             registry,
		service:              service,
		requestTotal:         requestTotal,
		requestDuration:      requestDuration,
		requestInFlight:      requestInFlight,
		diagnosisRunsTotal:   diagnosisRunsTotal,
		diagnosisDuration:    diagnosisDuration,
		diagnosisLabels:      diagnosisLabels,
		rateLimitedTotal:     rateLimitedTotal,
		backendFailuresTotal: backendFailuresTotal,
		breakerTransitions:   breakerTransitions,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := r.URL.Path
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			m.service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(m.service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// RecordDiagnosis counts one diagnosis run. labels is ignored on failure.
func (m *HTTPServerMetrics) RecordDiagnosis(operation, mode string, labels int, duration time.Duration, err error) {
	if mode == "" {
		mode = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.diagnosisRunsTotal.WithLabelValues(m.service, operation, mode, status).Inc()
	m.diagnosisDuration.WithLabelValues(m.service, operation).Observe(duration.Seconds())
	if err == nil {
		m.diagnosisLabels.WithLabelValues(m.service, operation).Observe(float64(labels))
	}
}

func (m *HTTPServerMetrics) RecordRateLimited() {
	m.rateLimitedTotal.Inc()
}

func (m *HTTPServerMetrics) RecordBackendFailure(provider, model string) {
	if model == "" {
		model = "unknown"
	}
	m.backendFailuresTotal.WithLabelValues(m.service, provider, model).Inc()
}

func (m *HTTPServerMetrics) RecordBreakerTransition(operation, _, to string) {
	m.breakerTransitions.WithLabelValues(m.service, operation, to).Inc()
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
