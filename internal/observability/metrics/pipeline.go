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

	"github.com/civicdocs/policy-assistant/internal/core/domain"
)

// PipelineMetrics registers all server and pipeline series on a private
// registry and implements the pipeline observer contract.
type PipelineMetrics struct {
	registry *prometheus.Registry
	service  string

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	intentTotal            *prometheus.CounterVec
	retrievalRetriesTotal  prometheus.Counter
	retrievalFallbackTotal prometheus.Counter
	selectionSize          *prometheus.HistogramVec
	lowQualityTotal        prometheus.Counter
	askDuration            *prometheus.HistogramVec
}

func NewPipelineMetrics(service string) *PipelineMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pa",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pa",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pa",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	intentTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pa",
			Subsystem: "pipeline",
			Name:      "intent_total",
			Help:      "Total classified questions by intent.",
		},
		[]string{"service", "intent"},
	)
	retrievalRetriesTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pa",
			Subsystem: "pipeline",
			Name:      "retrieval_retries_total",
			Help:      "Total retried hybrid vector queries.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	retrievalFallbackTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pa",
			Subsystem: "pipeline",
			Name:      "retrieval_fallback_total",
			Help:      "Total hybrid queries degraded to dense-only retrieval.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	selectionSize := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pa",
			Subsystem: "pipeline",
			Name:      "selection_size",
			Help:      "Distribution of reranked chunks per answered question.",
			Buckets:   []float64{0, 1, 2, 3, 5, 7, 10, 12},
		},
		[]string{"service", "complexity"},
	)
	lowQualityTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pa",
			Subsystem: "pipeline",
			Name:      "low_quality_total",
			Help:      "Total selections served from the low-quality fallback.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	askDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pa",
			Subsystem: "pipeline",
			Name:      "ask_duration_seconds",
			Help:      "End-to-end ask duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		intentTotal,
		retrievalRetriesTotal,
		retrievalFallbackTotal,
		selectionSize,
		lowQualityTotal,
		askDuration,
	)

	return &PipelineMetrics{
		registry:               registry,
		service:                service,
		requestTotal:           requestTotal,
		requestDuration:        requestDuration,
		requestInFlight:        requestInFlight,
		intentTotal:            intentTotal,
		retrievalRetriesTotal:  retrievalRetriesTotal,
		retrievalFallbackTotal: retrievalFallbackTotal,
		selectionSize:          selectionSize,
		lowQualityTotal:        lowQualityTotal,
		askDuration:            askDuration,
	}
}

func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PipelineMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
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
			r.URL.Path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

func (m *PipelineMetrics) IntentClassified(intent domain.Intent) {
	m.intentTotal.WithLabelValues(m.service, string(intent)).Inc()
}

func (m *PipelineMetrics) RetrievalRetries(count int) {
	if count <= 0 {
		return
	}
	m.retrievalRetriesTotal.Add(float64(count))
}

func (m *PipelineMetrics) RetrievalFallback() {
	m.retrievalFallbackTotal.Inc()
}

func (m *PipelineMetrics) SelectionObserved(meta domain.SelectionMetadata) {
	m.selectionSize.WithLabelValues(m.service, string(meta.Complexity)).Observe(float64(meta.TargetCount))
	if meta.LowQuality {
		m.lowQualityTotal.Inc()
	}
}

func (m *PipelineMetrics) ObserveAskDuration(duration time.Duration) {
	m.askDuration.WithLabelValues(m.service).Observe(duration.Seconds())
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
