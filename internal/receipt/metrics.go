package receipt

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zombor/receipt-extractor/internal/extraction"
)

// Metrics holds the Prometheus collectors for extractions and HTTP traffic
type Metrics struct {
	registry *prometheus.Registry

	extractionsTotal  *prometheus.CounterVec
	rejectedTotal     prometheus.Counter
	cacheHitsTotal    prometheus.Counter
	verificationTotal prometheus.Counter
	correctionsTotal  *prometheus.CounterVec
	confidence        prometheus.Histogram
	duration          prometheus.Histogram

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors on a dedicated registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		extractionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "receipt",
			Subsystem: "extraction",
			Name:      "total",
			Help:      "Extractions run, by outcome and language.",
		}, []string{"status", "language"}),
		rejectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "receipt",
			Subsystem: "extraction",
			Name:      "rejected_total",
			Help:      "Requests rejected before extraction.",
		}),
		cacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "receipt",
			Subsystem: "extraction",
			Name:      "cache_hits_total",
			Help:      "Requests answered from the result cache.",
		}),
		verificationTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "receipt",
			Subsystem: "extraction",
			Name:      "needs_verification_total",
			Help:      "Extractions flagged for manual verification.",
		}),
		correctionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "receipt",
			Subsystem: "extraction",
			Name:      "corrections_total",
			Help:      "Proposed corrections, by rule and whether they were applied.",
		}, []string{"rule", "applied"}),
		confidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "receipt",
			Subsystem: "extraction",
			Name:      "confidence",
			Help:      "Distribution of extraction confidence.",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "receipt",
			Subsystem: "extraction",
			Name:      "duration_seconds",
			Help:      "Extraction duration in seconds.",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "receipt",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		}, []string{"method", "path", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "receipt",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	m.registry.MustRegister(
		m.extractionsTotal,
		m.rejectedTotal,
		m.cacheHitsTotal,
		m.verificationTotal,
		m.correctionsTotal,
		m.confidence,
		m.duration,
		m.requestTotal,
		m.requestDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// observeExtraction records the outcome of one extraction
func (m *Metrics) observeExtraction(res *extraction.Result, took time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if !res.Success {
		status = "failed"
	}
	language := res.Language
	if language == "" {
		language = "none"
	}
	m.extractionsTotal.WithLabelValues(status, language).Inc()
	m.duration.Observe(took.Seconds())
	if res.Success {
		m.confidence.Observe(res.Confidence)
	}
	if res.NeedsVerification {
		m.verificationTotal.Inc()
	}
	for _, c := range res.Corrections {
		m.correctionsTotal.WithLabelValues(c.Rule, strconv.FormatBool(c.Applied)).Inc()
	}
}

func (m *Metrics) observeRejected() {
	if m == nil {
		return
	}
	m.rejectedTotal.Inc()
}

func (m *Metrics) observeCacheHit() {
	if m == nil {
		return
	}
	m.cacheHitsTotal.Inc()
}

// Middleware counts and times HTTP requests
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(recorder, r)

		path := normalizePath(r.URL.Path)
		m.requestTotal.WithLabelValues(r.Method, path, strconv.Itoa(recorder.statusCode)).Inc()
		m.requestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/extractions/"):
		return "/api/extractions/{id}"
	default:
		return path
	}
}
