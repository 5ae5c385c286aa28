package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yapenotifier_http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "yapenotifier_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	eventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yapenotifier_events_ingested_total",
			Help: "Raw events ingested by source app and duplicate flag",
		},
		[]string{"source_app", "duplicate"},
	)

	classifierOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yapenotifier_classifier_outcomes_total",
			Help: "Admission classifier outcomes by reason code",
		},
		[]string{"reason"},
	)

	extractionResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yapenotifier_extraction_results_total",
			Help: "Fact extraction hits and misses by source app",
		},
		[]string{"source_app", "result"},
	)

	unknownCurrencyTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yapenotifier_unknown_currency_tokens_total",
			Help: "Currency tokens that fell back to the default ISO code",
		},
		[]string{"token"},
	)

	pipelineLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "yapenotifier_pipeline_duration_seconds",
			Help:    "Time from raw event receipt to persisted record",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2},
		},
	)

	instancesCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "yapenotifier_app_instances_created_total",
			Help: "App instances created on first resolution",
		},
	)

	auditDisagreements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yapenotifier_audit_disagreements_total",
			Help: "Persisted records the async re-check rejected, by reason",
		},
		[]string{"reason"},
	)

	idempotencyHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "yapenotifier_idempotency_hits_total",
			Help: "Ingest requests served from the idempotency cache",
		},
	)

	rateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yapenotifier_rate_limit_rejections_total",
			Help: "Requests rejected by the per-device rate limiter",
		},
		[]string{"device_id"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordEventIngested records a persisted notification record
func RecordEventIngested(sourceApp string, duplicate bool) {
	eventsIngested.WithLabelValues(sourceApp, strconv.FormatBool(duplicate)).Inc()
}

// RecordClassifierOutcome records an admission classifier decision
func RecordClassifierOutcome(reason string) {
	classifierOutcomes.WithLabelValues(reason).Inc()
}

// RecordExtraction records whether fact extraction produced payment facts
func RecordExtraction(sourceApp string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	extractionResults.WithLabelValues(sourceApp, result).Inc()
}

// RecordUnknownCurrency records a currency token that mapped to the default code
func RecordUnknownCurrency(token string) {
	unknownCurrencyTokens.WithLabelValues(token).Inc()
}

// RecordPipelineLatency records end-to-end ingestion time for one event
func RecordPipelineLatency(d time.Duration) {
	pipelineLatency.Observe(d.Seconds())
}

// RecordInstanceCreated records a first-sight app instance creation
func RecordInstanceCreated() {
	instancesCreated.Inc()
}

// RecordAuditDisagreement records an async re-check that rejected a stored record
func RecordAuditDisagreement(reason string) {
	auditDisagreements.WithLabelValues(reason).Inc()
}

// RecordIdempotencyHit records a cache hit for idempotency
func RecordIdempotencyHit() {
	idempotencyHits.Inc()
}

// RecordRateLimitRejection records a rate limit rejection
func RecordRateLimitRejection(deviceID string) {
	rateLimitRejections.WithLabelValues(deviceID).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		RecordRequest(r.Method, r.URL.Path, wrapped.status, time.Since(start))
	})
}
