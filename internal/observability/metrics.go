package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets   = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	engineDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
	phaseDurationBuckets  = []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 45, 90}
	bodySizeBuckets       = []float64{100, 1024, 10240, 102400, 1048576}
	healthScoreBuckets    = []float64{0, 30, 40, 60, 70, 90, 100}
)

// Metrics holds all Prometheus metric instruments for the service.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestSizeBytes  *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Session metrics
	MessagesTotal         *prometheus.CounterVec
	PhaseTransitionsTotal *prometheus.CounterVec
	PhaseHandlerDuration  *prometheus.HistogramVec
	ActiveSessions        prometheus.Gauge
	ReplaysDetectedTotal  prometheus.Counter
	SessionsArchivedTotal *prometheus.CounterVec

	// Design and validation metrics
	ExtractionsTotal *prometheus.CounterVec
	DesignsTotal     *prometheus.CounterVec
	ValidationIssues *prometheus.CounterVec
	AutoFixesTotal   *prometheus.CounterVec

	// Deployment metrics
	DeploymentsTotal   *prometheus.CounterVec
	DeployStepDuration *prometheus.HistogramVec
	HealthScore        prometheus.Histogram
	RollbacksTotal     *prometheus.CounterVec

	// Namespace metrics
	NamespaceSlotsAssigned prometheus.Gauge
	CapacityErrorsTotal    prometheus.Counter

	// Engine invocation metrics
	EngineRequestsTotal       *prometheus.CounterVec
	EngineRequestDuration     *prometheus.HistogramVec
	EngineCircuitBreakerState prometheus.Gauge
	EngineRetriesTotal        *prometheus.CounterVec
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clixen_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clixen_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPRequestSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clixen_http_request_size_bytes",
			Help:    "HTTP request body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clixen_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		// Sessions
		MessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clixen_messages_total",
			Help: "Total messages handled, labelled by the phase they arrived in and the outcome.",
		}, []string{"phase", "outcome"}),
		PhaseTransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clixen_phase_transitions_total",
			Help: "Total session phase transitions.",
		}, []string{"from", "to"}),
		PhaseHandlerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clixen_phase_handler_duration_seconds",
			Help:    "Phase handler duration in seconds.",
			Buckets: phaseDurationBuckets,
		}, []string{"phase"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "clixen_active_sessions",
			Help: "Number of unarchived sessions.",
		}),
		ReplaysDetectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clixen_replays_detected_total",
			Help: "Total replayed messages answered without re-execution.",
		}),
		SessionsArchivedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clixen_sessions_archived_total",
			Help: "Total sessions archived, by reason.",
		}, []string{"reason"}),

		// Design and validation
		ExtractionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clixen_extractions_total",
			Help: "Total intent extraction attempts.",
		}, []string{"status"}),
		DesignsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clixen_designs_total",
			Help: "Total graph design attempts, by matched template.",
		}, []string{"template", "status"}),
		ValidationIssues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clixen_validation_issues_total",
			Help: "Total validation issues found, by code and severity.",
		}, []string{"code", "severity"}),
		AutoFixesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clixen_auto_fixes_total",
			Help: "Total auto-fixes applied during validation.",
		}, []string{"code"}),

		// Deployments
		DeploymentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clixen_deployments_total",
			Help: "Total deployment attempts, by final state.",
		}, []string{"state"}),
		DeployStepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clixen_deploy_step_duration_seconds",
			Help:    "Deployment protocol step duration in seconds.",
			Buckets: engineDurationBuckets,
		}, []string{"step"}),
		HealthScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "clixen_health_score",
			Help:    "Post-deploy health scores.",
			Buckets: healthScoreBuckets,
		}),
		RollbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clixen_rollbacks_total",
			Help: "Total rollback attempts, by result.",
		}, []string{"result"}),

		// Namespace
		NamespaceSlotsAssigned: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "clixen_namespace_slots_assigned",
			Help: "Number of namespace slots currently assigned.",
		}),
		CapacityErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clixen_capacity_errors_total",
			Help: "Total namespace assignment failures due to pool exhaustion.",
		}),

		// Engine
		EngineRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clixen_engine_requests_total",
			Help: "Total automation engine requests.",
		}, []string{"operation", "status"}),
		EngineRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clixen_engine_request_duration_seconds",
			Help:    "Automation engine request duration in seconds.",
			Buckets: engineDurationBuckets,
		}, []string{"operation"}),
		EngineCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "clixen_engine_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open).",
		}),
		EngineRetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clixen_engine_retries_total",
			Help: "Total engine request retries.",
		}, []string{"operation"}),
	}

	reg.MustRegister(
		// HTTP
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSizeBytes,
		m.HTTPResponseSizeBytes,
		// Sessions
		m.MessagesTotal,
		m.PhaseTransitionsTotal,
		m.PhaseHandlerDuration,
		m.ActiveSessions,
		m.ReplaysDetectedTotal,
		m.SessionsArchivedTotal,
		// Design and validation
		m.ExtractionsTotal,
		m.DesignsTotal,
		m.ValidationIssues,
		m.AutoFixesTotal,
		// Deployments
		m.DeploymentsTotal,
		m.DeployStepDuration,
		m.HealthScore,
		m.RollbacksTotal,
		// Namespace
		m.NamespaceSlotsAssigned,
		m.CapacityErrorsTotal,
		// Engine
		m.EngineRequestsTotal,
		m.EngineRequestDuration,
		m.EngineCircuitBreakerState,
		m.EngineRetriesTotal,
	)

	return m
}

// --- Recording helpers ---

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, reqSize, respSize int) {
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPRequestSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(reqSize))
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordMessage records a handled message.
func (m *Metrics) RecordMessage(phase, outcome string, duration time.Duration) {
	m.MessagesTotal.WithLabelValues(phase, outcome).Inc()
	m.PhaseHandlerDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

// RecordPhaseTransition records a session phase transition.
func (m *Metrics) RecordPhaseTransition(from, to string) {
	m.PhaseTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordReplayDetected records a replayed message.
func (m *Metrics) RecordReplayDetected() {
	m.ReplaysDetectedTotal.Inc()
}

// RecordSessionArchived records a session archival.
func (m *Metrics) RecordSessionArchived(reason string) {
	m.SessionsArchivedTotal.WithLabelValues(reason).Inc()
	m.ActiveSessions.Dec()
}

// RecordSessionCreated records a new session.
func (m *Metrics) RecordSessionCreated() {
	m.ActiveSessions.Inc()
}

// RecordExtraction records an intent extraction attempt.
func (m *Metrics) RecordExtraction(status string) {
	m.ExtractionsTotal.WithLabelValues(status).Inc()
}

// RecordDesign records a graph design attempt.
func (m *Metrics) RecordDesign(template, status string) {
	m.DesignsTotal.WithLabelValues(template, status).Inc()
}

// RecordValidationIssue records one validation issue.
func (m *Metrics) RecordValidationIssue(code, severity string) {
	m.ValidationIssues.WithLabelValues(code, severity).Inc()
}

// RecordAutoFix records an applied auto-fix.
func (m *Metrics) RecordAutoFix(code string) {
	m.AutoFixesTotal.WithLabelValues(code).Inc()
}

// RecordDeployment records a finished deployment attempt.
func (m *Metrics) RecordDeployment(state string) {
	m.DeploymentsTotal.WithLabelValues(state).Inc()
}

// RecordDeployStep records the duration of one deployment protocol step.
func (m *Metrics) RecordDeployStep(step string, duration time.Duration) {
	m.DeployStepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// RecordHealthScore records a post-deploy health score.
func (m *Metrics) RecordHealthScore(score int) {
	m.HealthScore.Observe(float64(score))
}

// RecordRollback records a rollback attempt result.
func (m *Metrics) RecordRollback(result string) {
	m.RollbacksTotal.WithLabelValues(result).Inc()
}

// SetNamespaceSlotsAssigned sets the assigned-slot gauge.
func (m *Metrics) SetNamespaceSlotsAssigned(count float64) {
	m.NamespaceSlotsAssigned.Set(count)
}

// RecordCapacityError records a namespace pool exhaustion.
func (m *Metrics) RecordCapacityError() {
	m.CapacityErrorsTotal.Inc()
}

// RecordEngineRequest records an automation engine request.
func (m *Metrics) RecordEngineRequest(operation string, status int, duration time.Duration) {
	m.EngineRequestsTotal.WithLabelValues(operation, strconv.Itoa(status)).Inc()
	m.EngineRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetEngineCircuitBreakerState sets the circuit breaker state gauge.
// State: 0=closed, 1=half-open, 2=open.
func (m *Metrics) SetEngineCircuitBreakerState(state float64) {
	m.EngineCircuitBreakerState.Set(state)
}

// RecordEngineRetry records an engine request retry.
func (m *Metrics) RecordEngineRetry(operation string) {
	m.EngineRetriesTotal.WithLabelValues(operation).Inc()
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		duration := time.Since(start)
		pathPattern := routePattern(r)
		reqSize := 0
		if r.ContentLength > 0 {
			reqSize = int(r.ContentLength)
		}

		m.RecordHTTPRequest(r.Method, pathPattern, sw.status, duration, reqSize, sw.bytes)
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	// chi route patterns have trailing /*, remove it.
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// metricsResponseWriter wraps http.ResponseWriter to capture status and bytes.
type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}
