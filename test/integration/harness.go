// Package integration provides a reusable test harness for end-to-end
// testing of the clixen orchestration server. It starts a full HTTP server
// wired exactly like production, with a mock automation engine, a mock
// generation service, in-memory stores, and a test JWT issuer.
package integration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/intelogroup/clixen-16ace7b7-sub001/internal/config"
	"github.com/intelogroup/clixen-16ace7b7-sub001/internal/deploy"
	"github.com/intelogroup/clixen-16ace7b7-sub001/internal/designer"
	"github.com/intelogroup/clixen-16ace7b7-sub001/internal/engine"
	"github.com/intelogroup/clixen-16ace7b7-sub001/internal/intent"
	"github.com/intelogroup/clixen-16ace7b7-sub001/internal/namespace"
	"github.com/intelogroup/clixen-16ace7b7-sub001/internal/observability"
	"github.com/intelogroup/clixen-16ace7b7-sub001/internal/orchestrator"
	"github.com/intelogroup/clixen-16ace7b7-sub001/internal/session"
	"github.com/intelogroup/clixen-16ace7b7-sub001/internal/transport"
	"github.com/intelogroup/clixen-16ace7b7-sub001/internal/validator"
	"github.com/intelogroup/clixen-16ace7b7-sub001/model"
)

// TestHarness encapsulates a fully wired server instance with mock external
// services for integration testing.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server
	issuer *tokenIssuer

	// Mock external services and internal components exposed for advanced
	// test scenarios.
	Engine       *MockEngine
	Generation   *MockGeneration
	Sessions     *session.MemoryStore
	Replay       session.ReplayCache
	Catalog      *engine.Catalog
	Allocator    *namespace.Allocator
	Orchestrator *orchestrator.Orchestrator

	cfg *config.Config
}

// HarnessOption configures the test harness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	buckets         int
	slots           int
	healthThreshold int
	healthRetry     config.HealthRetryConfig
	breaker         config.CircuitBreakerConfig
	replayTTL       time.Duration
	handlerTimeout  time.Duration
}

// WithNamespacePool sets the namespace pool dimensions.
func WithNamespacePool(buckets, slots int) HarnessOption {
	return func(c *harnessConfig) {
		c.buckets = buckets
		c.slots = slots
	}
}

// WithHealthThreshold sets the deployment health score threshold.
func WithHealthThreshold(threshold int) HarnessOption {
	return func(c *harnessConfig) {
		c.healthThreshold = threshold
	}
}

// WithHealthRetry sets the retry budget for the health-check artifact read.
func WithHealthRetry(retries int, backoff time.Duration) HarnessOption {
	return func(c *harnessConfig) {
		c.healthRetry = config.HealthRetryConfig{Retries: retries, Backoff: backoff}
	}
}

// WithBreaker sets the engine circuit breaker configuration.
func WithBreaker(cfg config.CircuitBreakerConfig) HarnessOption {
	return func(c *harnessConfig) {
		c.breaker = cfg
	}
}

// WithReplayTTL sets the replayed-outcome cache TTL.
func WithReplayTTL(ttl time.Duration) HarnessOption {
	return func(c *harnessConfig) {
		c.replayTTL = ttl
	}
}

// NewTestHarness creates and starts a full server test instance. The server
// and its mock services are cleaned up when the test completes.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	hc := &harnessConfig{
		buckets:         2,
		slots:           2,
		healthThreshold: 60,
		healthRetry:     config.HealthRetryConfig{Retries: 2, Backoff: time.Millisecond},
		breaker: config.CircuitBreakerConfig{
			FailureThreshold:   5,
			SuccessThreshold:   2,
			Timeout:            30 * time.Second,
			ErrorRateThreshold: 0.5,
			ErrorRateWindow:    time.Minute,
		},
		replayTTL:      time.Hour,
		handlerTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(hc)
	}

	h := &TestHarness{t: t}

	// Step 1: Start mock external services.
	h.Engine = newMockEngine(t)
	h.Generation = newMockGeneration(t)
	h.issuer = newTokenIssuer(t)

	// Step 2: Build config pointing at the mocks.
	cfg := config.Defaults()
	cfg.Server.HandlerTimeout = hc.handlerTimeout
	cfg.Identity = config.IdentityConfig{
		Issuer:       h.issuer.Issuer(),
		Audience:     h.issuer.Audience(),
		JWKSURL:      h.issuer.JWKSURL(),
		JWKSCacheTTL: time.Hour,
		Algorithms:   []string{"RS256"},
	}
	cfg.Generation.BaseURL = h.Generation.URL()
	cfg.Generation.Timeout = 5 * time.Second
	cfg.Engine.BaseURL = h.Engine.URL()
	cfg.Engine.Timeout = 5 * time.Second
	cfg.Engine.CircuitBreaker = hc.breaker
	cfg.Engine.HealthRetry = hc.healthRetry
	cfg.Namespace.Buckets = hc.buckets
	cfg.Namespace.Slots = hc.slots
	cfg.Deployment.HealthThreshold = hc.healthThreshold
	cfg.Replay.DefaultTTL = hc.replayTTL
	h.cfg = cfg

	// Step 3: Telemetry. A fresh registry per harness keeps parallel tests
	// from colliding on metric registration.
	logger := zap.NewNop()
	metrics := observability.InitMetrics(prometheus.NewRegistry())

	// Step 4: Kind catalog (built-in seed, never stale) and engine client.
	h.Catalog = engine.NewCatalog(nil, 0)
	engineClient := engine.NewHTTPClient(cfg.Engine, "test-engine-token", engine.WithMetrics(metrics))

	// Step 5: In-memory stores.
	h.Sessions = session.NewMemoryStore()
	h.Replay = session.NewMemoryReplayCache()
	assignments := namespace.NewMemoryAssignmentStore()

	// Step 6: Core components.
	generator := intent.NewOpenAIGenerator(cfg.Generation, "test-api-key")
	extractor := intent.NewExtractor(generator, logger)
	library := designer.BuiltinLibrary()
	graphDesigner := designer.New(library)
	graphValidator := validator.New(h.Catalog, cfg.Orchestrator.AutoFixBudget, logger)
	h.Allocator = namespace.NewAllocator(assignments, cfg.Namespace, metrics)
	deployer := deploy.NewManager(engineClient, h.Allocator, cfg.Deployment, cfg.Engine.HealthRetry, metrics, logger)

	h.Orchestrator = orchestrator.New(
		h.Sessions, h.Replay,
		extractor, graphDesigner, graphValidator, deployer,
		cfg.Orchestrator, cfg.Replay,
		metrics, logger,
	)

	// Step 7: HTTP router with the full middleware chain.
	jwks := transport.NewJWKSClient(h.issuer.JWKSURL(), time.Hour)
	router := transport.NewRouter(transport.Dependencies{
		Config:       cfg,
		Authenticate: transport.JWTAuthenticator(cfg.Identity, jwks),
		Orchestrator: h.Orchestrator,
		Readiness: observability.ReadinessChecks{
			TemplatesLoaded: func() bool { return library.Len() > 0 },
			CatalogLoaded:   func() bool { return h.Catalog.Len() > 0 },
		},
		Metrics: metrics,
	})

	// Step 8: Start the test server.
	h.server = httptest.NewServer(router)
	t.Cleanup(h.server.Close)

	return h
}

// BaseURL returns the test server's base URL.
func (h *TestHarness) BaseURL() string {
	return h.server.URL
}

// GenerateToken creates a valid JWT token with the given claims.
func (h *TestHarness) GenerateToken(claims TestClaims) string {
	return h.issuer.GenerateToken(claims)
}

// GenerateExpiredToken creates a JWT that has already expired.
func (h *TestHarness) GenerateExpiredToken(claims TestClaims) string {
	return h.issuer.GenerateExpiredToken(claims)
}

// --- conversation helpers ---

// Say posts one user message to the session and decodes the outcome. The
// request must succeed with 200; error paths use POST directly.
func (h *TestHarness) Say(sessionID string, seq uint64, text, token string) *model.Outcome {
	h.t.Helper()

	resp := h.POST("/v1/sessions/"+sessionID+"/messages", map[string]any{
		"text": text,
		"seq":  seq,
	}, token)
	var outcome model.Outcome
	h.AssertJSON(h.t, resp, http.StatusOK, &outcome)
	return &outcome
}

// Status fetches the session projection. The request must succeed with 200.
func (h *TestHarness) Status(sessionID, token string) *model.Session {
	h.t.Helper()

	resp := h.GET("/v1/sessions/"+sessionID, token)
	var sess model.Session
	h.AssertJSON(h.t, resp, http.StatusOK, &sess)
	return &sess
}

// --- HTTP client helpers ---

// GET performs an authenticated GET request.
func (h *TestHarness) GET(path, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("GET", path, nil, token, nil)
}

// POST performs an authenticated POST request with a JSON body.
func (h *TestHarness) POST(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("POST", path, body, token, nil)
}

// GETWithHeaders performs a GET request with explicit headers and no token.
func (h *TestHarness) GETWithHeaders(path string, headers map[string]string) *http.Response {
	h.t.Helper()
	return h.doRequest("GET", path, nil, "", headers)
}

func (h *TestHarness) doRequest(method, path string, body any, token string, headers map[string]string) *http.Response {
	h.t.Helper()

	url := h.server.URL + path

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		bodyReader = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(context.Background(), method, url, bodyReader)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

// ParseJSON reads the response body and unmarshals it into the target.
func (h *TestHarness) ParseJSON(resp *http.Response, target any) {
	h.t.Helper()
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		h.t.Fatalf("unmarshal response body: %v\nbody: %s", err, string(data))
	}
}

// ReadBody reads and returns the response body as bytes.
func (h *TestHarness) ReadBody(resp *http.Response) []byte {
	h.t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	return data
}

// AssertStatus checks that the response has the expected status code.
func (h *TestHarness) AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Errorf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
}

// AssertJSON checks that the response has the expected status and parses the body.
func (h *TestHarness) AssertJSON(t *testing.T, resp *http.Response, expected int, target any) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
	h.ParseJSON(resp, target)
}

// AssertErrorCode checks the response status and the error envelope code.
func (h *TestHarness) AssertErrorCode(t *testing.T, resp *http.Response, status int, code string) {
	t.Helper()
	var envelope struct {
		Error model.ErrorEnvelope `json:"error"`
	}
	h.AssertJSON(t, resp, status, &envelope)
	if envelope.Error.Code != code {
		t.Errorf("error code = %q, want %q", envelope.Error.Code, code)
	}
}

// --- default test claims ---

// OwnerClaims returns TestClaims for the tenant that owns the sessions under
// test.
func OwnerClaims() TestClaims {
	return TestClaims{
		SubjectID: "user-owner",
		TenantID:  "acme-corp",
		Email:     "owner@acme.example.com",
		Roles:     []string{"automation_admin"},
	}
}

// IntruderClaims returns TestClaims for a different tenant, used to verify
// tenant isolation.
func IntruderClaims() TestClaims {
	return TestClaims{
		SubjectID: "user-intruder",
		TenantID:  "globex",
		Email:     "someone@globex.example.com",
		Roles:     []string{"automation_admin"},
	}
}
