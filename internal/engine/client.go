// Package engine is the client for the external automation engine. It exposes
// exactly the five operations the core depends on, guarded by a circuit
// breaker, plus a TTL-cached catalog of the node kinds the engine supports.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/intelogroup/clixen-16ace7b7-sub001/internal/config"
	"github.com/intelogroup/clixen-16ace7b7-sub001/model"
)

// Sentinel errors callers branch on.
var (
	// ErrArtifactNotFound is returned when the engine reports no artifact
	// with the requested id.
	ErrArtifactNotFound = errors.New("engine: artifact not found")
	// ErrExerciseUnsupported is returned when the engine exposes no
	// execution API for the artifact. The health check falls back to a
	// structural re-fetch in that case.
	ErrExerciseUnsupported = errors.New("engine: exercise not supported")
)

// ArtifactNode is one node in the engine's representation of a deployed graph.
type ArtifactNode struct {
	Name       string         `json:"name"`
	Kind       string         `json:"kind"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Position   [2]int         `json:"position"`
}

// Connection is a directed link between two artifact nodes.
type Connection struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Label string `json:"label,omitempty"`
}

// Artifact is the engine-side representation of an automation graph.
type Artifact struct {
	ID          string         `json:"id,omitempty"`
	Name        string         `json:"name"`
	Active      bool           `json:"active"`
	Nodes       []ArtifactNode `json:"nodes"`
	Connections []Connection   `json:"connections"`
	WebhookRef  string         `json:"webhook_ref,omitempty"`
}

// ExerciseResult is the outcome of a synthetic exercise run.
type ExerciseResult struct {
	Status string         `json:"status"`
	Output map[string]any `json:"output,omitempty"`
}

// Client is the contract with the external automation engine. The core
// depends only on these operations' success/failure semantics, never on the
// vendor's wire shapes beyond what Artifact carries.
type Client interface {
	// CreateArtifact submits a new artifact and returns its external id.
	CreateArtifact(ctx context.Context, artifact Artifact) (string, error)

	// Activate enables the artifact for live triggering.
	Activate(ctx context.Context, externalID string) error

	// Deactivate disables the artifact.
	Deactivate(ctx context.Context, externalID string) error

	// FetchArtifact retrieves the artifact's current state. Returns
	// ErrArtifactNotFound when the engine has no such artifact.
	FetchArtifact(ctx context.Context, externalID string) (Artifact, error)

	// Exercise runs a lightweight synthetic execution of the artifact with
	// the given sample input. Returns ErrExerciseUnsupported when the engine
	// has no execution API.
	Exercise(ctx context.Context, externalID string, sample map[string]any) (ExerciseResult, error)
}

// Engine operation names used for routing, metrics labels, and spec lookup.
const (
	OpCreateArtifact = "createArtifact"
	OpActivate       = "activateArtifact"
	OpDeactivate     = "deactivateArtifact"
	OpFetchArtifact  = "fetchArtifact"
	OpExercise       = "exerciseArtifact"
)

// defaultRoutes are the engine's REST paths used when no OpenAPI document is
// configured. {id} is substituted with the escaped external id.
var defaultRoutes = map[string]route{
	OpCreateArtifact: {http.MethodPost, "/api/v1/artifacts"},
	OpActivate:       {http.MethodPost, "/api/v1/artifacts/{id}/activate"},
	OpDeactivate:     {http.MethodPost, "/api/v1/artifacts/{id}/deactivate"},
	OpFetchArtifact:  {http.MethodGet, "/api/v1/artifacts/{id}"},
	OpExercise:       {http.MethodPost, "/api/v1/artifacts/{id}/exercise"},
}

type route struct {
	method       string
	pathTemplate string
}

// Metrics is the subset of observability hooks the client reports to.
type Metrics interface {
	RecordEngineRequest(operation string, status int, duration time.Duration)
	SetEngineCircuitBreakerState(state float64)
}

// HTTPClient implements Client against the engine's HTTP API.
type HTTPClient struct {
	baseURL   string
	authToken string
	client    *http.Client
	breaker   *CircuitBreaker
	routes    map[string]route
	metrics   Metrics
}

// HTTPClientOption configures an HTTPClient.
type HTTPClientOption func(*HTTPClient)

// WithSpecIndex resolves operation routes from an indexed engine OpenAPI
// document instead of the compiled-in defaults. Operations absent from the
// document keep their default route.
func WithSpecIndex(idx *SpecIndex) HTTPClientOption {
	return func(c *HTTPClient) {
		for _, op := range []string{OpCreateArtifact, OpActivate, OpDeactivate, OpFetchArtifact, OpExercise} {
			if method, path, ok := idx.Route(op); ok {
				c.routes[op] = route{method, path}
			}
		}
	}
}

// WithMetrics attaches observability hooks to the client.
func WithMetrics(m Metrics) HTTPClientOption {
	return func(c *HTTPClient) { c.metrics = m }
}

// NewHTTPClient creates an engine client with a circuit breaker and an
// explicit per-call timeout from configuration.
func NewHTTPClient(cfg config.EngineConfig, authToken string, opts ...HTTPClientOption) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 || timeout > config.MaxEngineTimeout {
		timeout = config.MaxEngineTimeout
	}
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxConnsPerHost:     50,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	routes := make(map[string]route, len(defaultRoutes))
	for op, r := range defaultRoutes {
		routes[op] = r
	}

	c := &HTTPClient{
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		authToken: authToken,
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		breaker: NewCircuitBreaker(cfg.CircuitBreaker),
		routes:  routes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Breaker exposes the circuit breaker for readiness reporting.
func (c *HTTPClient) Breaker() *CircuitBreaker {
	return c.breaker
}

// CreateArtifact submits a new artifact and returns its external id.
func (c *HTTPClient) CreateArtifact(ctx context.Context, artifact Artifact) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	status, err := c.call(ctx, OpCreateArtifact, "", artifact, &out)
	if err != nil {
		return "", err
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return "", fmt.Errorf("engine: create artifact returned status %d", status)
	}
	if out.ID == "" {
		return "", fmt.Errorf("engine: create artifact returned no id")
	}
	return out.ID, nil
}

// Activate enables the artifact for live triggering.
func (c *HTTPClient) Activate(ctx context.Context, externalID string) error {
	status, err := c.call(ctx, OpActivate, externalID, nil, nil)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return ErrArtifactNotFound
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("engine: activate %s returned status %d", externalID, status)
	}
	return nil
}

// Deactivate disables the artifact.
func (c *HTTPClient) Deactivate(ctx context.Context, externalID string) error {
	status, err := c.call(ctx, OpDeactivate, externalID, nil, nil)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return ErrArtifactNotFound
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("engine: deactivate %s returned status %d", externalID, status)
	}
	return nil
}

// FetchArtifact retrieves the artifact's current state.
func (c *HTTPClient) FetchArtifact(ctx context.Context, externalID string) (Artifact, error) {
	var out Artifact
	status, err := c.call(ctx, OpFetchArtifact, externalID, nil, &out)
	if err != nil {
		return Artifact{}, err
	}
	if status == http.StatusNotFound {
		return Artifact{}, ErrArtifactNotFound
	}
	if status < 200 || status >= 300 {
		return Artifact{}, fmt.Errorf("engine: fetch %s returned status %d", externalID, status)
	}
	return out, nil
}

// Exercise runs a synthetic execution of the artifact.
func (c *HTTPClient) Exercise(ctx context.Context, externalID string, sample map[string]any) (ExerciseResult, error) {
	var out ExerciseResult
	body := map[string]any{"sample": sample}
	status, err := c.call(ctx, OpExercise, externalID, body, &out)
	if err != nil {
		return ExerciseResult{}, err
	}
	switch status {
	case http.StatusNotFound:
		return ExerciseResult{}, ErrArtifactNotFound
	case http.StatusNotImplemented, http.StatusMethodNotAllowed:
		return ExerciseResult{}, ErrExerciseUnsupported
	}
	if status < 200 || status >= 300 {
		return ExerciseResult{}, fmt.Errorf("engine: exercise %s returned status %d", externalID, status)
	}
	return out, nil
}

// call performs one engine request under the circuit breaker. It returns the
// HTTP status for the caller to interpret; infrastructure failures
// (connection errors, timeouts, open breaker) come back as typed envelopes.
func (c *HTTPClient) call(ctx context.Context, operation, externalID string, body any, out any) (int, error) {
	if err := c.breaker.Allow(); err != nil {
		c.reportBreaker()
		return 0, model.NewEngineUnavailableError()
	}

	r, ok := c.routes[operation]
	if !ok {
		return 0, fmt.Errorf("engine: unknown operation %q", operation)
	}

	path := r.pathTemplate
	if externalID != "" {
		path = strings.ReplaceAll(path, "{id}", url.PathEscape(externalID))
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("engine: marshal %s body: %w", operation, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, fmt.Errorf("engine: build %s request: %w", operation, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		c.report(operation, 0, time.Since(start))
		if isConnectionError(err) {
			return 0, model.NewEngineUnavailableError()
		}
		if ctx.Err() != nil || isTimeoutError(err) {
			return 0, model.NewEngineTimeoutError()
		}
		return 0, fmt.Errorf("engine: %s request failed: %w", operation, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20)) // 10MB limit
	if err != nil {
		c.breaker.RecordFailure()
		c.report(operation, resp.StatusCode, time.Since(start))
		return 0, fmt.Errorf("engine: read %s response: %w", operation, err)
	}

	// 4xx responses are actionable outcomes, not infrastructure failures.
	if resp.StatusCode >= 500 {
		c.breaker.RecordFailure()
	} else {
		c.breaker.RecordSuccess()
	}
	c.report(operation, resp.StatusCode, time.Since(start))

	if out != nil && len(respBody) > 0 && resp.StatusCode < 300 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return resp.StatusCode, fmt.Errorf("engine: decode %s response: %w", operation, err)
		}
	}
	return resp.StatusCode, nil
}

func (c *HTTPClient) report(operation string, status int, duration time.Duration) {
	if c.metrics != nil {
		c.metrics.RecordEngineRequest(operation, status, duration)
	}
	c.reportBreaker()
}

func (c *HTTPClient) reportBreaker() {
	if c.metrics != nil {
		c.metrics.SetEngineCircuitBreakerState(float64(c.breaker.State()))
	}
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func isTimeoutError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
