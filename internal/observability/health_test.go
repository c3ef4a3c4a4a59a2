package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandleHealth_returnsOK(t *testing.T) {
	// Set build-time variables for test.
	origVersion, origCommit := Version, Commit
	Version = "1.2.3"
	Commit = "abc1234"
	t.Cleanup(func() {
		Version = origVersion
		Commit = origCommit
	})

	handler := HandleHealth()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %q, want ok", resp.Status)
	}
	if resp.Version != "1.2.3" {
		t.Errorf("version = %q, want 1.2.3", resp.Version)
	}
	if resp.Commit != "abc1234" {
		t.Errorf("commit = %q, want abc1234", resp.Commit)
	}
}

func TestHandleHealth_defaultValues(t *testing.T) {
	handler := HandleHealth()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %q, want ok", resp.Status)
	}
}

func TestHandleReady_allHealthy(t *testing.T) {
	checks := ReadinessChecks{
		TemplatesLoaded: func() bool { return true },
		CatalogLoaded:   func() bool { return true },
	}

	handler := HandleReady(checks)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp ReadinessResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Status != "ready" {
		t.Errorf("status = %q, want ready", resp.Status)
	}
	if resp.Checks["templates"].Status != "ok" {
		t.Errorf("templates = %q, want ok", resp.Checks["templates"].Status)
	}
	if resp.Checks["node_catalog"].Status != "ok" {
		t.Errorf("node_catalog = %q, want ok", resp.Checks["node_catalog"].Status)
	}
}

func TestHandleReady_templatesNotLoaded(t *testing.T) {
	checks := ReadinessChecks{
		TemplatesLoaded: func() bool { return false },
		CatalogLoaded:   func() bool { return true },
	}

	handler := HandleReady(checks)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	var resp ReadinessResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Status != "not_ready" {
		t.Errorf("status = %q, want not_ready", resp.Status)
	}
	if resp.Checks["templates"].Status != "error" {
		t.Errorf("templates = %q, want error", resp.Checks["templates"].Status)
	}
	if resp.Checks["templates"].Error == "" {
		t.Error("templates check should carry an error message")
	}
}

func TestHandleReady_catalogNotLoaded(t *testing.T) {
	checks := ReadinessChecks{
		TemplatesLoaded: func() bool { return true },
		CatalogLoaded:   func() bool { return false },
	}

	handler := HandleReady(checks)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	var resp ReadinessResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Checks["node_catalog"].Status != "error" {
		t.Errorf("node_catalog = %q, want error", resp.Checks["node_catalog"].Status)
	}
}

func TestHandleReady_withOptionalChecks_allHealthy(t *testing.T) {
	checks := ReadinessChecks{
		TemplatesLoaded: func() bool { return true },
		CatalogLoaded:   func() bool { return true },
		SessionStore:    &mockHealthChecker{},
		NamespaceStore:  &mockHealthChecker{},
		ReplayCache:     &mockHealthChecker{},
	}

	handler := HandleReady(checks)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp ReadinessResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	for _, name := range []string{"templates", "node_catalog", "session_store", "namespace_store", "replay_cache"} {
		if resp.Checks[name].Status != "ok" {
			t.Errorf("%s = %q, want ok", name, resp.Checks[name].Status)
		}
	}
}

func TestHandleReady_sessionStoreDown(t *testing.T) {
	checks := ReadinessChecks{
		TemplatesLoaded: func() bool { return true },
		CatalogLoaded:   func() bool { return true },
		SessionStore:    &mockHealthChecker{err: errors.New("connection refused")},
	}

	handler := HandleReady(checks)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	var resp ReadinessResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Checks["session_store"].Status != "error" {
		t.Errorf("session_store = %q, want error", resp.Checks["session_store"].Status)
	}
	if resp.Checks["session_store"].Error != "connection refused" {
		t.Errorf("session_store error = %q, want connection refused", resp.Checks["session_store"].Error)
	}
}

func TestHandleReady_namespaceStoreDown(t *testing.T) {
	checks := ReadinessChecks{
		TemplatesLoaded: func() bool { return true },
		CatalogLoaded:   func() bool { return true },
		NamespaceStore:  &mockHealthChecker{err: errors.New("pg down")},
	}

	handler := HandleReady(checks)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestHandleReady_replayCacheDown(t *testing.T) {
	checks := ReadinessChecks{
		TemplatesLoaded: func() bool { return true },
		CatalogLoaded:   func() bool { return true },
		ReplayCache:     &mockHealthChecker{err: errors.New("redis timeout")},
	}

	handler := HandleReady(checks)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestHandleReady_nilCheckerFunctions(t *testing.T) {
	// When checker functions are nil, templates and node_catalog should fail.
	checks := ReadinessChecks{}

	handler := HandleReady(checks)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	var resp ReadinessResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Checks["templates"].Status != "error" {
		t.Errorf("templates = %q, want error", resp.Checks["templates"].Status)
	}
	if resp.Checks["node_catalog"].Status != "error" {
		t.Errorf("node_catalog = %q, want error", resp.Checks["node_catalog"].Status)
	}
}

func TestHandleReady_checksHaveLatency(t *testing.T) {
	checks := ReadinessChecks{
		TemplatesLoaded: func() bool { return true },
		CatalogLoaded:   func() bool { return true },
	}

	handler := HandleReady(checks)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	var resp ReadinessResponse
	json.NewDecoder(rec.Body).Decode(&resp)

	// Latency should be non-negative (likely 0 for fast checks).
	for name, check := range resp.Checks {
		if check.LatencyMs < 0 {
			t.Errorf("%s latency = %d, should be >= 0", name, check.LatencyMs)
		}
	}
}

func TestHandleReady_withoutOptionalChecks(t *testing.T) {
	// When optional checkers are nil, only required checks should appear.
	checks := ReadinessChecks{
		TemplatesLoaded: func() bool { return true },
		CatalogLoaded:   func() bool { return true },
	}

	handler := HandleReady(checks)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	var resp ReadinessResponse
	json.NewDecoder(rec.Body).Decode(&resp)

	if len(resp.Checks) != 2 {
		t.Errorf("checks count = %d, want 2 (only required checks)", len(resp.Checks))
	}
	if _, ok := resp.Checks["session_store"]; ok {
		t.Error("session_store should not be in checks when nil")
	}
	if _, ok := resp.Checks["namespace_store"]; ok {
		t.Error("namespace_store should not be in checks when nil")
	}
	if _, ok := resp.Checks["replay_cache"]; ok {
		t.Error("replay_cache should not be in checks when nil")
	}
}

func TestHandleReady_multipleFailures(t *testing.T) {
	checks := ReadinessChecks{
		TemplatesLoaded: func() bool { return false },
		CatalogLoaded:   func() bool { return false },
		SessionStore:    &mockHealthChecker{err: errors.New("pg down")},
	}

	handler := HandleReady(checks)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	var resp ReadinessResponse
	json.NewDecoder(rec.Body).Decode(&resp)

	failCount := 0
	for _, check := range resp.Checks {
		if check.Status == "error" {
			failCount++
		}
	}
	if failCount != 3 {
		t.Errorf("failed checks = %d, want 3", failCount)
	}
}

// mockHealthChecker implements HealthChecker with a configurable error.
type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) HealthCheck(context.Context) error {
	return m.err
}
