package integration

import (
	"net/http"
	"testing"
)

func TestPublicEndpointsBypassAuth(t *testing.T) {
	h := NewTestHarness(t)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp := h.GET(path, "")
		h.AssertStatus(t, resp, http.StatusOK)
		resp.Body.Close()
	}
}

func TestSessionEndpointsRequireAuth(t *testing.T) {
	h := NewTestHarness(t)

	resp := h.GET("/v1/sessions/sess-any", "")
	h.AssertErrorCode(t, resp, http.StatusUnauthorized, "UNAUTHORIZED")
}
