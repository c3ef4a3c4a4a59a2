package integration

import (
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestSecurity_missingToken(t *testing.T) {
	h := NewTestHarness(t)

	resp := h.POST("/v1/sessions/sess-sec/messages", map[string]any{"text": "hi", "seq": 1}, "")
	h.AssertErrorCode(t, resp, http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestSecurity_malformedAuthorizationHeader(t *testing.T) {
	h := NewTestHarness(t)

	resp := h.GETWithHeaders("/v1/sessions/sess-sec", map[string]string{
		"Authorization": "Token abc123",
	})
	h.AssertErrorCode(t, resp, http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestSecurity_expiredToken(t *testing.T) {
	h := NewTestHarness(t)

	token := h.GenerateExpiredToken(OwnerClaims())
	resp := h.GET("/v1/sessions/sess-sec", token)
	h.AssertErrorCode(t, resp, http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestSecurity_wrongAudience(t *testing.T) {
	h := NewTestHarness(t)

	claims := OwnerClaims()
	claims.Extra = map[string]any{"aud": "some-other-service"}
	resp := h.GET("/v1/sessions/sess-sec", h.GenerateToken(claims))
	h.AssertErrorCode(t, resp, http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestSecurity_wrongIssuer(t *testing.T) {
	h := NewTestHarness(t)

	claims := OwnerClaims()
	claims.Extra = map[string]any{"iss": "https://auth.evil.example.com"}
	resp := h.GET("/v1/sessions/sess-sec", h.GenerateToken(claims))
	h.AssertErrorCode(t, resp, http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestSecurity_disallowedAlgorithm(t *testing.T) {
	h := NewTestHarness(t)

	// An HS256 token, even one a careless verifier would accept, must be
	// rejected because only RS256 is configured.
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss":       h.issuer.Issuer(),
		"aud":       h.issuer.Audience(),
		"iat":       jwt.NewNumericDate(now),
		"exp":       jwt.NewNumericDate(now.Add(time.Hour)),
		"sub":       "user-owner",
		"tenant_id": "acme-corp",
	})
	token.Header["kid"] = testKeyID
	signed, err := token.SignedString([]byte("shared-secret"))
	if err != nil {
		t.Fatalf("sign HS256 token: %v", err)
	}

	resp := h.GET("/v1/sessions/sess-sec", signed)
	h.AssertErrorCode(t, resp, http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestSecurity_tamperedSignature(t *testing.T) {
	h := NewTestHarness(t)

	token := h.GenerateToken(OwnerClaims()) + "x"
	resp := h.GET("/v1/sessions/sess-sec", token)
	h.AssertErrorCode(t, resp, http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestSecurity_tenantIsolation(t *testing.T) {
	h := NewTestHarness(t)
	owner := h.GenerateToken(OwnerClaims())
	intruder := h.GenerateToken(IntruderClaims())

	h.Generation.Reply(reportIntentReply())
	h.Say("sess-isolated", 1, "Fetch the sales report every morning and email it", owner)

	resp := h.GET("/v1/sessions/sess-isolated", intruder)
	h.AssertErrorCode(t, resp, http.StatusForbidden, "FORBIDDEN")

	resp = h.POST("/v1/sessions/sess-isolated/messages", map[string]any{
		"text": "yes, build it",
		"seq":  2,
	}, intruder)
	h.AssertErrorCode(t, resp, http.StatusForbidden, "FORBIDDEN")

	// The owner's session is untouched by the rejected attempts.
	sess := h.Status("sess-isolated", owner)
	if sess.LastSeq != 1 {
		t.Errorf("last seq = %d, want 1", sess.LastSeq)
	}
}

func TestSecurity_tokenWithoutTenant(t *testing.T) {
	h := NewTestHarness(t)

	claims := OwnerClaims()
	claims.TenantID = ""
	resp := h.POST("/v1/sessions/sess-sec/messages", map[string]any{
		"text": "hi",
		"seq":  1,
	}, h.GenerateToken(claims))
	h.AssertErrorCode(t, resp, http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestSecurity_unknownSessionIsNotFound(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(OwnerClaims())

	resp := h.GET("/v1/sessions/sess-ghost", token)
	h.AssertErrorCode(t, resp, http.StatusNotFound, "NOT_FOUND")
}

func TestSecurity_malformedMessageBody(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(OwnerClaims())

	resp := h.POST("/v1/sessions/sess-sec/messages", map[string]any{
		"text": "   ",
		"seq":  1,
	}, token)
	h.AssertErrorCode(t, resp, http.StatusBadRequest, "BAD_REQUEST")
}
