package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/intelogroup/clixen-16ace7b7-sub001/model"
)

// Orchestrator is the conversation engine the session endpoints delegate to.
type Orchestrator interface {
	HandleMessage(ctx context.Context, sessionID, text string, seq uint64) (*model.Outcome, error)
	GetStatus(ctx context.Context, sessionID string) (*model.Session, error)
}

// SessionHandler serves the session message and status endpoints.
type SessionHandler struct {
	Orchestrator Orchestrator
}

const maxMessageBytes = 64 << 10

// HandleMessage accepts one user message for a session and returns the
// orchestrator's outcome. Seq is the client's monotonically increasing
// sequence number; redelivered sequences return the recorded outcome with
// replayed=true.
func (h *SessionHandler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	rctx := model.RequestContextFrom(r.Context())
	if rctx == nil {
		WriteError(w, model.NewUnauthorizedError("missing request context"))
		return
	}
	sessionID := chi.URLParam(r, "sessionId")

	var body struct {
		Text string `json:"text"`
		Seq  uint64 `json:"seq"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBytes)).Decode(&body); err != nil {
		WriteError(w, model.NewBadRequestError("invalid JSON body"))
		return
	}
	if strings.TrimSpace(body.Text) == "" {
		WriteError(w, model.NewBadRequestError("text is required"))
		return
	}

	outcome, err := h.Orchestrator.HandleMessage(r.Context(), sessionID, body.Text, body.Seq)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, outcome)
}

// HandleStatus returns a read-only projection of the session.
func (h *SessionHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	rctx := model.RequestContextFrom(r.Context())
	if rctx == nil {
		WriteError(w, model.NewUnauthorizedError("missing request context"))
		return
	}
	sessionID := chi.URLParam(r, "sessionId")

	sess, err := h.Orchestrator.GetStatus(r.Context(), sessionID)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, sess)
}
