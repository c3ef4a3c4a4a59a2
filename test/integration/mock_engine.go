package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/intelogroup/clixen-16ace7b7-sub001/internal/engine"
)

// MockEngine simulates the external automation engine over HTTP. It keeps a
// real artifact store behind the five REST operations so a test can assert
// what the core actually created, activated, and rolled back, and it supports
// targeted failure injection for the deployment-protocol and resilience
// scenarios.
type MockEngine struct {
	t      *testing.T
	server *httptest.Server

	mu        sync.Mutex
	nextID    int
	artifacts map[string]*engine.Artifact
	calls     map[string]int

	webhookRef       string
	outage           bool
	failNextCreate   int
	failNextActivate int
	fetchFailures    int
	corruptFetch     bool
	exerciseStatus   string
	exerciseCode     int
}

// newMockEngine creates a mock engine and starts its HTTP test server.
func newMockEngine(t *testing.T) *MockEngine {
	t.Helper()

	me := &MockEngine{
		t:         t,
		artifacts: make(map[string]*engine.Artifact),
		calls:     make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/artifacts", me.handleCreate)
	mux.HandleFunc("POST /api/v1/artifacts/{id}/activate", me.handleActivate)
	mux.HandleFunc("POST /api/v1/artifacts/{id}/deactivate", me.handleDeactivate)
	mux.HandleFunc("GET /api/v1/artifacts/{id}", me.handleFetch)
	mux.HandleFunc("POST /api/v1/artifacts/{id}/exercise", me.handleExercise)

	me.server = httptest.NewServer(mux)
	t.Cleanup(me.server.Close)
	return me
}

// URL returns the base URL of the mock engine server.
func (me *MockEngine) URL() string {
	return me.server.URL
}

// --- failure injection ---

// SetOutage makes every operation answer 503 until cleared.
func (me *MockEngine) SetOutage(down bool) {
	me.mu.Lock()
	defer me.mu.Unlock()
	me.outage = down
}

// FailNextCreate makes the next create call answer with the given status.
func (me *MockEngine) FailNextCreate(status int) {
	me.mu.Lock()
	defer me.mu.Unlock()
	me.failNextCreate = status
}

// FailNextActivate makes the next activate call answer with the given status.
func (me *MockEngine) FailNextActivate(status int) {
	me.mu.Lock()
	defer me.mu.Unlock()
	me.failNextActivate = status
}

// FailFetch makes the next n fetch calls answer 500 before recovering.
func (me *MockEngine) FailFetch(n int) {
	me.mu.Lock()
	defer me.mu.Unlock()
	me.fetchFailures = n
}

// CorruptFetch makes fetch responses drop one node, so the fetched structure
// no longer matches what was deployed.
func (me *MockEngine) CorruptFetch(corrupt bool) {
	me.mu.Lock()
	defer me.mu.Unlock()
	me.corruptFetch = corrupt
}

// SetExerciseStatus overrides the status field of exercise responses.
func (me *MockEngine) SetExerciseStatus(status string) {
	me.mu.Lock()
	defer me.mu.Unlock()
	me.exerciseStatus = status
}

// SetExerciseCode makes exercise answer with the given HTTP status instead of
// a result body. 501 simulates an engine without an execution API.
func (me *MockEngine) SetExerciseCode(code int) {
	me.mu.Lock()
	defer me.mu.Unlock()
	me.exerciseCode = code
}

// SetWebhookRef stamps the given webhook reference onto created artifacts.
func (me *MockEngine) SetWebhookRef(ref string) {
	me.mu.Lock()
	defer me.mu.Unlock()
	me.webhookRef = ref
}

// --- state accessors ---

// Calls returns how many times the named operation was invoked.
func (me *MockEngine) Calls(operation string) int {
	me.mu.Lock()
	defer me.mu.Unlock()
	return me.calls[operation]
}

// Artifact returns a copy of the stored artifact with the given id.
func (me *MockEngine) Artifact(id string) (engine.Artifact, bool) {
	me.mu.Lock()
	defer me.mu.Unlock()
	a, ok := me.artifacts[id]
	if !ok {
		return engine.Artifact{}, false
	}
	return *a, true
}

// ActiveIDs returns the ids of all active artifacts, sorted.
func (me *MockEngine) ActiveIDs() []string {
	me.mu.Lock()
	defer me.mu.Unlock()
	var ids []string
	for id, a := range me.artifacts {
		if a.Active {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// --- handlers ---

// gate counts the call and serves the outage response when one is configured.
// Returns false when the request was already answered.
func (me *MockEngine) gate(w http.ResponseWriter, operation string) bool {
	me.mu.Lock()
	me.calls[operation]++
	down := me.outage
	me.mu.Unlock()
	if down {
		writeEngineJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "engine unavailable"})
		return false
	}
	return true
}

func (me *MockEngine) handleCreate(w http.ResponseWriter, r *http.Request) {
	if !me.gate(w, engine.OpCreateArtifact) {
		return
	}

	me.mu.Lock()
	if status := me.failNextCreate; status != 0 {
		me.failNextCreate = 0
		me.mu.Unlock()
		writeEngineJSON(w, status, map[string]string{"error": "create rejected"})
		return
	}
	var artifact engine.Artifact
	if err := json.NewDecoder(r.Body).Decode(&artifact); err != nil {
		me.mu.Unlock()
		writeEngineJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	me.nextID++
	artifact.ID = fmt.Sprintf("ext-%d", me.nextID)
	artifact.Active = false
	artifact.WebhookRef = me.webhookRef
	me.artifacts[artifact.ID] = &artifact
	me.mu.Unlock()

	writeEngineJSON(w, http.StatusCreated, map[string]string{"id": artifact.ID})
}

func (me *MockEngine) handleActivate(w http.ResponseWriter, r *http.Request) {
	if !me.gate(w, engine.OpActivate) {
		return
	}
	id := r.PathValue("id")

	me.mu.Lock()
	if status := me.failNextActivate; status != 0 {
		me.failNextActivate = 0
		me.mu.Unlock()
		writeEngineJSON(w, status, map[string]string{"error": "activate rejected"})
		return
	}
	a, ok := me.artifacts[id]
	if !ok {
		me.mu.Unlock()
		writeEngineJSON(w, http.StatusNotFound, map[string]string{"error": "no such artifact"})
		return
	}
	a.Active = true
	me.mu.Unlock()

	writeEngineJSON(w, http.StatusOK, map[string]string{"status": "active"})
}

func (me *MockEngine) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	if !me.gate(w, engine.OpDeactivate) {
		return
	}
	id := r.PathValue("id")

	me.mu.Lock()
	a, ok := me.artifacts[id]
	if !ok {
		me.mu.Unlock()
		writeEngineJSON(w, http.StatusNotFound, map[string]string{"error": "no such artifact"})
		return
	}
	a.Active = false
	me.mu.Unlock()

	writeEngineJSON(w, http.StatusOK, map[string]string{"status": "inactive"})
}

func (me *MockEngine) handleFetch(w http.ResponseWriter, r *http.Request) {
	if !me.gate(w, engine.OpFetchArtifact) {
		return
	}
	id := r.PathValue("id")

	me.mu.Lock()
	if me.fetchFailures > 0 {
		me.fetchFailures--
		me.mu.Unlock()
		writeEngineJSON(w, http.StatusInternalServerError, map[string]string{"error": "transient read failure"})
		return
	}
	a, ok := me.artifacts[id]
	if !ok {
		me.mu.Unlock()
		writeEngineJSON(w, http.StatusNotFound, map[string]string{"error": "no such artifact"})
		return
	}
	out := *a
	if me.corruptFetch && len(out.Nodes) > 0 {
		out.Nodes = out.Nodes[:len(out.Nodes)-1]
	}
	me.mu.Unlock()

	writeEngineJSON(w, http.StatusOK, out)
}

func (me *MockEngine) handleExercise(w http.ResponseWriter, r *http.Request) {
	if !me.gate(w, engine.OpExercise) {
		return
	}
	id := r.PathValue("id")

	me.mu.Lock()
	_, ok := me.artifacts[id]
	code := me.exerciseCode
	status := me.exerciseStatus
	me.mu.Unlock()

	if !ok {
		writeEngineJSON(w, http.StatusNotFound, map[string]string{"error": "no such artifact"})
		return
	}
	if code != 0 {
		writeEngineJSON(w, code, map[string]string{"error": "exercise unavailable"})
		return
	}
	if status == "" {
		status = "success"
	}
	writeEngineJSON(w, http.StatusOK, map[string]any{"status": status})
}

func writeEngineJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
