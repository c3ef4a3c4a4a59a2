package integration

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// MockGeneration is an OpenAI-compatible chat-completions server. Tests queue
// the assistant outputs they expect the extractor to receive; once the queue
// drains, the last reply repeats, matching how a real model keeps answering
// the same way for the same conversation.
type MockGeneration struct {
	t      *testing.T
	server *httptest.Server

	mu      sync.Mutex
	replies []genReply
	served  int
	calls   int
}

type genReply struct {
	content string
	status  int
}

// newMockGeneration creates a mock generation service and starts its server.
func newMockGeneration(t *testing.T) *MockGeneration {
	t.Helper()

	mg := &MockGeneration{t: t}
	mg.server = httptest.NewServer(http.HandlerFunc(mg.handle))
	t.Cleanup(mg.server.Close)
	return mg
}

// URL returns the base URL of the mock generation server.
func (mg *MockGeneration) URL() string {
	return mg.server.URL
}

// Reply queues one assistant reply.
func (mg *MockGeneration) Reply(content string) {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	mg.replies = append(mg.replies, genReply{content: content})
}

// FailNext queues one error response with the given HTTP status.
func (mg *MockGeneration) FailNext(status int) {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	mg.replies = append(mg.replies, genReply{status: status})
}

// Calls returns how many completion requests were received.
func (mg *MockGeneration) Calls() int {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	return mg.calls
}

func (mg *MockGeneration) handle(w http.ResponseWriter, r *http.Request) {
	mg.mu.Lock()
	mg.calls++
	var reply genReply
	switch {
	case mg.served < len(mg.replies):
		reply = mg.replies[mg.served]
		mg.served++
	case len(mg.replies) > 0:
		reply = mg.replies[len(mg.replies)-1]
	}
	mg.mu.Unlock()

	if reply.status != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(reply.status)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "generation backend error", "type": "server_error"},
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message": map[string]any{
				"role":    "assistant",
				"content": reply.content,
			},
		}},
	})
}

// IntentStepFixture is one step of an intent reply fixture.
type IntentStepFixture struct {
	Action     string
	Parameters map[string]any
}

// Step builds an IntentStepFixture.
func Step(action string, parameters map[string]any) IntentStepFixture {
	return IntentStepFixture{Action: action, Parameters: parameters}
}

// IntentReply renders the JSON a well-behaved model emits for an intent with
// the given goal, trigger, and steps.
func IntentReply(goal, trigger string, steps ...IntentStepFixture) string {
	out := map[string]any{
		"goal":    goal,
		"trigger": trigger,
	}
	stepList := make([]map[string]any, 0, len(steps))
	for _, s := range steps {
		step := map[string]any{"action": s.Action}
		if len(s.Parameters) > 0 {
			step["parameters"] = s.Parameters
		}
		stepList = append(stepList, step)
	}
	out["steps"] = stepList

	data, err := json.Marshal(out)
	if err != nil {
		panic("marshal intent fixture: " + err.Error())
	}
	return string(data)
}
