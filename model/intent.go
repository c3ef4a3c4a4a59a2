package model

// Trigger kinds an intent may carry. The set is closed; extraction maps
// anything else to a recoverable error.
const (
	TriggerManual   = "manual"
	TriggerSchedule = "schedule"
	TriggerWebhook  = "webhook"
	TriggerEvent    = "event"
)

// KnownTrigger reports whether t is a member of the closed trigger set.
func KnownTrigger(t string) bool {
	switch t {
	case TriggerManual, TriggerSchedule, TriggerWebhook, TriggerEvent:
		return true
	}
	return false
}

// IntentStep is one abstract action the user wants the automation to take.
type IntentStep struct {
	Action     string         `json:"action"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// IntentConstraints bound what the designer may produce.
type IntentConstraints struct {
	MaxNodes            int      `json:"max_nodes,omitempty"`
	AllowedIntegrations []string `json:"allowed_integrations,omitempty"`
}

// Intent is the structured extraction of what the user wants. It is owned by
// the session and replaced wholesale on every re-extraction; Version counts
// replacements so stale artifacts are detectable. Field-by-field merging is
// deliberately unsupported.
type Intent struct {
	Goal        string            `json:"goal"`
	Trigger     string            `json:"trigger"`
	Steps       []IntentStep      `json:"steps"`
	Constraints IntentConstraints `json:"constraints"`
	Version     int               `json:"version"`
}
