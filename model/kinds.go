package model

// Node kinds the core understands. Trigger kinds mark graph entry nodes; the
// remaining kinds are executable steps. The external engine's supported set is
// checked separately against the cached node-kind catalog.
const (
	KindManualTrigger   = "manual-trigger"
	KindScheduleTrigger = "schedule-trigger"
	KindWebhookTrigger  = "webhook-trigger"
	KindEventTrigger    = "event-trigger"

	KindFetch     = "fetch"
	KindNotify    = "notify"
	KindTransform = "transform"
	KindFilter    = "filter"
	KindDelay     = "delay"
	KindBranch    = "branch"
	KindTerminal  = "terminal"

	// KindAnnotation carries no behavior. It is the one kind a validator may
	// drop when unreachable instead of failing the graph.
	KindAnnotation = "annotation"
)

// Parameter value types.
const (
	ParamString = "string"
	ParamNumber = "number"
	ParamBool   = "bool"
	ParamObject = "object"
)

// ParamSpec describes one parameter a node kind accepts. Required parameters
// must be present for validation to pass; optional ones are filled with the
// default by the validator's auto-fix pass. The designer pre-fills defaults
// for both so freshly designed graphs validate clean.
type ParamSpec struct {
	Name     string
	Type     string
	Required bool
	Default  any
}

// KindSpec describes a node kind's parameters and structural role.
type KindSpec struct {
	Params []ParamSpec
	// Terminal kinds may have zero outgoing edges.
	Terminal bool
	// Optional kinds may be removed by auto-fix when unreachable.
	Optional bool
}

// KindSpecs is the closed table of node kinds, keyed by kind name.
var KindSpecs = map[string]KindSpec{
	KindManualTrigger: {},
	KindScheduleTrigger: {
		Params: []ParamSpec{
			{Name: "cron", Type: ParamString, Required: true, Default: "0 9 * * *"},
			{Name: "timezone", Type: ParamString, Default: "UTC"},
		},
	},
	KindWebhookTrigger: {
		Params: []ParamSpec{
			{Name: "path", Type: ParamString, Required: true, Default: "/hooks/incoming"},
			{Name: "method", Type: ParamString, Default: "POST"},
		},
	},
	KindEventTrigger: {
		Params: []ParamSpec{
			{Name: "topic", Type: ParamString, Required: true, Default: "events"},
		},
	},
	KindFetch: {
		Params: []ParamSpec{
			{Name: "url", Type: ParamString, Required: true, Default: "https://example.internal/data"},
			{Name: "method", Type: ParamString, Default: "GET"},
			{Name: "headers", Type: ParamObject, Default: map[string]any{}},
		},
	},
	KindNotify: {
		Terminal: true,
		Params: []ParamSpec{
			{Name: "channel", Type: ParamString, Required: true, Default: "email"},
			{Name: "message", Type: ParamString, Default: ""},
		},
	},
	KindTransform: {
		Params: []ParamSpec{
			{Name: "expression", Type: ParamString, Required: true, Default: "$"},
		},
	},
	KindFilter: {
		Params: []ParamSpec{
			{Name: "condition", Type: ParamString, Required: true, Default: "true"},
		},
	},
	KindDelay: {
		Params: []ParamSpec{
			{Name: "seconds", Type: ParamNumber, Default: float64(60)},
		},
	},
	KindBranch: {
		Params: []ParamSpec{
			{Name: "condition", Type: ParamString, Required: true, Default: "true"},
		},
	},
	KindTerminal:   {Terminal: true},
	KindAnnotation: {Terminal: true, Optional: true, Params: []ParamSpec{{Name: "note", Type: ParamString, Default: ""}}},
}

// TriggerKindFor maps a trigger name from the closed trigger set to its entry
// node kind. Returns "" for unknown triggers.
func TriggerKindFor(trigger string) string {
	switch trigger {
	case TriggerManual:
		return KindManualTrigger
	case TriggerSchedule:
		return KindScheduleTrigger
	case TriggerWebhook:
		return KindWebhookTrigger
	case TriggerEvent:
		return KindEventTrigger
	}
	return ""
}

// IsTriggerKind reports whether kind is an entry node kind.
func IsTriggerKind(kind string) bool {
	switch kind {
	case KindManualTrigger, KindScheduleTrigger, KindWebhookTrigger, KindEventTrigger:
		return true
	}
	return false
}

// AllKinds returns every kind in KindSpecs in a stable order. Trigger kinds
// come first, then steps alphabetically.
func AllKinds() []string {
	return []string{
		KindManualTrigger, KindScheduleTrigger, KindWebhookTrigger, KindEventTrigger,
		KindAnnotation, KindBranch, KindDelay, KindFetch, KindFilter,
		KindNotify, KindTerminal, KindTransform,
	}
}
