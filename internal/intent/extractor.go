package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/intelogroup/clixen-16ace7b7-sub001/model"
)

// extractionPrompt instructs the generation service to emit a single JSON
// object matching the Intent schema. The closed trigger set is stated
// explicitly so out-of-set values can be rejected deterministically.
const extractionPrompt = `You convert a user's automation request into a JSON object.
Respond with ONLY a JSON object, no prose, using this schema:
{
  "goal": "<one-sentence summary of what the user wants>",
  "trigger": "<one of: manual, schedule, webhook, event>",
  "steps": [{"action": "<one of: fetch, notify, transform, filter, delay, branch>", "parameters": {}}],
  "constraints": {"max_nodes": 0, "allowed_integrations": []}
}
Omit constraints fields you cannot infer. Steps must be in execution order.`

// Extractor produces a structured Intent from conversation text.
type Extractor struct {
	generator Generator
	logger    *zap.Logger
}

// NewExtractor creates an Extractor over the given generation service.
func NewExtractor(generator Generator, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{generator: generator, logger: logger}
}

// rawIntent is the wire shape the generation service emits.
type rawIntent struct {
	Goal    string `json:"goal"`
	Trigger string `json:"trigger"`
	Steps   []struct {
		Action     string         `json:"action"`
		Parameters map[string]any `json:"parameters"`
	} `json:"steps"`
	Constraints struct {
		MaxNodes            int      `json:"max_nodes"`
		AllowedIntegrations []string `json:"allowed_integrations"`
	} `json:"constraints"`
}

// Extract calls the generation service with the user's message and parses the
// response into a complete Intent. The returned Intent always replaces the
// prior one wholesale; its Version is prior's plus one. Every failure mode is
// a recoverable extraction error asking the user to rephrase.
func (e *Extractor) Extract(ctx context.Context, text string, prior *model.Intent) (*model.Intent, error) {
	out, err := e.generator.Generate(ctx, extractionPrompt, text)
	if err != nil {
		e.logger.Warn("intent generation failed", zap.Error(err))
		return nil, model.NewExtractionError(
			"I couldn't process that request right now. Please try rephrasing it.")
	}

	raw, err := parseRawIntent(out)
	if err != nil {
		e.logger.Debug("intent output unparseable", zap.Error(err), zap.String("output", out))
		return nil, model.NewExtractionError(
			"I couldn't understand that as an automation request. Please describe what should trigger it and what it should do.")
	}

	if raw.Goal == "" {
		return nil, model.NewExtractionError(
			"I couldn't work out the goal of the automation. Please describe what it should accomplish.")
	}
	if !model.KnownTrigger(raw.Trigger) {
		return nil, model.NewExtractionError(
			"I couldn't work out how the automation should start. Tell me whether it runs manually, on a schedule, from a webhook, or on an event.")
	}

	version := 1
	if prior != nil {
		version = prior.Version + 1
	}

	intent := &model.Intent{
		Goal:    raw.Goal,
		Trigger: raw.Trigger,
		Steps:   make([]model.IntentStep, 0, len(raw.Steps)),
		Constraints: model.IntentConstraints{
			MaxNodes:            raw.Constraints.MaxNodes,
			AllowedIntegrations: raw.Constraints.AllowedIntegrations,
		},
		Version: version,
	}
	for _, s := range raw.Steps {
		if s.Action == "" {
			continue
		}
		intent.Steps = append(intent.Steps, model.IntentStep{
			Action:     s.Action,
			Parameters: s.Parameters,
		})
	}

	return intent, nil
}

// parseRawIntent decodes the generation output, tolerating a fenced code
// block or surrounding prose around the JSON object.
func parseRawIntent(out string) (rawIntent, error) {
	var raw rawIntent

	trimmed := strings.TrimSpace(out)
	if trimmed == "" {
		return raw, fmt.Errorf("empty generation output")
	}

	// Cut anything outside the outermost braces.
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start < 0 || end <= start {
		return raw, fmt.Errorf("no JSON object in output")
	}

	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &raw); err != nil {
		return raw, fmt.Errorf("decode intent JSON: %w", err)
	}
	return raw, nil
}
