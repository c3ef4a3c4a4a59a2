// Package intent turns free-text user messages into a structured model.Intent
// via a text-generation service. The generation call is a black box with an
// explicit timeout; empty or malformed output is a recoverable extraction
// error, never a crash.
package intent

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/intelogroup/clixen-16ace7b7-sub001/internal/config"
)

// Generator is a single request/response call to a text-generation service.
type Generator interface {
	Generate(ctx context.Context, prompt, context string) (string, error)
}

// OpenAIGenerator implements Generator against an OpenAI-compatible
// chat-completions API.
type OpenAIGenerator struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAIGenerator creates a generator from configuration. The timeout is
// capped at the hard generation limit regardless of configuration.
func NewOpenAIGenerator(cfg config.GenerationConfig, apiKey string) *OpenAIGenerator {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	timeout := cfg.Timeout
	if timeout <= 0 || timeout > config.MaxGenerationTimeout {
		timeout = config.MaxGenerationTimeout
	}

	return &OpenAIGenerator{
		client:  openai.NewClient(opts...),
		model:   cfg.Model,
		timeout: timeout,
	}
}

// Generate sends one chat completion request and returns the raw text of the
// first choice. The call runs under the configured timeout; on expiry the
// context error is returned and the caller treats it like any other failure.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt, contextText string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(prompt),
	}
	if contextText != "" {
		messages = append(messages, openai.UserMessage(contextText))
	}

	completion, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(g.model),
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("generation request: %w", err)
	}

	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("generation returned no choices")
	}
	return completion.Choices[0].Message.Content, nil
}
