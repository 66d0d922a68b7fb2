// Package llm provides completion and embedding clients for the hosted
// model providers. Clients are thin transports: one request, one parsed
// response, an error otherwise. Retry, backoff, and budget enforcement
// belong to the caller.
package llm

import (
	"context"
	"fmt"
	"os"
)

// Provider represents an LLM provider
type Provider string

const (
	ProviderGoogle    Provider = "google"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// Default models used when the caller does not pick one.
const (
	DefaultGoogleModel    = "gemini-2.5-flash"
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultAnthropicModel = "claude-sonnet-4-20250514"
)

// Prompt is a single completion request. System carries instructions,
// User carries the content to act on.
type Prompt struct {
	System string
	User   string
}

// Completion is a provider response with token accounting.
type Completion struct {
	Text         string `json:"text"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	Model        string `json:"model"`
}

// TotalTokens returns input plus output tokens.
func (c *Completion) TotalTokens() int {
	return c.InputTokens + c.OutputTokens
}

// Completer is the abstract completion capability.
type Completer interface {
	Complete(ctx context.Context, prompt Prompt) (*Completion, error)
	Provider() Provider
	Model() string
}

// envKeys maps each provider to its API key environment variable.
var envKeys = map[Provider]string{
	ProviderGoogle:    "GOOGLE_API_KEY",
	ProviderOpenAI:    "OPENAI_API_KEY",
	ProviderAnthropic: "ANTHROPIC_API_KEY",
}

// New creates a Completer for the given provider, reading the API key
// from the provider's environment variable. An empty model selects the
// provider default.
func New(provider Provider, model string) (Completer, error) {
	envKey, ok := envKeys[provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
	apiKey := os.Getenv(envKey)
	if apiKey == "" {
		return nil, fmt.Errorf("%s environment variable required", envKey)
	}

	switch provider {
	case ProviderGoogle:
		if model == "" {
			model = DefaultGoogleModel
		}
		return NewGoogleClient(apiKey, model), nil
	case ProviderOpenAI:
		if model == "" {
			model = DefaultOpenAIModel
		}
		return NewOpenAIClient(apiKey, model), nil
	default:
		if model == "" {
			model = DefaultAnthropicModel
		}
		return NewAnthropicClient(apiKey, model), nil
	}
}
