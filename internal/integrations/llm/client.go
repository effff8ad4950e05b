// Package llm talks to the chat-completion providers and turns cached
// predictions into insight and chat prompts.
package llm

import (
	"context"
	"errors"

	"mkulima/internal/config"
	"mkulima/internal/domain"
)

var ErrNotConfigured = errors.New("language model is not configured")

const (
	defaultGroqModel      = "llama-3.3-70b-versatile"
	defaultOpenAIModel    = "gpt-4o-mini"
	defaultAnthropicModel = "claude-sonnet-4-5-20250929"

	groqBaseURL = "https://api.groq.com/openai/v1"
)

type CompletionOptions struct {
	Temperature float64 // 0 leaves the provider default
	MaxTokens   int     // 0 leaves the provider default
	JSON        bool
}

type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

func (u Usage) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens
}

// Client sends one chat transcript and returns the assistant's reply.
type Client interface {
	Complete(ctx context.Context, messages []domain.ChatMessage, opts CompletionOptions) (string, Usage, error)
}

// NewClient builds the client for cfg.LLMProvider. It returns
// ErrNotConfigured when the provider has no API key.
func NewClient(cfg config.Config) (Client, error) {
	key := cfg.LLMAPIKey()
	if key == "" {
		return nil, ErrNotConfigured
	}
	switch cfg.LLMProvider {
	case config.ProviderAnthropic:
		return newAnthropicClient(key, modelOrDefault(cfg.LLMModel, defaultAnthropicModel), cfg.LLMBaseURL), nil
	case config.ProviderOpenAI:
		return newOpenAIClient(config.ProviderOpenAI, key, modelOrDefault(cfg.LLMModel, defaultOpenAIModel), cfg.LLMBaseURL), nil
	default:
		baseURL := cfg.LLMBaseURL
		if baseURL == "" {
			baseURL = groqBaseURL
		}
		return newOpenAIClient(config.ProviderGroq, key, modelOrDefault(cfg.LLMModel, defaultGroqModel), baseURL), nil
	}
}

func modelOrDefault(model, fallback string) string {
	if model == "" {
		return fallback
	}
	return model
}
