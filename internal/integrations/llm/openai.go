package llm

import (
	"context"
	"fmt"
	"log"

	"github.com/sashabaranov/go-openai"

	"mkulima/internal/domain"
	"mkulima/internal/httpx"
)

// openAIClient serves OpenAI and every OpenAI-compatible endpoint (Groq).
type openAIClient struct {
	provider string
	model    string
	client   *openai.Client
}

func newOpenAIClient(provider, apiKey, model, baseURL string) *openAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = httpx.ExternalHTTPClient()
	return &openAIClient{
		provider: provider,
		model:    model,
		client:   openai.NewClientWithConfig(cfg),
	}
}

func (c *openAIClient) Complete(ctx context.Context, messages []domain.ChatMessage, opts CompletionOptions) (string, Usage, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
		Temperature: float32(opts.Temperature),
		MaxTokens:   opts.MaxTokens,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	if opts.JSON {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		log.Printf("llm %s error: %v", c.provider, err)
		return "", Usage{}, fmt.Errorf("%s API error: %w", c.provider, err)
	}
	usage := Usage{
		InputTokens:  int64(resp.Usage.PromptTokens),
		OutputTokens: int64(resp.Usage.CompletionTokens),
	}
	if len(resp.Choices) == 0 {
		return "", usage, fmt.Errorf("no choices in %s response", c.provider)
	}
	content := resp.Choices[0].Message.Content
	log.Printf("llm %s response model=%s size=%d tokens_in=%d tokens_out=%d", c.provider, c.model, len(content), usage.InputTokens, usage.OutputTokens)
	return content, usage, nil
}
