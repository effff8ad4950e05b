package llm

import (
	"context"
	"log"
	"time"

	"mkulima/internal/domain"
)

// Observer is told about every completed provider call.
type Observer func(op string, elapsed time.Duration, usage Usage, err error)

// Generator pairs a Client with the insight and chat prompts. A Generator
// without a client answers every call with ErrNotConfigured.
type Generator struct {
	client      Client
	temperature float64
	maxTokens   int
	observe     Observer
}

func NewGenerator(client Client, chatTemperature float64, chatMaxTokens int) *Generator {
	return &Generator{client: client, temperature: chatTemperature, maxTokens: chatMaxTokens}
}

func (g *Generator) SetObserver(o Observer) {
	g.observe = o
}

func (g *Generator) Configured() bool {
	return g != nil && g.client != nil
}

// Insight returns the narrative agronomy report for snap.
func (g *Generator) Insight(ctx context.Context, snap domain.Snapshot) (string, error) {
	system, user, err := BuildInsightPrompts(snap)
	if err != nil {
		return "", err
	}
	return g.complete(ctx, "insight", []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: system},
		{Role: domain.RoleUser, Content: user},
	}, CompletionOptions{})
}

// StructuredInsight returns the report as structured fields. An unparseable
// reply is not an error; it yields the empty payload.
func (g *Generator) StructuredInsight(ctx context.Context, snap domain.Snapshot) (domain.StructuredInsight, error) {
	system, user, err := BuildStructuredInsightPrompts(snap)
	if err != nil {
		return domain.StructuredInsight{}, err
	}
	text, err := g.complete(ctx, "structured_insight", []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: system},
		{Role: domain.RoleUser, Content: user},
	}, CompletionOptions{JSON: true})
	if err != nil {
		return domain.StructuredInsight{}, err
	}
	parsed, ok := ParseStructuredInsight(text)
	if !ok {
		log.Printf("llm structured insight unparseable size=%d, returning empty payload", len(text))
	}
	return parsed, nil
}

// Chat answers message in the context of history. The returned transcript
// includes the system prompt and ends with the assistant reply.
func (g *Generator) Chat(ctx context.Context, history []domain.ChatTurn, message string) (string, []domain.ChatMessage, error) {
	messages := BuildChatMessages(history, message)
	reply, err := g.complete(ctx, "chat", messages, CompletionOptions{
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	})
	if err != nil {
		return "", nil, err
	}
	return reply, append(messages, domain.ChatMessage{Role: domain.RoleAssistant, Content: reply}), nil
}

func (g *Generator) complete(ctx context.Context, op string, messages []domain.ChatMessage, opts CompletionOptions) (string, error) {
	if !g.Configured() {
		return "", ErrNotConfigured
	}
	start := time.Now()
	text, usage, err := g.client.Complete(ctx, messages, opts)
	if g.observe != nil {
		g.observe(op, time.Since(start), usage, err)
	}
	return text, err
}
