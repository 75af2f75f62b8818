package ai

import (
	"context"
	"errors"

	"research-chat/backend/session"

	"github.com/tmc/langchaingo/llms"
)

// ErrNotConfigured is returned when no completion endpoint is configured
var ErrNotConfigured = errors.New("llm provider not configured")

// ErrEmptyReply is returned when the provider answered without any choices
var ErrEmptyReply = errors.New("llm returned no choices")

// Generator is the completion call the client needs; *openai.LLM implements it
type Generator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// Reply is the assistant text together with the provider that produced it
type Reply struct {
	Text     string
	Provider string
}

// Unavailable stands in for the client when no provider is configured
type Unavailable struct{}

func (Unavailable) Chat(context.Context, []session.Exchange, string) (Reply, error) {
	return Reply{}, ErrNotConfigured
}
