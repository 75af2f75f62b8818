package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"research-chat/backend/pkg/config"
	"research-chat/backend/pkg/logger"
	"research-chat/backend/pkg/resilience"
	"research-chat/backend/session"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Client wraps an OpenAI-compatible chat completion endpoint
type Client struct {
	model        Generator
	provider     string
	modelName    string
	systemPrompt string
	temperature  float64
	breaker      *resilience.CircuitBreaker
	log          *logger.Logger
}

// NewClient builds a client for cfg. It returns ErrNotConfigured when no API key is set.
func NewClient(cfg config.LLMConfig, log *logger.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}

	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
		openai.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}
	if cfg.APIURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.APIURL))
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", cfg.Provider, err)
	}
	return NewClientWithModel(model, cfg, log), nil
}

// NewClientWithModel wraps an existing generator
func NewClientWithModel(model Generator, cfg config.LLMConfig, log *logger.Logger) *Client {
	breakerCfg := resilience.DefaultCircuitBreakerConfig("llm")
	breakerCfg.Timeout = cfg.Timeout
	breakerCfg.RetryTimeout = 30 * time.Second

	provider := cfg.Provider
	if provider == "" {
		provider = "openai"
	}

	return &Client{
		model:        model,
		provider:     provider,
		modelName:    cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		temperature:  cfg.Temperature,
		breaker:      resilience.NewCircuitBreaker(breakerCfg, log),
		log:          log.WithComponent("llm"),
	}
}

// Chat sends the conversation history followed by message and returns the reply
func (c *Client) Chat(ctx context.Context, history []session.Exchange, message string) (Reply, error) {
	messages := BuildMessages(c.systemPrompt, history, message)

	var text string
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		resp, err := c.model.GenerateContent(ctx, messages,
			llms.WithModel(c.modelName),
			llms.WithTemperature(c.temperature),
		)
		if err != nil {
			return err
		}
		if resp == nil || len(resp.Choices) == 0 {
			return ErrEmptyReply
		}
		text = resp.Choices[0].Content
		return nil
	})
	if err != nil {
		return Reply{}, fmt.Errorf("%s completion failed: %w", c.provider, err)
	}

	c.log.Debug("completion received",
		"provider", c.provider,
		"model", c.modelName,
		"history", len(history),
		"reply_chars", len(text),
	)
	return Reply{Text: text, Provider: c.provider}, nil
}

// BuildMessages lays out the prompt: optional system prompt, prior exchanges, then the new message
func BuildMessages(systemPrompt string, history []session.Exchange, message string) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, 2*len(history)+2)
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt))
	}
	for _, e := range history {
		messages = append(messages,
			llms.TextParts(llms.ChatMessageTypeHuman, e.UserMessage),
			llms.TextParts(llms.ChatMessageTypeAI, e.AIResponse),
		)
	}
	return append(messages, llms.TextParts(llms.ChatMessageTypeHuman, message))
}
