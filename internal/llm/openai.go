package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/tbourn/go-llm-chat/internal/config"
	"github.com/tbourn/go-llm-chat/internal/domain"
)

// generator is the part of llms.Model the adapter needs.
type generator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// OpenAI completes chats through an OpenAI-compatible chat completions API.
type OpenAI struct {
	model       generator
	temperature float64
}

// NewOpenAI builds a client from cfg. BaseURL is optional and points the
// client at an OpenAI-compatible gateway.
func NewOpenAI(cfg config.LLMConfig) (*OpenAI, error) {
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("llm: openai client: %w", err)
	}
	return &OpenAI{model: client, temperature: cfg.Temperature}, nil
}

func (o *OpenAI) Complete(ctx context.Context, turns []domain.Turn) (string, error) {
	msgs := toMessages(turns)
	if len(msgs) == 0 {
		return "", fmt.Errorf("%w: empty conversation", domain.ErrValidation)
	}
	resp, err := o.model.GenerateContent(ctx, msgs, llms.WithTemperature(o.temperature))
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return "", errors.New("llm: empty completion")
	}
	return resp.Choices[0].Content, nil
}

// toMessages maps user turns to human messages and assistant turns to AI
// messages, dropping any other role.
func toMessages(turns []domain.Turn) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case domain.RoleUser:
			out = append(out, llms.TextParts(llms.ChatMessageTypeHuman, t.Content))
		case domain.RoleAssistant:
			out = append(out, llms.TextParts(llms.ChatMessageTypeAI, t.Content))
		}
	}
	return out
}
