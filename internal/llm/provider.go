// Package llm adapts completion backends to the Provider interface used by
// the chat services.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tbourn/go-llm-chat/internal/config"
	"github.com/tbourn/go-llm-chat/internal/domain"
)

// Provider produces the assistant reply for an ordered list of turns. The
// last turn is the user's new message.
type Provider interface {
	Complete(ctx context.Context, turns []domain.Turn) (string, error)
}

// New builds the provider selected by cfg.Provider.
func New(cfg config.LLMConfig) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai", "":
		return NewOpenAI(cfg)
	case "echo":
		return Echo{}, nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}

// Echo answers with the last user message. It needs no network and is meant
// for local runs and tests.
type Echo struct{}

func (Echo) Complete(ctx context.Context, turns []domain.Turn) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == domain.RoleUser {
			return "echo: " + turns[i].Content, nil
		}
	}
	return "", fmt.Errorf("%w: no user turn", domain.ErrValidation)
}
