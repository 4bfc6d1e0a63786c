package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/tbourn/go-llm-chat/internal/domain"
	"github.com/tbourn/go-llm-chat/internal/repo"
)

// SessionGetter loads a session by id. repo.Store satisfies it.
type SessionGetter interface {
	GetSession(ctx context.Context, id string) (*domain.ChatSession, error)
}

// SessionAuthorizer decides whether a user may act on a session. Services call
// it before touching the cache or the message log of any session.
type SessionAuthorizer struct {
	sessions SessionGetter
}

func NewSessionAuthorizer(sessions SessionGetter) *SessionAuthorizer {
	return &SessionAuthorizer{sessions: sessions}
}

// Authorize returns the session when it exists, is active and belongs to
// userID. Missing or inactive sessions yield domain.ErrNotFound; sessions owned
// by someone else yield domain.ErrForbidden; store failures yield
// domain.ErrDependency.
func (a *SessionAuthorizer) Authorize(ctx context.Context, sessionID string, userID uint) (*domain.ChatSession, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session_id is required", domain.ErrValidation)
	}
	s, err := a.sessions.GetSession(ctx, sessionID)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return nil, fmt.Errorf("%w: session %s", domain.ErrNotFound, sessionID)
	case err != nil:
		return nil, fmt.Errorf("%w: load session: %w", domain.ErrDependency, err)
	}
	if !s.IsActive {
		return nil, fmt.Errorf("%w: session %s", domain.ErrNotFound, sessionID)
	}
	if s.UserID != userID {
		return nil, fmt.Errorf("%w: session %s", domain.ErrForbidden, sessionID)
	}
	return s, nil
}
