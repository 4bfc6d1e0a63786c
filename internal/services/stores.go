package services

import (
	"context"
	"time"

	"github.com/tbourn/go-llm-chat/internal/domain"
)

// UserStore is the account persistence used by AuthService.
type UserStore interface {
	CreateUser(ctx context.Context, username, email, passwordHash string) (*domain.User, error)
	FindUserByUsername(ctx context.Context, username string) (*domain.User, error)
	UserExists(ctx context.Context, username, email string) (bool, error)
}

// SessionStore is the session persistence used by SessionService and
// ChatService.
type SessionStore interface {
	CreateSession(ctx context.Context, userID uint, title string) (*domain.ChatSession, error)
	GetSession(ctx context.Context, id string) (*domain.ChatSession, error)
	CountActiveSessions(ctx context.Context, userID uint) (int64, error)
	ListActiveSessionsPage(ctx context.Context, userID uint, offset, limit int) ([]domain.ChatSession, error)
	UpdateSessionTitle(ctx context.Context, id, title string) error
	DeactivateSession(ctx context.Context, id string) error
	SessionsStats(ctx context.Context, userID uint) (int64, *time.Time, error)
}

// MessageStore is the append-only message log.
type MessageStore interface {
	AppendExchange(ctx context.Context, sessionID string, userID uint, prompt, reply string) ([]domain.Message, error)
	ListMessages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error)
	CountMessages(ctx context.Context, sessionID string) (int64, error)
	ListMessagesPage(ctx context.Context, sessionID string, offset, limit int) ([]domain.Message, error)
	MessagesStats(ctx context.Context, sessionID string) (int64, uint, error)
}

// Authorizer is the session ownership check.
type Authorizer interface {
	Authorize(ctx context.Context, sessionID string, userID uint) (*domain.ChatSession, error)
}

// ConversationCache is the per-session turn cache.
type ConversationCache interface {
	LoadChecked(ctx context.Context, sessionID string) ([]domain.Turn, bool, error)
	Save(ctx context.Context, sessionID string, turns []domain.Turn) error
	Append(ctx context.Context, sessionID, role, content string) error
	Delete(ctx context.Context, sessionID string) error
}
