// Package services – SessionService
//
// SessionService manages the lifecycle of chat sessions: creation, paginated
// listing, renaming and the stats behind weak ETags. Every call that targets
// an existing session goes through the Authorizer first.
package services

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-llm-chat/internal/domain"
	"github.com/tbourn/go-llm-chat/internal/repo"
	"github.com/tbourn/go-llm-chat/internal/utils"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// SessionService provides session-level operations.
type SessionService struct {
	Sessions SessionStore
	Auth     Authorizer
	Titles   Titler
}

func NewSessionService(sessions SessionStore, auth Authorizer, titles Titler) *SessionService {
	return &SessionService{Sessions: sessions, Auth: auth, Titles: titles}
}

// Create opens a new active session for userID. A blank title becomes the
// placeholder title, which the first chat turn may replace.
func (s *SessionService) Create(ctx context.Context, userID uint, title string) (*domain.ChatSession, error) {
	ctx, span := otel.Tracer("services/SessionService").Start(ctx, "Create",
		trace.WithAttributes(attribute.Int("user.id", int(userID))))
	defer span.End()

	title = s.Titles.Normalize(title)
	if title == "" {
		title = domain.DefaultSessionTitle
	}
	sess, err := s.Sessions.CreateSession(ctx, userID, title)
	if err != nil {
		return nil, dependency("create session", err)
	}
	return sess, nil
}

// ListPage returns a page of the user's active sessions, most recently
// updated first, with the total count.
func (s *SessionService) ListPage(ctx context.Context, userID uint, page, pageSize int) ([]domain.ChatSession, int64, error) {
	ctx, span := otel.Tracer("services/SessionService").Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.Int("user.id", int(userID)),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		))
	defer span.End()

	_, size, offset := utils.Page(page, pageSize, defaultPageSize, maxPageSize)

	total, err := s.Sessions.CountActiveSessions(ctx, userID)
	if err != nil {
		return nil, 0, dependency("count sessions", err)
	}
	if total == 0 {
		return []domain.ChatSession{}, 0, nil
	}
	items, err := s.Sessions.ListActiveSessionsPage(ctx, userID, offset, size)
	if err != nil {
		return nil, 0, dependency("list sessions", err)
	}
	return items, total, nil
}

// UpdateTitle renames a session the user owns. A blank title becomes
// "Untitled".
func (s *SessionService) UpdateTitle(ctx context.Context, userID uint, sessionID, title string) error {
	ctx, span := otel.Tracer("services/SessionService").Start(ctx, "UpdateTitle",
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	if _, err := s.Auth.Authorize(ctx, sessionID, userID); err != nil {
		return err
	}
	title = s.Titles.Normalize(title)
	if title == "" {
		title = defaultTitleUntitled
	}
	err := s.Sessions.UpdateSessionTitle(ctx, sessionID, title)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return ErrSessionNotFound
	case err != nil:
		return dependency("rename session", err)
	}
	return nil
}

// Stats returns the active session count and newest update time for userID.
func (s *SessionService) Stats(ctx context.Context, userID uint) (int64, *time.Time, error) {
	n, ts, err := s.Sessions.SessionsStats(ctx, userID)
	if err != nil {
		return 0, nil, dependency("session stats", err)
	}
	return n, ts, nil
}
