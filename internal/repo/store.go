package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-llm-chat/internal/domain"
)

// Store binds the repository functions to one *gorm.DB and bounds every call
// with QueryTimeout. It satisfies the store interfaces declared by the auth
// and services packages, so those packages never see GORM.
//
// Connections are checked out per statement or transaction by database/sql
// and returned on every path, including errors and context cancellation.
type Store struct {
	DB           *gorm.DB
	QueryTimeout time.Duration
}

// NewStore returns a Store over db. A non-positive timeout disables the bound.
func NewStore(db *gorm.DB, queryTimeout time.Duration) *Store {
	return &Store{DB: db, QueryTimeout: queryTimeout}
}

func (s *Store) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.QueryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.QueryTimeout)
}

// Users

func (s *Store) CreateUser(ctx context.Context, username, email, passwordHash string) (*domain.User, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return CreateUser(ctx, s.DB, username, email, passwordHash)
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return FindUserByUsername(ctx, s.DB, username)
}

func (s *Store) UserExists(ctx context.Context, username, email string) (bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return UserExists(ctx, s.DB, username, email)
}

// Sessions

func (s *Store) CreateSession(ctx context.Context, userID uint, title string) (*domain.ChatSession, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return CreateSession(ctx, s.DB, userID, title)
}

func (s *Store) GetSession(ctx context.Context, id string) (*domain.ChatSession, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return GetSession(ctx, s.DB, id)
}

func (s *Store) ListActiveSessions(ctx context.Context, userID uint) ([]domain.ChatSession, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return ListActiveSessions(ctx, s.DB, userID)
}

func (s *Store) CountActiveSessions(ctx context.Context, userID uint) (int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return CountActiveSessions(ctx, s.DB, userID)
}

func (s *Store) ListActiveSessionsPage(ctx context.Context, userID uint, offset, limit int) ([]domain.ChatSession, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return ListActiveSessionsPage(ctx, s.DB, userID, offset, limit)
}

func (s *Store) UpdateSessionTitle(ctx context.Context, id, title string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return UpdateSessionTitle(ctx, s.DB, id, title)
}

func (s *Store) DeactivateSession(ctx context.Context, id string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return DeactivateSession(ctx, s.DB, id)
}

func (s *Store) SessionsStats(ctx context.Context, userID uint) (int64, *time.Time, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return SessionsStats(ctx, s.DB, userID)
}

// Messages

func (s *Store) AppendMessage(ctx context.Context, sessionID string, userID uint, role, content string) (*domain.Message, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return AppendMessage(ctx, s.DB, sessionID, userID, role, content)
}

func (s *Store) AppendExchange(ctx context.Context, sessionID string, userID uint, prompt, reply string) ([]domain.Message, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return AppendExchange(ctx, s.DB, sessionID, userID, prompt, reply)
}

func (s *Store) ListMessages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return ListMessages(ctx, s.DB, sessionID, limit)
}

func (s *Store) CountMessages(ctx context.Context, sessionID string) (int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return CountMessages(ctx, s.DB, sessionID)
}

func (s *Store) ListMessagesPage(ctx context.Context, sessionID string, offset, limit int) ([]domain.Message, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return ListMessagesPage(ctx, s.DB, sessionID, offset, limit)
}

func (s *Store) MessagesStats(ctx context.Context, sessionID string) (int64, uint, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return MessagesStats(ctx, s.DB, sessionID)
}

// Idempotency

func (s *Store) GetIdempotency(ctx context.Context, userID uint, sessionID, key string, now time.Time) (*domain.Idempotency, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return GetIdempotency(ctx, s.DB, userID, sessionID, key, now)
}

func (s *Store) CreateIdempotency(ctx context.Context, userID uint, sessionID, key, response string, status int, ttl time.Duration) (*domain.Idempotency, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return CreateIdempotency(ctx, s.DB, userID, sessionID, key, response, status, ttl)
}

// Ping checks that a pooled connection can reach the database.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
