// Package handlers exposes the public HTTP API on top of the services layer.
//
// Handlers are transport-thin. They bind and validate input, call a service
// interface and translate the result or the error kind into a response.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-llm-chat/internal/domain"
	"github.com/tbourn/go-llm-chat/internal/http/middleware"
	"github.com/tbourn/go-llm-chat/internal/services"
	"github.com/tbourn/go-llm-chat/internal/utils"
)

//
// Service contracts (context-aware)
//

// AuthService registers accounts and issues access tokens.
type AuthService interface {
	Register(ctx context.Context, in services.Registration) (*domain.User, error)
	Login(ctx context.Context, username, password string) (*services.AccessToken, error)
}

// SessionService manages the caller's chat sessions.
type SessionService interface {
	Create(ctx context.Context, userID uint, title string) (*domain.ChatSession, error)
	ListPage(ctx context.Context, userID uint, page, pageSize int) ([]domain.ChatSession, int64, error)
	UpdateTitle(ctx context.Context, userID uint, sessionID, title string) error
	// Stats returns the active session count and newest updated_at for ETags.
	Stats(ctx context.Context, userID uint) (int64, *time.Time, error)
}

// ChatService runs chat turns and exposes conversation history.
type ChatService interface {
	SimpleChat(ctx context.Context, message string) (string, error)
	// ChatWithHistory runs an authenticated turn when user is set and an
	// anonymous one when it is nil.
	ChatWithHistory(ctx context.Context, user *domain.User, message, sessionID string) (string, string, error)
	Conversation(ctx context.Context, userID uint, sessionID string) ([]domain.Turn, error)
	DeleteConversation(ctx context.Context, userID uint, sessionID string) error
	History(ctx context.Context, userID uint, sessionID string, page, pageSize int) ([]domain.Message, int64, error)
	MessagesStats(ctx context.Context, userID uint, sessionID string) (int64, uint, error)
	// Authorize fails unless the session exists, is active and belongs to
	// userID.
	Authorize(ctx context.Context, userID uint, sessionID string) error
}

// IdempotencyStore records completed chat turns for replay.
type IdempotencyStore interface {
	GetIdempotency(ctx context.Context, userID uint, sessionID, key string, now time.Time) (*domain.Idempotency, error)
	CreateIdempotency(ctx context.Context, userID uint, sessionID, key, response string, status int, ttl time.Duration) (*domain.Idempotency, error)
}

// Pinger is a liveness probe for a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

//
// Handler wiring
//

// Handlers groups all endpoints behind their service interfaces.
type Handlers struct {
	auth     AuthService
	sessions SessionService
	chat     ChatService
	idem     IdempotencyStore
	idemTTL  time.Duration
	cache    Pinger
	database Pinger
	now      func() time.Time
}

// Options carries the optional collaborators of Handlers.
type Options struct {
	// Idempotency enables Idempotency-Key replay on POST /chat when set.
	Idempotency    IdempotencyStore
	IdempotencyTTL time.Duration
	// Cache and Database back GET /health; nil probes report "unknown".
	Cache    Pinger
	Database Pinger
}

const defaultIdempotencyTTL = 24 * time.Hour

// New binds handlers to their services.
func New(auth AuthService, sessions SessionService, chat ChatService, opts Options) *Handlers {
	ttl := opts.IdempotencyTTL
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	return &Handlers{
		auth:     auth,
		sessions: sessions,
		chat:     chat,
		idem:     opts.Idempotency,
		idemTTL:  ttl,
		cache:    opts.Cache,
		database: opts.Database,
		now:      time.Now,
	}
}

//
// DTOs shared by several endpoints
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := utils.TotalPages(total, pageSize)
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

//
// Helpers
//

// statusSuccess is the status field of the chat envelopes.
const statusSuccess = "success"

// currentUser returns the authenticated caller. Routes using it sit behind
// middleware.RequireUser, so a miss is answered with 401 and false.
func currentUser(c *gin.Context) (*domain.User, bool) {
	u, found := middleware.CurrentUser(c)
	if !found {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return nil, false
	}
	return u, true
}

// sessionParam reads the ":id" path parameter and requires a UUID.
func sessionParam(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session id must be a UUID")
		return "", false
	}
	return id, true
}

// clampPagination parses page and page_size with defaults 1 and 20 and caps
// page_size at 100.
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page, pageSize, _ = utils.Page(
		utils.AtoiDefault(c.Query("page"), 1),
		utils.AtoiDefault(c.Query("page_size"), defaultPageSize),
		defaultPageSize, maxPageSize,
	)
	return page, pageSize
}

// notModified sets the weak ETag and reports whether If-None-Match matched,
// in which case 304 has been written.
func notModified(c *gin.Context, etag string) bool {
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return true
	}
	return false
}
