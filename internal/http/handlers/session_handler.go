// Session HTTP handlers.
//
// This file exposes REST endpoints for the caller's chat sessions:
//   - POST /sessions                (create)
//   - GET  /sessions                (list active, paginated, ETag support)
//   - PUT  /sessions/{id}/title     (rename)
//   - GET  /sessions/{id}/messages  (durable log, paginated, ETag support)
package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-llm-chat/internal/domain"
)

// CreateSessionRequest is the JSON payload for creating a session.
type CreateSessionRequest struct {
	// Title is optional; "New chat" is used when empty.
	Title string `json:"title" binding:"max=255" example:"Trip planning"`
}

// UpdateSessionTitleRequest is the JSON payload for renaming a session.
type UpdateSessionTitleRequest struct {
	Title string `json:"title" binding:"required,min=1,max=255" example:"Trip planning, Lisbon"`
}

// ListSessionsResponse wraps a page of sessions.
type ListSessionsResponse struct {
	Sessions   []domain.ChatSession `json:"sessions"`
	Pagination Pagination           `json:"pagination"`
}

// ListMessagesResponse wraps a page of the durable log.
type ListMessagesResponse struct {
	SessionID  string           `json:"session_id"`
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

// CreateSession godoc
// @ID          createSession
// @Summary     Create a chat session
// @Tags        Sessions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.CreateSessionRequest  false  "Optional title"
// @Success     201   {object}  domain.ChatSession
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401   {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     502   {object}  handlers.ErrorResponse  "Store unavailable"
// @Router      /sessions [post]
func (h *Handlers) CreateSession(c *gin.Context) {
	u, found := currentUser(c)
	if !found {
		return
	}
	var req CreateSessionRequest
	// An empty body is a valid request for an untitled session.
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
			return
		}
	}
	sess, err := h.sessions.Create(c.Request.Context(), u.ID, req.Title)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusCreated, sess)
}

// ListSessions godoc
// @ID          listSessions
// @Summary     List active sessions (paginated)
// @Description Most recently active first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Sessions
// @Produce     json
// @Security    BearerAuth
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Param       page           query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListSessionsResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string  "Not Modified"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     502  {object}  handlers.ErrorResponse  "Store unavailable"
// @Router      /sessions [get]
func (h *Handlers) ListSessions(c *gin.Context) {
	u, found := currentUser(c)
	if !found {
		return
	}
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if count, maxTS, err := h.sessions.Stats(ctx, u.ID); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.UnixNano()
		}
		etag := fmt.Sprintf(`W/"sessions:%d:%d:%d:%d:%d"`, u.ID, count, ts, page, pageSize)
		if notModified(c, etag) {
			return
		}
	}

	items, total, err := h.sessions.ListPage(ctx, u.ID, page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, ListSessionsResponse{
		Sessions:   items,
		Pagination: newPagination(page, pageSize, total),
	})
}

// UpdateSessionTitle godoc
// @ID          updateSessionTitle
// @Summary     Rename a session
// @Tags        Sessions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string                                true  "Session ID (UUID)"  format(uuid)
// @Param       body  body  handlers.UpdateSessionTitleRequest    true  "New title"
// @Success     204  {string}  string  "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "Session owned by another user"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Router      /sessions/{id}/title [put]
func (h *Handlers) UpdateSessionTitle(c *gin.Context) {
	u, found := currentUser(c)
	if !found {
		return
	}
	sessionID, valid := sessionParam(c)
	if !valid {
		return
	}
	var req UpdateSessionTitleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "title required (1-255 chars)")
		return
	}
	if err := h.sessions.UpdateTitle(c.Request.Context(), u.ID, sessionID, req.Title); err != nil {
		writeError(c, err)
		return
	}
	noContent(c)
}

// ListMessages godoc
// @ID          listMessages
// @Summary     Durable message log of a session (paginated)
// @Description Oldest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Sessions
// @Produce     json
// @Security    BearerAuth
// @Param       id             path    string  true   "Session ID (UUID)"  format(uuid)
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Param       page           query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListMessagesResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string  "Not Modified"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "Session owned by another user"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Router      /sessions/{id}/messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	u, found := currentUser(c)
	if !found {
		return
	}
	sessionID, valid := sessionParam(c)
	if !valid {
		return
	}
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	// Stats authorizes too, so a 304 is never served to a non-owner.
	if count, lastID, err := h.chat.MessagesStats(ctx, u.ID, sessionID); err == nil {
		etag := fmt.Sprintf(`W/"messages:%s:%d:%d:%d:%d"`, sessionID, count, lastID, page, pageSize)
		if notModified(c, etag) {
			return
		}
	}

	items, total, err := h.chat.History(ctx, u.ID, sessionID, page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, ListMessagesResponse{
		SessionID:  sessionID,
		Messages:   items,
		Pagination: newPagination(page, pageSize, total),
	})
}
