// Chat HTTP handlers.
//
// This file exposes the chat endpoints:
//   - POST   /chat               (authenticated turn with history)
//   - POST   /simple-chat        (single stateless turn)
//   - POST   /anonymous/chat     (cache-only turn, when enabled)
//   - GET    /conversation/{id}  (cached conversation, rebuilt on miss)
//   - DELETE /conversation/{id}  (deactivate session and evict cache)
//
// Idempotency:
// When the client sends an Idempotency-Key and a completed turn exists for
// (user, session, key), POST /chat returns the recorded response with
// `Idempotency-Replayed: true` and does not call the provider again. The
// session must still be active and owned by the caller.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/tbourn/go-llm-chat/internal/domain"
	"github.com/tbourn/go-llm-chat/internal/http/middleware"
	"github.com/tbourn/go-llm-chat/internal/repo"
)

// ChatRequest is the JSON payload of a chat turn.
type ChatRequest struct {
	Message string `json:"message" example:"What is the capital of France?"`
	// SessionID is required for authenticated turns. Anonymous turns may omit
	// it to start a new conversation.
	SessionID string `json:"session_id,omitempty" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
}

// SimpleChatRequest is the JSON payload of a stateless turn.
type SimpleChatRequest struct {
	Message string `json:"message" example:"Tell me a joke"`
}

// ChatResponse is returned by POST /chat and POST /anonymous/chat.
type ChatResponse struct {
	Response  string `json:"response"   example:"The capital of France is Paris."`
	SessionID string `json:"session_id" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	Status    string `json:"status"     example:"success"`
}

// SimpleChatResponse is returned by POST /simple-chat.
type SimpleChatResponse struct {
	Response string `json:"response" example:"Why did the gopher cross the road?"`
	Status   string `json:"status"   example:"success"`
}

// ConversationResponse is returned by GET /conversation/{id}.
type ConversationResponse struct {
	SessionID    string        `json:"session_id"`
	Conversation []domain.Turn `json:"conversation"`
	Status       string        `json:"status" example:"success"`
}

// DeleteResponse is returned by DELETE /conversation/{id}.
type DeleteResponse struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message" example:"conversation deleted"`
	Status    string `json:"status"  example:"success"`
}

// Chat godoc
// @ID          chat
// @Summary     Send a message within a session
// @Description Loads recent history, calls the model and appends both turns to the durable log and the cache.
// @Description Supports idempotency via the Idempotency-Key header (same key, same session: same result).
// @Tags        Chat
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header  string                true  "Idempotency key for safe retries"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.ChatRequest  true  "Message and session"
// @Success     200  {object}  handlers.ChatResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     403  {object}  handlers.ErrorResponse  "Session owned by another user"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Failure     502  {object}  handlers.ErrorResponse  "Provider or store failed"
// @Failure     504  {object}  handlers.ErrorResponse  "Provider timed out"
// @Router      /chat [post]
func (h *Handlers) Chat(c *gin.Context) {
	u, found := currentUser(c)
	if !found {
		return
	}
	var req ChatRequest
	// ShouldBindBodyWith keeps the body for the idempotency scope peek.
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	ctx := c.Request.Context()

	// Idempotency (replay path).
	idemKey, _ := middleware.GetIdempotencyKey(c)
	if idemKey != "" && h.idem != nil && req.SessionID != "" {
		if rec, err := h.idem.GetIdempotency(ctx, u.ID, req.SessionID, idemKey, h.now().UTC()); err == nil {
			// A deleted or reassigned session is never replayed.
			if err := h.chat.Authorize(ctx, u.ID, req.SessionID); err != nil {
				writeError(c, err)
				return
			}
			var prev ChatResponse
			if jerr := json.Unmarshal([]byte(rec.Response), &prev); jerr == nil {
				c.Header("Idempotency-Replayed", "true")
				ok(c, rec.Status, prev)
				return
			}
		}
	}

	reply, sid, err := h.chat.ChatWithHistory(ctx, u, req.Message, req.SessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := ChatResponse{Response: reply, SessionID: sid, Status: statusSuccess}

	// Idempotency (store path), best effort.
	if idemKey != "" && h.idem != nil {
		if raw, jerr := json.Marshal(resp); jerr == nil {
			if _, err := h.idem.CreateIdempotency(ctx, u.ID, sid, idemKey, string(raw), http.StatusOK, h.idemTTL); err != nil && !errors.Is(err, repo.ErrDuplicate) {
				middleware.LoggerFrom(c).Warn().Err(err).Str("session_id", sid).Msg("idempotency record not stored")
			}
		}
	}
	ok(c, http.StatusOK, resp)
}

// AnonymousChat godoc
// @ID          anonymousChat
// @Summary     Chat without an account
// @Description History lives in the cache only and expires with it. Disabled unless ANONYMOUS_CHAT_ENABLED is set.
// @Tags        Chat
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.ChatRequest  true  "Message and optional session id"
// @Success     200   {object}  handlers.ChatResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401   {object}  handlers.ErrorResponse  "Anonymous chat disabled"
// @Failure     403   {object}  handlers.ErrorResponse  "Session id belongs to an account"
// @Failure     502   {object}  handlers.ErrorResponse  "Provider failed"
// @Failure     504   {object}  handlers.ErrorResponse  "Provider timed out"
// @Router      /anonymous/chat [post]
func (h *Handlers) AnonymousChat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	reply, sid, err := h.chat.ChatWithHistory(c.Request.Context(), nil, req.Message, req.SessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, ChatResponse{Response: reply, SessionID: sid, Status: statusSuccess})
}

// SimpleChat godoc
// @ID          simpleChat
// @Summary     One-off question
// @Description No history is read or written.
// @Tags        Chat
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.SimpleChatRequest  true  "Message"
// @Success     200   {object}  handlers.SimpleChatResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     502   {object}  handlers.ErrorResponse  "Provider failed"
// @Failure     504   {object}  handlers.ErrorResponse  "Provider timed out"
// @Router      /simple-chat [post]
func (h *Handlers) SimpleChat(c *gin.Context) {
	var req SimpleChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	reply, err := h.chat.SimpleChat(c.Request.Context(), req.Message)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, SimpleChatResponse{Response: reply, Status: statusSuccess})
}

// GetConversation godoc
// @ID          getConversation
// @Summary     Recent conversation of a session
// @Description Served from the cache and rebuilt from the durable log on a miss.
// @Tags        Chat
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Session ID (UUID)"  format(uuid)
// @Success     200  {object}  handlers.ConversationResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "Session owned by another user"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Router      /conversation/{id} [get]
func (h *Handlers) GetConversation(c *gin.Context) {
	u, found := currentUser(c)
	if !found {
		return
	}
	sessionID, valid := sessionParam(c)
	if !valid {
		return
	}
	turns, err := h.chat.Conversation(c.Request.Context(), u.ID, sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, ConversationResponse{SessionID: sessionID, Conversation: turns, Status: statusSuccess})
}

// DeleteConversation godoc
// @ID          deleteConversation
// @Summary     Delete a conversation
// @Description Deactivates the session and evicts its cache entry. The durable log is kept.
// @Tags        Chat
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Session ID (UUID)"  format(uuid)
// @Success     200  {object}  handlers.DeleteResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "Session owned by another user"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Router      /conversation/{id} [delete]
func (h *Handlers) DeleteConversation(c *gin.Context) {
	u, found := currentUser(c)
	if !found {
		return
	}
	sessionID, valid := sessionParam(c)
	if !valid {
		return
	}
	if err := h.chat.DeleteConversation(c.Request.Context(), u.ID, sessionID); err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, DeleteResponse{SessionID: sessionID, Message: "conversation deleted", Status: statusSuccess})
}
