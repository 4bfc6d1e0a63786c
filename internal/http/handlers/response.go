// Package handlers provides HTTP handler implementations for the public API.
//
// This file holds the response helpers. Every error leaves through fail, so
// the envelope is uniform and 5xx responses are logged with request context.
// writeError maps the domain error kinds onto statuses and codes.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-llm-chat/internal/domain"
	"github.com/tbourn/go-llm-chat/internal/http/middleware"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"session not found"`
}

// fail aborts with the error envelope; 5xx are logged with the request logger.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		ev := lg.Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg)
		if len(c.Errors) > 0 {
			ev = ev.Str("cause", c.Errors.Last().Error())
		}
		ev.Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	})
}

// Fail is the exported variant of fail for the router's fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// kindStatus lists the client-visible kinds in match order.
var kindStatus = []struct {
	kind   error
	status int
	code   string
}{
	{domain.ErrValidation, http.StatusBadRequest, ErrCodeBadRequest},
	{domain.ErrAuth, http.StatusUnauthorized, ErrCodeUnauthorized},
	{domain.ErrForbidden, http.StatusForbidden, ErrCodeForbidden},
	{domain.ErrNotFound, http.StatusNotFound, ErrCodeNotFound},
	{domain.ErrConflict, http.StatusConflict, ErrCodeConflict},
}

// writeError translates a service error into a response. Client kinds keep
// their message minus the kind prefix. Dependency failures get a generic
// message and the cause goes to the log only. Anything unclassified is 500.
func writeError(c *gin.Context, err error) {
	for _, k := range kindStatus {
		if errors.Is(err, k.kind) {
			fail(c, k.status, k.code, clientMessage(err, k.kind))
			return
		}
	}

	_ = c.Error(err)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		fail(c, http.StatusGatewayTimeout, ErrCodeDependencyFailed, "upstream timed out")
	case errors.Is(err, domain.ErrDependency):
		fail(c, http.StatusBadGateway, ErrCodeDependencyFailed, "upstream dependency failed")
	case errors.Is(err, context.Canceled):
		// Client went away; nobody reads the body.
		c.AbortWithStatus(499)
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
	}
}

// clientMessage strips the "<kind>: " prefix that wrapping adds.
func clientMessage(err, kind error) string {
	msg := err.Error()
	if rest, ok := strings.CutPrefix(msg, kind.Error()+": "); ok && rest != "" {
		return rest
	}
	return msg
}

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// noContent writes 204.
func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
