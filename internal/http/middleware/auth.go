// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves bearer tokens into users. Identify runs globally so the
// rate limiter, idempotency lookup and access logs can key on the caller;
// RequireUser guards the routes that need an account.
package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-llm-chat/internal/domain"
)

const (
	ctxKeyUser   = "currentUser"
	ctxKeyUserID = "userID"
)

// Authenticator resolves a bearer token to an active user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.User, error)
}

// CurrentUser returns the user attached by Identify, if any.
func CurrentUser(c *gin.Context) (*domain.User, bool) {
	v, ok := c.Get(ctxKeyUser)
	if !ok {
		return nil, false
	}
	u, _ := v.(*domain.User)
	return u, u != nil
}

// Identify reads "Authorization: Bearer <token>". Requests without the header
// pass through anonymously. A header that is present but malformed, expired
// or forged is rejected with 401 so a client never silently loses identity.
func Identify(authn Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("Authorization")
		if raw == "" {
			c.Next()
			return
		}
		token, ok := bearer(raw)
		if !ok {
			unauthorized(c, "malformed Authorization header")
			return
		}
		user, err := authn.Authenticate(c.Request.Context(), token)
		if err != nil {
			unauthorized(c, "invalid or expired token")
			return
		}
		c.Set(ctxKeyUser, user)
		c.Set(ctxKeyUserID, strconv.FormatUint(uint64(user.ID), 10))
		c.Next()
	}
}

// RequireUser aborts with 401 unless Identify attached a user.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := CurrentUser(c); !ok {
			c.Header("WWW-Authenticate", `Bearer realm="api"`)
			unauthorized(c, "authentication required")
			return
		}
		c.Next()
	}
}

func bearer(h string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(h), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       "unauthorized",
		"message":    msg,
	})
}
