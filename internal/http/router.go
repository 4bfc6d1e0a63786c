// Package httpapi wires the HTTP transport (Gin) to the services, middleware
// and route handlers. It owns the cross-cutting chain: tracing, correlation
// ids, redacted access logs, panic recovery, body cap, metrics, compression,
// CORS, security headers, bearer identity, idempotency and rate limiting.
package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/go-llm-chat/docs"
	"github.com/tbourn/go-llm-chat/internal/config"
	"github.com/tbourn/go-llm-chat/internal/http/handlers"
	"github.com/tbourn/go-llm-chat/internal/http/middleware"
)

// Authn is the account service as seen by the transport: the auth endpoints
// plus bearer resolution for middleware.Identify.
type Authn interface {
	handlers.AuthService
	middleware.Authenticator
}

// Deps are the collaborators built once in cmd/server and injected here.
type Deps struct {
	Auth        Authn
	Sessions    handlers.SessionService
	Chat        handlers.ChatService
	Idempotency handlers.IdempotencyStore
	Cache       handlers.Pinger
	Database    handlers.Pinger
}

var corsAllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey}

// RegisterRoutes installs the middleware chain and mounts the API under
// cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Gzip
//  8. CORS and security headers (preflights never reach auth)
//  9. Identify: bearer token to user
//  10. Idempotency validator (before rate limiter to allow bypass on replay)
//  11. Rate limiter (per user/IP, bypass on replay)
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(cfg.MaxBodyBytes))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))
	r.Use(corsMiddleware(cfg.CORS))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		EnablePolicy: true,
	}))

	r.Use(middleware.Identify(deps.Auth))

	apiBase := cfg.APIBasePath
	chatPath := joinPath(apiBase, "/chat")
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
			Scope:  chatScope(chatPath),
		},
		idempotencyLookup(deps.Idempotency),
	))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	h := handlers.New(deps.Auth, deps.Sessions, deps.Chat, handlers.Options{
		Idempotency:    deps.Idempotency,
		IdempotencyTTL: cfg.IdempotencyTTL,
		Cache:          deps.Cache,
		Database:       deps.Database,
	})

	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = apiBase
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := groupWithPrefix(r, apiBase)
	{
		// Open
		api.POST("/auth/register", h.Register)
		api.POST("/auth/login", h.Login)
		api.POST("/simple-chat", h.SimpleChat)
		api.POST("/anonymous/chat", h.AnonymousChat)

		// Bearer token required
		authed := api.Group("", middleware.RequireUser())
		authed.GET("/auth/me", h.Me)

		authed.POST("/sessions", h.CreateSession)
		authed.GET("/sessions", h.ListSessions)
		authed.PUT("/sessions/:id/title", h.UpdateSessionTitle)
		authed.GET("/sessions/:id/messages", h.ListMessages)

		authed.POST("/chat", h.Chat)
		authed.GET("/conversation/:id", h.GetConversation)
		authed.DELETE("/conversation/:id", h.DeleteConversation)
	}
}

// corsMiddleware allows any origin without credentials when no allowlist is
// configured, and echoes allowlisted origins otherwise.
func corsMiddleware(cfg config.CORSConfig) gin.HandlerFunc {
	cc := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     corsAllowHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag", "Idempotency-Replayed"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = cfg.AllowedOrigins
	}
	return cors.New(cc)
}

// chatScope binds Idempotency-Key to the session named in the POST /chat
// body. The body is cached by ShouldBindBodyWith so the handler can bind it
// again. Other routes fall back to the ":id" parameter.
func chatScope(chatPath string) func(*gin.Context) string {
	return func(c *gin.Context) string {
		if c.Request.Method != http.MethodPost || c.FullPath() != chatPath {
			return c.Param("id")
		}
		var peek struct {
			SessionID string `json:"session_id"`
		}
		if err := c.ShouldBindBodyWith(&peek, binding.JSON); err != nil {
			return ""
		}
		return peek.SessionID
	}
}

// idempotencyLookup adapts the store to the middleware's string ids.
func idempotencyLookup(store handlers.IdempotencyStore) middleware.IdempotencyLookup {
	if store == nil {
		return nil
	}
	return func(ctx context.Context, userID, scope, key string, now time.Time) (bool, error) {
		uid, err := strconv.ParseUint(userID, 10, 64)
		if err != nil {
			return false, err
		}
		rec, err := store.GetIdempotency(ctx, uint(uid), scope, key, now)
		if err != nil || rec == nil {
			return false, nil
		}
		return true, nil
	}
}

// limitBody caps request bodies at maxBytes; reads beyond it fail.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

func joinPath(base, p string) string {
	if base == "" || base == "/" {
		return p
	}
	return base + p
}
