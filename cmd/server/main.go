// @title                      LLM Chat API
// @version                    1.0
// @description                Multi-user chat backend: accounts, sessions, cached history and completions from a language model.
// @BasePath                   /api/v1
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
// @description                Type "Bearer" followed by a space and the access token.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/tbourn/go-llm-chat/internal/auth"
	"github.com/tbourn/go-llm-chat/internal/cache"
	"github.com/tbourn/go-llm-chat/internal/config"
	httpapi "github.com/tbourn/go-llm-chat/internal/http"
	"github.com/tbourn/go-llm-chat/internal/llm"
	"github.com/tbourn/go-llm-chat/internal/observability"
	"github.com/tbourn/go-llm-chat/internal/repo"
	"github.com/tbourn/go-llm-chat/internal/services"
	"github.com/tbourn/go-llm-chat/internal/sysutil"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	idempotencyPurgeEvery = 10 * time.Minute
	memoryCacheCleanup    = 5 * time.Minute
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	gin.SetMode(cfg.GinMode)
	setupLogger(cfg)

	appVersion := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, appVersion)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.Open(cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DB.Driver).Msg("database open failed")
	}
	if !sysutil.IsTruthy(os.Getenv("DB_SKIP_MIGRATE")) {
		if err := repo.AutoMigrate(db); err != nil {
			log.Fatal().Err(err).Msg("database migration failed")
		}
	}
	store := repo.NewStore(db, cfg.DB.QueryTimeout)

	backend, closeCache := newCacheBackend(ctx, cfg.Redis)
	conv := cache.New(backend, cache.Options{
		TTL:     cfg.Redis.TTL,
		Timeout: cfg.Redis.Timeout,
		Locking: cfg.Redis.Locking,
	})

	provider, err := llm.New(cfg.LLM)
	if err != nil {
		log.Fatal().Err(err).Str("provider", cfg.LLM.Provider).Msg("llm setup failed")
	}

	authz := auth.NewSessionAuthorizer(store)
	titles := services.Titler{MaxLen: cfg.Chat.TitleMaxLen, Locale: language.English}
	authSvc := services.NewAuthService(store,
		auth.NewVault(cfg.Auth.BcryptCost),
		auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL))

	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		Auth:     authSvc,
		Sessions: services.NewSessionService(store, authz, titles),
		Chat: &services.ChatService{
			Sessions:         store,
			Messages:         store,
			Auth:             authz,
			Cache:            conv,
			LLM:              provider,
			Titles:           titles,
			LLMTimeout:       cfg.LLM.Timeout,
			MaxPromptRunes:   cfg.Chat.MaxPromptRunes,
			AnonymousEnabled: cfg.Chat.AnonymousEnabled,
		},
		Idempotency: store,
		Cache:       conv,
		Database:    store,
	}, cfg)

	go purgeIdempotency(ctx, db)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("version", appVersion).
			Str("db", cfg.DB.Driver).
			Str("llm", cfg.LLM.Provider).
			Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	stop()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown")
	}
	if err := closeCache(); err != nil {
		log.Error().Err(err).Msg("redis close")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("bye")
}

func setupLogger(cfg config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	sysutil.SetLogLevel(cfg.LogLevel)
}

// newCacheBackend connects to Redis when REDIS_URL is set. An unreachable
// Redis at startup falls back to the in-process backend so the service still
// answers; history is rebuilt from the database either way. The returned func
// releases the Redis connection pool and is a no-op for the in-process cache.
func newCacheBackend(ctx context.Context, cfg config.RedisConfig) (cache.Backend, func() error) {
	noop := func() error { return nil }
	if cfg.URL == "" {
		log.Info().Msg("REDIS_URL not set, using in-process conversation cache")
		return cache.NewMemoryBackend(memoryCacheCleanup), noop
	}
	client, err := cache.NewRedisClient(ctx, cfg)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, using in-process conversation cache")
		return cache.NewMemoryBackend(memoryCacheCleanup), noop
	}
	return cache.NewRedisBackend(client), client.Close
}

// purgeIdempotency drops expired idempotency records until ctx is done.
func purgeIdempotency(ctx context.Context, db *gorm.DB) {
	t := time.NewTicker(idempotencyPurgeEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeExpiredIdempotency(ctx, db, now.UTC())
			if err != nil {
				log.Warn().Err(err).Msg("idempotency purge failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("deleted", n).Msg("idempotency records purged")
			}
		}
	}
}
