// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, the relational store, the conversation cache, token signing, the
// completion provider, rate limiting and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects the durable history store and sizes its connection pool.
type DBConfig struct {
	Driver       string        // DB_DRIVER: sqlite|postgres|mysql
	DSN          string        // DB_DSN (file path for sqlite)
	PoolMin      int           // DB_POOL_MIN: connections kept idle
	PoolMax      int           // DB_POOL_MAX: max open; callers beyond it wait
	QueryTimeout time.Duration // DB_QUERY_TIMEOUT per store call
	MaxLifetime  time.Duration // DB_CONN_MAX_LIFETIME
}

// RedisConfig configures the conversation cache.
type RedisConfig struct {
	URL     string        // REDIS_URL; empty selects the in-process cache
	TTL     time.Duration // REDIS_TTL sliding expiry per conversation
	Timeout time.Duration // REDIS_TIMEOUT per round trip
	Locking bool          // CONVERSATION_LOCKING: serialize cache appends per session
}

// AuthConfig configures credential hashing and bearer tokens.
type AuthConfig struct {
	JWTSecret  string        // JWT_SECRET
	TokenTTL   time.Duration // ACCESS_TOKEN_TTL
	BcryptCost int           // BCRYPT_COST
}

// LLMConfig configures the completion provider.
type LLMConfig struct {
	Provider    string        // LLM_PROVIDER: openai|echo
	APIKey      string        // OPENAI_API_KEY
	Model       string        // OPENAI_MODEL
	Temperature float64       // OPENAI_TEMPERATURE
	BaseURL     string        // OPENAI_BASE_URL (optional, OpenAI-compatible gateways)
	Timeout     time.Duration // LLM_TIMEOUT
}

// ChatConfig holds request-level limits for chat turns.
type ChatConfig struct {
	MaxPromptRunes   int  // CHAT_MAX_PROMPT_RUNES
	TitleMaxLen      int  // CHAT_TITLE_MAX_LEN
	AnonymousEnabled bool // ANONYMOUS_CHAT_ENABLED
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 90s, must outlive LLM_TIMEOUT
	IdleTimeout       time.Duration // e.g. 60s
	ShutdownTimeout   time.Duration // graceful drain window
	MaxHeaderBytes    int           // bytes
	MaxBodyBytes      int64         // request body cap
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Stores
	DB    DBConfig
	Redis RedisConfig

	// Identity
	Auth AuthConfig

	// Completion
	LLM  LLMConfig
	Chat ChatConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 90*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:   getdur("SHUTDOWN_TIMEOUT", 15*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		MaxBodyBytes:      int64(getint("MAX_BODY_BYTES", 1<<20)),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		DB: DBConfig{
			Driver:       strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			DSN:          getenv("DB_DSN", "app.db"),
			PoolMin:      getint("DB_POOL_MIN", 1),
			PoolMax:      getint("DB_POOL_MAX", 10),
			QueryTimeout: getdur("DB_QUERY_TIMEOUT", 5*time.Second),
			MaxLifetime:  getdur("DB_CONN_MAX_LIFETIME", time.Hour),
		},
		Redis: RedisConfig{
			URL:     getenv("REDIS_URL", ""),
			TTL:     getdur("REDIS_TTL", 24*time.Hour),
			Timeout: getdur("REDIS_TIMEOUT", 2*time.Second),
			Locking: getbool("CONVERSATION_LOCKING", true),
		},
		Auth: AuthConfig{
			JWTSecret:  getenv("JWT_SECRET", ""),
			TokenTTL:   getdur("ACCESS_TOKEN_TTL", 30*time.Minute),
			BcryptCost: getint("BCRYPT_COST", 10),
		},
		LLM: LLMConfig{
			Provider:    strings.ToLower(getenv("LLM_PROVIDER", "openai")),
			APIKey:      getenv("OPENAI_API_KEY", ""),
			Model:       getenv("OPENAI_MODEL", "gpt-3.5-turbo"),
			Temperature: getfloat("OPENAI_TEMPERATURE", 0.7),
			BaseURL:     getenv("OPENAI_BASE_URL", ""),
			Timeout:     getdur("LLM_TIMEOUT", 60*time.Second),
		},
		Chat: ChatConfig{
			MaxPromptRunes:   getint("CHAT_MAX_PROMPT_RUNES", 4000),
			TitleMaxLen:      getint("CHAT_TITLE_MAX_LEN", 60),
			AnonymousEnabled: getbool("ANONYMOUS_CHAT_ENABLED", false),
		},

		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-llm-chat"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.DB.Driver == "mariadb" {
		cfg.DB.Driver = "mysql"
	}
	if cfg.DB.Driver == "postgresql" {
		cfg.DB.Driver = "postgres"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 || cfg.ShutdownTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if cfg.MaxBodyBytes <= 0 {
		return cfg, errors.New("MAX_BODY_BYTES must be > 0")
	}

	switch cfg.DB.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres, mysql")
	}
	if strings.TrimSpace(cfg.DB.DSN) == "" {
		return cfg, errors.New("DB_DSN must not be empty")
	}
	if cfg.DB.PoolMin < 0 || cfg.DB.PoolMax < 1 || cfg.DB.PoolMin > cfg.DB.PoolMax {
		return cfg, errors.New("DB_POOL_MIN/DB_POOL_MAX must satisfy 0 <= min <= max and max >= 1")
	}
	if cfg.DB.QueryTimeout <= 0 {
		return cfg, errors.New("DB_QUERY_TIMEOUT must be > 0")
	}

	if cfg.Redis.TTL <= 0 {
		return cfg, errors.New("REDIS_TTL must be > 0")
	}
	if cfg.Redis.Timeout <= 0 {
		return cfg, errors.New("REDIS_TIMEOUT must be > 0")
	}

	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		if cfg.GinMode == "release" {
			return cfg, errors.New("JWT_SECRET must be set in release mode")
		}
		cfg.Auth.JWTSecret = "dev-insecure-secret"
	}
	if cfg.Auth.TokenTTL <= 0 {
		return cfg, errors.New("ACCESS_TOKEN_TTL must be > 0")
	}
	if cfg.Auth.BcryptCost < 4 || cfg.Auth.BcryptCost > 31 {
		return cfg, errors.New("BCRYPT_COST must be between 4 and 31")
	}

	switch cfg.LLM.Provider {
	case "openai":
		if strings.TrimSpace(cfg.LLM.APIKey) == "" {
			return cfg, errors.New("OPENAI_API_KEY must be set when LLM_PROVIDER=openai")
		}
	case "echo":
	default:
		return cfg, errors.New("LLM_PROVIDER must be one of: openai, echo")
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		return cfg, errors.New("OPENAI_TEMPERATURE must be in [0,2]")
	}
	if cfg.LLM.Timeout <= 0 {
		return cfg, errors.New("LLM_TIMEOUT must be > 0")
	}

	if cfg.Chat.MaxPromptRunes < 1 {
		return cfg, errors.New("CHAT_MAX_PROMPT_RUNES must be >= 1")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

// getdur accepts Go durations ("90s") and bare integers as seconds, the form
// REDIS_TTL is usually written in (86400).
func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
