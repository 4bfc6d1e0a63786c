// Package repo implements the durable history store backed by GORM. This file
// contains database bootstrapping for the supported drivers (pure-Go SQLite,
// PostgreSQL, MySQL/MariaDB), connection pool sizing and schema migrations.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-llm-chat/internal/config"
	"github.com/tbourn/go-llm-chat/internal/domain"
)

// Open connects to the store selected by cfg.Driver, applies driver-specific
// tuning, installs the OpenTelemetry tracing plugin and sizes the pool.
//
// Pool semantics: PoolMin connections are kept idle and PoolMax caps open
// connections. Callers beyond PoolMax block inside database/sql until a
// connection is returned; nothing dials past the cap.
func Open(cfg config.DBConfig) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Driver {
	case "sqlite", "":
		db, err = OpenSQLite(cfg.DSN)
	case "postgres":
		db, err = gorm.Open(postgres.Open(cfg.DSN), gormConfig())
	case "mysql":
		db, err = gorm.Open(mysql.Open(cfg.DSN), gormConfig())
	default:
		return nil, fmt.Errorf("repo: unsupported driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.PoolMax)
	sqlDB.SetMaxIdleConns(cfg.PoolMin)
	if cfg.MaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.MaxLifetime)
	}
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	return db, nil
}

// OpenSQLite opens (or creates) a SQLite database and applies PRAGMAs.
func OpenSQLite(path string) (*gorm.DB, error) {
	// Fail early if the parent directory does not exist instead of the
	// opaque "out of memory (14)" some platforms report.
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), gormConfig())
	if err != nil {
		return nil, err
	}

	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA foreign_keys=ON;")
	db.Exec("PRAGMA busy_timeout=5000;")

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	return db, nil
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	}
}

// AutoMigrate creates or updates the users, chat_sessions, chat_history and
// idempotency tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.User{},
		&domain.ChatSession{},
		&domain.Message{},
		&domain.Idempotency{},
	)
}
