package repo

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-llm-chat/internal/domain"
)

// newTestDB opens a throwaway file-backed SQLite DB and migrates the given
// models. Passing no models leaves the schema empty so error paths can be hit.
func newTestDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("repo_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func allModels() []any {
	return []any{&domain.User{}, &domain.ChatSession{}, &domain.Message{}, &domain.Idempotency{}}
}

func seedUser(t *testing.T, db *gorm.DB, name string) *domain.User {
	t.Helper()
	u, err := CreateUser(context.Background(), db, name, name+"@example.com", "hash")
	if err != nil {
		t.Fatalf("seed user %s: %v", name, err)
	}
	return u
}

func seedSession(t *testing.T, db *gorm.DB, userID uint, title string) *domain.ChatSession {
	t.Helper()
	s, err := CreateSession(context.Background(), db, userID, title)
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return s
}
