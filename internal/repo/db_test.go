package repo

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gorm.io/gorm"

	"github.com/tbourn/go-llm-chat/internal/config"
	"github.com/tbourn/go-llm-chat/internal/domain"
)

func TestOpenSQLite_ErrorOnBadPath(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "does-not-exist", "app.db")

	db, err := OpenSQLite(bad)
	if err == nil || db != nil {
		t.Fatalf("expected error opening %q, got db=%v err=%v", bad, db, err)
	}
	lower := strings.ToLower(err.Error())
	if !(os.IsNotExist(err) ||
		strings.Contains(lower, "unable to open database file") ||
		strings.Contains(lower, "no such file or directory") ||
		strings.Contains(lower, "out of memory")) {
		t.Fatalf("unexpected error opening %q: %v", bad, err)
	}
}

func TestOpen_SQLite_PragmasPoolAndMigrate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.db")

	db, err := Open(config.DBConfig{Driver: "sqlite", DSN: path, PoolMin: 1, PoolMax: 4})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	var journalMode string
	if err := db.Raw("PRAGMA journal_mode;").Row().Scan(&journalMode); err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	if strings.ToLower(journalMode) != "wal" {
		t.Fatalf("expected journal_mode=wal, got %q", journalMode)
	}

	if stats := sqlDB.Stats(); stats.MaxOpenConnections != 4 {
		t.Fatalf("expected MaxOpenConnections=4 from PoolMax, got %d", stats.MaxOpenConnections)
	}

	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	m := db.Migrator()
	for _, tbl := range []any{&domain.User{}, &domain.ChatSession{}, &domain.Message{}, &domain.Idempotency{}} {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open(config.DBConfig{Driver: "oracle", DSN: "x", PoolMax: 1}); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	cases := map[string]bool{
		"UNIQUE constraint failed: users.username":                 true,
		"constraint failed: UNIQUE constraint failed":              true,
		`ERROR: duplicate key value violates unique constraint "x"`: true,
		"Error 1062: Duplicate entry 'a' for key 'ux'":              true,
		"connection refused":                                        false,
	}
	for msg, want := range cases {
		if got := isUniqueViolation(errString(msg)); got != want {
			t.Fatalf("isUniqueViolation(%q) = %v; want %v", msg, got, want)
		}
	}
	if !isUniqueViolation(gorm.ErrDuplicatedKey) {
		t.Fatalf("gorm.ErrDuplicatedKey must be recognized")
	}
	if isUniqueViolation(nil) {
		t.Fatalf("nil is not a violation")
	}
}

type errString string

func (e errString) Error() string { return string(e) }

// Compile-time guard to ensure signature stability.
var _ func(string) (*gorm.DB, error) = OpenSQLite
