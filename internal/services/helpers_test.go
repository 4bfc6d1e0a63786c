package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-llm-chat/internal/auth"
	"github.com/tbourn/go-llm-chat/internal/cache"
	"github.com/tbourn/go-llm-chat/internal/domain"
	"github.com/tbourn/go-llm-chat/internal/repo"
)

func newTestStore(t *testing.T) *repo.Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("svc_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.NewStore(db, 5*time.Second)
}

// fakeLLM records its inputs and replies with reply or err. block makes it
// wait for ctx to end.
type fakeLLM struct {
	mu    sync.Mutex
	reply string
	err   error
	block bool
	calls [][]domain.Turn
}

func (f *fakeLLM) Complete(ctx context.Context, turns []domain.Turn) (string, error) {
	f.mu.Lock()
	cp := append([]domain.Turn(nil), turns...)
	f.calls = append(f.calls, cp)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeLLM) lastInput() []domain.Turn {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return nil
	}
	return f.calls[len(f.calls)-1]
}

// failInserts makes every insert of a message with the given role fail on
// db, inside or outside a transaction.
func failInserts(t *testing.T, db *gorm.DB, role string) {
	t.Helper()
	name := "test:fail_" + role
	err := db.Callback().Create().Before("gorm:create").Register(name, func(tx *gorm.DB) {
		if m, ok := tx.Statement.Dest.(*domain.Message); ok && m.Role == role {
			_ = tx.AddError(errors.New("disk full"))
		}
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}
	t.Cleanup(func() { _ = db.Callback().Create().Remove(name) })
}

// brokenCache fails every write and loads as degraded.
type brokenCache struct{ deletes int }

func (b *brokenCache) LoadChecked(context.Context, string) ([]domain.Turn, bool, error) {
	return []domain.Turn{}, false, domain.ErrCacheDegraded
}
func (b *brokenCache) Save(context.Context, string, []domain.Turn) error { return domain.ErrCacheDegraded }
func (b *brokenCache) Append(context.Context, string, string, string) error {
	return domain.ErrCacheDegraded
}
func (b *brokenCache) Delete(context.Context, string) error { b.deletes++; return nil }

type chatFixture struct {
	store *repo.Store
	cache *cache.ConversationCache
	llm   *fakeLLM
	svc   *ChatService
	alice *domain.User
	bob   *domain.User
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	st := newTestStore(t)
	ctx := context.Background()
	alice, err := st.CreateUser(ctx, "alice", "alice@example.com", "h")
	if err != nil {
		t.Fatalf("seed alice: %v", err)
	}
	bob, err := st.CreateUser(ctx, "bob", "bob@example.com", "h")
	if err != nil {
		t.Fatalf("seed bob: %v", err)
	}
	cc := cache.New(cache.NewMemoryBackend(time.Minute), cache.Options{TTL: time.Hour, Locking: true})
	fl := &fakeLLM{reply: "assistant reply"}
	svc := &ChatService{
		Sessions:       st,
		Messages:       st,
		Auth:           auth.NewSessionAuthorizer(st),
		Cache:          cc,
		LLM:            fl,
		LLMTimeout:     time.Second,
		MaxPromptRunes: 100,
	}
	return &chatFixture{store: st, cache: cc, llm: fl, svc: svc, alice: alice, bob: bob}
}

func (f *chatFixture) session(t *testing.T, owner *domain.User, title string) *domain.ChatSession {
	t.Helper()
	s, err := f.store.CreateSession(context.Background(), owner.ID, title)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return s
}
