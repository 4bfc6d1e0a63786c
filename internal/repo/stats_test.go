package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/go-llm-chat/internal/domain"
)

func TestSessionsStats_NoTable(t *testing.T) {
	if _, _, err := SessionsStats(context.Background(), newTestDB(t), 1); err == nil {
		t.Fatalf("expected error due to missing table")
	}
}

func TestSessionsStats_ZeroAndMax(t *testing.T) {
	db := newTestDB(t, allModels()...)
	ctx := context.Background()
	u := seedUser(t, db, "u1")

	count, maxAt, err := SessionsStats(ctx, db, u.ID)
	if err != nil || count != 0 || maxAt != nil {
		t.Fatalf("expected (0, nil, nil), got (%d, %v, %v)", count, maxAt, err)
	}

	a := seedSession(t, db, u.ID, "a")
	b := seedSession(t, db, u.ID, "b")
	t1 := time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)
	t2 := time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC)
	_ = TouchSession(ctx, db, a.ID, t1)
	_ = TouchSession(ctx, db, b.ID, t2)

	count, maxAt, err = SessionsStats(ctx, db, u.ID)
	if err != nil {
		t.Fatalf("SessionsStats: %v", err)
	}
	if count != 2 || maxAt == nil || !maxAt.Equal(t2) {
		t.Fatalf("expected (2, %v), got (%d, %v)", t2, count, maxAt)
	}

	// inactive sessions drop out
	_ = DeactivateSession(ctx, db, b.ID)
	count, maxAt, _ = SessionsStats(ctx, db, u.ID)
	if count != 1 || maxAt == nil || !maxAt.Equal(t1) {
		t.Fatalf("expected (1, %v) after deactivation, got (%d, %v)", t1, count, maxAt)
	}
}

func TestMessagesStats(t *testing.T) {
	db := newTestDB(t, allModels()...)
	ctx := context.Background()
	u := seedUser(t, db, "u1")
	s := seedSession(t, db, u.ID, "t")

	count, last, err := MessagesStats(ctx, db, s.ID)
	if err != nil || count != 0 || last != 0 {
		t.Fatalf("expected empty stats, got (%d, %d, %v)", count, last, err)
	}

	_, _ = AppendMessage(ctx, db, s.ID, u.ID, domain.RoleUser, "a")
	m2, _ := AppendMessage(ctx, db, s.ID, u.ID, domain.RoleAssistant, "b")

	count, last, err = MessagesStats(ctx, db, s.ID)
	if err != nil || count != 2 || last != m2.ID {
		t.Fatalf("expected (2, %d), got (%d, %d, %v)", m2.ID, count, last, err)
	}
}
