// Package repo implements the durable history store backed by GORM. This file
// provides the append-only message log (table chat_history).
package repo

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-llm-chat/internal/domain"
)

// AppendMessage inserts one message and bumps the owning session's updated_at
// in a single transaction. Errors are returned as-is; the call is never
// retried here.
func AppendMessage(ctx context.Context, db *gorm.DB, sessionID string, userID uint, role, content string) (*domain.Message, error) {
	if !domain.ValidRole(role) {
		return nil, fmt.Errorf("repo: invalid role %q", role)
	}
	now := time.Now().UTC()
	m := &domain.Message{
		SessionID: sessionID,
		UserID:    userID,
		Role:      role,
		Content:   content,
		CreatedAt: now,
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(m).Error; err != nil {
			return err
		}
		return TouchSession(ctx, tx, sessionID, now)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// AppendExchange writes a user prompt and the assistant reply as one unit:
// both rows and the session touch commit together or not at all. The rows
// share created_at and keep their order through the id tiebreak.
func AppendExchange(ctx context.Context, db *gorm.DB, sessionID string, userID uint, prompt, reply string) ([]domain.Message, error) {
	now := time.Now().UTC()
	out := []domain.Message{
		{SessionID: sessionID, UserID: userID, Role: domain.RoleUser, Content: prompt, CreatedAt: now},
		{SessionID: sessionID, UserID: userID, Role: domain.RoleAssistant, Content: reply, CreatedAt: now},
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range out {
			if err := tx.Create(&out[i]).Error; err != nil {
				return err
			}
		}
		return TouchSession(ctx, tx, sessionID, now)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListMessages returns a session's log ordered (created_at ASC, id ASC).
// A non-positive limit returns the whole log.
func ListMessages(ctx context.Context, db *gorm.DB, sessionID string, limit int) ([]domain.Message, error) {
	var out []domain.Message
	q := db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error.
func CountMessages(ctx context.Context, db *gorm.DB, sessionID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM chat_history WHERE session_id = ?", sessionID).
		Scan(&total).Error
	return total, err
}

// ListMessagesPage returns a page of the log ordered (created_at ASC, id ASC).
func ListMessagesPage(ctx context.Context, db *gorm.DB, sessionID string, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
