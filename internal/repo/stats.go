// Package repo implements the durable history store backed by GORM. This file
// provides small aggregate queries used for weak ETags in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-llm-chat/internal/domain"
)

// SessionsStats returns the number of active sessions owned by userID and the
// greatest updated_at among them (nil when there are none).
func SessionsStats(ctx context.Context, db *gorm.DB, userID uint) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.ChatSession{}).Where("user_id = ? AND is_active = ?", userID, true)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// ORDER BY + LIMIT instead of MAX(), which SQLite returns as TEXT.
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// MessagesStats returns the number of messages in a session and the id of the
// newest one. Messages are immutable, so (count, lastID) identifies the log.
func MessagesStats(ctx context.Context, db *gorm.DB, sessionID string) (count int64, lastID uint, err error) {
	q := db.WithContext(ctx).Model(&domain.Message{}).Where("session_id = ?", sessionID)

	if err = q.Count(&count).Error; err != nil {
		return 0, 0, err
	}
	if count == 0 {
		return 0, 0, nil
	}

	var row struct {
		ID uint
	}
	if err = q.Select("id").Order("id DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, 0, err
	}
	return count, row.ID, nil
}
