// Package repo implements the durable history store backed by GORM. This file
// provides repository functions for the ChatSession model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions. They stay thin: no ownership rules, only
// persistence and query composition. Ownership is enforced one level up by the
// session authorizer.
//
// Error semantics:
//   - A missing session yields ErrNotFound (gorm.ErrRecordNotFound).
//   - Other DB errors are propagated unchanged.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-llm-chat/internal/domain"
)

// CreateSession inserts an active session for userID with a UUIDv4 id.
func CreateSession(ctx context.Context, db *gorm.DB, userID uint, title string) (*domain.ChatSession, error) {
	now := time.Now().UTC()
	s := &domain.ChatSession{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

// GetSession fetches a session by id regardless of owner or active flag.
// The authorizer decides what the caller may see.
func GetSession(ctx context.Context, db *gorm.DB, id string) (*domain.ChatSession, error) {
	var s domain.ChatSession
	if err := db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// ListActiveSessions returns every active session of userID, most recently
// updated first.
func ListActiveSessions(ctx context.Context, db *gorm.DB, userID uint) ([]domain.ChatSession, error) {
	var out []domain.ChatSession
	err := db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("updated_at DESC, id ASC").
		Find(&out).Error
	return out, err
}

// CountActiveSessions returns the number of active sessions owned by userID.
func CountActiveSessions(ctx context.Context, db *gorm.DB, userID uint) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.ChatSession{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Count(&total).Error
	return total, err
}

// ListActiveSessionsPage is the paginated form of ListActiveSessions.
func ListActiveSessionsPage(ctx context.Context, db *gorm.DB, userID uint, offset, limit int) ([]domain.ChatSession, error) {
	var out []domain.ChatSession
	err := db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("updated_at DESC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// UpdateSessionTitle renames a session. It returns ErrNotFound when no row
// matches id.
func UpdateSessionTitle(ctx context.Context, db *gorm.DB, id, title string) error {
	res := db.WithContext(ctx).
		Model(&domain.ChatSession{}).
		Where("id = ?", id).
		Update("title", title)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeactivateSession soft-deletes a session. It is idempotent: deactivating an
// inactive or unknown session is not an error.
func DeactivateSession(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).
		Model(&domain.ChatSession{}).
		Where("id = ?", id).
		Update("is_active", false).Error
}

// TouchSession bumps updated_at to now.
func TouchSession(ctx context.Context, db *gorm.DB, id string, now time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.ChatSession{}).
		Where("id = ?", id).
		UpdateColumn("updated_at", now).Error
}
