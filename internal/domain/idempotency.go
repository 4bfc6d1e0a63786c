package domain

import "time"

// Idempotency records the outcome of a completed chat turn keyed by
// (user_id, session_id, key). A retried POST /chat carrying the same
// Idempotency-Key replays Response instead of calling the provider and
// appending the turn a second time.
type Idempotency struct {
	ID        string    `gorm:"type:char(36);primaryKey"`
	UserID    uint      `gorm:"not null;uniqueIndex:ux_idem_user_session_key,priority:1"`
	SessionID string    `gorm:"type:char(36);not null;uniqueIndex:ux_idem_user_session_key,priority:2"`
	Key       string    `gorm:"column:idem_key;type:varchar(200);not null;uniqueIndex:ux_idem_user_session_key,priority:3"`
	Response  string    `gorm:"type:text;not null"`
	Status    int       `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }

// Expired reports whether the record is no longer replayable at now.
func (i Idempotency) Expired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}
