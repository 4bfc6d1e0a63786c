// Package domain defines the persistence models for users, chat sessions and
// the durable message log, plus the cached turn representation shared by the
// cache and service layers. The GORM-mapped types are the durable source of
// truth; Turn is the lightweight form kept in the conversation cache.
package domain

import (
	"time"
)

// Message roles accepted by the durable log and the cache.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultSessionTitle is assigned to sessions created without a title.
const DefaultSessionTitle = "New chat"

// User is a registered account. Rows are created at registration and are
// never updated except for the active flag.
//
// Fields:
//   - ID: auto-increment primary key.
//   - Username / Email: both unique; the unique indexes are the final arbiter
//     for concurrent registrations.
//   - PasswordHash: bcrypt digest, never serialized.
//   - IsActive: inactive users cannot authenticate.
type User struct {
	ID           uint      `json:"id"         gorm:"primaryKey;autoIncrement"`
	Username     string    `json:"username"   gorm:"type:varchar(64);not null;uniqueIndex:ux_users_username"`
	Email        string    `json:"email"      gorm:"type:varchar(255);not null;uniqueIndex:ux_users_email"`
	PasswordHash string    `json:"-"          gorm:"type:varchar(255);not null"`
	IsActive     bool      `json:"is_active"  gorm:"not null;default:true"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// ChatSession is a conversation thread strictly owned by one user.
// Deleting a session only flips IsActive; rows are never removed.
// UpdatedAt is bumped whenever a message is appended to the session.
type ChatSession struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    uint      `json:"user_id"    gorm:"not null;index:idx_sessions_user_updated,priority:1"`
	Title     string    `json:"title"      gorm:"type:varchar(255);not null;default:'New chat'"`
	IsActive  bool      `json:"is_active"  gorm:"not null;default:true"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"index:idx_sessions_user_updated,priority:2"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

// TableName returns the database table name for ChatSession.
func (ChatSession) TableName() string { return "chat_sessions" }

// Message is one immutable entry of a session's durable history.
// Rows are append-only; ID only breaks ties between equal CreatedAt values.
// UserID records the producer at write time and is kept for audit.
type Message struct {
	ID        uint      `json:"id"         gorm:"primaryKey;autoIncrement"`
	SessionID string    `json:"session_id" gorm:"type:char(36);not null;index:idx_history_session,priority:1"`
	UserID    uint      `json:"user_id"    gorm:"not null;index"`
	Role      string    `json:"role"       gorm:"type:varchar(16);not null;check:role IN ('user','assistant')"`
	Content   string    `json:"content"    gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_history_session,priority:2"`

	Session ChatSession `json:"-" gorm:"foreignKey:SessionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "chat_history" }

// Turn is a single {role, content} pair as held in the conversation cache and
// sent to the completion provider.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Turns converts durable messages into cache turns, preserving order.
func Turns(msgs []Message) []Turn {
	out := make([]Turn, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, Turn{Role: m.Role, Content: m.Content})
	}
	return out
}

// ValidRole reports whether r is an accepted message role.
func ValidRole(r string) bool {
	return r == RoleUser || r == RoleAssistant
}
