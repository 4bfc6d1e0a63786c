package repo

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound so callers may match either.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicate is returned when an insert violates a unique index.
var ErrDuplicate = errors.New("duplicate")

// isUniqueViolation recognizes unique-index violations across drivers.
// glebarez/sqlite often returns plain-text errors that TranslateError does
// not map, so the message is inspected as well.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key value") || // postgres
		strings.Contains(low, "duplicate entry") // mysql/mariadb
}
