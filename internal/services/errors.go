// Package services holds the business logic for accounts, chat sessions and
// chat turns. This file defines the service-level errors. Each one wraps a
// domain error kind so handlers can map it to a status with errors.Is.
package services

import (
	"fmt"

	"github.com/tbourn/go-llm-chat/internal/domain"
)

var (
	// ErrEmptyPrompt is returned when a chat message is blank after trimming.
	ErrEmptyPrompt = fmt.Errorf("%w: message is empty", domain.ErrValidation)

	// ErrTooLong is returned when a chat message exceeds the configured limit.
	ErrTooLong = fmt.Errorf("%w: message too long", domain.ErrValidation)

	// ErrSessionRequired is returned when an authenticated turn names no session.
	ErrSessionRequired = fmt.Errorf("%w: session_id is required", domain.ErrValidation)

	// ErrInvalidCredentials is the single login failure. Unknown users and
	// wrong passwords are indistinguishable.
	ErrInvalidCredentials = fmt.Errorf("%w: invalid username or password", domain.ErrAuth)

	// ErrAuthRequired is returned for anonymous turns when they are disabled.
	ErrAuthRequired = fmt.Errorf("%w: authentication required", domain.ErrAuth)

	// ErrUserExists is returned when the username or email is taken.
	ErrUserExists = fmt.Errorf("%w: username or email already registered", domain.ErrConflict)

	// ErrSessionNotFound is returned for a missing or inactive session.
	ErrSessionNotFound = fmt.Errorf("%w: session not found", domain.ErrNotFound)
)

// dependency wraps a store or provider failure, keeping the cause for
// errors.Is checks such as context.DeadlineExceeded.
func dependency(what string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrDependency, what, err)
}
