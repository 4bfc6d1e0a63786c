package domain

import "errors"

// Error kinds. Concrete errors wrap exactly one kind with fmt.Errorf("%w: ...")
// so callers can classify with errors.Is and the HTTP layer can pick a status.
var (
	// ErrValidation marks malformed or out-of-range input.
	ErrValidation = errors.New("validation error")

	// ErrAuth marks bad credentials or an invalid/expired token.
	ErrAuth = errors.New("authentication failed")

	// ErrForbidden marks access to a resource owned by another user.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound marks a missing or inactive resource.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a uniqueness violation, e.g. a taken username.
	ErrConflict = errors.New("conflict")

	// ErrDependency marks a failure of the completion provider or the
	// durable store.
	ErrDependency = errors.New("dependency failure")

	// ErrCacheDegraded marks an unreachable or corrupt conversation cache.
	// It never reaches a client; readers fall back to empty history.
	ErrCacheDegraded = errors.New("conversation cache degraded")
)
