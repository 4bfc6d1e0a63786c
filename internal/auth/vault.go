// Package auth implements credential hashing, stateless bearer tokens and the
// session ownership check every session-scoped operation goes through.
package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/tbourn/go-llm-chat/internal/domain"
)

// maxPasswordBytes is bcrypt's input limit.
const maxPasswordBytes = 72

// Vault hashes and verifies passwords with bcrypt.
type Vault struct {
	cost int
}

// NewVault returns a Vault using cost, or bcrypt.DefaultCost when cost is
// outside bcrypt's accepted range.
func NewVault(cost int) *Vault {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Vault{cost: cost}
}

// Hash returns a salted bcrypt hash of password.
func (v *Vault) Hash(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("%w: password is required", domain.ErrValidation)
	}
	if len(password) > maxPasswordBytes {
		return "", fmt.Errorf("%w: password exceeds %d bytes", domain.ErrValidation, maxPasswordBytes)
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), v.cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// Verify reports whether password matches hash. A malformed hash never
// matches.
func (v *Vault) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
