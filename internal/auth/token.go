package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tbourn/go-llm-chat/internal/domain"
)

// ErrInvalidToken is returned for any token that does not verify. It wraps
// domain.ErrAuth.
var ErrInvalidToken = fmt.Errorf("%w: invalid or expired token", domain.ErrAuth)

// DefaultTokenTTL applies when neither the caller nor the service sets one.
const DefaultTokenTTL = 30 * time.Minute

// Claims is the token payload: sub carries the username.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256 access tokens.
//
// Tokens are stateless and there is no revocation list. A token stays valid
// until exp; logging out means the client discards it.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService returns a service signing with secret. ttl<=0 selects
// DefaultTokenTTL.
func NewTokenService(secret string, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// WithClock replaces the time source and returns the service.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.now = now
	return s
}

// TTL is the default lifetime applied by Issue.
func (s *TokenService) TTL() time.Duration { return s.ttl }

// Issue signs a token for username valid for ttl (the service default when
// ttl<=0) and returns it with its expiry.
func (s *TokenService) Issue(username string, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(username) == "" {
		return "", time.Time{}, fmt.Errorf("%w: username is required", domain.ErrValidation)
	}
	if ttl <= 0 {
		ttl = s.ttl
	}
	now := s.now().UTC().Truncate(time.Second)
	exp := now.Add(ttl)

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Verify returns the username carried by a valid token, or ErrInvalidToken.
func (s *TokenService) Verify(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{},
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", errors.Join(ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
