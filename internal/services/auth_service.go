package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-llm-chat/internal/domain"
	"github.com/tbourn/go-llm-chat/internal/repo"
)

// PasswordHasher hashes and checks passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

// Tokens issues and verifies bearer tokens.
type Tokens interface {
	Issue(username string, ttl time.Duration) (string, time.Time, error)
	Verify(token string) (string, error)
}

// AccessToken is the result of a successful login.
type AccessToken struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Registration is the validated input of Register.
type Registration struct {
	Username string `validate:"required,min=3,max=50,printascii"`
	Email    string `validate:"required,email,max=255"`
	Password string `validate:"required,max=72"`
}

// AuthService registers users, logs them in and resolves bearer tokens.
// It never reveals whether a login failed on the username or the password,
// and it keeps no failed-attempt state.
type AuthService struct {
	Users  UserStore
	Hasher PasswordHasher
	Tokens Tokens
}

// validate is safe for concurrent use and caches struct metadata.
var validate = validator.New()

func NewAuthService(users UserStore, hasher PasswordHasher, tokens Tokens) *AuthService {
	return &AuthService{Users: users, Hasher: hasher, Tokens: tokens}
}

// Register creates an active user. A taken username or email yields
// ErrUserExists; the unique indexes decide races the pre-check misses.
func (s *AuthService) Register(ctx context.Context, in Registration) (*domain.User, error) {
	ctx, span := otel.Tracer("services/AuthService").Start(ctx, "Register")
	defer span.End()

	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrValidation, describe(err))
	}
	if strings.ContainsAny(in.Username, " \t") {
		return nil, fmt.Errorf("%w: username must not contain spaces", domain.ErrValidation)
	}

	exists, err := s.Users.UserExists(ctx, in.Username, in.Email)
	if err != nil {
		return nil, dependency("check user", err)
	}
	if exists {
		return nil, ErrUserExists
	}

	hash, err := s.Hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	u, err := s.Users.CreateUser(ctx, in.Username, in.Email, hash)
	switch {
	case errors.Is(err, repo.ErrDuplicate):
		return nil, ErrUserExists
	case err != nil:
		return nil, dependency("create user", err)
	}
	span.SetAttributes(attribute.Int("user.id", int(u.ID)))
	return u, nil
}

// Login checks credentials and issues an access token.
func (s *AuthService) Login(ctx context.Context, username, password string) (*AccessToken, error) {
	ctx, span := otel.Tracer("services/AuthService").Start(ctx, "Login")
	defer span.End()

	u, err := s.Users.FindUserByUsername(ctx, strings.TrimSpace(username))
	switch {
	case repo.IsNotFound(err):
		return nil, ErrInvalidCredentials
	case err != nil:
		return nil, dependency("find user", err)
	}
	if !s.Hasher.Verify(password, u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	tok, exp, err := s.Tokens.Issue(u.Username, 0)
	if err != nil {
		return nil, err
	}
	return &AccessToken{AccessToken: tok, TokenType: "bearer", ExpiresAt: exp}, nil
}

// Authenticate resolves a bearer token to an active user. Any failure is an
// authentication error.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	ctx, span := otel.Tracer("services/AuthService").Start(ctx, "Authenticate",
		trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	username, err := s.Tokens.Verify(token)
	if err != nil {
		return nil, err
	}
	u, err := s.Users.FindUserByUsername(ctx, username)
	switch {
	case repo.IsNotFound(err):
		return nil, fmt.Errorf("%w: user not found", domain.ErrAuth)
	case err != nil:
		return nil, dependency("find user", err)
	}
	return u, nil
}

// describe turns validator errors into a short field list.
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
