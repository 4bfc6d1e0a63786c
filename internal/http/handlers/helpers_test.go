package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-llm-chat/internal/domain"
	"github.com/tbourn/go-llm-chat/internal/http/middleware"
	"github.com/tbourn/go-llm-chat/internal/repo"
	"github.com/tbourn/go-llm-chat/internal/services"
)

var (
	alice = &domain.User{ID: 1, Username: "alice", Email: "alice@example.com", IsActive: true}
	bob   = &domain.User{ID: 2, Username: "bob", Email: "bob@example.com", IsActive: true}
)

// tokenAuth accepts the username as the bearer token.
type tokenAuth struct{}

func (tokenAuth) Authenticate(_ context.Context, token string) (*domain.User, error) {
	switch token {
	case "alice":
		return alice, nil
	case "bob":
		return bob, nil
	}
	return nil, services.ErrInvalidCredentials
}

type fakeAuth struct {
	registered []services.Registration
	err        error
}

func (f *fakeAuth) Register(_ context.Context, in services.Registration) (*domain.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.registered = append(f.registered, in)
	return &domain.User{ID: 10, Username: in.Username, Email: in.Email, IsActive: true}, nil
}

func (f *fakeAuth) Login(_ context.Context, username, password string) (*services.AccessToken, error) {
	if username == "alice" && password == "correct-horse" {
		return &services.AccessToken{AccessToken: "tok", TokenType: "bearer", ExpiresAt: time.Unix(1700000000, 0).UTC()}, nil
	}
	return nil, services.ErrInvalidCredentials
}

// fakeSessions keeps sessions in a map owned by user id.
type fakeSessions struct {
	items   map[string]*domain.ChatSession
	listed  int
	listErr error
	updated time.Time
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{items: map[string]*domain.ChatSession{}, updated: time.Unix(1700000000, 0)}
}

func (f *fakeSessions) authorize(userID uint, id string) (*domain.ChatSession, error) {
	s, found := f.items[id]
	if !found || !s.IsActive {
		return nil, services.ErrSessionNotFound
	}
	if s.UserID != userID {
		return nil, domain.ErrForbidden
	}
	return s, nil
}

func (f *fakeSessions) Create(_ context.Context, userID uint, title string) (*domain.ChatSession, error) {
	if title == "" {
		title = domain.DefaultSessionTitle
	}
	s := &domain.ChatSession{ID: sessionID(len(f.items)), UserID: userID, Title: title, IsActive: true}
	f.items[s.ID] = s
	return s, nil
}

func (f *fakeSessions) ListPage(_ context.Context, userID uint, page, pageSize int) ([]domain.ChatSession, int64, error) {
	f.listed++
	if f.listErr != nil {
		return nil, 0, f.listErr
	}
	var out []domain.ChatSession
	for _, s := range f.items {
		if s.UserID == userID && s.IsActive {
			out = append(out, *s)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeSessions) UpdateTitle(_ context.Context, userID uint, id, title string) error {
	s, err := f.authorize(userID, id)
	if err != nil {
		return err
	}
	s.Title = title
	return nil
}

func (f *fakeSessions) Stats(_ context.Context, userID uint) (int64, *time.Time, error) {
	var n int64
	for _, s := range f.items {
		if s.UserID == userID && s.IsActive {
			n++
		}
	}
	ts := f.updated
	return n, &ts, nil
}

func sessionID(i int) string {
	ids := []string{
		"11111111-1111-4111-8111-111111111111",
		"22222222-2222-4222-8222-222222222222",
		"33333333-3333-4333-8333-333333333333",
	}
	return ids[i%len(ids)]
}

// fakeChat answers with "re: <message>" and shares session ownership with
// fakeSessions.
type fakeChat struct {
	sessions *fakeSessions
	turns    map[string][]domain.Turn
	err      error
	calls    int
	anonOK   bool
}

func newFakeChat(s *fakeSessions) *fakeChat {
	return &fakeChat{sessions: s, turns: map[string][]domain.Turn{}}
}

func (f *fakeChat) SimpleChat(_ context.Context, message string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if message == "" {
		return "", services.ErrEmptyPrompt
	}
	return "re: " + message, nil
}

func (f *fakeChat) ChatWithHistory(_ context.Context, user *domain.User, message, sid string) (string, string, error) {
	f.calls++
	if f.err != nil {
		return "", "", f.err
	}
	if message == "" {
		return "", "", services.ErrEmptyPrompt
	}
	if user == nil {
		if !f.anonOK {
			return "", "", services.ErrAuthRequired
		}
		if sid == "" {
			sid = sessionID(2)
		}
	} else if _, err := f.sessions.authorize(user.ID, sid); err != nil {
		return "", "", err
	}
	reply := "re: " + message
	f.turns[sid] = append(f.turns[sid],
		domain.Turn{Role: domain.RoleUser, Content: message},
		domain.Turn{Role: domain.RoleAssistant, Content: reply})
	return reply, sid, nil
}

func (f *fakeChat) Conversation(_ context.Context, userID uint, sid string) ([]domain.Turn, error) {
	if _, err := f.sessions.authorize(userID, sid); err != nil {
		return nil, err
	}
	return append([]domain.Turn{}, f.turns[sid]...), nil
}

func (f *fakeChat) DeleteConversation(_ context.Context, userID uint, sid string) error {
	s, err := f.sessions.authorize(userID, sid)
	if err != nil {
		return err
	}
	s.IsActive = false
	delete(f.turns, sid)
	return nil
}

func (f *fakeChat) History(_ context.Context, userID uint, sid string, page, pageSize int) ([]domain.Message, int64, error) {
	if _, err := f.sessions.authorize(userID, sid); err != nil {
		return nil, 0, err
	}
	var out []domain.Message
	for i, t := range f.turns[sid] {
		out = append(out, domain.Message{ID: uint(i + 1), SessionID: sid, UserID: userID, Role: t.Role, Content: t.Content})
	}
	return out, int64(len(out)), nil
}

func (f *fakeChat) MessagesStats(_ context.Context, userID uint, sid string) (int64, uint, error) {
	if _, err := f.sessions.authorize(userID, sid); err != nil {
		return 0, 0, err
	}
	n := len(f.turns[sid])
	return int64(n), uint(n), nil
}

func (f *fakeChat) Authorize(_ context.Context, userID uint, sid string) error {
	_, err := f.sessions.authorize(userID, sid)
	return err
}

type idemKey struct {
	user    uint
	session string
	key     string
}

type fakeIdem struct {
	recs map[idemKey]*domain.Idempotency
}

func newFakeIdem() *fakeIdem { return &fakeIdem{recs: map[idemKey]*domain.Idempotency{}} }

func (f *fakeIdem) GetIdempotency(_ context.Context, userID uint, sid, key string, now time.Time) (*domain.Idempotency, error) {
	rec, found := f.recs[idemKey{userID, sid, key}]
	if !found || rec.Expired(now) {
		return nil, repo.ErrNotFound
	}
	return rec, nil
}

func (f *fakeIdem) CreateIdempotency(_ context.Context, userID uint, sid, key, response string, status int, ttl time.Duration) (*domain.Idempotency, error) {
	k := idemKey{userID, sid, key}
	if _, dup := f.recs[k]; dup {
		return nil, repo.ErrDuplicate
	}
	now := time.Now().UTC()
	rec := &domain.Idempotency{UserID: userID, SessionID: sid, Key: key, Response: response, Status: status, CreatedAt: now, ExpiresAt: now.Add(ttl)}
	f.recs[k] = rec
	return rec, nil
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

var errDown = errors.New("down")

type fixture struct {
	h        *Handlers
	r        *gin.Engine
	auth     *fakeAuth
	sessions *fakeSessions
	chat     *fakeChat
	idem     *fakeIdem
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &fixture{auth: &fakeAuth{}, sessions: newFakeSessions(), idem: newFakeIdem()}
	f.chat = newFakeChat(f.sessions)
	f.h = New(f.auth, f.sessions, f.chat, Options{
		Idempotency: f.idem,
		Cache:       fakePinger{},
		Database:    fakePinger{},
	})

	r := gin.New()
	r.Use(middleware.Identify(tokenAuth{}))
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil))
	r.GET("/health", f.h.Health)
	r.POST("/auth/register", f.h.Register)
	r.POST("/auth/login", f.h.Login)
	r.POST("/simple-chat", f.h.SimpleChat)
	r.POST("/anonymous/chat", f.h.AnonymousChat)

	authed := r.Group("", middleware.RequireUser())
	authed.GET("/auth/me", f.h.Me)
	authed.POST("/sessions", f.h.CreateSession)
	authed.GET("/sessions", f.h.ListSessions)
	authed.PUT("/sessions/:id/title", f.h.UpdateSessionTitle)
	authed.GET("/sessions/:id/messages", f.h.ListMessages)
	authed.POST("/chat", f.h.Chat)
	authed.GET("/conversation/:id", f.h.GetConversation)
	authed.DELETE("/conversation/:id", f.h.DeleteConversation)
	f.r = r
	return f
}

// do sends a request as user ("" for anonymous) with an optional JSON body.
func (f *fixture) do(method, path, user string, body any, headers ...string) *httptest.ResponseRecorder {
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = bytes.NewBufferString(b)
	default:
		raw, _ := json.Marshal(b)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+user)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %T: %v\nbody: %s", v, err, w.Body.String())
	}
	return v
}

func wantStatus(t *testing.T, w *httptest.ResponseRecorder, status int) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status=%d want %d body=%s", w.Code, status, w.Body.String())
	}
}

func wantError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	wantStatus(t, w, status)
	if got := decode[ErrorResponse](t, w); got.Code != code {
		t.Fatalf("code=%q want %q", got.Code, code)
	}
}

// mustSession creates a session for user and returns its id.
func (f *fixture) mustSession(t *testing.T, user string) string {
	t.Helper()
	w := f.do(http.MethodPost, "/sessions", user, nil)
	wantStatus(t, w, http.StatusCreated)
	return decode[domain.ChatSession](t, w).ID
}

func dependencyErr() error {
	return fmt.Errorf("%w: list sessions: %w", domain.ErrDependency, errDown)
}
