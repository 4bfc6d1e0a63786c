package handlers

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/tbourn/go-llm-chat/internal/domain"
)

func TestChat_RunsTurnInOwnedSession(t *testing.T) {
	f := newFixture(t)
	id := f.mustSession(t, "alice")

	w := f.do(http.MethodPost, "/chat", "alice", ChatRequest{Message: "hello", SessionID: id})
	wantStatus(t, w, http.StatusOK)
	resp := decode[ChatResponse](t, w)
	if resp.Response != "re: hello" || resp.SessionID != id || resp.Status != "success" {
		t.Fatalf("resp=%+v", resp)
	}
	if w.Header().Get("Idempotency-Replayed") != "" {
		t.Fatal("first call flagged as replay")
	}
}

func TestChat_Errors(t *testing.T) {
	f := newFixture(t)
	id := f.mustSession(t, "alice")

	wantError(t, f.do(http.MethodPost, "/chat", "", ChatRequest{Message: "hi", SessionID: id}), http.StatusUnauthorized, ErrCodeUnauthorized)
	wantError(t, f.do(http.MethodPost, "/chat", "bob", ChatRequest{Message: "hi", SessionID: id}), http.StatusForbidden, ErrCodeForbidden)
	wantError(t, f.do(http.MethodPost, "/chat", "alice", ChatRequest{Message: "", SessionID: id}), http.StatusBadRequest, ErrCodeBadRequest)
	wantError(t, f.do(http.MethodPost, "/chat", "alice", `[1,2]`), http.StatusBadRequest, ErrCodeBadRequest)

	f.chat.err = fmt.Errorf("%w: completion: %w", domain.ErrDependency, context.DeadlineExceeded)
	wantError(t, f.do(http.MethodPost, "/chat", "alice", ChatRequest{Message: "hi", SessionID: id}), http.StatusGatewayTimeout, ErrCodeDependencyFailed)
	f.chat.err = fmt.Errorf("%w: append message: %w", domain.ErrDependency, errDown)
	wantError(t, f.do(http.MethodPost, "/chat", "alice", ChatRequest{Message: "hi", SessionID: id}), http.StatusBadGateway, ErrCodeDependencyFailed)
}

func TestChat_IdempotentReplay(t *testing.T) {
	f := newFixture(t)
	id := f.mustSession(t, "alice")
	req := ChatRequest{Message: "hello", SessionID: id}

	first := f.do(http.MethodPost, "/chat", "alice", req, "Idempotency-Key", "k-1")
	wantStatus(t, first, http.StatusOK)

	second := f.do(http.MethodPost, "/chat", "alice", req, "Idempotency-Key", "k-1")
	wantStatus(t, second, http.StatusOK)
	if second.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatal("retry not replayed")
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("replay body differs:\n%s\n%s", first.Body.String(), second.Body.String())
	}
	if f.chat.calls != 1 {
		t.Fatalf("provider path ran %d times", f.chat.calls)
	}
	if n := len(f.chat.turns[id]); n != 2 {
		t.Fatalf("turn appended twice: %d turns", n)
	}

	// Same key from another user is not a replay of Alice's turn.
	wantError(t, f.do(http.MethodPost, "/chat", "bob", req, "Idempotency-Key", "k-1"), http.StatusForbidden, ErrCodeForbidden)

	// A new key runs a new turn.
	wantStatus(t, f.do(http.MethodPost, "/chat", "alice", req, "Idempotency-Key", "k-2"), http.StatusOK)
	if f.chat.calls != 3 {
		t.Fatalf("calls=%d", f.chat.calls)
	}
}

func TestChat_ReplayAfterDelete_NotFound(t *testing.T) {
	f := newFixture(t)
	id := f.mustSession(t, "alice")
	req := ChatRequest{Message: "hello", SessionID: id}

	wantStatus(t, f.do(http.MethodPost, "/chat", "alice", req, "Idempotency-Key", "k-1"), http.StatusOK)
	wantStatus(t, f.do(http.MethodDelete, "/conversation/"+id, "alice", nil), http.StatusOK)

	w := f.do(http.MethodPost, "/chat", "alice", req, "Idempotency-Key", "k-1")
	wantError(t, w, http.StatusNotFound, ErrCodeNotFound)
	if w.Header().Get("Idempotency-Replayed") != "" {
		t.Fatal("deleted session was replayed")
	}
	if f.chat.calls != 1 {
		t.Fatalf("provider path ran %d times", f.chat.calls)
	}
}

func TestChat_FailedTurnIsNotRecorded(t *testing.T) {
	f := newFixture(t)
	id := f.mustSession(t, "alice")
	req := ChatRequest{Message: "hello", SessionID: id}

	f.chat.err = fmt.Errorf("%w: completion: %w", domain.ErrDependency, errDown)
	wantStatus(t, f.do(http.MethodPost, "/chat", "alice", req, "Idempotency-Key", "k-1"), http.StatusBadGateway)
	if len(f.idem.recs) != 0 {
		t.Fatal("failed turn recorded for replay")
	}

	f.chat.err = nil
	w := f.do(http.MethodPost, "/chat", "alice", req, "Idempotency-Key", "k-1")
	wantStatus(t, w, http.StatusOK)
	if w.Header().Get("Idempotency-Replayed") != "" {
		t.Fatal("retry after failure must run the turn")
	}
}

func TestAnonymousChat(t *testing.T) {
	f := newFixture(t)

	wantError(t, f.do(http.MethodPost, "/anonymous/chat", "", ChatRequest{Message: "hi"}), http.StatusUnauthorized, ErrCodeUnauthorized)

	f.chat.anonOK = true
	w := f.do(http.MethodPost, "/anonymous/chat", "", ChatRequest{Message: "hi"})
	wantStatus(t, w, http.StatusOK)
	if resp := decode[ChatResponse](t, w); resp.SessionID == "" || resp.Response != "re: hi" {
		t.Fatalf("resp=%+v", resp)
	}
}

func TestSimpleChat(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/simple-chat", "", SimpleChatRequest{Message: "joke"})
	wantStatus(t, w, http.StatusOK)
	if resp := decode[SimpleChatResponse](t, w); resp.Response != "re: joke" || resp.Status != "success" {
		t.Fatalf("resp=%+v", resp)
	}
	wantError(t, f.do(http.MethodPost, "/simple-chat", "", SimpleChatRequest{}), http.StatusBadRequest, ErrCodeBadRequest)
}

func TestConversation_GetAndDelete(t *testing.T) {
	f := newFixture(t)
	id := f.mustSession(t, "alice")
	wantStatus(t, f.do(http.MethodPost, "/chat", "alice", ChatRequest{Message: "hello", SessionID: id}), http.StatusOK)

	w := f.do(http.MethodGet, "/conversation/"+id, "alice", nil)
	wantStatus(t, w, http.StatusOK)
	conv := decode[ConversationResponse](t, w)
	want := []domain.Turn{{Role: domain.RoleUser, Content: "hello"}, {Role: domain.RoleAssistant, Content: "re: hello"}}
	if conv.SessionID != id || len(conv.Conversation) != 2 || conv.Conversation[0] != want[0] || conv.Conversation[1] != want[1] {
		t.Fatalf("conv=%+v", conv)
	}

	// Another user reading Alice's conversation is forbidden, not "not found".
	wantError(t, f.do(http.MethodGet, "/conversation/"+id, "bob", nil), http.StatusForbidden, ErrCodeForbidden)
	wantError(t, f.do(http.MethodDelete, "/conversation/"+id, "bob", nil), http.StatusForbidden, ErrCodeForbidden)
	wantError(t, f.do(http.MethodGet, "/conversation/nope", "alice", nil), http.StatusBadRequest, ErrCodeBadRequest)

	w = f.do(http.MethodDelete, "/conversation/"+id, "alice", nil)
	wantStatus(t, w, http.StatusOK)
	if del := decode[DeleteResponse](t, w); del.SessionID != id || del.Status != "success" {
		t.Fatalf("delete=%+v", del)
	}
	wantError(t, f.do(http.MethodGet, "/conversation/"+id, "alice", nil), http.StatusNotFound, ErrCodeNotFound)
	wantError(t, f.do(http.MethodDelete, "/conversation/"+id, "alice", nil), http.StatusNotFound, ErrCodeNotFound)
}
