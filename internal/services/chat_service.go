// Package services – ChatService
//
// ChatService runs chat turns. A turn with history authorizes the session,
// loads recent turns from the conversation cache (rebuilding from the durable
// log on a miss), calls the completion provider, then writes the user and
// assistant turns to the durable log and afterwards to the cache.
//
// The two writes are not atomic with each other. The durable log is written
// first and is the source of truth: if it fails the turn fails and the cache
// is untouched. If the cache write fails after the durable write succeeded,
// the key is evicted so the next read rebuilds it.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-llm-chat/internal/domain"
	"github.com/tbourn/go-llm-chat/internal/llm"
	"github.com/tbourn/go-llm-chat/internal/observability"
	"github.com/tbourn/go-llm-chat/internal/repo"
	"github.com/tbourn/go-llm-chat/internal/sysutil"
	"github.com/tbourn/go-llm-chat/internal/utils"
)

// DefaultLLMTimeout bounds a provider call when ChatService.LLMTimeout is unset.
const DefaultLLMTimeout = 60 * time.Second

// ChatService orchestrates chat turns across the cache, the durable log and
// the completion provider.
type ChatService struct {
	Sessions SessionStore
	Messages MessageStore
	Auth     Authorizer
	Cache    ConversationCache
	LLM      llm.Provider
	Titles   Titler

	LLMTimeout       time.Duration
	MaxPromptRunes   int
	AnonymousEnabled bool
}

// SimpleChat answers a single message with no history and no persistence.
func (s *ChatService) SimpleChat(ctx context.Context, message string) (string, error) {
	ctx, span := otel.Tracer("services/ChatService").Start(ctx, "SimpleChat")
	defer span.End()

	prompt, err := s.validatePrompt(message)
	if err != nil {
		return "", err
	}
	return s.complete(ctx, span, []domain.Turn{{Role: domain.RoleUser, Content: prompt}})
}

// ChatWithHistory runs one turn in sessionID and returns the reply together
// with the session id used.
//
// With user set the session must exist, be active and belong to the user.
// With user nil the turn is anonymous: allowed only when AnonymousEnabled,
// kept in the cache only, and a fresh session id is minted when none is
// given.
func (s *ChatService) ChatWithHistory(ctx context.Context, user *domain.User, message, sessionID string) (string, string, error) {
	ctx, span := otel.Tracer("services/ChatService").Start(ctx, "ChatWithHistory",
		trace.WithAttributes(attribute.Bool("chat.anonymous", user == nil)))
	defer span.End()

	prompt, err := s.validatePrompt(message)
	if err != nil {
		return "", "", err
	}
	sessionID = strings.TrimSpace(sessionID)

	var sess *domain.ChatSession
	if user != nil {
		if sessionID == "" {
			return "", "", ErrSessionRequired
		}
		if sess, err = s.Auth.Authorize(ctx, sessionID, user.ID); err != nil {
			return "", "", err
		}
		span.SetAttributes(attribute.Int("user.id", int(user.ID)))
	} else {
		if sessionID, err = s.anonymousSession(ctx, sessionID); err != nil {
			return "", "", err
		}
	}
	span.SetAttributes(attribute.String("session.id", sessionID))

	history, err := s.history(ctx, sessionID, user != nil)
	if err != nil {
		return "", "", err
	}

	input := make([]domain.Turn, 0, len(history)+1)
	input = append(input, history...)
	input = append(input, domain.Turn{Role: domain.RoleUser, Content: prompt})

	reply, err := s.complete(ctx, span, input)
	if err != nil {
		return "", "", err
	}

	if user != nil {
		if err := s.persist(ctx, sess, user.ID, prompt, reply); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "durable write")
			return "", "", err
		}
	}
	s.cacheTurn(ctx, sessionID, prompt, reply, user != nil)

	return reply, sessionID, nil
}

// Conversation returns the cached turns of a session the user owns, rebuilt
// from the durable log when the cache has none.
func (s *ChatService) Conversation(ctx context.Context, userID uint, sessionID string) ([]domain.Turn, error) {
	ctx, span := otel.Tracer("services/ChatService").Start(ctx, "Conversation",
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	if _, err := s.Auth.Authorize(ctx, sessionID, userID); err != nil {
		return nil, err
	}
	return s.history(ctx, sessionID, true)
}

// Authorize checks that sessionID is active and owned by userID.
func (s *ChatService) Authorize(ctx context.Context, userID uint, sessionID string) error {
	_, err := s.Auth.Authorize(ctx, sessionID, userID)
	return err
}

// DeleteConversation soft-deletes a session the user owns and evicts its
// cached conversation. The message log is kept.
func (s *ChatService) DeleteConversation(ctx context.Context, userID uint, sessionID string) error {
	ctx, span := otel.Tracer("services/ChatService").Start(ctx, "DeleteConversation",
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	if _, err := s.Auth.Authorize(ctx, sessionID, userID); err != nil {
		return err
	}
	if err := s.Sessions.DeactivateSession(ctx, sessionID); err != nil {
		return dependency("deactivate session", err)
	}
	// The session is already inactive, so a stale key is unreachable and
	// expires with its TTL.
	_ = s.Cache.Delete(ctx, sessionID)
	return nil
}

// History returns a page of the durable log of a session the user owns.
func (s *ChatService) History(ctx context.Context, userID uint, sessionID string, page, pageSize int) ([]domain.Message, int64, error) {
	ctx, span := otel.Tracer("services/ChatService").Start(ctx, "History",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		))
	defer span.End()

	if _, err := s.Auth.Authorize(ctx, sessionID, userID); err != nil {
		return nil, 0, err
	}
	_, size, offset := utils.Page(page, pageSize, defaultPageSize, maxPageSize)

	total, err := s.Messages.CountMessages(ctx, sessionID)
	if err != nil {
		return nil, 0, dependency("count messages", err)
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}
	items, err := s.Messages.ListMessagesPage(ctx, sessionID, offset, size)
	if err != nil {
		return nil, 0, dependency("list messages", err)
	}
	return items, total, nil
}

// MessagesStats returns (count, newest id) for a session the user owns.
func (s *ChatService) MessagesStats(ctx context.Context, userID uint, sessionID string) (int64, uint, error) {
	if _, err := s.Auth.Authorize(ctx, sessionID, userID); err != nil {
		return 0, 0, err
	}
	n, last, err := s.Messages.MessagesStats(ctx, sessionID)
	if err != nil {
		return 0, 0, dependency("message stats", err)
	}
	return n, last, nil
}

func (s *ChatService) validatePrompt(message string) (string, error) {
	prompt := strings.TrimSpace(message)
	if prompt == "" {
		return "", ErrEmptyPrompt
	}
	if s.MaxPromptRunes > 0 && utf8.RuneCountInString(prompt) > s.MaxPromptRunes {
		return "", ErrTooLong
	}
	return prompt, nil
}

// anonymousSession returns the id for an anonymous turn. Ids that belong to a
// durable session are refused so anonymous callers cannot reach a user's
// cached conversation.
func (s *ChatService) anonymousSession(ctx context.Context, sessionID string) (string, error) {
	if !s.AnonymousEnabled {
		return "", ErrAuthRequired
	}
	if sessionID == "" {
		return uuid.NewString(), nil
	}
	if _, err := uuid.Parse(sessionID); err != nil {
		return "", fmt.Errorf("%w: session_id must be a UUID", domain.ErrValidation)
	}
	_, err := s.Sessions.GetSession(ctx, sessionID)
	switch {
	case err == nil:
		return "", fmt.Errorf("%w: session %s", domain.ErrForbidden, sessionID)
	case errors.Is(err, repo.ErrNotFound):
		return sessionID, nil
	default:
		return "", dependency("load session", err)
	}
}

// history loads cached turns. For durable sessions a miss is rebuilt from the
// message log and written back when the cache is healthy.
func (s *ChatService) history(ctx context.Context, sessionID string, durable bool) ([]domain.Turn, error) {
	turns, hit, cerr := s.Cache.LoadChecked(ctx, sessionID)
	if hit || !durable {
		return turns, nil
	}

	msgs, err := s.Messages.ListMessages(ctx, sessionID, 0)
	if err != nil {
		return nil, dependency("load history", err)
	}
	turns = domain.Turns(msgs)
	if cerr == nil && len(turns) > 0 {
		_ = s.Cache.Save(ctx, sessionID, turns)
	}
	return turns, nil
}

func (s *ChatService) complete(ctx context.Context, span trace.Span, turns []domain.Turn) (string, error) {
	timeout := s.LLMTimeout
	if timeout <= 0 {
		timeout = DefaultLLMTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	reply, err := s.LLM.Complete(cctx, turns)
	elapsed := time.Since(start)

	if err != nil {
		outcome := "error"
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(cctx.Err(), context.DeadlineExceeded) {
			outcome = "timeout"
			err = fmt.Errorf("%w (after %s)", context.DeadlineExceeded, timeout)
		}
		observability.ObserveCompletion(outcome, elapsed)
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion")
		sysutil.Log(ctx).Error().Err(err).Str("outcome", outcome).Dur("elapsed", elapsed).Msg("completion failed")
		return "", dependency("completion", err)
	}
	observability.ObserveCompletion("ok", elapsed)
	return reply, nil
}

// persist writes the user and assistant turns to the durable log as one unit
// and replaces a placeholder title with one derived from the prompt.
func (s *ChatService) persist(ctx context.Context, sess *domain.ChatSession, userID uint, prompt, reply string) error {
	if _, err := s.Messages.AppendExchange(ctx, sess.ID, userID, prompt, reply); err != nil {
		observability.DualWriteGap(observability.StageStore)
		return dependency("append turn", err)
	}

	if isPlaceholder(sess.Title) {
		if title := s.Titles.FromPrompt(prompt); title != "" {
			if err := s.Sessions.UpdateSessionTitle(ctx, sess.ID, title); err != nil {
				sysutil.Log(ctx).Warn().Err(err).Str("session_id", sess.ID).Msg("auto-title failed")
			} else {
				sess.Title = title
			}
		}
	}
	return nil
}

// cacheTurn appends both turns to the cache. Failures are absorbed; for
// durable sessions the key is evicted so the next read rebuilds it.
func (s *ChatService) cacheTurn(ctx context.Context, sessionID, prompt, reply string, durable bool) {
	err := s.Cache.Append(ctx, sessionID, domain.RoleUser, prompt)
	if err == nil {
		err = s.Cache.Append(ctx, sessionID, domain.RoleAssistant, reply)
	}
	if err == nil {
		return
	}
	observability.DualWriteGap(observability.StageCache)
	sysutil.Log(ctx).Warn().Err(err).Str("session_id", sessionID).Bool("durable", durable).Msg("conversation cache write failed")
	if durable {
		_ = s.Cache.Delete(ctx, sessionID)
	}
}
