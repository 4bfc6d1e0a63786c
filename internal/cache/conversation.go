package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tbourn/go-llm-chat/internal/domain"
	"github.com/tbourn/go-llm-chat/internal/observability"
	"github.com/tbourn/go-llm-chat/internal/sysutil"
)

const keyPrefix = "conversation:"

// DefaultTTL is the sliding expiry applied when Options.TTL is not set.
const DefaultTTL = 24 * time.Hour

// Key returns the backend key for a session's conversation.
func Key(sessionID string) string { return keyPrefix + sessionID }

// Options tunes a ConversationCache.
type Options struct {
	TTL     time.Duration // sliding expiry, reset by every write
	Timeout time.Duration // bound on each backend round trip; 0 disables
	Locking bool          // serialize read-modify-write per session in-process
}

// ConversationCache is a cache-aside view of recent turns per session.
//
// Reads never fail: a miss, an unreachable backend and an undecodable value
// all load as an empty conversation. Writes report errors so the caller can
// count the gap against the durable log.
//
// Append is a read-modify-write of the whole list. With Locking enabled it is
// serialized per session inside this process only; two processes appending
// to the same session at once can still lose one update.
type ConversationCache struct {
	backend Backend
	ttl     time.Duration
	timeout time.Duration
	locks   *keyLock
}

// New returns a cache over backend.
func New(backend Backend, opts Options) *ConversationCache {
	c := &ConversationCache{
		backend: backend,
		ttl:     opts.TTL,
		timeout: opts.Timeout,
	}
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}
	if opts.Locking {
		c.locks = newKeyLock()
	}
	return c
}

// TTL reports the sliding expiry in effect.
func (c *ConversationCache) TTL() time.Duration { return c.ttl }

func (c *ConversationCache) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// Load returns the cached turns for sessionID, or an empty slice.
func (c *ConversationCache) Load(ctx context.Context, sessionID string) []domain.Turn {
	turns, _, _ := c.LoadChecked(ctx, sessionID)
	return turns
}

// LoadChecked is Load with the outcome exposed. hit is false on a miss. err
// wraps domain.ErrCacheDegraded when the backend failed or the value could
// not be decoded; turns is empty in both cases.
func (c *ConversationCache) LoadChecked(ctx context.Context, sessionID string) (turns []domain.Turn, hit bool, err error) {
	bctx, cancel := c.bound(ctx)
	defer cancel()

	raw, ok, err := c.backend.Get(bctx, Key(sessionID))
	if err != nil {
		c.degraded(ctx, "load", sessionID, err)
		return []domain.Turn{}, false, fmt.Errorf("%w: load: %v", domain.ErrCacheDegraded, err)
	}
	if !ok {
		return []domain.Turn{}, false, nil
	}
	turns, err = decode(raw)
	if err != nil {
		c.degraded(ctx, "decode", sessionID, err)
		return []domain.Turn{}, false, fmt.Errorf("%w: decode: %v", domain.ErrCacheDegraded, err)
	}
	return turns, true, nil
}

// Save overwrites the conversation and resets its TTL.
func (c *ConversationCache) Save(ctx context.Context, sessionID string, turns []domain.Turn) error {
	if c.locks != nil {
		defer c.locks.Lock(sessionID)()
	}
	return c.write(ctx, "save", sessionID, turns)
}

// Append adds one turn to the end of the conversation and resets its TTL.
// A value that cannot be decoded is replaced; a backend read failure aborts
// without writing so existing history is not clobbered.
func (c *ConversationCache) Append(ctx context.Context, sessionID, role, content string) error {
	if !domain.ValidRole(role) {
		return fmt.Errorf("%w: role %q", domain.ErrValidation, role)
	}
	if c.locks != nil {
		defer c.locks.Lock(sessionID)()
	}

	bctx, cancel := c.bound(ctx)
	raw, ok, err := c.backend.Get(bctx, Key(sessionID))
	cancel()
	if err != nil {
		c.degraded(ctx, "append", sessionID, err)
		return fmt.Errorf("%w: append: %v", domain.ErrCacheDegraded, err)
	}

	turns := []domain.Turn{}
	if ok {
		if prev, derr := decode(raw); derr == nil {
			turns = prev
		} else {
			c.degraded(ctx, "decode", sessionID, derr)
		}
	}
	turns = append(turns, domain.Turn{Role: role, Content: content})
	return c.write(ctx, "append", sessionID, turns)
}

// Delete evicts the conversation. Deleting a missing key is not an error.
func (c *ConversationCache) Delete(ctx context.Context, sessionID string) error {
	bctx, cancel := c.bound(ctx)
	defer cancel()
	if err := c.backend.Del(bctx, Key(sessionID)); err != nil {
		c.degraded(ctx, "delete", sessionID, err)
		return fmt.Errorf("%w: delete: %v", domain.ErrCacheDegraded, err)
	}
	return nil
}

// Ping reports backend liveness.
func (c *ConversationCache) Ping(ctx context.Context) error {
	bctx, cancel := c.bound(ctx)
	defer cancel()
	return c.backend.Ping(bctx)
}

func (c *ConversationCache) write(ctx context.Context, op, sessionID string, turns []domain.Turn) error {
	if turns == nil {
		turns = []domain.Turn{}
	}
	raw, err := json.Marshal(turns)
	if err != nil {
		return err
	}
	bctx, cancel := c.bound(ctx)
	defer cancel()
	if err := c.backend.Set(bctx, Key(sessionID), raw, c.ttl); err != nil {
		c.degraded(ctx, op, sessionID, err)
		return fmt.Errorf("%w: %s: %v", domain.ErrCacheDegraded, op, err)
	}
	return nil
}

func (c *ConversationCache) degraded(ctx context.Context, op, sessionID string, err error) {
	observability.CacheDegraded(op)
	sysutil.Log(ctx).Warn().
		Err(err).
		Str("op", op).
		Str("session_id", sessionID).
		Msg("conversation cache degraded")
}

func decode(raw []byte) ([]domain.Turn, error) {
	var turns []domain.Turn
	if err := json.Unmarshal(raw, &turns); err != nil {
		return nil, err
	}
	if turns == nil {
		turns = []domain.Turn{}
	}
	return turns, nil
}
