// Package history persists bounded, expiring conversation records keyed by
// an opaque session id. Persistence is advisory: a broken or absent store
// must never fail the user-facing request, so every gateway operation
// degrades to a no-op and logs the error it swallowed.
package history

import (
	"context"
	"time"

	"github.com/seongmin-ku/bedrockchat/internal/conversation"
	"github.com/seongmin-ku/bedrockchat/internal/logger"
)

// MaxTurns bounds the persisted conversation: 10 user/assistant exchanges.
const MaxTurns = 20

// TTL is how long a session record survives after its last write. The
// expiry is absolute and recomputed on every write, not sliding per-read.
const TTL = 24 * time.Hour

// Store is the key-value capability the gateway runs against. GetTurns
// returns (nil, nil) when the key does not exist.
type Store interface {
	GetTurns(ctx context.Context, sessionID string) ([]conversation.Turn, error)
	PutTurns(ctx context.Context, sessionID string, turns []conversation.Turn, updatedAt, expiresAt int64) error
}

// Gateway applies the truncation and expiry policy on top of a Store.
// A nil store disables persistence entirely.
type Gateway struct {
	store Store
	now   func() time.Time
}

// NewGateway wraps store; pass nil to run session-less.
func NewGateway(store Store) *Gateway {
	return &Gateway{store: store, now: time.Now}
}

// Load returns the prior turns for a session. It never fails the caller:
// an unconfigured store, a missing key, or a read error all yield an empty
// conversation.
func (g *Gateway) Load(ctx context.Context, sessionID string) []conversation.Turn {
	if g.store == nil {
		logger.L.Debug("history store not configured, session-less mode", "session_id", sessionID)
		return nil
	}
	turns, err := g.store.GetTurns(ctx, sessionID)
	if err != nil {
		logger.L.Error("history load failed, continuing without prior turns", "session_id", sessionID, "error", err)
		return nil
	}
	logger.L.Debug("history loaded", "session_id", sessionID, "turns", len(turns))
	return turns
}

// Save persists the conversation, truncated to the most recent MaxTurns
// (the just-produced assistant turn counts toward the bound), stamped with
// the write time and a fresh absolute expiry. Failures are logged and
// swallowed.
func (g *Gateway) Save(ctx context.Context, sessionID string, turns []conversation.Turn) {
	if g.store == nil {
		return
	}
	turns = conversation.Tail(turns, MaxTurns)
	now := g.now()
	updatedAt := now.Unix()
	expiresAt := now.Add(TTL).Unix()
	if err := g.store.PutTurns(ctx, sessionID, turns, updatedAt, expiresAt); err != nil {
		logger.L.Error("history save failed, response already delivered", "session_id", sessionID, "error", err)
		return
	}
	logger.L.Debug("history saved", "session_id", sessionID, "turns", len(turns))
}
