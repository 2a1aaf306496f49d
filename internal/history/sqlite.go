package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/seongmin-ku/bedrockchat/internal/conversation"
)

// SQLiteStore is a local Store for development and tests, so the service
// can keep multi-turn sessions without a DynamoDB table. SQLite has no
// native TTL; expiry is enforced by filtering reads and purging on write.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (and if needed creates) the session database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_busy_timeout=10000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		messages   TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	);`); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite create table: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetTurns(ctx context.Context, sessionID string) ([]conversation.Turn, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT messages FROM sessions WHERE session_id = ? AND expires_at > ?;`,
		sessionID, s.now().Unix(),
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite select: %w", err)
	}
	var turns []conversation.Turn
	if err := json.Unmarshal([]byte(raw), &turns); err != nil {
		return nil, fmt.Errorf("unmarshal session record: %w", err)
	}
	return turns, nil
}

func (s *SQLiteStore) PutTurns(ctx context.Context, sessionID string, turns []conversation.Turn, updatedAt, expiresAt int64) error {
	raw, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("marshal session record: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, messages, updated_at, expires_at) VALUES (?,?,?,?)
		 ON CONFLICT(session_id) DO UPDATE SET messages = excluded.messages,
		 updated_at = excluded.updated_at, expires_at = excluded.expires_at;`,
		sessionID, string(raw), updatedAt, expiresAt,
	); err != nil {
		return fmt.Errorf("sqlite upsert: %w", err)
	}
	// Opportunistic cleanup; DynamoDB reaps via its ttl attribute, here we
	// do it ourselves.
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at <= ?;`, s.now().Unix(),
	); err != nil {
		return fmt.Errorf("sqlite purge expired: %w", err)
	}
	return nil
}
