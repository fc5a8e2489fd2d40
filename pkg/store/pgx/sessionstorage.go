package pgx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/trailgraph/pkg/common"
	"github.com/OFFIS-RIT/trailgraph/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
}

// SessionDBStorage implements store.SessionStore on PostgreSQL. The state
// is kept as JSONB next to its version; writes only apply when they do not
// go back in version.
type SessionDBStorage struct {
	conn pgxIConn
	ttl  time.Duration
}

type SessionDBStorageOption func(*SessionDBStorage)

// WithTTL makes Get treat sessions not updated within ttl as missing.
func WithTTL(ttl time.Duration) SessionDBStorageOption {
	return func(s *SessionDBStorage) {
		s.ttl = ttl
	}
}

// NewSessionDBStorageWithConnection creates a store on an existing
// connection or pool. Run Migrate first.
func NewSessionDBStorageWithConnection(conn pgxIConn, opts ...SessionDBStorageOption) *SessionDBStorage {
	s := &SessionDBStorage{conn: conn}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	return s
}

func (s *SessionDBStorage) Get(ctx context.Context, id string) (*common.SessionState, error) {
	var data []byte
	var updatedAt time.Time
	err := s.conn.QueryRow(ctx, getSessionSQL, id).Scan(&data, &updatedAt)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	if s.ttl > 0 && time.Since(updatedAt) > s.ttl {
		return nil, fmt.Errorf("session %s expired: %w", id, store.ErrNotFound)
	}
	return store.DecodeState(data)
}

func (s *SessionDBStorage) Put(ctx context.Context, state *common.SessionState) error {
	data, err := store.EncodeState(state)
	if err != nil {
		return err
	}
	updatedAt := state.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	tag, err := s.conn.Exec(ctx, putSessionSQL, state.ID, state.Query, state.Version, data, updatedAt)
	if err != nil {
		return fmt.Errorf("failed to store session %s: %w", state.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s at version %d: %w", state.ID, state.Version, store.ErrVersionConflict)
	}
	return nil
}

func (s *SessionDBStorage) Delete(ctx context.Context, id string) error {
	if _, err := s.conn.Exec(ctx, deleteSessionSQL, id); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

// Sweep deletes sessions not updated since before. It returns the number
// of deleted sessions.
func (s *SessionDBStorage) Sweep(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.conn.Exec(ctx, sweepSessionsSQL, before)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

const getSessionSQL = `
SELECT state, updated_at
FROM investigation_sessions
WHERE id = $1;
`

const putSessionSQL = `
INSERT INTO investigation_sessions (id, query, version, state, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE
SET query      = EXCLUDED.query,
    version    = EXCLUDED.version,
    state      = EXCLUDED.state,
    updated_at = EXCLUDED.updated_at
WHERE investigation_sessions.version <= EXCLUDED.version;
`

const deleteSessionSQL = `
DELETE FROM investigation_sessions
WHERE id = $1;
`

const sweepSessionsSQL = `
DELETE FROM investigation_sessions
WHERE updated_at < $1;
`
