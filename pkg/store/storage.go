package store

import (
	"context"
	"errors"

	"github.com/OFFIS-RIT/trailgraph/pkg/common"
)

var (
	ErrNotFound        = errors.New("session not found")
	ErrVersionConflict = errors.New("session version conflict")
)

// SessionStore persists committed investigation sessions. Implementations
// must reject a Put whose version is older than the stored one with
// ErrVersionConflict, so a slow writer cannot overwrite newer state.
// Get returns ErrNotFound for unknown or expired sessions.
type SessionStore interface {
	Get(ctx context.Context, id string) (*common.SessionState, error)
	Put(ctx context.Context, state *common.SessionState) error
	Delete(ctx context.Context, id string) error
}
