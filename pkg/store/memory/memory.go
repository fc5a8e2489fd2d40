// Package memory keeps session states in process memory with an
// expiry, for single-process deployments and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/OFFIS-RIT/trailgraph/pkg/common"
	"github.com/OFFIS-RIT/trailgraph/pkg/store"

	gocache "github.com/patrickmn/go-cache"
)

type entry struct {
	version int
	data    []byte
}

// Store implements store.SessionStore on an expiring in-memory cache.
// States are stored encoded so callers never share memory with the store.
type Store struct {
	cache *gocache.Cache
	ttl   time.Duration
	mu    sync.Mutex
}

// New creates a store whose sessions expire ttl after their last Put. A
// ttl of zero keeps sessions until they are deleted.
func New(ttl time.Duration) *Store {
	cleanup := ttl
	if ttl <= 0 {
		ttl = gocache.NoExpiration
		cleanup = 0
	}
	return &Store{
		cache: gocache.New(ttl, cleanup),
		ttl:   ttl,
	}
}

func (s *Store) Get(ctx context.Context, id string) (*common.SessionState, error) {
	val, ok := s.cache.Get(id)
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, store.ErrNotFound)
	}
	return store.DecodeState(val.(entry).data)
}

func (s *Store) Put(ctx context.Context, state *common.SessionState) error {
	data, err := store.EncodeState(state)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if val, ok := s.cache.Get(state.ID); ok {
		if err := store.CheckVersion(state.ID, val.(entry).version, state.Version); err != nil {
			return err
		}
	}
	s.cache.Set(state.ID, entry{version: state.Version, data: data}, s.ttl)
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.cache.Delete(id)
	return nil
}

// Len returns the number of stored sessions, expired ones included until
// the next cleanup.
func (s *Store) Len() int {
	return s.cache.ItemCount()
}
