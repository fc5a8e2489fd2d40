package graph

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/OFFIS-RIT/trailgraph/pkg/common"
	"github.com/OFFIS-RIT/trailgraph/pkg/evidence"
	"github.com/OFFIS-RIT/trailgraph/pkg/logger"
	"github.com/OFFIS-RIT/trailgraph/pkg/store"
)

// Manager keeps the open sessions of one process and persists every
// committed snapshot to a SessionStore. Sessions are independent; the
// manager lock only guards the session table.
//
// When several processes share a store, a session is reloaded whenever the
// store holds a newer version than the one in memory.
type Manager struct {
	client *GraphClient
	store  store.SessionStore

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a manager. A nil store keeps sessions in memory only.
func NewManager(client *GraphClient, st store.SessionStore) *Manager {
	return &Manager{
		client:   client,
		store:    st,
		sessions: make(map[string]*Session),
	}
}

// Open starts a new session for query and persists its empty state.
func (m *Manager) Open(ctx context.Context, query string) (*Session, error) {
	s, err := m.client.NewSession(query)
	if err != nil {
		return nil, err
	}
	if err := m.persist(ctx, s.Snapshot()); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	logger.Info("[Manager] Session opened", "session", s.ID, "query", s.Query)
	return s, nil
}

// Get returns the session with id, restoring it from the store when it is
// not open in this process or when the stored version is newer.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	cached := m.sessions[id]
	m.mu.Unlock()

	if m.store == nil {
		if cached == nil {
			return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
		}
		return cached, nil
	}

	state, err := m.store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		if cached != nil {
			return cached, nil
		}
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		if cached != nil {
			logger.Warn("[Manager] Failed to check stored session, using open copy", "session", id, "err", err)
			return cached, nil
		}
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	if cached != nil && cached.Snapshot().Version >= state.Version {
		return cached, nil
	}

	s, err := m.client.RestoreSession(state)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if current := m.sessions[id]; current != nil && current != cached {
		// Another caller restored it first.
		s.release()
		return current, nil
	}
	if cached != nil {
		cached.release()
	}
	m.sessions[id] = s
	logger.Debug("[Manager] Session restored", "session", id, "version", state.Version)
	return s, nil
}

// Ingest applies one evidence batch to the session and persists the result.
func (m *Manager) Ingest(ctx context.Context, id string, batch []common.Evidence) (*BatchReport, error) {
	s, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	report, err := s.Ingest(ctx, batch)
	if err != nil {
		return nil, err
	}
	if err := m.persist(ctx, s.Snapshot()); err != nil {
		return report, err
	}
	return report, nil
}

// MergeNodes merges nodes of the session and persists the result.
func (m *Manager) MergeNodes(ctx context.Context, id, keep string, drop ...string) (*Snapshot, error) {
	s, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	snap, err := s.MergeNodes(ctx, keep, drop...)
	if err != nil {
		return nil, err
	}
	return snap, m.persist(ctx, snap)
}

// Run collects and ingests evidence for the session, then persists the
// final snapshot. A partial run still persists what was committed.
func (m *Manager) Run(ctx context.Context, id string, collector evidence.Collector, opts RunOptions) (*RunReport, error) {
	s, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	report, runErr := s.Run(ctx, collector, opts)
	if report != nil && len(report.Batches) > 0 {
		persistCtx := context.WithoutCancel(ctx)
		if err := m.persist(persistCtx, s.Snapshot()); err != nil {
			return report, errors.Join(runErr, err)
		}
	}
	return report, runErr
}

// Close cancels the session and persists it as closed, so no process
// accepts further evidence or merges for it. Its committed state stays
// readable.
func (m *Manager) Close(ctx context.Context, id string) error {
	s, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := m.persist(ctx, s.Close()); err != nil {
		return err
	}
	logger.Info("[Manager] Session closed", "session", id)
	return nil
}

// Delete stops the session and removes its persisted state.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		s.release()
	}
	if m.store == nil {
		if !ok {
			return fmt.Errorf("session %s: %w", id, ErrNotFound)
		}
		return nil
	}
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	logger.Info("[Manager] Session deleted", "session", id)
	return nil
}

// Sessions returns the ids of the sessions loaded in this process.
func (m *Manager) Sessions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// CloseAll stops every session loaded in this process. Their persisted
// state is left open.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.release()
	}
}

func (m *Manager) persist(ctx context.Context, snap *Snapshot) error {
	if m.store == nil {
		return nil
	}
	if err := m.store.Put(ctx, snap.State()); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			logger.Warn("[Manager] Newer session state already stored", "session", snap.SessionID, "version", snap.Version)
		}
		return fmt.Errorf("failed to persist session %s: %w", snap.SessionID, err)
	}
	return nil
}
