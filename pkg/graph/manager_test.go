package graph

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/OFFIS-RIT/trailgraph/pkg/evidence/fixture"
	"github.com/OFFIS-RIT/trailgraph/pkg/store/memory"
)

func TestManagerPersistsSessions(t *testing.T) {
	ctx := context.Background()
	st := memory.New(0)
	client := newTestClient(t, NewGraphClientParams{})

	first := NewManager(client, st)
	defer first.CloseAll()

	s, err := first.Open(ctx, "Who funds Y?")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if stored, err := st.Get(ctx, s.ID); err != nil || stored.Version != 0 {
		t.Fatalf("stored state = %v, %v, want version 0", stored, err)
	}

	items := corroborated()
	if _, err := first.Ingest(ctx, s.ID, items[:1]); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	// a second process sharing the store
	second := NewManager(client, st)
	defer second.CloseAll()

	restored, err := second.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if v := restored.Snapshot().Version; v != 1 {
		t.Errorf("restored version = %d, want 1", v)
	}

	report, err := second.Ingest(ctx, s.ID, items[1:])
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if report.Version != 2 || !reflect.DeepEqual(report.NewPaths, []string{"path-1"}) {
		t.Errorf("report = %+v, want version 2 with path-1", report)
	}

	reloaded, err := first.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	snap := reloaded.Snapshot()
	if snap.Version != 2 || len(snap.Graph.Paths) != 1 {
		t.Errorf("first manager sees version %d with %d paths, want 2 and 1", snap.Version, len(snap.Graph.Paths))
	}
	if !s.Closed() {
		t.Errorf("stale session copy was not closed after reload")
	}
}

func TestManagerNotFound(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, NewGraphClientParams{})

	tests := []struct {
		name    string
		manager *Manager
	}{
		{"memory only", NewManager(client, nil)},
		{"with store", NewManager(client, memory.New(0))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.manager.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get() error = %v, want %v", err, ErrNotFound)
			}
			if _, err := tt.manager.Ingest(ctx, "missing", corroborated()); !errors.Is(err, ErrNotFound) {
				t.Errorf("Ingest() error = %v, want %v", err, ErrNotFound)
			}
			if err := tt.manager.Close(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Close() error = %v, want %v", err, ErrNotFound)
			}
		})
	}
}

func TestManagerDelete(t *testing.T) {
	ctx := context.Background()
	st := memory.New(0)
	m := NewManager(newTestClient(t, NewGraphClientParams{}), st)

	a, _ := m.Open(ctx, "a")
	b, _ := m.Open(ctx, "b")
	want := []string{a.ID, b.ID}
	if a.ID > b.ID {
		want = []string{b.ID, a.ID}
	}
	if got := m.Sessions(); !reflect.DeepEqual(got, want) {
		t.Errorf("Sessions() = %v, want %v", got, want)
	}

	if err := m.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if st.Len() != 1 || !a.Closed() {
		t.Errorf("Delete() left %d stored sessions, closed = %v", st.Len(), a.Closed())
	}
	if _, err := m.Get(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(deleted) error = %v, want %v", err, ErrNotFound)
	}
	if got := m.Sessions(); !reflect.DeepEqual(got, []string{b.ID}) {
		t.Errorf("Sessions() = %v, want [%s]", got, b.ID)
	}
}

func TestManagerClose(t *testing.T) {
	ctx := context.Background()
	st := memory.New(0)
	client := newTestClient(t, NewGraphClientParams{})
	m := NewManager(client, st)
	defer m.CloseAll()

	s, _ := m.Open(ctx, "Who funds Y?")
	items := corroborated()
	if _, err := m.Ingest(ctx, s.ID, items[:1]); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if err := m.Close(ctx, s.ID); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	// closing twice is harmless
	if err := m.Close(ctx, s.ID); err != nil {
		t.Fatalf("Close() again error = %v", err)
	}

	stored, err := st.Get(ctx, s.ID)
	if err != nil || !stored.Closed || stored.Version != 2 {
		t.Fatalf("stored state = %+v, %v, want closed at version 2", stored, err)
	}

	// a second process sharing the store sees the session closed
	other := NewManager(client, st)
	defer other.CloseAll()

	tests := []struct {
		name    string
		manager *Manager
	}{
		{"same process", m},
		{"other process", other},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.manager.Ingest(ctx, s.ID, items[1:]); !errors.Is(err, ErrSessionClosed) {
				t.Errorf("Ingest() error = %v, want %v", err, ErrSessionClosed)
			}
			if _, err := tt.manager.MergeNodes(ctx, s.ID, "a", "b"); !errors.Is(err, ErrSessionClosed) {
				t.Errorf("MergeNodes() error = %v, want %v", err, ErrSessionClosed)
			}
			if _, err := tt.manager.Run(ctx, s.ID, fixture.NewCollector(items[1:], 1), RunOptions{}); !errors.Is(err, ErrSessionClosed) {
				t.Errorf("Run() error = %v, want %v", err, ErrSessionClosed)
			}

			restored, err := tt.manager.Get(ctx, s.ID)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			snap := restored.Snapshot()
			if !restored.Closed() || !snap.Closed || len(snap.Graph.Evidence) != 1 || len(snap.Graph.Paths) != 0 {
				t.Errorf("closed session = closed %v, %d evidence, %d paths, want closed with 1 and 0",
					restored.Closed(), len(snap.Graph.Evidence), len(snap.Graph.Paths))
			}
		})
	}
}

func TestManagerCloseAllKeepsSessionsOpen(t *testing.T) {
	ctx := context.Background()
	st := memory.New(0)
	client := newTestClient(t, NewGraphClientParams{})

	m := NewManager(client, st)
	s, _ := m.Open(ctx, "q")
	m.CloseAll()

	stored, err := st.Get(ctx, s.ID)
	if err != nil || stored.Closed {
		t.Fatalf("stored state = %+v, %v, want open", stored, err)
	}
	restarted := NewManager(client, st)
	defer restarted.CloseAll()
	if _, err := restarted.Ingest(ctx, s.ID, corroborated()); err != nil {
		t.Errorf("Ingest() after restart error = %v", err)
	}
}

func TestManagerRun(t *testing.T) {
	ctx := context.Background()
	st := memory.New(0)
	m := NewManager(newTestClient(t, NewGraphClientParams{}), st)
	defer m.CloseAll()

	s, _ := m.Open(ctx, "q")
	report, err := m.Run(ctx, s.ID, fixture.NewCollector(corroborated(), 1), RunOptions{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(report.Batches) != 2 {
		t.Errorf("Run() batches = %d, want 2", len(report.Batches))
	}
	stored, err := st.Get(ctx, s.ID)
	if err != nil || stored.Version != 2 || len(stored.Graph.Paths) != 1 {
		t.Errorf("stored state = %+v, %v, want version 2 with one path", stored, err)
	}
}
