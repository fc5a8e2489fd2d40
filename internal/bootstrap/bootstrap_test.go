package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/OFFIS-RIT/trailgraph/pkg/common"
	"github.com/OFFIS-RIT/trailgraph/pkg/store/memory"
)

func TestNewAIClient(t *testing.T) {
	tests := []struct {
		name    string
		adapter string
		wantNil bool
		wantErr bool
	}{
		{"rules", "rules", true, false},
		{"default is rules", "", true, false},
		{"openai", "openai", false, false},
		{"unknown", "bard", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("AI_ADAPTER", tt.adapter)
			t.Setenv("AI_CHAT_KEY", "test-key")
			t.Setenv("AI_CHAT_EXTRACT_MODEL", "test-model")

			client, err := NewAIClient()
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewAIClient() error = %v, wantErr %v", err, tt.wantErr)
			}
			if (client == nil) != tt.wantNil {
				t.Errorf("NewAIClient() = %v, wantNil %v", client, tt.wantNil)
			}
		})
	}
}

func TestNewWithMemoryStore(t *testing.T) {
	t.Setenv("AI_ADAPTER", "rules")
	t.Setenv("SESSION_STORE", "memory")
	t.Setenv("AWS_BUCKET", "")
	t.Setenv("COLLECT_TIMEOUT", "5s")

	ctx := context.Background()
	app, err := New(ctx)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	if _, ok := app.Store.(*memory.Store); !ok {
		t.Errorf("Store = %T, want *memory.Store", app.Store)
	}
	if app.DB != nil || app.Locker != nil || app.S3 != nil {
		t.Errorf("unexpected pgx or s3 wiring: db=%v locker=%v s3=%v", app.DB, app.Locker, app.S3)
	}
	if app.CollectTimeout != 5*time.Second {
		t.Errorf("CollectTimeout = %v, want 5s", app.CollectTimeout)
	}

	s, err := app.Manager.Open(ctx, "Who funds Y?")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	report, err := app.Manager.Ingest(ctx, s.ID, []common.Evidence{
		{ID: "e1", URL: "https://news.example.com/a", Excerpt: "X funds Y."},
		{ID: "e2", URL: "https://wire.example.org/b", Excerpt: "Y supplies Z."},
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if report.PathCount != 1 {
		t.Errorf("PathCount = %d, want 1", report.PathCount)
	}

	// SweepSessions only runs for the PostgreSQL store
	done := make(chan struct{})
	go func() {
		app.SweepSessions(ctx, time.Millisecond)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("SweepSessions() did not return for the memory store")
	}
}

func TestNewRejectsUnknownStore(t *testing.T) {
	t.Setenv("AI_ADAPTER", "rules")
	t.Setenv("SESSION_STORE", "cassandra")

	if _, err := New(context.Background()); err == nil {
		t.Error("New() error = nil, want error for unknown store")
	}
}
