package pgx

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/OFFIS-RIT/trailgraph/pkg/common"
	"github.com/OFFIS-RIT/trailgraph/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeRecord struct {
	version   int
	state     []byte
	updatedAt time.Time
}

// fakeConn interprets the statements of SessionDBStorage against a map.
type fakeConn struct {
	rows map[string]fakeRecord
}

func newFakeConn() *fakeConn {
	return &fakeConn{rows: map[string]fakeRecord{}}
}

func (f *fakeConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	switch sql {
	case putSessionSQL:
		id := args[0].(string)
		version := args[2].(int)
		if cur, ok := f.rows[id]; ok && cur.version > version {
			return pgconn.NewCommandTag("INSERT 0 0"), nil
		}
		f.rows[id] = fakeRecord{version: version, state: args[3].([]byte), updatedAt: args[4].(time.Time)}
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	case deleteSessionSQL:
		id := args[0].(string)
		if _, ok := f.rows[id]; !ok {
			return pgconn.NewCommandTag("DELETE 0"), nil
		}
		delete(f.rows, id)
		return pgconn.NewCommandTag("DELETE 1"), nil
	case sweepSessionsSQL:
		before := args[0].(time.Time)
		n := 0
		for id, r := range f.rows {
			if r.updatedAt.Before(before) {
				delete(f.rows, id)
				n++
			}
		}
		return pgconn.NewCommandTag(fmt.Sprintf("DELETE %d", n)), nil
	}
	return pgconn.CommandTag{}, errors.New("unexpected statement")
}

func (f *fakeConn) QueryRow(ctx context.Context, sql string, args ...any) pgxv5.Row {
	if sql != getSessionSQL {
		return fakeRow{err: errors.New("unexpected query")}
	}
	r, ok := f.rows[args[0].(string)]
	if !ok {
		return fakeRow{err: pgxv5.ErrNoRows}
	}
	return fakeRow{record: r}
}

type fakeRow struct {
	record fakeRecord
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*[]byte) = r.record.state
	*dest[1].(*time.Time) = r.record.updatedAt
	return nil
}

func state(version int, updatedAt time.Time) *common.SessionState {
	return &common.SessionState{
		ID:        "s1",
		Query:     "who funds the port?",
		Version:   version,
		Graph:     &common.Graph{},
		UpdatedAt: updatedAt,
	}
}

func TestSessionDBStorage(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	s := NewSessionDBStorageWithConnection(newFakeConn())

	if _, err := s.Get(ctx, "s1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Get(missing) error = %v, want %v", err, store.ErrNotFound)
	}
	if err := s.Put(ctx, state(2, now)); err != nil {
		t.Fatalf("Put(2) error = %v", err)
	}
	if err := s.Put(ctx, state(1, now)); !errors.Is(err, store.ErrVersionConflict) {
		t.Errorf("Put(1) error = %v, want %v", err, store.ErrVersionConflict)
	}

	got, err := s.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Version != 2 || got.Query != "who funds the port?" {
		t.Errorf("Get() = %+v, want version 2", got)
	}

	if err := s.Delete(ctx, "s1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Get(ctx, "s1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get(deleted) error = %v, want %v", err, store.ErrNotFound)
	}
}

func TestSessionDBStorageTTL(t *testing.T) {
	ctx := context.Background()
	conn := newFakeConn()
	s := NewSessionDBStorageWithConnection(conn, WithTTL(time.Hour))

	_ = s.Put(ctx, state(1, time.Now().UTC().Add(-2*time.Hour)))
	if _, err := s.Get(ctx, "s1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get(expired) error = %v, want %v", err, store.ErrNotFound)
	}

	n, err := s.Sweep(ctx, time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Sweep() = %d, want 1", n)
	}
	if len(conn.rows) != 0 {
		t.Errorf("rows after Sweep() = %d, want 0", len(conn.rows))
	}
}
