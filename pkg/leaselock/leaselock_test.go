package leaselock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeDB keeps lock holders in memory and ignores expiry.
type fakeDB struct {
	mu      sync.Mutex
	holders map[string]string
}

func newFakeDB() *fakeDB {
	return &fakeDB{holders: map[string]string{}}
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, token := args[0].(string), args[1].(string)
	if sql == releaseSQL && f.holders[key] == token {
		delete(f.holders, key)
		return pgconn.NewCommandTag("DELETE 1"), nil
	}
	return pgconn.NewCommandTag("DELETE 0"), nil
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, token := args[0].(string), args[1].(string)
	holder, held := f.holders[key]
	switch sql {
	case tryAcquireSQL:
		if held && holder != token {
			return row{err: pgx.ErrNoRows}
		}
		f.holders[key] = token
		return row{key: key}
	case renewSQL:
		if holder != token {
			return row{err: pgx.ErrNoRows}
		}
		return row{key: key}
	}
	return row{err: errors.New("unexpected query")}
}

type row struct {
	key string
	err error
}

func (r row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*string) = r.key
	return nil
}

func TestAcquireBusy(t *testing.T) {
	ctx := context.Background()
	c := New(newFakeDB())

	lease, err := c.Acquire(ctx, SessionKey("s1"), Options{TTL: time.Minute})
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if _, err := c.Acquire(ctx, SessionKey("s1"), Options{TTL: time.Minute}); !errors.Is(err, ErrBusy) {
		t.Errorf("second Acquire() error = %v, want %v", err, ErrBusy)
	}
	if _, err := c.Acquire(ctx, SessionKey("s2"), Options{TTL: time.Minute}); err != nil {
		t.Errorf("Acquire(other session) error = %v, want nil", err)
	}

	if err := lease.Release(ctx); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if lease.Context.Err() == nil {
		t.Errorf("lease context still live after Release()")
	}
	if _, err := c.Acquire(ctx, SessionKey("s1"), Options{TTL: time.Minute}); err != nil {
		t.Errorf("Acquire() after release error = %v, want nil", err)
	}
}

func TestWithSessionSerializes(t *testing.T) {
	ctx := context.Background()
	c := New(newFakeDB())

	var mu sync.Mutex
	active, maxActive := 0, 0
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := c.WithSession(ctx, "s1", time.Minute, func(ctx context.Context) error {
				mu.Lock()
				active++
				maxActive = max(maxActive, active)
				mu.Unlock()
				time.Sleep(5 * time.Millisecond)
				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Errorf("WithSession() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Errorf("concurrent holders = %d, want 1", maxActive)
	}
}

func TestAcquireEmptyKey(t *testing.T) {
	if _, err := New(newFakeDB()).Acquire(context.Background(), "", Options{}); err == nil {
		t.Errorf("Acquire(\"\") error = nil, want error")
	}
}
