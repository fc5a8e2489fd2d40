// Package redis stores session states in Redis hashes so several server
// and worker processes can share sessions.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/trailgraph/pkg/common"
	"github.com/OFFIS-RIT/trailgraph/pkg/store"

	goredis "github.com/redis/go-redis/v9"
)

// putScript writes the state unless a newer version is stored. It returns
// 0 on a version conflict.
var putScript = goredis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'version')
if cur and tonumber(cur) > tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[1], 'state', ARGV[2])
if tonumber(ARGV[3]) > 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[3])
else
	redis.call('PERSIST', KEYS[1])
end
return 1
`)

type Store struct {
	rdb    goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

type NewStoreParams struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces the session keys. Defaults to "trailgraph:session:".
	Prefix string
	TTL    time.Duration
}

// NewStore connects to Redis and verifies the connection.
func NewStore(ctx context.Context, params NewStoreParams) (*Store, error) {
	if params.Addr == "" {
		return nil, errors.New("missing redis address")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        params.Addr,
		Password:    params.Password,
		DB:          params.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewStoreWithClient(rdb, params.Prefix, params.TTL), nil
}

// NewStoreWithClient wraps an existing client.
func NewStoreWithClient(rdb goredis.UniversalClient, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = "trailgraph:session:"
	}
	return &Store{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *Store) key(id string) string {
	return s.prefix + id
}

func (s *Store) Get(ctx context.Context, id string) (*common.SessionState, error) {
	data, err := s.rdb.HGet(ctx, s.key(id), "state").Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("session %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	return store.DecodeState(data)
}

func (s *Store) Put(ctx context.Context, state *common.SessionState) error {
	data, err := store.EncodeState(state)
	if err != nil {
		return err
	}
	ok, err := putScript.Run(ctx, s.rdb, []string{s.key(state.ID)}, state.Version, data, s.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to store session %s: %w", state.ID, err)
	}
	if ok == 0 {
		return fmt.Errorf("session %s at version %d: %w", state.ID, state.Version, store.ErrVersionConflict)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.rdb.Close()
}
