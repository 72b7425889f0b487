// Package redisstore implements kvstore.Store over a Redis client, using a
// single pipelined round trip per batch.
package redisstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/couchcryptid/geocode-csv/internal/kvstore"
	"github.com/redis/go-redis/v9"
)

// Store wraps a redis.UniversalClient to implement kvstore.Store.
type Store struct {
	client redis.UniversalClient
	prefix string
}

// New creates a Redis-backed Store. addr is a redis:// URL as accepted by
// redis.ParseURL.
func New(addr, keyPrefix string) (*Store, error) {
	opts, err := redis.ParseURL(addr)
	if err != nil {
		return nil, fmt.Errorf("redisstore: parse %q: %w", addr, err)
	}
	return &Store{client: redis.NewClient(opts), prefix: keyPrefix}, nil
}

// NewWithClient wraps an already-constructed client, useful for tests
// against a fake or miniredis-style server.
func NewWithClient(client redis.UniversalClient, keyPrefix string) *Store {
	return &Store{client: client, prefix: keyPrefix}
}

func (s *Store) KeyPrefix() string { return s.prefix }

func (s *Store) NewPipelinedGet() kvstore.PipelinedGet {
	return &pipelinedGet{store: s, pipe: s.client.Pipeline()}
}

func (s *Store) NewPipelinedSet() kvstore.PipelinedSet {
	return &pipelinedSet{store: s, pipe: s.client.Pipeline()}
}

type pipelinedGet struct {
	store *Store
	pipe  redis.Pipeliner
	cmds  []*redis.StringCmd
}

func (g *pipelinedGet) Add(key string) {
	g.cmds = append(g.cmds, g.pipe.Get(context.Background(), g.store.prefix+key))
}

func (g *pipelinedGet) Execute(ctx context.Context) ([]*[]byte, error) {
	if len(g.cmds) == 0 {
		return nil, nil
	}

	_, err := g.pipe.Exec(ctx)
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redisstore: pipelined get: %w", err)
	}

	out := make([]*[]byte, len(g.cmds))
	for i, cmd := range g.cmds {
		b, err := cmd.Bytes()
		if errors.Is(err, redis.Nil) {
			out[i] = nil
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("redisstore: get result %d: %w", i, err)
		}
		out[i] = &b
	}
	return out, nil
}

type pipelinedSet struct {
	store *Store
	pipe  redis.Pipeliner
	n     int
}

func (s *pipelinedSet) Add(key string, value []byte) {
	s.pipe.Set(context.Background(), s.store.prefix+key, value, 0)
	s.n++
}

func (s *pipelinedSet) Execute(ctx context.Context) error {
	if s.n == 0 {
		return nil
	}
	if _, err := s.pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisstore: pipelined set: %w", err)
	}
	return nil
}
