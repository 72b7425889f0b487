// Package kvstoretest provides an in-memory kvstore.Store for unit tests,
// standing in for a live Redis or Bigtable backend so tests never hit
// the network.
package kvstoretest

import (
	"context"
	"sync"

	"github.com/couchcryptid/geocode-csv/internal/kvstore"
)

// Store is a goroutine-safe in-memory kvstore.Store.
type Store struct {
	mu       sync.Mutex
	data     map[string][]byte
	prefix   string
	GetCalls int
	SetCalls int
}

// New creates an empty fake store.
func New(keyPrefix string) *Store {
	return &Store{data: make(map[string][]byte), prefix: keyPrefix}
}

func (s *Store) KeyPrefix() string { return s.prefix }

// Seed pre-populates a key under the store's key prefix, the same place a
// pipelined set would write it, useful for asserting cache-hit behavior in
// tests.
func (s *Store) Seed(key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[s.prefix+key] = value
}

// Get reads back a key a pipelined set wrote, for test assertions.
func (s *Store) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[s.prefix+key]
	return v, ok
}

func (s *Store) NewPipelinedGet() kvstore.PipelinedGet {
	return &pipelinedGet{store: s}
}

func (s *Store) NewPipelinedSet() kvstore.PipelinedSet {
	return &pipelinedSet{store: s}
}

type pipelinedGet struct {
	store *Store
	keys  []string
}

func (g *pipelinedGet) Add(key string) {
	g.keys = append(g.keys, key)
}

func (g *pipelinedGet) Execute(_ context.Context) ([]*[]byte, error) {
	g.store.mu.Lock()
	defer g.store.mu.Unlock()
	g.store.GetCalls++

	out := make([]*[]byte, len(g.keys))
	for i, key := range g.keys {
		if v, ok := g.store.data[g.store.prefix+key]; ok {
			cp := append([]byte(nil), v...)
			out[i] = &cp
		}
	}
	return out, nil
}

type pipelinedSet struct {
	store  *Store
	keys   []string
	values [][]byte
}

func (s *pipelinedSet) Add(key string, value []byte) {
	s.keys = append(s.keys, key)
	s.values = append(s.values, value)
}

func (s *pipelinedSet) Execute(_ context.Context) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	s.store.SetCalls++

	for i, key := range s.keys {
		s.store.data[s.store.prefix+key] = s.values[i]
	}
	return nil
}
