// Package bigtablestore implements kvstore.Store over Cloud Bigtable: a
// narrow pipelined get/set contract wired to a real client, without
// exhaustive retry/backoff tuning beyond what the client library already
// provides.
package bigtablestore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"cloud.google.com/go/bigtable"
	"github.com/couchcryptid/geocode-csv/internal/kvstore"
)

// ColumnFamily and Qualifier are fixed: every cached value lives at
// column family "geocode_csv", qualifier "v".
const (
	ColumnFamily = "geocode_csv"
	Qualifier    = "v"
)

// Store wraps a *bigtable.Client's table handle to implement kvstore.Store.
type Store struct {
	table  *bigtable.Table
	prefix string
}

// ParsedURL holds a bigtable:// cache URL's three components.
type ParsedURL struct {
	Project  string
	Instance string
	Table    string
}

// ParseURL parses "bigtable://{project}/{instance}/{table}". A malformed
// URL is a fatal configuration error.
func ParseURL(raw string) (ParsedURL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return ParsedURL{}, fmt.Errorf("bigtablestore: parse %q: %w", raw, err)
	}
	if u.Scheme != "bigtable" {
		return ParsedURL{}, fmt.Errorf("bigtablestore: unexpected scheme %q", u.Scheme)
	}

	project := u.Host
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if project == "" || len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return ParsedURL{}, fmt.Errorf("bigtablestore: expected bigtable://{project}/{instance}/{table}, got %q", raw)
	}
	return ParsedURL{Project: project, Instance: parts[0], Table: parts[1]}, nil
}

// New dials Bigtable and returns a Store for the parsed table.
func New(ctx context.Context, raw, keyPrefix string) (*Store, error) {
	parsed, err := ParseURL(raw)
	if err != nil {
		return nil, err
	}

	client, err := bigtable.NewClient(ctx, parsed.Project, parsed.Instance)
	if err != nil {
		return nil, fmt.Errorf("bigtablestore: dial: %w", err)
	}

	return &Store{table: client.Open(parsed.Table), prefix: keyPrefix}, nil
}

func (s *Store) KeyPrefix() string { return s.prefix }

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
	g.keys = append(g.keys, g.store.prefix+key)
}

// Execute issues one ReadRows call covering all requested row keys. Cloud
// Bigtable has no native multi-get RPC, so this is the pipelined
// equivalent: a single round trip reading an explicit row set.
func (g *pipelinedGet) Execute(ctx context.Context) ([]*[]byte, error) {
	if len(g.keys) == 0 {
		return nil, nil
	}

	found := make(map[string][]byte, len(g.keys))
	rowSet := make(bigtable.RowList, len(g.keys))
	copy(rowSet, g.keys)

	err := g.store.table.ReadRows(ctx, rowSet, func(row bigtable.Row) bool {
		for _, items := range row {
			for _, item := range items {
				found[item.Row] = item.Value
			}
		}
		return true
	}, bigtable.RowFilter(bigtable.ColumnFilter(Qualifier)))
	if err != nil {
		return nil, fmt.Errorf("bigtablestore: read rows: %w", err)
	}

	out := make([]*[]byte, len(g.keys))
	for i, key := range g.keys {
		if v, ok := found[key]; ok {
			out[i] = &v
		}
	}
	return out, nil
}

type pipelinedSet struct {
	store *Store
	keys  []string
	muts  []*bigtable.Mutation
}

func (s *pipelinedSet) Add(key string, value []byte) {
	mut := bigtable.NewMutation()
	mut.Set(ColumnFamily, Qualifier, bigtable.Now(), value)
	s.keys = append(s.keys, s.store.prefix+key)
	s.muts = append(s.muts, mut)
}

// Execute applies all mutations with a single ApplyBulk round trip,
// failing the whole batch if any individual mutation errors.
func (s *pipelinedSet) Execute(ctx context.Context) error {
	if len(s.keys) == 0 {
		return nil
	}

	errs, err := s.store.table.ApplyBulk(ctx, s.keys, s.muts)
	if err != nil {
		return fmt.Errorf("bigtablestore: apply bulk: %w", err)
	}
	for i, e := range errs {
		if e != nil {
			return fmt.Errorf("bigtablestore: mutation %d for key %q: %w", i, s.keys[i], e)
		}
	}
	return nil
}
