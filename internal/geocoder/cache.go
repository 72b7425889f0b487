package geocoder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/couchcryptid/geocode-csv/internal/cachecodec"
	"github.com/couchcryptid/geocode-csv/internal/domain"
	"github.com/couchcryptid/geocode-csv/internal/kvstore"
)

// Cache wraps a Geocoder with a pipelined key-value lookup, the hardest of
// the three decorators: it has to fan a batch of addresses out into cache
// hits and misses, forward only the misses to the underlying geocoder,
// write the fresh results back, and reassemble everything in the caller's
// original order.
type Cache struct {
	Next   domain.Geocoder
	Store  kvstore.Store
	// Compressor selects the envelope's compression scheme for newly
	// written entries. Existing entries decode under whatever compressor
	// their envelope byte names, regardless of this setting.
	Compressor cachecodec.CompressorID
	// HitsOnly, when set, never calls Next for a cache miss: a miss comes
	// back as a nil result (no match) instead of paying for a live geocode.
	HitsOnly bool
	// KeyPrefix, when non-empty, namespaces every cache key this instance
	// reads or writes — e.g. to let two unrelated geocode-csv jobs share
	// one Redis instance without colliding.
	KeyPrefix string
	// LogKeys, when set with Logger non-nil, logs every computed cache
	// key at debug level — a troubleshooting aid for diagnosing why a
	// row did or didn't hit the cache.
	LogKeys bool
	Logger  *slog.Logger
}

var _ domain.Geocoder = (*Cache)(nil)

func (c *Cache) Tag() string              { return "cache" }
func (c *Cache) ConfigurationKey() string { return c.Next.ConfigurationKey() }
func (c *Cache) ColumnNames() []string    { return c.Next.ColumnNames() }

// GeocodeAddresses implements the nine-step cache algorithm: derive the
// cache prefix, build one key per address, issue a single pipelined get,
// decode hits, forward misses to Next (unless HitsOnly), validate arity
// and column count, write fresh results back with a single pipelined set,
// and splice hits and misses back into the caller's original order.
func (c *Cache) GeocodeAddresses(ctx context.Context, addrs []domain.Address) ([]*domain.Geocoded, error) {
	if len(addrs) == 0 {
		return nil, nil
	}

	prefix := domain.CachePrefix(c.Next)
	if c.KeyPrefix != "" {
		prefix = c.KeyPrefix + ":" + prefix
	}
	keys := make([]string, len(addrs))
	for i, a := range addrs {
		keys[i] = cachecodec.Key(prefix, a)
		if c.LogKeys && c.Logger != nil {
			c.Logger.Debug("cache key", "key", keys[i])
		}
	}

	get := c.Store.NewPipelinedGet()
	for _, k := range keys {
		get.Add(k)
	}
	raw, err := get.Execute(ctx)
	if err != nil {
		return nil, fmt.Errorf("cache: pipelined get: %w", err)
	}

	results := make([]*domain.Geocoded, len(addrs))
	var missIdx []int
	var missAddrs []domain.Address

	wantColumns := len(c.Next.ColumnNames())
	for i, entry := range raw {
		if entry == nil {
			missIdx = append(missIdx, i)
			missAddrs = append(missAddrs, addrs[i])
			continue
		}
		values, err := cachecodec.Decode(*entry)
		if err != nil {
			// Treat an undecodable entry as a miss rather than a fatal
			// error: a stale or corrupt cache should never take down the
			// whole pipeline.
			missIdx = append(missIdx, i)
			missAddrs = append(missAddrs, addrs[i])
			continue
		}
		if values == nil {
			// A cached None means "previously known to have no match":
			// report it as such without calling Next.
			results[i] = nil
			continue
		}
		if containsNUL(*values) {
			// Legacy-data guard: a cached entry with a NUL byte predates
			// this guard and cannot be trusted, so it is retried as a miss.
			missIdx = append(missIdx, i)
			missAddrs = append(missAddrs, addrs[i])
			continue
		}
		if len(*values) != wantColumns {
			return nil, fmt.Errorf("%w: cached %d, geocoder declares %d", domain.ErrCacheLengthMismatch, len(*values), wantColumns)
		}
		results[i] = &domain.Geocoded{ColumnValues: *values}
	}

	if len(missAddrs) == 0 {
		return results, nil
	}

	if c.HitsOnly {
		// results[i] stays nil for every miss — "no match" rather than
		// paying for a live geocode.
		return results, nil
	}

	geocoded, err := c.Next.GeocodeAddresses(ctx, missAddrs)
	if err != nil {
		return nil, err
	}
	if len(geocoded) != len(missAddrs) {
		return nil, fmt.Errorf("%w: got %d results for %d addresses", domain.ErrArityMismatch, len(geocoded), len(missAddrs))
	}

	set := c.Store.NewPipelinedSet()
	for j, i := range missIdx {
		g := geocoded[j]
		results[i] = g

		var toStore *[]string
		if g != nil {
			for _, v := range g.ColumnValues {
				if strings.ContainsRune(v, 0) {
					return nil, fmt.Errorf("%w: column value %q", domain.ErrCachedValueHasNUL, v)
				}
			}
			toStore = &g.ColumnValues
		}

		envelope, err := cachecodec.Encode(toStore, c.Compressor)
		if err != nil {
			return nil, fmt.Errorf("cache: encode %q: %w", keys[i], err)
		}
		set.Add(keys[i], envelope)
	}

	if err := set.Execute(ctx); err != nil {
		return nil, fmt.Errorf("cache: pipelined set: %w", err)
	}

	return results, nil
}

func containsNUL(values []string) bool {
	for _, v := range values {
		if strings.ContainsRune(v, 0) {
			return true
		}
	}
	return false
}
