package domain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Geocoder is the common contract every layer of the geocoder stack
// implements: the cache, the invalid-record skipper, the normalizer, and
// the external backends all satisfy this interface, and compose by
// wrapping one another.
type Geocoder interface {
	// Tag is a short stable string used in cache-key namespacing, e.g.
	// "smarty", "libpostal", "cache", "norm".
	Tag() string

	// ConfigurationKey uniquely fingerprints every option that alters
	// geocoding semantics (match strategy, license, etc).
	ConfigurationKey() string

	// ColumnNames returns the ordered output columns this geocoder
	// produces. It is constant over the geocoder's lifetime.
	ColumnNames() []string

	// GeocodeAddresses batch-geocodes addrs. On success the returned
	// slice has the same length as addrs, entry i corresponding to
	// addrs[i]; a nil entry means "no match", not an error.
	GeocodeAddresses(ctx context.Context, addrs []Address) ([]*Geocoded, error)
}

// CachePrefix derives the stable short string identifying a geocoder's
// configuration: tag, plus the first two hex bytes of a SHA-256 over the
// column names and the configuration key. Changing column names or the
// configuration key changes the prefix, which naturally partitions the
// cache so that stale entries under an old configuration are never read
// as if they were fresh.
func CachePrefix(g Geocoder) string {
	h := sha256.New()
	for _, name := range g.ColumnNames() {
		h.Write([]byte(name))
		h.Write([]byte{0})
	}
	h.Write([]byte(g.ConfigurationKey()))
	sum := h.Sum(nil)
	return fmt.Sprintf("%s:%s", g.Tag(), hex.EncodeToString(sum[:2]))
}

// AddHeaderColumns appends prefix_<column> headers for every column g
// declares.
func AddHeaderColumns(g Geocoder, prefix string, headers []string) []string {
	for _, name := range g.ColumnNames() {
		headers = append(headers, prefix+"_"+name)
	}
	return headers
}

// AddValueColumnsToRow appends g's column values to row.
func AddValueColumnsToRow(g *Geocoded, row []string) []string {
	return append(row, g.ColumnValues...)
}

// AddEmptyColumnsToRow appends n empty strings to row, where n is the
// geocoder's column count — used when a result is nil (no match).
func AddEmptyColumnsToRow(g Geocoder, row []string) []string {
	for range g.ColumnNames() {
		row = append(row, "")
	}
	return row
}
