// Package cachecodec implements the cache key format and the on-disk
// envelope the cache layer stores at each key: a one-byte compressor id
// followed by a compressed, version-stable serialization of an optional
// geocode result.
package cachecodec

import (
	"strings"

	"github.com/couchcryptid/geocode-csv/internal/domain"
)

// Key builds the cache key for an address under the given cache prefix:
//
//	gcsv:{cache_prefix}:{state}:{city}:{zipcode}:{street}
//
// lowercased, with each field's '\' and ':' escaped by a leading '\'. Key
// must be byte-identical across runs for identical input — it is never a
// function of time, environment, or process identity.
func Key(cachePrefix string, addr domain.Address) string {
	fields := []string{
		cachePrefix,
		domain.OptionalValue(addr.State),
		domain.OptionalValue(addr.City),
		domain.OptionalValue(addr.Zipcode),
		addr.Street,
	}
	escaped := make([]string, len(fields))
	for i, f := range fields {
		escaped[i] = escape(strings.ToLower(f))
	}
	return "gcsv:" + strings.Join(escaped, ":")
}

func escape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\\' || r == ':' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
