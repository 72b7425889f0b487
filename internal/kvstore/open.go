package kvstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/couchcryptid/geocode-csv/internal/kvstore/bigtablestore"
	"github.com/couchcryptid/geocode-csv/internal/kvstore/redisstore"
)

// Open dials the backend named by a --cache URL: redis://... or
// bigtable://{project}/{instance}/{table}. A malformed or unrecognized
// URL is a fatal configuration error.
func Open(ctx context.Context, cacheURL, keyPrefix string) (Store, error) {
	scheme := strings.ToLower(schemeOf(cacheURL))

	switch scheme {
	case "redis", "rediss":
		return redisstore.New(cacheURL, keyPrefix)
	case "bigtable":
		return bigtablestore.New(ctx, cacheURL, keyPrefix)
	default:
		return nil, fmt.Errorf("kvstore: unsupported cache URL scheme %q", scheme)
	}
}

func schemeOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Scheme
}
