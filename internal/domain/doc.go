// Package domain models addresses, the geocoder contract, and the column
// spec that maps CSV/JSON columns onto one or more named addresses.
//
// # Column spec
//
// A job's column spec is a JSON object mapping an arbitrary *prefix* (e.g.
// "home", "billing") to a set of column keys describing where to find that
// address's street, city, state, and zipcode. Before a job starts, column
// keys are header names; [ResolveHeaders] turns them into column
// indices against the concrete CSV header (or, for the HTTP adapter, they
// are never resolved at all — the batch request already carries structured
// Address values).
//
// # Cache key stability
//
// [CachePrefix], and the cache key package cachecodec builds from it, must
// produce byte-identical output for byte-identical input across process
// restarts and Go versions: the whole point of the cache layer is that a
// key computed today matches one computed last year. Changing either
// function invalidates every existing cache entry.
package domain
