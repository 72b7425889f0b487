package geocoder

import (
	"context"
	"testing"

	"github.com/couchcryptid/geocode-csv/internal/cachecodec"
	"github.com/couchcryptid/geocode-csv/internal/domain"
	"github.com/couchcryptid/geocode-csv/internal/kvstore/kvstoretest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_MissGeocodesAndWritesBack(t *testing.T) {
	next := &fakeGeocoder{tag: "fake", cfgKey: "v1", columns: []string{"geo"}}
	store := kvstoretest.New("gcsv:")
	c := &Cache{Next: next, Store: store}

	addrs := []domain.Address{{Street: "20 W 34th St", City: strptr("NY")}}
	results, err := c.GeocodeAddresses(context.Background(), addrs)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []string{"geo:20 W 34th St"}, results[0].ColumnValues)
	assert.Equal(t, 1, next.calls)
	assert.Equal(t, 1, store.SetCalls)
}

func TestCache_HitAvoidsCallingNext(t *testing.T) {
	next := &fakeGeocoder{tag: "fake", cfgKey: "v1", columns: []string{"geo"}}
	store := kvstoretest.New("gcsv:")
	c := &Cache{Next: next, Store: store}

	addr := domain.Address{Street: "20 W 34th St"}
	prefix := domain.CachePrefix(next)
	key := cachecodec.Key(prefix, addr)
	envelope, err := cachecodec.Encode(&[]string{"cached-value"}, cachecodec.CompressorNone)
	require.NoError(t, err)
	store.Seed(key, envelope)

	results, err := c.GeocodeAddresses(context.Background(), []domain.Address{addr})
	require.NoError(t, err)
	assert.Equal(t, []string{"cached-value"}, results[0].ColumnValues)
	assert.Equal(t, 0, next.calls)
}

func TestCache_MixedHitsAndMissesPreserveOrder(t *testing.T) {
	next := &fakeGeocoder{tag: "fake", cfgKey: "v1", columns: []string{"geo"}}
	store := kvstoretest.New("gcsv:")
	c := &Cache{Next: next, Store: store}

	hit := domain.Address{Street: "cached street"}
	miss := domain.Address{Street: "fresh street"}

	prefix := domain.CachePrefix(next)
	envelope, err := cachecodec.Encode(&[]string{"from-cache"}, cachecodec.CompressorNone)
	require.NoError(t, err)
	store.Seed(cachecodec.Key(prefix, hit), envelope)

	results, err := c.GeocodeAddresses(context.Background(), []domain.Address{hit, miss})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, []string{"from-cache"}, results[0].ColumnValues)
	assert.Equal(t, []string{"geo:fresh street"}, results[1].ColumnValues)
	assert.Equal(t, 1, next.calls)
}

func TestCache_HitsOnlyNeverCallsNextOnMiss(t *testing.T) {
	next := &fakeGeocoder{tag: "fake", cfgKey: "v1", columns: []string{"geo"}}
	store := kvstoretest.New("gcsv:")
	c := &Cache{Next: next, Store: store, HitsOnly: true}

	results, err := c.GeocodeAddresses(context.Background(), []domain.Address{{Street: "uncached"}})
	require.NoError(t, err)
	assert.Nil(t, results[0])
	assert.Equal(t, 0, next.calls)
	assert.Equal(t, 0, store.SetCalls)
}

func TestCache_CachedNegativeIsNilWithoutCallingNext(t *testing.T) {
	next := &fakeGeocoder{tag: "fake", cfgKey: "v1", columns: []string{"geo"}}
	store := kvstoretest.New("gcsv:")
	c := &Cache{Next: next, Store: store}

	addr := domain.Address{Street: "known ungeocodable"}
	prefix := domain.CachePrefix(next)
	envelope, err := cachecodec.Encode(nil, cachecodec.CompressorNone)
	require.NoError(t, err)
	store.Seed(cachecodec.Key(prefix, addr), envelope)

	results, err := c.GeocodeAddresses(context.Background(), []domain.Address{addr})
	require.NoError(t, err)
	assert.Nil(t, results[0])
	assert.Equal(t, 0, next.calls)
}

func TestCache_NULInCachedEntryIsTreatedAsMiss(t *testing.T) {
	next := &fakeGeocoder{tag: "fake", cfgKey: "v1", columns: []string{"geo"}}
	store := kvstoretest.New("gcsv:")
	c := &Cache{Next: next, Store: store}

	addr := domain.Address{Street: "legacy entry"}
	prefix := domain.CachePrefix(next)
	envelope, err := cachecodec.Encode(&[]string{"bad\x00value"}, cachecodec.CompressorNone)
	require.NoError(t, err)
	store.Seed(cachecodec.Key(prefix, addr), envelope)

	results, err := c.GeocodeAddresses(context.Background(), []domain.Address{addr})
	require.NoError(t, err)
	assert.Equal(t, []string{"geo:legacy entry"}, results[0].ColumnValues)
	assert.Equal(t, 1, next.calls)
}

func TestCache_NextReturningNilIsCachedAsNegative(t *testing.T) {
	store := kvstoretest.New("gcsv:")
	nilNext := &nilGeocoder{fakeGeocoder: fakeGeocoder{tag: "fake", cfgKey: "v1", columns: []string{"geo"}}}
	c := &Cache{Next: nilNext, Store: store}

	addr := domain.Address{Street: "unmatchable"}
	results, err := c.GeocodeAddresses(context.Background(), []domain.Address{addr})
	require.NoError(t, err)
	assert.Nil(t, results[0])
	assert.Equal(t, 1, store.SetCalls)

	results, err = c.GeocodeAddresses(context.Background(), []domain.Address{addr})
	require.NoError(t, err)
	assert.Nil(t, results[0])
	assert.Equal(t, 1, nilNext.calls, "second call should hit the cached negative")
}

type nilGeocoder struct{ fakeGeocoder }

func (n *nilGeocoder) GeocodeAddresses(_ context.Context, addrs []domain.Address) ([]*domain.Geocoded, error) {
	n.calls++
	return make([]*domain.Geocoded, len(addrs)), nil
}

func TestCache_CorruptCacheEntryFallsBackToMiss(t *testing.T) {
	next := &fakeGeocoder{tag: "fake", cfgKey: "v1", columns: []string{"geo"}}
	store := kvstoretest.New("gcsv:")
	c := &Cache{Next: next, Store: store}

	addr := domain.Address{Street: "broken entry"}
	prefix := domain.CachePrefix(next)
	store.Seed(cachecodec.Key(prefix, addr), []byte{0xFF, 0xFF, 0xFF})

	results, err := c.GeocodeAddresses(context.Background(), []domain.Address{addr})
	require.NoError(t, err)
	assert.Equal(t, []string{"geo:broken entry"}, results[0].ColumnValues)
	assert.Equal(t, 1, next.calls)
}

func TestCache_NULInColumnValueIsFatal(t *testing.T) {
	store := kvstoretest.New("gcsv:")
	badNext := &nulGeocoder{fakeGeocoder: fakeGeocoder{tag: "fake", cfgKey: "v1", columns: []string{"geo"}}}
	c := &Cache{Next: badNext, Store: store}

	_, err := c.GeocodeAddresses(context.Background(), []domain.Address{{Street: "x"}})
	assert.ErrorIs(t, err, domain.ErrCachedValueHasNUL)
}

type nulGeocoder struct{ fakeGeocoder }

func (n *nulGeocoder) GeocodeAddresses(_ context.Context, addrs []domain.Address) ([]*domain.Geocoded, error) {
	out := make([]*domain.Geocoded, len(addrs))
	for i := range addrs {
		out[i] = &domain.Geocoded{ColumnValues: []string{"bad\x00value"}}
	}
	return out, nil
}

func strptr(s string) *string { return &s }

func TestCache_KeyPrefixNamespacesCacheKeys(t *testing.T) {
	next := &fakeGeocoder{tag: "fake", cfgKey: "v1", columns: []string{"geo"}}
	store := kvstoretest.New("gcsv:")
	c := &Cache{Next: next, Store: store, KeyPrefix: "job-a"}

	addr := domain.Address{Street: "20 W 34th St"}
	_, err := c.GeocodeAddresses(context.Background(), []domain.Address{addr})
	require.NoError(t, err)

	plainPrefix := domain.CachePrefix(next)
	plainKey := cachecodec.Key(plainPrefix, addr)
	_, ok := store.Get(plainKey)
	assert.False(t, ok, "write should not land under the unprefixed key")

	namespacedKey := cachecodec.Key("job-a:"+plainPrefix, addr)
	_, ok = store.Get(namespacedKey)
	assert.True(t, ok, "write should land under the namespaced key")
}
