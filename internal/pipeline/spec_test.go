package pipeline

import (
	"context"
	"testing"

	"github.com/couchcryptid/geocode-csv/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGeocoder struct{ columns []string }

func (g *stubGeocoder) Tag() string              { return "stub" }
func (g *stubGeocoder) ConfigurationKey() string { return "v1" }
func (g *stubGeocoder) ColumnNames() []string     { return g.columns }
func (g *stubGeocoder) GeocodeAddresses(_ context.Context, addrs []domain.Address) ([]*domain.Geocoded, error) {
	out := make([]*domain.Geocoded, len(addrs))
	for i := range addrs {
		out[i] = &domain.Geocoded{ColumnValues: make([]string, len(g.columns))}
	}
	return out, nil
}

func specWithHomePrefix() domain.AddressColumnSpec[string] {
	return domain.AddressColumnSpec[string]{
		"home": domain.AddressColumnKeys[string]{Street: domain.SingleKey("street")},
	}
}

func TestNewSharedSpec_DuplicateErrorFailsOnCollidingColumn(t *testing.T) {
	header := []string{"id", "street", "home_city"}
	geo := &stubGeocoder{columns: []string{"city"}}

	_, err := newSharedSpec(specWithHomePrefix(), header, geo, DuplicateError)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDuplicateHeader)
}

func TestNewSharedSpec_DuplicateReplaceStripsCollidingColumn(t *testing.T) {
	header := []string{"id", "street", "home_city"}
	geo := &stubGeocoder{columns: []string{"city"}}

	spec, err := newSharedSpec(specWithHomePrefix(), header, geo, DuplicateReplace)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "street", "home_city"}, spec.header)

	row := []string{"1", "20 W 34th St", "stale"}
	filtered := spec.filterRow(row)
	assert.Equal(t, []string{"1", "20 W 34th St"}, filtered)
}

func TestNewSharedSpec_DuplicateAppendKeepsBothColumns(t *testing.T) {
	header := []string{"id", "street", "home_city"}
	geo := &stubGeocoder{columns: []string{"city"}}

	spec, err := newSharedSpec(specWithHomePrefix(), header, geo, DuplicateAppend)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "street", "home_city", "home_city"}, spec.header)
}

func TestNewSharedSpec_TrueDuplicateHeaderIsAlwaysFatal(t *testing.T) {
	header := []string{"id", "id"}
	geo := &stubGeocoder{columns: []string{"city"}}

	_, err := newSharedSpec(domain.AddressColumnSpec[string]{}, header, geo, DuplicateAppend)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDuplicateHeader)
}

func TestParseDuplicatePolicy(t *testing.T) {
	for in, want := range map[string]DuplicatePolicy{
		"":        DuplicateError,
		"error":   DuplicateError,
		"replace": DuplicateReplace,
		"append":  DuplicateAppend,
	} {
		got, err := ParseDuplicatePolicy(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseDuplicatePolicy("bogus")
	require.Error(t, err)
}
