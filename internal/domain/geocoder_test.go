package domain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeGeocoder struct {
	tag     string
	cfgKey  string
	columns []string
}

func (f *fakeGeocoder) Tag() string              { return f.tag }
func (f *fakeGeocoder) ConfigurationKey() string { return f.cfgKey }
func (f *fakeGeocoder) ColumnNames() []string    { return f.columns }
func (f *fakeGeocoder) GeocodeAddresses(_ context.Context, addrs []Address) ([]*Geocoded, error) {
	out := make([]*Geocoded, len(addrs))
	return out, nil
}

func TestCachePrefix_StableForIdenticalInputs(t *testing.T) {
	g := &fakeGeocoder{tag: "sm", cfgKey: "strict", columns: []string{"lat", "lon"}}
	a := CachePrefix(g)
	b := CachePrefix(g)
	assert.Equal(t, a, b)
	assert.Contains(t, a, "sm:")
}

func TestCachePrefix_ChangesWithConfigurationKey(t *testing.T) {
	g1 := &fakeGeocoder{tag: "sm", cfgKey: "strict", columns: []string{"lat", "lon"}}
	g2 := &fakeGeocoder{tag: "sm", cfgKey: "range", columns: []string{"lat", "lon"}}
	assert.NotEqual(t, CachePrefix(g1), CachePrefix(g2))
}

func TestAddHeaderColumns(t *testing.T) {
	g := &fakeGeocoder{tag: "sm", columns: []string{"lat", "lon"}}
	headers := AddHeaderColumns(g, "home", []string{"id"})
	assert.Equal(t, []string{"id", "home_lat", "home_lon"}, headers)
}

func TestAddValueAndEmptyColumnsToRow(t *testing.T) {
	g := &fakeGeocoder{columns: []string{"lat", "lon"}}
	row := AddValueColumnsToRow(&Geocoded{ColumnValues: []string{"1.0", "2.0"}}, []string{"id"})
	assert.Equal(t, []string{"id", "1.0", "2.0"}, row)

	empty := AddEmptyColumnsToRow(g, []string{"id"})
	assert.Equal(t, []string{"id", "", ""}, empty)
}
