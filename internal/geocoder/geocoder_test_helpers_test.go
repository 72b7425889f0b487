package geocoder

import (
	"context"
	"fmt"

	"github.com/couchcryptid/geocode-csv/internal/domain"
)

// fakeGeocoder is a minimal domain.Geocoder double for testing the
// decorators in this package. It returns one "geo:<street>" value per
// address and counts its calls so tests can see whether it was invoked at
// all and how many times.
type fakeGeocoder struct {
	tag     string
	cfgKey  string
	columns []string
	calls   int
	err     error
}

func (f *fakeGeocoder) Tag() string              { return f.tag }
func (f *fakeGeocoder) ConfigurationKey() string { return f.cfgKey }
func (f *fakeGeocoder) ColumnNames() []string    { return f.columns }

func (f *fakeGeocoder) GeocodeAddresses(_ context.Context, addrs []domain.Address) ([]*domain.Geocoded, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]*domain.Geocoded, len(addrs))
	for i, a := range addrs {
		out[i] = &domain.Geocoded{ColumnValues: []string{fmt.Sprintf("geo:%s", a.Street)}}
	}
	return out, nil
}
