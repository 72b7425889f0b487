package geocoder

import (
	"context"
	"testing"

	"github.com/couchcryptid/geocode-csv/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubParser returns a fixed Components breakdown for every address,
// ignoring raw, and records what it was called with.
type stubParser struct {
	components Components
	calls      []string
	err        error
}

func (p *stubParser) Parse(raw string) (Components, error) {
	p.calls = append(p.calls, raw)
	if p.err != nil {
		return Components{}, p.err
	}
	return p.components, nil
}

func TestNormalizer_RebuildsAddressFromComponents(t *testing.T) {
	next := &fakeGeocoder{tag: "fake", columns: []string{"geo"}}
	parser := &stubParser{components: Components{
		HouseNumber:  "20",
		Road:         "34th st",
		CityDistrict: "manhattan",
		City:         "new york",
		State:        "ny",
		Postcode:     "10001",
	}}
	n := &Normalizer{Next: next, Parser: parser}

	city := "old city"
	results, err := n.GeocodeAddresses(context.Background(), []domain.Address{
		{Street: "20 W 34th St", City: &city},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, []string{"geo:20 34th st"}, results[0].ColumnValues)
	assert.Equal(t, []string{"20 W 34th St old city  "}, parser.calls)
}

func TestNormalizer_BuildsRawStringFromAllFourFields(t *testing.T) {
	next := &fakeGeocoder{tag: "fake", columns: []string{"geo"}}
	parser := &stubParser{}
	n := &Normalizer{Next: next, Parser: parser}

	city, state, zip := "New York", "NY", "10001"
	_, err := n.GeocodeAddresses(context.Background(), []domain.Address{
		{Street: "20 W 34th St", City: &city, State: &state, Zipcode: &zip},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"20 W 34th St New York NY 10001"}, parser.calls)
}

func TestNormalizer_EmptyComponentsYieldNilPointers(t *testing.T) {
	next := &fakeGeocoder{tag: "fake", columns: []string{"geo"}}
	parser := &stubParser{components: Components{HouseNumber: "1", Road: "Infinite Loop"}}
	n := &Normalizer{Next: next, Parser: parser}

	var captured domain.Address
	capture := &capturingGeocoder{fakeGeocoder: next, capture: &captured}
	n.Next = capture

	_, err := n.GeocodeAddresses(context.Background(), []domain.Address{{Street: "1 Infinite Loop"}})
	require.NoError(t, err)

	assert.Equal(t, "1 Infinite Loop", captured.Street)
	assert.Nil(t, captured.City)
	assert.Nil(t, captured.State)
	assert.Nil(t, captured.Zipcode)
}

func TestNormalizer_DoesNotMutateCallerAddresses(t *testing.T) {
	next := &fakeGeocoder{tag: "fake", columns: []string{"geo"}}
	n := &Normalizer{Next: next, Parser: &stubParser{components: Components{Road: "rebuilt"}}}

	addrs := []domain.Address{{Street: "original"}}
	_, err := n.GeocodeAddresses(context.Background(), addrs)
	require.NoError(t, err)

	assert.Equal(t, "original", addrs[0].Street)
}

func TestNormalizer_PropagatesParseError(t *testing.T) {
	next := &fakeGeocoder{tag: "fake", columns: []string{"geo"}}
	n := &Normalizer{Next: next, Parser: &stubParser{err: assert.AnError}}

	_, err := n.GeocodeAddresses(context.Background(), []domain.Address{{Street: "x"}})
	assert.ErrorIs(t, err, assert.AnError)
}

type capturingGeocoder struct {
	*fakeGeocoder
	capture *domain.Address
}

func (c *capturingGeocoder) GeocodeAddresses(ctx context.Context, addrs []domain.Address) ([]*domain.Geocoded, error) {
	*c.capture = addrs[0]
	return c.fakeGeocoder.GeocodeAddresses(ctx, addrs)
}
