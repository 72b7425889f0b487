// Package geocoder holds the Geocoder decorators that compose around a
// concrete external geocoder: skipping invalid addresses, normalizing
// components, and caching results. Each decorator implements
// domain.Geocoder itself, so they nest in any order the caller wants.
package geocoder

import (
	"context"
	"fmt"

	"github.com/couchcryptid/geocode-csv/internal/domain"
)

// InvalidSkipper wraps a Geocoder and never sends addresses that fail
// Address.IsValid to the underlying geocoder, reporting a nil result (no
// match) for them directly instead.
type InvalidSkipper struct {
	Next domain.Geocoder
}

var _ domain.Geocoder = (*InvalidSkipper)(nil)

func (s *InvalidSkipper) Tag() string              { return s.Next.Tag() }
func (s *InvalidSkipper) ConfigurationKey() string  { return s.Next.ConfigurationKey() }
func (s *InvalidSkipper) ColumnNames() []string     { return s.Next.ColumnNames() }

// GeocodeAddresses partitions addrs into valid and invalid, forwards only
// the valid ones downstream, and splices the results back into the
// original positions so the caller sees one result per input address
// regardless of validity.
func (s *InvalidSkipper) GeocodeAddresses(ctx context.Context, addrs []domain.Address) ([]*domain.Geocoded, error) {
	results := make([]*domain.Geocoded, len(addrs))

	var validIdx []int
	var valid []domain.Address
	for i, a := range addrs {
		if a.IsValid() {
			validIdx = append(validIdx, i)
			valid = append(valid, a)
		}
		// else: results[i] stays nil — "no match" for an invalid address.
	}

	if len(valid) == 0 {
		return results, nil
	}

	geocoded, err := s.Next.GeocodeAddresses(ctx, valid)
	if err != nil {
		return nil, err
	}
	if len(geocoded) != len(valid) {
		return nil, fmt.Errorf("%w: got %d results for %d valid addresses", domain.ErrArityMismatch, len(geocoded), len(valid))
	}

	for j, i := range validIdx {
		results[i] = geocoded[j]
	}
	return results, nil
}
