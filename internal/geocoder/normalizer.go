package geocoder

import (
	"context"
	"fmt"
	"strings"

	"github.com/couchcryptid/geocode-csv/internal/domain"
)

// Components is the structured breakdown a ComponentParser produces from
// a raw address string, named after libpostal's own component labels.
type Components struct {
	POBox, HouseNumber, House, Road, Unit, CityDistrict, City, State, Postcode string
}

// ComponentParser splits a free-form address string into its components,
// the way libpostal's address parser does. Normalizer is written against
// this interface rather than a concrete libpostal client so a pure-Go
// heuristic implementation can stand in for the real, cgo-only library.
type ComponentParser interface {
	// Parse breaks raw into components. A component the parser has no
	// opinion on is left as the empty string rather than erroring; Parse
	// itself only errors when raw cannot be parsed at all.
	Parse(raw string) (Components, error)
}

// Normalizer wraps a Geocoder and rebuilds each address from a component
// parser's breakdown of "{street} {city} {state} {zipcode}" before
// forwarding it downstream. Folding variant spellings ("St" vs "Street",
// "Apt 4" vs "#4") together this way means cache keys for equivalent
// addresses collide instead of fragmenting. Normalized addresses replace
// the originals only for the downstream call; the caller's own output
// columns are untouched. The transformation is stable by construction —
// changing it invalidates every cache entry built under the old form.
type Normalizer struct {
	Next   domain.Geocoder
	Parser ComponentParser
}

var _ domain.Geocoder = (*Normalizer)(nil)

func (n *Normalizer) Tag() string              { return "norm" }
func (n *Normalizer) ConfigurationKey() string { return n.Next.ConfigurationKey() }
func (n *Normalizer) ColumnNames() []string    { return n.Next.ColumnNames() }

func (n *Normalizer) GeocodeAddresses(ctx context.Context, addrs []domain.Address) ([]*domain.Geocoded, error) {
	normalized := make([]domain.Address, len(addrs))
	for i, a := range addrs {
		raw := fmt.Sprintf("%s %s %s %s", a.Street, derefOrEmpty(a.City), derefOrEmpty(a.State), derefOrEmpty(a.Zipcode))
		components, err := n.Parser.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("normalizer: parse address %d: %w", i, err)
		}
		normalized[i] = rebuildAddress(components)
	}
	return n.Next.GeocodeAddresses(ctx, normalized)
}

// rebuildAddress turns a parsed Components breakdown back into an
// Address: street from po_box+house_number+house+road+unit, city from
// city_district+city, state and zipcode passed through directly.
func rebuildAddress(c Components) domain.Address {
	a := domain.Address{
		Street: joinSpace(c.POBox, c.HouseNumber, c.House, c.Road, c.Unit),
	}
	if city := joinSpace(c.CityDistrict, c.City); city != "" {
		a.City = &city
	}
	if state := strings.TrimSpace(c.State); state != "" {
		a.State = &state
	}
	if zipcode := strings.TrimSpace(c.Postcode); zipcode != "" {
		a.Zipcode = &zipcode
	}
	return a
}

// joinSpace trims each part and joins the non-empty ones with single
// spaces, eliding empty parts entirely.
func joinSpace(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
