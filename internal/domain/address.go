package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Address is the normalized unit of input to a Geocoder. Street is required
// for an address to be considered valid; City, State, and Zipcode are
// optional.
type Address struct {
	Street  string
	City    *string
	State   *string
	Zipcode *string
}

// EqualFold reports whether two addresses are equal, ignoring ASCII case.
func (a Address) EqualFold(other Address) bool {
	return strings.EqualFold(a.Street, other.Street) &&
		optEqualFold(a.City, other.City) &&
		optEqualFold(a.State, other.State) &&
		optEqualFold(a.Zipcode, other.Zipcode)
}

func optEqualFold(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return strings.EqualFold(*a, *b)
}

// OptionalValue dereferences an optional string field, returning "" for nil.
func OptionalValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ColumnKeyOrKeys is either a single column key or an ordered list of keys.
// K is a header name before resolution, a column index afterward.
type ColumnKeyOrKeys[K comparable] struct {
	Keys []K
}

// SingleKey wraps one column key.
func SingleKey[K comparable](k K) ColumnKeyOrKeys[K] {
	return ColumnKeyOrKeys[K]{Keys: []K{k}}
}

// UnmarshalJSON accepts either a scalar column key or an array of them.
func (c *ColumnKeyOrKeys[K]) UnmarshalJSON(data []byte) error {
	var single K
	if err := json.Unmarshal(data, &single); err == nil {
		c.Keys = []K{single}
		return nil
	}

	var many []K
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("column key: expected a scalar or array: %w", err)
	}
	c.Keys = many
	return nil
}

// MarshalJSON emits a scalar when there is exactly one key, else an array.
func (c ColumnKeyOrKeys[K]) MarshalJSON() ([]byte, error) {
	if len(c.Keys) == 1 {
		return json.Marshal(c.Keys[0])
	}
	return json.Marshal(c.Keys)
}

// Extract concatenates the values at each key, separated by a single space.
// If appending a value would merely repeat the trailing suffix of the
// accumulator, it is skipped — a real-world quirk where the same unit
// number shows up twice across adjacent columns (e.g. "Main Street #302"
// followed by "#302").
func Extract(values []string) string {
	var acc string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if acc != "" && strings.HasSuffix(acc, v) {
			continue
		}
		if acc == "" {
			acc = v
		} else {
			acc = acc + " " + v
		}
	}
	return acc
}

// AddressColumnKeys names, for one prefix, the column keys that hold street,
// city, state, and zipcode data.
type AddressColumnKeys[K comparable] struct {
	Street  ColumnKeyOrKeys[K]
	City    *K
	State   *K
	Zipcode *K
}

// addressColumnKeysJSON mirrors AddressColumnKeys but accepts the JSON field
// aliases documented in spec: street accepts house_number_and_street,
// address, glob; zipcode accepts postcode.
type addressColumnKeysJSON[K comparable] struct {
	Street              *ColumnKeyOrKeys[K] `json:"street"`
	HouseNumberAndStreet *ColumnKeyOrKeys[K] `json:"house_number_and_street"`
	Address             *ColumnKeyOrKeys[K] `json:"address"`
	Glob                *ColumnKeyOrKeys[K] `json:"glob"`
	City                *K                  `json:"city"`
	State               *K                  `json:"state"`
	Zipcode             *K                  `json:"zipcode"`
	Postcode            *K                  `json:"postcode"`
}

// UnmarshalJSON resolves the street/zipcode field aliases into one canonical
// representation.
func (a *AddressColumnKeys[K]) UnmarshalJSON(data []byte) error {
	var raw addressColumnKeysJSON[K]
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	street, err := firstNonNil("street", raw.Street, raw.HouseNumberAndStreet, raw.Address, raw.Glob)
	if err != nil {
		return err
	}
	a.Street = *street

	zipcode, err := firstNonNilScalar[K]("zipcode", raw.Zipcode, raw.Postcode)
	if err != nil {
		return err
	}

	a.City = raw.City
	a.State = raw.State
	a.Zipcode = zipcode
	return nil
}

func firstNonNil[K comparable](field string, opts ...*ColumnKeyOrKeys[K]) (*ColumnKeyOrKeys[K], error) {
	var found *ColumnKeyOrKeys[K]
	for _, o := range opts {
		if o == nil {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("%s: more than one alias provided", field)
		}
		found = o
	}
	if found == nil {
		return nil, fmt.Errorf("%s: required field missing", field)
	}
	return found, nil
}

func firstNonNilScalar[K comparable](field string, opts ...*K) (*K, error) {
	var found *K
	for _, o := range opts {
		if o == nil {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("%s: more than one alias provided", field)
		}
		found = o
	}
	return found, nil
}

// AddressColumnSpec maps a prefix to its column keys. Prefixes are always
// iterated in sorted (lexicographic) order so output is deterministic.
type AddressColumnSpec[K comparable] map[string]AddressColumnKeys[K]

// SortedPrefixes returns the spec's prefixes in lexicographic order.
func (s AddressColumnSpec[K]) SortedPrefixes() []string {
	prefixes := make([]string, 0, len(s))
	for p := range s {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)
	return prefixes
}

// PrefixCount returns the number of configured prefixes.
func (s AddressColumnSpec[K]) PrefixCount() int {
	return len(s)
}

// ResolveHeaders turns a header-name spec into an index spec by looking up
// each column key's position in header. Returns an error naming the first
// unknown header encountered.
func ResolveHeaders(s AddressColumnSpec[string], header []string) (AddressColumnSpec[int], error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[h] = i
	}

	lookup := func(name string) (int, error) {
		i, ok := index[name]
		if !ok {
			return 0, fmt.Errorf("%w: %q", ErrUnknownSpecColumn, name)
		}
		return i, nil
	}

	resolved := make(AddressColumnSpec[int], len(s))
	for prefix, keys := range s {
		var rk AddressColumnKeys[int]

		streetIdx := make([]int, len(keys.Street.Keys))
		for i, name := range keys.Street.Keys {
			idx, err := lookup(name)
			if err != nil {
				return nil, err
			}
			streetIdx[i] = idx
		}
		rk.Street = ColumnKeyOrKeys[int]{Keys: streetIdx}

		if keys.City != nil {
			idx, err := lookup(*keys.City)
			if err != nil {
				return nil, err
			}
			rk.City = &idx
		}
		if keys.State != nil {
			idx, err := lookup(*keys.State)
			if err != nil {
				return nil, err
			}
			rk.State = &idx
		}
		if keys.Zipcode != nil {
			idx, err := lookup(*keys.Zipcode)
			if err != nil {
				return nil, err
			}
			rk.Zipcode = &idx
		}

		resolved[prefix] = rk
	}
	return resolved, nil
}

// ExtractAddress pulls the address for one prefix out of a row, using
// already-resolved column indices.
func ExtractAddress(keys AddressColumnKeys[int], row []string) Address {
	streetValues := make([]string, len(keys.Street.Keys))
	for i, idx := range keys.Street.Keys {
		streetValues[i] = cell(row, idx)
	}

	addr := Address{Street: Extract(streetValues)}
	if keys.City != nil {
		addr.City = optField(cell(row, *keys.City))
	}
	if keys.State != nil {
		addr.State = optField(cell(row, *keys.State))
	}
	if keys.Zipcode != nil {
		addr.Zipcode = optField(cell(row, *keys.Zipcode))
	}
	return addr
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func optField(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// IsValid reports whether the address has a non-empty street once
// whitespace is trimmed, per the invalid-record skipper's definition of a
// usable address.
func (a Address) IsValid() bool {
	return strings.TrimSpace(a.Street) != ""
}

// Geocoded is one geocoder result: an ordered list of column values whose
// length must equal the owning Geocoder's ColumnNames().
type Geocoded struct {
	ColumnValues []string
}
