package pipeline

import (
	"fmt"

	"github.com/couchcryptid/geocode-csv/internal/domain"
)

// DuplicatePolicy governs what happens when an input column's name
// collides with one of the prefixed output columns the geocoder stack is
// about to add (e.g. a "home_city" input column next to a "home" prefix
// whose geocoder emits a "city" column).
type DuplicatePolicy int

const (
	// DuplicateError fails the run, naming the first colliding column.
	DuplicateError DuplicatePolicy = iota
	// DuplicateReplace strips the colliding input column before the
	// geocoded column of the same name is appended.
	DuplicateReplace
	// DuplicateAppend leaves the input column in place, producing a
	// header with a literal duplicate name.
	DuplicateAppend
)

// ParseDuplicatePolicy parses the --duplicate-columns flag value.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch s {
	case "", "error":
		return DuplicateError, nil
	case "replace":
		return DuplicateReplace, nil
	case "append":
		return DuplicateAppend, nil
	default:
		return 0, fmt.Errorf("pipeline: unknown duplicate-columns policy %q", s)
	}
}

// sharedSpec is the resolved, read-only state every worker goroutine
// needs: the header-resolved address column spec, the fixed iteration
// order over its prefixes, the geocoder stack producing results, and the
// output header those results extend. It is built once by the reader
// before any chunk is produced and never mutated afterward, so it is
// safe to share across the worker pool without locking.
type sharedSpec struct {
	resolved domain.AddressColumnSpec[int]
	prefixes []string
	geocoder domain.Geocoder
	header   []string
	keep     []int // indices into the original input row to retain; nil means keep all
}

func newSharedSpec(spec domain.AddressColumnSpec[string], header []string, geocoder domain.Geocoder, policy DuplicatePolicy) (*sharedSpec, error) {
	seen := make(map[string]bool, len(header))
	for _, h := range header {
		if seen[h] {
			return nil, fmt.Errorf("%w: %q", domain.ErrDuplicateHeader, h)
		}
		seen[h] = true
	}

	prefixedNames := make(map[string]bool)
	for _, prefix := range spec.SortedPrefixes() {
		for _, col := range geocoder.ColumnNames() {
			prefixedNames[prefix+"_"+col] = true
		}
	}

	var keep []int
	workingHeader := header
	if policy == DuplicateReplace {
		keep = make([]int, 0, len(header))
		filtered := make([]string, 0, len(header))
		for i, h := range header {
			if prefixedNames[h] {
				continue
			}
			keep = append(keep, i)
			filtered = append(filtered, h)
		}
		workingHeader = filtered
	} else if policy == DuplicateError {
		for _, h := range header {
			if prefixedNames[h] {
				return nil, fmt.Errorf("%w: %q", domain.ErrDuplicateHeader, h)
			}
		}
	}
	// DuplicateAppend leaves workingHeader and keep untouched: the
	// colliding input column stays, and the spec still resolves against
	// it since it was never removed.

	resolved, err := domain.ResolveHeaders(spec, workingHeader)
	if err != nil {
		return nil, fmt.Errorf("pipeline: resolve header against spec: %w", err)
	}

	prefixes := resolved.SortedPrefixes()
	outHeader := append([]string(nil), workingHeader...)
	for _, prefix := range prefixes {
		outHeader = domain.AddHeaderColumns(geocoder, prefix, outHeader)
	}

	return &sharedSpec{resolved: resolved, prefixes: prefixes, geocoder: geocoder, header: outHeader, keep: keep}, nil
}

// filterRow applies the keep-index projection computed for
// DuplicateReplace, or returns row unchanged when no columns were
// dropped.
func (s *sharedSpec) filterRow(row []string) []string {
	if s.keep == nil {
		return row
	}
	out := make([]string, 0, len(s.keep))
	for _, i := range s.keep {
		if i < len(row) {
			out = append(out, row[i])
		} else {
			out = append(out, "")
		}
	}
	return out
}

// addressesPerRow is how many addresses one input row contributes to a
// chunk's flattened, row-major address slice.
func (s *sharedSpec) addressesPerRow() int { return len(s.prefixes) }

// extractAddresses pulls one Address per configured prefix out of row, in
// prefix order.
func (s *sharedSpec) extractAddresses(row []string) []domain.Address {
	addrs := make([]domain.Address, len(s.prefixes))
	for i, prefix := range s.prefixes {
		addrs[i] = domain.ExtractAddress(s.resolved[prefix], row)
	}
	return addrs
}

// appendResults extends row with one geocoded column group per prefix, in
// the same order extractAddresses produced them. A nil result means "no
// match" and contributes a run of empty columns instead of a panic.
func (s *sharedSpec) appendResults(row []string, results []*domain.Geocoded) []string {
	out := row
	for _, g := range results {
		if g == nil {
			out = domain.AddEmptyColumnsToRow(s.geocoder, out)
			continue
		}
		out = domain.AddValueColumnsToRow(g, out)
	}
	return out
}
