package pipeline

import "github.com/couchcryptid/geocode-csv/internal/domain"

// Chunk is a group of input rows (at most GeocodeSize addresses in all)
// carried together through the geocode stage as one batch, so a single
// geocoder call amortizes its per-request overhead (HTTP round trip,
// rate-limiter wait) across many addresses instead of paying it once per
// row.
type Chunk struct {
	// Index is this chunk's position in the input stream, used to name
	// the chunk in error messages. Output order comes from the writer's
	// ordering queue, not from Index.
	Index int
	Rows  [][]string
	// Addrs is row-major: len(Rows) * spec.addressesPerRow() addresses,
	// grouped addressesPerRow()-at-a-time per row.
	Addrs []domain.Address
}

func newChunk(index int, rows [][]string, spec *sharedSpec) Chunk {
	filtered := make([][]string, len(rows))
	addrs := make([]domain.Address, 0, len(rows)*spec.addressesPerRow())
	for i, row := range rows {
		filtered[i] = spec.filterRow(row)
		addrs = append(addrs, spec.extractAddresses(filtered[i])...)
	}
	return Chunk{Index: index, Rows: filtered, Addrs: addrs}
}

// buildRows splices geocoded results back onto this chunk's input rows,
// one result group per row, in the same row-major order Addrs was built
// in.
func (c Chunk) buildRows(spec *sharedSpec, results []*domain.Geocoded) [][]string {
	perRow := spec.addressesPerRow()
	out := make([][]string, len(c.Rows))
	for i, row := range c.Rows {
		group := results[i*perRow : (i+1)*perRow]
		out[i] = spec.appendResults(append([]string(nil), row...), group)
	}
	return out
}
