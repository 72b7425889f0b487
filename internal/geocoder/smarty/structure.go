// Package smarty implements a Geocoder against the Smarty US Street batch
// API, with a leaky-bucket rate limiter in front of it.
package smarty

import "strconv"

// Candidate is one matched address Smarty's batch endpoint returns for an
// input. InputIndex ties it back to the position of the address in the
// request batch the way a Geoapify-style batch job addresses results by
// index rather than by echoing the whole input back.
type Candidate struct {
	InputIndex int    `json:"input_index"`
	DeliveryLine1 string `json:"delivery_line_1"`
	Components    struct {
		CityName          string `json:"city_name"`
		StateAbbreviation string `json:"state_abbreviation"`
		Zipcode           string `json:"zipcode"`
	} `json:"components"`
	Metadata struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Precision string  `json:"precision"`
	} `json:"metadata"`
}

// Field names one projected output column and how to pull its value out
// of a matched Candidate.
type Field struct {
	Name    string
	Extract func(Candidate) string
}

// Structure is a declarative, ORDERED projection from a Candidate onto
// output columns. Order here is the wire order: domain.Geocoder requires
// ColumnNames() and a result's ColumnValues to line up positionally, so
// this is expressed as an ordered slice of fields rather than a JSON
// struct tag a reflect-based marshaler would reorder arbitrarily.
type Structure []Field

// Names returns the declared column names in order.
func (s Structure) Names() []string {
	names := make([]string, len(s))
	for i, f := range s {
		names[i] = f.Name
	}
	return names
}

// Project extracts every field from c, in order.
func (s Structure) Project(c Candidate) []string {
	values := make([]string, len(s))
	for i, f := range s {
		values[i] = f.Extract(c)
	}
	return values
}

// DefaultStructure projects Smarty's most commonly used US Street result
// fields.
var DefaultStructure = Structure{
	{Name: "delivery_line_1", Extract: func(c Candidate) string { return c.DeliveryLine1 }},
	{Name: "city", Extract: func(c Candidate) string { return c.Components.CityName }},
	{Name: "state", Extract: func(c Candidate) string { return c.Components.StateAbbreviation }},
	{Name: "zipcode", Extract: func(c Candidate) string { return c.Components.Zipcode }},
	{Name: "latitude", Extract: func(c Candidate) string { return formatFloat(c.Metadata.Latitude) }},
	{Name: "longitude", Extract: func(c Candidate) string { return formatFloat(c.Metadata.Longitude) }},
	{Name: "precision", Extract: func(c Candidate) string { return c.Metadata.Precision }},
}

func formatFloat(f float64) string {
	if f == 0 {
		return ""
	}
	return strconv.FormatFloat(f, 'f', 6, 64)
}
