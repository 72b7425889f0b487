// Package libpostal provides a normalizer component parser and a sketch
// Geocoder for libpostal. Real libpostal is a C library reached through
// cgo bindings; HeuristicParser is a pure-Go stand-in for the component
// parser a production deployment would link, good enough to exercise the
// Normalizer's rebuild pipeline and its tests, and Geocoder talks to a
// real libpostal instance running behind an HTTP sidecar for anyone who
// wants the genuine parser.
package libpostal

import (
	"regexp"
	"strings"

	"github.com/couchcryptid/geocode-csv/internal/geocoder"
)

var (
	poBoxRE   = regexp.MustCompile(`(?i)\bP\.?\s*O\.?\s*Box\s+\S+\b`)
	unitRE    = regexp.MustCompile(`(?i)\b(?:apt|apartment|unit|ste|suite|#)\.?\s*\S+\b`)
	zipRE     = regexp.MustCompile(`\b\d{5}(?:-\d{4})?\b`)
	stateRE   = regexp.MustCompile(`(?i)\b[A-Z]{2}\b`)
	houseNoRE = regexp.MustCompile(`^\d+\S*`)
)

// HeuristicParser implements geocoder.ComponentParser with a regex/token
// pipeline: it peels recognizable pieces (PO box, unit/apartment marker,
// trailing ZIP, trailing state abbreviation, leading house number) off
// the raw string one at a time, and treats what remains of the leading
// "street city" portion as road and city by word count — the cheap
// heuristic libpostal's statistical model replaces in a real deployment.
type HeuristicParser struct{}

func (HeuristicParser) Parse(raw string) (geocoder.Components, error) {
	var c geocoder.Components
	remaining := raw

	if m := poBoxRE.FindString(remaining); m != "" {
		c.POBox = strings.TrimSpace(m)
		remaining = poBoxRE.ReplaceAllString(remaining, " ")
	}
	if m := unitRE.FindString(remaining); m != "" {
		c.Unit = strings.TrimSpace(m)
		remaining = unitRE.ReplaceAllString(remaining, " ")
	}
	if locs := zipRE.FindAllStringIndex(remaining, -1); len(locs) > 0 {
		last := locs[len(locs)-1]
		c.Postcode = remaining[last[0]:last[1]]
		remaining = remaining[:last[0]] + " " + remaining[last[1]:]
	}
	if locs := stateRE.FindAllStringIndex(remaining, -1); len(locs) > 0 {
		last := locs[len(locs)-1]
		c.State = strings.ToUpper(remaining[last[0]:last[1]])
		remaining = remaining[:last[0]] + " " + remaining[last[1]:]
	}

	fields := strings.Fields(remaining)
	if len(fields) > 0 && houseNoRE.MatchString(fields[0]) {
		c.HouseNumber = fields[0]
		fields = fields[1:]
	}

	// What's left is the street name followed by the city name, run
	// together with no delimiter to anchor on. Libpostal's real parser
	// resolves this from a trained model; this stand-in guesses the
	// last third of the remaining tokens is the city and the rest is
	// the road, which is wrong often enough that it is never used for
	// anything but exercising the rebuild pipeline.
	if len(fields) > 0 {
		citySplit := len(fields) - len(fields)/3
		if citySplit < 1 {
			citySplit = len(fields)
		}
		c.Road = strings.Join(fields[:citySplit], " ")
		c.City = strings.Join(fields[citySplit:], " ")
	}

	return c, nil
}
