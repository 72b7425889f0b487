package libpostal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/couchcryptid/geocode-csv/internal/domain"
)

// queryString combines every Address field into the one string libpostal
// parses, the same "{street} {city} {state} {zipcode}" shape the
// Normalizer builds for its own component parser, so city/state/zipcode
// reach the sidecar even though Address keeps them in separate fields.
func queryString(a domain.Address) string {
	return fmt.Sprintf("%s %s %s %s", a.Street, derefOrEmpty(a.City), derefOrEmpty(a.State), derefOrEmpty(a.Zipcode))
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Geocoder talks to a libpostal parser running behind an HTTP sidecar
// (e.g. openvenues/libpostal wrapped by a small REST shim). It implements
// domain.Geocoder so it can sit anywhere in a decorator stack, but it only
// parses structure out of the address — it does not resolve coordinates —
// so its declared ColumnNames are the parsed component labels, not
// lat/lon.
type Geocoder struct {
	baseURL    string
	httpClient *http.Client
	columns    []string
}

// DefaultColumns names the libpostal component labels this sidecar
// extracts, in the order they are appended to a row.
var DefaultColumns = []string{"house_number", "road", "city", "state", "postcode"}

// New creates a libpostal sidecar client.
func New(baseURL string, timeout time.Duration) *Geocoder {
	return &Geocoder{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		columns:    DefaultColumns,
	}
}

func (g *Geocoder) Tag() string              { return "libpostal" }
func (g *Geocoder) ConfigurationKey() string { return g.baseURL }
func (g *Geocoder) ColumnNames() []string    { return g.columns }

type parseRequest struct {
	Query string `json:"query"`
}

type component struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

type parseResponse struct {
	Components []component `json:"components"`
}

// GeocodeAddresses issues one parse request per address. libpostal's own
// batching story is left to the sidecar; this client keeps the request
// shape simple rather than building a tuned production client.
func (g *Geocoder) GeocodeAddresses(ctx context.Context, addrs []domain.Address) ([]*domain.Geocoded, error) {
	out := make([]*domain.Geocoded, len(addrs))
	for i, a := range addrs {
		parsed, err := g.parse(ctx, queryString(a))
		if err != nil {
			return nil, fmt.Errorf("libpostal: parse address %d: %w", i, err)
		}
		out[i] = parsed
	}
	return out, nil
}

func (g *Geocoder) parse(ctx context.Context, query string) (*domain.Geocoded, error) {
	body, err := json.Marshal(parseRequest{Query: query})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/parse", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("parse request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("libpostal sidecar error: status %d: %s", resp.StatusCode, data)
	}

	var parsed parseResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	byLabel := make(map[string]string, len(parsed.Components))
	for _, c := range parsed.Components {
		byLabel[c.Label] = c.Value
	}

	values := make([]string, len(g.columns))
	for i, label := range g.columns {
		values[i] = byLabel[label]
	}
	return &domain.Geocoded{ColumnValues: values}, nil
}
