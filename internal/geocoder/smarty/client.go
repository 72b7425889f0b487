package smarty

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/geocode-csv/internal/domain"
	"github.com/couchcryptid/geocode-csv/internal/observability"
	"golang.org/x/time/rate"
)

// ErrInvalidInputIndex is returned when a batch response claims the same
// input_index twice, or names an index outside [0, len(requests)) — both
// responses the client cannot safely match back to a request.
var ErrInvalidInputIndex = errors.New("smarty: invalid input_index in batch response")

const defaultBaseURL = "https://us-street.api.smarty.com/street-address"

// MatchStrategy controls which candidates Smarty considers a match.
type MatchStrategy string

const (
	MatchStrict   MatchStrategy = "strict"
	MatchRange    MatchStrategy = "range"
	MatchInvalid  MatchStrategy = "invalid"
	MatchEnhanced MatchStrategy = "enhanced"
)

// PermanentError marks a Smarty response as non-retryable: a 4xx other
// than 429 means the request itself is malformed or unauthorized, and
// retrying an unchanged request would just fail the same way again.
type PermanentError struct {
	StatusCode int
	Body       string
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("smarty: permanent API error: status %d: %s", e.StatusCode, e.Body)
}

// Permanent satisfies domain's internal permanentError interface.
func (e *PermanentError) Permanent() bool { return true }

func isTransientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// Geocoder implements domain.Geocoder against Smarty's US Street batch
// API: one HTTP POST carries the whole chunk of addresses, and Smarty's
// response array is demultiplexed back onto the caller's input order by
// each candidate's input_index.
type Geocoder struct {
	authID    string
	authToken string

	httpClient *http.Client
	baseURL    string
	structure  Structure
	match      MatchStrategy
	limiter    *rate.Limiter
	metrics    *observability.Metrics
}

// Option configures a Geocoder at construction time.
type Option func(*Geocoder)

// WithBaseURL overrides the Smarty endpoint, used by tests to point at an
// httptest.Server.
func WithBaseURL(u string) Option { return func(g *Geocoder) { g.baseURL = u } }

// WithStructure overrides the default column projection.
func WithStructure(s Structure) Option { return func(g *Geocoder) { g.structure = s } }

// WithMatchStrategy overrides the default "strict" match strategy.
func WithMatchStrategy(m MatchStrategy) Option { return func(g *Geocoder) { g.match = m } }

// WithLimiter installs a rate limiter; requests wait on it before being
// sent.
func WithLimiter(l *rate.Limiter) Option { return func(g *Geocoder) { g.limiter = l } }

// WithMetrics wires Prometheus observability into the client.
func WithMetrics(m *observability.Metrics) Option { return func(g *Geocoder) { g.metrics = m } }

// New creates a Smarty geocoder. authID and authToken are Smarty's
// SMARTY_AUTH_ID / SMARTY_AUTH_TOKEN credentials.
func New(authID, authToken string, timeout time.Duration, opts ...Option) *Geocoder {
	g := &Geocoder{
		authID:     authID,
		authToken:  authToken,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    defaultBaseURL,
		structure:  DefaultStructure,
		match:      MatchStrict,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Geocoder) Tag() string { return "smarty" }

// ConfigurationKey distinguishes cache entries produced under different
// output structures: changing which columns get projected must not let a
// cached result from a narrower projection silently satisfy a wider one.
func (g *Geocoder) ConfigurationKey() string {
	key := "structure:"
	for _, f := range g.structure {
		key += f.Name + ","
	}
	key += ";match:" + string(g.match)
	return key
}

func (g *Geocoder) ColumnNames() []string { return g.structure.Names() }

type addressQuery struct {
	Street        string `json:"street"`
	City          string `json:"city,omitempty"`
	State         string `json:"state,omitempty"`
	Zipcode       string `json:"zipcode,omitempty"`
	MatchStrategy string `json:"match_strategy"`
}

// GeocodeAddresses sends one batch request for the whole chunk, waiting
// on the rate limiter first if one is configured.
func (g *Geocoder) GeocodeAddresses(ctx context.Context, addrs []domain.Address) ([]*domain.Geocoded, error) {
	if len(addrs) == 0 {
		return nil, nil
	}

	if g.limiter != nil {
		start := time.Now()
		if err := g.limiter.WaitN(ctx, len(addrs)); err != nil {
			return nil, fmt.Errorf("smarty: rate limit wait: %w", err)
		}
		if g.metrics != nil {
			g.metrics.RateLimiterWaitSeconds.Observe(time.Since(start).Seconds())
		}
	}

	queries := make([]addressQuery, len(addrs))
	for i, a := range addrs {
		queries[i] = addressQuery{
			Street:        a.Street,
			City:          domain.OptionalValue(a.City),
			State:         domain.OptionalValue(a.State),
			Zipcode:       domain.OptionalValue(a.Zipcode),
			MatchStrategy: string(g.match),
		}
	}

	body, err := json.Marshal(queries)
	if err != nil {
		return nil, fmt.Errorf("smarty: encode request: %w", err)
	}

	u := g.baseURL + "?" + url.Values{
		"auth-id":    {g.authID},
		"auth-token": {g.authToken},
	}.Encode()

	timer := time.Now()
	candidates, err := g.doRequest(ctx, u, body)
	duration := time.Since(timer)
	if g.metrics != nil {
		g.metrics.GeocodeAPIDuration.WithLabelValues(g.Tag()).Observe(duration.Seconds())
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		g.metrics.GeocodeRequests.WithLabelValues(g.Tag(), outcome).Inc()
	}
	if err != nil {
		return nil, err
	}

	byIndex := make(map[int]Candidate, len(candidates))
	for _, c := range candidates {
		if c.InputIndex < 0 || c.InputIndex >= len(addrs) {
			return nil, fmt.Errorf("%w: %d out of range [0, %d)", ErrInvalidInputIndex, c.InputIndex, len(addrs))
		}
		if _, exists := byIndex[c.InputIndex]; exists {
			return nil, fmt.Errorf("%w: %d claimed twice", ErrInvalidInputIndex, c.InputIndex)
		}
		byIndex[c.InputIndex] = c
	}

	out := make([]*domain.Geocoded, len(addrs))
	for i := range addrs {
		if c, ok := byIndex[i]; ok {
			out[i] = &domain.Geocoded{ColumnValues: g.structure.Project(c)}
		}
		// else: out[i] stays nil — no candidate claimed this index.
	}
	return out, nil
}

func (g *Geocoder) doRequest(ctx context.Context, u string, body []byte) ([]Candidate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("smarty: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("smarty: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		if !isTransientStatus(resp.StatusCode) {
			return nil, &PermanentError{StatusCode: resp.StatusCode, Body: string(data)}
		}
		return nil, fmt.Errorf("smarty: API error: status %d: %s", resp.StatusCode, data)
	}

	var candidates []Candidate
	if err := json.NewDecoder(resp.Body).Decode(&candidates); err != nil {
		return nil, fmt.Errorf("smarty: decode response: %w", err)
	}
	return candidates, nil
}
