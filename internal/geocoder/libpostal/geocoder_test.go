package libpostal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/couchcryptid/geocode-csv/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeocoder_ParsesComponentsInColumnOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req parseRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "20 W 34th St New York NY 10001", req.Query)

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(parseResponse{
			Components: []component{
				{Label: "road", Value: "34th st"},
				{Label: "house_number", Value: "20"},
				{Label: "city", Value: "new york"},
				{Label: "state", Value: "ny"},
			},
		}))
	}))
	defer srv.Close()

	g := New(srv.URL, 5*time.Second)
	city, state, zip := "New York", "NY", "10001"
	results, err := g.GeocodeAddresses(context.Background(), []domain.Address{
		{Street: "20 W 34th St", City: &city, State: &state, Zipcode: &zip},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, []string{"20", "34th st", "new york", "ny", ""}, results[0].ColumnValues)
}

func TestGeocoder_SidecarError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"parse failed"}`))
	}))
	defer srv.Close()

	g := New(srv.URL, 5*time.Second)
	_, err := g.GeocodeAddresses(context.Background(), []domain.Address{{Street: "x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestGeocoder_ColumnNamesMatchDefault(t *testing.T) {
	g := New("http://localhost:9999", time.Second)
	assert.Equal(t, DefaultColumns, g.ColumnNames())
	assert.Equal(t, "libpostal", g.Tag())
}
