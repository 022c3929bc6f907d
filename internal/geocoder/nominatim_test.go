package geocoder

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr1hm/go-disaster-nearby/internal/geo"
	"github.com/mr1hm/go-disaster-nearby/internal/observability"
)

const testUserAgent = "disaster-nearby-test/1.0"

func testClient(baseURL string) *Nominatim {
	return NewNominatim(baseURL, testUserAgent, 5*time.Second, observability.NewMetricsForTesting())
}

func TestNominatim_ReverseGeocode_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reverse", r.URL.Path)
		assert.Equal(t, "34.05", r.URL.Query().Get("lat"))
		assert.Equal(t, "-118.25", r.URL.Query().Get("lon"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, testUserAgent, r.Header.Get("User-Agent"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"address":{"city":"Los Angeles","county":"Los Angeles County","state":"California","country":"United States"}}`))
	}))
	defer srv.Close()

	region, err := testClient(srv.URL).ReverseGeocode(context.Background(), geo.Coordinate{Latitude: 34.05, Longitude: -118.25})
	require.NoError(t, err)

	assert.Equal(t, "Los Angeles County", region.County)
	assert.Equal(t, "Los Angeles", region.City)
	assert.Equal(t, "California", region.State)
	assert.Equal(t, "United States", region.Country)
}

func TestNominatim_ReverseGeocode_TownAndVillageFallback(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantCty string
	}{
		{"town", `{"address":{"town":"Ojai","state":"California"}}`, "Ojai"},
		{"village", `{"address":{"village":"Idyllwild","state":"California"}}`, "Idyllwild"},
		{"city wins", `{"address":{"city":"Pasadena","town":"Ojai","village":"Idyllwild"}}`, "Pasadena"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			region, err := testClient(srv.URL).ReverseGeocode(context.Background(), geo.Coordinate{Latitude: 34, Longitude: -118})
			require.NoError(t, err)
			assert.Equal(t, tt.wantCty, region.City)
		})
	}
}

func TestNominatim_ReverseGeocode_NoMatchIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"error":"Unable to geocode"}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).ReverseGeocode(context.Background(), geo.Coordinate{Latitude: 0, Longitude: -140})
	require.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

func TestNominatim_ReverseGeocode_ServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`overloaded`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).ReverseGeocode(context.Background(), geo.Coordinate{Latitude: 34, Longitude: -118})
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "503")
}

func TestNominatim_ReverseGeocode_InvalidCoordinateSkipsNetwork(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).ReverseGeocode(context.Background(), geo.Coordinate{Latitude: 120, Longitude: 0})
	require.ErrorIs(t, err, geo.ErrInvalidCoordinate)
	assert.False(t, called)
}

func TestNominatim_ForwardGeocode_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Riverside County, CA", r.URL.Query().Get("q"))
		_, _ = w.Write([]byte(`[{"lat":"33.7437","lon":"-115.9925","display_name":"Riverside County, California"}]`))
	}))
	defer srv.Close()

	coord, err := testClient(srv.URL).ForwardGeocode(context.Background(), "Riverside County, CA")
	require.NoError(t, err)
	assert.Equal(t, 33.7437, coord.Latitude)
	assert.Equal(t, -115.9925, coord.Longitude)
}

func TestNominatim_ForwardGeocode_EmptyResultIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).ForwardGeocode(context.Background(), "Nowhereville")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestNominatim_ForwardGeocode_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewNominatim(srv.URL, testUserAgent, 50*time.Millisecond, nil)
	_, err := c.ForwardGeocode(context.Background(), "Austin, TX")
	require.ErrorIs(t, err, ErrUnavailable)
}
