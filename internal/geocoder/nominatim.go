package geocoder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mr1hm/go-disaster-nearby/internal/geo"
	"github.com/mr1hm/go-disaster-nearby/internal/observability"
)

const DefaultNominatimURL = "https://nominatim.openstreetmap.org"

// Nominatim implements Geocoder against the OpenStreetMap Nominatim API.
type Nominatim struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	metrics    *observability.Metrics
}

func NewNominatim(baseURL, userAgent string, timeout time.Duration, metrics *observability.Metrics) *Nominatim {
	return &Nominatim{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		metrics: metrics,
	}
}

type reverseResponse struct {
	Address *nominatimAddress `json:"address"`
	Error   string            `json:"error"`
}

type nominatimAddress struct {
	County  string `json:"county"`
	City    string `json:"city"`
	Town    string `json:"town"`
	Village string `json:"village"`
	State   string `json:"state"`
	Country string `json:"country"`
}

type searchResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

func (n *Nominatim) ReverseGeocode(ctx context.Context, c geo.Coordinate) (Region, error) {
	if err := c.Validate(); err != nil {
		return Region{}, err
	}

	params := url.Values{
		"lat":    {strconv.FormatFloat(c.Latitude, 'f', -1, 64)},
		"lon":    {strconv.FormatFloat(c.Longitude, 'f', -1, 64)},
		"format": {"json"},
	}

	var data reverseResponse
	if err := n.get(ctx, "/reverse?"+params.Encode(), &data); err != nil {
		n.record("reverse", "error")
		return Region{}, err
	}

	if data.Error != "" || data.Address == nil {
		n.record("reverse", "not_found")
		return Region{}, fmt.Errorf("%w: %s", ErrNotFound, c)
	}

	a := data.Address
	city := a.City
	if city == "" {
		city = a.Town
	}
	if city == "" {
		city = a.Village
	}

	region := Region{
		County:  a.County,
		City:    city,
		State:   a.State,
		Country: a.Country,
	}
	if region.Empty() {
		n.record("reverse", "not_found")
		return Region{}, fmt.Errorf("%w: %s", ErrNotFound, c)
	}

	n.record("reverse", "success")
	return region, nil
}

func (n *Nominatim) ForwardGeocode(ctx context.Context, place string) (geo.Coordinate, error) {
	place = strings.TrimSpace(place)
	if place == "" {
		return geo.Coordinate{}, fmt.Errorf("%w: empty place text", ErrNotFound)
	}

	params := url.Values{
		"q":      {place},
		"format": {"json"},
		"limit":  {"1"},
	}

	var results []searchResult
	if err := n.get(ctx, "/search?"+params.Encode(), &results); err != nil {
		n.record("forward", "error")
		return geo.Coordinate{}, err
	}

	if len(results) == 0 {
		n.record("forward", "not_found")
		return geo.Coordinate{}, fmt.Errorf("%w: %q", ErrNotFound, place)
	}

	lat, latErr := strconv.ParseFloat(results[0].Lat, 64)
	lon, lonErr := strconv.ParseFloat(results[0].Lon, 64)
	if latErr != nil || lonErr != nil {
		n.record("forward", "error")
		return geo.Coordinate{}, fmt.Errorf("%w: malformed coordinates for %q", ErrUnavailable, place)
	}

	coord, err := geo.NewCoordinate(lat, lon)
	if err != nil {
		n.record("forward", "error")
		return geo.Coordinate{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	n.record("forward", "success")
	return coord, nil
}

func (n *Nominatim) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: error decoding resp.Body: %v", ErrUnavailable, err)
	}
	return nil
}

func (n *Nominatim) record(method, outcome string) {
	if n.metrics != nil {
		n.metrics.GeocodeRequests.WithLabelValues(method, outcome).Inc()
	}
}
