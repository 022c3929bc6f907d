package places

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mr1hm/go-disaster-nearby/internal/geo"
	"github.com/mr1hm/go-disaster-nearby/internal/models"
	"github.com/mr1hm/go-disaster-nearby/internal/observability"
)

const DefaultGeoapifyURL = "https://api.geoapify.com"

// categoryFilters maps facility categories to Geoapify category strings.
var categoryFilters = map[models.Category]string{
	models.CategoryMedical: "healthcare.clinic_or_praxis.general,healthcare.hospital",
	models.CategoryShelter: "service.social_facility.shelter",
	models.CategoryFood:    "service.social_facility.food",
	models.CategoryTransit: "public_transport",
	models.CategoryLodging: "accommodation",
}

// Geoapify implements Provider using the Geoapify Places API.
type Geoapify struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	metrics    *observability.Metrics
}

func NewGeoapify(baseURL, apiKey string, timeout time.Duration, metrics *observability.Metrics) *Geoapify {
	return &Geoapify{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		metrics: metrics,
	}
}

// Search returns at most limit facilities of category within radius meters of center,
// biased toward center. An empty result is not an error.
func (g *Geoapify) Search(ctx context.Context, category models.Category, center geo.Coordinate, radius float64, limit int) ([]models.Facility, error) {
	filter, ok := categoryFilters[category]
	if !ok {
		return nil, fmt.Errorf("unknown facility category: %q", category)
	}

	lon := strconv.FormatFloat(center.Longitude, 'f', -1, 64)
	lat := strconv.FormatFloat(center.Latitude, 'f', -1, 64)
	params := url.Values{
		"categories": {filter},
		"filter":     {fmt.Sprintf("circle:%s,%s,%s", lon, lat, strconv.FormatFloat(radius, 'f', 0, 64))},
		"bias":       {fmt.Sprintf("proximity:%s,%s", lon, lat)},
		"limit":      {strconv.Itoa(limit)},
		"apiKey":     {g.apiKey},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/v2/places?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	start := time.Now()
	resp, err := g.httpClient.Do(req)
	if g.metrics != nil {
		g.metrics.PlacesAPIDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: error reading resp.Body: %v", ErrProvider, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d: %s", ErrProvider, resp.StatusCode, truncate(body, 512))
	}

	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return nil, fmt.Errorf("%w: error decoding feature collection: %v", ErrProvider, err)
	}

	facilities := make([]models.Facility, 0, len(fc.Features))
	for _, f := range fc.Features {
		pt, ok := f.Geometry.(orb.Point)
		if !ok {
			continue
		}
		coord, err := geo.NewCoordinate(pt.Lat(), pt.Lon())
		if err != nil {
			continue
		}
		facilities = append(facilities, models.Facility{
			Category:   category,
			Name:       f.Properties.MustString("name", ""),
			Coordinate: coord,
			Address:    f.Properties.MustString("address_line2", ""),
			ProviderID: f.Properties.MustString("place_id", ""),
		})
	}

	return facilities, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
