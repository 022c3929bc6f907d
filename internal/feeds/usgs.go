package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mr1hm/go-disaster-nearby/internal/normalize"
)

const DefaultUSGSURL = "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/significant_week.geojson"

type usgsResponse struct {
	Features []json.RawMessage `json:"features"`
}

// USGS reads a USGS earthquake GeoJSON summary feed. Features arrive newest first.
type USGS struct {
	url    string
	client *http.Client
}

func NewUSGS(url string, timeout time.Duration) *USGS {
	return &USGS{
		url:    url,
		client: newHTTPClient(timeout),
	}
}

func (u *USGS) Name() string { return string(normalize.SchemaUSGS) }

func (u *USGS) Fetch(ctx context.Context, limit int) ([]normalize.RawRecord, error) {
	body, err := get(ctx, u.client, u.url)
	if err != nil {
		return nil, err
	}

	var data usgsResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("error decoding resp.Body: %w", err)
	}

	features := data.Features
	if limit > 0 && len(features) > limit {
		features = features[:limit]
	}
	return tag(normalize.SchemaUSGS, features), nil
}
