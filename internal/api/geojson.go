package api

import (
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mr1hm/go-disaster-nearby/internal/events"
	"github.com/mr1hm/go-disaster-nearby/internal/geo"
	"github.com/mr1hm/go-disaster-nearby/internal/models"
	"github.com/mr1hm/go-disaster-nearby/internal/pipeline"
)

func point(c geo.Coordinate) orb.Point {
	return orb.Point{c.Longitude, c.Latitude}
}

func facilitiesToGeoJSON(facilities []models.Facility) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, f := range facilities {
		feat := geojson.NewFeature(point(f.Coordinate))
		feat.ID = f.ProviderID
		feat.Properties["category"] = string(f.Category)
		feat.Properties["name"] = f.Name
		feat.Properties["address"] = f.Address
		fc.Append(feat)
	}
	return fc
}

// nearbyToGeoJSON adds a top-level "center" member when the query was resolved from a place name.
func nearbyToGeoJSON(nearby []events.Nearby, center *geo.Coordinate) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, n := range nearby {
		feat := geojson.NewFeature(point(n.Coordinate))
		feat.ID = n.ID
		for k, v := range disasterProperties(n.DisasterEvent) {
			feat.Properties[k] = v
		}
		feat.Properties["distance_km"] = n.DistanceKm
		fc.Append(feat)
	}
	if center != nil {
		fc.ExtraMembers = geojson.Properties{
			"center": disasterCenter{Latitude: center.Latitude, Longitude: center.Longitude},
		}
	}
	return fc
}

func disasterProperties(d models.DisasterEvent) geojson.Properties {
	return geojson.Properties{
		"id":          d.ID,
		"source":      d.Source,
		"name":        d.Name,
		"type":        d.Type,
		"occurred_at": d.OccurredAt.UTC().Format(time.RFC3339),
		"county":      d.County,
		"state":       d.State,
		"country":     d.Country,
	}
}

type disasterCenter struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type disasterJSON struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	OccurredAt time.Time `json:"occurred_at"`
	County     string    `json:"county,omitempty"`
	State      string    `json:"state,omitempty"`
	Country    string    `json:"country,omitempty"`
}

func toDisasterJSON(d models.DisasterEvent) disasterJSON {
	return disasterJSON{
		ID:         d.ID,
		Source:     d.Source,
		Name:       d.Name,
		Type:       d.Type,
		Latitude:   d.Coordinate.Latitude,
		Longitude:  d.Coordinate.Longitude,
		OccurredAt: d.OccurredAt.UTC(),
		County:     d.County,
		State:      d.State,
		Country:    d.Country,
	}
}

type resultJSON struct {
	Fetched     int        `json:"fetched"`
	Rejected    int        `json:"rejected"`
	Stale       int        `json:"stale"`
	Duplicates  int        `json:"duplicates"`
	Committed   int        `json:"committed"`
	Cursor      *time.Time `json:"cursor,omitempty"`
	NoNewEvents bool       `json:"no_new_events"`
}

func toResultJSON(r pipeline.Result) resultJSON {
	out := resultJSON{
		Fetched:     r.Fetched,
		Rejected:    r.Rejected,
		Stale:       r.Stale,
		Duplicates:  r.Duplicates,
		Committed:   r.Committed,
		NoNewEvents: r.NoNewEvents,
	}
	if !r.Cursor.IsZero() {
		cursor := r.Cursor.UTC()
		out.Cursor = &cursor
	}
	return out
}
