package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mr1hm/go-disaster-nearby/internal/geo"
	"github.com/mr1hm/go-disaster-nearby/internal/models"
)

type usgsFeature struct {
	ID         string         `json:"id"`
	Properties usgsProperties `json:"properties"`
	Geometry   usgsGeometry   `json:"geometry"`
}
type usgsProperties struct {
	Mag   float64 `json:"mag"`
	Place string  `json:"place"`
	Time  int64   `json:"time"` // unix ms
	Title string  `json:"title"`
}
type usgsGeometry struct {
	Coordinates []float64 `json:"coordinates"` // [lon, lat, depth]
}

// parseUSGS reads one feature of a USGS earthquake GeoJSON summary feed.
func parseUSGS(payload []byte) (models.DisasterEvent, error) {
	var f usgsFeature
	if err := json.Unmarshal(payload, &f); err != nil {
		return models.DisasterEvent{}, fmt.Errorf("error decoding feature: %w", err)
	}
	if f.Properties.Time == 0 {
		return models.DisasterEvent{}, errors.New("missing timestamp")
	}
	if len(f.Geometry.Coordinates) < 2 {
		return models.DisasterEvent{}, errors.New("missing coordinate")
	}

	coord, err := geo.NewCoordinate(f.Geometry.Coordinates[1], f.Geometry.Coordinates[0])
	if err != nil {
		return models.DisasterEvent{}, err
	}

	d := models.DisasterEvent{
		Source:     string(SchemaUSGS),
		Name:       f.Properties.Title,
		Type:       "Earthquake",
		Coordinate: coord,
		OccurredAt: time.UnixMilli(f.Properties.Time),
	}
	if f.ID != "" {
		d.ID = "usgs_" + f.ID
	}
	return d, nil
}
