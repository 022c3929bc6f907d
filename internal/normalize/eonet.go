package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/mr1hm/go-disaster-nearby/internal/geo"
	"github.com/mr1hm/go-disaster-nearby/internal/models"
)

type eonetEvent struct {
	ID         string            `json:"id"`
	Title      string            `json:"title"`
	Categories []eonetCategory   `json:"categories"`
	Geometry   []json.RawMessage `json:"geometry"`
}

type eonetCategory struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type eonetGeometryDate struct {
	Date string `json:"date"`
}

// parseEONET reads a NASA EONET v3 event. Location and time come from geometry[0];
// polygons are reduced to their centroid.
func parseEONET(payload []byte) (models.DisasterEvent, error) {
	var ev eonetEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return models.DisasterEvent{}, fmt.Errorf("error decoding event: %w", err)
	}
	if len(ev.Geometry) == 0 {
		return models.DisasterEvent{}, errors.New("missing geometry")
	}

	var gd eonetGeometryDate
	if err := json.Unmarshal(ev.Geometry[0], &gd); err != nil {
		return models.DisasterEvent{}, fmt.Errorf("error decoding geometry: %w", err)
	}
	occurredAt, err := parseTimestamp(gd.Date)
	if err != nil {
		return models.DisasterEvent{}, err
	}

	g, err := geojson.UnmarshalGeometry(ev.Geometry[0])
	if err != nil {
		return models.DisasterEvent{}, fmt.Errorf("missing coordinate: %w", err)
	}
	coord, err := representativePoint(g.Geometry())
	if err != nil {
		return models.DisasterEvent{}, err
	}

	titles := make([]string, 0, len(ev.Categories))
	for _, c := range ev.Categories {
		titles = append(titles, c.Title)
	}

	d := models.DisasterEvent{
		Source:     string(SchemaEONET),
		Name:       ev.Title,
		Type:       strings.Join(titles, ", "),
		Coordinate: coord,
		OccurredAt: occurredAt,
	}
	if ev.ID != "" {
		d.ID = "eonet_" + ev.ID
	}
	return d, nil
}

func representativePoint(g orb.Geometry) (geo.Coordinate, error) {
	switch v := g.(type) {
	case orb.Point:
		return geo.NewCoordinate(v.Lat(), v.Lon())
	case orb.Polygon, orb.MultiPolygon:
		c, _ := planar.CentroidArea(v)
		return geo.NewCoordinate(c.Lat(), c.Lon())
	case nil:
		return geo.Coordinate{}, errors.New("missing coordinate")
	default:
		return geo.Coordinate{}, fmt.Errorf("unsupported geometry %s", g.GeoJSONType())
	}
}
