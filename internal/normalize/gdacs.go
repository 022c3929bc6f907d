package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mr1hm/go-disaster-nearby/internal/geo"
	"github.com/mr1hm/go-disaster-nearby/internal/models"
)

// GDACSItem is one <item> of the GDACS RSS feed. The feed client decodes it from XML
// and hands it over as JSON so every schema travels as bytes.
// Elements are matched by local name; the feed's geo: and gdacs: prefixes vary between mirrors.
type GDACSItem struct {
	Title      string      `xml:"title" json:"title"`
	Link       string      `xml:"link" json:"link"`
	PubDate    string      `xml:"pubDate" json:"pub_date"`
	Point      *GDACSPoint `xml:"Point" json:"point,omitempty"`
	EventType  string      `xml:"eventtype" json:"event_type"`
	AlertLevel string      `xml:"alertlevel" json:"alert_level"`
	EventID    string      `xml:"eventid" json:"event_id"`
	Country    string      `xml:"country" json:"country"`
}

type GDACSPoint struct {
	Lat  float64 `xml:"lat" json:"lat"`
	Long float64 `xml:"long" json:"long"`
}

func parseGDACS(payload []byte) (models.DisasterEvent, error) {
	var item GDACSItem
	if err := json.Unmarshal(payload, &item); err != nil {
		return models.DisasterEvent{}, fmt.Errorf("error decoding item: %w", err)
	}

	occurredAt, err := parseTimestamp(item.PubDate)
	if err != nil {
		return models.DisasterEvent{}, err
	}
	if item.Point == nil {
		return models.DisasterEvent{}, errors.New("missing coordinate")
	}
	coord, err := geo.NewCoordinate(item.Point.Lat, item.Point.Long)
	if err != nil {
		return models.DisasterEvent{}, err
	}

	d := models.DisasterEvent{
		Source:     string(SchemaGDACS),
		Name:       item.Title,
		Type:       gdacsEventType(item.EventType),
		Coordinate: coord,
		OccurredAt: occurredAt,
		Country:    item.Country,
	}
	if item.EventID != "" {
		d.ID = "gdacs_" + strings.ToUpper(item.EventType) + "_" + item.EventID
	}
	return d, nil
}

func gdacsEventType(eventType string) string {
	switch strings.ToUpper(eventType) {
	case "EQ":
		return "Earthquake"
	case "TC":
		return "Tropical Cyclone"
	case "FL":
		return "Flood"
	case "VO":
		return "Volcano"
	case "TS":
		return "Tsunami"
	case "WF":
		return "Wildfire"
	case "DR":
		return "Drought"
	default:
		return "Unknown"
	}
}
