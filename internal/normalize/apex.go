package normalize

import (
	"encoding/json"
	"fmt"

	"github.com/mr1hm/go-disaster-nearby/internal/models"
)

// APEXRecord is a canonical-store row as returned by the Oracle APEX REST module.
// Coordinates are strings; "Unknown" stands for an absent value.
type APEXRecord struct {
	ID           string `json:"id,omitempty"`
	Source       string `json:"source,omitempty"`
	DisasterName string `json:"disaster_name"`
	DisasterType string `json:"disaster_type"`
	Latitude     string `json:"latitude"`
	Longitude    string `json:"longitude"`
	DateTime     string `json:"date_time"`
	County       string `json:"county"`
	State        string `json:"state"`
	Country      string `json:"country"`
}

func parseAPEX(payload []byte) (models.DisasterEvent, error) {
	var r APEXRecord
	if err := json.Unmarshal(payload, &r); err != nil {
		return models.DisasterEvent{}, fmt.Errorf("error decoding record: %w", err)
	}

	occurredAt, err := parseTimestamp(r.DateTime)
	if err != nil {
		return models.DisasterEvent{}, err
	}
	coord, err := parseCoordinate(r.Latitude, r.Longitude)
	if err != nil {
		return models.DisasterEvent{}, err
	}

	return models.DisasterEvent{
		ID:         unknownAsEmpty(r.ID),
		Source:     unknownAsEmpty(r.Source),
		Name:       unknownAsEmpty(r.DisasterName),
		Type:       unknownAsEmpty(r.DisasterType),
		Coordinate: coord,
		OccurredAt: occurredAt,
		County:     unknownAsEmpty(r.County),
		State:      unknownAsEmpty(r.State),
		Country:    unknownAsEmpty(r.Country),
	}, nil
}
