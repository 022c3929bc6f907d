package normalize

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mr1hm/go-disaster-nearby/internal/geo"
	"github.com/mr1hm/go-disaster-nearby/internal/models"
)

// Occurrence times outside these years are placeholders or parse accidents, not events.
const (
	minEventYear = 1900
	maxEventYear = 2200
)

// ErrRejected marks a record that cannot become a canonical event. It is never pipeline-fatal.
var ErrRejected = errors.New("record rejected")

// Schema identifies the shape of an upstream record.
type Schema string

const (
	SchemaEONET Schema = "eonet"
	SchemaAPEX  Schema = "apex"
	SchemaUSGS  Schema = "usgs"
	SchemaGDACS Schema = "gdacs"
)

// RawRecord is one upstream record tagged with the schema that must parse it.
type RawRecord struct {
	Schema  Schema
	Payload []byte
}

type parseFunc func(payload []byte) (models.DisasterEvent, error)

var parsers = map[Schema]parseFunc{
	SchemaEONET: parseEONET,
	SchemaAPEX:  parseAPEX,
	SchemaUSGS:  parseUSGS,
	SchemaGDACS: parseGDACS,
}

// Normalize converts raw into the canonical event shape using the parser for raw.Schema.
// Every failure wraps ErrRejected.
func Normalize(raw RawRecord) (models.DisasterEvent, error) {
	parse, ok := parsers[raw.Schema]
	if !ok {
		return models.DisasterEvent{}, fmt.Errorf("%w: unknown schema %q", ErrRejected, raw.Schema)
	}

	event, err := parse(raw.Payload)
	if err != nil {
		if !errors.Is(err, ErrRejected) {
			err = fmt.Errorf("%w: %s: %v", ErrRejected, raw.Schema, err)
		}
		return models.DisasterEvent{}, err
	}

	if event.OccurredAt.IsZero() {
		return models.DisasterEvent{}, reject(raw.Schema, "missing timestamp")
	}
	if y := event.OccurredAt.UTC().Year(); y < minEventYear || y > maxEventYear {
		return models.DisasterEvent{}, reject(raw.Schema, fmt.Sprintf("timestamp %s out of range", event.OccurredAt.UTC().Format(time.RFC3339)))
	}
	if err := event.Coordinate.Validate(); err != nil {
		return models.DisasterEvent{}, reject(raw.Schema, err.Error())
	}

	event.OccurredAt = event.OccurredAt.UTC()
	if event.Source == "" {
		event.Source = string(raw.Schema)
	}
	if event.ID == "" {
		event.ID = GenerateID(event)
	}
	event.Raw = raw.Payload
	return event, nil
}

func reject(schema Schema, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrRejected, schema, reason)
}

var idNamespace = uuid.MustParse("6f1c8f0e-4d5a-4a39-9a8e-2f7c6b0d1e52")

// GenerateID derives a stable v5 uuid from the fields that identify an event,
// so the same record read twice gets the same id.
func GenerateID(e models.DisasterEvent) string {
	key := strings.Join([]string{
		e.Source,
		e.Name,
		e.Type,
		e.OccurredAt.UTC().Format(time.RFC3339Nano),
		e.Coordinate.String(),
	}, "|")
	return uuid.NewSHA1(idNamespace, []byte(key)).String()
}

// unknownAsEmpty maps the store's "Unknown" placeholder to an absent value.
func unknownAsEmpty(s string) string {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "unknown") {
		return ""
	}
	return s
}

func parseCoordinate(lat, lon string) (geo.Coordinate, error) {
	lat, lon = unknownAsEmpty(lat), unknownAsEmpty(lon)
	if lat == "" || lon == "" {
		return geo.Coordinate{}, errors.New("missing coordinate")
	}
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("bad latitude %q", lat)
	}
	lo, err := strconv.ParseFloat(lon, 64)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("bad longitude %q", lon)
	}
	return geo.NewCoordinate(la, lo)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC1123,
	time.RFC1123Z,
}

func parseTimestamp(s string) (time.Time, error) {
	s = unknownAsEmpty(s)
	if s == "" {
		return time.Time{}, errors.New("missing timestamp")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}
