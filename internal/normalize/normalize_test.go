package normalize

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eonetPointEvent = `{
  "id": "EONET_6543",
  "title": "Line Fire, California",
  "categories": [{"id": "wildfires", "title": "Wildfires"}, {"id": "severeStorms", "title": "Severe Storms"}],
  "geometry": [
    {"magnitudeValue": null, "date": "2024-09-05T16:30:00Z", "type": "Point", "coordinates": [-117.1, 34.2]},
    {"magnitudeValue": null, "date": "2024-09-07T00:00:00Z", "type": "Point", "coordinates": [-117.0, 34.3]}
  ]
}`

func TestNormalize_EONETPoint(t *testing.T) {
	got, err := Normalize(RawRecord{Schema: SchemaEONET, Payload: []byte(eonetPointEvent)})
	require.NoError(t, err)

	assert.Equal(t, "eonet_EONET_6543", got.ID)
	assert.Equal(t, "eonet", got.Source)
	assert.Equal(t, "Line Fire, California", got.Name)
	assert.Equal(t, "Wildfires, Severe Storms", got.Type)
	assert.Equal(t, 34.2, got.Coordinate.Latitude)
	assert.Equal(t, -117.1, got.Coordinate.Longitude)
	assert.Equal(t, time.Date(2024, 9, 5, 16, 30, 0, 0, time.UTC), got.OccurredAt)
	assert.Equal(t, []byte(eonetPointEvent), got.Raw)
}

func TestNormalize_EONETPolygonUsesCentroid(t *testing.T) {
	payload := `{
	  "id": "EONET_1",
	  "title": "Iceberg A23A",
	  "categories": [{"title": "Sea and Lake Ice"}],
	  "geometry": [{"date": "2024-01-01T00:00:00Z", "type": "Polygon", "coordinates": [[[10, 10], [12, 10], [12, 12], [10, 12], [10, 10]]]}]
	}`

	got, err := Normalize(RawRecord{Schema: SchemaEONET, Payload: []byte(payload)})
	require.NoError(t, err)
	assert.InDelta(t, 11.0, got.Coordinate.Latitude, 1e-9)
	assert.InDelta(t, 11.0, got.Coordinate.Longitude, 1e-9)
}

func TestNormalize_Rejections(t *testing.T) {
	tests := []struct {
		name string
		raw  RawRecord
	}{
		{"eonet missing date", RawRecord{SchemaEONET, []byte(`{"id":"E1","title":"x","geometry":[{"type":"Point","coordinates":[1,2]}]}`)}},
		{"eonet bad date", RawRecord{SchemaEONET, []byte(`{"id":"E1","title":"x","geometry":[{"date":"yesterday","type":"Point","coordinates":[1,2]}]}`)}},
		{"eonet no geometry", RawRecord{SchemaEONET, []byte(`{"id":"E1","title":"x","geometry":[]}`)}},
		{"eonet out of range", RawRecord{SchemaEONET, []byte(`{"id":"E1","geometry":[{"date":"2024-01-01T00:00:00Z","type":"Point","coordinates":[200,95]}]}`)}},
		{"apex missing date_time", RawRecord{SchemaAPEX, []byte(`{"disaster_name":"x","latitude":"34","longitude":"-118"}`)}},
		{"apex unknown date_time", RawRecord{SchemaAPEX, []byte(`{"latitude":"34","longitude":"-118","date_time":"Unknown"}`)}},
		{"apex unknown coordinate", RawRecord{SchemaAPEX, []byte(`{"latitude":"Unknown","longitude":"-118","date_time":"2024-01-01T00:00:00Z"}`)}},
		{"usgs missing time", RawRecord{SchemaUSGS, []byte(`{"id":"us1","properties":{"title":"M 4.5"},"geometry":{"coordinates":[-118,34,10]}}`)}},
		{"usgs missing coordinates", RawRecord{SchemaUSGS, []byte(`{"id":"us1","properties":{"time":1700000000000},"geometry":{"coordinates":[]}}`)}},
		{"gdacs missing point", RawRecord{SchemaGDACS, []byte(`{"title":"x","pub_date":"Mon, 06 Jan 2025 10:00:00 GMT"}`)}},
		{"eonet placeholder year", RawRecord{SchemaEONET, []byte(`{"id":"E1","title":"x","geometry":[{"date":"0001-01-01T00:00:01Z","type":"Point","coordinates":[1,2]}]}`)}},
		{"apex far future", RawRecord{SchemaAPEX, []byte(`{"latitude":"34","longitude":"-118","date_time":"2999-01-01T00:00:00Z"}`)}},
		{"malformed json", RawRecord{SchemaAPEX, []byte(`{not json`)}},
		{"unknown schema", RawRecord{Schema("fema"), []byte(`{}`)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrRejected), "expected ErrRejected, got %v", err)
		})
	}
}

func TestNormalize_APEXRecord(t *testing.T) {
	payload := `{"disaster_name":"Flash Flood","disaster_type":"Floods","latitude":"29.76","longitude":"-95.37","date_time":"2024-06-01T12:00:00.000Z","county":"Harris County","state":"Texas","country":"Unknown"}`

	got, err := Normalize(RawRecord{Schema: SchemaAPEX, Payload: []byte(payload)})
	require.NoError(t, err)

	assert.Equal(t, "apex", got.Source)
	assert.Equal(t, "Flash Flood", got.Name)
	assert.Equal(t, "Floods", got.Type)
	assert.Equal(t, 29.76, got.Coordinate.Latitude)
	assert.Equal(t, -95.37, got.Coordinate.Longitude)
	assert.Equal(t, "Harris County", got.County)
	assert.Equal(t, "Texas", got.State)
	assert.Empty(t, got.Country)
	assert.Equal(t, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC), got.OccurredAt)
	assert.NotEmpty(t, got.ID, "id-less records get a generated id")
}

func TestNormalize_APEXCarriesIDAndSource(t *testing.T) {
	payload := `{"id":"eonet_EONET_9","source":"eonet","disaster_name":"x","latitude":"1","longitude":"2","date_time":"2024-06-01T12:00:00Z"}`

	got, err := Normalize(RawRecord{Schema: SchemaAPEX, Payload: []byte(payload)})
	require.NoError(t, err)
	assert.Equal(t, "eonet_EONET_9", got.ID)
	assert.Equal(t, "eonet", got.Source)
}

func TestNormalize_GeneratedIDIsStable(t *testing.T) {
	payload := []byte(`{"disaster_name":"Quake","disaster_type":"Earthquakes","latitude":"35","longitude":"139","date_time":"2024-06-01T12:00:00Z"}`)

	a, err := Normalize(RawRecord{Schema: SchemaAPEX, Payload: payload})
	require.NoError(t, err)
	b, err := Normalize(RawRecord{Schema: SchemaAPEX, Payload: payload})
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)

	other, err := Normalize(RawRecord{Schema: SchemaAPEX, Payload: []byte(`{"disaster_name":"Quake","disaster_type":"Earthquakes","latitude":"35","longitude":"139","date_time":"2024-06-01T12:00:01Z"}`)})
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, other.ID)
}

func TestNormalize_USGSFeature(t *testing.T) {
	payload := `{"id":"ci40000001","properties":{"mag":4.2,"place":"10km N of Ridgecrest, CA","time":1717243200000,"title":"M 4.2 - 10km N of Ridgecrest, CA"},"geometry":{"coordinates":[-117.67,35.71,8.2]}}`

	got, err := Normalize(RawRecord{Schema: SchemaUSGS, Payload: []byte(payload)})
	require.NoError(t, err)

	assert.Equal(t, "usgs_ci40000001", got.ID)
	assert.Equal(t, "Earthquake", got.Type)
	assert.Equal(t, 35.71, got.Coordinate.Latitude)
	assert.Equal(t, -117.67, got.Coordinate.Longitude)
	assert.Equal(t, time.UnixMilli(1717243200000).UTC(), got.OccurredAt)
}

func TestNormalize_GDACSItem(t *testing.T) {
	payload := `{"title":"Green flood alert in Brazil","pub_date":"Mon, 06 Jan 2025 10:00:00 GMT","point":{"lat":-23.5,"long":-46.6},"event_type":"FL","event_id":"1102983","country":"Brazil"}`

	got, err := Normalize(RawRecord{Schema: SchemaGDACS, Payload: []byte(payload)})
	require.NoError(t, err)

	assert.Equal(t, "gdacs_FL_1102983", got.ID)
	assert.Equal(t, "Flood", got.Type)
	assert.Equal(t, "Brazil", got.Country)
	assert.Equal(t, -23.5, got.Coordinate.Latitude)
	assert.Equal(t, time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC), got.OccurredAt)
}

func TestGDACSEventType(t *testing.T) {
	assert.Equal(t, "Tropical Cyclone", gdacsEventType("tc"))
	assert.Equal(t, "Drought", gdacsEventType("DR"))
	assert.Equal(t, "Unknown", gdacsEventType("ZZ"))
}
