package feeds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mr1hm/go-disaster-nearby/internal/normalize"
)

const DefaultEONETURL = "https://eonet.gsfc.nasa.gov/api/v3/events"

type eonetResponse struct {
	Events []json.RawMessage `json:"events"`
}

// EONET reads open natural events from NASA's Earth Observatory Natural Event Tracker.
type EONET struct {
	url    string
	client *http.Client
}

func NewEONET(url string, timeout time.Duration) *EONET {
	return &EONET{
		url:    url,
		client: newHTTPClient(timeout),
	}
}

func (e *EONET) Name() string { return string(normalize.SchemaEONET) }

func (e *EONET) Fetch(ctx context.Context, limit int) ([]normalize.RawRecord, error) {
	u, err := url.Parse(e.url)
	if err != nil {
		return nil, fmt.Errorf("error parsing EONET url: %w", err)
	}
	if limit > 0 {
		q := u.Query()
		q.Set("limit", strconv.Itoa(limit))
		u.RawQuery = q.Encode()
	}

	body, err := get(ctx, e.client, u.String())
	if err != nil {
		return nil, err
	}

	var data eonetResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("error decoding resp.Body: %w", err)
	}
	if data.Events == nil {
		return nil, errors.New("EONET response has no events field")
	}

	return tag(normalize.SchemaEONET, data.Events), nil
}

func tag(schema normalize.Schema, payloads []json.RawMessage) []normalize.RawRecord {
	records := make([]normalize.RawRecord, 0, len(payloads))
	for _, p := range payloads {
		records = append(records, normalize.RawRecord{Schema: schema, Payload: p})
	}
	return records
}
