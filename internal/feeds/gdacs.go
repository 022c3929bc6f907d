package feeds

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mr1hm/go-disaster-nearby/internal/normalize"
)

const DefaultGDACSURL = "https://www.gdacs.org/xml/rss.xml"

// GDACS reads the Global Disaster Alert and Coordination System RSS feed.
type GDACS struct {
	url    string
	client *http.Client
}

func NewGDACS(url string, timeout time.Duration) *GDACS {
	return &GDACS{
		url:    url,
		client: newHTTPClient(timeout),
	}
}

func (g *GDACS) Name() string { return string(normalize.SchemaGDACS) }

func (g *GDACS) Fetch(ctx context.Context, limit int) ([]normalize.RawRecord, error) {
	body, err := get(ctx, g.client, g.url)
	if err != nil {
		return nil, err
	}

	records, err := decodeGDACSItems(body, limit)
	if err != nil {
		return nil, fmt.Errorf("error decoding resp.Body: %w", err)
	}
	return records, nil
}

// decodeGDACSItems streams <item> elements out of the RSS document and re-encodes
// each one as JSON for the gdacs schema.
func decodeGDACSItems(body []byte, limit int) ([]normalize.RawRecord, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))

	var records []normalize.RawRecord
	for limit <= 0 || len(records) < limit {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "item" {
			continue
		}

		var item normalize.GDACSItem
		if err := dec.DecodeElement(&item, &start); err != nil {
			return nil, err
		}
		payload, err := json.Marshal(item)
		if err != nil {
			slog.Warn("GDACS item re-encoding failed", "id", item.EventID, "error", err)
			continue
		}
		records = append(records, normalize.RawRecord{Schema: normalize.SchemaGDACS, Payload: payload})
	}

	return records, nil
}
