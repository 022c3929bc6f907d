package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mr1hm/go-disaster-nearby/internal/models"
	"github.com/mr1hm/go-disaster-nearby/internal/normalize"
)

const (
	apexLatestPath = "/latestRecord"
	apexListPath   = "/records"
	apexInsertPath = "/insert_disaster"
)

// APEXStore keeps the canonical log in an Oracle APEX REST module.
// Rows come back through the apex normalizer schema.
//
// The module can only list every record, so the set of stored ids is fetched
// once and reused by Exists and Append until the next Latest call. Latest is
// the first read of every sync cycle, which makes that one listing per cycle.
type APEXStore struct {
	baseURL string
	client  *http.Client

	mu  sync.Mutex
	ids map[string]struct{}
}

type apexItems struct {
	Items []json.RawMessage `json:"items"`
}

// apexInsert is the insert_disaster body. Absent values are sent as "Unknown".
type apexInsert struct {
	ID           string `json:"ID"`
	Source       string `json:"SOURCE"`
	DisasterName string `json:"DISASTER_NAME"`
	DisasterType string `json:"DISASTER_TYPE"`
	Latitude     string `json:"LATITUDE"`
	Longitude    string `json:"LONGITUDE"`
	DateTime     string `json:"DATE_TIME"`
	County       string `json:"COUNTY"`
	State        string `json:"STATE"`
	Country      string `json:"COUNTRY"`
}

func NewAPEXStore(baseURL string, timeout time.Duration) *APEXStore {
	return &APEXStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (a *APEXStore) Append(ctx context.Context, d *models.DisasterEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	ids, err := a.knownIDs(ctx)
	if err != nil {
		return err
	}
	if _, ok := ids[d.ID]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, d.ID)
	}

	body, err := json.Marshal(apexInsert{
		ID:           orUnknown(d.ID),
		Source:       orUnknown(d.Source),
		DisasterName: orUnknown(d.Name),
		DisasterType: orUnknown(d.Type),
		Latitude:     strconv.FormatFloat(d.Coordinate.Latitude, 'f', -1, 64),
		Longitude:    strconv.FormatFloat(d.Coordinate.Longitude, 'f', -1, 64),
		DateTime:     d.OccurredAt.UTC().Format(time.RFC3339Nano),
		County:       orUnknown(d.County),
		State:        orUnknown(d.State),
		Country:      orUnknown(d.Country),
	})
	if err != nil {
		return fmt.Errorf("error encoding disaster %s: %w", d.ID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, a.baseURL+apexInsertPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("error inserting disaster %s: %w", d.ID, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("error inserting disaster %s: unexpected status code: %d", d.ID, resp.StatusCode)
	}
	ids[d.ID] = struct{}{}
	return nil
}

func (a *APEXStore) Latest(ctx context.Context) (*models.DisasterEvent, error) {
	a.mu.Lock()
	a.ids = nil
	a.mu.Unlock()

	items, err := a.fetch(ctx, apexLatestPath)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}

	d, err := normalize.Normalize(normalize.RawRecord{Schema: normalize.SchemaAPEX, Payload: items[0]})
	if err != nil {
		return nil, fmt.Errorf("error reading latest disaster: %w", err)
	}
	return &d, nil
}

func (a *APEXStore) GetByID(ctx context.Context, id string) (*models.DisasterEvent, error) {
	all, err := a.all(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == id {
			return &all[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (a *APEXStore) Exists(ctx context.Context, id string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ids, err := a.knownIDs(ctx)
	if err != nil {
		return false, err
	}
	_, ok := ids[id]
	return ok, nil
}

// knownIDs returns the id snapshot, listing the store if there is none. Callers hold a.mu.
func (a *APEXStore) knownIDs(ctx context.Context) (map[string]struct{}, error) {
	if a.ids != nil {
		return a.ids, nil
	}
	all, err := a.all(ctx)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]struct{}, len(all))
	for _, d := range all {
		ids[d.ID] = struct{}{}
	}
	a.ids = ids
	return ids, nil
}

// ListDisasters filters client side; the REST module only exposes the full record set.
func (a *APEXStore) ListDisasters(ctx context.Context, opts Filter) ([]models.DisasterEvent, error) {
	all, err := a.all(ctx)
	if err != nil {
		return nil, err
	}

	var out []models.DisasterEvent
	for _, d := range all {
		if opts.Since != nil && d.OccurredAt.Before(*opts.Since) {
			continue
		}
		if opts.Source != "" && d.Source != opts.Source {
			continue
		}
		if opts.Type != "" && d.Type != opts.Type {
			continue
		}
		out = append(out, d)
	}
	sortNewestFirst(out)

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (a *APEXStore) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

func (a *APEXStore) all(ctx context.Context) ([]models.DisasterEvent, error) {
	items, err := a.fetch(ctx, apexListPath)
	if err != nil {
		return nil, err
	}

	out := make([]models.DisasterEvent, 0, len(items))
	for _, item := range items {
		d, err := normalize.Normalize(normalize.RawRecord{Schema: normalize.SchemaAPEX, Payload: item})
		if err != nil {
			slog.Warn("skipping unreadable APEX record", "error", err)
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (a *APEXStore) fetch(ctx context.Context, path string) ([]json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d - status: %s", resp.StatusCode, resp.Status)
	}

	var data apexItems
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("error decoding resp.Body: %w", err)
	}
	return data.Items, nil
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}

func sortNewestFirst(events []models.DisasterEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].OccurredAt.After(events[j].OccurredAt)
	})
}
