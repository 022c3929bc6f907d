package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mr1hm/go-disaster-nearby/internal/feeds"
	"github.com/mr1hm/go-disaster-nearby/internal/geo"
	"github.com/mr1hm/go-disaster-nearby/internal/geocoder"
	"github.com/mr1hm/go-disaster-nearby/internal/models"
	"github.com/mr1hm/go-disaster-nearby/internal/normalize"
	"github.com/mr1hm/go-disaster-nearby/internal/observability"
	"github.com/mr1hm/go-disaster-nearby/internal/repository"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var T = time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC)

type fakeFeed struct {
	name    string
	records []normalize.RawRecord
	err     error
}

func (f *fakeFeed) Name() string { return f.name }

func (f *fakeFeed) Fetch(ctx context.Context, limit int) ([]normalize.RawRecord, error) {
	return f.records, f.err
}

// memStore is an in-memory DisasterRepository that can fail on a given id.
type memStore struct {
	mu      sync.Mutex
	events  map[string]models.DisasterEvent
	order   []string
	failOn  string
	latestE error
}

func newMemStore(seed ...models.DisasterEvent) *memStore {
	s := &memStore{events: map[string]models.DisasterEvent{}}
	for _, e := range seed {
		s.events[e.ID] = e
		s.order = append(s.order, e.ID)
	}
	return s
}

func (s *memStore) Append(ctx context.Context, d *models.DisasterEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == s.failOn {
		return errors.New("disk full")
	}
	if _, ok := s.events[d.ID]; ok {
		return repository.ErrAlreadyExists
	}
	s.events[d.ID] = *d
	s.order = append(s.order, d.ID)
	return nil
}

func (s *memStore) Latest(ctx context.Context) (*models.DisasterEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latestE != nil {
		return nil, s.latestE
	}
	var latest *models.DisasterEvent
	for _, e := range s.events {
		if latest == nil || e.OccurredAt.After(latest.OccurredAt) {
			e := e
			latest = &e
		}
	}
	return latest, nil
}

func (s *memStore) GetByID(ctx context.Context, id string) (*models.DisasterEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &e, nil
}

func (s *memStore) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.events[id]
	return ok, nil
}

func (s *memStore) ListDisasters(ctx context.Context, opts repository.Filter) ([]models.DisasterEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.DisasterEvent, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
	return out, nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

type fakeGeocoder struct {
	calls  atomic.Int64
	region geocoder.Region
	err    error
}

func (g *fakeGeocoder) ReverseGeocode(ctx context.Context, c geo.Coordinate) (geocoder.Region, error) {
	g.calls.Add(1)
	return g.region, g.err
}

func (g *fakeGeocoder) ForwardGeocode(ctx context.Context, place string) (geo.Coordinate, error) {
	return geo.Coordinate{}, geocoder.ErrNotFound
}

func eonet(id string, at time.Time) normalize.RawRecord {
	payload := fmt.Sprintf(`{"id":%q,"title":"Event %s","categories":[{"id":"floods","title":"Floods"}],
		"geometry":[{"date":%q,"type":"Point","coordinates":[-118.3,34.0]}]}`, id, id, at.Format(time.RFC3339))
	return normalize.RawRecord{Schema: normalize.SchemaEONET, Payload: []byte(payload)}
}

func stored(id string, at time.Time) models.DisasterEvent {
	return models.DisasterEvent{ID: id, Source: "eonet", Name: id, Type: "Floods", OccurredAt: at,
		Coordinate: geo.Coordinate{Latitude: 34, Longitude: -118.3}}
}

func testConfig() Config {
	return Config{FetchLimit: 50, BatchSize: 10, EnrichWorkers: 2}
}

func TestRun_CommitsOnlyEventsNewerThanCursor(t *testing.T) {
	store := newMemStore(stored("cursor", T))
	feed := &fakeFeed{name: "eonet", records: []normalize.RawRecord{
		eonet("plus5", T.Add(5*time.Minute)),
		eonet("plus1", T.Add(time.Minute)),
		eonet("same", T),
		eonet("minus1", T.Add(-time.Minute)),
	}}
	metrics := observability.NewMetricsForTesting()

	p := New(testConfig(), feed, nil, store, nil, clockwork.NewFakeClockAt(T.Add(time.Hour)), metrics)
	res, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"cursor", "eonet_plus1", "eonet_plus5"}, store.ids())
	assert.Equal(t, 4, res.Fetched)
	assert.Equal(t, 2, res.Stale)
	assert.Equal(t, 2, res.Committed)
	assert.Equal(t, T.Add(5*time.Minute), res.Cursor)
	assert.False(t, res.NoNewEvents)
	assert.Equal(t, StateIdle, p.State())

	assert.InDelta(t, 2, testutil.ToFloat64(metrics.EventsCommitted), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.EventsSkipped.WithLabelValues("stale")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.SyncCycles.WithLabelValues("committed")), 0)

	got, err := store.GetByID(context.Background(), "eonet_plus1")
	require.NoError(t, err)
	assert.Equal(t, T.Add(time.Hour), got.CreatedAt)
}

func TestRun_EmptyStoreCommitsEverything(t *testing.T) {
	store := newMemStore()
	feed := &fakeFeed{name: "eonet", records: []normalize.RawRecord{
		eonet("b", T.Add(time.Minute)),
		eonet("a", T),
	}}

	res, err := New(testConfig(), feed, nil, store, nil, clockwork.NewFakeClock(), nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Committed)
	assert.Equal(t, []string{"eonet_a", "eonet_b"}, store.ids(), "oldest first")
}

func TestRun_RejectsRecordWithoutTimestamp(t *testing.T) {
	store := newMemStore()
	noDate := normalize.RawRecord{Schema: normalize.SchemaEONET, Payload: []byte(
		`{"id":"x","title":"No date","categories":[],"geometry":[{"type":"Point","coordinates":[1,2]}]}`)}
	feed := &fakeFeed{name: "eonet", records: []normalize.RawRecord{noDate, eonet("ok", T)}}
	metrics := observability.NewMetricsForTesting()

	res, err := New(testConfig(), feed, nil, store, nil, clockwork.NewFakeClock(), metrics).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rejected)
	assert.Equal(t, 1, res.Committed)
	assert.Equal(t, []string{"eonet_ok"}, store.ids())
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.RecordsRejected.WithLabelValues("eonet")), 0)
}

func TestRun_NoNewEvents(t *testing.T) {
	store := newMemStore(stored("cursor", T))
	feed := &fakeFeed{name: "eonet", records: []normalize.RawRecord{eonet("old", T.Add(-time.Hour))}}

	p := New(testConfig(), feed, nil, store, nil, clockwork.NewFakeClock(), nil)
	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.NoNewEvents)
	assert.Equal(t, 0, res.Committed)
	assert.Equal(t, T, res.Cursor)
	assert.Equal(t, StateIdle, p.State())
}

func TestRun_PrimaryFeedFailure(t *testing.T) {
	store := newMemStore()
	feed := &fakeFeed{name: "eonet", err: errors.New("503")}
	metrics := observability.NewMetricsForTesting()

	p := New(testConfig(), feed, nil, store, nil, clockwork.NewFakeClock(), metrics)
	_, err := p.Run(context.Background())
	require.ErrorIs(t, err, ErrFetchFailed)
	assert.Equal(t, StateFailed, p.State())
	assert.Empty(t, store.ids())
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.SyncCycles.WithLabelValues("failed")), 0)
}

func TestRun_CursorReadFailure(t *testing.T) {
	store := newMemStore()
	store.latestE = errors.New("connection refused")
	feed := &fakeFeed{name: "eonet", records: []normalize.RawRecord{eonet("a", T)}}

	_, err := New(testConfig(), feed, nil, store, nil, clockwork.NewFakeClock(), nil).Run(context.Background())
	require.ErrorIs(t, err, ErrFetchFailed)
	assert.Empty(t, store.ids())
}

func TestRun_ExtraFeedFailureIsNotFatal(t *testing.T) {
	store := newMemStore()
	primary := &fakeFeed{name: "eonet", records: []normalize.RawRecord{eonet("a", T)}}
	broken := &fakeFeed{name: "usgs", err: errors.New("timeout")}
	working := &fakeFeed{name: "other", records: []normalize.RawRecord{eonet("b", T.Add(time.Minute))}}

	res, err := New(testConfig(), primary, []feeds.Feed{broken, working}, store, nil, clockwork.NewFakeClock(), nil).
		Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Committed)
}

func TestRun_PartialCommitFailure(t *testing.T) {
	store := newMemStore()
	store.failOn = "eonet_b"
	feed := &fakeFeed{name: "eonet", records: []normalize.RawRecord{
		eonet("c", T.Add(2*time.Minute)),
		eonet("b", T.Add(time.Minute)),
		eonet("a", T),
	}}

	p := New(testConfig(), feed, nil, store, nil, clockwork.NewFakeClock(), nil)
	res, err := p.Run(context.Background())
	require.ErrorIs(t, err, ErrCommitFailed)
	assert.Equal(t, StateFailed, p.State())

	// a went in before the failure and is not rolled back; c was never attempted
	assert.Equal(t, []string{"eonet_a"}, store.ids())
	assert.Equal(t, 1, res.Committed)
	assert.Equal(t, T, res.Cursor)

	// next cycle resumes from a and picks up b and c
	store.failOn = ""
	res, err = p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Committed)
	assert.Equal(t, 1, res.Stale)
	assert.Equal(t, []string{"eonet_a", "eonet_b", "eonet_c"}, store.ids())
}

func TestRun_SkipsKnownAndRepeatedIDs(t *testing.T) {
	// a stored event older than the cursor but re-reported with a newer timestamp
	store := newMemStore(stored("eonet_moved", T.Add(-time.Hour)), stored("cursor", T))
	feed := &fakeFeed{name: "eonet", records: []normalize.RawRecord{
		eonet("moved", T.Add(time.Minute)),
		eonet("new", T.Add(2*time.Minute)),
		eonet("new", T.Add(2*time.Minute)),
	}}

	res, err := New(testConfig(), feed, nil, store, nil, clockwork.NewFakeClock(), nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Duplicates)
	assert.Equal(t, 1, res.Committed)
	assert.Equal(t, []string{"eonet_moved", "cursor", "eonet_new"}, store.ids())
}

func TestRun_KeepsNewestBatch(t *testing.T) {
	store := newMemStore()
	var records []normalize.RawRecord
	for i := 0; i < 5; i++ {
		records = append(records, eonet(fmt.Sprintf("e%d", i), T.Add(time.Duration(i)*time.Minute)))
	}
	cfg := testConfig()
	cfg.BatchSize = 2

	res, err := New(cfg, &fakeFeed{name: "eonet", records: records}, nil, store, nil, clockwork.NewFakeClock(), nil).
		Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, res.Fetched)
	assert.Equal(t, []string{"eonet_e3", "eonet_e4"}, store.ids())
}

func TestRun_EnrichesRegions(t *testing.T) {
	store := newMemStore()
	gc := &fakeGeocoder{region: geocoder.Region{County: "Los Angeles County", City: "Los Angeles", State: "California", Country: "United States"}}
	feed := &fakeFeed{name: "eonet", records: []normalize.RawRecord{eonet("a", T), eonet("b", T.Add(time.Minute))}}

	_, err := New(testConfig(), feed, nil, store, gc, clockwork.NewFakeClock(), nil).Run(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, gc.calls.Load())

	got, err := store.GetByID(context.Background(), "eonet_a")
	require.NoError(t, err)
	assert.Equal(t, "Los Angeles County", got.County)
	assert.Equal(t, "California", got.State)
	assert.Equal(t, "United States", got.Country)
}

func TestRun_GeocodingFailureIsNotFatal(t *testing.T) {
	store := newMemStore()
	gc := &fakeGeocoder{err: geocoder.ErrUnavailable}
	feed := &fakeFeed{name: "eonet", records: []normalize.RawRecord{eonet("a", T)}}

	res, err := New(testConfig(), feed, nil, store, gc, clockwork.NewFakeClock(), nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Committed)

	got, err := store.GetByID(context.Background(), "eonet_a")
	require.NoError(t, err)
	assert.Empty(t, got.County)
}

func TestEnrich_RespectsMinimumSpacing(t *testing.T) {
	gc := &fakeGeocoder{region: geocoder.Region{State: "California"}}
	cfg := testConfig()
	cfg.EnrichWorkers = 4
	cfg.EnrichInterval = 20 * time.Millisecond
	p := New(cfg, &fakeFeed{name: "eonet"}, nil, newMemStore(), gc, nil, nil)

	events := make([]models.DisasterEvent, 4)
	start := time.Now()
	p.enrich(context.Background(), events)
	elapsed := time.Since(start)

	// the first call is free, the other three wait their turn regardless of worker count
	assert.GreaterOrEqual(t, elapsed, 55*time.Millisecond)
	for _, e := range events {
		assert.Equal(t, "California", e.State)
	}
}

func TestRun_StaleEventsAreNotGeocoded(t *testing.T) {
	store := newMemStore(stored("eonet_t", T))
	gc := &fakeGeocoder{region: geocoder.Region{State: "California"}}
	feed := &fakeFeed{name: "eonet", records: []normalize.RawRecord{
		eonet("old", T.Add(-time.Hour)), eonet("t", T), eonet("new", T.Add(time.Hour)),
	}}

	res, err := New(testConfig(), feed, nil, store, gc, clockwork.NewFakeClock(), nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Stale)
	assert.Equal(t, 1, res.Committed)
	assert.EqualValues(t, 1, gc.calls.Load())
}

func TestEnrich_CacheHitsSkipSpacing(t *testing.T) {
	inner := &fakeGeocoder{region: geocoder.Region{State: "California"}}
	cache, err := geocoder.NewCachedGeocoder(inner, 10, nil)
	require.NoError(t, err)

	events := make([]models.DisasterEvent, 3)
	for i := range events {
		events[i].Coordinate = geo.Coordinate{Latitude: float64(i), Longitude: 10}
		_, err := cache.ReverseGeocode(context.Background(), events[i].Coordinate)
		require.NoError(t, err)
	}

	cfg := testConfig()
	cfg.EnrichInterval = time.Hour
	p := New(cfg, &fakeFeed{name: "eonet"}, nil, newMemStore(), cache, nil, nil)

	start := time.Now()
	p.enrich(context.Background(), events)

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.EqualValues(t, 3, inner.calls.Load())
	for _, e := range events {
		assert.Equal(t, "California", e.State)
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "IDLE", StateIdle.String())
	assert.Equal(t, "COMMITTING", StateCommitting.String())
	assert.Equal(t, "FAILED", StateFailed.String())
	assert.Equal(t, "UNKNOWN", State(42).String())
}
