package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/mr1hm/go-disaster-nearby/internal/feeds"
	"github.com/mr1hm/go-disaster-nearby/internal/geocoder"
	"github.com/mr1hm/go-disaster-nearby/internal/models"
	"github.com/mr1hm/go-disaster-nearby/internal/normalize"
	"github.com/mr1hm/go-disaster-nearby/internal/observability"
	"github.com/mr1hm/go-disaster-nearby/internal/repository"
	"github.com/mr1hm/go-disaster-nearby/internal/worker"
)

var (
	// ErrFetchFailed aborts a cycle when the cursor or the primary feed cannot be read.
	ErrFetchFailed = errors.New("sync fetch failed")
	// ErrCommitFailed aborts the remaining commits of a cycle. Events already appended stay.
	ErrCommitFailed = errors.New("sync commit failed")
)

type Config struct {
	FetchLimit     int           // records requested from each feed
	BatchSize      int           // newest normalized events kept per cycle
	EnrichWorkers  int           // concurrent reverse-geocoding calls
	EnrichInterval time.Duration // minimum spacing between geocoder calls, across all workers
}

func DefaultConfig() Config {
	return Config{
		FetchLimit:     50,
		BatchSize:      10,
		EnrichWorkers:  2,
		EnrichInterval: time.Second,
	}
}

// Result summarizes one cycle.
type Result struct {
	Fetched     int
	Rejected    int
	Stale       int // not newer than the cursor
	Duplicates  int // id already stored or repeated within the batch
	Committed   int
	Cursor      time.Time // occurredAt of the newest committed event, or the incoming cursor
	NoNewEvents bool
}

// Pipeline merges upstream feeds into the canonical store. Run must not be called
// concurrently; ingestion.Manager provides that guarantee.
type Pipeline struct {
	cfg      Config
	primary  feeds.Feed
	extra    []feeds.Feed
	store    repository.DisasterRepository
	geocoder geocoder.Geocoder
	limiter  *rate.Limiter
	clock    clockwork.Clock
	metrics  *observability.Metrics
	state    atomic.Int32
}

// New builds a pipeline. extra feeds are best effort: their failures are logged and skipped.
// geo may be nil to disable region enrichment.
func New(cfg Config, primary feeds.Feed, extra []feeds.Feed, store repository.DisasterRepository,
	geo geocoder.Geocoder, clock clockwork.Clock, metrics *observability.Metrics) *Pipeline {
	def := DefaultConfig()
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = def.FetchLimit
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.EnrichWorkers <= 0 {
		cfg.EnrichWorkers = def.EnrichWorkers
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Pipeline{
		cfg:      cfg,
		primary:  primary,
		extra:    extra,
		store:    store,
		geocoder: geo,
		limiter:  rate.NewLimiter(rate.Every(cfg.EnrichInterval), 1),
		clock:    clock,
		metrics:  metrics,
	}
}

func (p *Pipeline) State() State {
	return State(p.state.Load())
}

func (p *Pipeline) setState(s State) {
	slog.Debug("sync state", "state", s.String())
	p.state.Store(int32(s))
}

// Run executes one fetch-normalize-dedup-commit cycle.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	start := p.clock.Now()
	if p.metrics != nil {
		p.metrics.SyncRunning.Set(1)
		defer p.metrics.SyncRunning.Set(0)
	}

	res, err := p.run(ctx)

	outcome := "committed"
	switch {
	case err != nil:
		outcome = "failed"
		p.setState(StateFailed)
	case res.NoNewEvents:
		outcome = "no_new_events"
		p.setState(StateIdle)
	default:
		p.setState(StateIdle)
	}
	if p.metrics != nil {
		p.metrics.SyncCycles.WithLabelValues(outcome).Inc()
		p.metrics.SyncCycleDuration.Observe(p.clock.Since(start).Seconds())
	}
	return res, err
}

func (p *Pipeline) run(ctx context.Context) (Result, error) {
	var res Result

	p.setState(StateFetching)
	latest, err := p.store.Latest(ctx)
	if err != nil {
		return res, fmt.Errorf("%w: reading cursor: %v", ErrFetchFailed, err)
	}
	var cursor time.Time
	if latest != nil {
		cursor = latest.OccurredAt
	}
	res.Cursor = cursor

	raws, err := p.fetch(ctx)
	if err != nil {
		return res, err
	}
	res.Fetched = len(raws)

	p.setState(StateNormalizing)
	events := p.normalize(raws, &res)
	// stale events never reach the geocoder
	events = p.dropStale(events, cursor, &res)
	p.enrich(ctx, events)

	p.setState(StateDeduping)
	fresh, err := p.dedup(ctx, events, &res)
	if err != nil {
		return res, err
	}
	if len(fresh) == 0 {
		res.NoNewEvents = true
		slog.Info("sync complete, no new events", "fetched", res.Fetched, "rejected", res.Rejected,
			"stale", res.Stale, "duplicates", res.Duplicates, "cursor", cursor)
		return res, nil
	}

	p.setState(StateCommitting)
	if err := p.commit(ctx, fresh, &res); err != nil {
		return res, err
	}

	slog.Info("sync complete", "fetched", res.Fetched, "rejected", res.Rejected, "stale", res.Stale,
		"duplicates", res.Duplicates, "committed", res.Committed, "cursor", res.Cursor)
	return res, nil
}

func (p *Pipeline) fetch(ctx context.Context) ([]normalize.RawRecord, error) {
	raws, err := p.primary.Fetch(ctx, p.cfg.FetchLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFetchFailed, p.primary.Name(), err)
	}

	for _, f := range p.extra {
		more, err := f.Fetch(ctx, p.cfg.FetchLimit)
		if err != nil {
			slog.Error("feed fetch failed", "source", f.Name(), "error", err)
			continue
		}
		raws = append(raws, more...)
	}
	return raws, nil
}

// normalize drops rejected records and keeps the BatchSize newest events, newest first.
func (p *Pipeline) normalize(raws []normalize.RawRecord, res *Result) []models.DisasterEvent {
	events := make([]models.DisasterEvent, 0, len(raws))
	for _, raw := range raws {
		e, err := normalize.Normalize(raw)
		if err != nil {
			res.Rejected++
			slog.Warn("record rejected", "source", raw.Schema, "error", err)
			if p.metrics != nil {
				p.metrics.RecordsRejected.WithLabelValues(string(raw.Schema)).Inc()
			}
			continue
		}
		events = append(events, e)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].OccurredAt.After(events[j].OccurredAt)
	})
	if len(events) > p.cfg.BatchSize {
		events = events[:p.cfg.BatchSize]
	}
	return events
}

// enrich fills in administrative regions. Geocoding failures leave the event as is.
func (p *Pipeline) enrich(ctx context.Context, events []models.DisasterEvent) {
	if p.geocoder == nil || len(events) == 0 {
		return
	}

	pool := worker.NewWorkerPool("enrich", p.cfg.EnrichWorkers, len(events),
		func(ctx context.Context, e *models.DisasterEvent) error {
			if cache, ok := p.geocoder.(geocoder.RegionCache); ok {
				if region, hit := cache.CachedRegion(e.Coordinate); hit {
					applyRegion(e, region)
					return nil
				}
			}
			if err := p.limiter.Wait(ctx); err != nil {
				return err
			}
			region, err := p.geocoder.ReverseGeocode(ctx, e.Coordinate)
			if err != nil {
				slog.Warn("reverse geocoding failed", "id", e.ID, "error", err)
				return err
			}
			applyRegion(e, region)
			return nil
		})

	pool.Start(ctx)
	for i := range events {
		pool.Submit(&events[i])
	}
	pool.Stop()
}

func applyRegion(e *models.DisasterEvent, r geocoder.Region) {
	if r.County != "" {
		e.County = r.County
	}
	if r.State != "" {
		e.State = r.State
	}
	if r.Country != "" {
		e.Country = r.Country
	}
}

// dropStale keeps only events strictly newer than cursor.
func (p *Pipeline) dropStale(events []models.DisasterEvent, cursor time.Time, res *Result) []models.DisasterEvent {
	fresh := events[:0]
	for _, e := range events {
		if !e.NewerThan(cursor) {
			res.Stale++
			p.skipped("stale")
			continue
		}
		fresh = append(fresh, e)
	}
	return fresh
}

// dedup drops events whose id repeats within the batch or is already stored.
func (p *Pipeline) dedup(ctx context.Context, events []models.DisasterEvent, res *Result) ([]models.DisasterEvent, error) {
	seen := make(map[string]struct{}, len(events))
	fresh := make([]models.DisasterEvent, 0, len(events))

	for _, e := range events {
		if _, ok := seen[e.ID]; ok {
			res.Duplicates++
			p.skipped("duplicate")
			continue
		}
		seen[e.ID] = struct{}{}

		exists, err := p.store.Exists(ctx, e.ID)
		if err != nil {
			return nil, fmt.Errorf("error checking existence of %s: %w", e.ID, err)
		}
		if exists {
			res.Duplicates++
			p.skipped("duplicate")
			continue
		}
		fresh = append(fresh, e)
	}
	return fresh, nil
}

func (p *Pipeline) skipped(reason string) {
	if p.metrics != nil {
		p.metrics.EventsSkipped.WithLabelValues(reason).Inc()
	}
}

// commit appends oldest first, so a failure part way leaves a cursor that still
// admits the uncommitted newer events next cycle.
func (p *Pipeline) commit(ctx context.Context, events []models.DisasterEvent, res *Result) error {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].OccurredAt.Before(events[j].OccurredAt)
	})

	for i := range events {
		e := &events[i]
		e.CreatedAt = p.clock.Now().UTC()
		if err := p.store.Append(ctx, e); err != nil {
			slog.Error("error adding disaster", "id", e.ID, "committed", res.Committed, "error", err)
			return fmt.Errorf("%w: %s after %d of %d: %v", ErrCommitFailed, e.ID, res.Committed, len(events), err)
		}

		res.Committed++
		if e.OccurredAt.After(res.Cursor) {
			res.Cursor = e.OccurredAt
		}
		if p.metrics != nil {
			p.metrics.EventsCommitted.Inc()
		}
		slog.Info("added disaster", "id", e.ID, "type", e.Type, "source", e.Source)
	}
	return nil
}
