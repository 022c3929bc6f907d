package places

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/mr1hm/go-disaster-nearby/internal/geo"
	"github.com/mr1hm/go-disaster-nearby/internal/models"
	"github.com/mr1hm/go-disaster-nearby/internal/observability"
)

var (
	// ErrProvider is an upstream HTTP or transport failure. Widening the radius never fixes it.
	ErrProvider = errors.New("places provider error")
	// ErrTimeout means the whole adaptive search exceeded its deadline. No partial result is returned.
	ErrTimeout = errors.New("places search timed out")
)

// NoFacilitiesFoundError is the legitimate empty outcome of a search.
type NoFacilitiesFoundError struct {
	Category       models.Category
	SearchedRadius float64 // meters, the last radius actually queried
	Attempts       int
}

func (e *NoFacilitiesFoundError) Error() string {
	return fmt.Sprintf("no %s facilities found within %d km", e.Category, e.SearchedKm())
}

// SearchedKm is the searched radius in whole kilometers.
func (e *NoFacilitiesFoundError) SearchedKm() int {
	return int(math.Floor(e.SearchedRadius / 1000))
}

// Provider queries an external places API once.
type Provider interface {
	Search(ctx context.Context, category models.Category, center geo.Coordinate, radius float64, limit int) ([]models.Facility, error)
}

type SearchConfig struct {
	InitialRadii map[models.Category]float64 // meters
	MaxAttempts  int
	MaxRadius    float64 // meters
	MaxResults   int
	ResultCap    int
	Timeout      time.Duration // wraps the whole adaptive loop; 0 disables
}

func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		InitialRadii: map[models.Category]float64{
			models.CategoryMedical: 5000,
			models.CategoryShelter: 5000,
			models.CategoryFood:    5000,
			models.CategoryLodging: 5000,
			models.CategoryTransit: 1000,
		},
		MaxAttempts: 10,
		MaxRadius:   50000,
		MaxResults:  10,
		ResultCap:   100,
		Timeout:     30 * time.Second,
	}
}

// expansion is the (radius, attempt) state of an adaptive search.
// attempt counts the provider queries already made.
type expansion struct {
	radius      float64
	attempt     int
	maxRadius   float64
	maxAttempts int
}

func newExpansion(initial, maxRadius float64, maxAttempts int) expansion {
	return expansion{
		radius:      math.Min(initial, maxRadius),
		maxRadius:   maxRadius,
		maxAttempts: maxAttempts,
	}
}

// queried records that a query at the current radius was made.
func (e expansion) queried() expansion {
	e.attempt++
	return e
}

// next doubles the radius. ok is false once the attempt or radius ceiling is reached.
func (e expansion) next() (expansion, bool) {
	n := e
	n.radius = e.radius * 2
	if n.attempt >= n.maxAttempts || n.radius >= n.maxRadius {
		return e, false
	}
	return n, true
}

// RadiusSchedule lists the radii an all-empty search would query, in order.
func RadiusSchedule(initial, maxRadius float64, maxAttempts int) []float64 {
	var radii []float64
	e := newExpansion(initial, maxRadius, maxAttempts)
	for {
		radii = append(radii, e.radius)
		var ok bool
		if e, ok = e.queried().next(); !ok {
			return radii
		}
	}
}

// Searcher runs the adaptive-radius nearby search.
type Searcher struct {
	provider Provider
	cfg      SearchConfig
	metrics  *observability.Metrics
}

func NewSearcher(provider Provider, cfg SearchConfig, metrics *observability.Metrics) *Searcher {
	return &Searcher{
		provider: provider,
		cfg:      cfg,
		metrics:  metrics,
	}
}

// DefaultRadius returns the configured initial radius for a category.
func (s *Searcher) DefaultRadius(category models.Category) float64 {
	if r, ok := s.cfg.InitialRadii[category]; ok && r > 0 {
		return r
	}
	return 5000
}

// FindNearby queries the provider, doubling the radius after each empty answer,
// until facilities are found or the attempt/radius ceiling is hit. Only the final
// attempt's facilities are returned. A zero initialRadius or maxResults selects the default.
func (s *Searcher) FindNearby(ctx context.Context, category models.Category, center geo.Coordinate, initialRadius float64, maxResults int) ([]models.Facility, error) {
	if err := center.Validate(); err != nil {
		return nil, err
	}
	if err := geo.ValidateRadius(initialRadius); err != nil {
		return nil, err
	}
	if initialRadius == 0 {
		initialRadius = s.DefaultRadius(category)
	}
	if maxResults <= 0 {
		maxResults = s.cfg.MaxResults
	}
	if s.cfg.ResultCap > 0 && maxResults > s.cfg.ResultCap {
		maxResults = s.cfg.ResultCap
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	e := newExpansion(initialRadius, s.cfg.MaxRadius, s.cfg.MaxAttempts)
	for {
		facilities, err := s.provider.Search(ctx, category, center, e.radius, maxResults)
		e = e.queried()

		if ctxErr := ctx.Err(); ctxErr != nil {
			s.finish(category, "timeout", e.attempt)
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w after %d attempts (radius %.0f m)", ErrTimeout, e.attempt, e.radius)
			}
			return nil, ctxErr
		}
		if err != nil {
			s.finish(category, "provider_error", e.attempt)
			slog.Warn("places provider failed", "category", category, "radius", e.radius, "attempt", e.attempt, "error", err)
			if !errors.Is(err, ErrProvider) {
				err = fmt.Errorf("%w: %v", ErrProvider, err)
			}
			return nil, err
		}
		if len(facilities) > 0 {
			s.finish(category, "found", e.attempt)
			slog.Debug("facilities found", "category", category, "radius", e.radius, "attempt", e.attempt, "count", len(facilities))
			return facilities, nil
		}

		searched := e.radius
		var ok bool
		if e, ok = e.next(); !ok {
			s.finish(category, "not_found", e.attempt)
			return nil, &NoFacilitiesFoundError{
				Category:       category,
				SearchedRadius: searched,
				Attempts:       e.attempt,
			}
		}
	}
}

func (s *Searcher) finish(category models.Category, outcome string, attempts int) {
	if s.metrics == nil {
		return
	}
	s.metrics.ProximitySearches.WithLabelValues(string(category), outcome).Inc()
	s.metrics.ProximityAttempts.Observe(float64(attempts))
}
