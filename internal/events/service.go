package events

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-disaster-nearby/internal/geo"
	"github.com/mr1hm/go-disaster-nearby/internal/geocoder"
	"github.com/mr1hm/go-disaster-nearby/internal/models"
	"github.com/mr1hm/go-disaster-nearby/internal/repository"
)

var ErrEmptyPlace = errors.New("place name is empty")

const (
	DefaultWindow      = 180 * 24 * time.Hour
	DefaultRadiusMiles = 50
)

// Nearby is a stored event together with its distance from the query center.
type Nearby struct {
	models.DisasterEvent
	DistanceKm float64
}

// Service answers read-only event queries against the canonical store.
type Service struct {
	repo            repository.DisasterRepository
	geocoder        geocoder.Geocoder
	clock           clockwork.Clock
	window          time.Duration
	defaultRadiusKm float64
}

func NewService(repo repository.DisasterRepository, gc geocoder.Geocoder, clock clockwork.Clock, window time.Duration, defaultRadiusKm float64) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if defaultRadiusKm <= 0 {
		defaultRadiusKm = geo.MilesToKm(DefaultRadiusMiles)
	}
	return &Service{
		repo:            repo,
		geocoder:        gc,
		clock:           clock,
		window:          window,
		defaultRadiusKm: defaultRadiusKm,
	}
}

func (s *Service) DefaultRadiusKm() float64 { return s.defaultRadiusKm }

// Near lists events inside the time window within radiusKm of center, closest first.
// A zero radius uses the default.
func (s *Service) Near(ctx context.Context, center geo.Coordinate, radiusKm float64) ([]Nearby, error) {
	if err := center.Validate(); err != nil {
		return nil, err
	}
	if err := geo.ValidateRadius(radiusKm); err != nil {
		return nil, err
	}
	if radiusKm == 0 {
		radiusKm = s.defaultRadiusKm
	}

	since := s.clock.Now().Add(-s.window)
	stored, err := s.repo.ListDisasters(ctx, repository.Filter{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("error listing disasters: %w", err)
	}

	out := make([]Nearby, 0)
	for _, d := range stored {
		dist, err := geo.Distance(center, d.Coordinate)
		if err != nil {
			// stored rows were validated on the way in
			continue
		}
		if dist <= radiusKm {
			out = append(out, Nearby{DisasterEvent: d, DistanceKm: dist})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DistanceKm < out[j].DistanceKm
	})
	return out, nil
}

// ByPlace resolves place through the geocoder and returns Near for the resolved point.
// Geocoder errors come back unwrapped in kind: geocoder.ErrNotFound or geocoder.ErrUnavailable.
func (s *Service) ByPlace(ctx context.Context, place string, radiusKm float64) (geo.Coordinate, []Nearby, error) {
	place = strings.TrimSpace(place)
	if place == "" {
		return geo.Coordinate{}, nil, ErrEmptyPlace
	}

	center, err := s.geocoder.ForwardGeocode(ctx, place)
	if err != nil {
		return geo.Coordinate{}, nil, fmt.Errorf("error resolving %q: %w", place, err)
	}

	events, err := s.Near(ctx, center, radiusKm)
	if err != nil {
		return center, nil, err
	}
	return center, events, nil
}

// Latest returns the sync cursor record, or nil when nothing has been synced yet.
func (s *Service) Latest(ctx context.Context) (*models.DisasterEvent, error) {
	d, err := s.repo.Latest(ctx)
	if err != nil {
		return nil, fmt.Errorf("error reading latest disaster: %w", err)
	}
	return d, nil
}
