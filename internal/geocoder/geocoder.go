package geocoder

import (
	"context"
	"errors"

	"github.com/mr1hm/go-disaster-nearby/internal/geo"
)

var (
	// ErrUnavailable means the provider could not be reached or answered non-2xx. Try again later.
	ErrUnavailable = errors.New("geocoding unavailable")
	// ErrNotFound means the provider answered but had no match. Retrying will not help.
	ErrNotFound = errors.New("geocoding: no match")
)

// Region holds the administrative names for a coordinate. Any field may be empty.
type Region struct {
	County  string
	City    string
	State   string
	Country string
}

func (r Region) Empty() bool {
	return r == Region{}
}

// RegionCache is implemented by geocoders that can answer a reverse lookup from memory.
// Callers that pace provider calls use it to skip the wait on a hit.
type RegionCache interface {
	CachedRegion(c geo.Coordinate) (Region, bool)
}

// Geocoder resolves coordinates to regions and place text to coordinates.
// Implementations make a single provider call and never retry.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, c geo.Coordinate) (Region, error)
	ForwardGeocode(ctx context.Context, place string) (geo.Coordinate, error)
}
