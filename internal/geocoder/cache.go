package geocoder

import (
	"context"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mr1hm/go-disaster-nearby/internal/geo"
	"github.com/mr1hm/go-disaster-nearby/internal/observability"
)

// CachedGeocoder wraps a Geocoder with in-memory LRU caches.
// Only successful lookups are cached so NotFound and Unavailable answers are retried.
type CachedGeocoder struct {
	inner   Geocoder
	reverse *lru.Cache[string, Region]
	forward *lru.Cache[string, geo.Coordinate]
	metrics *observability.Metrics
}

func NewCachedGeocoder(inner Geocoder, maxEntries int, metrics *observability.Metrics) (*CachedGeocoder, error) {
	reverse, err := lru.New[string, Region](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("error creating reverse cache: %w", err)
	}
	forward, err := lru.New[string, geo.Coordinate](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("error creating forward cache: %w", err)
	}

	return &CachedGeocoder{
		inner:   inner,
		reverse: reverse,
		forward: forward,
		metrics: metrics,
	}, nil
}

// CachedRegion returns the cached region for coord without calling the provider.
func (c *CachedGeocoder) CachedRegion(coord geo.Coordinate) (Region, bool) {
	region, ok := c.reverse.Get(reverseKey(coord))
	if ok {
		c.record("reverse", "hit")
	}
	return region, ok
}

func (c *CachedGeocoder) ReverseGeocode(ctx context.Context, coord geo.Coordinate) (Region, error) {
	key := reverseKey(coord)
	if region, ok := c.reverse.Get(key); ok {
		c.record("reverse", "hit")
		return region, nil
	}
	c.record("reverse", "miss")

	region, err := c.inner.ReverseGeocode(ctx, coord)
	if err != nil {
		return region, err
	}
	c.reverse.Add(key, region)
	return region, nil
}

func (c *CachedGeocoder) ForwardGeocode(ctx context.Context, place string) (geo.Coordinate, error) {
	key := strings.ToLower(strings.TrimSpace(place))
	if coord, ok := c.forward.Get(key); ok {
		c.record("forward", "hit")
		return coord, nil
	}
	c.record("forward", "miss")

	coord, err := c.inner.ForwardGeocode(ctx, place)
	if err != nil {
		return coord, err
	}
	c.forward.Add(key, coord)
	return coord, nil
}

// reverseKey has ~0.1 m precision; nearby duplicates from the same feed share an entry.
func reverseKey(coord geo.Coordinate) string {
	return coord.String()
}

func (c *CachedGeocoder) record(method, result string) {
	if c.metrics != nil {
		c.metrics.GeocodeCache.WithLabelValues(method, result).Inc()
	}
}
