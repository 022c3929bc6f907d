// Package app builds the long-lived components from configuration so both binaries wire them the same way.
package app

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-disaster-nearby/internal/config"
	"github.com/mr1hm/go-disaster-nearby/internal/feeds"
	"github.com/mr1hm/go-disaster-nearby/internal/geocoder"
	"github.com/mr1hm/go-disaster-nearby/internal/models"
	"github.com/mr1hm/go-disaster-nearby/internal/observability"
	"github.com/mr1hm/go-disaster-nearby/internal/pipeline"
	"github.com/mr1hm/go-disaster-nearby/internal/places"
	"github.com/mr1hm/go-disaster-nearby/internal/repository"
)

func OpenStore(ctx context.Context, cfg config.StoreConfig) (repository.DisasterRepository, error) {
	switch cfg.Driver {
	case config.StoreSQLite:
		db, err := repository.NewSQLiteDB(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return db, nil
	case config.StorePostgres:
		db, err := repository.NewPostgresDB(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return db, nil
	case config.StoreAPEX:
		return repository.NewAPEXStore(cfg.APEXURL, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func NewGeocoder(cfg config.GeocoderConfig, metrics *observability.Metrics) (geocoder.Geocoder, error) {
	nominatim := geocoder.NewNominatim(cfg.BaseURL, cfg.UserAgent, cfg.Timeout, metrics)
	cached, err := geocoder.NewCachedGeocoder(nominatim, cfg.CacheSize, metrics)
	if err != nil {
		return nil, fmt.Errorf("error creating geocoder cache: %w", err)
	}
	return cached, nil
}

// Feeds returns the primary feed and the enabled extra feeds.
func Feeds(cfg config.SourcesConfig) (feeds.Feed, []feeds.Feed) {
	var extra []feeds.Feed
	if cfg.USGSEnabled {
		extra = append(extra, feeds.NewUSGS(cfg.USGSURL, cfg.Timeout))
	}
	if cfg.GDACSEnabled {
		extra = append(extra, feeds.NewGDACS(cfg.GDACSURL, cfg.Timeout))
	}
	return feeds.NewEONET(cfg.EONETURL, cfg.Timeout), extra
}

func NewPipeline(cfg *config.Config, store repository.DisasterRepository, gc geocoder.Geocoder, clock clockwork.Clock, metrics *observability.Metrics) *pipeline.Pipeline {
	primary, extra := Feeds(cfg.Sources)
	return pipeline.New(pipeline.Config{
		FetchLimit:     cfg.Sync.FetchLimit,
		BatchSize:      cfg.Sync.BatchSize,
		EnrichWorkers:  cfg.Sync.EnrichWorkers,
		EnrichInterval: cfg.Sync.EnrichInterval,
	}, primary, extra, store, gc, clock, metrics)
}

func SearchConfig(cfg config.PlacesConfig) places.SearchConfig {
	return places.SearchConfig{
		InitialRadii: map[models.Category]float64{
			models.CategoryMedical: cfg.MedicalRadius,
			models.CategoryShelter: cfg.ShelterRadius,
			models.CategoryFood:    cfg.FoodRadius,
			models.CategoryTransit: cfg.TransitRadius,
			models.CategoryLodging: cfg.LodgingRadius,
		},
		MaxAttempts: cfg.MaxAttempts,
		MaxRadius:   cfg.MaxRadius,
		MaxResults:  cfg.MaxResults,
		ResultCap:   cfg.ResultCap,
		Timeout:     cfg.SearchTimeout,
	}
}

func NewSearcher(cfg config.PlacesConfig, metrics *observability.Metrics) *places.Searcher {
	provider := places.NewGeoapify(cfg.BaseURL, cfg.APIKey, cfg.Timeout, metrics)
	return places.NewSearcher(provider, SearchConfig(cfg), metrics)
}
