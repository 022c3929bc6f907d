// Command disaster-sync runs a single sync cycle and exits, for use under cron or another external scheduler.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-disaster-nearby/internal/app"
	"github.com/mr1hm/go-disaster-nearby/internal/config"
	"github.com/mr1hm/go-disaster-nearby/internal/logging"
	"github.com/mr1hm/go-disaster-nearby/internal/observability"
)

func main() {
	timeout := flag.Duration("timeout", 5*time.Minute, "abort the cycle after this long")
	noEnrich := flag.Bool("no-enrich", false, "skip reverse geocoding of new events")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	store, err := app.OpenStore(ctx, cfg.Store)
	if err != nil {
		logging.Fatalf("Failed to initialize store: %v", err)
	}
	defer store.Close()

	metrics := observability.NewMetrics()

	gc, err := app.NewGeocoder(cfg.Geocoder, metrics)
	if err != nil {
		logging.Fatalf("Failed to initialize geocoder: %v", err)
	}
	if *noEnrich {
		gc = nil
	}

	res, err := app.NewPipeline(cfg, store, gc, clockwork.NewRealClock(), metrics).Run(ctx)
	if err != nil {
		store.Close()
		logging.Fatalf("sync failed: %v", err)
	}

	slog.Info("sync finished",
		"fetched", res.Fetched,
		"rejected", res.Rejected,
		"stale", res.Stale,
		"duplicates", res.Duplicates,
		"committed", res.Committed,
		"no_new_events", res.NoNewEvents,
		"cursor", res.Cursor,
	)
}
