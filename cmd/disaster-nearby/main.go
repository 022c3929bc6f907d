package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-disaster-nearby/internal/api"
	"github.com/mr1hm/go-disaster-nearby/internal/app"
	"github.com/mr1hm/go-disaster-nearby/internal/config"
	"github.com/mr1hm/go-disaster-nearby/internal/events"
	"github.com/mr1hm/go-disaster-nearby/internal/fema"
	"github.com/mr1hm/go-disaster-nearby/internal/geo"
	"github.com/mr1hm/go-disaster-nearby/internal/ingestion"
	"github.com/mr1hm/go-disaster-nearby/internal/logging"
	"github.com/mr1hm/go-disaster-nearby/internal/observability"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level)

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port, "store", cfg.Store.Driver)
	if cfg.Places.APIKey == "" {
		slog.Warn("GEOAPIFY_API_KEY not set, facility searches will fail")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := app.OpenStore(ctx, cfg.Store)
	if err != nil {
		logging.Fatalf("Failed to initialize store: %v", err)
	}
	defer store.Close()

	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	gc, err := app.NewGeocoder(cfg.Geocoder, metrics)
	if err != nil {
		logging.Fatalf("Failed to initialize geocoder: %v", err)
	}

	// Start sync scheduler
	mgr := ingestion.NewManager(app.NewPipeline(cfg, store, gc, clock, metrics), cfg.Sync.Interval, clock)
	if cfg.Sync.Enabled {
		mgr.Start(ctx)
	}

	var declarations api.DeclarationFinder
	if cfg.FEMA.Enabled {
		declarations = fema.NewClient(cfg.FEMA.FCCURL, cfg.FEMA.FEMAURL, cfg.FEMA.Timeout, cfg.FEMA.WindowMonths, clock)
	}

	svc := events.NewService(store, gc, clock, cfg.Events.Window, geo.MilesToKm(cfg.Events.DefaultRadiusMiles))

	// Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Set to false when using wildcard origins
	}))
	router.Use(api.RateLimitMiddleware(cfg.Server.RateLimitRPS))

	handler := api.NewHandler(app.NewSearcher(cfg.Places, metrics), svc, declarations, mgr)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	cancel()
	mgr.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
}
