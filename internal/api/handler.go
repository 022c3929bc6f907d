package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mr1hm/go-disaster-nearby/internal/events"
	"github.com/mr1hm/go-disaster-nearby/internal/fema"
	"github.com/mr1hm/go-disaster-nearby/internal/geo"
	"github.com/mr1hm/go-disaster-nearby/internal/geocoder"
	"github.com/mr1hm/go-disaster-nearby/internal/ingestion"
	"github.com/mr1hm/go-disaster-nearby/internal/models"
	"github.com/mr1hm/go-disaster-nearby/internal/pipeline"
	"github.com/mr1hm/go-disaster-nearby/internal/places"
)

const maxFacilityLimit = 100

type FacilityFinder interface {
	FindNearby(ctx context.Context, category models.Category, center geo.Coordinate, initialRadius float64, maxResults int) ([]models.Facility, error)
}

type EventQuerier interface {
	Near(ctx context.Context, center geo.Coordinate, radiusKm float64) ([]events.Nearby, error)
	ByPlace(ctx context.Context, place string, radiusKm float64) (geo.Coordinate, []events.Nearby, error)
	Latest(ctx context.Context) (*models.DisasterEvent, error)
}

type DeclarationFinder interface {
	Declarations(ctx context.Context, coord geo.Coordinate) (fema.Location, []fema.Declaration, error)
}

type SyncRunner interface {
	RunOnce(ctx context.Context) (pipeline.Result, error)
	Status() ingestion.Status
}

type Handler struct {
	facilities   FacilityFinder
	events       EventQuerier
	declarations DeclarationFinder
	sync         SyncRunner
}

// NewHandler wires the HTTP surface. declarations and sync may be nil; their routes then answer 503.
func NewHandler(facilities FacilityFinder, eq EventQuerier, declarations DeclarationFinder, sync SyncRunner) *Handler {
	return &Handler{
		facilities:   facilities,
		events:       eq,
		declarations: declarations,
		sync:         sync,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/api/facilities/:category", h.getFacilities)
	r.GET("/api/disasters/near", h.getDisastersNear)
	r.GET("/api/disasters/place", h.getDisastersByPlace)
	r.GET("/api/disasters/latest", h.getLatestDisaster)
	r.GET("/api/declarations", h.getDeclarations)
	r.POST("/api/sync", h.runSync)
	r.GET("/health", h.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (h *Handler) getFacilities(c *gin.Context) {
	category, err := models.ParseCategory(c.Param("category"))
	if err != nil {
		badRequest(c, err)
		return
	}
	center, err := parseCoordinate(c)
	if err != nil {
		badRequest(c, err)
		return
	}

	var radius float64 // meters; 0 selects the category default
	if r := c.Query("radius"); r != "" {
		if radius, err = parsePositive(r); err != nil {
			badRequest(c, fmt.Errorf("invalid radius %q", r))
			return
		}
	}
	limit := 0
	if l := c.Query("limit"); l != "" {
		limit, err = strconv.Atoi(l)
		if err != nil || limit <= 0 || limit > maxFacilityLimit {
			badRequest(c, fmt.Errorf("limit must be between 1 and %d", maxFacilityLimit))
			return
		}
	}

	found, err := h.facilities.FindNearby(c.Request.Context(), category, center, radius, limit)
	if err != nil {
		var notFound *places.NoFacilitiesFoundError
		switch {
		case errors.As(err, &notFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":              notFound.Error(),
				"searched_radius_km": notFound.SearchedKm(),
			})
		case errors.Is(err, geo.ErrInvalidCoordinate), errors.Is(err, geo.ErrInvalidRadius):
			badRequest(c, err)
		case errors.Is(err, places.ErrTimeout):
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": "facility search timed out"})
		case errors.Is(err, places.ErrProvider):
			slog.Error("places provider failed", "category", category, "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "places provider unavailable"})
		default:
			internalError(c, "facility search failed", err)
		}
		return
	}

	c.Header("Content-Type", "application/geo+json")
	c.JSON(http.StatusOK, facilitiesToGeoJSON(found))
}

func (h *Handler) getDisastersNear(c *gin.Context) {
	center, err := parseCoordinate(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	radiusKm, err := parseRadiusKm(c)
	if err != nil {
		badRequest(c, err)
		return
	}

	nearby, err := h.events.Near(c.Request.Context(), center, radiusKm)
	if err != nil {
		if errors.Is(err, geo.ErrInvalidCoordinate) || errors.Is(err, geo.ErrInvalidRadius) {
			badRequest(c, err)
			return
		}
		internalError(c, "failed to fetch disasters", err)
		return
	}

	c.Header("Content-Type", "application/geo+json")
	c.JSON(http.StatusOK, nearbyToGeoJSON(nearby, nil))
}

func (h *Handler) getDisastersByPlace(c *gin.Context) {
	radiusKm, err := parseRadiusKm(c)
	if err != nil {
		badRequest(c, err)
		return
	}

	center, nearby, err := h.events.ByPlace(c.Request.Context(), c.Query("name"), radiusKm)
	if err != nil {
		switch {
		case errors.Is(err, events.ErrEmptyPlace), errors.Is(err, geo.ErrInvalidRadius):
			badRequest(c, err)
		case errors.Is(err, geocoder.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("place %q not found", strings.TrimSpace(c.Query("name")))})
		case errors.Is(err, geocoder.ErrUnavailable):
			slog.Error("geocoder failed", "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "geocoding unavailable"})
		default:
			internalError(c, "failed to fetch disasters", err)
		}
		return
	}

	c.Header("Content-Type", "application/geo+json")
	c.JSON(http.StatusOK, nearbyToGeoJSON(nearby, &center))
}

func (h *Handler) getLatestDisaster(c *gin.Context) {
	d, err := h.events.Latest(c.Request.Context())
	if err != nil {
		internalError(c, "failed to fetch latest disaster", err)
		return
	}
	if d == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no disasters synced yet"})
		return
	}
	c.JSON(http.StatusOK, toDisasterJSON(*d))
}

func (h *Handler) getDeclarations(c *gin.Context) {
	if h.declarations == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "declarations lookup disabled"})
		return
	}
	center, err := parseCoordinate(c)
	if err != nil {
		badRequest(c, err)
		return
	}

	loc, decls, err := h.declarations.Declarations(c.Request.Context(), center)
	if err != nil {
		switch {
		case errors.Is(err, geo.ErrInvalidCoordinate):
			badRequest(c, err)
		case errors.Is(err, fema.ErrLookupFailed):
			slog.Error("declarations lookup failed", "coordinate", center.String(), "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "declarations lookup failed"})
		default:
			internalError(c, "declarations lookup failed", err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"location":     loc,
		"declarations": decls,
	})
}

func (h *Handler) runSync(c *gin.Context) {
	if h.sync == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sync disabled"})
		return
	}

	res, err := h.sync.RunOnce(c.Request.Context())
	if err != nil {
		switch {
		case errors.Is(err, ingestion.ErrCycleInProgress):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, pipeline.ErrFetchFailed), errors.Is(err, pipeline.ErrCommitFailed):
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "result": toResultJSON(res)})
		default:
			internalError(c, "sync failed", err)
		}
		return
	}

	c.JSON(http.StatusOK, toResultJSON(res))
}

func (h *Handler) health(c *gin.Context) {
	body := gin.H{"status": "ok"}
	if h.sync != nil {
		s := h.sync.Status()
		sync := gin.H{"running": s.Running}
		if !s.LastRun.IsZero() {
			sync["last_run"] = s.LastRun.UTC().Format(time.RFC3339)
			sync["last_result"] = toResultJSON(s.LastResult)
		}
		if s.LastError != "" {
			sync["last_error"] = s.LastError
		}
		body["sync"] = sync
	}
	c.JSON(http.StatusOK, body)
}

func parseCoordinate(c *gin.Context) (geo.Coordinate, error) {
	lat, err := strconv.ParseFloat(c.Query("latitude"), 64)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("invalid latitude %q", c.Query("latitude"))
	}
	lon, err := strconv.ParseFloat(c.Query("longitude"), 64)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("invalid longitude %q", c.Query("longitude"))
	}
	return geo.NewCoordinate(lat, lon)
}

// parseRadiusKm returns 0 when radius_km is absent so the service default applies.
func parseRadiusKm(c *gin.Context) (float64, error) {
	r := c.Query("radius_km")
	if r == "" {
		return 0, nil
	}
	km, err := parsePositive(r)
	if err != nil {
		return 0, fmt.Errorf("invalid radius_km %q", r)
	}
	return km, nil
}

// parsePositive accepts finite values above zero. ParseFloat alone lets "NaN" and "Inf" through.
func parsePositive(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, geo.ErrInvalidRadius
	}
	return v, nil
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func internalError(c *gin.Context, msg string, err error) {
	slog.Error(msg, "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}
