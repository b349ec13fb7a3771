package handler

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tour-booking/internal/apperr"
	"github.com/iliyamo/tour-booking/internal/logger"
	"github.com/iliyamo/tour-booking/internal/model"
	"github.com/iliyamo/tour-booking/internal/repository"
)

// TourStore is the tour repository as seen by the handlers.
type TourStore interface {
	Store[model.Tour]
	FindBySlug(ctx context.Context, slug string) (*model.Tour, error)
	Stats(ctx context.Context) ([]model.TourStats, error)
	MonthlyPlan(ctx context.Context, year int) ([]model.MonthlyPlan, error)
	Within(ctx context.Context, lat, lng, radius float64) ([]model.Tour, error)
	Distances(ctx context.Context, lat, lng, multiplier float64) ([]model.TourDistance, error)
}

// GuideLookup resolves guide references.
type GuideLookup interface {
	FindByIDs(ctx context.Context, ids []uint64) (map[uint64]*model.User, error)
}

// ReviewLister lists the reviews of a tour.
type ReviewLister interface {
	FindByTour(ctx context.Context, tourID uint64) ([]model.Review, error)
}

// CacheEvictor drops the cached tour aggregates.
type CacheEvictor interface {
	Evict(ctx context.Context) error
}

const msgBadLatLng = "Please provide latitude and longitude in the format lat,lng."

// TourHandler serves /api/v1/tours.
type TourHandler struct {
	*Resource[model.Tour]
	Tours   TourStore
	Guides  GuideLookup
	Reviews ReviewLister
	Cache   CacheEvictor // may be nil
}

func NewTourHandler(tours TourStore, guides GuideLookup, reviews ReviewLister, cache CacheEvictor) *TourHandler {
	h := &TourHandler{Tours: tours, Guides: guides, Reviews: reviews, Cache: cache}
	h.Resource = &Resource[model.Tour]{
		Store:      tours,
		Schema:     repository.TourSchema,
		New:        func() *model.Tour { return &model.Tour{RatingsAverage: model.DefaultRatingsAverage} },
		Prepare:    h.prepare,
		Expand:     h.expand,
		AfterWrite: h.evict,
	}
	return h
}

// evict drops the cached stats and top-5 responses after any tour write.
// A failure is logged; the entries still expire with their TTL.
func (h *TourHandler) evict(c echo.Context, _ *model.Tour) {
	if h.Cache == nil {
		return
	}
	if err := h.Cache.Evict(c.Request().Context()); err != nil {
		logger.Ctx(c.Request().Context()).Warn().Err(err).Msg("could not evict tour aggregates")
	}
}

// prepare keeps the derived and immutable fields out of client control and
// checks that every referenced guide exists.
func (h *TourHandler) prepare(c echo.Context, t, prev *model.Tour) error {
	if prev == nil {
		t.ID = 0
		t.Version = 0
		t.RatingsAverage = model.DefaultRatingsAverage
		t.RatingsQuantity = 0
	} else {
		t.ID = prev.ID
		t.RatingsAverage = prev.RatingsAverage
		t.RatingsQuantity = prev.RatingsQuantity
		t.CreatedAt = prev.CreatedAt
	}
	t.Reviews = nil

	ids := t.GuideIDs()
	if len(ids) == 0 {
		t.Guides = nil
		return nil
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	found, err := h.Guides.FindByIDs(ctx, ids)
	if err != nil {
		return err
	}
	guides := make([]model.UserRef, 0, len(ids))
	for _, id := range ids {
		u, ok := found[id]
		if !ok {
			return apperr.Newf(apperr.InvalidReference, "Invalid guides: %d.", id)
		}
		guides = append(guides, model.RefOf(u))
	}
	t.Guides = guides
	return nil
}

func (h *TourHandler) expand(c echo.Context, t *model.Tour) error {
	ctx, cancel := dbContext(c)
	defer cancel()
	reviews, err := h.Reviews.FindByTour(ctx, t.ID)
	if err != nil {
		return err
	}
	t.Reviews = reviews
	return nil
}

// AliasTopTours rewrites the query string of /top-5-cheap before GetAll
// reads it.
func AliasTopTours(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		q := c.Request().URL.Query()
		q.Set("limit", "5")
		q.Set("sort", "-ratingsAverage,price")
		q.Set("fields", "name,price,ratingsAverage,summary,difficulty")
		c.Request().URL.RawQuery = q.Encode()
		return next(c)
	}
}

func (h *TourHandler) GetTourStats(c echo.Context) error {
	ctx, cancel := dbContext(c)
	defer cancel()
	stats, err := h.Tours.Stats(ctx)
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, echo.Map{"stats": stats})
}

func (h *TourHandler) GetMonthlyPlan(c echo.Context) error {
	raw := c.Param("year")
	year, err := strconv.Atoi(raw)
	if err != nil || year < 1 || year > 9999 {
		return apperr.Newf(apperr.InvalidReference, "Invalid year: %s.", raw)
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	plan, err := h.Tours.MonthlyPlan(ctx, year)
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, echo.Map{"plan": plan})
}

// GetToursWithin handles /tours-within/:distance/center/:latlng/unit/:unit.
func (h *TourHandler) GetToursWithin(c echo.Context) error {
	lat, lng, err := parseLatLng(c.Param("latlng"))
	if err != nil {
		return err
	}
	distance, err := strconv.ParseFloat(c.Param("distance"), 64)
	if err != nil || distance <= 0 || math.IsInf(distance, 0) {
		return apperr.Newf(apperr.InvalidReference, "Invalid distance: %s.", c.Param("distance"))
	}
	radius := distance * unitMeters(c.Param("unit"))

	ctx, cancel := dbContext(c)
	defer cancel()
	tours, err := h.Tours.Within(ctx, lat, lng, radius)
	if err != nil {
		return err
	}
	return list(c, len(tours), tours)
}

// GetDistances handles /distances/:latlng/unit/:unit.
func (h *TourHandler) GetDistances(c echo.Context) error {
	lat, lng, err := parseLatLng(c.Param("latlng"))
	if err != nil {
		return err
	}
	multiplier := 1 / unitMeters(c.Param("unit"))

	ctx, cancel := dbContext(c)
	defer cancel()
	distances, err := h.Tours.Distances(ctx, lat, lng, multiplier)
	if err != nil {
		return err
	}
	return document(c, http.StatusOK, distances)
}

// unitMeters is the length of one unit in meters: "mi" selects miles,
// anything else kilometers.
func unitMeters(unit string) float64 {
	if strings.EqualFold(unit, "mi") {
		return repository.MetersPerMile
	}
	return repository.MetersPerKm
}

func parseLatLng(raw string) (lat, lng float64, err error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return 0, 0, apperr.New(apperr.BadRequest, msgBadLatLng)
	}
	lat, errLat := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lng, errLng := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if errLat != nil || errLng != nil || math.IsNaN(lat) || math.IsNaN(lng) || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return 0, 0, apperr.New(apperr.BadRequest, msgBadLatLng)
	}
	return lat, lng, nil
}
