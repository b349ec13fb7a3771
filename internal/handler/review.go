package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tour-booking/internal/apperr"
	"github.com/iliyamo/tour-booking/internal/logger"
	"github.com/iliyamo/tour-booking/internal/model"
	"github.com/iliyamo/tour-booking/internal/query"
	"github.com/iliyamo/tour-booking/internal/repository"
)

// keyTourID carries the tour of a nested /tours/:id/reviews request.
const keyTourID = "tour_id"

const msgNotYourReview = "You can only change your own reviews."

// RatingRecomputer refreshes a tour's rating aggregate.
type RatingRecomputer interface {
	Recompute(ctx context.Context, tourID uint64) error
}

// TourFinder loads a tour by id.
type TourFinder interface {
	FindByID(ctx context.Context, id uint64) (*model.Tour, error)
}

// ReviewHandler serves /api/v1/reviews and /api/v1/tours/:id/reviews.
type ReviewHandler struct {
	*Resource[model.Review]
	Tours   TourFinder
	Ratings RatingRecomputer
}

func NewReviewHandler(reviews Store[model.Review], tours TourFinder, ratings RatingRecomputer) *ReviewHandler {
	h := &ReviewHandler{Tours: tours, Ratings: ratings}
	h.Resource = &Resource[model.Review]{
		Store:      reviews,
		Schema:     repository.ReviewSchema,
		Scope:      scopeToTour,
		Prepare:    h.prepare,
		Authorize:  authorizeReview,
		AfterWrite: h.recompute,
	}
	return h
}

// NestedTour resolves the :id of /tours/:id/reviews for the review
// handlers mounted below it.
func NestedTour(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := parseID(c, "id")
		if err != nil {
			return err
		}
		c.Set(keyTourID, id)
		return next(c)
	}
}

func nestedTourID(c echo.Context) (uint64, bool) {
	id, ok := c.Get(keyTourID).(uint64)
	return id, ok && id != 0
}

func scopeToTour(c echo.Context, f *query.Features) error {
	if id, ok := nestedTourID(c); ok {
		f.Where("r.tour_id = ?", id)
	}
	return nil
}

// prepare fills the tour from the path and the author from the session
// on create.  On update only the text and the rating may change.
func (h *ReviewHandler) prepare(c echo.Context, rv, prev *model.Review) error {
	if prev != nil {
		rv.ID = prev.ID
		rv.TourID = prev.TourID
		rv.User = prev.User
		rv.CreatedAt = prev.CreatedAt
		rv.Review = strings.TrimSpace(rv.Review)
		return nil
	}

	rv.ID = 0
	rv.Version = 0
	if id, ok := nestedTourID(c); ok {
		rv.TourID = id
	}
	if rv.User.ID == 0 {
		u, err := currentUser(c)
		if err != nil {
			return err
		}
		rv.User = model.RefOf(u)
	}
	if rv.TourID == 0 {
		return apperr.New(apperr.Validation, "Invalid input data. Review must belong to a tour.")
	}

	ctx, cancel := dbContext(c)
	defer cancel()
	if _, err := h.Tours.FindByID(ctx, rv.TourID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.Newf(apperr.InvalidReference, "Invalid tour: %d.", rv.TourID)
		}
		return err
	}
	return nil
}

// authorizeReview lets admins change any review and users only their own.
func authorizeReview(c echo.Context, rv *model.Review) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	if u.Role != model.RoleAdmin && rv.User.ID != u.ID {
		return apperr.New(apperr.Authorization, msgNotYourReview)
	}
	return nil
}

// recompute refreshes the tour aggregate.  The review write already
// succeeded, so a failure is logged and not returned.
func (h *ReviewHandler) recompute(c echo.Context, rv *model.Review) {
	if h.Ratings == nil {
		return
	}
	if err := h.Ratings.Recompute(c.Request().Context(), rv.TourID); err != nil {
		logger.Ctx(c.Request().Context()).Error().Err(err).
			Uint64("tour_id", rv.TourID).Msg("rating recompute failed")
	}
}
