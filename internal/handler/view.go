package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tour-booking/internal/apperr"
	"github.com/iliyamo/tour-booking/internal/middleware"
	"github.com/iliyamo/tour-booking/internal/model"
	"github.com/iliyamo/tour-booking/internal/query"
	"github.com/iliyamo/tour-booking/internal/repository"
)

var alerts = map[string]string{
	"booking": "Your booking was successful! Please check your email for a confirmation. " +
		"If your booking doesn't show up here immediately, please come back later.",
}

// pageData is the model every page template receives.
func pageData(c echo.Context, title string, extra echo.Map) echo.Map {
	data := echo.Map{"Title": title}
	if u, ok := middleware.CurrentUser(c); ok {
		data["User"] = u
	}
	if msg, ok := alerts[c.QueryParam("alert")]; ok {
		data["Alert"] = msg
	}
	for k, v := range extra {
		data[k] = v
	}
	return data
}

// ViewHandler renders the HTML pages.
type ViewHandler struct {
	Tours    TourStore
	Reviews  ReviewLister
	Bookings BookingStore
}

func NewViewHandler(tours TourStore, reviews ReviewLister, bookings BookingStore) *ViewHandler {
	return &ViewHandler{Tours: tours, Reviews: reviews, Bookings: bookings}
}

func (h *ViewHandler) Overview(c echo.Context) error {
	ctx, cancel := dbContext(c)
	defer cancel()
	tours, err := h.Tours.Find(ctx, query.New(repository.TourSchema, nil))
	if err != nil {
		return err
	}
	return c.Render(http.StatusOK, "overview", pageData(c, "All Tours", echo.Map{"Tours": tours}))
}

func (h *ViewHandler) Tour(c echo.Context) error {
	ctx, cancel := dbContext(c)
	defer cancel()
	t, err := h.Tours.FindBySlug(ctx, c.Param("slug"))
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.New(apperr.NotFound, "There is no tour with that name.")
	}
	if err != nil {
		return err
	}
	if t.Reviews, err = h.Reviews.FindByTour(ctx, t.ID); err != nil {
		return err
	}
	return c.Render(http.StatusOK, "tour", pageData(c, t.Name+" Tour", echo.Map{"Tour": t}))
}

func (h *ViewHandler) Login(c echo.Context) error {
	return c.Render(http.StatusOK, "login", pageData(c, "Log into your account", nil))
}

func (h *ViewHandler) Account(c echo.Context) error {
	return c.Render(http.StatusOK, "account", pageData(c, "Your account", nil))
}

// MyTours shows the tours the user has booked, once each.
func (h *ViewHandler) MyTours(c echo.Context) error {
	me, err := currentUser(c)
	if err != nil {
		return err
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	bookings, err := h.Bookings.FindByUser(ctx, me.ID)
	if err != nil {
		return err
	}

	tours := make([]model.Tour, 0, len(bookings))
	seen := make(map[uint64]bool, len(bookings))
	for _, b := range bookings {
		if seen[b.TourID] {
			continue
		}
		seen[b.TourID] = true
		t, err := h.Tours.FindByID(ctx, b.TourID)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		tours = append(tours, *t)
	}
	return c.Render(http.StatusOK, "overview", pageData(c, "My Tours", echo.Map{"Tours": tours}))
}
