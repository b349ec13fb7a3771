package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tour-booking/internal/apperr"
	"github.com/iliyamo/tour-booking/internal/logger"
	"github.com/iliyamo/tour-booking/internal/model"
	"github.com/iliyamo/tour-booking/internal/payment"
	"github.com/iliyamo/tour-booking/internal/repository"
	"github.com/iliyamo/tour-booking/internal/service"
)

// maxWebhookBytes caps the webhook payload read into memory.
const maxWebhookBytes = 64 << 10

// HeaderStripeSignature carries the webhook signature.
const HeaderStripeSignature = "Stripe-Signature"

// BookingStore is the booking repository as seen by the handlers.
type BookingStore interface {
	Store[model.Booking]
	FindByUser(ctx context.Context, userID uint64) ([]model.Booking, error)
}

// UserFinder loads a user by id.
type UserFinder interface {
	FindByID(ctx context.Context, id uint64) (*model.User, error)
}

// BookingHandler bundles checkout, webhook and booking administration.
type BookingHandler struct {
	*Resource[model.Booking]
	Bookings BookingStore
	Tours    TourFinder
	Users    UserFinder
	Checkout payment.Checkout
	Events   *service.Notifier
	BaseURL  string
}

func NewBookingHandler(bookings BookingStore, tours TourFinder, users UserFinder, checkout payment.Checkout, events *service.Notifier, baseURL string) *BookingHandler {
	h := &BookingHandler{
		Bookings: bookings,
		Tours:    tours,
		Users:    users,
		Checkout: checkout,
		Events:   events,
		BaseURL:  baseURL,
	}
	h.Resource = &Resource[model.Booking]{
		Store:   bookings,
		Schema:  repository.BookingSchema,
		New:     func() *model.Booking { return &model.Booking{Paid: true} },
		Prepare: h.prepare,
	}
	return h
}

func (h *BookingHandler) prepare(c echo.Context, b, prev *model.Booking) error {
	if prev != nil {
		b.ID = prev.ID
		b.SessionID = prev.SessionID
		b.CreatedAt = prev.CreatedAt
	} else {
		b.ID = 0
		b.Version = 0
		b.SessionID = nil
	}
	b.TourName = ""

	ctx, cancel := dbContext(c)
	defer cancel()
	if b.TourID != 0 {
		t, err := h.Tours.FindByID(ctx, b.TourID)
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.Newf(apperr.InvalidReference, "Invalid tour: %d.", b.TourID)
		}
		if err != nil {
			return err
		}
		b.TourName = t.Name
	}
	if b.UserID != 0 {
		if _, err := h.Users.FindByID(ctx, b.UserID); errors.Is(err, repository.ErrNotFound) {
			return apperr.Newf(apperr.InvalidReference, "Invalid user: %d.", b.UserID)
		} else if err != nil {
			return err
		}
	}
	return nil
}

// GetCheckoutSession creates a hosted payment page for the tour.
func (h *BookingHandler) GetCheckoutSession(c echo.Context) error {
	me, err := currentUser(c)
	if err != nil {
		return err
	}
	tourID, err := parseID(c, "tourId")
	if err != nil {
		return err
	}
	ctx, cancel := dbContext(c)
	defer cancel()

	t, err := h.Tours.FindByID(ctx, tourID)
	if err != nil {
		return err
	}
	base := baseURL(c, h.BaseURL)
	session, err := h.Checkout.CreateSession(c.Request().Context(), payment.Order{
		TourID:    t.ID,
		TourName:  t.Name,
		Summary:   t.Summary,
		ImageURL:  base + "/img/tours/" + t.ImageCover,
		Price:     t.Price,
		UserID:    me.ID,
		UserEmail: me.Email,
		BaseURL:   base,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "success", "session": session})
}

// WebhookCheckout records the booking of a completed checkout.  The
// session id is unique, so a redelivered event is acknowledged without a
// second booking.
func (h *BookingHandler) WebhookCheckout(c echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBytes))
	if err != nil {
		return apperr.Wrap(err, apperr.BadRequest, "Webhook error: unreadable body")
	}
	done, err := h.Checkout.ParseWebhook(payload, c.Request().Header.Get(HeaderStripeSignature))
	if err != nil {
		return err
	}
	received := echo.Map{"received": true}
	if done == nil {
		return c.JSON(http.StatusOK, received)
	}

	ctx := c.Request().Context()
	log := logger.Ctx(ctx)
	sessionID := done.SessionID
	b := &model.Booking{TourID: done.TourID, UserID: done.UserID, Price: done.Price, Paid: true, SessionID: &sessionID}

	dbCtx, cancel := dbContext(c)
	defer cancel()
	if err := h.Bookings.Create(dbCtx, b); err != nil {
		if apperr.IsKind(apperr.Classify(err), apperr.DuplicateKey) {
			log.Info().Str("session", sessionID).Msg("checkout already recorded")
			return c.JSON(http.StatusOK, received)
		}
		return err
	}
	log.Info().Uint64("booking_id", b.ID).Str("checkout", done.String()).Msg("booking created")

	if t, err := h.Tours.FindByID(dbCtx, b.TourID); err == nil {
		b.TourName = t.Name
	}
	u, err := h.Users.FindByID(dbCtx, b.UserID)
	if err != nil {
		log.Warn().Err(err).Uint64("user_id", b.UserID).Msg("booking user not loaded")
		u = &model.User{ID: b.UserID, Email: done.Email}
	}
	_ = h.Events.BookingCreated(ctx, b, u, baseURL(c, h.BaseURL)+"/my-tours")
	return c.JSON(http.StatusOK, received)
}

// GetMyBookings lists the bookings of the logged in user.
func (h *BookingHandler) GetMyBookings(c echo.Context) error {
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
	return list(c, len(bookings), bookings)
}
