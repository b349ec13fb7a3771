package handler

import (
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/tour-booking/internal/apperr"
	"github.com/iliyamo/tour-booking/internal/model"
	"github.com/iliyamo/tour-booking/internal/payment"
	"github.com/iliyamo/tour-booking/internal/queue"
	"github.com/iliyamo/tour-booking/internal/service"
)

type bookingFixture struct {
	bookings  *fakeBookings
	checkout  *fakeCheckout
	published *recordedPublisher
	h         *BookingHandler
}

func newBookingFixture() bookingFixture {
	tours := newFakeTours(forestHiker())
	users := newFakeUsers(&model.User{ID: 3, Name: "Laura Wilson", Email: "laura@example.com", Role: model.RoleUser})
	bookings := newFakeBookings()
	checkout := &fakeCheckout{}
	published := &recordedPublisher{}
	h := NewBookingHandler(bookings, tours, users, checkout, service.NewNotifier(published), "http://tours.test")
	return bookingFixture{bookings: bookings, checkout: checkout, published: published, h: h}
}

func (f bookingFixture) echoAs(u *model.User) *echo.Echo {
	e := newEcho(false)
	e.POST("/webhook-checkout", f.h.WebhookCheckout)
	g := e.Group("/api/v1/bookings", as(u))
	g.GET("/checkout-session/:tourId", f.h.GetCheckoutSession)
	g.GET("/my-bookings", f.h.GetMyBookings)
	g.POST("", f.h.CreateOne)
	g.GET("/:id", f.h.GetOne)
	return e
}

func TestCheckoutSession(t *testing.T) {
	f := newBookingFixture()
	e := f.echoAs(plainUser)

	rec := call(e, http.MethodGet, "/api/v1/bookings/checkout-session/1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	session := decode(t, rec)["session"].(map[string]any)
	assert.Equal(t, "cs_test_1", session["id"])

	require.Len(t, f.checkout.orders, 1)
	o := f.checkout.orders[0]
	assert.Equal(t, uint64(1), o.TourID)
	assert.Equal(t, float64(397), o.Price)
	assert.Equal(t, plainUser.ID, o.UserID)
	assert.Equal(t, "http://tours.test/img/tours/tour-1-cover.jpg", o.ImageURL)

	rec = call(e, http.MethodGet, "/api/v1/bookings/checkout-session/42", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhookCreatesBookingOnce(t *testing.T) {
	f := newBookingFixture()
	f.checkout.completed = &payment.CompletedCheckout{SessionID: "cs_test_1", TourID: 1, UserID: 3, Email: "laura@example.com", Price: 397}
	e := f.echoAs(nil)

	for i := 0; i < 2; i++ {
		rec := call(e, http.MethodPost, "/webhook-checkout", `{"type":"checkout.session.completed"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, map[string]any{"received": true}, decode(t, rec))
	}

	require.Len(t, f.bookings.rows, 1)
	b := f.bookings.rows[1]
	assert.True(t, b.Paid)
	assert.Equal(t, uint64(3), b.UserID)
	assert.Equal(t, "cs_test_1", *b.SessionID)

	require.Equal(t, []string{queue.QueueBookingCreated}, f.published.queues)
	ev := f.published.events[0].(queue.BookingCreatedEvent)
	assert.Equal(t, "The Forest Hiker", ev.TourName)
	assert.Equal(t, "laura@example.com", ev.Email)
	assert.Equal(t, "http://tours.test/my-tours", ev.URL)
}

func TestWebhookIgnoresOtherEvents(t *testing.T) {
	f := newBookingFixture()
	e := f.echoAs(nil)

	rec := call(e, http.MethodPost, "/webhook-checkout", `{"type":"payment_intent.created"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.bookings.rows)
	assert.Empty(t, f.published.queues)
}

func TestWebhookBadSignature(t *testing.T) {
	f := newBookingFixture()
	f.checkout.err = apperr.New(apperr.BadRequest, "Webhook error: invalid signature")
	e := f.echoAs(nil)

	rec := call(e, http.MethodPost, "/webhook-checkout", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.bookings.rows)
}

func TestCreateBookingChecksReferences(t *testing.T) {
	f := newBookingFixture()
	e := f.echoAs(adminUser)

	rec := call(e, http.MethodPost, "/api/v1/bookings", `{"tour":42,"user":3,"price":100}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid tour: 42.", decode(t, rec)["message"])

	rec = call(e, http.MethodPost, "/api/v1/bookings", `{"tour":1,"user":77,"price":100}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid user: 77.", decode(t, rec)["message"])

	rec = call(e, http.MethodPost, "/api/v1/bookings", `{"tour":1,"user":3,"price":100,"sessionId":"forged"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	got := doc(t, rec)
	assert.Equal(t, true, got["paid"])
	assert.NotContains(t, got, "sessionId")
}

func TestMyBookings(t *testing.T) {
	f := newBookingFixture()
	require.NoError(t, f.bookings.Create(t.Context(), &model.Booking{TourID: 1, UserID: 3, Price: 397, Paid: true}))
	require.NoError(t, f.bookings.Create(t.Context(), &model.Booking{TourID: 1, UserID: 1, Price: 397, Paid: true}))

	rec := call(f.echoAs(plainUser), http.MethodGet, "/api/v1/bookings/my-bookings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["results"])
}
