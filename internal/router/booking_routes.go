package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tour-booking/internal/handler"
	"github.com/iliyamo/tour-booking/internal/middleware"
	"github.com/iliyamo/tour-booking/internal/model"
)

// RegisterBookings registers /api/v1/bookings.  Every route needs a
// session; plain CRUD is limited to admins and lead guides.
func RegisterBookings(v1 *echo.Group, h *handler.BookingHandler, auth middleware.Authenticator) {
	protect := middleware.Protect(auth)
	staff := middleware.RestrictTo(model.RoleAdmin, model.RoleLeadGuide)

	g := v1.Group("/bookings")
	g.GET("/checkout-session/:tourId", h.GetCheckoutSession, protect)
	g.GET("/my-bookings", h.GetMyBookings, protect)

	g.GET("", h.GetAll, protect, staff)
	g.POST("", h.CreateOne, protect, staff)
	g.GET("/:id", h.GetOne, protect, staff)
	g.PATCH("/:id", h.UpdateOne, protect, staff)
	g.DELETE("/:id", h.DeleteOne, protect, staff)
}
