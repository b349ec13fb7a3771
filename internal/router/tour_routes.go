package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tour-booking/internal/handler"
	"github.com/iliyamo/tour-booking/internal/middleware"
	"github.com/iliyamo/tour-booking/internal/model"
)

// RegisterTours registers /api/v1/tours.  Reads are public; writes need
// an admin or lead guide.  The aggregate endpoints sit behind the response
// cache, and the nested review routes share the review handler.
func RegisterTours(v1 *echo.Group, h *handler.TourHandler, rv *handler.ReviewHandler, auth middleware.Authenticator, cache echo.MiddlewareFunc) {
	protect := middleware.Protect(auth)
	staff := middleware.RestrictTo(model.RoleAdmin, model.RoleLeadGuide)

	g := v1.Group("/tours")
	g.GET("/top-5-cheap", h.GetAll, handler.AliasTopTours, cache)
	g.GET("/get-tour-stats", h.GetTourStats, cache)
	g.GET("/monthly-plan/:year", h.GetMonthlyPlan, protect,
		middleware.RestrictTo(model.RoleAdmin, model.RoleLeadGuide, model.RoleGuide))
	g.GET("/tours-within/:distance/center/:latlng/unit/:unit", h.GetToursWithin)
	g.GET("/distances/:latlng/unit/:unit", h.GetDistances)

	g.GET("", h.GetAll)
	g.POST("", h.CreateOne, protect, staff)
	g.GET("/:id", h.GetOne)
	g.PATCH("/:id", h.UpdateOne, protect, staff)
	g.DELETE("/:id", h.DeleteOne, protect, staff)

	// reviews of one tour
	g.GET("/:id/reviews", rv.GetAll, protect, handler.NestedTour)
	g.POST("/:id/reviews", rv.CreateOne, protect, middleware.RestrictTo(model.RoleUser), handler.NestedTour)
}

// RegisterReviews registers /api/v1/reviews.  Every route needs a session.
func RegisterReviews(v1 *echo.Group, h *handler.ReviewHandler, auth middleware.Authenticator) {
	protect := middleware.Protect(auth)
	authors := middleware.RestrictTo(model.RoleUser, model.RoleAdmin)

	g := v1.Group("/reviews")
	g.GET("", h.GetAll, protect)
	g.POST("", h.CreateOne, protect, middleware.RestrictTo(model.RoleUser))
	g.GET("/:id", h.GetOne, protect)
	g.PATCH("/:id", h.UpdateOne, protect, authors)
	g.DELETE("/:id", h.DeleteOne, protect, authors)
}
