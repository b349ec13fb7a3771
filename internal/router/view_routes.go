package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tour-booking/internal/handler"
	"github.com/iliyamo/tour-booking/internal/middleware"
)

// RegisterViews registers the HTML pages.  Every page resolves the
// session softly; the account pages require it.
func RegisterViews(e *echo.Echo, h *handler.ViewHandler, auth middleware.Authenticator) {
	soft := middleware.IsLoggedIn(auth)
	protect := middleware.Protect(auth)

	e.GET("/", h.Overview, soft)
	e.GET("/tour/:slug", h.Tour, soft)
	e.GET("/login", h.Login, soft)
	e.GET("/me", h.Account, protect)
	e.GET("/my-tours", h.MyTours, protect)
}
