package handler // handler defines http handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tour-booking/internal/apperr"
	"github.com/iliyamo/tour-booking/internal/middleware"
	"github.com/iliyamo/tour-booking/internal/model"
)

// dbTimeout bounds every repository call made by a handler.
const dbTimeout = 5 * time.Second

// dbContext derives the per-request context used for repository calls.
func dbContext(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), dbTimeout)
}

// success writes {status:"success", data:data}.
func success(c echo.Context, status int, data any) error {
	return c.JSON(status, echo.Map{"status": "success", "data": data})
}

// document writes a single document as {status, data:{data:doc}}.
func document(c echo.Context, status int, doc any) error {
	return success(c, status, echo.Map{"data": doc})
}

// list writes a collection as {status, results, data:{data:docs}}.
func list(c echo.Context, results int, docs any) error {
	return c.JSON(http.StatusOK, echo.Map{
		"status":  "success",
		"results": results,
		"data":    echo.Map{"data": docs},
	})
}

// parseID reads a positive numeric path parameter.
func parseID(c echo.Context, name string) (uint64, error) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Newf(apperr.InvalidReference, "Invalid %s: %s.", name, raw)
	}
	return id, nil
}

// currentUser returns the user attached by Protect.  Handlers mounted
// behind Protect can rely on it; the error covers wiring mistakes.
func currentUser(c echo.Context) (*model.User, error) {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		return nil, apperr.New(apperr.Authentication, middleware.MsgNotLoggedIn)
	}
	return u, nil
}

// baseURL is the public scheme and host used in links sent to users.
func baseURL(c echo.Context, configured string) string {
	if configured != "" {
		return configured
	}
	return c.Scheme() + "://" + c.Request().Host
}
