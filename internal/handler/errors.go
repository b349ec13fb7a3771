package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tour-booking/internal/apperr"
	"github.com/iliyamo/tour-booking/internal/logger"
	"github.com/iliyamo/tour-booking/internal/repository"
)

const (
	msgGeneric     = "Something went very wrong!"
	msgPageGeneric = "Please try again later."
	msgConflict    = "This document was changed by another request. Please reload it and try again."
	apiPrefix      = "/api"
	errorPageTitle = "Something went wrong!"
	errorTemplate  = "error"
)

// classify extends apperr.Classify with the repository sentinels and the
// router's unmatched-route error.
func classify(c echo.Context, err error) *apperr.Error {
	if ae, ok := apperr.As(err); ok {
		return ae
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperr.Wrap(err, apperr.NotFound, apperr.NotFoundID().Message)
	case errors.Is(err, repository.ErrConflict):
		return apperr.Wrap(err, apperr.DuplicateKey, msgConflict)
	case errors.Is(err, echo.ErrNotFound):
		return apperr.Wrap(err, apperr.NotFound, "Can't find "+c.Request().URL.RequestURI()+" on this server!")
	}
	return apperr.Classify(err)
}

// NewErrorHandler returns the single place where errors become responses.
// API paths get a JSON envelope, everything else the rendered error page.
// In development every detail is exposed; in production only operational
// messages are.
func NewErrorHandler(production bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		ae := classify(c, err)

		if !ae.Operational() {
			logger.Ctx(c.Request().Context()).Error().
				Err(err).Str("stack", ae.Stack()).Str("path", c.Path()).
				Msg("unexpected error")
		}

		var werr error
		switch {
		case c.Request().Method == http.MethodHead:
			werr = c.NoContent(ae.Status)
		case strings.HasPrefix(c.Request().URL.Path, apiPrefix):
			werr = c.JSON(ae.Status, apiBody(ae, err, production))
		default:
			werr = renderErrorPage(c, ae, production)
		}
		if werr != nil {
			logger.Ctx(c.Request().Context()).Error().Err(werr).Msg("write error response")
		}
	}
}

func apiBody(ae *apperr.Error, err error, production bool) echo.Map {
	if !production {
		return echo.Map{
			"status":  ae.StatusText(),
			"message": ae.Message,
			"kind":    ae.Kind,
			"error":   err.Error(),
			"stack":   ae.Stack(),
		}
	}
	if ae.Operational() {
		return echo.Map{"status": ae.StatusText(), "message": ae.Message}
	}
	return echo.Map{"status": "error", "message": msgGeneric}
}

func renderErrorPage(c echo.Context, ae *apperr.Error, production bool) error {
	msg := ae.Message
	if production && !ae.Operational() {
		msg = msgPageGeneric
	}
	if c.Echo().Renderer == nil {
		return c.String(ae.Status, msg)
	}
	return c.Render(ae.Status, errorTemplate, pageData(c, errorPageTitle, echo.Map{"Msg": msg}))
}
