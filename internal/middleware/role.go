package middleware // middleware provides shared request processing for handlers

import (
	"github.com/labstack/echo/v4" // echo provides middleware chaining and context

	"github.com/iliyamo/tour-booking/internal/apperr"
)

// MsgForbidden is returned when the user's role is not allowed.
const MsgForbidden = "You do not have permission to perform this action"

// RestrictTo returns a middleware that lets the request through only when
// the authenticated user has one of roles.  It must run after Protect; a
// request without a user is rejected with 401.
func RestrictTo(roles ...string) echo.MiddlewareFunc {
	// Build a set of allowed roles for constant‑time lookups.
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			u, ok := CurrentUser(c)
			if !ok {
				return apperr.New(apperr.Authentication, MsgNotLoggedIn)
			}
			if !allowed[u.Role] {
				return apperr.New(apperr.Authorization, MsgForbidden)
			}
			return next(c)
		}
	}
}
