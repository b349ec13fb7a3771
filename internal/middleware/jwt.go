package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
	"context"
	"strconv"
	"strings" // string utilities for prefix checking and trimming

	"github.com/labstack/echo/v4" // Echo framework used for defining middleware and handlers

	"github.com/iliyamo/tour-booking/internal/apperr"
	"github.com/iliyamo/tour-booking/internal/metrics"
	"github.com/iliyamo/tour-booking/internal/model"
)

// CookieName is the session cookie.  LoggedOut is the value written by
// logout; it is never treated as a token.
const (
	CookieName = "jwt"
	LoggedOut  = "loggedout"
)

// Context keys set by Protect and IsLoggedIn.
const (
	KeyUser   = "user"
	KeyUserID = "user_id"
	KeyRole   = "role"
)

// MsgNotLoggedIn is returned when a protected route sees no token.
const MsgNotLoggedIn = "You are not logged in! Please log in to get access."

// Authenticator verifies a raw session token and returns its live user.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (*model.User, error)
}

// tokenFrom reads the session token from the Authorization header or,
// failing that, the jwt cookie.
func tokenFrom(c echo.Context) string {
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	if strings.HasPrefix(auth, "Bearer ") {
		if raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")); raw != "" {
			return raw
		}
	}
	if ck, err := c.Cookie(CookieName); err == nil && ck.Value != "" && ck.Value != LoggedOut {
		return ck.Value
	}
	return ""
}

// setIdentity stores the user and the user_id/role keys in the context.
func setIdentity(c echo.Context, u *model.User) {
	c.Set(KeyUser, u)
	c.Set(KeyUserID, strconv.FormatUint(u.ID, 10))
	c.Set(KeyRole, u.Role)
}

// Protect rejects requests without a valid session.  The token comes from
// a Bearer header or the jwt cookie; the user must still exist and must
// not have changed the password after the token was issued.  Handlers read
// the user through CurrentUser.
func Protect(auth Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := tokenFrom(c)
			if raw == "" {
				metrics.RecordAuthFailure("missing")
				return apperr.New(apperr.Authentication, MsgNotLoggedIn)
			}
			u, err := auth.Authenticate(c.Request().Context(), raw)
			if err != nil {
				return err
			}
			setIdentity(c, u)
			return next(c)
		}
	}
}

// IsLoggedIn is the soft variant used by rendered pages.  It only looks at
// the cookie, never fails and leaves the request anonymous when the cookie
// does not resolve to a user.
func IsLoggedIn(auth Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ck, err := c.Cookie(CookieName)
			if err != nil || ck.Value == "" || ck.Value == LoggedOut {
				return next(c)
			}
			if u, err := auth.Authenticate(c.Request().Context(), ck.Value); err == nil {
				setIdentity(c, u)
			}
			return next(c)
		}
	}
}
