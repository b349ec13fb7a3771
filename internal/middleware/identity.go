package middleware

// identity.go holds the helpers that read the identity stored in the Echo
// context by Protect or IsLoggedIn.

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tour-booking/internal/model"
)

// CurrentUser returns the authenticated user, if any.
func CurrentUser(c echo.Context) (*model.User, bool) {
	u, ok := c.Get(KeyUser).(*model.User)
	return u, ok && u != nil
}

// userID returns the authenticated user id as a string, or "guest".
func userID(c echo.Context) string {
	if v, ok := c.Get(KeyUserID).(string); ok && v != "" {
		return v
	}
	return "guest"
}
