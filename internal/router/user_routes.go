package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tour-booking/internal/handler"
	"github.com/iliyamo/tour-booking/internal/middleware"
	"github.com/iliyamo/tour-booking/internal/model"
)

// RegisterUsers registers /api/v1/users: the session endpoints, the
// profile of the logged in user and the admin user management.
func RegisterUsers(v1 *echo.Group, a *handler.AuthHandler, h *handler.UserHandler, auth middleware.Authenticator) {
	protect := middleware.Protect(auth)
	admin := middleware.RestrictTo(model.RoleAdmin)

	g := v1.Group("/users")
	g.POST("/signup", a.Signup)
	g.POST("/login", a.Login)
	g.POST("/logout", a.Logout)
	g.POST("/forgotPassword", a.ForgotPassword)
	g.PATCH("/resetPassword/:token", a.ResetPassword)

	g.PATCH("/updateMyPassword", a.UpdatePassword, protect)
	g.PATCH("/updatePassword", a.UpdatePassword, protect)
	g.GET("/me", h.GetMe, protect)
	g.PATCH("/updateMe", h.UpdateMe, protect)
	g.DELETE("/deleteMe", h.DeleteMe, protect)

	g.GET("", h.GetAll, protect, admin)
	g.POST("", h.CreateUser, protect, admin)
	g.GET("/:id", h.GetOne, protect, admin)
	g.PATCH("/:id", h.UpdateOne, protect, admin)
	g.DELETE("/:id", h.DeleteOne, protect, admin)
}
