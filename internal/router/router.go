package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/tour-booking/internal/config"
	"github.com/iliyamo/tour-booking/internal/handler"
	"github.com/iliyamo/tour-booking/internal/middleware"
	"github.com/iliyamo/tour-booking/internal/validation"
)

// BodyLimit caps request bodies.
const BodyLimit = "50K"

// Deps is everything the routes are built from.  Redis and Cache may be
// nil.
type Deps struct {
	Cfg       config.Config
	RateLimit config.RateLimitConfig
	Cache     *middleware.ResponseCache
	Redis     *redis.Client
	Auth      middleware.Authenticator
	DB        handler.Pinger
	Renderer  echo.Renderer

	AuthH    *handler.AuthHandler
	Users    *handler.UserHandler
	Tours    *handler.TourHandler
	Reviews  *handler.ReviewHandler
	Bookings *handler.BookingHandler
	Views    *handler.ViewHandler
}

// New builds the Echo instance with the global middleware chain and every
// route registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = handler.JSONSerializer{}
	e.Validator = validation.Validator{}
	e.Renderer = d.Renderer
	e.HTTPErrorHandler = handler.NewErrorHandler(d.Cfg.IsProduction())

	e.Pre(echomw.RemoveTrailingSlash())
	e.Use(
		middleware.RequestID(),
		middleware.RequestLog(),
		echomw.Recover(),
		echomw.Secure(),
		echomw.CORS(),
		echomw.BodyLimit(BodyLimit),
	)

	RegisterRoutes(e, d.DB)

	// the webhook is called by the payment provider, outside the /api limiter
	e.POST("/webhook-checkout", d.Bookings.WebhookCheckout)

	api := e.Group("/api", middleware.NewTokenBucket(d.RateLimit, d.Redis))
	v1 := api.Group("/v1")
	RegisterTours(v1, d.Tours, d.Reviews, d.Auth, d.Cache.Middleware())
	RegisterReviews(v1, d.Reviews, d.Auth)
	RegisterUsers(v1, d.AuthH, d.Users, d.Auth)
	RegisterBookings(v1, d.Bookings, d.Auth)
	RegisterViews(e, d.Views, d.Auth)
	return e
}

// RegisterRoutes registers routes that do not require authentication:
// liveness, readiness and the Prometheus scrape endpoint.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health)
	if db != nil {
		e.GET("/readyz", handler.Ready(db))
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}
