package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/tour-booking/internal/apperr"
	"github.com/iliyamo/tour-booking/internal/config"
	"github.com/iliyamo/tour-booking/internal/handler"
	"github.com/iliyamo/tour-booking/internal/middleware"
	"github.com/iliyamo/tour-booking/internal/model"
	"github.com/iliyamo/tour-booking/internal/view"
)

type tokens map[string]*model.User

func (t tokens) Authenticate(_ context.Context, raw string) (*model.User, error) {
	if u, ok := t[raw]; ok {
		return u, nil
	}
	return nil, apperr.New(apperr.Authentication, "Invalid token. Please log in again!")
}

var sessions = tokens{
	"user":  {ID: 3, Name: "Laura Wilson", Role: model.RoleUser},
	"guide": {ID: 4, Name: "Kate Guide", Role: model.RoleGuide},
}

// newTestRouter wires handlers without stores; the requests below never
// get past the middleware that guards them.
func newTestRouter(t *testing.T, rl config.RateLimitConfig) http.Handler {
	t.Helper()
	renderer, err := view.New()
	require.NoError(t, err)
	cfg := config.Config{Env: config.EnvProduction}
	return New(Deps{
		Cfg:       cfg,
		RateLimit: rl,
		Auth:      sessions,
		Renderer:  renderer,
		AuthH:     handler.NewAuthHandler(cfg, nil),
		Users:     handler.NewUserHandler(nil, 0),
		Tours:     handler.NewTourHandler(nil, nil, nil, nil),
		Reviews:   handler.NewReviewHandler(nil, nil, nil),
		Bookings:  handler.NewBookingHandler(nil, nil, nil, nil, nil, ""),
		Views:     handler.NewViewHandler(nil, nil, nil),
	})
}

func get(h http.Handler, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestRouter(t, config.RateLimitConfig{})

	rec := get(h, "/healthz/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec = get(h, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "# TYPE")
}

func TestRouteGuards(t *testing.T) {
	h := newTestRouter(t, config.RateLimitConfig{})

	rec := get(h, "/api/v1/users/me", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), middleware.MsgNotLoggedIn)

	rec = get(h, "/api/v1/users", "user")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = get(h, "/api/v1/bookings", "guide")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = get(h, "/api/v1/reviews", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = get(h, "/me", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
}

func TestUnknownRoutes(t *testing.T) {
	h := newTestRouter(t, config.RateLimitConfig{})

	rec := get(h, "/api/v1/nowhere", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"status":"fail","message":"Can't find /api/v1/nowhere on this server!"}`, rec.Body.String())

	rec = get(h, "/nowhere", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "on this server!")
}

func TestSecurityHeaders(t *testing.T) {
	h := newTestRouter(t, config.RateLimitConfig{})

	rec := get(h, "/healthz", "")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Frame-Options"))
}

func TestAPIRateLimit(t *testing.T) {
	h := newTestRouter(t, config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   2,
		RefillInterval: time.Hour,
		TTL:            time.Hour,
		KeyStrategy:    "ip",
		Prefix:         "rl",
	})

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusUnauthorized, get(h, "/api/v1/users/me", "").Code)
	}
	rec := get(h, "/api/v1/users/me", "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// pages are outside the limiter
	assert.Equal(t, http.StatusOK, get(h, "/healthz", "").Code)
}

func TestLogoutIsPost(t *testing.T) {
	h := newTestRouter(t, config.RateLimitConfig{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/logout", nil)
	req.AddCookie(&http.Cookie{Name: middleware.CookieName, Value: "user"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var cleared *http.Cookie
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == middleware.CookieName {
			cleared = ck
		}
	}
	require.NotNil(t, cleared)
	assert.Equal(t, middleware.LoggedOut, cleared.Value)
	assert.True(t, cleared.HttpOnly)

	assert.NotEqual(t, http.StatusOK, get(h, "/api/v1/users/logout", "").Code)
}
