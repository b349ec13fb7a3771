package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/tour-booking/internal/apperr"
	"github.com/iliyamo/tour-booking/internal/config"
	"github.com/iliyamo/tour-booking/internal/logger"
	"github.com/iliyamo/tour-booking/internal/model"
)

type fakeAuth map[string]*model.User

func (f fakeAuth) Authenticate(_ context.Context, raw string) (*model.User, error) {
	if u, ok := f[raw]; ok {
		return u, nil
	}
	return nil, apperr.New(apperr.Authentication, "Invalid token. Please log in again!")
}

// newEcho returns an echo instance whose error handler writes the status
// and message of classified errors.
func newEcho() *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		ae := apperr.Classify(err)
		_ = c.JSON(ae.Status, echo.Map{"status": ae.StatusText(), "message": ae.Message})
	}
	return e
}

func do(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

var (
	admin = &model.User{ID: 1, Name: "Admin", Role: model.RoleAdmin}
	guide = &model.User{ID: 2, Name: "Guide", Role: model.RoleGuide}
	auth  = fakeAuth{"admin-token": admin, "guide-token": guide}
)

func protectedEcho() *echo.Echo {
	e := newEcho()
	e.GET("/me", func(c echo.Context) error {
		u, ok := CurrentUser(c)
		if !ok {
			return c.String(http.StatusOK, "anonymous")
		}
		return c.String(http.StatusOK, u.Name+":"+c.Get(KeyUserID).(string)+":"+c.Get(KeyRole).(string))
	}, Protect(auth))
	e.DELETE("/tours/:id", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	}, Protect(auth), RestrictTo(model.RoleAdmin, model.RoleLeadGuide))
	e.GET("/page", func(c echo.Context) error {
		if u, ok := CurrentUser(c); ok {
			return c.String(http.StatusOK, "hello "+u.Name)
		}
		return c.String(http.StatusOK, "anonymous")
	}, IsLoggedIn(auth))
	return e
}

func TestProtectWithoutToken(t *testing.T) {
	rec := do(protectedEcho(), httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), MsgNotLoggedIn)
}

func TestProtectBearer(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer admin-token")
	rec := do(protectedEcho(), req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Admin:1:admin", rec.Body.String())
}

func TestProtectCookieAndLoggedOutSentinel(t *testing.T) {
	e := protectedEcho()

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "guide-token"})
	rec := do(e, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: LoggedOut})
	rec = do(e, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProtectInvalidToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer forged")
	rec := do(protectedEcho(), req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid token")
}

func TestRestrictTo(t *testing.T) {
	e := protectedEcho()

	req := httptest.NewRequest(http.MethodDelete, "/tours/3", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer guide-token")
	rec := do(e, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), MsgForbidden)

	req = httptest.NewRequest(http.MethodDelete, "/tours/3", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer admin-token")
	rec = do(e, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRestrictToWithoutProtect(t *testing.T) {
	e := newEcho()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, RestrictTo(model.RoleAdmin))
	rec := do(e, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIsLoggedInNeverFails(t *testing.T) {
	e := protectedEcho()

	rec := do(e, httptest.NewRequest(http.MethodGet, "/page", nil))
	assert.Equal(t, "anonymous", rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/page", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "garbage"})
	rec = do(e, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anonymous", rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/page", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "guide-token"})
	rec = do(e, req)
	assert.Equal(t, "hello Guide", rec.Body.String())
}

func TestTokenBucketInMemory(t *testing.T) {
	cfg := config.RateLimitConfig{
		Enabled: true, Capacity: 3, RefillTokens: 3, RefillInterval: time.Hour,
		TTL: 2 * time.Hour, KeyStrategy: "ip", Prefix: "rl",
	}
	e := newEcho()
	api := e.Group("/api", NewTokenBucket(cfg, nil))
	api.GET("/ping", func(c echo.Context) error { return c.String(http.StatusOK, "pong") })

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := do(e, req)
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i)
		assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, strconv.Itoa(2-i), rec.Header().Get("X-RateLimit-Remaining"))
	}

	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	rec := do(e, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), MsgRateLimited)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	other := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	other.RemoteAddr = "10.0.0.2:1234"
	assert.Equal(t, http.StatusOK, do(e, other).Code)
}

func TestTokenBucketDisabled(t *testing.T) {
	e := newEcho()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, NewTokenBucket(config.RateLimitConfig{}, nil))
	assert.Equal(t, http.StatusOK, do(e, httptest.NewRequest(http.MethodGet, "/x", nil)).Code)
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tours", nil)
	req.RemoteAddr = "10.1.1.1:80"
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/api/v1/tours")

	assert.Equal(t, "rl:ip:10.1.1.1", buildRateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: "ip"}, c))
	assert.Equal(t, "rl:user:guest", buildRateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: "user"}, c))
	c.Set(KeyUserID, "42")
	assert.Equal(t, "rl:ip:10.1.1.1:user:42", buildRateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: "ip_user"}, c))
}

// memStore is an in-memory CacheStore.  Scan returns every match in one
// page.
type memStore struct {
	data map[string]string
	ttl  map[string]time.Duration
}

func newMemStore() *memStore {
	return &memStore{data: map[string]string{}, ttl: map[string]time.Duration{}}
}

func (m *memStore) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *memStore) Set(ctx context.Context, key string, value any, exp time.Duration) *redis.StatusCmd {
	m.data[key] = string(value.([]byte))
	m.ttl[key] = exp
	return redis.NewStatusResult("OK", nil)
}

func (m *memStore) Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd {
	prefix := strings.TrimSuffix(match, "*")
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return redis.NewScanCmdResult(keys, 0, nil)
}

func (m *memStore) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(m.data, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func cacheEcho(rc *ResponseCache, price *int) *echo.Echo {
	e := newEcho()
	e.GET("/api/v1/tours/top-5-cheap", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"price": *price})
	}, rc.Middleware())
	e.GET("/api/v1/tours/missing", func(c echo.Context) error {
		return apperr.New(apperr.NotFound, "No document found with that ID")
	}, rc.Middleware())
	return e
}

func TestResponseCacheServesHitsUntilEvicted(t *testing.T) {
	store := newMemStore()
	cfg := config.CacheConfig{Enabled: true, TTL: time.Minute, Prefix: "tours-cache", MaxBodyBytes: 1 << 10}
	rc := NewResponseCache(cfg, store)
	price := 397
	e := cacheEcho(rc, &price)
	get := func(target string) *httptest.ResponseRecorder {
		return do(e, httptest.NewRequest(http.MethodGet, target, nil))
	}

	rec := get("/api/v1/tours/top-5-cheap")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Equal(t, time.Minute, store.ttl["tours-cache:/api/v1/tours/top-5-cheap"])

	price = 450
	rec = get("/api/v1/tours/top-5-cheap")
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.JSONEq(t, `{"price":397}`, rec.Body.String())
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "application/json")

	// another query string is another entry
	assert.Equal(t, "MISS", get("/api/v1/tours/top-5-cheap?page=2").Header().Get("X-Cache"))

	store.data["sessions:1"] = "kept"
	require.NoError(t, rc.Evict(context.Background()))
	assert.Equal(t, map[string]string{"sessions:1": "kept"}, store.data)

	rec = get("/api/v1/tours/top-5-cheap")
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.JSONEq(t, `{"price":450}`, rec.Body.String())
}

func TestResponseCacheSkipsErrorsAndLargeBodies(t *testing.T) {
	store := newMemStore()
	rc := NewResponseCache(config.CacheConfig{Enabled: true, TTL: time.Minute, Prefix: "tours-cache", MaxBodyBytes: 8}, store)
	price := 397
	e := cacheEcho(rc, &price)

	rec := do(e, httptest.NewRequest(http.MethodGet, "/api/v1/tours/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(e, httptest.NewRequest(http.MethodGet, "/api/v1/tours/top-5-cheap", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"price":397}`, rec.Body.String())
	assert.Empty(t, store.data)
}

func TestResponseCacheDisabled(t *testing.T) {
	rc := NewResponseCache(config.CacheConfig{Enabled: false}, newMemStore())
	assert.Nil(t, rc)
	assert.NoError(t, rc.Evict(context.Background()))

	price := 397
	rec := do(cacheEcho(rc, &price), httptest.NewRequest(http.MethodGet, "/api/v1/tours/top-5-cheap", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Cache"))
}

func TestRequestIDAndLog(t *testing.T) {
	e := newEcho()
	var seen string
	e.Use(RequestID(), RequestLog())
	e.GET("/ok", func(c echo.Context) error {
		seen = logger.RequestID(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})
	e.GET("/fail", func(c echo.Context) error {
		return apperr.New(apperr.NotFound, "No document found with that ID")
	})

	rec := do(e, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(echo.HeaderXRequestID))

	req := httptest.NewRequest(http.MethodGet, "/fail", nil)
	req.Header.Set(echo.HeaderXRequestID, "abc-123")
	rec = do(e, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "abc-123", rec.Header().Get(echo.HeaderXRequestID))
}
