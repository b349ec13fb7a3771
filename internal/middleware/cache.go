package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/tour-booking/internal/config"
	"github.com/iliyamo/tour-booking/internal/logger"
)

// CacheStore is the part of the Redis client the response cache uses.
type CacheStore interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// cachedResponse is what a cache entry holds.
type cachedResponse struct {
	ContentType string `json:"contentType"`
	Body        []byte `json:"body"`
}

// ResponseCache keeps the 200 responses of the tour aggregate routes in
// Redis, all under one key prefix.  Tour and rating writes call Evict so
// the aggregates never outlive the data they were computed from.
//
// A nil *ResponseCache is valid: Middleware passes through and Evict does
// nothing.
type ResponseCache struct {
	cfg   config.CacheConfig
	store CacheStore
}

// NewResponseCache returns nil when caching is disabled.
func NewResponseCache(cfg config.CacheConfig, store CacheStore) *ResponseCache {
	if !cfg.Enabled || store == nil {
		return nil
	}
	return &ResponseCache{cfg: cfg, store: store}
}

func (rc *ResponseCache) key(r *http.Request) string {
	return rc.cfg.Prefix + ":" + r.URL.RequestURI()
}

// Middleware serves GET requests from the cache and stores fresh 200
// responses.  Responses larger than MaxBodyBytes are served but not stored.
func (rc *ResponseCache) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if rc == nil {
			return next
		}
		return func(c echo.Context) error {
			req := c.Request()
			if req.Method != http.MethodGet {
				return next(c)
			}
			ctx := req.Context()
			key := rc.key(req)

			if raw, err := rc.store.Get(ctx, key).Bytes(); err == nil {
				var hit cachedResponse
				if json.Unmarshal(raw, &hit) == nil {
					c.Response().Header().Set("X-Cache", "HIT")
					return c.Blob(http.StatusOK, hit.ContentType, hit.Body)
				}
			} else if !errors.Is(err, redis.Nil) {
				logger.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("cache: read failed")
			}

			tee := &teeWriter{ResponseWriter: c.Response().Writer, limit: rc.cfg.MaxBodyBytes}
			c.Response().Writer = tee
			c.Response().Header().Set("X-Cache", "MISS")
			if err := next(c); err != nil {
				return err
			}
			if c.Response().Status != http.StatusOK || tee.overflow {
				return nil
			}
			payload, err := json.Marshal(cachedResponse{
				ContentType: c.Response().Header().Get(echo.HeaderContentType),
				Body:        tee.buf.Bytes(),
			})
			if err != nil {
				return nil
			}
			if err := rc.store.Set(context.WithoutCancel(ctx), key, payload, rc.cfg.TTL).Err(); err != nil {
				logger.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("cache: store failed")
			}
			return nil
		}
	}
}

// Evict drops every cached aggregate.
func (rc *ResponseCache) Evict(ctx context.Context) error {
	if rc == nil {
		return nil
	}
	var cursor uint64
	for {
		keys, next, err := rc.store.Scan(ctx, cursor, rc.cfg.Prefix+":*", 100).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := rc.store.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// teeWriter copies the body it forwards, up to limit bytes.
type teeWriter struct {
	http.ResponseWriter
	buf      bytes.Buffer
	limit    int
	overflow bool
}

func (w *teeWriter) Write(b []byte) (int, error) {
	if !w.overflow {
		if w.limit > 0 && w.buf.Len()+len(b) > w.limit {
			w.overflow = true
			w.buf.Reset()
		} else {
			w.buf.Write(b)
		}
	}
	return w.ResponseWriter.Write(b)
}
