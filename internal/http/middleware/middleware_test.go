package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	echo "github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func ok(c echo.Context) error {
	return c.NoContent(http.StatusNoContent)
}

func serve(e *echo.Echo, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestAPIKeyMiddleware(t *testing.T) {
	e := echo.New()
	e.GET("/", ok, APIKeyMiddleware("s3cret"))

	assert.Equal(t, http.StatusUnauthorized, serve(e, "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(e, "wrong").Code)
	assert.Equal(t, http.StatusNoContent, serve(e, "s3cret").Code)
}

func TestAPIKeyMiddleware_Disabled(t *testing.T) {
	e := echo.New()
	e.GET("/", ok, APIKeyMiddleware(""))

	assert.Equal(t, http.StatusServiceUnavailable, serve(e, "anything").Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	now := time.Date(2024, 1, 11, 8, 0, 0, 250_000_000, time.UTC)
	e := echo.New()
	e.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) },
		RateLimitMiddleware(RateLimitConfig{
			Redis:          rdb,
			RPS:            2,
			Window:         time.Second,
			RetryAfterHint: true,
			Now:            func() time.Time { return now },
		}))

	assert.Equal(t, http.StatusNoContent, serve(e, "").Code)
	assert.Equal(t, http.StatusNoContent, serve(e, "").Code)

	rec := serve(e, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	now = now.Add(time.Second)
	assert.Equal(t, http.StatusNoContent, serve(e, "").Code, "next window")
}

func TestRateLimitMiddleware_NoRedisUsesLocalBucket(t *testing.T) {
	now := time.Date(2024, 1, 11, 8, 0, 0, 0, time.UTC)
	e := echo.New()
	e.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) },
		RateLimitMiddleware(RateLimitConfig{RPS: 1, Burst: 2, Now: func() time.Time { return now }}))

	assert.Equal(t, http.StatusNoContent, serve(e, "").Code)
	assert.Equal(t, http.StatusNoContent, serve(e, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(e, "").Code)

	now = now.Add(time.Second)
	assert.Equal(t, http.StatusNoContent, serve(e, "").Code, "one token refilled")
}

func TestRateLimitMiddleware_Disabled(t *testing.T) {
	e := echo.New()
	e.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) },
		RateLimitMiddleware(RateLimitConfig{}))

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusNoContent, serve(e, "").Code)
	}
}
