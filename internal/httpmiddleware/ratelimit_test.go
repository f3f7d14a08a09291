package httpmiddleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleTokenBucket_ExhaustsAndRefills(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewSimpleTokenBucket(3, 60)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		assert.True(t, l.allow("k"), "request %d", i)
	}
	assert.False(t, l.allow("k"))
	assert.True(t, l.allow("other"), "keys are independent")

	now = now.Add(90 * time.Second)
	for i := 0; i < 3; i++ {
		assert.True(t, l.allow("k"), "refilled request %d", i)
	}
	assert.False(t, l.allow("k"), "refill is capped at capacity")
}

type stubLimiter struct {
	ok  bool
	err error
}

func (s stubLimiter) Allow(context.Context, string) (bool, error) { return s.ok, s.err }

func serve(l Limiter) int {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware(l, ByClientIP))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	return rec.Code
}

func TestMiddleware(t *testing.T) {
	assert.Equal(t, http.StatusNoContent, serve(stubLimiter{ok: true}))
	assert.Equal(t, http.StatusTooManyRequests, serve(stubLimiter{ok: false}))
	assert.Equal(t, http.StatusNoContent, serve(stubLimiter{err: errors.New("redis down")}), "fails open")
}

func TestRedisWindow(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	l := NewRedisWindow(client, "test-ratelimit", 2)
	fixed := time.Now()
	l.now = func() time.Time { return fixed }
	key := uuid.NewString()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := l.Allow(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}
