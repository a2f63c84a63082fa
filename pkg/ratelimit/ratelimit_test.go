package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestMemoryStoreResetsAfterWindow(t *testing.T) {
	c := &clock{t: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)}
	s := NewMemoryStore(c.now)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		n, reset, err := s.Hit(ctx, "1.2.3.4", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, n)
		assert.Equal(t, c.t.Add(time.Minute), reset)
	}

	c.t = c.t.Add(time.Minute)
	n, _, err := s.Hit(ctx, "1.2.3.4", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	c.t = c.t.Add(2 * time.Minute)
	s.Sweep()
	assert.Empty(t, s.windows)
}

type brokenStore struct{}

func (brokenStore) Hit(context.Context, string, time.Duration) (int64, time.Time, error) {
	return 0, time.Time{}, errors.New("redis down")
}

func router(store Store, limit int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware(store, limit, 15*time.Minute))
	r.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return r
}

func hit(r *gin.Engine) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMiddlewareBlocksAfterLimit(t *testing.T) {
	r := router(NewMemoryStore(nil), 2)

	first := hit(r)
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, first.Header().Get("X-RateLimit-Reset"))

	assert.Equal(t, http.StatusOK, hit(r).Code)

	blocked := hit(r)
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.Equal(t, "0", blocked.Header().Get("X-RateLimit-Remaining"))
	assert.JSONEq(t, `{"error": "Too many requests from this IP, please try again later."}`, blocked.Body.String())
}

func TestMiddlewareFailsOpen(t *testing.T) {
	r := router(brokenStore{}, 1)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, hit(r).Code)
	}
}
