package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const Message = "Too many requests from this IP, please try again later."

// Store counts hits per key inside a fixed window.
type Store interface {
	Hit(ctx context.Context, key string, window time.Duration) (count int64, resetAt time.Time, err error)
}

type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

type window struct {
	count     int64
	expiresAt time.Time
}

func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{windows: make(map[string]*window), now: now}
}

func (s *MemoryStore) Hit(_ context.Context, key string, d time.Duration) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w, ok := s.windows[key]
	if !ok || !now.Before(w.expiresAt) {
		w = &window{expiresAt: now.Add(d)}
		s.windows[key] = w
	}
	w.count++
	return w.count, w.expiresAt, nil
}

// Sweep drops expired windows.
func (s *MemoryStore) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for key, w := range s.windows {
		if !now.Before(w.expiresAt) {
			delete(s.windows, key)
		}
	}
}

type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "ratelimit:"}
}

// NewRedisStoreFromURL parses a redis:// URL and pings the server.
func NewRedisStoreFromURL(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}
	return NewRedisStore(client), nil
}

func (s *RedisStore) Hit(ctx context.Context, key string, d time.Duration) (int64, time.Time, error) {
	key = s.prefix + key
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, time.Time{}, err
	}
	if count == 1 {
		if err := s.client.Expire(ctx, key, d).Err(); err != nil {
			return 0, time.Time{}, err
		}
		return count, time.Now().Add(d), nil
	}
	ttl, err := s.client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, time.Time{}, err
	}
	if ttl < 0 {
		// Lost its expiry; start the window again.
		if err := s.client.Expire(ctx, key, d).Err(); err != nil {
			return 0, time.Time{}, err
		}
		ttl = d
	}
	return count, time.Now().Add(ttl), nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Middleware limits each client IP to limit requests per window. Store errors let the
// request through.
func Middleware(store Store, limit int, d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		count, resetAt, err := store.Hit(c.Request.Context(), c.ClientIP(), d)
		if err != nil {
			log.Warn().Err(err).Str("ip", c.ClientIP()).Msg("[RateLimit] Store unavailable, allowing request")
			c.Next()
			return
		}

		remaining := int64(limit) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", limit))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", resetAt.Unix()))

		if count > int64(limit) {
			c.Header("Retry-After", fmt.Sprintf("%d", int(time.Until(resetAt).Seconds())+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": Message})
			return
		}
		c.Next()
	}
}
