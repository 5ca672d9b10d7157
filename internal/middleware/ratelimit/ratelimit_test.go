package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phrasehunt/internal/gameerr"
	"phrasehunt/internal/logger"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newRedisLimiter(t *testing.T, clk *clock) (*RedisLimiter, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	l := NewRedisLimiter(client, logger.Discard())
	l.now = clk.now
	return l, mr
}

func newMemoryLimiter(t *testing.T, clk *clock) *MemoryLimiter {
	l := NewMemoryLimiter()
	l.now = clk.now
	t.Cleanup(l.Close)
	return l
}

var backends = []string{"redis", "memory"}

func newLimiter(t *testing.T, backend string, clk *clock) Limiter {
	if backend == "redis" {
		l, _ := newRedisLimiter(t, clk)
		return l
	}
	return newMemoryLimiter(t, clk)
}

func TestLimiter_SlidingWindow(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			clk := &clock{t: start}
			l := newLimiter(t, backend, clk)
			ctx := context.Background()

			for i := 0; i < 3; i++ {
				res := l.Check(ctx, "act", "alice", time.Minute, 3)
				require.True(t, res.Allowed, "request %d", i)
				assert.Equal(t, 2-i, res.Remaining)
				clk.advance(10 * time.Second)
			}

			res := l.Check(ctx, "act", "alice", time.Minute, 3)
			assert.False(t, res.Allowed)
			assert.Equal(t, 0, res.Remaining)
			assert.WithinDuration(t, start.Add(time.Minute), res.ResetTime, 0)

			// Other identifiers and actions are independent.
			assert.True(t, l.Check(ctx, "act", "bob", time.Minute, 3).Allowed)
			assert.True(t, l.Check(ctx, "other", "alice", time.Minute, 3).Allowed)

			// Once the first event leaves the window one slot frees up.
			clk.t = start.Add(time.Minute + time.Millisecond)
			res = l.Check(ctx, "act", "alice", time.Minute, 3)
			assert.True(t, res.Allowed)
			assert.Equal(t, 0, res.Remaining)
		})
	}
}

func TestLimiter_RejectedRequestsAreNotRecorded(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			clk := &clock{t: start}
			l := newLimiter(t, backend, clk)
			ctx := context.Background()

			require.True(t, l.Check(ctx, "act", "alice", time.Minute, 1).Allowed)
			for i := 0; i < 5; i++ {
				clk.advance(5 * time.Second)
				assert.False(t, l.Check(ctx, "act", "alice", time.Minute, 1).Allowed)
			}

			// Only the admitted event counts, so the window reopens a minute after it.
			clk.t = start.Add(time.Minute + time.Second)
			assert.True(t, l.Check(ctx, "act", "alice", time.Minute, 1).Allowed)
		})
	}
}

func TestRedisLimiter_FailsOpen(t *testing.T) {
	clk := &clock{t: time.Now()}
	l, mr := newRedisLimiter(t, clk)
	mr.Close()

	res := l.Check(context.Background(), "act", "alice", time.Minute, 1)
	assert.True(t, res.Allowed)
	assert.True(t, res.Degraded)
	assert.Equal(t, 0, res.Remaining)
}

func TestCreationPolicy(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clk := &clock{t: start}
	policy := NewCreationPolicy(newMemoryLimiter(t, clk), 3, 10)
	ctx := context.Background()

	t.Run("fourth creation within a minute is rejected", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			q := policy.Allow(ctx, "alice")
			require.True(t, q.Allowed)
		}
		q := policy.Allow(ctx, "alice")
		assert.False(t, q.Allowed)
		assert.Equal(t, 0, q.MinuteRemaining)
		assert.NotEmpty(t, q.Reason)
	})

	t.Run("daily window applies across minutes", func(t *testing.T) {
		allowed := 3
		for i := 0; i < 10; i++ {
			clk.advance(2 * time.Minute)
			if policy.Allow(ctx, "alice").Allowed {
				allowed++
			}
		}
		assert.Equal(t, 10, allowed)

		clk.advance(2 * time.Minute)
		q := policy.Allow(ctx, "alice")
		assert.False(t, q.Allowed)
		assert.Equal(t, 0, q.DayRemaining)
	})
}

func TestMiddleware(t *testing.T) {
	clk := &clock{t: time.Now()}
	l := newMemoryLimiter(t, clk)
	e := echo.New()
	h := Middleware(l, "guess", time.Minute, 1)(func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})

	call := func(user string) error {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("X-User-Id", user)
		return h(e.NewContext(req, httptest.NewRecorder()))
	}

	require.NoError(t, call("alice"))
	err := call("alice")
	assert.ErrorIs(t, err, gameerr.ErrRateLimited)
	require.NoError(t, call("bob"))
}
