package ratelimit

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Result is the outcome of one sliding-window check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetTime time.Time
	// Degraded is set when the backing store failed and the request was let through.
	Degraded bool
}

// Limiter admits at most max events per identifier within any window.
// Rejected events are not recorded.
type Limiter interface {
	Check(ctx context.Context, action, identifier string, window time.Duration, max int) Result
}

func key(action, identifier string) string {
	return fmt.Sprintf("rate_limit:%s:%s", action, identifier)
}

// slidingWindow trims, counts and conditionally admits in one round trip.
// Returns {allowed, count after the call, oldest score in the window}.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
	redis.call('ZADD', key, now, member)
	redis.call('PEXPIRE', key, window)
	count = count + 1
	allowed = 1
end

local oldest = now
local first = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if first[2] then
	oldest = tonumber(first[2])
end
return {allowed, count, oldest}
`)

type RedisLimiter struct {
	client *redis.Client
	log    *logrus.Entry
	now    func() time.Time
}

func NewRedisLimiter(client *redis.Client, log *logrus.Entry) *RedisLimiter {
	return &RedisLimiter{client: client, log: log, now: time.Now}
}

func (l *RedisLimiter) Check(ctx context.Context, action, identifier string, window time.Duration, max int) Result {
	now := l.now()
	nowMs := now.UnixMilli()
	member := fmt.Sprintf("%d-%s", nowMs, uuid.NewString())

	vals, err := slidingWindow.Run(ctx, l.client, []string{key(action, identifier)},
		nowMs, window.Milliseconds(), max, member).Int64Slice()
	if err == nil && len(vals) != 3 {
		err = fmt.Errorf("unexpected script reply length %d", len(vals))
	}
	if err != nil {
		// Fail open: availability over strictness.
		l.log.WithError(err).WithFields(logrus.Fields{
			"action":     action,
			"identifier": identifier,
		}).Warn("rate limiter unavailable, allowing request")
		return Result{Allowed: true, Remaining: 0, ResetTime: now.Add(window), Degraded: true}
	}

	count := int(vals[1])
	remaining := max - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   vals[0] == 1,
		Remaining: remaining,
		ResetTime: time.UnixMilli(vals[2]).Add(window),
	}
}

// MemoryLimiter keeps per-key event timestamps in process memory. Idle keys
// are swept once a minute until Close is called.
type MemoryLimiter struct {
	mu     sync.Mutex
	events map[string][]time.Time
	now    func() time.Time
	done   chan struct{}
	once   sync.Once
}

func NewMemoryLimiter() *MemoryLimiter {
	rl := &MemoryLimiter{
		events: make(map[string][]time.Time),
		now:    time.Now,
		done:   make(chan struct{}),
	}

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.cleanup()
			case <-rl.done:
				return
			}
		}
	}()

	return rl
}

func (rl *MemoryLimiter) Check(ctx context.Context, action, identifier string, window time.Duration, max int) Result {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	k := key(action, identifier)
	kept := trim(rl.events[k], now.Add(-window))

	allowed := len(kept) < max
	if allowed {
		kept = append(kept, now)
	}
	rl.events[k] = kept

	reset := now.Add(window)
	if len(kept) > 0 {
		reset = kept[0].Add(window)
	}
	remaining := max - len(kept)
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: allowed, Remaining: remaining, ResetTime: reset}
}

// trim drops timestamps at or before cutoff. ts is sorted ascending.
func trim(ts []time.Time, cutoff time.Time) []time.Time {
	i := sort.Search(len(ts), func(i int) bool { return ts[i].After(cutoff) })
	return ts[i:]
}

func (rl *MemoryLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	// The longest window in use is a day.
	cutoff := rl.now().Add(-24 * time.Hour)
	for k, ts := range rl.events {
		if len(ts) == 0 || !ts[len(ts)-1].After(cutoff) {
			delete(rl.events, k)
		}
	}
}

func (rl *MemoryLimiter) Close() {
	rl.once.Do(func() { close(rl.done) })
}
