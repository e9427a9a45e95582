package middleware

import (
	"context"
	"errors"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// ErrNoLimiterStore is returned when limiting is enforced without Redis.
var ErrNoLimiterStore = errors.New("rate limit store unavailable")

// FailPolicy decides what happens to a request when Redis cannot be reached.
type FailPolicy int

const (
	// FailOpen lets the request through.
	FailOpen FailPolicy = iota
	// FailClosed answers 503.
	FailClosed
)

// Window is the state of one fixed rate limit window after a hit.
type Window struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

func limitingDisabled() bool {
	switch os.Getenv("APP_ENV") {
	case "", "test", "development":
		return true
	}
	return false
}

// Hit counts one request against rl:<resource>:<id>. The first hit of a
// window sets its expiry. Limiting is off outside deployed environments.
func Hit(ctx context.Context, rdb *redis.Client, resource, id string, limit int, window time.Duration) (Window, error) {
	if limitingDisabled() {
		return Window{Allowed: true, Remaining: limit}, nil
	}
	if rdb == nil {
		return Window{}, ErrNoLimiterStore
	}

	key := "rl:" + resource + ":" + id
	count, err := rdb.Incr(ctx, key).Result()
	if err != nil {
		return Window{}, err
	}
	if count == 1 {
		if err := rdb.Expire(ctx, key, window).Err(); err != nil {
			return Window{}, err
		}
	}

	w := Window{
		Allowed:   count <= int64(limit),
		Remaining: max(limit-int(count), 0),
	}
	if !w.Allowed {
		ttl, err := rdb.PTTL(ctx, key).Result()
		if err != nil || ttl <= 0 {
			ttl = window
		}
		w.RetryAfter = ttl
	}
	return w, nil
}

// CheckRateLimit reports whether a hit on resource by id fits in the window.
func CheckRateLimit(ctx context.Context, rdb *redis.Client, resource, id string, limit int, window time.Duration) (bool, error) {
	w, err := Hit(ctx, rdb, resource, id, limit, window)
	return w.Allowed, err
}

// RateLimit allows limit requests per window for each caller, failing open.
// Callers are the authenticated user when known, otherwise the client IP.
// The route path names the bucket unless name is given.
func RateLimit(rdb *redis.Client, limit int, window time.Duration, name ...string) fiber.Handler {
	return RateLimitWithPolicy(rdb, limit, window, FailOpen, name...)
}

// RateLimitWithPolicy is RateLimit with an explicit store failure policy.
func RateLimitWithPolicy(rdb *redis.Client, limit int, window time.Duration, policy FailPolicy, name ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		id := "ip:" + c.IP()
		if uid, ok := c.Locals("userID").(uint); ok && uid != 0 {
			id = "user:" + strconv.FormatUint(uint64(uid), 10)
		}
		resource := c.Path()
		if len(name) > 0 {
			resource = name[0]
		}

		w, err := Hit(ctx, rdb, resource, id, limit, window)
		if err != nil {
			if policy == FailClosed {
				Logger.WarnContext(ctx, "rate limit store unavailable, failing closed",
					"resource", resource, "error", err.Error())
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
					"error": "rate limit unavailable",
				})
			}
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(w.Remaining))
		if !w.Allowed {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(math.Ceil(w.RetryAfter.Seconds()))))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "rate limit exceeded",
			})
		}
		return c.Next()
	}
}
