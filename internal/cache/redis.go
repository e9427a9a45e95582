// Package cache holds the process-wide Redis client and the cache-aside,
// invalidation and token revocation helpers built on it. Every helper is a
// no-op while no client is installed.
package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"askallery/internal/middleware"
	"askallery/internal/observability"

	"github.com/redis/go-redis/v9"
)

const pingTimeout = 5 * time.Second

var client *redis.Client

// errorCounter counts failed commands per command name. A miss (redis.Nil)
// is not a failure.
type errorCounter struct{}

func (errorCounter) DialHook(next redis.DialHook) redis.DialHook { return next }

func (errorCounter) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		countFailure(cmd.Name(), err)
		return err
	}
}

func (errorCounter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		countFailure("pipeline", err)
		return err
	}
}

func countFailure(op string, err error) {
	if err != nil && !errors.Is(err, redis.Nil) {
		observability.RedisErrorRate.WithLabelValues(op).Inc()
	}
}

// ParseOptions accepts either a redis:// URL or a bare host:port.
func ParseOptions(raw string) (*redis.Options, error) {
	if strings.Contains(raw, "://") {
		return redis.ParseURL(raw)
	}
	return &redis.Options{Addr: raw}, nil
}

// InitRedis connects to raw and installs the client. An unreachable or
// malformed address leaves the process running without Redis, and nil is
// returned.
func InitRedis(raw string) *redis.Client {
	opts, err := ParseOptions(raw)
	if err != nil {
		middleware.Logger.Warn("invalid REDIS_URL, continuing without redis", "error", err.Error())
		SetClient(nil)
		return nil
	}

	c := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		middleware.Logger.Warn("redis unavailable, continuing without cache, revocation or notifications",
			"addr", opts.Addr, "error", err.Error())
		_ = c.Close()
		SetClient(nil)
		return nil
	}

	middleware.Logger.Info("redis connected", "addr", opts.Addr)
	SetClient(c)
	return c
}

// GetClient returns the installed client, or nil.
func GetClient() *redis.Client {
	return client
}

// SetClient replaces the installed client. Tests point it at miniredis.
func SetClient(c *redis.Client) {
	if c != nil {
		c.AddHook(errorCounter{})
	}
	client = c
}
