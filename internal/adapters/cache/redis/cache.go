// Package redis implements ports.Cache on Redis. The poller uses it to
// remember which remote quotes were already ingested.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/jsamuelsen/quotes/internal/domain"
)

const defaultTimeout = 3 * time.Second

// Config configures the cache.
type Config struct {
	Addr     string
	Password string
	DB       int

	// Prefix is prepended to every key, e.g. "quotes:".
	Prefix string

	// Timeout bounds each Redis call.
	Timeout time.Duration
}

// Cache is a prefix-scoped key/value cache backed by Redis.
type Cache struct {
	client  *goredis.Client
	prefix  string
	timeout time.Duration
}

// New connects to Redis and pings it.
func New(ctx context.Context, cfg Config) (*Cache, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	c := &Cache{
		client: goredis.NewClient(&goredis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		prefix:  cfg.Prefix,
		timeout: cfg.Timeout,
	}

	if err := c.Check(ctx); err != nil {
		_ = c.client.Close()
		return nil, err
	}

	return c, nil
}

// Get returns the value under key, or domain.ErrNotFound.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, domain.ErrNotFound
	}

	if err != nil {
		return nil, c.unavailable(err)
	}

	return val, nil
}

// Set stores value under key. A ttlSeconds of zero or less keeps it forever.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var ttl time.Duration
	if ttlSeconds > 0 {
		ttl = time.Duration(ttlSeconds) * time.Second
	}

	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		return c.unavailable(err)
	}

	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil && !errors.Is(err, goredis.Nil) {
		return c.unavailable(err)
	}

	return nil
}

// Name implements ports.HealthChecker.
func (c *Cache) Name() string {
	return "redis-cache"
}

// Check pings Redis.
func (c *Cache) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.client.Ping(ctx).Err(); err != nil {
		return c.unavailable(err)
	}

	return nil
}

// Close releases the connection pool.
func (c *Cache) Close() error {
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("closing redis client: %w", err)
	}

	return nil
}

func (c *Cache) unavailable(err error) error {
	return fmt.Errorf("%w: %w", domain.NewUnavailableError(c.Name(), err.Error()), err)
}
