package objectcache

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sells-group/source-matcher/internal/resilience"
)

// cmdable is the subset of redis.Cmdable the backend uses.
type cmdable interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

type redisClient struct {
	rdb     cmdable
	ttl     time.Duration
	breaker *resilience.Breaker
}

// RedisOption configures the Redis backend.
type RedisOption func(*redisClient)

// WithRedisBreaker guards Redis calls with cb.
func WithRedisBreaker(cb *resilience.Breaker) RedisOption {
	return func(c *redisClient) {
		c.breaker = cb
	}
}

// WithTTL expires stored partitions after d. Zero keeps them.
func WithTTL(d time.Duration) RedisOption {
	return func(c *redisClient) {
		c.ttl = d
	}
}

// NewRedis creates a Client reading and writing keys directly in Redis.
func NewRedis(rdb redis.Cmdable, opts ...RedisOption) Client {
	return newRedis(rdb, opts...)
}

func newRedis(rdb cmdable, opts ...RedisOption) *redisClient {
	c := &redisClient{rdb: rdb}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *redisClient) Fetch(ctx context.Context, key string) ([]byte, error) {
	return resilience.Call(ctx, c.breaker, func(ctx context.Context) ([]byte, error) {
		b, err := c.rdb.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, &resilience.StatusError{Service: ServiceName, Code: http.StatusNotFound, Body: key}
		}
		if err != nil {
			return nil, &resilience.ConnectError{Service: ServiceName, Err: err}
		}
		return b, nil
	})
}

func (c *redisClient) Store(ctx context.Context, name string, blob []byte) (string, error) {
	return resilience.Call(ctx, c.breaker, func(ctx context.Context) (string, error) {
		if err := c.rdb.Set(ctx, name, blob, c.ttl).Err(); err != nil {
			return "", &resilience.ConnectError{Service: ServiceName, Err: err}
		}
		return name, nil
	})
}
