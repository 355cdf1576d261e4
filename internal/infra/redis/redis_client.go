package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"companion-billing/internal/config"
)

// Nil is returned by Get for a missing key.
const Nil = redis.Nil

// Cache is the key/value subset used by the catalog cache.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// WindowCounter counts hits on a key that expires window after its first hit.
type WindowCounter interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}

type Client interface {
	Cache
	WindowCounter
	Ping(ctx context.Context) error
	Close() error
}

// incrWindow sets the TTL in the same round trip as the first INCR so a
// counter can never outlive its window.
var incrWindow = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

var _ Client = (*client)(nil)

type client struct {
	rdb *redis.Client
}

// NewClient dials redis and pings it. cfg.URL may be host:port or a
// redis:// / rediss:// URL; an explicit password or db overrides the URL's.
func NewClient(ctx context.Context, cfg *config.RedisConfig) (Client, error) {
	rdb := redis.NewClient(clientOptions(cfg))
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return &client{rdb: rdb}, nil
}

func clientOptions(cfg *config.RedisConfig) *redis.Options {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		// plain host:port
		opts = &redis.Options{Addr: cfg.URL}
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}
	return opts
}

func (c *client) Ping(ctx context.Context) error { return c.rdb.Ping(ctx).Err() }

func (c *client) Get(ctx context.Context, key string) (string, error) {
	return c.rdb.Get(ctx, key).Result()
}

func (c *client) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c *client) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

func (c *client) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	return incrWindow.Run(ctx, c.rdb, []string{key}, window.Milliseconds()).Int64()
}

func (c *client) Close() error { return c.rdb.Close() }
