package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

var errNotConnected = errors.New("redis client not initialized")

// Client is the storefront's handle on Redis: plain string commands plus the
// namespaced key builders every caller goes through.
type Client struct {
	raw *redis.Client
}

// New dials Redis from cfg and fails fast when the server is unreachable.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := dialOptions(cfg)
	if err != nil {
		return nil, err
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "redis_db", opts.DB), "redis connection established")
	}
	return &Client{raw: raw}, nil
}

func NewFromRaw(raw *redis.Client) *Client {
	return &Client{raw: raw}
}

// dialOptions starts from the URL when present; discrete settings fill
// whatever the URL leaves unset.
func dialOptions(cfg config.RedisConfig) (*redis.Options, error) {
	opts := &redis.Options{Addr: cfg.Address, Password: cfg.Password, DB: cfg.DB}
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
		if opts.DB == 0 {
			opts.DB = cfg.DB
		}
	}
	if opts.Addr == "" {
		return nil, errors.New("redis url or address is required")
	}
	setDefault(&opts.PoolSize, cfg.PoolSize)
	setDefault(&opts.MinIdleConns, cfg.MinIdleConns)
	setDefault(&opts.DialTimeout, cfg.DialTimeout)
	setDefault(&opts.ReadTimeout, cfg.ReadTimeout)
	setDefault(&opts.WriteTimeout, cfg.WriteTimeout)
	return opts, nil
}

func setDefault[T int | time.Duration](dst *T, value T) {
	if *dst == 0 {
		*dst = value
	}
}

func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if c.raw == nil {
		return errNotConnected
	}
	return c.raw.Set(ctx, key, value, ttl).Err()
}

// Get returns redis.Nil when key is absent.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if c.raw == nil {
		return "", errNotConnected
	}
	return c.raw.Get(ctx, key).Result()
}

// SetNX reports whether this call created key.
func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if c.raw == nil {
		return false, errNotConnected
	}
	return c.raw.SetNX(ctx, key, value, ttl).Result()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	if c.raw == nil {
		return errNotConnected
	}
	return c.raw.Del(ctx, keys...).Err()
}

func (c *Client) Ping(ctx context.Context) error {
	if c.raw == nil {
		return errNotConnected
	}
	return c.raw.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if c.raw == nil {
		return nil
	}
	return c.raw.Close()
}
