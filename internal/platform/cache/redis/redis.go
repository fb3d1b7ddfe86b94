// Package redis provides a valkey/redis-backed cache driver.
package redis

import (
	"context"
	"net"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/wecom-tools/quarkbot/internal/platform/cache"
	"github.com/wecom-tools/quarkbot/internal/platform/cfgutil"
)

func init() {
	cache.RegisterDriver("redis", func(config map[string]any) (cache.Cache, error) {
		var opts Options
		if err := cfgutil.Decode(config, &opts); err != nil {
			return nil, err
		}
		return New(opts)
	})
}

// Options holds the redis driver configuration.
type Options struct {
	Addr              string `mapstructure:"addr"`
	Password          string `mapstructure:"password"`
	DB                int    `mapstructure:"db"`
	DialTimeoutMS     int    `mapstructure:"dial_timeout_ms"`
	DefaultTTLSeconds int    `mapstructure:"default_ttl_seconds"`
}

// ApplyDefaults implements cfgutil.Setter.
func (o *Options) ApplyDefaults() {
	if o.Addr == "" {
		o.Addr = "127.0.0.1:6379"
	}
	if o.DialTimeoutMS <= 0 {
		o.DialTimeoutMS = 2000
	}
	if o.DefaultTTLSeconds <= 0 {
		o.DefaultTTLSeconds = 900
	}
}

// Cache is a cache.Cache backed by a valkey/redis server.
type Cache struct {
	client     valkey.Client
	defaultTTL time.Duration
}

// New connects to the configured server and returns the cache.
func New(opts Options) (*Cache, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{opts.Addr},
		Password:    opts.Password,
		SelectDB:    opts.DB,
		Dialer: net.Dialer{
			Timeout: time.Duration(opts.DialTimeoutMS) * time.Millisecond,
		},
		// Server-assisted client caching needs RESP3; keep it off so the
		// driver also works against plain redis deployments.
		DisableCache: true,
	})
	if err != nil {
		return nil, err
	}

	return &Cache{
		client:     client,
		defaultTTL: time.Duration(opts.DefaultTTLSeconds) * time.Second,
	}, nil
}

// Get retrieves a value by key.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Do(ctx, c.client.B().Get().Key(key).Build()).AsBytes()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, cache.ErrNotFound
		}
		return nil, err
	}
	return val, nil
}

// Set stores a value with the given TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	cmd := c.client.B().Set().Key(key).Value(valkey.BinaryString(value)).Px(ttl).Build()
	return c.client.Do(ctx, cmd).Error()
}

// Delete removes a key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Do(ctx, c.client.B().Del().Key(key).Build()).Error()
}

// Exists checks if a key exists.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Do(ctx, c.client.B().Exists().Key(key).Build()).AsInt64()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Close releases the client connection.
func (c *Cache) Close() error {
	c.client.Close()
	return nil
}

var _ cache.Cache = (*Cache)(nil)
