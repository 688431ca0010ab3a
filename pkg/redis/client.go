package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/smartbill-sync/pkg/config"
	"github.com/angelmondragon/smartbill-sync/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	keyNamespace      = "sbs"
	idempotencyPrefix = "idempotency"
	invoiceLockPrefix = "invoice_lock"
	invoicedPrefix    = "invoiced"
)

var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type cmdable interface {
	redis.Scripter
	Ping(context.Context) *redis.StatusCmd
	Set(context.Context, string, any, time.Duration) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	SetNX(context.Context, string, any, time.Duration) *redis.BoolCmd
	Del(context.Context, ...string) *redis.IntCmd
}

// Client wraps the redis connection helpers used for request idempotency and
// the per-order invoicing guard.
type Client struct {
	store cmdable
	raw   *redis.Client
}

// Pinger exposes the health-check surface.
type Pinger interface {
	Ping(context.Context) error
}

// IdempotencyStore exposes minimal operations used by idempotency helpers.
type IdempotencyStore interface {
	Get(context.Context, string) (string, error)
	SetNX(context.Context, string, any, time.Duration) (bool, error)
	IdempotencyKey(scope, id string) string
	Del(context.Context, ...string) error
}

// New bootstraps a Redis client with pooling/timeouts and verifies connectivity.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if logg != nil {
		logg.Info(ctx, "redis connection established")
	}
	return &Client{store: raw, raw: raw}, nil
}

func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	if cfg.URL == "" && cfg.Address == "" {
		return nil, errors.New("redis url or address is required")
	}
	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}
	if opts.DB == 0 {
		opts.DB = cfg.DB
	}
	if opts.PoolSize == 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if opts.MinIdleConns == 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	return opts, nil
}

// Set stores a string value with an optional TTL.
func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if c.store == nil {
		return errors.New("redis client not initialized")
	}
	return c.store.Set(ctx, key, value, ttl).Err()
}

// Get returns a string value stored at key.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if c.store == nil {
		return "", errors.New("redis client not initialized")
	}
	return c.store.Get(ctx, key).Result()
}

// SetNX sets a value only if the key does not exist yet.
func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if c.store == nil {
		return false, errors.New("redis client not initialized")
	}
	return c.store.SetNX(ctx, key, value, ttl).Result()
}

// IdempotencyKey returns a namespaced key for idempotency storage.
func (c *Client) IdempotencyKey(scope, id string) string {
	return c.buildKey(idempotencyPrefix, scope, id)
}

// InvoiceLockKey returns the key guarding concurrent invoicing of one order.
func (c *Client) InvoiceLockKey(orderID string) string {
	return c.buildKey(invoiceLockPrefix, orderID)
}

// InvoicedKey returns the key remembering the invoice issued for an order.
func (c *Client) InvoicedKey(orderID string) string {
	return c.buildKey(invoicedPrefix, orderID)
}

// AcquireInvoiceLock claims the order for invoicing. It only succeeds when no
// other holder owns the lock.
func (c *Client) AcquireInvoiceLock(ctx context.Context, orderID, holder string, ttl time.Duration) (bool, error) {
	return c.SetNX(ctx, c.InvoiceLockKey(orderID), holder, ttl)
}

// ReleaseInvoiceLock drops the lock if it is still owned by holder. The
// compare and delete run as one script so an expired lock taken by another
// request is left alone.
func (c *Client) ReleaseInvoiceLock(ctx context.Context, orderID, holder string) error {
	if c.store == nil {
		return errors.New("redis client not initialized")
	}
	err := releaseLockScript.Run(ctx, c.store, []string{c.InvoiceLockKey(orderID)}, holder).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

// MarkInvoiced stores the serialized invoice issued for the order.
func (c *Client) MarkInvoiced(ctx context.Context, orderID, record string, ttl time.Duration) error {
	return c.Set(ctx, c.InvoicedKey(orderID), record, ttl)
}

// InvoicedRecord returns the stored invoice for the order, or "" when none exists.
func (c *Client) InvoicedRecord(ctx context.Context, orderID string) (string, error) {
	record, err := c.Get(ctx, c.InvoicedKey(orderID))
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return record, err
}

// Del removes the provided keys.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	if c.store == nil {
		return errors.New("redis client not initialized")
	}
	return c.store.Del(ctx, keys...).Err()
}

// Ping verifies the connection.
func (c *Client) Ping(ctx context.Context) error {
	if c.store == nil {
		return errors.New("redis client not initialized")
	}
	return c.store.Ping(ctx).Err()
}

// Close shuts down the underlying client if available.
func (c *Client) Close() error {
	if c.raw == nil {
		return nil
	}
	return c.raw.Close()
}

func (c *Client) buildKey(parts ...string) string {
	if len(parts) == 0 {
		return keyNamespace
	}
	clean := []string{keyNamespace}
	for _, part := range parts {
		if part == "" {
			continue
		}
		clean = append(clean, strings.TrimSpace(part))
	}
	return strings.Join(clean, ":")
}
