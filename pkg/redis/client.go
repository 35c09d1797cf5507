package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/biddart/biddart-backend/pkg/config"
)

const keyNamespace = "bd"

var errNotInitialized = errors.New("redis client not initialized")

// Owner-checked scripts return 1 when the caller still held the key.
const (
	compareAndDeleteSrc = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) end return 0`
	compareAndExpireSrc = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("PEXPIRE", KEYS[1], ARGV[2]) end return 0`
	compareAndSwapSrc   = `if redis.call("GET", KEYS[1]) ~= ARGV[1] then return 0 end
if tonumber(ARGV[3]) > 0 then redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3]) else redis.call("SET", KEYS[1], ARGV[2]) end
return 1`
	// INCR and the first PEXPIRE run together so a counter can never outlive its window.
	fixedWindowSrc = `local n = redis.call("INCR", KEYS[1])
if n == 1 and tonumber(ARGV[1]) > 0 then redis.call("PEXPIRE", KEYS[1], ARGV[1]) end
return n`
)

var (
	compareAndDeleteScript = redis.NewScript(compareAndDeleteSrc)
	compareAndExpireScript = redis.NewScript(compareAndExpireSrc)
	compareAndSwapScript   = redis.NewScript(compareAndSwapSrc)
	fixedWindowScript      = redis.NewScript(fixedWindowSrc)
)

type commands interface {
	redis.Scripter
	Ping(context.Context) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	SetNX(context.Context, string, any, time.Duration) *redis.BoolCmd
}

// Client is the shared Redis surface: idempotency records, event claims, rate
// counters and the cron lease.
type Client struct {
	store commands
	raw   *redis.Client
}

// IdempotencyStore exposes minimal operations used by idempotency helpers.
type IdempotencyStore interface {
	Get(context.Context, string) (string, error)
	SetNX(context.Context, string, any, time.Duration) (bool, error)
	IdempotencyKey(scope, id string) string
}

// New connects and pings before returning.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	c := &Client{raw: redis.NewClient(opts)}
	c.store = c.raw
	if err := c.Ping(ctx); err != nil {
		return nil, errors.Join(fmt.Errorf("ping redis at %s: %w", opts.Addr, err), c.Close())
	}
	return c, nil
}

// optionsFromConfig prefers the URL; pool and timeout settings only fill what the URL left unset.
func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	opts := &redis.Options{Addr: cfg.Address, Password: cfg.Password}
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
	} else if opts.Addr == "" {
		return nil, errors.New("redis url or address is required")
	}

	fillZero(&opts.DB, cfg.DB)
	fillZero(&opts.PoolSize, cfg.PoolSize)
	fillZero(&opts.MinIdleConns, cfg.MinIdleConns)
	fillZero(&opts.DialTimeout, cfg.DialTimeout)
	fillZero(&opts.ReadTimeout, cfg.ReadTimeout)
	fillZero(&opts.WriteTimeout, cfg.WriteTimeout)
	return opts, nil
}

func fillZero[T comparable](dst *T, fallback T) {
	var zero T
	if *dst == zero {
		*dst = fallback
	}
}

// conn returns the command surface, or errNotInitialized for a zero Client.
func (c *Client) conn() (commands, error) {
	if c == nil || c.store == nil {
		return nil, errNotInitialized
	}
	return c.store, nil
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	cmd, err := c.conn()
	if err != nil {
		return "", err
	}
	return cmd.Get(ctx, key).Result()
}

// SetNX claims key for ttl; false means somebody else holds it.
func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	cmd, err := c.conn()
	if err != nil {
		return false, err
	}
	return cmd.SetNX(ctx, key, value, ttl).Result()
}

func (c *Client) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	cmd, err := c.conn()
	if err != nil {
		return false, 0, err
	}
	count, err := fixedWindowScript.Run(ctx, cmd, []string{c.RateLimitKey(scope)}, window.Milliseconds()).Int64()
	if err != nil {
		return false, 0, err
	}
	return count <= limit, count, nil
}

// CompareAndDelete removes key only while it still holds value.
func (c *Client) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	return c.runOwned(ctx, compareAndDeleteScript, key, value)
}

// CompareAndExpire resets the TTL of key only while it still holds value.
func (c *Client) CompareAndExpire(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return c.runOwned(ctx, compareAndExpireScript, key, value, ttl.Milliseconds())
}

// CompareAndSwap replaces current with next and resets the TTL. A non-positive
// ttl stores next without expiry.
func (c *Client) CompareAndSwap(ctx context.Context, key, current, next string, ttl time.Duration) (bool, error) {
	return c.runOwned(ctx, compareAndSwapScript, key, current, next, ttl.Milliseconds())
}

// runOwned runs script by SHA, loading it on NOSCRIPT.
func (c *Client) runOwned(ctx context.Context, script *redis.Script, key string, args ...any) (bool, error) {
	cmd, err := c.conn()
	if err != nil {
		return false, err
	}
	n, err := script.Run(ctx, cmd, []string{key}, args...).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (c *Client) Ping(ctx context.Context) error {
	cmd, err := c.conn()
	if err != nil {
		return err
	}
	return cmd.Ping(ctx).Err()
}

// Close is a no-op for clients built without a connection.
func (c *Client) Close() error {
	if c == nil || c.raw == nil {
		return nil
	}
	return c.raw.Close()
}

// Keys are laid out as bd:<kind>:<parts...>; blank parts are dropped.
type keyspace string

const (
	idempotencyKeys keyspace = "idempotency"
	rateLimitKeys   keyspace = "rate_limit"
	lockKeys        keyspace = "lock"
)

func (k keyspace) key(parts ...string) string {
	segs := make([]string, 0, len(parts)+2)
	segs = append(segs, keyNamespace, string(k))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			segs = append(segs, part)
		}
	}
	return strings.Join(segs, ":")
}

func (c *Client) IdempotencyKey(scope, id string) string { return idempotencyKeys.key(scope, id) }

func (c *Client) RateLimitKey(scope string) string { return rateLimitKeys.key(scope) }

func (c *Client) LockKey(name string) string { return lockKeys.key(name) }
