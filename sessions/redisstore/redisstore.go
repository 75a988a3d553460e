// Package redisstore provides a Redis-backed sessions.Host. Each user's
// aggregate is one JSON value; the atomic read-modify-write contract is met
// with WATCH/MULTI optimistic transactions retried on contention.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"

	"github.com/storekit/mcp-adapter/sessions"
)

// updateRetries bounds optimistic-transaction retries before giving up.
const updateRetries = 16

// Config for the Redis-backed Host. Defaults can be loaded via envdecode.
type Config struct {
	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all keys. ENV: MCP_SESSIONS_KEY_PREFIX
	KeyPrefix string `env:"MCP_SESSIONS_KEY_PREFIX,default=mcp:sessions:"`
}

// Option configures a Host.
type Option func(*Host)

// WithUserResolver installs a principal-resolution callback consulted by
// UserExists. Without one, any non-empty user id resolves.
func WithUserResolver(fn func(ctx context.Context, userID string) (bool, error)) Option {
	return func(h *Host) { h.resolveUser = fn }
}

// Host persists session aggregates in Redis.
type Host struct {
	client      *redis.Client
	keyPrefix   string
	resolveUser func(ctx context.Context, userID string) (bool, error)
}

var _ sessions.Host = (*Host)(nil)

// New constructs a Host and verifies connectivity with a ping.
func New(cfg Config, opts ...Option) (*Host, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}
	cl := redis.NewClient(&redis.Options{Addr: addr})
	if err := cl.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "mcp:sessions:"
	}
	h := &Host{client: cl, keyPrefix: prefix}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// NewFromEnv builds a Host using envdecode to populate Config.
func NewFromEnv(opts ...Option) (*Host, error) {
	var cfg Config
	_ = envdecode.Decode(&cfg)
	return New(cfg, opts...)
}

// NewWithClient wraps an existing client. Used by tests running against
// miniredis.
func NewWithClient(cl *redis.Client, keyPrefix string, opts ...Option) *Host {
	if keyPrefix == "" {
		keyPrefix = "mcp:sessions:"
	}
	h := &Host{client: cl, keyPrefix: keyPrefix}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Close closes the Redis client.
func (h *Host) Close() error { return h.client.Close() }

func (h *Host) aggregateKey(userID string) string { return h.keyPrefix + "user:" + userID }

func (h *Host) UserExists(ctx context.Context, userID string) (bool, error) {
	if h.resolveUser != nil {
		return h.resolveUser(ctx, userID)
	}
	return userID != "", nil
}

func (h *Host) Load(ctx context.Context, userID string) (map[string]*sessions.Session, error) {
	b, err := h.client.Get(ctx, h.aggregateKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return map[string]*sessions.Session{}, nil
		}
		return nil, err
	}
	return decodeAggregate(b)
}

func (h *Host) Update(ctx context.Context, userID string, mutate func(agg map[string]*sessions.Session) (bool, error)) error {
	key := h.aggregateKey(userID)

	for i := 0; i < updateRetries; i++ {
		err := h.client.Watch(ctx, func(tx *redis.Tx) error {
			agg := map[string]*sessions.Session{}
			b, err := tx.Get(ctx, key).Bytes()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			if len(b) > 0 {
				if agg, err = decodeAggregate(b); err != nil {
					return err
				}
			}

			changed, err := mutate(agg)
			if err != nil {
				return err
			}
			if !changed {
				return nil
			}

			payload, err := json.Marshal(agg)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if len(agg) == 0 {
					pipe.Del(ctx, key)
				} else {
					pipe.Set(ctx, key, payload, 0)
				}
				return nil
			})
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("session update contention on user %q", userID)
}

func decodeAggregate(b []byte) (map[string]*sessions.Session, error) {
	agg := map[string]*sessions.Session{}
	if err := json.Unmarshal(b, &agg); err != nil {
		return nil, fmt.Errorf("corrupt session aggregate: %w", err)
	}
	return agg, nil
}
