// Package redis provides the Redis storage backend, used when bulk-job
// status must be visible across gateway instances or survive restarts.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
	goredis "github.com/redis/go-redis/v9"

	"github.com/rfakhoury/wagate/storage"
)

// Config for the Redis backend. Defaults can be loaded via envdecode.
type Config struct {
	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all keys. ENV: STORAGE_KEY_PREFIX
	KeyPrefix string `env:"STORAGE_KEY_PREFIX,default=wagate:"`
}

// Store implements storage.Store on Redis.
type Store struct {
	client    *goredis.Client
	keyPrefix string
}

var _ storage.Store = (*Store)(nil)

func New(cfg Config) (*Store, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}
	cl := goredis.NewClient(&goredis.Options{Addr: addr})
	if err := cl.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "wagate:"
	}
	return &Store{client: cl, keyPrefix: prefix}, nil
}

// NewFromEnv builds a Store using envdecode to populate Config.
func NewFromEnv() (*Store, error) {
	var cfg Config
	_ = envdecode.Decode(&cfg)
	return New(cfg)
}

func (s *Store) Close() error { return s.client.Close() }

// envelope is the stored wire form carrying the metadata storage.Item needs.
type envelope struct {
	Data      []byte     `json:"d"`
	CreatedAt time.Time  `json:"c"`
	ExpiresAt *time.Time `json:"e,omitempty"`
}

func (s *Store) Get(ctx context.Context, key string, opts ...storage.Option) (*storage.Item, error) {
	o := storage.Apply(opts)
	raw, err := s.client.Get(ctx, s.buildKey(o.Namespace, key)).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode stored item: %w", err)
	}
	item := &storage.Item{Data: env.Data, CreatedAt: env.CreatedAt, ExpiresAt: env.ExpiresAt}
	if item.IsExpired() {
		return nil, nil
	}
	return item, nil
}

func (s *Store) Set(ctx context.Context, key string, data []byte, opts ...storage.Option) error {
	o := storage.Apply(opts)
	env := envelope{Data: data, CreatedAt: time.Now()}
	var ttl time.Duration
	if o.TTL != nil {
		ttl = *o.TTL
		exp := env.CreatedAt.Add(ttl)
		env.ExpiresAt = &exp
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode stored item: %w", err)
	}
	if err := s.client.Set(ctx, s.buildKey(o.Namespace, key), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, opts ...storage.Option) error {
	o := storage.Apply(opts)
	if o.Key != nil {
		if err := s.client.Del(ctx, s.buildKey(o.Namespace, *o.Key)).Err(); err != nil {
			return fmt.Errorf("redis del: %w", err)
		}
		return nil
	}
	return s.deleteByPattern(ctx, s.buildKey(o.Namespace, "*"))
}

func (s *Store) buildKey(ns storage.Namespace, key string) string {
	switch n := ns.(type) {
	case storage.TenantNamespace:
		return s.keyPrefix + "tenant:" + n.TenantID + ":" + key
	case storage.JobNamespace:
		return s.keyPrefix + "tenant:" + n.TenantID + ":job:" + n.JobID + ":" + key
	default:
		return s.keyPrefix + "global:" + key
	}
}

// deleteByPattern removes matching keys with SCAN to avoid blocking Redis.
func (s *Store) deleteByPattern(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, cur, err := s.client.Scan(ctx, cursor, pattern, 50).Result()
		if err != nil {
			return fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			_, _ = s.client.Del(ctx, keys...).Result()
		}
		if cur == 0 {
			return nil
		}
		cursor = cur
	}
}
