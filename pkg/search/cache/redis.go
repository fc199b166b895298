package cache

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/redis/go-redis/v9"
)

// RedisConfig contains Redis cache configuration.
type RedisConfig struct {
	Addr     string `hcl:"addr"`
	Password string `hcl:"password,optional"`
	DB       int    `hcl:"db,optional"`
	TTL      string `hcl:"ttl,optional"`    // Entry lifetime (default: 5m)
	Prefix   string `hcl:"prefix,optional"` // Key prefix (default: "kbsolr:page:")
}

// RedisStore is a Store on a Redis server.
type RedisStore struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
	logger hclog.Logger
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg *RedisConfig, logger hclog.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	ttl := 5 * time.Minute
	if cfg.TTL != "" {
		d, err := time.ParseDuration(cfg.TTL)
		if err != nil {
			return nil, err
		}
		ttl = d
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	return NewRedisStoreFromClient(rdb, ttl, cfg.Prefix, logger), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(rdb *redis.Client, ttl time.Duration, prefix string, logger hclog.Logger) *RedisStore {
	if prefix == "" {
		prefix = "kbsolr:page:"
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &RedisStore{
		rdb:    rdb,
		ttl:    ttl,
		prefix: prefix,
		logger: logger.Named("redis-cache"),
	}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := s.rdb.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn("cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	return data, true
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte) {
	if err := s.rdb.Set(ctx, s.prefix+key, value, s.ttl).Err(); err != nil {
		s.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

func (s *RedisStore) InvalidatePrefix(ctx context.Context, prefix string) error {
	iter := s.rdb.Scan(ctx, 0, s.prefix+prefix+"*", 500).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return err
	}
	s.logger.Debug("invalidated cached pages", "prefix", prefix, "keys_deleted", len(keys))
	return nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
