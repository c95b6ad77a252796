package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisCache is a Redis-backed Cache for installs that share cache state
// across processes.
type redisCache struct {
	client *redis.Client
	logger *slog.Logger

	hits      atomic.Int64
	misses    atomic.Int64
	sets      atomic.Int64
	evictions atomic.Int64
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

const redisOpTimeout = 2 * time.Second

// NewRedisCache connects to Redis and returns a Cache backed by it. The
// constructor pings with a 5s deadline and fails fast when unreachable.
func NewRedisCache(cfg RedisConfig, logger *slog.Logger) (Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info("connected to redis cache", "addr", cfg.Addr, "db", cfg.DB)

	return &redisCache{
		client: client,
		logger: logger,
	}, nil
}

// newRedisCacheFromClient wires an existing client; used by tests.
func newRedisCacheFromClient(client *redis.Client, logger *slog.Logger) Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisCache{client: client, logger: logger}
}

func (c *redisCache) Get(key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		c.misses.Add(1)
		return nil, false
	}
	if err != nil {
		c.logger.Warn("redis get failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return val, true
}

func (c *redisCache) Set(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		c.logger.Warn("redis set failed", "key", key, "error", err)
		return
	}

	c.sets.Add(1)
}

func (c *redisCache) Delete(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.logger.Warn("redis delete failed", "key", key, "error", err)
	}
}

// DeletePattern walks the keyspace with SCAN MATCH and deletes every match.
// Redis MATCH globs behave like the memory backend's compileGlob.
func (c *redisCache) DeletePattern(pattern string) int {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	count := 0
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			c.logger.Warn("redis delete failed", "key", iter.Val(), "error", err)
			continue
		}
		count++
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("redis scan failed", "pattern", pattern, "error", err)
	}

	c.evictions.Add(int64(count))
	return count
}

func (c *redisCache) Clear() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.client.FlushDB(ctx).Err(); err != nil {
		c.logger.Warn("redis flush failed", "error", err)
	}
}

func (c *redisCache) Stats() Stats {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	size, err := c.client.DBSize(ctx).Result()
	if err != nil {
		c.logger.Warn("redis dbsize failed", "error", err)
		size = 0
	}

	return Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Sets:        c.sets.Load(),
		Evictions:   c.evictions.Load(),
		CurrentSize: int(size),
	}
}

func (c *redisCache) Close() error {
	return c.client.Close()
}
