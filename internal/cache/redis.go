package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/raaihank/phi-sentinel/internal/scan"
	"go.uber.org/zap"
)

// Config contains cache configuration
type Config struct {
	RedisURL       string
	KeyPrefix      string
	DefaultTTL     time.Duration
	MaxConnections int
	MinIdleConns   int
}

// Stats represents cache performance statistics
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Errors  int64   `json:"errors"`
	HitRate float64 `json:"hit_rate"`
}

// ResultCache stores batch item results in Redis. Keys arrive as salted
// digests and values are reduced results, so no item text reaches Redis.
// Every failure is treated as a miss.
type ResultCache struct {
	client *redis.Client
	config Config
	logger *zap.Logger

	hits   atomic.Int64
	misses atomic.Int64
	errors atomic.Int64
}

// NewResultCache connects to Redis and verifies the connection
func NewResultCache(config Config, logger *zap.Logger) (*ResultCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opts.PoolSize = config.MaxConnections
	opts.MinIdleConns = config.MinIdleConns

	cache := newResultCache(redis.NewClient(opts), config, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := cache.client.Ping(ctx).Err(); err != nil {
		cache.client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Result cache initialized successfully",
		zap.String("redis_url", maskRedisURL(config.RedisURL)),
		zap.Int("max_connections", config.MaxConnections),
		zap.Duration("default_ttl", config.DefaultTTL))

	return cache, nil
}

func newResultCache(client *redis.Client, config Config, logger *zap.Logger) *ResultCache {
	if config.KeyPrefix == "" {
		config.KeyPrefix = "phi-sentinel"
	}
	return &ResultCache{client: client, config: config, logger: logger}
}

// Get looks up a cached item result
func (c *ResultCache) Get(ctx context.Context, key string) (*scan.ItemResult, bool) {
	data, err := c.client.Get(ctx, c.redisKey(key)).Bytes()
	if err == redis.Nil {
		c.misses.Add(1)
		return nil, false
	} else if err != nil {
		c.errors.Add(1)
		c.logger.Warn("Cache lookup failed", zap.Error(err))
		return nil, false
	}

	var result scan.ItemResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.errors.Add(1)
		c.logger.Warn("Dropping corrupted cache entry", zap.Error(err))
		c.client.Del(ctx, c.redisKey(key))
		return nil, false
	}

	c.hits.Add(1)
	return &result, true
}

// Set stores an item result with the default TTL
func (c *ResultCache) Set(ctx context.Context, key string, result *scan.ItemResult) {
	data, err := json.Marshal(result)
	if err != nil {
		c.errors.Add(1)
		c.logger.Warn("Failed to marshal result for caching", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, c.redisKey(key), data, c.config.DefaultTTL).Err(); err != nil {
		c.errors.Add(1)
		c.logger.Warn("Failed to cache result", zap.Error(err))
	}
}

// Stats returns hit and miss counters
func (c *ResultCache) Stats() Stats {
	stats := Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Errors: c.errors.Load(),
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}
	return stats
}

// Clear removes all cached results under the key prefix
func (c *ResultCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.config.KeyPrefix+":result:*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}

	const batchSize = 100
	for i := 0; i < len(keys); i += batchSize {
		end := i + batchSize
		if end > len(keys) {
			end = len(keys)
		}
		if err := c.client.Del(ctx, keys[i:end]...).Err(); err != nil {
			return fmt.Errorf("failed to delete cache keys: %w", err)
		}
	}

	c.logger.Info("Cache cleared", zap.Int("deleted_keys", len(keys)))
	return nil
}

// Close closes the Redis connection
func (c *ResultCache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func (c *ResultCache) redisKey(key string) string {
	return c.config.KeyPrefix + ":result:" + key
}

// maskRedisURL masks the password in a Redis URL for logging
func maskRedisURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	userPart := url[:at]
	colon := strings.LastIndex(userPart, ":")
	if colon < 0 || colon < strings.Index(userPart, "://")+3 {
		return url
	}
	return userPart[:colon+1] + "***" + url[at:]
}
