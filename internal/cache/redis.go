package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/raaihank/report-sentinel/internal/config"
)

// CachedCandidate is a rewrite result stored in Redis. Candidate is the
// provider output before reinsertion, so it holds placeholders only.
type CachedCandidate struct {
	Candidate string    `json:"candidate"`
	Provider  string    `json:"provider"`
	CachedAt  time.Time `json:"cached_at"`
	TTL       int64     `json:"ttl"`
}

// CacheStats represents cache performance statistics
type CacheStats struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	HitRate     float64 `json:"hit_rate"`
	TotalKeys   int64   `json:"total_keys"`
	MemoryUsage int64   `json:"memory_usage_bytes,omitempty"`
}

// CandidateCache stores rewrite candidates in Redis keyed by a hash of the
// provider, the instructions and the redacted input
type CandidateCache struct {
	client *redis.Client
	config config.CacheConfig
	logger *zap.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// NewCandidateCache connects to Redis and verifies the connection
func NewCandidateCache(cfg config.CacheConfig, logger *zap.Logger) (*CandidateCache, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if cfg.MaxConnections > 0 {
		opts.PoolSize = cfg.MaxConnections
	}
	opts.MinIdleConns = cfg.MinIdleConns

	c := &CandidateCache{
		client: redis.NewClient(opts),
		config: cfg,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.client.Ping(ctx).Err(); err != nil {
		_ = c.client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Candidate cache initialized",
		zap.String("redis_url", maskRedisURL(cfg.RedisURL)),
		zap.Int("max_connections", opts.PoolSize),
		zap.Duration("default_ttl", cfg.DefaultTTL))

	return c, nil
}

// Key derives the cache key. Inputs are already redacted, so the key is
// free of patient data.
func (c *CandidateCache) Key(provider, instructions, redactedText string) string {
	hasher := sha256.New()
	for _, part := range []string{provider, instructions, redactedText} {
		hasher.Write([]byte(strconv.Itoa(len(part))))
		hasher.Write([]byte{':'})
		hasher.Write([]byte(part))
	}
	return fmt.Sprintf("%s:candidate:%s", c.config.KeyPrefix, hex.EncodeToString(hasher.Sum(nil)))
}

// Get looks up a candidate. A miss returns (nil, nil).
func (c *CandidateCache) Get(ctx context.Context, key string) (*CachedCandidate, error) {
	data, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		c.misses.Add(1)
		c.logger.Debug("Cache miss", zap.String("key", key))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache lookup failed: %w", err)
	}

	var cached CachedCandidate
	if err := json.Unmarshal([]byte(data), &cached); err != nil {
		c.logger.Warn("Dropping corrupted cache entry", zap.String("key", key), zap.Error(err))
		c.client.Del(ctx, key)
		c.misses.Add(1)
		return nil, nil
	}

	c.hits.Add(1)
	c.logger.Debug("Cache hit", zap.String("key", key), zap.String("provider", cached.Provider))
	return &cached, nil
}

// Store caches a candidate with the default TTL
func (c *CandidateCache) Store(ctx context.Context, key string, candidate *CachedCandidate) error {
	candidate.CachedAt = time.Now()
	candidate.TTL = int64(c.config.DefaultTTL.Seconds())

	data, err := json.Marshal(candidate)
	if err != nil {
		return fmt.Errorf("failed to marshal candidate: %w", err)
	}

	if err := c.client.Set(ctx, key, data, c.config.DefaultTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache candidate: %w", err)
	}
	return nil
}

// GetStats returns cache performance statistics. Memory usage is reported
// only when the server answers INFO.
func (c *CandidateCache) GetStats(ctx context.Context) (*CacheStats, error) {
	stats := &CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}

	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}

	if info, err := c.client.Info(ctx, "memory").Result(); err == nil {
		for _, line := range strings.Split(info, "\r\n") {
			if memStr, ok := strings.CutPrefix(line, "used_memory:"); ok {
				if mem, err := strconv.ParseInt(memStr, 10, 64); err == nil {
					stats.MemoryUsage = mem
				}
			}
		}
	}

	keys, err := c.client.DBSize(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to count keys: %w", err)
	}
	stats.TotalKeys = keys

	return stats, nil
}

// Clear removes all cached candidates under the configured prefix
func (c *CandidateCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.config.KeyPrefix+":candidate:*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}

	const batchSize = 100
	for i := 0; i < len(keys); i += batchSize {
		end := min(i+batchSize, len(keys))
		if err := c.client.Del(ctx, keys[i:end]...).Err(); err != nil {
			return fmt.Errorf("failed to delete cache keys: %w", err)
		}
	}

	c.logger.Info("Cache cleared", zap.Int("deleted_keys", len(keys)))
	return nil
}

// Close closes the Redis connection
func (c *CandidateCache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// maskRedisURL masks the password in a Redis URL for logging
func maskRedisURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	userPart := url[:at]
	colon := strings.LastIndex(userPart, ":")
	scheme := strings.Index(userPart, "://")
	if colon < 0 || colon <= scheme+2 {
		return url
	}
	return userPart[:colon+1] + "***" + url[at:]
}
