package biz

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/sentinel-rag/internal/model"
	"github.com/kart-io/sentinel-rag/pkg/utils/json"
)

// RedisCacheConfig Redis 远端缓存配置。
type RedisCacheConfig struct {
	// TTL 缓存过期时间。
	TTL time.Duration
	// KeyPrefix 缓存键前缀。
	KeyPrefix string
}

// RedisCache 基于 Redis 的远端响应缓存。
type RedisCache struct {
	redis  goredis.UniversalClient
	config RedisCacheConfig
}

var (
	_ RemoteCache   = (*RedisCache)(nil)
	_ RemoteClearer = (*RedisCache)(nil)
	_ RemoteCounter = (*RedisCache)(nil)
)

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// NewRedisCache 创建 Redis 远端缓存。
func NewRedisCache(redis goredis.UniversalClient, config RedisCacheConfig) *RedisCache {
	if config.TTL <= 0 {
		config.TTL = time.Hour
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "rag:resp:"
	}
	return &RedisCache{redis: redis, config: config}
}

// Name 实现 RemoteCache。
func (c *RedisCache) Name() string { return "redis" }

// Search 读取缓存，损坏的条目会被删除并按未命中处理。
func (c *RedisCache) Search(ctx context.Context, key string) (*model.QueryResponse, error) {
	cacheKey := c.config.KeyPrefix + key

	data, err := c.redis.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var resp model.QueryResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		logger.Warnw("dropping corrupt cache entry", "source", "remote", "key", cacheKey, "error", err.Error())
		_ = c.redis.Del(ctx, cacheKey).Err()
		return nil, nil
	}
	return &resp, nil
}

// Set 写入缓存。
func (c *RedisCache) Set(ctx context.Context, key string, resp *model.QueryResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return c.redis.Set(ctx, c.config.KeyPrefix+key, data, c.config.TTL).Err()
}

// Clear 用 SCAN 删除 tenantID 名下的键。
// 租户 ID 可以含冒号，"tn" 的匹配模式也会扫到 "tn:x" 的键，逐个核对租户段后再删除。
func (c *RedisCache) Clear(ctx context.Context, tenantID string) (int, error) {
	pattern := c.config.KeyPrefix + globEscaper.Replace(tenantID) + ":*"
	iter := c.redis.Scan(ctx, 0, pattern, 100).Iterator()

	deleted := 0
	for iter.Next(ctx) {
		if t, ok := CacheKeyTenant(strings.TrimPrefix(iter.Val(), c.config.KeyPrefix)); !ok || t != tenantID {
			continue
		}
		if err := c.redis.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warnw("failed to delete cache key", "source", "remote", "key", iter.Val(), "error", err.Error())
			continue
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return deleted, err
	}

	logger.Infow("cleared response cache", "source", "remote", "tenant_id", tenantID, "deleted_count", deleted)
	return deleted, nil
}

// Count 统计带前缀的键数量。
func (c *RedisCache) Count(ctx context.Context) (int, error) {
	iter := c.redis.Scan(ctx, 0, c.config.KeyPrefix+"*", 100).Iterator()
	n := 0
	for iter.Next(ctx) {
		n++
	}
	return n, iter.Err()
}
