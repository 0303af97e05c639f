package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/sentinel-rag/pkg/cache"
	"github.com/kart-io/sentinel-rag/pkg/utils/json"
)

// EmbeddingCacheConfig Embedding 缓存配置。
type EmbeddingCacheConfig struct {
	// TTL Redis 中的过期时间。
	TTL time.Duration
	// KeyPrefix Redis 键前缀。
	KeyPrefix string
	// LocalTTL 进程内缓存过期时间。
	LocalTTL time.Duration
	// LocalMaxEntries 进程内缓存容量。
	LocalMaxEntries int
}

// DefaultEmbeddingCacheConfig 返回默认配置。
func DefaultEmbeddingCacheConfig() *EmbeddingCacheConfig {
	return &EmbeddingCacheConfig{
		TTL:             24 * time.Hour,
		KeyPrefix:       "rag:emb:",
		LocalTTL:        10 * time.Minute,
		LocalMaxEntries: 2000,
	}
}

// CachedEmbeddingProvider 为查询向量提供两级缓存：进程内 TTL 缓存与可选的 Redis。
// 键由模型供应商名称与文本的 SHA256 组成，缓存失败只记录日志。
type CachedEmbeddingProvider struct {
	provider EmbeddingProvider
	redis    goredis.UniversalClient
	local    *cache.TTLCache[string, []float32]
	config   *EmbeddingCacheConfig
}

// NewCachedEmbeddingProvider 创建带缓存的 Embedding 供应商，redis 可为 nil。
func NewCachedEmbeddingProvider(provider EmbeddingProvider, redis goredis.UniversalClient, config *EmbeddingCacheConfig) *CachedEmbeddingProvider {
	if config == nil {
		config = DefaultEmbeddingCacheConfig()
	}
	return &CachedEmbeddingProvider{
		provider: provider,
		redis:    redis,
		local:    cache.NewTTLCache[string, []float32](config.LocalTTL, config.LocalMaxEntries),
		config:   config,
	}
}

func (c *CachedEmbeddingProvider) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(c.provider.Name() + "|" + text))
	return c.config.KeyPrefix + hex.EncodeToString(sum[:])
}

func (c *CachedEmbeddingProvider) lookup(ctx context.Context, key string) ([]float32, bool) {
	if v, ok := c.local.Get(key); ok {
		return v, true
	}
	if c.redis == nil {
		return nil, false
	}

	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			logger.Warnw("embedding cache read failed", "source", "redis", "error", err.Error())
		}
		return nil, false
	}
	var v []float32
	if err := json.Unmarshal(data, &v); err != nil {
		logger.Warnw("corrupt embedding cache entry, deleting", "key", key, "error", err.Error())
		_ = c.redis.Del(ctx, key).Err()
		return nil, false
	}
	c.local.Set(key, v)
	return v, true
}

func (c *CachedEmbeddingProvider) store(ctx context.Context, key string, v []float32) {
	c.local.Set(key, v)
	if c.redis == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.config.TTL).Err(); err != nil {
		logger.Warnw("embedding cache write failed", "source", "redis", "error", err.Error())
	}
}

// EmbedSingle 生成单个文本的 Embedding（带缓存）。
func (c *CachedEmbeddingProvider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)
	if v, ok := c.lookup(ctx, key); ok {
		return v, nil
	}

	v, err := c.provider.EmbedSingle(ctx, text)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, v)
	return v, nil
}

// Embed 批量生成 Embedding，只为未命中的文本调用底层供应商。
func (c *CachedEmbeddingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		if v, ok := c.lookup(ctx, c.cacheKey(text)); ok {
			out[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	fresh, err := c.provider.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, idx := range missIdx {
		if j >= len(fresh) {
			break
		}
		out[idx] = fresh[j]
		c.store(ctx, c.cacheKey(missTexts[j]), fresh[j])
	}
	logger.Debugw("embedding cache batch", "total", len(texts), "misses", len(missTexts))
	return out, nil
}

// Name 返回底层供应商名称。
func (c *CachedEmbeddingProvider) Name() string {
	return c.provider.Name()
}

// Purge 清理进程内的过期条目。
func (c *CachedEmbeddingProvider) Purge() int {
	return c.local.Purge()
}

var _ EmbeddingProvider = (*CachedEmbeddingProvider)(nil)
