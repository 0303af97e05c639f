package biz

import (
	"context"
	"strconv"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/sentinel-rag/internal/model"
	"github.com/kart-io/sentinel-rag/internal/pkg/rag/textutil"
	"github.com/kart-io/sentinel-rag/internal/rag/metrics"
	"github.com/kart-io/sentinel-rag/pkg/cache"
	"github.com/kart-io/sentinel-rag/pkg/errors"
	"github.com/kart-io/sentinel-rag/pkg/resilience"
)

// digestLen SHA1 十六进制摘要长度。
const digestLen = 40

// BuildCacheKey 生成响应缓存键 "<tenant>:<sha1>"，租户 ID 必须是第一段。
// 租户段明文保留，按租户清理缓存时依赖它。
func BuildCacheKey(tenantID, provider, model string, k int, query string) string {
	return tenantID + ":" + textutil.SHA1Hex(tenantID, provider, model, strconv.Itoa(k), query)
}

// CacheKeyTenant 从缓存键中取出租户段，键格式不符时返回 false。
// 租户 ID 本身可以含冒号，因此从末尾按摘要长度切分。
func CacheKeyTenant(key string) (string, bool) {
	n := len(key) - digestLen - 1
	if n <= 0 || key[n] != ':' {
		return "", false
	}
	return key[:n], true
}

// RemoteCache 远端缓存后端。未命中时返回 (nil, nil)。
type RemoteCache interface {
	Search(ctx context.Context, key string) (*model.QueryResponse, error)
	Set(ctx context.Context, key string, resp *model.QueryResponse) error
	Name() string
}

// RemoteClearer 支持按租户清理的远端缓存。
type RemoteClearer interface {
	Clear(ctx context.Context, tenantID string) (int, error)
}

// RemoteCounter 支持统计条目数的远端缓存。
type RemoteCounter interface {
	Count(ctx context.Context) (int, error)
}

// CacheRecorder 缓存操作指标。
type CacheRecorder interface {
	RecordCache(source, op, result string)
}

// ResponseCacheConfig 两级缓存配置。
type ResponseCacheConfig struct {
	LocalTTL        time.Duration
	LocalMaxEntries int
	// Attempts 单次远端调用的最大尝试次数。
	Attempts int
	// Disabled 为 true 时读写都直接跳过。
	Disabled bool
}

// DefaultResponseCacheConfig 返回默认配置。
func DefaultResponseCacheConfig() ResponseCacheConfig {
	return ResponseCacheConfig{
		LocalTTL:        cache.DefaultTTL,
		LocalMaxEntries: cache.DefaultMaxEntries,
		Attempts:        resilience.DefaultAttempts,
	}
}

// ResponseCache 远端缓存 + 本地兜底缓存。任何缓存故障只记录告警，不影响查询。
type ResponseCache struct {
	remote   RemoteCache
	local    *cache.TTLCache[string, *model.QueryResponse]
	attempts int
	recorder CacheRecorder
	disabled bool
}

// NewResponseCache 创建两级缓存，remote 可以为 nil。
func NewResponseCache(remote RemoteCache, cfg ResponseCacheConfig, recorder CacheRecorder, opts ...cache.TTLOption) *ResponseCache {
	if cfg.Attempts <= 0 {
		cfg.Attempts = resilience.DefaultAttempts
	}
	return &ResponseCache{
		remote:   remote,
		local:    cache.NewTTLCache[string, *model.QueryResponse](cfg.LocalTTL, cfg.LocalMaxEntries, opts...),
		attempts: cfg.Attempts,
		recorder: recorder,
		disabled: cfg.Disabled,
	}
}

// Get 先查远端，远端未命中或失败再查本地。返回命中的层级。
func (c *ResponseCache) Get(ctx context.Context, key string) (*model.QueryResponse, string, bool) {
	if c.disabled {
		return nil, "", false
	}
	if c.remote != nil {
		resp, err := resilience.Retry(ctx, c.attempts, func(ctx context.Context) (*model.QueryResponse, error) {
			return c.remote.Search(ctx, key)
		}, resilience.OnRetry(c.logAttempt(metrics.OpGet, key)))

		switch {
		case err != nil:
			c.record(metrics.SourceRemote, metrics.OpGet, metrics.ResultError)
			logger.Warnw("remote cache lookup failed, falling back to local",
				"source", metrics.SourceRemote, "backend", c.remote.Name(), "key", key, "error", err.Error())
		case resp != nil:
			c.record(metrics.SourceRemote, metrics.OpGet, metrics.ResultHit)
			return cloneResponse(resp), metrics.SourceRemote, true
		default:
			c.record(metrics.SourceRemote, metrics.OpGet, metrics.ResultMiss)
		}
	}

	if resp, ok := c.local.Get(key); ok {
		c.record(metrics.SourceLocal, metrics.OpGet, metrics.ResultHit)
		return cloneResponse(resp), metrics.SourceLocal, true
	}
	c.record(metrics.SourceLocal, metrics.OpGet, metrics.ResultMiss)
	return nil, "", false
}

// Set 同步写本地，再尽力写远端。
func (c *ResponseCache) Set(ctx context.Context, key string, resp *model.QueryResponse) {
	if resp == nil || c.disabled {
		return
	}
	stored := cloneResponse(resp)
	stored.Cache = false
	c.local.Set(key, stored)
	c.record(metrics.SourceLocal, metrics.OpSet, metrics.ResultOK)

	if c.remote == nil {
		return
	}
	err := resilience.Do(ctx, c.attempts, func(ctx context.Context) error {
		return c.remote.Set(ctx, key, stored)
	}, resilience.OnRetry(c.logAttempt(metrics.OpSet, key)))
	if err != nil {
		c.record(metrics.SourceRemote, metrics.OpSet, metrics.ResultError)
		logger.Warnw("remote cache write failed",
			"source", metrics.SourceRemote, "backend", c.remote.Name(), "key", key, "error", err.Error())
		return
	}
	c.record(metrics.SourceRemote, metrics.OpSet, metrics.ResultOK)
}

// Clear 删除 tenantID 的本地条目，远端支持时一并删除。其他租户的条目不受影响。
// 返回两级共删除的条目数。
func (c *ResponseCache) Clear(ctx context.Context, tenantID string) (int, error) {
	if tenantID == "" {
		return 0, errors.ErrRAGInvalidRequest.WithMessage("tenant_id is required to clear the cache")
	}

	deleted := c.local.DeleteFunc(func(key string, _ *model.QueryResponse) bool {
		t, ok := CacheKeyTenant(key)
		return ok && t == tenantID
	})
	c.record(metrics.SourceLocal, metrics.OpClear, metrics.ResultOK)

	if cl, ok := c.remote.(RemoteClearer); ok {
		n, err := cl.Clear(ctx, tenantID)
		deleted += n
		if err != nil {
			c.record(metrics.SourceRemote, metrics.OpClear, metrics.ResultError)
			return deleted, err
		}
		c.record(metrics.SourceRemote, metrics.OpClear, metrics.ResultOK)
	}

	logger.Infow("response cache cleared", "tenant_id", tenantID, "deleted_count", deleted)
	return deleted, nil
}

// Purge 清理本地过期条目。
func (c *ResponseCache) Purge() int {
	return c.local.Purge()
}

// CacheStats 缓存状态。
type CacheStats struct {
	Remote         string `json:"remote"`
	// RemoteCount 远端条目数，远端不支持统计或统计失败时为 -1。
	RemoteCount    int    `json:"remote_count"`
	LocalSize      int    `json:"local_size"`
	LocalCapacity  int    `json:"local_capacity"`
	LocalEvictions uint64 `json:"local_evictions"`
	Attempts       int    `json:"remote_attempts"`
	Enabled        bool   `json:"enabled"`
}

// Stats 返回缓存状态。远端条目数尽力统计，失败只记录告警。
func (c *ResponseCache) Stats(ctx context.Context) CacheStats {
	size, capacity, evictions := c.local.Stats()
	s := CacheStats{
		Remote:         "none",
		RemoteCount:    -1,
		LocalSize:      size,
		LocalCapacity:  capacity,
		LocalEvictions: evictions,
		Attempts:       c.attempts,
		Enabled:        !c.disabled,
	}
	if c.remote == nil {
		return s
	}
	s.Remote = c.remote.Name()
	if counter, ok := c.remote.(RemoteCounter); ok {
		n, err := counter.Count(ctx)
		if err != nil {
			logger.Warnw("failed to count remote cache entries",
				"source", metrics.SourceRemote, "backend", s.Remote, "error", err.Error())
			return s
		}
		s.RemoteCount = n
	}
	return s
}

func (c *ResponseCache) logAttempt(op, key string) func(int, error) {
	return func(attempt int, err error) {
		logger.Warnw("remote cache attempt failed",
			"source", metrics.SourceRemote, "op", op, "key", key,
			"attempt", attempt, "max_attempts", c.attempts, "error", err.Error())
	}
}

func (c *ResponseCache) record(source, op, result string) {
	if c.recorder != nil {
		c.recorder.RecordCache(source, op, result)
	}
}

// cloneResponse 复制响应，缓存条目与调用方互不共享可变字段。
func cloneResponse(r *model.QueryResponse) *model.QueryResponse {
	out := *r
	if r.Sources != nil {
		out.Sources = append([]model.RagSource(nil), r.Sources...)
	}
	if r.LLMError != nil {
		e := *r.LLMError
		out.LLMError = &e
	}
	if r.CharacterLimitApplied != nil {
		n := *r.CharacterLimitApplied
		out.CharacterLimitApplied = &n
	}
	if r.Usage != nil {
		u := *r.Usage
		out.Usage = &u
	}
	return &out
}
