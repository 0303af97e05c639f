package biz

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kart-io/sentinel-rag/internal/model"
	"github.com/kart-io/sentinel-rag/pkg/utils/httpclient"
	"github.com/kart-io/sentinel-rag/pkg/utils/json"
)

// cacheKeyAttribute LangCache 条目上保存缓存键的属性名。
const cacheKeyAttribute = "cache_key"

// LangCacheConfig LangCache 连接配置。
type LangCacheConfig struct {
	ServerURL string
	CacheID   string
	APIKey    string
	Timeout   time.Duration
	// TTL 条目过期时间，0 使用服务端默认值。
	TTL time.Duration
}

// LangCache 基于 LangCache REST 接口的远端缓存。
// 条目以缓存键为 prompt，并通过 cache_key 属性精确匹配，避免语义近似命中其他租户的条目。
type LangCache struct {
	config LangCacheConfig
	base   string
	client *httpclient.Client
}

var _ RemoteCache = (*LangCache)(nil)

// NewLangCache 创建 LangCache 客户端。
func NewLangCache(config LangCacheConfig) *LangCache {
	if config.Timeout <= 0 {
		config.Timeout = 3 * time.Second
	}
	return &LangCache{
		config: config,
		base:   fmt.Sprintf("%s/v1/caches/%s/entries", strings.TrimRight(config.ServerURL, "/"), config.CacheID),
		client: httpclient.NewClient(config.Timeout, 0),
	}
}

// Name 实现 RemoteCache。
func (c *LangCache) Name() string { return "langcache" }

type langCacheSearchRequest struct {
	Prompt     string            `json:"prompt"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

type langCacheEntry struct {
	ID         string            `json:"id"`
	Prompt     string            `json:"prompt"`
	Response   string            `json:"response"`
	Attributes map[string]string `json:"attributes"`
}

type langCacheSearchResponse struct {
	Data []langCacheEntry `json:"data"`
}

type langCacheSetRequest struct {
	Prompt     string            `json:"prompt"`
	Response   string            `json:"response"`
	Attributes map[string]string `json:"attributes,omitempty"`
	TTLMillis  int64             `json:"ttlMillis,omitempty"`
}

// Search 实现 RemoteCache。
func (c *LangCache) Search(ctx context.Context, key string) (*model.QueryResponse, error) {
	var out langCacheSearchResponse
	req := langCacheSearchRequest{Prompt: key, Attributes: map[string]string{cacheKeyAttribute: key}}
	if err := c.client.SendJSON(ctx, http.MethodPost, c.base+"/search", c.headers(), req, &out); err != nil {
		return nil, err
	}

	for _, e := range out.Data {
		if e.Attributes[cacheKeyAttribute] != key {
			continue
		}
		var resp model.QueryResponse
		if err := json.Unmarshal([]byte(e.Response), &resp); err != nil {
			return nil, fmt.Errorf("decode langcache entry %s: %w", e.ID, err)
		}
		return &resp, nil
	}
	return nil, nil
}

// Set 实现 RemoteCache。
func (c *LangCache) Set(ctx context.Context, key string, resp *model.QueryResponse) error {
	payload, err := json.MarshalString(resp)
	if err != nil {
		return err
	}
	req := langCacheSetRequest{
		Prompt:     key,
		Response:   payload,
		Attributes: map[string]string{cacheKeyAttribute: key},
		TTLMillis:  c.config.TTL.Milliseconds(),
	}
	return c.client.SendJSON(ctx, http.MethodPost, c.base, c.headers(), req, nil)
}

func (c *LangCache) headers() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+c.config.APIKey)
	return h
}
