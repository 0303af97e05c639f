package biz

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kart-io/sentinel-rag/internal/model"
	"github.com/kart-io/sentinel-rag/internal/rag/store"
	"github.com/kart-io/sentinel-rag/pkg/errors"
	"github.com/kart-io/sentinel-rag/pkg/llm"
	"github.com/kart-io/sentinel-rag/pkg/utils/httpclient"
)

// Retriever 按租户检索文本块。返回结果必须已规范化为 RetrievedChunk。
type Retriever interface {
	Retrieve(ctx context.Context, tenantID, query string, k int) ([]model.RetrievedChunk, error)
	Close() error
}

var (
	textKeys   = []string{"pageContent", "page_content", "content", "chunk_text", "text", "document"}
	tenantKeys = []string{"tenant_id", "tenantId"}
	idKeys     = []string{"id", "chunk_id", "chunkId"}
	titleKeys  = []string{"title", "name"}
	scoreKeys  = []string{"similarity", "score"}
	sourceKeys = []string{"source", "url"}
)

// NormalizeChunk 将不同来源的原始文本块结构规范化。
// 字段先从嵌套的 metadata 中取，再回退到顶层。顶层与 metadata 的
// 租户标签不一致时租户置空，由隔离守卫按缺失处理。
func NormalizeChunk(raw map[string]any) model.RetrievedChunk {
	meta, _ := raw["metadata"].(map[string]any)

	lookup := func(keys []string) (any, bool) {
		for _, src := range []map[string]any{meta, raw} {
			for _, k := range keys {
				if v, ok := src[k]; ok && v != nil {
					if s, isStr := v.(string); isStr && s == "" {
						continue
					}
					return v, true
				}
			}
		}
		return nil, false
	}
	str := func(keys []string) string {
		v, ok := lookup(keys)
		if !ok {
			return ""
		}
		if s, isStr := v.(string); isStr {
			return s
		}
		return fmt.Sprint(v)
	}

	c := model.RetrievedChunk{
		Metadata: model.ChunkMetadata{
			ID:     str(idKeys),
			Title:  str(titleKeys),
			Source: str(sourceKeys),
		},
	}
	for _, k := range textKeys {
		if s, ok := raw[k].(string); ok && s != "" {
			c.Text = s
			break
		}
	}
	if v, ok := lookup(scoreKeys); ok {
		c.Metadata.Similarity = toFloat(v)
	}
	c.Metadata.TenantID = resolveTenant(meta, raw)

	consumed := make(map[string]struct{})
	for _, group := range [][]string{textKeys, tenantKeys, idKeys, titleKeys, scoreKeys, sourceKeys} {
		for _, k := range group {
			consumed[k] = struct{}{}
		}
	}
	for k, v := range meta {
		if _, ok := consumed[k]; ok {
			continue
		}
		if c.Metadata.Extra == nil {
			c.Metadata.Extra = make(map[string]any)
		}
		c.Metadata.Extra[k] = v
	}
	return c
}

// NormalizeChunks 批量规范化。
func NormalizeChunks(raws []map[string]any) []model.RetrievedChunk {
	out := make([]model.RetrievedChunk, len(raws))
	for i, r := range raws {
		out[i] = NormalizeChunk(r)
	}
	return out
}

func resolveTenant(meta, raw map[string]any) string {
	var found string
	for _, src := range []map[string]any{meta, raw} {
		for _, k := range tenantKeys {
			s, ok := src[k].(string)
			if !ok || strings.TrimSpace(s) == "" {
				continue
			}
			if found != "" && found != s {
				return ""
			}
			found = s
		}
	}
	return found
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return f
	default:
		return 0
	}
}

// MilvusRetriever 通过 embedding + Milvus 租户过滤检索。
type MilvusRetriever struct {
	embedder llm.EmbeddingProvider
	store    store.VectorStore
}

// NewMilvusRetriever 创建基于向量库的检索器。
func NewMilvusRetriever(embedder llm.EmbeddingProvider, vs store.VectorStore) *MilvusRetriever {
	return &MilvusRetriever{embedder: embedder, store: vs}
}

// Retrieve 实现 Retriever。
func (r *MilvusRetriever) Retrieve(ctx context.Context, tenantID, query string, k int) ([]model.RetrievedChunk, error) {
	vec, err := r.embedder.EmbedSingle(ctx, query)
	if err != nil {
		return nil, errors.ErrRAGRetrievalFailed.WithCause(fmt.Errorf("embed query: %w", err))
	}

	hits, err := r.store.Search(ctx, tenantID, vec, k)
	if err != nil {
		return nil, errors.ErrRAGRetrievalFailed.WithCause(err)
	}

	out := make([]model.RetrievedChunk, 0, len(hits))
	for _, h := range hits {
		out = append(out, model.RetrievedChunk{
			Text: h.Content,
			Metadata: model.ChunkMetadata{
				ID:         h.ID,
				TenantID:   h.TenantID,
				Title:      h.Title,
				Source:     h.Source,
				Similarity: float64(h.Score),
			},
		})
	}
	return out, nil
}

// Close 关闭底层存储连接。
func (r *MilvusRetriever) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.store.Close(ctx)
}

// HTTPRetriever 调用外部搜索服务：POST {base}/search。
type HTTPRetriever struct {
	baseURL string
	client  *httpclient.Client
}

// NewHTTPRetriever 创建搜索服务检索器。
func NewHTTPRetriever(baseURL string, timeout time.Duration) *HTTPRetriever {
	return &HTTPRetriever{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpclient.NewClient(timeout, 0),
	}
}

type searchRequest struct {
	TenantID string `json:"tenant_id"`
	Query    string `json:"query"`
	K        int    `json:"k"`
}

type searchResponse struct {
	Hits  []map[string]any `json:"hits"`
	Total int              `json:"total"`
}

// Retrieve 实现 Retriever。
func (r *HTTPRetriever) Retrieve(ctx context.Context, tenantID, query string, k int) ([]model.RetrievedChunk, error) {
	var resp searchResponse
	req := searchRequest{TenantID: tenantID, Query: query, K: k}
	if err := r.client.SendJSON(ctx, http.MethodPost, r.baseURL+"/search", nil, req, &resp); err != nil {
		return nil, errors.ErrRAGRetrievalFailed.WithCause(err)
	}
	return NormalizeChunks(resp.Hits), nil
}

// Close 无需释放资源。
func (r *HTTPRetriever) Close() error { return nil }
