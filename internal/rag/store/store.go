// Package store 提供按租户打标签的向量存储。
//
// 写入前所有文本块都会被打上调用方租户的标签，检索时始终带租户过滤条件。
// 检索结果仍会在业务层经过隔离守卫的二次校验。
package store

import (
	"context"

	"github.com/kart-io/sentinel-rag/internal/model"
)

// SearchResult 表示检索结果。
type SearchResult struct {
	ID       string
	TenantID string
	Title    string
	Source   string
	Content  string
	// Score 余弦相似度。
	Score float32
}

// VectorStore 定义向量存储接口。
type VectorStore interface {
	// EnsureCollection 集合不存在时创建。
	EnsureCollection(ctx context.Context) error

	// Insert 以 tenantID 覆盖文本块的租户标签后写入，embeddings 与 docs 一一对应。
	Insert(ctx context.Context, tenantID string, docs []model.RetrievedChunk, embeddings [][]float32) ([]int64, error)

	// Search 在 tenantID 范围内做向量相似度搜索。
	Search(ctx context.Context, tenantID string, embedding []float32, topK int) ([]SearchResult, error)

	// Count 返回集合中的文本块数量。
	Count(ctx context.Context) (int64, error)

	Close(ctx context.Context) error
}
