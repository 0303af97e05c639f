package store

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus/client/v2/entity"

	"github.com/kart-io/sentinel-rag/internal/model"
	"github.com/kart-io/sentinel-rag/internal/pkg/rag/isolation"
	"github.com/kart-io/sentinel-rag/pkg/component/milvus"
	"github.com/kart-io/sentinel-rag/pkg/errors"
)

// 集合标量字段。
const (
	FieldTenantID = "tenant_id"
	FieldChunkID  = "chunk_id"
	FieldTitle    = "title"
	FieldSource   = "source"
	FieldContent  = "content"
)

var outputFields = []string{FieldTenantID, FieldChunkID, FieldTitle, FieldSource, FieldContent}

// milvusClient 是 MilvusStore 依赖的 Milvus 操作集合。
type milvusClient interface {
	EnsureCollection(ctx context.Context, schema *milvus.CollectionSchema) error
	Insert(ctx context.Context, collection string, data *milvus.InsertData) ([]int64, error)
	Search(ctx context.Context, req milvus.SearchRequest) ([]milvus.SearchResult, error)
	GetCollectionStats(ctx context.Context, collection string) (int64, error)
	Close(ctx context.Context) error
}

// MilvusStore 实现基于 Milvus 的向量存储。
type MilvusStore struct {
	client     milvusClient
	collection string
	dimension  int
}

var _ VectorStore = (*MilvusStore)(nil)

// NewMilvusStore 创建 Milvus 存储实例。
func NewMilvusStore(client milvusClient, collection string, dimension int) *MilvusStore {
	return &MilvusStore{client: client, collection: collection, dimension: dimension}
}

// TenantFilter 返回限定租户的过滤表达式。
func TenantFilter(tenantID string) string {
	return milvus.EqualsExpr(FieldTenantID, tenantID)
}

// EnsureCollection 创建集合。
func (s *MilvusStore) EnsureCollection(ctx context.Context) error {
	return s.client.EnsureCollection(ctx, &milvus.CollectionSchema{
		Name:        s.collection,
		Description: "tenant-tagged knowledge chunks",
		Dimension:   s.dimension,
		MetaFields: []milvus.MetaField{
			{Name: FieldTenantID, DataType: entity.FieldTypeVarChar, MaxLen: 128},
			{Name: FieldChunkID, DataType: entity.FieldTypeVarChar, MaxLen: 128},
			{Name: FieldTitle, DataType: entity.FieldTypeVarChar, MaxLen: 512},
			{Name: FieldSource, DataType: entity.FieldTypeVarChar, MaxLen: 1024},
			{Name: FieldContent, DataType: entity.FieldTypeVarChar, MaxLen: 65535},
		},
	})
}

// Insert 批量写入文本块。
func (s *MilvusStore) Insert(ctx context.Context, tenantID string, docs []model.RetrievedChunk, embeddings [][]float32) ([]int64, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	if len(docs) != len(embeddings) {
		return nil, fmt.Errorf("got %d chunks but %d embeddings", len(docs), len(embeddings))
	}

	guard, err := isolation.NewGuard(tenantID)
	if err != nil {
		return nil, err
	}
	tagged := guard.EnforceWriteIsolation(docs)

	fields := map[string][]any{
		FieldTenantID: make([]any, len(tagged)),
		FieldChunkID:  make([]any, len(tagged)),
		FieldTitle:    make([]any, len(tagged)),
		FieldSource:   make([]any, len(tagged)),
		FieldContent:  make([]any, len(tagged)),
	}
	for i, d := range tagged {
		fields[FieldTenantID][i] = d.Metadata.TenantID
		fields[FieldChunkID][i] = d.Metadata.ID
		fields[FieldTitle][i] = d.Metadata.Title
		fields[FieldSource][i] = d.Metadata.Source
		fields[FieldContent][i] = d.Text
	}

	ids, err := s.client.Insert(ctx, s.collection, &milvus.InsertData{Embeddings: embeddings, Fields: fields})
	if err != nil {
		return nil, fmt.Errorf("failed to insert into milvus: %w", err)
	}
	return ids, nil
}

// Search 执行带租户过滤的相似度搜索。
func (s *MilvusStore) Search(ctx context.Context, tenantID string, embedding []float32, topK int) ([]SearchResult, error) {
	if tenantID == "" {
		return nil, errors.ErrRAGInvalidRequest.WithMessage("tenant_id is required for search")
	}

	hits, err := s.client.Search(ctx, milvus.SearchRequest{
		Collection:   s.collection,
		Vector:       embedding,
		TopK:         topK,
		Filter:       TenantFilter(tenantID),
		OutputFields: outputFields,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search milvus: %w", err)
	}

	out := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		r := SearchResult{
			TenantID: stringField(h.Fields, FieldTenantID),
			ID:       stringField(h.Fields, FieldChunkID),
			Title:    stringField(h.Fields, FieldTitle),
			Source:   stringField(h.Fields, FieldSource),
			Content:  stringField(h.Fields, FieldContent),
			Score:    h.Score,
		}
		if r.ID == "" {
			r.ID = fmt.Sprintf("%d", h.ID)
		}
		out = append(out, r)
	}
	return out, nil
}

// Count 返回集合行数。
func (s *MilvusStore) Count(ctx context.Context) (int64, error) {
	return s.client.GetCollectionStats(ctx, s.collection)
}

// Close 关闭连接。
func (s *MilvusStore) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

func stringField(fields map[string]any, name string) string {
	if v, ok := fields[name].(string); ok {
		return v
	}
	return ""
}
