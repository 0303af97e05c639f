package biz

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/sentinel-rag/internal/model"
	"github.com/kart-io/sentinel-rag/internal/rag/store"
	"github.com/kart-io/sentinel-rag/pkg/errors"
	"github.com/kart-io/sentinel-rag/pkg/utils/json"
)

func TestNormalizeChunk_Shapes(t *testing.T) {
	tests := []struct {
		name   string
		raw    map[string]any
		text   string
		tenant string
		id     string
		sim    float64
	}{
		{
			name:   "langchain style",
			raw:    map[string]any{"pageContent": "hello", "metadata": map[string]any{"tenant_id": "tn_abc", "id": "1", "similarity": 0.9}},
			text:   "hello",
			tenant: "tn_abc",
			id:     "1",
			sim:    0.9,
		},
		{
			name:   "flat with camel tenant",
			raw:    map[string]any{"content": "flat", "tenantId": "tn_abc", "chunk_id": "c9", "score": "0.5"},
			text:   "flat",
			tenant: "tn_abc",
			id:     "c9",
			sim:    0.5,
		},
		{
			name:   "chunk_text with numeric id",
			raw:    map[string]any{"chunk_text": "ct", "metadata": map[string]any{"tenant_id": "tn_abc", "id": 42, "score": float32(0.25)}},
			text:   "ct",
			tenant: "tn_abc",
			id:     "42",
			sim:    0.25,
		},
		{
			name: "conflicting tenants",
			raw:  map[string]any{"text": "t", "tenant_id": "tn_abc", "metadata": map[string]any{"tenant_id": "tn_xyz"}},
			text: "t",
		},
		{
			name: "missing tenant",
			raw:  map[string]any{"text": "t"},
			text: "t",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NormalizeChunk(tt.raw)
			assert.Equal(t, tt.text, c.Text)
			assert.Equal(t, tt.tenant, c.Metadata.TenantID)
			assert.Equal(t, tt.id, c.Metadata.ID)
			assert.InDelta(t, tt.sim, c.Metadata.Similarity, 1e-6)
		})
	}
}

func TestNormalizeChunk_ExtraMetadata(t *testing.T) {
	c := NormalizeChunk(map[string]any{
		"content":  "x",
		"metadata": map[string]any{"tenant_id": "tn_abc", "title": "Doc", "page": 3},
	})
	assert.Equal(t, "Doc", c.Metadata.Title)
	assert.Equal(t, map[string]any{"page": 3}, c.Metadata.Extra)
}

func TestHTTPRetriever(t *testing.T) {
	var got searchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"hits":[{"content":"a","metadata":{"tenant_id":"tn_abc","id":"1","similarity":0.8}}],"total":1}`))
	}))
	defer srv.Close()

	r := NewHTTPRetriever(srv.URL, time.Second)
	chunks, err := r.Retrieve(context.Background(), "tn_abc", "q", 3)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "tn_abc", chunks[0].Metadata.TenantID)
	assert.Equal(t, searchRequest{TenantID: "tn_abc", Query: "q", K: 3}, got)
	assert.NoError(t, r.Close())
}

func TestHTTPRetriever_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewHTTPRetriever(srv.URL, time.Second).Retrieve(context.Background(), "tn_abc", "q", 3)
	assert.ErrorIs(t, err, errors.ErrRAGRetrievalFailed)
}

type fakeEmbedder struct{ err error }

func (f fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2}
	}
	return out, f.err
}

func (f fakeEmbedder) EmbedSingle(_ context.Context, _ string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2}, nil
}

func (fakeEmbedder) Name() string { return "fake" }

type fakeVectorStore struct {
	hits       []store.SearchResult
	lastTenant string
}

func (f *fakeVectorStore) EnsureCollection(context.Context) error { return nil }

func (f *fakeVectorStore) Insert(_ context.Context, _ string, docs []model.RetrievedChunk, _ [][]float32) ([]int64, error) {
	return make([]int64, len(docs)), nil
}

func (f *fakeVectorStore) Search(_ context.Context, tenantID string, _ []float32, topK int) ([]store.SearchResult, error) {
	f.lastTenant = tenantID
	if len(f.hits) > topK {
		return f.hits[:topK], nil
	}
	return f.hits, nil
}

func (f *fakeVectorStore) Count(context.Context) (int64, error) { return int64(len(f.hits)), nil }

func (f *fakeVectorStore) Close(context.Context) error { return nil }

func TestMilvusRetriever(t *testing.T) {
	vs := &fakeVectorStore{hits: []store.SearchResult{
		{ID: "c1", TenantID: "tn_abc", Title: "Retail", Content: "retail text", Score: 0.9},
		{ID: "c2", TenantID: "tn_abc", Title: "Health", Content: "health text", Score: 0.7},
	}}
	r := NewMilvusRetriever(fakeEmbedder{}, vs)

	chunks, err := r.Retrieve(context.Background(), "tn_abc", "q", 1)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "tn_abc", vs.lastTenant)
	assert.Equal(t, "retail text", chunks[0].Text)
	assert.Equal(t, "Retail", chunks[0].Metadata.Title)
	assert.InDelta(t, 0.9, chunks[0].Metadata.Similarity, 1e-6)
	assert.NoError(t, r.Close())
}

func TestMilvusRetriever_EmbedError(t *testing.T) {
	r := NewMilvusRetriever(fakeEmbedder{err: errBackendDown}, &fakeVectorStore{})
	_, err := r.Retrieve(context.Background(), "tn_abc", "q", 1)
	assert.ErrorIs(t, err, errors.ErrRAGRetrievalFailed)
	assert.ErrorIs(t, err, errBackendDown)
}
