package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/sentinel-rag/pkg/errors"
)

// mockProvider 模拟供应商实现，用于测试。
type mockProvider struct {
	name string
}

func (m *mockProvider) Name() string {
	return m.name
}

func (m *mockProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i := range texts {
		result[i] = []float32{0.1, 0.2, 0.3}
	}
	return result, nil
}

func (m *mockProvider) EmbedSingle(_ context.Context, _ string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func (m *mockProvider) Complete(_ context.Context, req CompletionRequest) (*CompletionResponse, error) {
	return &CompletionResponse{Content: "mock response", Model: req.Model}, nil
}

func TestRegisterAndNewProvider(t *testing.T) {
	RegisterProvider("test-provider", func(config map[string]any) (Provider, error) {
		name := "test-provider"
		if n, ok := config["name"].(string); ok {
			name = n
		}
		return &mockProvider{name: name}, nil
	})

	provider, err := NewProvider("test-provider", map[string]any{"name": "custom-name"})
	require.NoError(t, err)
	assert.Equal(t, "custom-name", provider.Name())

	// 完整供应商可以作为生成后端和 Embedding 供应商使用
	completion, err := NewCompletionProvider("test-provider", nil)
	require.NoError(t, err)
	resp, err := completion.Complete(context.Background(), CompletionRequest{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "mock response", resp.Content)

	embed, err := NewEmbeddingProvider("test-provider", nil)
	require.NoError(t, err)
	assert.Equal(t, "test-provider", embed.Name())
}

func TestNewProviderUnknown(t *testing.T) {
	_, err := NewProvider("unknown-provider", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrRAGUnknownProvider)

	_, err = NewCompletionProvider("unknown-provider", nil)
	assert.ErrorIs(t, err, errors.ErrRAGUnknownProvider)

	_, err = NewEmbeddingProvider("unknown-provider", nil)
	assert.ErrorIs(t, err, errors.ErrRAGUnknownProvider)
}

func TestDedicatedFactoriesTakePrecedence(t *testing.T) {
	RegisterProvider("dual", func(map[string]any) (Provider, error) {
		return &mockProvider{name: "full"}, nil
	})
	RegisterCompletionProvider("dual", func(map[string]any) (CompletionProvider, error) {
		return &mockProvider{name: "completion-only"}, nil
	})
	RegisterEmbeddingProvider("dual", func(map[string]any) (EmbeddingProvider, error) {
		return &mockProvider{name: "embed-only"}, nil
	})

	c, err := NewCompletionProvider("dual", nil)
	require.NoError(t, err)
	assert.Equal(t, "completion-only", c.Name())

	e, err := NewEmbeddingProvider("dual", nil)
	require.NoError(t, err)
	assert.Equal(t, "embed-only", e.Name())
}

func TestListProviders(t *testing.T) {
	RegisterCompletionProvider("list-a", func(map[string]any) (CompletionProvider, error) {
		return &mockProvider{name: "list-a"}, nil
	})
	RegisterEmbeddingProvider("list-b", func(map[string]any) (EmbeddingProvider, error) {
		return &mockProvider{name: "list-b"}, nil
	})

	names := ListProviders()
	assert.Contains(t, names, "list-a")
	assert.Contains(t, names, "list-b")
	assert.IsIncreasing(t, names)
}

func TestToUsage(t *testing.T) {
	assert.Nil(t, ToUsage(0, 0, 0))
	assert.Equal(t, &Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}, ToUsage(10, 5, 0))
	assert.Equal(t, 20, ToUsage(10, 5, 20).TotalTokens)
}
