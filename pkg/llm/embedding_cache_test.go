package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	calls int
	texts []string
}

func (c *countingEmbedder) Name() string { return "counting" }

func (c *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	c.calls++
	c.texts = append(c.texts, texts...)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

func (c *countingEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	out, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func TestCachedEmbeddingProvider_LocalOnly(t *testing.T) {
	base := &countingEmbedder{}
	p := NewCachedEmbeddingProvider(base, nil, nil)

	v1, err := p.EmbedSingle(context.Background(), "hello")
	require.NoError(t, err)
	v2, err := p.EmbedSingle(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, base.calls)
	assert.Equal(t, "counting", p.Name())
}

func TestCachedEmbeddingProvider_BatchOnlyEmbedsMisses(t *testing.T) {
	base := &countingEmbedder{}
	p := NewCachedEmbeddingProvider(base, nil, nil)

	_, err := p.EmbedSingle(context.Background(), "a")
	require.NoError(t, err)

	out, err := p.Embed(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1}, {2}, {3}}, out)
	assert.Equal(t, []string{"a", "bb", "ccc"}, base.texts, "第二次只请求未命中的文本")
	assert.Equal(t, 2, base.calls)

	_, err = p.Embed(context.Background(), []string{"bb", "ccc"})
	require.NoError(t, err)
	assert.Equal(t, 2, base.calls)
}
