package openai

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/sentinel-rag/pkg/llm"
	"github.com/kart-io/sentinel-rag/pkg/utils/json"
)

const testAPIKey = "test-key"

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "https://api.openai.com/v1", cfg.BaseURL)
	assert.Equal(t, "text-embedding-3-small", cfg.EmbedModel)
	assert.Equal(t, "gpt-4o-mini", cfg.ChatModel)
	assert.Equal(t, 60*time.Second, cfg.Timeout)
}

func TestPresetsRegistered(t *testing.T) {
	for name, preset := range Presets {
		p, err := llm.NewCompletionProvider(name, map[string]any{"api_key": testAPIKey})
		require.NoError(t, err, name)
		assert.Equal(t, name, p.Name())
		assert.Equal(t, preset.ChatModel, p.(*Provider).DefaultModel())
	}
}

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name      string
		config    map[string]any
		wantError bool
	}{
		{"valid config", map[string]any{"api_key": testAPIKey}, false},
		{"custom config", map[string]any{
			"api_key":      testAPIKey,
			"base_url":     "http://localhost:8080/v1",
			"chat_model":   "gpt-4o",
			"organization": "org-123",
			"timeout":      5 * time.Second,
			"max_retries":  0,
		}, false},
		{"missing api_key", map[string]any{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewProvider(tt.config)
			if tt.wantError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, ProviderName, provider.Name())
		})
	}
}

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewProviderWithConfig(&Config{
		Name:         "groq",
		BaseURL:      srv.URL,
		APIKey:       testAPIKey,
		ChatModel:    "default-model",
		EmbedModel:   "embed-model",
		Timeout:      time.Second,
		Organization: "org-1",
	})
}

func TestProviderComplete(t *testing.T) {
	var got chatRequest
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer "+testAPIKey, r.Header.Get("Authorization"))
		assert.Equal(t, "org-1", r.Header.Get("OpenAI-Organization"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))

		_, _ = w.Write([]byte(`{
			"model": "llama-3.1-8b-instant",
			"choices": [{"message": {"role": "assistant", "content": "We support retail [1]."}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 6, "total_tokens": 18}
		}`))
	})

	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages:    []llm.Message{{Role: llm.RoleSystem, Content: "sys"}, {Role: llm.RoleUser, Content: "q"}},
		Temperature: 0,
		MaxTokens:   256,
	})
	require.NoError(t, err)

	assert.Equal(t, "default-model", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	require.NotNil(t, got.Temperature, "温度为 0 时也要显式发送")
	assert.Equal(t, 0.0, *got.Temperature)
	assert.Equal(t, 256, got.MaxTokens)

	assert.Equal(t, "We support retail [1].", resp.Content)
	assert.Equal(t, "llama-3.1-8b-instant", resp.Model)
	assert.Equal(t, &llm.Usage{PromptTokens: 12, CompletionTokens: 6, TotalTokens: 18}, resp.Usage)
}

func TestProviderComplete_NoUsageNoChoices(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "hi"}}]}`))
	})
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{Model: "m"})
	require.NoError(t, err)
	assert.Nil(t, resp.Usage)
	assert.Equal(t, "m", resp.Model)

	empty := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices": []}`))
	})
	_, err = empty.Complete(context.Background(), llm.CompletionRequest{})
	assert.Error(t, err)
}

func TestProviderComplete_HTTPError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid key"}`))
	})
	_, err := p.Complete(context.Background(), llm.CompletionRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestProviderEmbed(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		// 乱序返回，验证按 index 还原
		_, _ = w.Write([]byte(`{"data":[
			{"embedding":[0.2,0.2],"index":1},
			{"embedding":[0.1,0.1],"index":0}
		]}`))
	})

	out, err := p.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.1, 0.1}, {0.2, 0.2}}, out)

	none, err := p.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestProviderEmbed_MissingVector(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1],"index":0}]}`))
	})
	_, err := p.Embed(context.Background(), []string{"a", "b"})
	assert.Error(t, err)
}

func TestProviderEmbed_NoModel(t *testing.T) {
	p, err := NewProviderFromPreset(Presets["groq"], map[string]any{"api_key": testAPIKey})
	require.NoError(t, err)
	_, err = p.EmbedSingle(context.Background(), "q")
	assert.Error(t, err)
}

