// Package openai 提供兼容 OpenAI Chat Completions / Embeddings 协议的供应商实现。
//
// 同一实现以不同名称注册多个预设：openai、groq、deepseek、siliconflow，
// 它们只在默认地址与默认模型上不同。
//
//	import _ "github.com/kart-io/sentinel-rag/pkg/llm/openai"
//
//	backend, err := llm.NewCompletionProvider("groq", map[string]any{
//	    "api_key": os.Getenv("GROQ_API_KEY"),
//	})
//	resp, err := backend.Complete(ctx, llm.CompletionRequest{
//	    Messages: []llm.Message{{Role: llm.RoleUser, Content: "你好"}},
//	})
package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/kart-io/sentinel-rag/pkg/llm"
	"github.com/kart-io/sentinel-rag/pkg/utils/httpclient"
)

// ProviderName 是 OpenAI 供应商的名称标识符。
const ProviderName = "openai"

// Preset 兼容协议供应商的默认值。
type Preset struct {
	Name       string
	BaseURL    string
	ChatModel  string
	EmbedModel string
}

// Presets 内置预设。EmbedModel 为空表示该服务不提供 Embedding。
var Presets = map[string]Preset{
	"openai": {
		Name:       "openai",
		BaseURL:    "https://api.openai.com/v1",
		ChatModel:  "gpt-4o-mini",
		EmbedModel: "text-embedding-3-small",
	},
	"groq": {
		Name:      "groq",
		BaseURL:   "https://api.groq.com/openai/v1",
		ChatModel: "llama-3.1-8b-instant",
	},
	"deepseek": {
		Name:      "deepseek",
		BaseURL:   "https://api.deepseek.com/v1",
		ChatModel: "deepseek-chat",
	},
	"siliconflow": {
		Name:       "siliconflow",
		BaseURL:    "https://api.siliconflow.cn/v1",
		ChatModel:  "Qwen/Qwen2.5-7B-Instruct",
		EmbedModel: "BAAI/bge-m3",
	},
}

func init() {
	for name, preset := range Presets {
		p := preset
		llm.RegisterProvider(name, func(config map[string]any) (llm.Provider, error) {
			provider, err := NewProviderFromPreset(p, config)
			if err != nil {
				return nil, err
			}
			return provider, nil
		})
	}
}

// Config 供应商配置。
type Config struct {
	// Name 供应商名称，用于日志和响应中的 llm_provider。
	Name string `json:"name" mapstructure:"name"`

	// BaseURL API 基础地址。
	BaseURL string `json:"base_url" mapstructure:"base_url"`

	// APIKey API 密钥。
	APIKey string `json:"api_key" mapstructure:"api_key"`

	// EmbedModel 用于生成嵌入的模型。
	EmbedModel string `json:"embed_model" mapstructure:"embed_model"`

	// ChatModel 请求未指定模型时使用的默认模型。
	ChatModel string `json:"chat_model" mapstructure:"chat_model"`

	// Timeout 请求超时时间。
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// MaxRetries 5xx 时的额外重试次数。
	MaxRetries int `json:"max_retries" mapstructure:"max_retries"`

	// Organization 组织 ID（可选）。
	Organization string `json:"organization" mapstructure:"organization"`
}

// DefaultConfig 返回 openai 预设的默认配置。
func DefaultConfig() *Config {
	return configFromPreset(Presets[ProviderName])
}

func configFromPreset(p Preset) *Config {
	return &Config{
		Name:       p.Name,
		BaseURL:    p.BaseURL,
		ChatModel:  p.ChatModel,
		EmbedModel: p.EmbedModel,
		Timeout:    60 * time.Second,
		MaxRetries: 1,
	}
}

// Provider OpenAI 兼容供应商实现。
type Provider struct {
	config *Config
	client *httpclient.Client
}

// NewProvider 从配置 map 创建 openai 预设的供应商。
func NewProvider(configMap map[string]any) (llm.Provider, error) {
	provider, err := NewProviderFromPreset(Presets[ProviderName], configMap)
	if err != nil {
		return nil, err
	}
	return provider, nil
}

// NewProviderFromPreset 以预设为默认值，从配置 map 创建供应商。
func NewProviderFromPreset(preset Preset, configMap map[string]any) (*Provider, error) {
	cfg := configFromPreset(preset)

	if v, ok := configMap["base_url"].(string); ok && v != "" {
		cfg.BaseURL = v
	}
	if v, ok := configMap["api_key"].(string); ok && v != "" {
		cfg.APIKey = v
	}
	if v, ok := configMap["embed_model"].(string); ok && v != "" {
		cfg.EmbedModel = v
	}
	if v, ok := configMap["chat_model"].(string); ok && v != "" {
		cfg.ChatModel = v
	}
	if v, ok := configMap["timeout"].(time.Duration); ok && v > 0 {
		cfg.Timeout = v
	}
	if v, ok := configMap["max_retries"].(int); ok && v >= 0 {
		cfg.MaxRetries = v
	}
	if v, ok := configMap["organization"].(string); ok && v != "" {
		cfg.Organization = v
	}

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: api_key 是必需的", cfg.Name)
	}

	return NewProviderWithConfig(cfg), nil
}

// NewProviderWithConfig 使用结构化配置创建供应商。
func NewProviderWithConfig(cfg *Config) *Provider {
	if cfg.Name == "" {
		cfg.Name = ProviderName
	}
	return &Provider{
		config: cfg,
		client: httpclient.NewClient(cfg.Timeout, cfg.MaxRetries),
	}
}

// Name 返回供应商名称。
func (p *Provider) Name() string {
	return p.config.Name
}

// DefaultModel 返回默认对话模型。
func (p *Provider) DefaultModel() string {
	return p.config.ChatModel
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

// Embed 为多个文本生成向量嵌入。
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if p.config.EmbedModel == "" {
		return nil, fmt.Errorf("%s: 未配置 embed_model", p.config.Name)
	}

	var resp embeddingResponse
	req := embeddingRequest{Model: p.config.EmbedModel, Input: texts}
	if err := p.client.SendJSON(ctx, http.MethodPost, p.config.BaseURL+"/embeddings", p.headers(), req, &resp); err != nil {
		return nil, err
	}

	// 按 index 排序确保顺序正确
	embeddings := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index >= 0 && d.Index < len(embeddings) {
			embeddings[d.Index] = d.Embedding
		}
	}
	for i, e := range embeddings {
		if e == nil {
			return nil, fmt.Errorf("%s: 缺少第 %d 个向量", p.config.Name, i)
		}
	}
	return embeddings, nil
}

// EmbedSingle 为单个文本生成向量嵌入。
func (p *Provider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Complete 执行一次对话补全。
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.config.ChatModel
	}

	body := chatRequest{
		Model:     model,
		Messages:  make([]chatMessage, len(req.Messages)),
		MaxTokens: req.MaxTokens,
	}
	for i, m := range req.Messages {
		body.Messages[i] = chatMessage{Role: string(m.Role), Content: m.Content}
	}
	temperature := req.Temperature
	body.Temperature = &temperature

	var resp chatResponse
	if err := p.client.SendJSON(ctx, http.MethodPost, p.config.BaseURL+"/chat/completions", p.headers(), body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s: 未返回响应内容", p.config.Name)
	}

	out := &llm.CompletionResponse{
		Content: resp.Choices[0].Message.Content,
		Model:   resp.Model,
	}
	if out.Model == "" {
		out.Model = model
	}
	if resp.Usage != nil {
		out.Usage = llm.ToUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
	}
	return out, nil
}

func (p *Provider) headers() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+p.config.APIKey)
	if p.config.Organization != "" {
		h.Set("OpenAI-Organization", p.config.Organization)
	}
	return h
}

var _ llm.Provider = (*Provider)(nil)
