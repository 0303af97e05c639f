// Package llm 提供统一的 LLM 供应商抽象层。
// 生成（Completion）与向量嵌入（Embedding）可以使用不同供应商的模型。
package llm

import (
	"context"
	"sort"
	"sync"

	"github.com/kart-io/sentinel-rag/pkg/errors"
)

// EmbeddingProvider 定义 Embedding 供应商接口。
type EmbeddingProvider interface {
	// Embed 为多个文本生成向量嵌入。
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedSingle 为单个文本生成向量嵌入。
	EmbedSingle(ctx context.Context, text string) ([]float32, error)

	// Name 返回供应商名称。
	Name() string
}

// CompletionProvider 定义生成后端接口。
type CompletionProvider interface {
	// Complete 执行一次对话补全。
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Name 返回供应商名称。
	Name() string
}

// Message 表示对话中的一条消息。
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Role 定义消息角色。
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// CompletionRequest 补全请求。Model 为空时使用供应商默认模型。
type CompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

// Usage token 使用量。
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionResponse 补全结果。Usage 在后端未返回时为 nil。
type CompletionResponse struct {
	Content string `json:"content"`
	Model   string `json:"model"`
	Usage   *Usage `json:"usage,omitempty"`
}

// Provider 同时支持 Embedding 和 Completion 的完整供应商。
type Provider interface {
	EmbeddingProvider
	CompletionProvider
}

// ProviderFactory 供应商工厂函数类型。
type ProviderFactory func(config map[string]any) (Provider, error)

// EmbeddingProviderFactory Embedding 供应商工厂函数类型。
type EmbeddingProviderFactory func(config map[string]any) (EmbeddingProvider, error)

// CompletionProviderFactory 生成后端工厂函数类型。
type CompletionProviderFactory func(config map[string]any) (CompletionProvider, error)

// registry 供应商注册表。
var registry = &providerRegistry{
	providers:           make(map[string]ProviderFactory),
	embeddingProviders:  make(map[string]EmbeddingProviderFactory),
	completionProviders: make(map[string]CompletionProviderFactory),
}

type providerRegistry struct {
	mu                  sync.RWMutex
	providers           map[string]ProviderFactory
	embeddingProviders  map[string]EmbeddingProviderFactory
	completionProviders map[string]CompletionProviderFactory
}

// RegisterProvider 注册完整供应商工厂。
func RegisterProvider(name string, factory ProviderFactory) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.providers[name] = factory
}

// RegisterEmbeddingProvider 注册 Embedding 供应商工厂。
func RegisterEmbeddingProvider(name string, factory EmbeddingProviderFactory) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.embeddingProviders[name] = factory
}

// RegisterCompletionProvider 注册生成后端工厂。
func RegisterCompletionProvider(name string, factory CompletionProviderFactory) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.completionProviders[name] = factory
}

// NewProvider 根据名称创建完整供应商实例。
func NewProvider(name string, config map[string]any) (Provider, error) {
	registry.mu.RLock()
	factory, ok := registry.providers[name]
	registry.mu.RUnlock()

	if !ok {
		return nil, errors.ErrRAGUnknownProvider.WithMessagef("unknown provider: %s", name)
	}

	return factory(config)
}

// NewEmbeddingProvider 根据名称创建 Embedding 供应商实例。
// 优先查找专用 Embedding 工厂，其次查找完整供应商工厂。
func NewEmbeddingProvider(name string, config map[string]any) (EmbeddingProvider, error) {
	registry.mu.RLock()
	embed, ok := registry.embeddingProviders[name]
	full, fullOK := registry.providers[name]
	registry.mu.RUnlock()

	if ok {
		return embed(config)
	}
	if fullOK {
		return full(config)
	}
	return nil, errors.ErrRAGUnknownProvider.WithMessagef("unknown embedding provider: %s", name)
}

// NewCompletionProvider 根据名称创建生成后端实例。
// 优先查找专用工厂，其次查找完整供应商工厂。
func NewCompletionProvider(name string, config map[string]any) (CompletionProvider, error) {
	registry.mu.RLock()
	completion, ok := registry.completionProviders[name]
	full, fullOK := registry.providers[name]
	registry.mu.RUnlock()

	if ok {
		return completion(config)
	}
	if fullOK {
		return full(config)
	}
	return nil, errors.ErrRAGUnknownProvider.WithMessagef("unknown completion provider: %s", name)
}

// ListProviders 列出所有已注册的供应商名称（已排序）。
func ListProviders() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	seen := make(map[string]struct{})
	for name := range registry.providers {
		seen[name] = struct{}{}
	}
	for name := range registry.embeddingProviders {
		seen[name] = struct{}{}
	}
	for name := range registry.completionProviders {
		seen[name] = struct{}{}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ToUsage 将三元计数组装为 Usage；全部为零时返回 nil。
func ToUsage(prompt, completion, total int) *Usage {
	if prompt == 0 && completion == 0 && total == 0 {
		return nil
	}
	if total == 0 {
		total = prompt + completion
	}
	return &Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: total}
}
