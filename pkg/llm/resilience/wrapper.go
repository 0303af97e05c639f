// Package resilience 为 LLM 供应商提供熔断与重试包装。
package resilience

import (
	"context"
	"errors"
	"net"

	"github.com/kart-io/logger"

	"github.com/kart-io/sentinel-rag/pkg/llm"
	"github.com/kart-io/sentinel-rag/pkg/resilience"
	"github.com/kart-io/sentinel-rag/pkg/utils/httpclient"
)

// Config 包装器配置。
type Config struct {
	// Attempts 总尝试次数（含首次），1 表示不重试。
	Attempts int
	Breaker  *resilience.CircuitBreakerConfig
}

func (c *Config) normalize(name string) *Config {
	out := Config{Attempts: 1}
	if c != nil {
		out = *c
	}
	if out.Attempts <= 0 {
		out.Attempts = 1
	}
	if out.Breaker == nil {
		out.Breaker = resilience.DefaultCircuitBreakerConfig()
	}
	if out.Breaker.Name == "" || out.Breaker.Name == "default" {
		b := *out.Breaker
		b.Name = name
		out.Breaker = &b
	}
	return &out
}

// ResilientCompletionProvider 带熔断和重试的生成后端。
type ResilientCompletionProvider struct {
	provider llm.CompletionProvider
	attempts int
	cb       *resilience.CircuitBreaker
}

// NewResilientCompletionProvider 包装生成后端。
func NewResilientCompletionProvider(provider llm.CompletionProvider, cfg *Config) *ResilientCompletionProvider {
	c := cfg.normalize(provider.Name())
	return &ResilientCompletionProvider{
		provider: provider,
		attempts: c.Attempts,
		cb:       resilience.NewCircuitBreaker(c.Breaker),
	}
}

// Complete 执行补全（带重试和熔断）。
func (r *ResilientCompletionProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return resilience.Retry(ctx, r.attempts, func(ctx context.Context) (*llm.CompletionResponse, error) {
		var resp *llm.CompletionResponse
		err := r.cb.Execute(func() error {
			var err error
			resp, err = r.provider.Complete(ctx, req)
			return err
		})
		return resp, err
	}, resilience.WithRetryable(IsRetryableError), resilience.OnRetry(logAttempt(r.provider.Name())))
}

// Name 返回底层供应商名称。
func (r *ResilientCompletionProvider) Name() string {
	return r.provider.Name()
}

// CircuitBreaker 返回熔断器实例（用于监控）。
func (r *ResilientCompletionProvider) CircuitBreaker() *resilience.CircuitBreaker {
	return r.cb
}

// ResilientEmbeddingProvider 带熔断和重试的 Embedding 供应商。
type ResilientEmbeddingProvider struct {
	provider llm.EmbeddingProvider
	attempts int
	cb       *resilience.CircuitBreaker
}

// NewResilientEmbeddingProvider 包装 Embedding 供应商。
func NewResilientEmbeddingProvider(provider llm.EmbeddingProvider, cfg *Config) *ResilientEmbeddingProvider {
	c := cfg.normalize(provider.Name() + "-embedding")
	return &ResilientEmbeddingProvider{
		provider: provider,
		attempts: c.Attempts,
		cb:       resilience.NewCircuitBreaker(c.Breaker),
	}
}

// Embed 为多个文本生成向量嵌入（带重试和熔断）。
func (r *ResilientEmbeddingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return resilience.Retry(ctx, r.attempts, func(ctx context.Context) ([][]float32, error) {
		var out [][]float32
		err := r.cb.Execute(func() error {
			var err error
			out, err = r.provider.Embed(ctx, texts)
			return err
		})
		return out, err
	}, resilience.WithRetryable(IsRetryableError), resilience.OnRetry(logAttempt(r.Name())))
}

// EmbedSingle 为单个文本生成向量嵌入（带重试和熔断）。
func (r *ResilientEmbeddingProvider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return resilience.Retry(ctx, r.attempts, func(ctx context.Context) ([]float32, error) {
		var out []float32
		err := r.cb.Execute(func() error {
			var err error
			out, err = r.provider.EmbedSingle(ctx, text)
			return err
		})
		return out, err
	}, resilience.WithRetryable(IsRetryableError), resilience.OnRetry(logAttempt(r.Name())))
}

// Name 返回底层供应商名称。
func (r *ResilientEmbeddingProvider) Name() string {
	return r.provider.Name()
}

// CircuitBreaker 返回熔断器实例（用于监控）。
func (r *ResilientEmbeddingProvider) CircuitBreaker() *resilience.CircuitBreaker {
	return r.cb
}

func logAttempt(name string) func(int, error) {
	return func(attempt int, err error) {
		logger.Warnw("llm call failed", "provider", name, "attempt", attempt, "error", err.Error())
	}
}

// IsRetryableError 判断错误是否值得重试。
// 熔断打开与上下文结束不重试；网络错误、5xx 与 429 重试。
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, resilience.ErrCircuitOpen) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

var (
	_ llm.CompletionProvider = (*ResilientCompletionProvider)(nil)
	_ llm.EmbeddingProvider  = (*ResilientEmbeddingProvider)(nil)
)
