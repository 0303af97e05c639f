// Package rag provides query pipeline configuration options.
package rag

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/sentinel-rag/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// DefaultSystemPrompt 生成时使用的基础系统提示，约束块在调用前追加。
const DefaultSystemPrompt = `You are a helpful assistant for a SaaS product. Answer the user's question using only the numbered context passages provided with the question.
Keep the answer concise and cite the passages you used with their numbers, for example [1][3].`

// Options 查询链路配置。
type Options struct {
	// DefaultK 请求未指定 k 时的检索数量。
	DefaultK int `json:"default-k" mapstructure:"default-k"`

	// DefaultProvider 请求未指定 llm_provider 时使用的生成后端。
	DefaultProvider string `json:"default-provider" mapstructure:"default-provider"`

	// RRFK RRF 平滑参数。
	RRFK float64 `json:"rrf-k" mapstructure:"rrf-k"`

	// SafetyWeight 安全分数权重。
	SafetyWeight float64 `json:"safety-weight" mapstructure:"safety-weight"`

	// BatchConcurrency 批量查询最大并发。
	BatchConcurrency int `json:"batch-concurrency" mapstructure:"batch-concurrency"`

	// ContextMaxChars 单个文本块进入上下文前的最大字符数。
	ContextMaxChars int `json:"context-max-chars" mapstructure:"context-max-chars"`

	// SystemPrompt 基础系统提示。
	SystemPrompt string `json:"system-prompt" mapstructure:"system-prompt"`

	// SearchURL 未启用 Milvus 时使用的 HTTP 搜索服务地址。
	SearchURL string `json:"search-url" mapstructure:"search-url"`

	// SearchTimeout 搜索服务请求超时。
	SearchTimeout time.Duration `json:"search-timeout" mapstructure:"search-timeout"`
}

// NewOptions 创建默认配置。
func NewOptions() *Options {
	return &Options{
		DefaultK:         5,
		DefaultProvider:  "groq",
		RRFK:             60,
		SafetyWeight:     0.3,
		BatchConcurrency: 4,
		ContextMaxChars:  2000,
		SystemPrompt:     DefaultSystemPrompt,
		SearchURL:        "http://localhost:8001",
		SearchTimeout:    10 * time.Second,
	}
}

// AddFlags adds flags for RAG options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "rag."
	fs.IntVar(&o.DefaultK, p+"default-k", o.DefaultK, "Chunks retrieved when the request omits k.")
	fs.StringVar(&o.DefaultProvider, p+"default-provider", o.DefaultProvider, "Generation backend used when the request omits llm_provider.")
	fs.Float64Var(&o.RRFK, p+"rrf-k", o.RRFK, "Reciprocal rank fusion constant.")
	fs.Float64Var(&o.SafetyWeight, p+"safety-weight", o.SafetyWeight, "Weight of the safety score in the final rank.")
	fs.IntVar(&o.BatchConcurrency, p+"batch-concurrency", o.BatchConcurrency, "Maximum in-flight queries per batch.")
	fs.IntVar(&o.ContextMaxChars, p+"context-max-chars", o.ContextMaxChars, "Maximum characters per chunk placed in the prompt.")
	fs.StringVar(&o.SystemPrompt, p+"system-prompt", o.SystemPrompt, "Base system prompt.")
	fs.StringVar(&o.SearchURL, p+"search-url", o.SearchURL, "Search service base URL used when Milvus is disabled.")
	fs.DurationVar(&o.SearchTimeout, p+"search-timeout", o.SearchTimeout, "Search service request timeout.")
}

// Validate validates the RAG options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.DefaultK < 1 || o.DefaultK > 50 {
		errs = append(errs, fmt.Errorf("rag.default-k must be within [1, 50]"))
	}
	if o.DefaultProvider == "" {
		errs = append(errs, fmt.Errorf("rag.default-provider is required"))
	}
	if o.RRFK <= 0 {
		errs = append(errs, fmt.Errorf("rag.rrf-k must be positive"))
	}
	if o.SafetyWeight < 0 || o.SafetyWeight > 1 {
		errs = append(errs, fmt.Errorf("rag.safety-weight must be within [0, 1]"))
	}
	if o.BatchConcurrency < 1 {
		errs = append(errs, fmt.Errorf("rag.batch-concurrency must be positive"))
	}
	return errs
}
