// Package llm provides LLM provider configuration options.
package llm

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/sentinel-rag/pkg/options"
)

var _ options.IOptions = (*ProviderOptions)(nil)

// ProviderOptions 定义 LLM 供应商配置，生成与 Embedding 各用一份。
type ProviderOptions struct {
	// Provider 供应商名称（groq, openai, deepseek, siliconflow, ollama）。
	Provider string `json:"provider" mapstructure:"provider"`

	// BaseURL API 基础地址，为空时使用预设地址。
	BaseURL string `json:"base-url" mapstructure:"base-url"`

	// APIKey 为空时读取 <PROVIDER>_API_KEY 环境变量。
	APIKey string `json:"-" mapstructure:"api-key"`

	// Model 默认模型，为空时使用预设模型。
	Model string `json:"model" mapstructure:"model"`

	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// MaxRetries 5xx 时的额外重试次数。
	MaxRetries int `json:"max-retries" mapstructure:"max-retries"`

	Organization string `json:"organization" mapstructure:"organization"`

	// 以下两项仅对生成生效。
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `json:"max-tokens" mapstructure:"max-tokens"`

	// 熔断配置。
	BreakerMaxFailures int           `json:"breaker-max-failures" mapstructure:"breaker-max-failures"`
	BreakerTimeout     time.Duration `json:"breaker-timeout" mapstructure:"breaker-timeout"`

	flagName string
}

// NewChatOptions 创建默认生成后端配置。
func NewChatOptions() *ProviderOptions {
	return &ProviderOptions{
		Provider:           "groq",
		Timeout:            60 * time.Second,
		MaxRetries:         1,
		Temperature:        0.2,
		MaxTokens:          800,
		BreakerMaxFailures: 5,
		BreakerTimeout:     30 * time.Second,
		flagName:           "llm",
	}
}

// NewEmbeddingOptions 创建默认 Embedding 供应商配置。
func NewEmbeddingOptions() *ProviderOptions {
	return &ProviderOptions{
		Provider:           "siliconflow",
		Timeout:            30 * time.Second,
		MaxRetries:         1,
		BreakerMaxFailures: 5,
		BreakerTimeout:     30 * time.Second,
		flagName:           "embedding",
	}
}

// APIKeyEnv 返回该供应商默认读取的环境变量名，例如 GROQ_API_KEY。
func (o *ProviderOptions) APIKeyEnv() string {
	return strings.ToUpper(o.Provider) + "_API_KEY"
}

// Complete 从环境变量补全 API key。
func (o *ProviderOptions) Complete() error {
	if o.APIKey == "" && o.Provider != "" {
		o.APIKey = os.Getenv(o.APIKeyEnv())
	}
	return nil
}

// ForProvider 返回指向另一个供应商的配置副本。
// 地址、模型与密钥回到该供应商的预设，密钥从其环境变量读取。
func (o *ProviderOptions) ForProvider(name string) *ProviderOptions {
	if name == o.Provider {
		return o
	}
	out := *o
	out.Provider = name
	out.BaseURL = ""
	out.Model = ""
	out.APIKey = ""
	out.Organization = ""
	_ = out.Complete()
	return &out
}

// ToConfigMap 转换为配置 map，用于供应商工厂。空值由供应商预设补齐。
func (o *ProviderOptions) ToConfigMap() map[string]any {
	m := map[string]any{
		"base_url":     o.BaseURL,
		"api_key":      o.APIKey,
		"timeout":      o.Timeout,
		"max_retries":  o.MaxRetries,
		"organization": o.Organization,
	}
	if o.Model != "" {
		if o.flagName == "embedding" {
			m["embed_model"] = o.Model
		} else {
			m["chat_model"] = o.Model
		}
	}
	return m
}

// AddFlags adds flags for LLM provider options to the specified FlagSet.
func (o *ProviderOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	name := o.flagName
	if name == "" {
		name = "llm"
	}
	p := options.Join(prefixes...) + name + "."
	fs.StringVar(&o.Provider, p+"provider", o.Provider, "Provider name (groq, openai, deepseek, siliconflow, ollama).")
	fs.StringVar(&o.BaseURL, p+"base-url", o.BaseURL, "API base URL, empty for the provider preset.")
	fs.StringVar(&o.APIKey, p+"api-key", o.APIKey, "API key (prefer the <PROVIDER>_API_KEY env var).")
	fs.StringVar(&o.Model, p+"model", o.Model, "Model name, empty for the provider preset.")
	fs.DurationVar(&o.Timeout, p+"timeout", o.Timeout, "Request timeout.")
	fs.IntVar(&o.MaxRetries, p+"max-retries", o.MaxRetries, "Extra attempts on 5xx responses.")
	fs.StringVar(&o.Organization, p+"organization", o.Organization, "Organization ID (optional).")
	fs.IntVar(&o.BreakerMaxFailures, p+"breaker-max-failures", o.BreakerMaxFailures, "Consecutive failures that open the circuit breaker.")
	fs.DurationVar(&o.BreakerTimeout, p+"breaker-timeout", o.BreakerTimeout, "How long the breaker stays open.")
	if name == "llm" {
		fs.Float64Var(&o.Temperature, p+"temperature", o.Temperature, "Sampling temperature.")
		fs.IntVar(&o.MaxTokens, p+"max-tokens", o.MaxTokens, "Maximum completion tokens.")
	}
}

// Validate validates the LLM provider options.
func (o *ProviderOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Provider == "" {
		errs = append(errs, fmt.Errorf("provider is required"))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive"))
	}
	if o.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max-retries must not be negative"))
	}
	if o.Temperature < 0 || o.Temperature > 2 {
		errs = append(errs, fmt.Errorf("temperature must be within [0, 2]"))
	}
	if o.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("max-tokens must not be negative"))
	}
	return errs
}
