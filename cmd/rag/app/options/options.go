// Package options contains flags and options for initializing the RAG server.
package options

import (
	"fmt"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	ragsvc "github.com/kart-io/sentinel-rag/internal/rag"
	"github.com/kart-io/sentinel-rag/pkg/infra/app"
	"github.com/kart-io/sentinel-rag/pkg/infra/tracing"
	authopts "github.com/kart-io/sentinel-rag/pkg/options/auth"
	cacheopts "github.com/kart-io/sentinel-rag/pkg/options/cache"
	langcacheopts "github.com/kart-io/sentinel-rag/pkg/options/langcache"
	llmopts "github.com/kart-io/sentinel-rag/pkg/options/llm"
	logopts "github.com/kart-io/sentinel-rag/pkg/options/logger"
	milvusopts "github.com/kart-io/sentinel-rag/pkg/options/milvus"
	ragopts "github.com/kart-io/sentinel-rag/pkg/options/rag"
	redisopts "github.com/kart-io/sentinel-rag/pkg/options/redis"
	httpopts "github.com/kart-io/sentinel-rag/pkg/options/server/http"
)

var _ app.CliOptions = (*ServerOptions)(nil)

// ServerOptions contains the configuration options for the server.
type ServerOptions struct {
	HTTPOptions *httpopts.Options `json:"http" mapstructure:"http"`

	LogOptions *logopts.Options `json:"log" mapstructure:"log"`

	// RedisOptions 远端响应缓存与 Embedding 缓存共用的连接。
	RedisOptions *redisopts.Options `json:"redis" mapstructure:"redis"`

	CacheOptions *cacheopts.Options `json:"cache" mapstructure:"cache"`

	LangCacheOptions *langcacheopts.Options `json:"langcache" mapstructure:"langcache"`

	MilvusOptions *milvusopts.Options `json:"milvus" mapstructure:"milvus"`

	EmbeddingOptions *llmopts.ProviderOptions `json:"embedding" mapstructure:"embedding"`

	// ChatOptions 默认生成后端，其余后端按请求懒加载。
	ChatOptions *llmopts.ProviderOptions `json:"llm" mapstructure:"llm"`

	RAGOptions *ragopts.Options `json:"rag" mapstructure:"rag"`

	TracingOptions *tracing.Options `json:"tracing" mapstructure:"tracing"`

	AuthOptions *authopts.Options `json:"auth" mapstructure:"auth"`
}

// NewServerOptions creates a ServerOptions instance with default values.
func NewServerOptions() *ServerOptions {
	return &ServerOptions{
		HTTPOptions:      httpopts.NewOptions(),
		LogOptions:       logopts.NewOptions(),
		RedisOptions:     redisopts.NewOptions(),
		CacheOptions:     cacheopts.NewOptions(),
		LangCacheOptions: langcacheopts.NewOptions(),
		MilvusOptions:    milvusopts.NewOptions(),
		EmbeddingOptions: llmopts.NewEmbeddingOptions(),
		ChatOptions:      llmopts.NewChatOptions(),
		RAGOptions:       ragopts.NewOptions(),
		TracingOptions:   tracing.NewOptions(),
		AuthOptions:      authopts.NewOptions(),
	}
}

// Flags returns flags for a specific server by section name.
func (o *ServerOptions) Flags() (fss app.NamedFlagSets) {
	o.HTTPOptions.AddFlags(fss.FlagSet("http"))
	o.LogOptions.AddFlags(fss.FlagSet("log"))
	o.RedisOptions.AddFlags(fss.FlagSet("redis"))
	o.CacheOptions.AddFlags(fss.FlagSet("cache"))
	o.LangCacheOptions.AddFlags(fss.FlagSet("langcache"))
	o.MilvusOptions.AddFlags(fss.FlagSet("milvus"))
	o.EmbeddingOptions.AddFlags(fss.FlagSet("embedding"))
	o.ChatOptions.AddFlags(fss.FlagSet("llm"))
	o.RAGOptions.AddFlags(fss.FlagSet("rag"))
	o.TracingOptions.AddFlags(fss.FlagSet("tracing"))
	o.AuthOptions.AddFlags(fss.FlagSet("auth"))
	return fss
}

// Complete completes all the required options.
func (o *ServerOptions) Complete() error {
	if err := o.RedisOptions.Complete(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	if err := o.LangCacheOptions.Complete(); err != nil {
		return fmt.Errorf("langcache: %w", err)
	}
	if err := o.EmbeddingOptions.Complete(); err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	if err := o.ChatOptions.Complete(); err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	if err := o.TracingOptions.Complete(); err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	if err := o.AuthOptions.Complete(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	return nil
}

// Validate checks whether the options in ServerOptions are valid.
func (o *ServerOptions) Validate() error {
	errs := []error{}

	errs = append(errs, o.HTTPOptions.Validate()...)
	errs = append(errs, o.LogOptions.Validate()...)
	errs = append(errs, o.RedisOptions.Validate()...)
	errs = append(errs, o.CacheOptions.Validate()...)
	errs = append(errs, o.LangCacheOptions.Validate()...)
	errs = append(errs, o.MilvusOptions.Validate()...)
	errs = append(errs, o.EmbeddingOptions.Validate()...)
	errs = append(errs, o.ChatOptions.Validate()...)
	errs = append(errs, o.RAGOptions.Validate()...)
	errs = append(errs, o.TracingOptions.Validate()...)
	errs = append(errs, o.AuthOptions.Validate()...)
	errs = append(errs, o.validateCombinations()...)

	return utilerrors.NewAggregate(errs)
}

// validateCombinations 校验跨配置项的依赖关系。
func (o *ServerOptions) validateCombinations() []error {
	var errs []error
	if !o.CacheOptions.Enabled {
		return nil
	}
	switch o.CacheOptions.Remote {
	case cacheopts.BackendRedis:
		if !o.RedisOptions.Enabled {
			errs = append(errs, fmt.Errorf("cache.remote=redis requires redis.enabled"))
		}
	case cacheopts.BackendLangCache:
		if !o.LangCacheOptions.Configured() {
			errs = append(errs, fmt.Errorf("cache.remote=langcache requires langcache.server-url, langcache.cache-id and an API key"))
		}
	}
	return errs
}

// Config builds a ragsvc.Config based on ServerOptions.
func (o *ServerOptions) Config() (*ragsvc.Config, error) {
	return &ragsvc.Config{
		HTTPOptions:      o.HTTPOptions,
		LogOptions:       o.LogOptions,
		RedisOptions:     o.RedisOptions,
		CacheOptions:     o.CacheOptions,
		LangCacheOptions: o.LangCacheOptions,
		MilvusOptions:    o.MilvusOptions,
		EmbeddingOptions: o.EmbeddingOptions,
		ChatOptions:      o.ChatOptions,
		RAGOptions:       o.RAGOptions,
		TracingOptions:   o.TracingOptions,
		AuthOptions:      o.AuthOptions,
	}, nil
}
