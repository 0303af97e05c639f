// Package ragsvc assembles and runs the RAG query server.
package ragsvc

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/sentinel-rag/internal/pkg/rag/rerank"
	"github.com/kart-io/sentinel-rag/internal/rag/biz"
	"github.com/kart-io/sentinel-rag/internal/rag/handler"
	"github.com/kart-io/sentinel-rag/internal/rag/metrics"
	"github.com/kart-io/sentinel-rag/internal/rag/router"
	"github.com/kart-io/sentinel-rag/internal/rag/store"
	"github.com/kart-io/sentinel-rag/pkg/component/milvus"
	redisc "github.com/kart-io/sentinel-rag/pkg/component/redis"
	"github.com/kart-io/sentinel-rag/pkg/infra/app"
	"github.com/kart-io/sentinel-rag/pkg/infra/tracing"
	"github.com/kart-io/sentinel-rag/pkg/llm"
	_ "github.com/kart-io/sentinel-rag/pkg/llm/ollama"
	_ "github.com/kart-io/sentinel-rag/pkg/llm/openai"
	llmres "github.com/kart-io/sentinel-rag/pkg/llm/resilience"
	authopts "github.com/kart-io/sentinel-rag/pkg/options/auth"
	cacheopts "github.com/kart-io/sentinel-rag/pkg/options/cache"
	langcacheopts "github.com/kart-io/sentinel-rag/pkg/options/langcache"
	llmopts "github.com/kart-io/sentinel-rag/pkg/options/llm"
	logopts "github.com/kart-io/sentinel-rag/pkg/options/logger"
	milvusopts "github.com/kart-io/sentinel-rag/pkg/options/milvus"
	ragopts "github.com/kart-io/sentinel-rag/pkg/options/rag"
	redisopts "github.com/kart-io/sentinel-rag/pkg/options/redis"
	httpopts "github.com/kart-io/sentinel-rag/pkg/options/server/http"
	"github.com/kart-io/sentinel-rag/pkg/resilience"
)

// Name is the name of the application.
const Name = "sentinel-rag"

// Config contains application-related configurations.
type Config struct {
	HTTPOptions      *httpopts.Options
	LogOptions       *logopts.Options
	RedisOptions     *redisopts.Options
	CacheOptions     *cacheopts.Options
	LangCacheOptions *langcacheopts.Options
	MilvusOptions    *milvusopts.Options
	EmbeddingOptions *llmopts.ProviderOptions
	ChatOptions      *llmopts.ProviderOptions
	RAGOptions       *ragopts.Options
	TracingOptions   *tracing.Options
	AuthOptions      *authopts.Options
}

// Server represents the RAG server.
type Server struct {
	httpServer      *http.Server
	service         *biz.RAGService
	shutdownTimeout time.Duration
	// closers 按注册的逆序执行。
	closers []func(context.Context) error
}

// NewServer initializes and returns a new Server instance.
func (cfg *Config) NewServer(ctx context.Context) (*Server, error) {
	if err := cfg.LogOptions.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Infow("Starting RAG service", "name", Name, "version", app.GetVersion())

	s := &Server{shutdownTimeout: cfg.HTTPOptions.ShutdownTimeout}
	ok := false
	defer func() {
		if !ok {
			s.close(context.Background())
		}
	}()

	var redisClient goredis.UniversalClient
	if rc := cfg.newRedisClient(ctx); rc != nil {
		redisClient = rc.Client()
		s.onClose(func(context.Context) error { return rc.Close() })
	}

	m := metrics.New("")
	responseCache := biz.NewResponseCache(cfg.newRemoteCache(redisClient), biz.ResponseCacheConfig{
		LocalTTL:        cfg.CacheOptions.LocalTTL,
		LocalMaxEntries: cfg.CacheOptions.LocalMaxEntries,
		Attempts:        cfg.CacheOptions.RemoteAttempts,
		Disabled:        !cfg.CacheOptions.Enabled,
	}, m)
	logger.Infow("Response cache initialized", "stats", responseCache.Stats(ctx))

	retriever, err := cfg.newRetriever(ctx, redisClient)
	if err != nil {
		return nil, err
	}

	tracer, err := cfg.newTraceBackend(ctx, s)
	if err != nil {
		_ = retriever.Close()
		return nil, err
	}

	service, err := biz.NewRAGService(cfg.serviceConfig(), biz.Dependencies{
		Retriever: retriever,
		Backends:  biz.NewBackends(cfg.backendFactory()),
		Cache:     responseCache,
		Tracer:    tracer,
		Metrics:   m,
	})
	if err != nil {
		_ = retriever.Close()
		return nil, fmt.Errorf("failed to initialize rag service: %w", err)
	}
	s.service = service
	logger.Infow("RAG service initialized",
		"default_provider", cfg.RAGOptions.DefaultProvider,
		"default_k", cfg.RAGOptions.DefaultK,
		"batch_concurrency", cfg.RAGOptions.BatchConcurrency,
	)

	gin.SetMode(cfg.HTTPOptions.Mode)
	engine := router.New(handler.NewRAGHandler(service, cfg.HTTPOptions.RequestTimeout), router.Options{
		Auth:               cfg.AuthOptions,
		MaxBodyBytes:       cfg.HTTPOptions.MaxBodyBytes,
		HideVersionDetails: cfg.HTTPOptions.HideVersionDetails,
	})
	s.httpServer = &http.Server{
		Addr:         cfg.HTTPOptions.Addr,
		Handler:      engine,
		ReadTimeout:  cfg.HTTPOptions.ReadTimeout,
		WriteTimeout: cfg.HTTPOptions.WriteTimeout,
		IdleTimeout:  cfg.HTTPOptions.IdleTimeout,
	}

	ok = true
	logger.Infow("RAG service is ready", "addr", cfg.HTTPOptions.Addr, "auth", cfg.AuthOptions.Enabled)
	return s, nil
}

// newRedisClient 连接 Redis，失败时返回 nil，缓存退化为本地层。
func (cfg *Config) newRedisClient(ctx context.Context) *redisc.Client {
	if !cfg.RedisOptions.Enabled {
		return nil
	}
	client, err := redisc.New(ctx, cfg.RedisOptions)
	if err != nil {
		logger.Warnw("failed to connect to redis, remote cache disabled", "error", err.Error())
		return nil
	}
	logger.Infow("Redis client initialized", "redis", cfg.RedisOptions.String(), "health", client.Health(ctx))
	return client
}

// newRemoteCache 按 cache.remote 选择远端缓存层。
func (cfg *Config) newRemoteCache(redisClient goredis.UniversalClient) biz.RemoteCache {
	o := cfg.CacheOptions
	if !o.Enabled {
		return nil
	}

	switch o.Remote {
	case cacheopts.BackendRedis:
		if redisClient == nil {
			logger.Warnw("redis remote cache requested but redis is unavailable, using local cache only")
			return nil
		}
		return biz.NewRedisCache(redisClient, biz.RedisCacheConfig{TTL: o.RemoteTTL, KeyPrefix: o.KeyPrefix})
	case cacheopts.BackendLangCache:
		lc := cfg.LangCacheOptions
		if !lc.Configured() {
			logger.Warnw("langcache remote cache requested but not configured, using local cache only")
			return nil
		}
		return biz.NewLangCache(biz.LangCacheConfig{
			ServerURL: lc.ServerURL,
			CacheID:   lc.CacheID,
			APIKey:    lc.APIKey,
			Timeout:   lc.Timeout,
			TTL:       o.RemoteTTL,
		})
	default:
		return nil
	}
}

// newRetriever 启用 Milvus 时直接做向量检索，否则调用外部搜索服务。
// 返回的检索器在 RAGService.Close 时关闭底层连接。
func (cfg *Config) newRetriever(ctx context.Context, redisClient goredis.UniversalClient) (biz.Retriever, error) {
	if !cfg.MilvusOptions.Enabled {
		logger.Infow("Using HTTP search retriever", "url", cfg.RAGOptions.SearchURL)
		return biz.NewHTTPRetriever(cfg.RAGOptions.SearchURL, cfg.RAGOptions.SearchTimeout), nil
	}

	eo := cfg.EmbeddingOptions
	embedder, err := llm.NewEmbeddingProvider(eo.Provider, eo.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding provider: %w", err)
	}
	resilient := llmres.NewResilientEmbeddingProvider(embedder, &llmres.Config{
		Attempts: 1,
		Breaker:  breakerConfig("embedding."+eo.Provider, eo),
	})
	cached := llm.NewCachedEmbeddingProvider(resilient, redisClient, llm.DefaultEmbeddingCacheConfig())
	logger.Infow("Embedding provider initialized", "provider", eo.Provider, "model", eo.Model, "redis_cache", redisClient != nil)

	client, err := milvus.New(cfg.MilvusOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize milvus: %w", err)
	}
	vs := store.NewMilvusStore(client, cfg.MilvusOptions.Collection, cfg.MilvusOptions.Dimension)

	ensureCtx, cancel := context.WithTimeout(ctx, cfg.MilvusOptions.Timeout)
	defer cancel()
	if err := vs.EnsureCollection(ensureCtx); err != nil {
		_ = vs.Close(context.Background())
		return nil, fmt.Errorf("failed to ensure milvus collection: %w", err)
	}
	documents, err := vs.Count(ensureCtx)
	if err != nil {
		logger.Warnw("failed to count milvus collection rows", "collection", cfg.MilvusOptions.Collection, "error", err.Error())
		documents = -1
	}
	logger.Infow("Milvus retriever initialized",
		"address", cfg.MilvusOptions.Address,
		"collection", cfg.MilvusOptions.Collection,
		"documents", documents,
	)
	return biz.NewMilvusRetriever(cached, vs), nil
}

// newTraceBackend 未启用 tracing 时返回 nil，服务使用 noop。
func (cfg *Config) newTraceBackend(ctx context.Context, s *Server) (biz.TraceBackend, error) {
	if !cfg.TracingOptions.Enabled {
		return nil, nil
	}
	provider, err := tracing.NewProvider(ctx, cfg.TracingOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	s.onClose(provider.Shutdown)
	logger.Infow("Tracing initialized",
		"exporter", cfg.TracingOptions.ExporterType,
		"endpoint", cfg.TracingOptions.Endpoint,
	)
	return biz.NewOTelTraceBackend(tracing.NewQueryTracer(provider.TracerProvider(), cfg.TracingOptions.MaxTextLength)), nil
}

// backendFactory 懒加载生成后端，每个后端单独熔断。
func (cfg *Config) backendFactory() biz.BackendFactory {
	return func(name string) (llm.CompletionProvider, error) {
		o := cfg.ChatOptions.ForProvider(name)
		provider, err := llm.NewCompletionProvider(name, o.ToConfigMap())
		if err != nil {
			return nil, err
		}
		logger.Infow("Generation backend initialized", "provider", name, "model", o.Model)
		return llmres.NewResilientCompletionProvider(provider, &llmres.Config{
			Attempts: 1,
			Breaker:  breakerConfig("llm."+name, o),
		}), nil
	}
}

func breakerConfig(name string, o *llmopts.ProviderOptions) *resilience.CircuitBreakerConfig {
	c := resilience.DefaultCircuitBreakerConfig()
	c.Name = name
	if o.BreakerMaxFailures > 0 {
		c.MaxFailures = o.BreakerMaxFailures
	}
	if o.BreakerTimeout > 0 {
		c.Timeout = o.BreakerTimeout
	}
	return c
}

func (cfg *Config) serviceConfig() biz.Config {
	r := cfg.RAGOptions
	return biz.Config{
		DefaultK:        r.DefaultK,
		DefaultProvider: r.DefaultProvider,
		SystemPrompt:    r.SystemPrompt,
		ContextMaxChars: r.ContextMaxChars,
		Temperature:     cfg.ChatOptions.Temperature,
		MaxTokens:       cfg.ChatOptions.MaxTokens,
		Rerank: rerank.Config{
			K:            r.RRFK,
			SafetyWeight: r.SafetyWeight,
		},
		BatchConcurrency: r.BatchConcurrency,
	}
}

func (s *Server) onClose(fn func(context.Context) error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) close(ctx context.Context) {
	if s.service != nil {
		if err := s.service.Close(); err != nil {
			logger.Warnw("failed to close rag service", "error", err.Error())
		}
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			logger.Warnw("failed to release resource", "error", err.Error())
		}
	}
}

// Run 启动 HTTP 服务，ctx 取消后优雅关闭。
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Infow("HTTP server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down RAG service...")
	case err, open := <-errCh:
		if open {
			runErr = fmt.Errorf("http server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warnw("http server shutdown incomplete", "error", err.Error())
	}
	s.close(shutdownCtx)
	_ = logger.Flush()

	logger.Info("RAG service stopped")
	return runErr
}
