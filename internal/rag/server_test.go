package ragsvc

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/sentinel-rag/internal/rag/biz"
	"github.com/kart-io/sentinel-rag/pkg/errors"
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

func testConfig() *Config {
	h := httpopts.NewOptions()
	h.Addr = "127.0.0.1:0"
	h.Mode = "test"
	h.ShutdownTimeout = time.Second
	return &Config{
		HTTPOptions:      h,
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

func redisConfig(t *testing.T, cfg *Config) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	host, port, err := net.SplitHostPort(mr.Addr())
	require.NoError(t, err)
	cfg.RedisOptions.Enabled = true
	cfg.RedisOptions.Host = host
	cfg.RedisOptions.Port, err = strconv.Atoi(port)
	require.NoError(t, err)
	return mr
}

func TestNewRemoteCache(t *testing.T) {
	cfg := testConfig()
	assert.Nil(t, cfg.newRemoteCache(nil))

	cfg.CacheOptions.Remote = cacheopts.BackendRedis
	assert.Nil(t, cfg.newRemoteCache(nil), "redis unavailable falls back to local only")

	redisConfig(t, cfg)
	rc := cfg.newRedisClient(context.Background())
	require.NotNil(t, rc)
	defer rc.Close()
	client := rc.Client()
	remote := cfg.newRemoteCache(client)
	require.NotNil(t, remote)
	assert.Equal(t, "redis", remote.Name())

	cfg.CacheOptions.Remote = cacheopts.BackendLangCache
	assert.Nil(t, cfg.newRemoteCache(client), "unconfigured langcache")
	cfg.LangCacheOptions.ServerURL = "http://langcache.local"
	cfg.LangCacheOptions.CacheID = "c1"
	cfg.LangCacheOptions.APIKey = "k"
	remote = cfg.newRemoteCache(client)
	require.NotNil(t, remote)
	assert.IsType(t, &biz.LangCache{}, remote)

	cfg.CacheOptions.Enabled = false
	assert.Nil(t, cfg.newRemoteCache(client))
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	cfg := testConfig()
	mr := redisConfig(t, cfg)
	mr.Close()
	cfg.RedisOptions.DialTimeout = 200 * time.Millisecond

	assert.Nil(t, cfg.newRedisClient(context.Background()))
}

func TestBackendFactory(t *testing.T) {
	cfg := testConfig()
	cfg.ChatOptions.APIKey = "gsk-test"
	factory := cfg.backendFactory()

	p, err := factory("groq")
	require.NoError(t, err)
	assert.Equal(t, "groq", p.Name())

	_, err = factory("nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrRAGUnknownProvider)
}

func TestServiceConfig(t *testing.T) {
	cfg := testConfig()
	cfg.RAGOptions.RRFK = 30
	cfg.ChatOptions.MaxTokens = 256

	sc := cfg.serviceConfig()
	assert.Equal(t, 30.0, sc.Rerank.K)
	assert.Equal(t, 0.3, sc.Rerank.SafetyWeight)
	assert.Equal(t, 256, sc.MaxTokens)
	assert.Equal(t, "groq", sc.DefaultProvider)
}

func TestServer_RunAndShutdown(t *testing.T) {
	cfg := testConfig()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	cfg.HTTPOptions.Addr = addr

	ctx, cancel := context.WithCancel(context.Background())
	s, err := cfg.NewServer(ctx)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
