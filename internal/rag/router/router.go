// Package router provides RAG service routing.
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/sentinel-rag/internal/rag/handler"
	"github.com/kart-io/sentinel-rag/pkg/errors"
	"github.com/kart-io/sentinel-rag/pkg/middleware"
	authopts "github.com/kart-io/sentinel-rag/pkg/options/auth"
	"github.com/kart-io/sentinel-rag/pkg/response"
)

// Options 路由配置。
type Options struct {
	Auth *authopts.Options
	// MaxBodyBytes 请求体上限，0 表示不限制。
	MaxBodyBytes int64
	// HideVersionDetails 为 true 时 /version 只返回版本号。
	HideVersionDetails bool
}

// New 创建 gin 引擎并注册 RAG 路由。
func New(ragHandler *handler.RAGHandler, opts Options) *gin.Engine {
	engine := gin.New()
	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger("/healthz", "/version", "/v1/rag/metrics"),
		middleware.BodyLimit(opts.MaxBodyBytes),
	)
	engine.NoRoute(func(c *gin.Context) {
		response.Fail(c, errors.ErrRouteNotFound)
	})

	engine.GET("/version", middleware.Version(opts.HideVersionDetails))
	Register(engine, ragHandler, opts.Auth)
	return engine
}

// Register registers the RAG service routes.
func Register(engine *gin.Engine, ragHandler *handler.RAGHandler, auth *authopts.Options) {
	logger.Info("Registering RAG routes...")

	engine.GET("/healthz", ragHandler.Healthz)

	v1 := engine.Group("/v1")
	{
		rag := v1.Group("/rag")
		rag.GET("/metrics", ragHandler.Metrics)

		secured := rag.Group("", middleware.TenantAuth(auth))
		{
			secured.POST("/query", ragHandler.Query)
			secured.POST("/batch", ragHandler.Batch)
			secured.GET("/cache/stats", ragHandler.CacheStats)
			secured.DELETE("/cache", ragHandler.ClearCache)
		}
	}

	logger.Info("HTTP routes registered")
}
