// Package handler provides HTTP handlers for the RAG query service.
package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/sentinel-rag/internal/model"
	"github.com/kart-io/sentinel-rag/internal/pkg/rag/isolation"
	"github.com/kart-io/sentinel-rag/internal/rag/biz"
	"github.com/kart-io/sentinel-rag/internal/rag/metrics"
	"github.com/kart-io/sentinel-rag/pkg/errors"
	"github.com/kart-io/sentinel-rag/pkg/middleware"
	"github.com/kart-io/sentinel-rag/pkg/response"
	"github.com/kart-io/sentinel-rag/pkg/validator"
)

// QueryService handler 依赖的查询服务。
type QueryService interface {
	Query(ctx context.Context, req biz.QueryRequest) (biz.Outcome, error)
	BatchQuery(ctx context.Context, tenantID string, queries []string, opts biz.BatchOptions) ([]biz.BatchResult, error)
	Cache() *biz.ResponseCache
	Metrics() *metrics.RAGMetrics
}

// RAGHandler handles RAG HTTP requests.
type RAGHandler struct {
	service QueryService
	// timeout 单次请求的处理上限，0 表示不限制。
	timeout time.Duration
}

// NewRAGHandler creates a new RAGHandler.
func NewRAGHandler(service QueryService, timeout time.Duration) *RAGHandler {
	return &RAGHandler{service: service, timeout: timeout}
}

// ViolationData 隔离违规时返回给调用方的信息，不包含其他租户的 ID。
type ViolationData struct {
	DocumentID     string `json:"document_id,omitempty"`
	ExpectedTenant string `json:"expected_tenant"`
	Operation      string `json:"operation"`
}

// Query 执行单次查询。
//
//	POST /v1/rag/query
func (h *RAGHandler) Query(c *gin.Context) {
	var req biz.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, errors.ErrRAGInvalidRequest.WithMessage("invalid request body").WithCause(err))
		return
	}
	if err := middleware.AuthorizeTenant(c, req.TenantID); err != nil {
		response.Fail(c, err)
		return
	}

	ctx, cancel := h.context(c)
	defer cancel()

	out, err := h.service.Query(ctx, req)
	if err != nil {
		response.Fail(c, err)
		return
	}
	if out.IsViolation() {
		failViolation(c, out.Violation())
		return
	}
	response.OK(c, out.Response())
}

// BatchRequest 批量查询请求。
type BatchRequest struct {
	TenantID string   `json:"tenant_id"`
	Queries  []string `json:"queries"`
	biz.BatchOptions
}

// BatchItem 批量查询中单条的结果，Response 与 Error 二选一。
type BatchItem struct {
	Index     int                  `json:"index"`
	Query     string               `json:"query"`
	Response  *model.QueryResponse `json:"response,omitempty"`
	Error     *ItemError           `json:"error,omitempty"`
	Violation *ViolationData       `json:"violation,omitempty"`
}

// ItemError 单条失败的错误码。
type ItemError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// BatchResponse 批量查询响应。
type BatchResponse struct {
	Total     int         `json:"total"`
	Succeeded int         `json:"succeeded"`
	Results   []BatchItem `json:"results"`
}

// Batch 执行批量查询，单条失败不影响其他条目。
//
//	POST /v1/rag/batch
func (h *RAGHandler) Batch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, errors.ErrRAGInvalidRequest.WithMessage("invalid request body").WithCause(err))
		return
	}
	if err := middleware.AuthorizeTenant(c, req.TenantID); err != nil {
		response.Fail(c, err)
		return
	}

	ctx, cancel := h.context(c)
	defer cancel()

	results, err := h.service.BatchQuery(ctx, req.TenantID, req.Queries, req.BatchOptions)
	if err != nil {
		response.Fail(c, err)
		return
	}

	lang := response.Lang(c)
	out := BatchResponse{Total: len(results), Results: make([]BatchItem, len(results))}
	for i, r := range results {
		item := BatchItem{Index: i, Query: req.Queries[i]}
		switch {
		case r.Err != nil:
			e := errors.FromError(r.Err)
			item.Error = &ItemError{Code: e.Code, Message: e.Message(lang)}
		case r.Outcome.IsViolation():
			v := r.Outcome.Violation()
			item.Error = &ItemError{Code: errors.ErrTenantIsolationViolation.Code, Message: errors.ErrTenantIsolationViolation.Message(lang)}
			item.Violation = violationData(v)
		default:
			item.Response = r.Outcome.Response()
			if item.Response != nil && !item.Response.Failed() {
				out.Succeeded++
			}
		}
		out.Results[i] = item
	}
	response.OK(c, out)
}

// CacheStats 返回响应缓存状态。
//
//	GET /v1/rag/cache/stats
func (h *RAGHandler) CacheStats(c *gin.Context) {
	response.OK(c, h.service.Cache().Stats(c.Request.Context()))
}

// ClearCache 删除调用方租户的缓存条目。
// 启用认证时租户取自令牌，tenant_id 参数若给出必须与之一致；未启用认证时 tenant_id 参数必填。
//
//	DELETE /v1/rag/cache?tenant_id=...
func (h *RAGHandler) ClearCache(c *gin.Context) {
	tenantID := c.Query("tenant_id")
	if tenantID == "" {
		tenantID = middleware.TenantFromContext(c)
	}
	if err := validator.Global().ValidateVar(tenantID, "required,"+validator.TagTenantID); err != nil {
		response.Fail(c, errors.ErrRAGInvalidRequest.WithMessage("tenant_id is missing or malformed").WithCause(err))
		return
	}
	if err := middleware.AuthorizeTenant(c, tenantID); err != nil {
		response.Fail(c, err)
		return
	}

	deleted, err := h.service.Cache().Clear(c.Request.Context(), tenantID)
	if err != nil {
		logger.Errorw("failed to clear response cache", "tenant_id", tenantID, "error", err.Error())
		response.Fail(c, errors.ErrRAGCacheUnavailable.WithCause(err))
		return
	}
	response.OK(c, gin.H{"deleted": deleted})
}

// Metrics 导出 Prometheus 指标。
//
//	GET /v1/rag/metrics
func (h *RAGHandler) Metrics(c *gin.Context) {
	h.service.Metrics().Handler().ServeHTTP(c.Writer, c.Request)
}

// Healthz 存活检查。
//
//	GET /healthz
func (h *RAGHandler) Healthz(c *gin.Context) {
	response.OK(c, gin.H{"status": "ok"})
}

func (h *RAGHandler) context(c *gin.Context) (context.Context, context.CancelFunc) {
	if h.timeout > 0 {
		return context.WithTimeout(c.Request.Context(), h.timeout)
	}
	return context.WithCancel(c.Request.Context())
}

func failViolation(c *gin.Context, v *isolation.ViolationError) {
	response.FailWithData(c, v.Errno(), violationData(v))
}

func violationData(v *isolation.ViolationError) *ViolationData {
	if v == nil {
		return nil
	}
	return &ViolationData{DocumentID: v.DocumentID, ExpectedTenant: v.ExpectedTenant, Operation: v.Operation}
}

