package biz

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/sentinel-rag/internal/model"
	"github.com/kart-io/sentinel-rag/internal/pkg/rag/isolation"
	"github.com/kart-io/sentinel-rag/internal/pkg/rag/rerank"
	"github.com/kart-io/sentinel-rag/internal/pkg/rag/safety"
	"github.com/kart-io/sentinel-rag/internal/pkg/rag/shaper"
	"github.com/kart-io/sentinel-rag/internal/pkg/rag/textutil"
	"github.com/kart-io/sentinel-rag/internal/rag/metrics"
	"github.com/kart-io/sentinel-rag/pkg/errors"
	"github.com/kart-io/sentinel-rag/pkg/id"
	"github.com/kart-io/sentinel-rag/pkg/infra/tracing"
	"github.com/kart-io/sentinel-rag/pkg/llm"
	"github.com/kart-io/sentinel-rag/pkg/validator"
)

// 有来源时的固定置信度。
const sourcedConfidence = 0.8

// QueryRequest 单次查询请求。
type QueryRequest struct {
	TenantID string `json:"tenant_id" validate:"required,tenantid"`
	Query    string `json:"query" validate:"required,notblank,max=4000"`
	// K 检索数量，0 表示使用默认值。
	K int `json:"k" validate:"omitempty,min=1,max=50"`
	// Provider 生成后端名称，空表示使用默认值。
	Provider string `json:"llm_provider" validate:"omitempty,max=64,nowhitespace"`
	Model    string `json:"llm_model" validate:"omitempty,max=128"`
	// CharacterLimit 回答长度上限，0 表示不限制。
	CharacterLimit int `json:"response_character_limit" validate:"omitempty,oneof=250 450"`
}

// Outcome 查询结果：要么是正常响应，要么是租户隔离违规，二者互斥。
type Outcome struct {
	response  *model.QueryResponse
	violation *isolation.ViolationError
}

// Response 返回正常响应，违规时为 nil。
func (o Outcome) Response() *model.QueryResponse { return o.response }

// Violation 返回隔离违规，正常时为 nil。
func (o Outcome) Violation() *isolation.ViolationError { return o.violation }

// IsViolation 报告本次查询是否因隔离违规被拒绝。
func (o Outcome) IsViolation() bool { return o.violation != nil }

// Err 把违规转换成 error，正常时返回 nil。
func (o Outcome) Err() error {
	if o.violation != nil {
		return o.violation
	}
	return nil
}

func responseOutcome(r *model.QueryResponse) Outcome { return Outcome{response: r} }

func violationOutcome(v *isolation.ViolationError) Outcome { return Outcome{violation: v} }

// Config 查询编排配置。
type Config struct {
	DefaultK        int
	DefaultProvider string
	SystemPrompt    string
	// ContextMaxChars 单个文本块进入上下文的最大字符数。
	ContextMaxChars int
	Temperature     float64
	MaxTokens       int
	Rerank          rerank.Config
	// BatchConcurrency 批量查询最大并发。
	BatchConcurrency int
}

// DefaultConfig 返回默认配置。
func DefaultConfig() Config {
	return Config{
		DefaultK:         5,
		DefaultProvider:  "groq",
		ContextMaxChars:  2000,
		Temperature:      0.2,
		MaxTokens:        800,
		Rerank:           rerank.DefaultConfig(),
		BatchConcurrency: 4,
	}
}

// Dependencies 编排依赖的外部协作者。
type Dependencies struct {
	Retriever Retriever
	Backends  BackendResolver
	// Cache 为 nil 时使用仅含本地层的默认缓存。
	Cache *ResponseCache
	// Tracer 为 nil 时不记录 trace。
	Tracer TraceBackend
	// Metrics 为 nil 时使用独立注册表。
	Metrics   *metrics.RAGMetrics
	Analyzer  *safety.Analyzer
	Validator *validator.Validator
}

// RAGService 查询编排：缓存、检索、隔离校验、重排、生成、整形与回写缓存。
type RAGService struct {
	cfg       Config
	retriever Retriever
	backends  BackendResolver
	cache     *ResponseCache
	tracer    TraceBackend
	metrics   *metrics.RAGMetrics
	analyzer  *safety.Analyzer
	validator *validator.Validator
	reranker  *rerank.Reranker
	diagnose  *rerank.Reranker
	batch     *batchRunner
}

// NewRAGService 创建查询编排服务。
func NewRAGService(cfg Config, deps Dependencies) (*RAGService, error) {
	if deps.Retriever == nil {
		return nil, errors.ErrConfigInvalid.WithMessage("retriever is required")
	}
	if deps.Backends == nil {
		return nil, errors.ErrConfigInvalid.WithMessage("generation backends are required")
	}

	def := DefaultConfig()
	if cfg.DefaultK <= 0 {
		cfg.DefaultK = def.DefaultK
	}
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = def.DefaultProvider
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = "Answer the user's question using only the numbered context passages."
	}
	if cfg.Rerank.K <= 0 {
		cfg.Rerank.K = def.Rerank.K
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = def.BatchConcurrency
	}

	s := &RAGService{
		cfg:       cfg,
		retriever: deps.Retriever,
		backends:  deps.Backends,
		cache:     deps.Cache,
		tracer:    deps.Tracer,
		metrics:   deps.Metrics,
		analyzer:  deps.Analyzer,
		validator: deps.Validator,
	}
	if s.metrics == nil {
		s.metrics = metrics.New("")
	}
	if s.cache == nil {
		s.cache = NewResponseCache(nil, DefaultResponseCacheConfig(), s.metrics)
	}
	if s.tracer == nil {
		s.tracer = NoopTraceBackend{}
	}
	if s.analyzer == nil {
		s.analyzer = safety.Default()
	}
	if s.validator == nil {
		s.validator = validator.Global()
	}

	rc := cfg.Rerank
	rc.IncludeAllResults = false
	s.reranker = rerank.New(rc, s.analyzer, s.metrics)
	s.diagnose = rerank.New(rc, s.analyzer, s.metrics).WithIncludeAll(true)

	runner, err := newBatchRunner(cfg.BatchConcurrency)
	if err != nil {
		return nil, err
	}
	s.batch = runner

	return s, nil
}

// Cache 返回响应缓存。
func (s *RAGService) Cache() *ResponseCache { return s.cache }

// Metrics 返回指标集合。
func (s *RAGService) Metrics() *metrics.RAGMetrics { return s.metrics }

// Close 等待进行中的批量查询结束后释放批量池，再关闭检索器。
func (s *RAGService) Close() error {
	drainErr := s.batch.release(batchDrainTimeout)
	if drainErr != nil {
		logger.Warnw("batch queries still running at shutdown", "error", drainErr.Error())
	}
	return stderrors.Join(drainErr, s.retriever.Close())
}

// normalize 填充默认值并去除首尾空白。
func (s *RAGService) normalize(req QueryRequest) QueryRequest {
	req.TenantID = strings.TrimSpace(req.TenantID)
	req.Query = strings.TrimSpace(req.Query)
	req.Provider = strings.TrimSpace(req.Provider)
	req.Model = strings.TrimSpace(req.Model)
	if req.K == 0 {
		req.K = s.cfg.DefaultK
	}
	if req.Provider == "" {
		req.Provider = s.cfg.DefaultProvider
	}
	return req
}

// Validate 校验请求，返回 ErrRAGInvalidRequest。
func (s *RAGService) Validate(req QueryRequest) error {
	if errs := s.validator.ValidateWithLang(req, validator.LangEN); errs.HasErrors() {
		return errors.ErrRAGInvalidRequest.WithMessage(errs.Error())
	}
	return nil
}

// Query 执行一次查询。
// 检索与生成失败体现在响应的 llm_error 中；隔离违规通过 Outcome.Violation 返回，此时不会调用生成后端。
// 只有请求本身无效时返回 error。
func (s *RAGService) Query(ctx context.Context, req QueryRequest) (Outcome, error) {
	start := time.Now()

	req = s.normalize(req)
	if err := s.Validate(req); err != nil {
		s.metrics.RecordQuery(metrics.OutcomeInvalid, time.Since(start))
		return Outcome{}, err
	}

	requestID := id.NewRequestID()
	ctx, tr := startTrace(ctx, s.tracer, "rag.query", map[string]any{
		"request_id":   requestID,
		"tenant_id":    req.TenantID,
		"llm_provider": req.Provider,
		"llm_model":    req.Model,
		"k":            req.K,
		"query":        textutil.Preview(req.Query, 200),
	})
	defer tr.End()

	q := &queryRun{svc: s, req: req, start: start, requestID: requestID, trace: tr}
	return q.run(ctx), nil
}

// queryRun 单次查询的状态，只在请求生命周期内存在。
type queryRun struct {
	svc       *RAGService
	req       QueryRequest
	start     time.Time
	requestID string
	trace     Trace
}

func (q *queryRun) run(ctx context.Context) Outcome {
	s, req := q.svc, q.req
	key := BuildCacheKey(req.TenantID, req.Provider, req.Model, req.K, req.Query)

	if cached, source, ok := s.cache.Get(ctx, key); ok {
		cached.Cache = true
		cached.RequestID = q.requestID
		cached.LatencyMs = q.elapsedMs()
		s.metrics.RecordQuery(metrics.OutcomeCacheHit, time.Since(q.start))
		q.trace.Update(map[string]any{
			"cache":        true,
			"cache_source": source,
			"success":      !cached.Failed(),
			"latency_ms":   cached.LatencyMs,
			"tags":         q.tags("cache_hit"),
		})
		logger.Debugw("rag query served from cache",
			"request_id", q.requestID, "tenant_id", req.TenantID, "source", source)
		return responseOutcome(cached)
	}

	chunks, err := q.retrieve(ctx)
	if err != nil {
		if !stderrors.Is(err, errors.ErrRAGRetrievalFailed) {
			err = errors.ErrRAGRetrievalFailed.WithCause(err)
		}
		return q.fail(ctx, FallbackRetrievalFailure, nil, err)
	}

	guard, err := isolation.NewGuard(req.TenantID)
	if err == nil {
		err = guard.ValidateRetrievedDocuments(chunks, isolation.ValidationContext{Operation: "query", Query: req.Query})
	}
	if err != nil {
		var v *isolation.ViolationError
		if !stderrors.As(err, &v) {
			v = &isolation.ViolationError{ExpectedTenant: req.TenantID, Operation: "query"}
		}
		return q.violation(v)
	}

	q.audit(chunks)

	ranked := s.reranker.Rerank(req.TenantID, chunks)
	docs := make([]model.RetrievedChunk, 0, len(ranked))
	for _, r := range ranked {
		docs = append(docs, r.Document)
	}

	if len(docs) == 0 {
		resp := q.response(FallbackNoSources, nil, nil)
		q.finish(ctx, key, resp, true)
		return responseOutcome(resp)
	}

	sanitized := safety.SanitizeRetrievedContext(docs, safety.SanitizeOptions{MaxLength: s.cfg.ContextMaxChars})
	sources := BuildSources(sanitized)
	contextBlock := BuildContext(sanitized)

	if b := safety.ValidateContextBoundaries(safety.BoundaryInput{
		SystemPrompt:     s.cfg.SystemPrompt,
		RetrievedContext: contextBlock,
		UserQuery:        req.Query,
	}); !b.Valid {
		logger.Warnw("context boundary issues detected, continuing with anchored prompt",
			"request_id", q.requestID, "tenant_id", req.TenantID, "issues", b.Issues)
	}

	messages := BuildMessages(s.cfg.SystemPrompt, req.TenantID, contextBlock, req.Query)
	completion, err := q.generate(ctx, messages)
	if err != nil {
		return q.fail(ctx, FallbackGenerationFailed, sources, err)
	}

	resp := q.response(completion.Content, sources, completion)
	q.finish(ctx, key, resp, true)
	return responseOutcome(resp)
}

func (q *queryRun) retrieve(ctx context.Context) ([]model.RetrievedChunk, error) {
	s, req := q.svc, q.req

	start := time.Now()
	chunks, err := s.retriever.Retrieve(ctx, req.TenantID, req.Query, req.K)
	elapsed := time.Since(start)
	s.metrics.RecordRetrieval(elapsed, len(chunks), err)

	attrs := map[string]any{
		"latency_ms":     elapsed.Milliseconds(),
		"count":          len(chunks),
		"top_similarity": topSimilarity(chunks),
	}
	if err != nil {
		attrs["error"] = err.Error()
		logger.Warnw("retrieval failed",
			"request_id", q.requestID, "tenant_id", req.TenantID, "error", err.Error())
	}
	q.trace.Span("retrieval", start, attrs)
	return chunks, err
}

// audit 记录输入与上下文检查结论，不改变流程。
func (q *queryRun) audit(chunks []model.RetrievedChunk) {
	s, req := q.svc, q.req

	in := s.analyzer.CheckInput(req.Query)
	if !in.Safe {
		logger.Warnw("user query flagged by input checks",
			"request_id", q.requestID, "tenant_id", req.TenantID,
			"risk_level", in.RiskLevel, "checks", in.Checks)
	}
	cc := s.analyzer.CheckContext(chunks)
	if !cc.Safe {
		logger.Warnw("retrieved context flagged by context checks",
			"request_id", q.requestID, "tenant_id", req.TenantID,
			"risk_level", cc.RiskLevel, "checks", cc.Checks)
	}
}

func (q *queryRun) generate(ctx context.Context, messages []llm.Message) (*llm.CompletionResponse, error) {
	s, req := q.svc, q.req

	backend, err := s.backends.Resolve(req.Provider)
	if err != nil {
		logger.Warnw("generation backend unavailable",
			"request_id", q.requestID, "llm_provider", req.Provider, "error", err.Error())
		return nil, err
	}

	creq := llm.CompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
	}

	start := time.Now()
	out, err := backend.Complete(ctx, creq)
	elapsed := time.Since(start)

	gen := tracing.Generation{
		Name:        "generation",
		Model:       req.Model,
		Temperature: creq.Temperature,
		MaxTokens:   creq.MaxTokens,
		Input:       renderPrompt(messages),
		Err:         err,
	}
	var prompt, completion int
	if out != nil {
		gen.Output = out.Content
		if out.Model != "" {
			gen.Model = out.Model
		}
		if out.Usage != nil {
			prompt, completion = out.Usage.PromptTokens, out.Usage.CompletionTokens
			gen.PromptTokens, gen.CompletionTokens, gen.TotalTokens = prompt, completion, out.Usage.TotalTokens
		}
	}
	s.metrics.RecordLLMCall(req.Provider, elapsed, prompt, completion, err)
	q.trace.Generation(gen)

	if err != nil {
		logger.Warnw("generation failed",
			"request_id", q.requestID, "llm_provider", req.Provider, "error", err.Error())
		return nil, errors.ErrRAGGenerationFailed.WithCause(err)
	}
	if out == nil {
		return nil, errors.ErrRAGGenerationFailed.WithMessage("generation backend returned no response")
	}
	return out, nil
}

// response 组装响应并按字符上限整形回答。
func (q *queryRun) response(answer string, sources []model.RagSource, completion *llm.CompletionResponse) *model.QueryResponse {
	req := q.req
	shaped := shaper.Apply(answer, req.CharacterLimit)

	resp := &model.QueryResponse{
		RequestID:      q.requestID,
		Answer:         shaped.Text,
		Sources:        sources,
		LLMProvider:    req.Provider,
		LLMModel:       req.Model,
		OriginalLength: shaped.OriginalLength,
	}
	if resp.Sources == nil {
		resp.Sources = []model.RagSource{}
	}
	if len(resp.Sources) > 0 {
		resp.Confidence = sourcedConfidence
	}
	if shaped.Applied {
		limit := req.CharacterLimit
		resp.CharacterLimitApplied = &limit
	}
	if completion != nil {
		if completion.Model != "" {
			resp.LLMModel = completion.Model
		}
		if u := completion.Usage; u != nil {
			resp.Usage = &model.Usage{
				PromptTokens:     u.PromptTokens,
				CompletionTokens: u.CompletionTokens,
				TotalTokens:      u.TotalTokens,
			}
		}
	}
	resp.LatencyMs = q.elapsedMs()
	return resp
}

// fail 生成带 llm_error 的降级响应，不写缓存。
func (q *queryRun) fail(ctx context.Context, fallback string, sources []model.RagSource, cause error) Outcome {
	resp := q.response(fallback, sources, nil)
	resp.Confidence = 0
	msg := cause.Error()
	resp.LLMError = &msg
	q.finish(ctx, "", resp, false)
	return responseOutcome(resp)
}

func (q *queryRun) violation(v *isolation.ViolationError) Outcome {
	s := q.svc
	s.metrics.RecordIsolationViolation()
	s.metrics.RecordQuery(metrics.OutcomeViolation, time.Since(q.start))
	logger.Errorw("tenant isolation violation, request rejected",
		"request_id", q.requestID,
		"expected_tenant", v.ExpectedTenant,
		"actual_tenant", v.ActualTenant,
		"document_id", v.DocumentID,
		"operation", v.Operation)
	q.trace.Update(map[string]any{
		"success":    false,
		"violation":  true,
		"latency_ms": q.elapsedMs(),
		"tags":       q.tags("isolation_violation"),
	})
	return violationOutcome(v)
}

// finish 记录指标与 trace，成功结果写入两级缓存。
func (q *queryRun) finish(ctx context.Context, key string, resp *model.QueryResponse, cacheable bool) {
	s := q.svc
	if cacheable && !resp.Failed() {
		s.cache.Set(ctx, key, resp)
	}
	resp.LatencyMs = q.elapsedMs()
	s.metrics.RecordQuery(metrics.OutcomeCacheMiss, time.Since(q.start))

	status := "success"
	if resp.Failed() {
		status = "degraded"
	}
	q.trace.Update(map[string]any{
		"llm_provider": resp.LLMProvider,
		"llm_model":    resp.LLMModel,
		"latency_ms":   resp.LatencyMs,
		"success":      !resp.Failed(),
		"cache":        false,
		"sources":      len(resp.Sources),
		"tags":         q.tags(status),
	})
	logger.Infow("rag query completed",
		"request_id", q.requestID,
		"tenant_id", q.req.TenantID,
		"llm_provider", resp.LLMProvider,
		"sources", len(resp.Sources),
		"latency_ms", resp.LatencyMs,
		"failed", resp.Failed())
}

func (q *queryRun) elapsedMs() int64 {
	return time.Since(q.start).Milliseconds()
}

func (q *queryRun) tags(status string) []string {
	return []string{"tenant:" + q.req.TenantID, "provider:" + q.req.Provider, status}
}

func topSimilarity(chunks []model.RetrievedChunk) float64 {
	var top float64
	for _, c := range chunks {
		if c.Metadata.Similarity > top {
			top = c.Metadata.Similarity
		}
	}
	return top
}

// Diagnose 诊断模式：检索、隔离校验后以保留全部结果的方式重排，每个问题记录一次指标。
func (s *RAGService) Diagnose(ctx context.Context, tenantID, query string, k int) ([]rerank.RankedResult, error) {
	req := s.normalize(QueryRequest{TenantID: tenantID, Query: query, K: k})
	if err := s.Validate(req); err != nil {
		return nil, err
	}

	chunks, err := s.retriever.Retrieve(ctx, req.TenantID, req.Query, req.K)
	if err != nil {
		if !stderrors.Is(err, errors.ErrRAGRetrievalFailed) {
			err = errors.ErrRAGRetrievalFailed.WithCause(err)
		}
		return nil, err
	}

	guard, err := isolation.NewGuard(req.TenantID)
	if err != nil {
		return nil, err
	}
	if err := guard.ValidateRetrievedDocuments(chunks, isolation.ValidationContext{Operation: "diagnose", Query: req.Query}); err != nil {
		s.metrics.RecordIsolationViolation()
		return nil, err
	}
	return s.diagnose.Rerank(req.TenantID, chunks), nil
}
