// Package metrics 提供查询链路的业务指标，以 Prometheus 格式导出。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 查询结果标签。
const (
	OutcomeCacheHit  = "cache_hit"
	OutcomeCacheMiss = "cache_miss"
	OutcomeViolation = "violation"
	OutcomeInvalid   = "invalid"
)

// 缓存层级与操作标签。
const (
	SourceRemote = "remote"
	SourceLocal  = "local"

	OpGet   = "get"
	OpSet   = "set"
	OpClear = "clear"

	ResultHit   = "hit"
	ResultMiss  = "miss"
	ResultOK    = "ok"
	ResultError = "error"
)

// RAGMetrics 查询链路指标。每个实例持有独立的 registry。
type RAGMetrics struct {
	registry *prometheus.Registry

	queries             *prometheus.CounterVec
	queryDuration       *prometheus.HistogramVec
	retrievals          *prometheus.CounterVec
	retrievalDuration   prometheus.Histogram
	retrievedChunks     prometheus.Histogram
	llmCalls            *prometheus.CounterVec
	llmDuration         *prometheus.HistogramVec
	llmTokens           *prometheus.CounterVec
	cacheOps            *prometheus.CounterVec
	safetyIssues        *prometheus.CounterVec
	isolationViolations prometheus.Counter
	batches             prometheus.Counter
	batchInFlight       prometheus.Gauge
}

// New 创建指标实例，namespace 为空时使用 sentinel_rag。
func New(namespace string) *RAGMetrics {
	if namespace == "" {
		namespace = "sentinel_rag"
	}
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &RAGMetrics{
		registry: reg,
		queries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Total number of RAG queries by outcome.",
		}, []string{"outcome"}),
		queryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "End-to-end query latency.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"outcome"}),
		retrievals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrievals_total",
			Help:      "Total number of retriever calls by status.",
		}, []string{"status"}),
		retrievalDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_duration_seconds",
			Help:      "Retriever call latency.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		retrievedChunks: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieved_chunks",
			Help:      "Chunks returned per retrieval.",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 20, 50},
		}),
		llmCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_calls_total",
			Help:      "Total number of generation backend calls.",
		}, []string{"provider", "status"}),
		llmDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_call_duration_seconds",
			Help:      "Generation backend latency.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider"}),
		llmTokens: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "Tokens consumed by the generation backend.",
		}, []string{"provider", "kind"}),
		cacheOps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_operations_total",
			Help:      "Response cache operations by tier, operation and result.",
		}, []string{"source", "op", "result"}),
		safetyIssues: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "safety_issues_total",
			Help:      "Safety issues flagged by the reranker.",
		}, []string{"type", "severity"}),
		isolationViolations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tenant_isolation_violations_total",
			Help:      "Retrieved documents rejected by the tenant isolation guard.",
		}),
		batches: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Total number of batch queries.",
		}),
		batchInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batch_inflight_queries",
			Help:      "Queries currently running inside batches.",
		}),
	}
}

// Registry 返回底层 registry。
func (m *RAGMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 返回 Prometheus 文本格式导出 handler。
func (m *RAGMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordQuery 记录一次查询。
func (m *RAGMetrics) RecordQuery(outcome string, d time.Duration) {
	m.queries.WithLabelValues(outcome).Inc()
	m.queryDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// RecordRetrieval 记录检索调用。
func (m *RAGMetrics) RecordRetrieval(d time.Duration, chunks int, err error) {
	if err != nil {
		m.retrievals.WithLabelValues(ResultError).Inc()
		return
	}
	m.retrievals.WithLabelValues(ResultOK).Inc()
	m.retrievalDuration.Observe(d.Seconds())
	m.retrievedChunks.Observe(float64(chunks))
}

// RecordLLMCall 记录生成调用。
func (m *RAGMetrics) RecordLLMCall(provider string, d time.Duration, promptTokens, completionTokens int, err error) {
	if err != nil {
		m.llmCalls.WithLabelValues(provider, ResultError).Inc()
		return
	}
	m.llmCalls.WithLabelValues(provider, ResultOK).Inc()
	m.llmDuration.WithLabelValues(provider).Observe(d.Seconds())
	if promptTokens > 0 {
		m.llmTokens.WithLabelValues(provider, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.llmTokens.WithLabelValues(provider, "completion").Add(float64(completionTokens))
	}
}

// RecordCache 记录一次缓存操作。
func (m *RAGMetrics) RecordCache(source, op, result string) {
	m.cacheOps.WithLabelValues(source, op, result).Inc()
}

// RecordSafetyIssue 记录一条安全问题。
func (m *RAGMetrics) RecordSafetyIssue(issueType, severity string) {
	m.safetyIssues.WithLabelValues(issueType, severity).Inc()
}

// RecordIsolationViolation 记录一次租户隔离违规。
func (m *RAGMetrics) RecordIsolationViolation() {
	m.isolationViolations.Inc()
}

// BatchStarted 记录批量查询开始。
func (m *RAGMetrics) BatchStarted() {
	m.batches.Inc()
}

// BatchQueryStarted / BatchQueryDone 维护批量查询的在途数量。
func (m *RAGMetrics) BatchQueryStarted() { m.batchInFlight.Inc() }

// BatchQueryDone 见 BatchQueryStarted。
func (m *RAGMetrics) BatchQueryDone() { m.batchInFlight.Dec() }
