package tracing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/kart-io/sentinel-rag/rag"

// Generation 一次生成调用的记录。
type Generation struct {
	Name             string
	Model            string
	Temperature      float64
	MaxTokens        int
	Input            string
	Output           string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Err              error
}

// QueryTracer 为每次查询创建一条 trace。
type QueryTracer struct {
	tracer  trace.Tracer
	maxText int
}

// NewQueryTracer 基于给定 provider 创建。maxText <= 0 时不截断文本。
func NewQueryTracer(tp trace.TracerProvider, maxText int) *QueryTracer {
	return &QueryTracer{
		tracer:  tp.Tracer(instrumentationName),
		maxText: maxText,
	}
}

// Start 开启根 span。
func (t *QueryTracer) Start(ctx context.Context, name string, attrs map[string]any) (context.Context, *QueryTrace) {
	ctx, root := t.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(toAttributes("", attrs)...),
	)
	return ctx, &QueryTrace{ctx: ctx, root: root, tracer: t.tracer, maxText: t.maxText}
}

// QueryTrace 单次查询的 trace。
type QueryTrace struct {
	ctx     context.Context
	root    trace.Span
	tracer  trace.Tracer
	maxText int
}

// Span 记录一个已完成的子阶段，start 为阶段开始时间。
func (q *QueryTrace) Span(name string, start time.Time, attrs map[string]any) {
	_, span := q.tracer.Start(q.ctx, name, trace.WithTimestamp(start),
		trace.WithAttributes(toAttributes("rag."+name+".", attrs)...))
	span.End()
}

// Generation 记录一次生成调用。
func (q *QueryTrace) Generation(g Generation) {
	name := g.Name
	if name == "" {
		name = "generation"
	}
	spanCtx, span := q.tracer.Start(q.ctx, name, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("gen_ai.request.model", g.Model),
		attribute.Float64("gen_ai.request.temperature", g.Temperature),
		attribute.Int("gen_ai.request.max_tokens", g.MaxTokens),
		attribute.String("gen_ai.prompt", truncate(g.Input, q.maxText)),
		attribute.String("gen_ai.completion", truncate(g.Output, q.maxText)),
	)
	if g.TotalTokens > 0 {
		span.SetAttributes(
			attribute.Int("gen_ai.usage.input_tokens", g.PromptTokens),
			attribute.Int("gen_ai.usage.output_tokens", g.CompletionTokens),
			attribute.Int("gen_ai.usage.total_tokens", g.TotalTokens),
		)
	}
	RecordError(spanCtx, g.Err)
	span.End()
}

// Update 在根 span 上追加汇总属性。
func (q *QueryTrace) Update(attrs map[string]any) {
	q.root.SetAttributes(toAttributes("rag.", attrs)...)
	if ok, isBool := attrs["success"].(bool); isBool && !ok {
		q.root.SetStatus(codes.Error, "query failed")
	}
}

// End 结束根 span。
func (q *QueryTrace) End() {
	q.root.End()
}

// TraceID 返回当前 trace ID，未采样时为空。
func (q *QueryTrace) TraceID() string {
	return TraceIDFromContext(q.ctx)
}

func toAttributes(prefix string, m map[string]any) []attribute.KeyValue {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]attribute.KeyValue, 0, len(keys))
	for _, k := range keys {
		key := prefix + k
		switch v := m[k].(type) {
		case string:
			out = append(out, attribute.String(key, v))
		case bool:
			out = append(out, attribute.Bool(key, v))
		case int:
			out = append(out, attribute.Int(key, v))
		case int64:
			out = append(out, attribute.Int64(key, v))
		case float64:
			out = append(out, attribute.Float64(key, v))
		case []string:
			out = append(out, attribute.StringSlice(key, v))
		case nil:
		default:
			out = append(out, attribute.String(key, fmt.Sprint(v)))
		}
	}
	return out
}

func truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
