package biz

import (
	"context"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/sentinel-rag/pkg/infra/tracing"
)

// TraceBackend 观测后端，每次查询创建一条 trace。
type TraceBackend interface {
	Start(ctx context.Context, name string, attrs map[string]any) (context.Context, Trace)
}

// Trace 单次查询的 trace。所有方法均为尽力而为，失败不影响查询结果。
type Trace interface {
	Span(name string, start time.Time, attrs map[string]any)
	Generation(g tracing.Generation)
	Update(attrs map[string]any)
	End()
}

// NoopTraceBackend 不记录任何内容。
type NoopTraceBackend struct{}

// Start 实现 TraceBackend。
func (NoopTraceBackend) Start(ctx context.Context, _ string, _ map[string]any) (context.Context, Trace) {
	return ctx, noopTrace{}
}

type noopTrace struct{}

func (noopTrace) Span(string, time.Time, map[string]any) {}
func (noopTrace) Generation(tracing.Generation)          {}
func (noopTrace) Update(map[string]any)                  {}
func (noopTrace) End()                                   {}

// OTelTraceBackend 基于 OpenTelemetry 的 trace 后端。
type OTelTraceBackend struct {
	tracer *tracing.QueryTracer
}

// NewOTelTraceBackend 创建 OpenTelemetry trace 后端。
func NewOTelTraceBackend(tracer *tracing.QueryTracer) *OTelTraceBackend {
	return &OTelTraceBackend{tracer: tracer}
}

// Start 实现 TraceBackend。
func (b *OTelTraceBackend) Start(ctx context.Context, name string, attrs map[string]any) (context.Context, Trace) {
	return b.tracer.Start(ctx, name, attrs)
}

// safeTrace 吞掉后端的 panic，只记录日志。
type safeTrace struct {
	inner Trace
}

func startTrace(ctx context.Context, backend TraceBackend, name string, attrs map[string]any) (outCtx context.Context, tr Trace) {
	outCtx, tr = ctx, noopTrace{}
	if backend == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Warnw("trace creation failed", "name", name, "panic", r)
			outCtx, tr = ctx, noopTrace{}
		}
	}()

	c, inner := backend.Start(ctx, name, attrs)
	if inner == nil {
		return ctx, noopTrace{}
	}
	return c, safeTrace{inner: inner}
}

func (t safeTrace) guard(op string) {
	if r := recover(); r != nil {
		logger.Warnw("trace update failed", "op", op, "panic", r)
	}
}

func (t safeTrace) Span(name string, start time.Time, attrs map[string]any) {
	defer t.guard("span")
	t.inner.Span(name, start, attrs)
}

func (t safeTrace) Generation(g tracing.Generation) {
	defer t.guard("generation")
	t.inner.Generation(g)
}

func (t safeTrace) Update(attrs map[string]any) {
	defer t.guard("update")
	t.inner.Update(attrs)
}

func (t safeTrace) End() {
	defer t.guard("end")
	t.inner.End()
}
