package biz

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kart-io/sentinel-rag/internal/model"
	"github.com/kart-io/sentinel-rag/pkg/infra/tracing"
	"github.com/kart-io/sentinel-rag/pkg/llm"
)

func chunk(id, tenant, title, text string, sim float64) model.RetrievedChunk {
	return model.RetrievedChunk{
		Text: text,
		Metadata: model.ChunkMetadata{
			ID:         id,
			TenantID:   tenant,
			Title:      title,
			Similarity: sim,
		},
	}
}

type fakeRetriever struct {
	mu     sync.Mutex
	chunks []model.RetrievedChunk
	err    error
	calls  atomic.Int32
	delay  time.Duration
	// byQuery 按查询返回不同结果，优先于 chunks。
	byQuery func(query string) []model.RetrievedChunk

	inFlight atomic.Int32
	peak     atomic.Int32
}

func (f *fakeRetriever) Retrieve(_ context.Context, _ string, query string, _ int) ([]model.RetrievedChunk, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		old := f.peak.Load()
		if n <= old || f.peak.CompareAndSwap(old, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.byQuery != nil {
		return f.byQuery(query), nil
	}
	out := make([]model.RetrievedChunk, len(f.chunks))
	copy(out, f.chunks)
	return out, nil
}

func (f *fakeRetriever) Close() error { return nil }

type fakeBackend struct {
	name    string
	content string
	err     error
	calls   atomic.Int32
	// echo 为 true 时回答 "answer: <question>"。
	echo bool

	mu      sync.Mutex
	lastReq llm.CompletionRequest
}

func (f *fakeBackend) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.lastReq = req
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	content := f.content
	if f.echo {
		user := req.Messages[len(req.Messages)-1].Content
		content = "answer: " + user[strings.LastIndex(user, "Question: ")+len("Question: "):]
	}
	return &llm.CompletionResponse{
		Content: content,
		Model:   "fake-model",
		Usage:   &llm.Usage{PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120},
	}, nil
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) request() llm.CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastReq
}

type fakeRemote struct {
	mu         sync.Mutex
	entries    map[string]*model.QueryResponse
	searchErr  error
	setErr     error
	countErr   error
	searchCall atomic.Int32
	setCall    atomic.Int32
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{entries: make(map[string]*model.QueryResponse)}
}

func (f *fakeRemote) Search(_ context.Context, key string) (*model.QueryResponse, error) {
	f.searchCall.Add(1)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries[key], nil
}

func (f *fakeRemote) Set(_ context.Context, key string, resp *model.QueryResponse) error {
	f.setCall.Add(1)
	if f.setErr != nil {
		return f.setErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[key] = resp
	return nil
}

func (f *fakeRemote) Name() string { return "fake" }

func (f *fakeRemote) Clear(_ context.Context, tenantID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for key := range f.entries {
		if t, ok := CacheKeyTenant(key); ok && t == tenantID {
			delete(f.entries, key)
			n++
		}
	}
	return n, nil
}

func (f *fakeRemote) Count(context.Context) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries), nil
}

var errBackendDown = errors.New("backend down")

// recordingTracer 记录 trace 调用。
type recordingTracer struct {
	mu          sync.Mutex
	spans       []string
	generations []tracing.Generation
	updates     []map[string]any
	ended       int
	panicOn     string
}

func (r *recordingTracer) Start(ctx context.Context, _ string, _ map[string]any) (context.Context, Trace) {
	if r.panicOn == "start" {
		panic("tracer start failed")
	}
	return ctx, r
}

func (r *recordingTracer) Span(name string, _ time.Time, _ map[string]any) {
	if r.panicOn == "span" {
		panic("span failed")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spans = append(r.spans, name)
}

func (r *recordingTracer) Generation(g tracing.Generation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generations = append(r.generations, g)
}

func (r *recordingTracer) Update(attrs map[string]any) {
	if r.panicOn == "update" {
		panic("update failed")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, attrs)
}

func (r *recordingTracer) End() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended++
}
