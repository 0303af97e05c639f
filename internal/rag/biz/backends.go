package biz

import (
	"sync"

	"github.com/kart-io/sentinel-rag/pkg/errors"
	"github.com/kart-io/sentinel-rag/pkg/llm"
)

// BackendFactory 按名称构造生成后端。
type BackendFactory func(name string) (llm.CompletionProvider, error)

// BackendResolver 按请求中的 llm_provider 查找生成后端。
type BackendResolver interface {
	Resolve(name string) (llm.CompletionProvider, error)
}

// Backends 生成后端集合。未注册的名称通过 factory 懒加载并缓存。
type Backends struct {
	mu        sync.RWMutex
	providers map[string]llm.CompletionProvider
	factory   BackendFactory
}

// NewBackends 创建后端集合，factory 可为 nil。
func NewBackends(factory BackendFactory) *Backends {
	return &Backends{
		providers: make(map[string]llm.CompletionProvider),
		factory:   factory,
	}
}

// Register 注册已构造好的后端。
func (b *Backends) Register(name string, p llm.CompletionProvider) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.providers[name] = p
}

// Resolve 实现 BackendResolver。
func (b *Backends) Resolve(name string) (llm.CompletionProvider, error) {
	b.mu.RLock()
	p, ok := b.providers[name]
	b.mu.RUnlock()
	if ok {
		return p, nil
	}
	if b.factory == nil {
		return nil, errors.ErrRAGUnknownProvider.WithMessagef("unknown provider: %s", name)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.providers[name]; ok {
		return p, nil
	}
	p, err := b.factory(name)
	if err != nil {
		return nil, err
	}
	b.providers[name] = p
	return p, nil
}

// Names 返回已加载的后端名称。
func (b *Backends) Names() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.providers))
	for name := range b.providers {
		names = append(names, name)
	}
	return names
}
