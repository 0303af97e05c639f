// Package id 生成请求标识。
package id

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator 生成时间可排序的 ULID。同一毫秒内单调递增，并发安全。
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

// Option 配置 Generator。
type Option func(*Generator)

// WithEntropy 设置随机源。
func WithEntropy(r io.Reader) Option {
	return func(g *Generator) { g.entropy = ulid.Monotonic(r, 0) }
}

// WithClock 设置时间源。
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// NewGenerator 创建 ULID 生成器。
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate 返回新的 ULID 字符串（26 字符）。
func (g *Generator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(g.now()), g.entropy).String()
}

var defaultGenerator = NewGenerator()

// NewRequestID 使用默认生成器返回新的请求 ID。
func NewRequestID() string {
	return defaultGenerator.Generate()
}

// Time 解析 ULID 中的时间戳。
func Time(s string) (time.Time, error) {
	u, err := ulid.ParseStrict(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(u.Time()), nil
}

// IsValid 判断 s 是否为合法 ULID。
func IsValid(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}
