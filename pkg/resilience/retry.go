package resilience

import (
	"context"
	"fmt"
	"time"
)

// DefaultAttempts 默认总尝试次数（含首次）。
const DefaultAttempts = 3

// RetryOption 配置 Retry。
type RetryOption func(*retryConfig)

type retryConfig struct {
	delay     time.Duration
	retryable func(error) bool
	onRetry   func(attempt int, err error)
}

// WithDelay 设置两次尝试之间的固定等待，默认立即重试。
func WithDelay(d time.Duration) RetryOption {
	return func(c *retryConfig) { c.delay = d }
}

// WithRetryable 设置可重试判断，返回 false 时立即停止。
func WithRetryable(fn func(error) bool) RetryOption {
	return func(c *retryConfig) { c.retryable = fn }
}

// OnRetry 注册每次失败后的回调（用于日志与指标），不影响控制流。
func OnRetry(fn func(attempt int, err error)) RetryOption {
	return func(c *retryConfig) { c.onRetry = fn }
}

// ExhaustedError 表示所有尝试均失败。
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d attempts failed: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Retry 最多执行 attempts 次 op，返回第一次成功的结果。
// attempts <= 0 时按 DefaultAttempts 处理。上下文取消时立即返回。
func Retry[T any](ctx context.Context, attempts int, op func(ctx context.Context) (T, error), opts ...RetryOption) (T, error) {
	cfg := retryConfig{retryable: func(error) bool { return true }}
	for _, opt := range opts {
		opt(&cfg)
	}
	if attempts <= 0 {
		attempts = DefaultAttempts
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if cfg.onRetry != nil {
			cfg.onRetry(attempt, err)
		}
		if !cfg.retryable(err) {
			return zero, err
		}

		if attempt < attempts && cfg.delay > 0 {
			timer := time.NewTimer(cfg.delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}
	}
	return zero, &ExhaustedError{Attempts: attempts, Err: lastErr}
}

// Do 是 Retry 的无返回值版本。
func Do(ctx context.Context, attempts int, op func(ctx context.Context) error, opts ...RetryOption) error {
	_, err := Retry(ctx, attempts, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, opts...)
	return err
}
