// Package redis 基于 go-redis 的连接封装，供响应缓存与 Embedding 缓存共用。
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	redisopts "github.com/kart-io/sentinel-rag/pkg/options/redis"
)

// Client Redis 客户端。
type Client struct {
	client *goredis.Client
	opts   *redisopts.Options
}

// New 创建客户端并在 ctx 内完成一次 Ping，失败时关闭连接。
func New(ctx context.Context, opts *redisopts.Options) (*Client, error) {
	if opts == nil {
		return nil, fmt.Errorf("redis options cannot be nil")
	}
	if errs := opts.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid redis options: %w", utilerrors.NewAggregate(errs))
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:         opts.Addr(),
		Password:     opts.Password,
		DB:           opts.Database,
		MaxRetries:   opts.MaxRetries,
		PoolSize:     opts.PoolSize,
		MinIdleConns: opts.MinIdleConns,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis %s: %w", opts.Addr(), err)
	}

	return &Client{client: rdb, opts: opts}, nil
}

// Client 返回底层 go-redis 客户端。
func (c *Client) Client() goredis.UniversalClient {
	return c.client
}

// Close 关闭连接池。
func (c *Client) Close() error {
	return c.client.Close()
}

// HealthStats Redis 连接状态。
type HealthStats struct {
	Healthy    bool          `json:"healthy"`
	Latency    time.Duration `json:"latency"`
	TotalConns uint32        `json:"total_conns"`
	IdleConns  uint32        `json:"idle_conns"`
	Timeouts   uint32        `json:"timeouts"`
	Error      string        `json:"error,omitempty"`
}

// Health 执行一次 Ping 并返回连接池统计。
func (c *Client) Health(ctx context.Context) HealthStats {
	start := time.Now()
	err := c.client.Ping(ctx).Err()

	pool := c.client.PoolStats()
	stats := HealthStats{
		Healthy:    err == nil,
		Latency:    time.Since(start),
		TotalConns: pool.TotalConns,
		IdleConns:  pool.IdleConns,
		Timeouts:   pool.Timeouts,
	}
	if err != nil {
		stats.Error = err.Error()
	}
	return stats
}
