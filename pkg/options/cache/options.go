// Package cache provides response cache configuration options.
package cache

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/sentinel-rag/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// 远端缓存后端。
const (
	BackendNone      = "none"
	BackendRedis     = "redis"
	BackendLangCache = "langcache"
)

// Options 两级响应缓存配置。
type Options struct {
	// Enabled 是否启用响应缓存。
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// Remote 远端缓存后端：none、redis 或 langcache。
	Remote string `json:"remote" mapstructure:"remote"`

	// RemoteTTL 远端条目过期时间。
	RemoteTTL time.Duration `json:"remote-ttl" mapstructure:"remote-ttl"`

	// RemoteAttempts 远端读写的最大尝试次数。
	RemoteAttempts int `json:"remote-attempts" mapstructure:"remote-attempts"`

	// KeyPrefix Redis 键前缀。
	KeyPrefix string `json:"key-prefix" mapstructure:"key-prefix"`

	// LocalTTL 本地兜底缓存过期时间。
	LocalTTL time.Duration `json:"local-ttl" mapstructure:"local-ttl"`

	// LocalMaxEntries 本地兜底缓存容量。
	LocalMaxEntries int `json:"local-max-entries" mapstructure:"local-max-entries"`
}

// NewOptions 创建默认缓存配置。
func NewOptions() *Options {
	return &Options{
		Enabled:         true,
		Remote:          BackendNone,
		RemoteTTL:       time.Hour,
		RemoteAttempts:  3,
		KeyPrefix:       "rag:resp:",
		LocalTTL:        5 * time.Minute,
		LocalMaxEntries: 1000,
	}
}

// AddFlags adds flags for cache options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "cache."
	fs.BoolVar(&o.Enabled, p+"enabled", o.Enabled, "Enable the response cache.")
	fs.StringVar(&o.Remote, p+"remote", o.Remote, "Remote cache backend (none, redis, langcache).")
	fs.DurationVar(&o.RemoteTTL, p+"remote-ttl", o.RemoteTTL, "Remote cache entry TTL.")
	fs.IntVar(&o.RemoteAttempts, p+"remote-attempts", o.RemoteAttempts, "Attempts per remote cache call.")
	fs.StringVar(&o.KeyPrefix, p+"key-prefix", o.KeyPrefix, "Redis key prefix for cached responses.")
	fs.DurationVar(&o.LocalTTL, p+"local-ttl", o.LocalTTL, "Local fallback cache TTL.")
	fs.IntVar(&o.LocalMaxEntries, p+"local-max-entries", o.LocalMaxEntries, "Local fallback cache capacity.")
}

// Validate validates the cache options.
func (o *Options) Validate() []error {
	if o == nil || !o.Enabled {
		return nil
	}

	var errs []error
	switch o.Remote {
	case BackendNone, BackendRedis, BackendLangCache:
	default:
		errs = append(errs, fmt.Errorf("cache.remote must be one of none, redis, langcache: %q", o.Remote))
	}
	if o.RemoteAttempts < 1 {
		errs = append(errs, fmt.Errorf("cache.remote-attempts must be at least 1"))
	}
	if o.LocalTTL <= 0 {
		errs = append(errs, fmt.Errorf("cache.local-ttl must be positive"))
	}
	if o.LocalMaxEntries <= 0 {
		errs = append(errs, fmt.Errorf("cache.local-max-entries must be positive"))
	}
	return errs
}
