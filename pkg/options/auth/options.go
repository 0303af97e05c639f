// Package auth provides tenant token authentication options.
//
// Configuration Example (YAML):
//
//	auth:
//	  enabled: true
//	  key: "your-secret-key-min-32-chars-long"
//	  issuer: "sentinel-rag"
package auth

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/kart-io/sentinel-rag/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

const (
	// MinKeyLength HMAC 密钥最小长度。
	MinKeyLength = 32

	// KeyEnv 未配置 key 时读取的环境变量。
	KeyEnv = "SENTINEL_RAG_AUTH_KEY"
)

// Options 租户令牌校验配置。仅支持 HS256。
type Options struct {
	// Enabled 为 true 时所有 /v1/rag 请求都要求 Bearer 令牌。
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	Key string `json:"-" mapstructure:"key"`

	// Issuer 非空时校验 iss。
	Issuer string `json:"issuer" mapstructure:"issuer"`

	// TenantClaim 携带租户 ID 的声明名。
	TenantClaim string `json:"tenant-claim" mapstructure:"tenant-claim"`
}

// NewOptions 创建默认配置。
func NewOptions() *Options {
	return &Options{
		Issuer:      "sentinel-rag",
		TenantClaim: "tenant_id",
	}
}

// AddFlags adds flags for auth options.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "auth."
	fs.BoolVar(&o.Enabled, p+"enabled", o.Enabled, "Require a tenant-scoped bearer token.")
	fs.StringVar(&o.Key, p+"key", o.Key, "HS256 signing key (prefer the "+KeyEnv+" env var).")
	fs.StringVar(&o.Issuer, p+"issuer", o.Issuer, "Expected token issuer, empty to skip the check.")
	fs.StringVar(&o.TenantClaim, p+"tenant-claim", o.TenantClaim, "Claim carrying the tenant id.")
}

// Complete 从环境变量补全密钥。
func (o *Options) Complete() error {
	if o.Key == "" {
		o.Key = os.Getenv(KeyEnv)
	}
	return nil
}

// Validate validates the auth options.
func (o *Options) Validate() []error {
	if o == nil || !o.Enabled {
		return nil
	}

	var errs []error
	if len(o.Key) < MinKeyLength {
		errs = append(errs, fmt.Errorf("auth.key must be at least %d characters", MinKeyLength))
	}
	if o.TenantClaim == "" {
		errs = append(errs, fmt.Errorf("auth.tenant-claim is required"))
	}
	return errs
}
