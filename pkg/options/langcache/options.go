// Package langcache provides options for the LangCache semantic cache service.
package langcache

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/sentinel-rag/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// APIKeyEnv 未配置 api-key 时读取的环境变量。
const APIKeyEnv = "LANGCACHE_API_KEY"

// Options LangCache 连接配置。
type Options struct {
	ServerURL string        `json:"server-url" mapstructure:"server-url"`
	CacheID   string        `json:"cache-id" mapstructure:"cache-id"`
	APIKey    string        `json:"-" mapstructure:"api-key"`
	Timeout   time.Duration `json:"timeout" mapstructure:"timeout"`
}

// NewOptions 创建默认配置。
func NewOptions() *Options {
	return &Options{Timeout: 3 * time.Second}
}

// AddFlags adds flags for LangCache options.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "langcache."
	fs.StringVar(&o.ServerURL, p+"server-url", o.ServerURL, "LangCache server URL.")
	fs.StringVar(&o.CacheID, p+"cache-id", o.CacheID, "LangCache cache id.")
	fs.StringVar(&o.APIKey, p+"api-key", o.APIKey, "LangCache API key (prefer the "+APIKeyEnv+" env var).")
	fs.DurationVar(&o.Timeout, p+"timeout", o.Timeout, "LangCache request timeout.")
}

// Complete 从环境变量补全 API key。
func (o *Options) Complete() error {
	if o.APIKey == "" {
		o.APIKey = os.Getenv(APIKeyEnv)
	}
	return nil
}

// Configured 报告是否提供了连接所需的全部字段。
func (o *Options) Configured() bool {
	return o != nil && o.ServerURL != "" && o.CacheID != "" && o.APIKey != ""
}

// Validate 仅在提供了任一字段时要求字段完整。
func (o *Options) Validate() []error {
	if o == nil || (o.ServerURL == "" && o.CacheID == "") {
		return nil
	}

	var errs []error
	if o.ServerURL == "" {
		errs = append(errs, fmt.Errorf("langcache.server-url is required"))
	}
	if o.CacheID == "" {
		errs = append(errs, fmt.Errorf("langcache.cache-id is required"))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("langcache.timeout must be positive"))
	}
	return errs
}
