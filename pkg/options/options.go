// Package options 定义各配置项的公共接口。
package options

import (
	"strings"

	"github.com/spf13/pflag"
)

// IOptions 单个配置段需要实现的方法。
type IOptions interface {
	// Validate 返回全部校验错误，由调用方聚合。
	Validate() []error

	// AddFlags 在 fs 上注册本段 flag，prefixes 用于嵌套命名。
	AddFlags(fs *pflag.FlagSet, prefixes ...string)
}

// Join 拼接 flag 前缀，非空时以 "." 结尾，例如 Join("rag") == "rag."。
func Join(prefixes ...string) string {
	joined := strings.Join(prefixes, ".")
	if joined == "" {
		return ""
	}
	return joined + "."
}
