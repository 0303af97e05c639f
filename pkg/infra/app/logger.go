package app

import (
	"strings"

	"github.com/kart-io/logger"
	"github.com/spf13/pflag"
)

// sensitiveFlags 启动日志中需要打码的 flag 名称后缀。
var sensitiveFlags = []string{"password", "api-key", "key"}

// logFlags 在启动时输出全部 flag 的最终取值，敏感项打码。
func logFlags(fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		value := f.Value.String()
		if isSensitive(f.Name) && value != "" {
			value = "******"
		}
		logger.Debugw("flag", "name", f.Name, "value", value, "changed", f.Changed)
	})
}

func isSensitive(name string) bool {
	for _, s := range sensitiveFlags {
		if name == s || strings.HasSuffix(name, "."+s) {
			return true
		}
	}
	return false
}
