// Package textutil 提供 RAG 链路共用的文本处理工具函数。
package textutil

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"unicode/utf8"
)

// HashString 计算字符串的 MD5 哈希值，用于无 ID 文档的去重标识。
func HashString(s string) string {
	hash := md5.Sum([]byte(s))
	return hex.EncodeToString(hash[:])
}

// SHA1Hex 计算多个片段以 "|" 连接后的 SHA1 十六进制摘要。
func SHA1Hex(parts ...string) string {
	sum := sha1.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// TruncateString 截断字符串到指定的最大 Unicode 字符数。
func TruncateString(s string, maxLen int) string {
	if maxLen < 0 {
		maxLen = 0
	}
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen])
}

// Preview 截断并在被截断时追加 "…"，用于日志与追踪。
func Preview(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return TruncateString(s, maxLen) + "…"
}

