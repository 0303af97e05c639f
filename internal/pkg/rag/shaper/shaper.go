// Package shaper 按字符预算截断生成文本。
package shaper

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// lookback 向前寻找断点的最大字符数。
	lookback = 10
	ellipsis = "..."
)

// Shaped 截断结果。
type Shaped struct {
	Text           string
	Applied        bool
	OriginalLength int
}

// Limit 将 text 截断到 limit 个字符以内并追加省略号。
// limit<=0 或文本未超出预算时原样返回。优先在 limit 之前 10 个字符内的
// 空白或标点处断开，否则在 limit 处硬切；按 rune 处理，不会切开多字节字符。
func Limit(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}

	runes := []rune(text)
	cut := limit
	for i := limit; i > 0 && i >= limit-lookback; i-- {
		if isBoundary(runes[i]) {
			cut = i
			break
		}
	}

	out := strings.TrimRightFunc(string(runes[:cut]), func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == ';' || r == ':'
	})
	return out + ellipsis
}

// Apply 截断并返回是否生效及原始长度。
func Apply(text string, limit int) Shaped {
	n := utf8.RuneCountInString(text)
	out := Limit(text, limit)
	return Shaped{
		Text:           out,
		Applied:        limit > 0 && n > limit,
		OriginalLength: n,
	}
}

func isBoundary(r rune) bool {
	if unicode.IsSpace(r) {
		return true
	}
	switch r {
	case '.', ',', ';', ':', '!', '?':
		return true
	}
	return false
}
