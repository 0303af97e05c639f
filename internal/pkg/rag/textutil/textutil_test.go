package textutil_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kart-io/sentinel-rag/internal/pkg/rag/textutil"
)

func TestHashString(t *testing.T) {
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", textutil.HashString("hello"))
	assert.Equal(t, textutil.HashString("a"), textutil.HashString("a"))
	assert.NotEqual(t, textutil.HashString("a"), textutil.HashString("b"))
}

func TestSHA1Hex(t *testing.T) {
	assert.Equal(t, "a9993e364706816aba3e25717850c26c9cd0d89d", textutil.SHA1Hex("abc"))
	assert.Equal(t, textutil.SHA1Hex("a|b"), textutil.SHA1Hex("a", "b"))
	assert.Len(t, textutil.SHA1Hex("x"), 40)
	assert.NotEqual(t, textutil.SHA1Hex("a", "b"), textutil.SHA1Hex("b", "a"))
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxLen   int
		expected string
	}{
		{"无需截断", "hello", 10, "hello"},
		{"英文截断", "hello world", 5, "hello"},
		{"中文截断", "你好世界", 2, "你好"},
		{"负数长度", "abc", -1, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, textutil.TruncateString(tt.input, tt.maxLen))
		})
	}
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "abc", textutil.Preview("abc", 5))
	assert.Equal(t, "ab…", textutil.Preview("abcdef", 2))
}

