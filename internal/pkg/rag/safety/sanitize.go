package safety

import (
	"fmt"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/sentinel-rag/internal/model"
	"github.com/kart-io/sentinel-rag/internal/pkg/rag/textutil"
)

// SanitizeOptions 净化选项。
type SanitizeOptions struct {
	// MaxLength 单块最大字符数，<=0 表示不限制。
	MaxLength int
}

// SanitizedChunk 净化后的文本块。Sanitized 表示文本是否被改写。
type SanitizedChunk struct {
	Text      string              `json:"text"`
	Sanitized bool                `json:"sanitized"`
	Metadata  model.ChunkMetadata `json:"metadata"`
}

// SanitizeRetrievedContext 把检索内容当作数据处理，移除或遮蔽其中形似指令的标记。
// 单块处理失败时保留原文、Sanitized=false 并记录告警，整体不会失败。
func SanitizeRetrievedContext(chunks []model.RetrievedChunk, opts SanitizeOptions) []SanitizedChunk {
	out := make([]SanitizedChunk, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, sanitizeChunk(c, opts))
	}
	return out
}

func sanitizeChunk(c model.RetrievedChunk, opts SanitizeOptions) (sc SanitizedChunk) {
	sc = SanitizedChunk{Text: c.Text, Metadata: c.Metadata}
	defer func() {
		if r := recover(); r != nil {
			logger.Warnw("sanitize retrieved chunk failed, returning original text",
				"chunk_id", c.Metadata.ID,
				"error", fmt.Sprint(r),
			)
			sc = SanitizedChunk{Text: c.Text, Metadata: c.Metadata}
		}
	}()

	text := c.Text
	for _, r := range sanitizeRules {
		text = r.expr.ReplaceAllString(text, r.replacement)
	}
	text = strings.TrimSpace(text)
	if opts.MaxLength > 0 {
		text = textutil.TruncateString(text, opts.MaxLength)
	}

	sc.Text = text
	sc.Sanitized = text != c.Text
	return sc
}
