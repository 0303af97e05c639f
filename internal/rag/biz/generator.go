package biz

import (
	"fmt"
	"strings"

	"github.com/kart-io/sentinel-rag/internal/model"
	"github.com/kart-io/sentinel-rag/internal/pkg/rag/safety"
	"github.com/kart-io/sentinel-rag/internal/pkg/rag/textutil"
	"github.com/kart-io/sentinel-rag/pkg/llm"
)

// 降级回答，检索或生成失败时替代 answer。
const (
	FallbackNoSources        = "I could not find any information in your knowledge base that answers this question."
	FallbackRetrievalFailure = "I'm unable to search your knowledge base right now. Please try again shortly."
	FallbackGenerationFailed = "I found relevant information but could not generate an answer right now. Please try again shortly."
)

// sourcePreviewLength 来源中 chunk 字段保留的字符数。
const sourcePreviewLength = 300

// BuildContext 把净化后的文本块拼成带编号的上下文，编号从 1 开始，与来源 index 对应。
func BuildContext(chunks []safety.SanitizedChunk) string {
	var b strings.Builder
	b.WriteString("<context>\n")
	for i, c := range chunks {
		title := c.Metadata.Title
		if title == "" {
			title = "Untitled"
		}
		fmt.Fprintf(&b, "[%d] %s\n%s\n\n", i+1, title, strings.TrimSpace(c.Text))
	}
	b.WriteString("</context>")
	return b.String()
}

// BuildMessages 组装生成请求消息。系统提示在每次调用前重新锚定。
func BuildMessages(systemPrompt, tenantID, contextBlock, query string) []llm.Message {
	anchored := safety.AnchorSystemPrompt(systemPrompt, safety.AnchorOptions{TenantID: tenantID})
	user := contextBlock + "\n\nQuestion: " + query
	return []llm.Message{
		{Role: llm.RoleSystem, Content: anchored},
		{Role: llm.RoleUser, Content: user},
	}
}

// BuildSources 生成响应中的来源列表。
func BuildSources(chunks []safety.SanitizedChunk) []model.RagSource {
	sources := make([]model.RagSource, 0, len(chunks))
	for i, c := range chunks {
		sources = append(sources, model.RagSource{
			Title:      c.Metadata.Title,
			Chunk:      textutil.Preview(strings.TrimSpace(c.Text), sourcePreviewLength),
			Similarity: c.Metadata.Similarity,
			Index:      i + 1,
		})
	}
	return sources
}

// renderPrompt 把消息拼成一段文本，仅用于 trace 记录。
func renderPrompt(msgs []llm.Message) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		parts = append(parts, string(m.Role)+": "+m.Content)
	}
	return strings.Join(parts, "\n\n")
}
