// Package model provides data models for the sentinel-rag service.
package model

// RetrievedChunk 检索器返回的文本块，进入核心流程前已完成规范化。
type RetrievedChunk struct {
	Text     string        `json:"text"`
	Metadata ChunkMetadata `json:"metadata"`
}

// ChunkMetadata 文本块元数据。TenantID 为空视为缺失。
type ChunkMetadata struct {
	ID         string         `json:"id,omitempty"`
	TenantID   string         `json:"tenant_id"`
	Title      string         `json:"title,omitempty"`
	Similarity float64        `json:"similarity"`
	Source     string         `json:"source,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// Clone 返回深拷贝，Extra 不与原对象共享。
func (c RetrievedChunk) Clone() RetrievedChunk {
	out := c
	if c.Metadata.Extra != nil {
		out.Metadata.Extra = make(map[string]any, len(c.Metadata.Extra))
		for k, v := range c.Metadata.Extra {
			out.Metadata.Extra[k] = v
		}
	}
	return out
}

// RagSource 返回给调用方的引用来源。
type RagSource struct {
	Title      string  `json:"title"`
	Chunk      string  `json:"chunk"`
	Similarity float64 `json:"similarity"`
	Index      int     `json:"index"`
}

// Usage token 用量。
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// QueryResponse 查询响应，同时也是缓存中保存的内容。
type QueryResponse struct {
	RequestID             string      `json:"request_id,omitempty"`
	Answer                string      `json:"answer"`
	Sources               []RagSource `json:"sources"`
	Confidence            float64     `json:"confidence"`
	LLMError              *string     `json:"llm_error"`
	LLMProvider           string      `json:"llm_provider"`
	LLMModel              string      `json:"llm_model"`
	LatencyMs             int64       `json:"latency_ms"`
	CharacterLimitApplied *int        `json:"character_limit_applied"`
	OriginalLength        int         `json:"original_length"`
	Cache                 bool        `json:"cache"`
	Usage                 *Usage      `json:"usage,omitempty"`
}

// Failed 报告本次响应是否携带检索或生成错误。
func (r *QueryResponse) Failed() bool {
	return r.LLMError != nil
}
