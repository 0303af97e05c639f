package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetrievedChunkClone(t *testing.T) {
	orig := RetrievedChunk{
		Text: "hello",
		Metadata: ChunkMetadata{
			ID:       "doc-1",
			TenantID: "tn_abc",
			Extra:    map[string]any{"page": 3},
		},
	}

	cp := orig.Clone()
	cp.Metadata.Extra["page"] = 4
	cp.Metadata.TenantID = "tn_xyz"

	assert.Equal(t, 3, orig.Metadata.Extra["page"])
	assert.Equal(t, "tn_abc", orig.Metadata.TenantID)
}

func TestQueryResponseFailed(t *testing.T) {
	msg := "generation timeout"
	assert.True(t, (&QueryResponse{LLMError: &msg}).Failed())
	assert.False(t, (&QueryResponse{}).Failed())
}
