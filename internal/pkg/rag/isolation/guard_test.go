package isolation

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/sentinel-rag/internal/model"
	"github.com/kart-io/sentinel-rag/pkg/errors"
)

func chunk(id, tenant string) model.RetrievedChunk {
	return model.RetrievedChunk{Text: "text " + id, Metadata: model.ChunkMetadata{ID: id, TenantID: tenant}}
}

func TestNewGuard(t *testing.T) {
	_, err := NewGuard("  ")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrRAGInvalidRequest)

	g, err := NewGuard("tn_abc")
	require.NoError(t, err)
	assert.Equal(t, "tn_abc", g.TenantID())
}

func TestEnforceWriteIsolation(t *testing.T) {
	g, _ := NewGuard("tn_abc")
	in := []model.RetrievedChunk{chunk("1", ""), chunk("2", "tn_xyz"), chunk("3", "tn_abc")}

	out := g.EnforceWriteIsolation(in)
	require.Len(t, out, 3)
	for _, d := range out {
		assert.Equal(t, "tn_abc", d.Metadata.TenantID)
	}
	// 输入不被修改
	assert.Equal(t, "tn_xyz", in[1].Metadata.TenantID)
	assert.NoError(t, g.ValidateRetrievedDocuments(out, ValidationContext{}))
}

func TestValidateRetrievedDocuments(t *testing.T) {
	g, _ := NewGuard("tn_abc")

	tests := []struct {
		name       string
		docs       []model.RetrievedChunk
		wantErr    bool
		wantDoc    string
		wantActual string
	}{
		{"全部匹配", []model.RetrievedChunk{chunk("1", "tn_abc"), chunk("2", "tn_abc")}, false, "", ""},
		{"空列表", nil, false, "", ""},
		{"租户不一致", []model.RetrievedChunk{chunk("1", "tn_abc"), chunk("2", "tn_xyz")}, true, "2", "tn_xyz"},
		{"缺失租户", []model.RetrievedChunk{chunk("7", "")}, true, "7", ""},
		{"缺失文档 ID", []model.RetrievedChunk{{Text: "x", Metadata: model.ChunkMetadata{TenantID: "tn_xyz"}}}, true, "index:0", "tn_xyz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.ValidateRetrievedDocuments(tt.docs, ValidationContext{Operation: "query"})
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			var v *ViolationError
			require.True(t, stderrors.As(err, &v))
			assert.Equal(t, tt.wantDoc, v.DocumentID)
			assert.Equal(t, "tn_abc", v.ExpectedTenant)
			assert.Equal(t, tt.wantActual, v.ActualTenant)
			assert.Equal(t, "query", v.Operation)
			assert.ErrorIs(t, err, errors.ErrTenantIsolationViolation)
			assert.Equal(t, 403, v.Errno().HTTPStatus())
		})
	}
}

func TestViolationErrorMessage(t *testing.T) {
	v := &ViolationError{DocumentID: "d1", ExpectedTenant: "tn_abc", Operation: "retrieval"}
	assert.Contains(t, v.Error(), "<missing>")
	assert.Contains(t, v.Error(), "tn_abc")
}
