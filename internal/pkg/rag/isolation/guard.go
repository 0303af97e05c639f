// Package isolation 实现租户隔离守卫，是查询链路中唯一的硬性安全边界。
//
// 写入前为文档打上租户标签；读取后逐个校验租户标签，缺失或不一致
// 一律视为违规（fail-closed）。
package isolation

import (
	"fmt"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/sentinel-rag/internal/model"
	"github.com/kart-io/sentinel-rag/pkg/errors"
)

// ViolationError 租户隔离违规，携带违规文档 ID 与双方租户 ID。
type ViolationError struct {
	DocumentID     string
	ExpectedTenant string
	ActualTenant   string
	Operation      string
}

// Error 实现 error 接口。
func (e *ViolationError) Error() string {
	actual := e.ActualTenant
	if actual == "" {
		actual = "<missing>"
	}
	return fmt.Sprintf("tenant isolation violation during %s: document %q belongs to tenant %q, expected %q",
		e.Operation, e.DocumentID, actual, e.ExpectedTenant)
}

// Unwrap 使 errors.Is(err, errors.ErrTenantIsolationViolation) 成立。
func (e *ViolationError) Unwrap() error {
	return errors.ErrTenantIsolationViolation
}

// Errno 返回附带详细信息的错误码。
func (e *ViolationError) Errno() *errors.Errno {
	return errors.ErrTenantIsolationViolation.WithCause(e)
}

// ValidationContext 校验上下文，仅用于日志。
type ValidationContext struct {
	Operation string
	Query     string
}

// Guard 绑定单一租户的隔离守卫，无内部状态，可并发使用。
type Guard struct {
	tenantID string
}

// NewGuard 创建守卫，租户 ID 不能为空。
func NewGuard(tenantID string) (*Guard, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, errors.ErrRAGInvalidRequest.WithMessage("tenant_id is required for isolation guard")
	}
	return &Guard{tenantID: tenantID}, nil
}

// TenantID 返回守卫绑定的租户。
func (g *Guard) TenantID() string {
	return g.tenantID
}

// EnforceWriteIsolation 返回文档副本，并以守卫租户覆盖其租户标签。
func (g *Guard) EnforceWriteIsolation(docs []model.RetrievedChunk) []model.RetrievedChunk {
	out := make([]model.RetrievedChunk, len(docs))
	for i, d := range docs {
		c := d.Clone()
		if c.Metadata.TenantID != "" && c.Metadata.TenantID != g.tenantID {
			logger.Warnw("overwriting foreign tenant tag on write",
				"document_id", c.Metadata.ID,
				"from_tenant", c.Metadata.TenantID,
				"tenant_id", g.tenantID,
			)
		}
		c.Metadata.TenantID = g.tenantID
		out[i] = c
	}
	return out
}

// ValidateRetrievedDocuments 逐个校验文档租户标签，遇到第一个违规立即返回 *ViolationError。
func (g *Guard) ValidateRetrievedDocuments(docs []model.RetrievedChunk, vc ValidationContext) error {
	op := vc.Operation
	if op == "" {
		op = "retrieval"
	}
	for i, d := range docs {
		if d.Metadata.TenantID != "" && d.Metadata.TenantID == g.tenantID {
			continue
		}

		id := d.Metadata.ID
		if id == "" {
			id = fmt.Sprintf("index:%d", i)
		}
		v := &ViolationError{
			DocumentID:     id,
			ExpectedTenant: g.tenantID,
			ActualTenant:   d.Metadata.TenantID,
			Operation:      op,
		}
		logger.Errorw("tenant isolation violation",
			"operation", op,
			"document_id", v.DocumentID,
			"tenant_id", v.ExpectedTenant,
			"document_tenant_id", v.ActualTenant,
		)
		return v
	}
	return nil
}
