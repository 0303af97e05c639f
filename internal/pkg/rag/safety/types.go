// Package safety 提供查询链路上的安全分析：提示注入检测、检索内容净化、
// 上下文边界校验以及系统提示锚定。
//
// 所有检测均基于静态规则表，无外部调用、无状态，可重复执行。
// 输入异常时返回“未发现问题”，不会 panic。
package safety

// IssueType 安全问题类型。
type IssueType string

const (
	IssueInjectionAttempt IssueType = "injection_attempt"
	IssueHarmfulContent   IssueType = "harmful_content"
	IssuePIILeakage       IssueType = "pii_leakage"
	IssueCrossTenant      IssueType = "cross_tenant_contamination"
	IssueSuspiciousMarkup IssueType = "suspicious_markup"
)

// Severity 严重程度，也用作风险等级。
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Level 返回可比较的等级序号，未知值为 0。
func (s Severity) Level() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// MaxSeverity 返回两者中更严重的一个。
func MaxSeverity(a, b Severity) Severity {
	if b.Level() > a.Level() {
		return b
	}
	return a
}

// Issue 单条安全问题，按请求、按文本块临时生成，不持久化。
type Issue struct {
	Type     IssueType `json:"type"`
	Severity Severity  `json:"severity"`
	Details  string    `json:"details"`
}
