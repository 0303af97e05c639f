package safety

import (
	"fmt"
	"time"

	"github.com/kart-io/sentinel-rag/internal/model"
)

// Check 单项检查结果。
type Check struct {
	Name     string   `json:"name"`
	Passed   bool     `json:"passed"`
	Severity Severity `json:"severity,omitempty"`
	Details  string   `json:"details,omitempty"`
}

// InputCheckResult 用户输入检查结论，仅用于审计日志。
type InputCheckResult struct {
	Safe       bool     `json:"safe"`
	RiskLevel  Severity `json:"risk_level"`
	Checks     []Check  `json:"checks"`
	DurationMs int64    `json:"duration_ms"`
}

// ContextCheckResult 检索上下文检查结论，仅用于审计日志。
type ContextCheckResult struct {
	Safe       bool     `json:"safe"`
	RiskLevel  Severity `json:"risk_level"`
	Checks     []Check  `json:"checks"`
	DurationMs int64    `json:"duration_ms"`
}

// CheckInput 对用户查询执行注入、有害内容与边界逃逸检查。
func (a *Analyzer) CheckInput(query string) InputCheckResult {
	start := time.Now()
	checks := make([]Check, 0, 3)

	inj := a.DetectPromptInjection(query)
	checks = append(checks, Check{
		Name:     "prompt_injection",
		Passed:   !inj.Detected,
		Severity: severityIf(inj.Detected, inj.RiskLevel),
		Details:  inj.Details,
	})

	harmful := a.DetectHarmfulContent(query)
	checks = append(checks, issuesCheck("harmful_content", harmful))

	boundary := ValidateContextBoundaries(BoundaryInput{UserQuery: query})
	bc := Check{Name: "boundary_escape", Passed: boundary.Valid}
	if !boundary.Valid {
		bc.Severity = SeverityHigh
		bc.Details = fmt.Sprintf("%d boundary issue(s)", len(boundary.Issues))
	}
	checks = append(checks, bc)

	safe, risk := summarize(checks)
	return InputCheckResult{
		Safe:       safe,
		RiskLevel:  risk,
		Checks:     checks,
		DurationMs: time.Since(start).Milliseconds(),
	}
}

// CheckContext 对每个检索块执行注入与标记检查，每块一项。
func (a *Analyzer) CheckContext(chunks []model.RetrievedChunk) ContextCheckResult {
	start := time.Now()
	checks := make([]Check, 0, len(chunks))
	for i, c := range chunks {
		name := c.Metadata.ID
		if name == "" {
			name = fmt.Sprintf("chunk[%d]", i)
		}

		inj := a.DetectPromptInjection(c.Text)
		issues := a.DetectSuspiciousMarkup(c.Text)
		if inj.Detected {
			issues = append(issues, Issue{Type: IssueInjectionAttempt, Severity: inj.RiskLevel, Details: inj.Details})
		}
		checks = append(checks, issuesCheck(name, issues))
	}

	safe, risk := summarize(checks)
	return ContextCheckResult{
		Safe:       safe,
		RiskLevel:  risk,
		Checks:     checks,
		DurationMs: time.Since(start).Milliseconds(),
	}
}

func issuesCheck(name string, issues []Issue) Check {
	c := Check{Name: name, Passed: len(issues) == 0}
	for _, is := range issues {
		c.Severity = MaxSeverity(c.Severity, is.Severity)
		if c.Details != "" {
			c.Details += "; "
		}
		c.Details += string(is.Type) + ": " + is.Details
	}
	return c
}

func severityIf(cond bool, s Severity) Severity {
	if cond {
		return s
	}
	return ""
}

func summarize(checks []Check) (bool, Severity) {
	safe := true
	risk := SeverityLow
	for _, c := range checks {
		if !c.Passed {
			safe = false
			risk = MaxSeverity(risk, c.Severity)
		}
	}
	return safe, risk
}
