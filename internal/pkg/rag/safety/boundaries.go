package safety

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// 低于该长度的检索片段不参与系统提示污染判断，避免常见短语误报。
const minEchoLength = 40

// BoundaryInput 待校验的三段输入。
type BoundaryInput struct {
	SystemPrompt     string
	RetrievedContext string
	UserQuery        string
}

// BoundaryIssue 单条边界问题。
type BoundaryIssue struct {
	Kind    string `json:"kind"`
	Details string `json:"details"`
}

const (
	BoundarySystemPromptContamination = "system_prompt_contamination"
	BoundaryEscapeAttempt             = "boundary_escape"
)

// BoundaryResult 边界校验结果，是否拒绝由调用方决定。
type BoundaryResult struct {
	Valid  bool            `json:"valid"`
	Issues []BoundaryIssue `json:"issues"`
}

// ValidateContextBoundaries 检查系统提示是否混入检索内容，以及用户查询是否试图逃逸上下文边界。
func ValidateContextBoundaries(in BoundaryInput) BoundaryResult {
	res := BoundaryResult{Valid: true, Issues: []BoundaryIssue{}}

	if in.SystemPrompt != "" && in.RetrievedContext != "" {
		for _, seg := range strings.Split(in.RetrievedContext, "\n") {
			seg = strings.TrimSpace(seg)
			if utf8.RuneCountInString(seg) < minEchoLength {
				continue
			}
			if strings.Contains(in.SystemPrompt, seg) {
				res.Issues = append(res.Issues, BoundaryIssue{
					Kind:    BoundarySystemPromptContamination,
					Details: fmt.Sprintf("retrieved content echoed in system prompt: %q", truncateRunes(seg, 60)),
				})
			}
		}
	}

	for _, p := range boundaryEscapePatterns {
		if m := p.Expr.FindString(in.UserQuery); m != "" {
			res.Issues = append(res.Issues, BoundaryIssue{
				Kind:    BoundaryEscapeAttempt,
				Details: fmt.Sprintf("%s: %q", p.Name, m),
			})
		}
	}

	res.Valid = len(res.Issues) == 0
	return res
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
