package safety

import (
	"fmt"
	"strings"
)

// InjectionResult 注入检测结果。
type InjectionResult struct {
	Detected  bool     `json:"detected"`
	RiskLevel Severity `json:"risk_level"`
	Patterns  []string `json:"patterns"`
	Details   string   `json:"details"`
}

// Analyzer 基于规则表的安全分析器，零值不可用，请使用 NewAnalyzer。
type Analyzer struct {
	injection []Pattern
	keywords  []string
	harmful   []Pattern
	markup    []Pattern
}

// Option 分析器选项。
type Option func(*Analyzer)

// WithInjectionPatterns 追加注入规则。
func WithInjectionPatterns(p ...Pattern) Option {
	return func(a *Analyzer) { a.injection = append(a.injection, p...) }
}

// WithKeywords 追加越狱关键词。
func WithKeywords(k ...string) Option {
	return func(a *Analyzer) {
		for _, kw := range k {
			a.keywords = append(a.keywords, strings.ToLower(kw))
		}
	}
}

// NewAnalyzer 创建使用内置规则表的分析器。
func NewAnalyzer(opts ...Option) *Analyzer {
	a := &Analyzer{
		injection: append([]Pattern(nil), injectionPatterns...),
		keywords:  append([]string(nil), jailbreakKeywords...),
		harmful:   harmfulPatterns,
		markup:    markupPatterns,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var defaultAnalyzer = NewAnalyzer()

// Default 返回包级默认分析器。
func Default() *Analyzer {
	return defaultAnalyzer
}

// DetectPromptInjection 使用默认分析器检测注入。
func DetectPromptInjection(text string) InjectionResult {
	return defaultAnalyzer.DetectPromptInjection(text)
}

// DetectPromptInjectionValue 接受任意值，非字符串输入视为无问题。
func DetectPromptInjectionValue(v any) InjectionResult {
	s, ok := v.(string)
	if !ok {
		return InjectionResult{RiskLevel: SeverityLow, Patterns: []string{}}
	}
	return defaultAnalyzer.DetectPromptInjection(s)
}

// DetectPromptInjection 检测提示注入。
//
// 风险等级按命中数递增：0 为 low，1-2 为 medium，3 为 high，
// 超过 3 或关键词命中超过 2 为 critical。
func (a *Analyzer) DetectPromptInjection(text string) InjectionResult {
	result := InjectionResult{RiskLevel: SeverityLow, Patterns: []string{}}
	if strings.TrimSpace(text) == "" {
		return result
	}

	for _, p := range a.injection {
		if p.Expr.MatchString(text) {
			result.Patterns = append(result.Patterns, string(p.Category)+":"+p.Name)
		}
	}

	lower := strings.ToLower(text)
	keywordHits := 0
	for _, kw := range a.keywords {
		if strings.Contains(lower, kw) {
			keywordHits++
			result.Patterns = append(result.Patterns, "keyword:"+kw)
		}
	}

	matches := len(result.Patterns)
	switch {
	case matches > 3 || keywordHits > 2:
		result.RiskLevel = SeverityCritical
	case matches == 3:
		result.RiskLevel = SeverityHigh
	case matches >= 1:
		result.RiskLevel = SeverityMedium
	}
	result.Detected = matches > 0
	if result.Detected {
		result.Details = fmt.Sprintf("matched %d pattern(s): %s", matches, strings.Join(result.Patterns, ", "))
	}
	return result
}

// DetectHarmfulContent 检测有害内容家族，每个家族最多一条问题。
// 凭证与个人信息家族归类为 pii_leakage。
func (a *Analyzer) DetectHarmfulContent(text string) []Issue {
	if text == "" {
		return nil
	}
	var issues []Issue
	seen := make(map[Category]bool)
	for _, p := range a.harmful {
		if seen[p.Category] || !p.Expr.MatchString(text) {
			continue
		}
		seen[p.Category] = true
		typ := IssueHarmfulContent
		if p.Category == CategoryCredential {
			typ = IssuePIILeakage
		}
		issues = append(issues, Issue{
			Type:     typ,
			Severity: p.Severity,
			Details:  fmt.Sprintf("%s family matched (%s)", p.Category, p.Name),
		})
	}
	return issues
}

// DetectSuspiciousMarkup 检测可疑指令标记，每条规则最多一条问题。
func (a *Analyzer) DetectSuspiciousMarkup(text string) []Issue {
	if text == "" {
		return nil
	}
	var issues []Issue
	for _, p := range a.markup {
		if loc := p.Expr.FindStringIndex(text); loc != nil {
			issues = append(issues, Issue{
				Type:     IssueSuspiciousMarkup,
				Severity: p.Severity,
				Details:  fmt.Sprintf("%s at offset %d", p.Name, loc[0]),
			})
		}
	}
	return issues
}
