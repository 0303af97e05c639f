// Package rerank 实现带安全惩罚的 RRF (Reciprocal Rank Fusion) 重排序。
//
// 相关性分数为各结果集中 1/(k+rank) 之和；安全分数由内容扫描得到的惩罚
// 推导，二者相乘得到最终分数。默认模式下跨租户文档被整体剔除。
//
// 这里的惩罚与 safety 包的净化、边界校验分开计算：safety 改写模型看到的
// 上下文，rerank 只决定排序与过滤。
package rerank

import (
	"math"
	"sort"

	"github.com/kart-io/sentinel-rag/internal/model"
	"github.com/kart-io/sentinel-rag/internal/pkg/rag/safety"
	"github.com/kart-io/sentinel-rag/internal/pkg/rag/textutil"
)

const (
	// MinSafetyScore 安全分数下限，任何文档都不会被判定为绝对不安全。
	MinSafetyScore = 0.05
	// MaxPenalty 惩罚总和上限。
	MaxPenalty = 0.95

	harmfulFamilyPenalty = 0.4
	crossTenantPenalty   = 1.0
	markupPenalty        = 0.35
	minMultiplier        = 0.05
)

// injectionPenalty 按注入风险等级的惩罚。
var injectionPenalty = map[safety.Severity]float64{
	safety.SeverityLow:      0.1,
	safety.SeverityMedium:   0.3,
	safety.SeverityHigh:     0.5,
	safety.SeverityCritical: 0.95,
}

// Config 重排序配置。
type Config struct {
	// K RRF 平滑参数，越大低排名的影响越平缓。
	K float64 `json:"k" mapstructure:"k"`

	// SafetyWeight 安全分数对最终分数的影响权重。
	SafetyWeight float64 `json:"safety-weight" mapstructure:"safety-weight"`

	// IncludeAllResults 诊断模式：保留全部结果（含跨租户）并逐条上报问题指标。
	IncludeAllResults bool `json:"include-all-results" mapstructure:"include-all-results"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() Config {
	return Config{
		K:            60,
		SafetyWeight: 0.3,
	}
}

// IssueRecorder 诊断模式下的问题指标上报。
type IssueRecorder interface {
	RecordSafetyIssue(issueType, severity string)
}

// RankedResult 重排序结果。
type RankedResult struct {
	Document       model.RetrievedChunk `json:"document"`
	RelevanceScore float64              `json:"relevance_score"`
	SafetyScore    float64              `json:"safety_score"`
	SafetyIssues   []safety.Issue       `json:"safety_issues"`
	FinalScore     float64              `json:"final_score"`
	Rank           int                  `json:"rank"`
}

// HasIssue 报告结果是否包含指定类型的问题。
func (r RankedResult) HasIssue(t safety.IssueType) bool {
	for _, is := range r.SafetyIssues {
		if is.Type == t {
			return true
		}
	}
	return false
}

// Reranker 安全感知的 RRF 重排序器。
type Reranker struct {
	config   Config
	analyzer *safety.Analyzer
	recorder IssueRecorder
}

// New 创建重排序器。analyzer 为 nil 时使用默认分析器，recorder 可为 nil。
func New(config Config, analyzer *safety.Analyzer, recorder IssueRecorder) *Reranker {
	if config.K <= 0 {
		config.K = DefaultConfig().K
	}
	if analyzer == nil {
		analyzer = safety.Default()
	}
	return &Reranker{config: config, analyzer: analyzer, recorder: recorder}
}

// Config 返回当前配置。
func (r *Reranker) Config() Config {
	return r.config
}

// WithIncludeAll 返回切换了诊断模式的副本。
func (r *Reranker) WithIncludeAll(include bool) *Reranker {
	c := *r
	c.config.IncludeAllResults = include
	return &c
}

type fused struct {
	doc   model.RetrievedChunk
	rrf   float64
	order int
}

// Rerank 融合一个或多个结果集并按最终分数排序，排名从 1 开始。
func (r *Reranker) Rerank(tenantID string, resultSets ...[]model.RetrievedChunk) []RankedResult {
	byID := make(map[string]*fused)
	var order []string

	for _, set := range resultSets {
		for i, doc := range set {
			id := doc.Metadata.ID
			if id == "" {
				id = textutil.HashString(doc.Text)
			}
			f, ok := byID[id]
			if !ok {
				f = &fused{doc: doc, order: len(order)}
				byID[id] = f
				order = append(order, id)
			}
			f.rrf += 1.0 / (r.config.K + float64(i+1))
		}
	}

	results := make([]RankedResult, 0, len(order))
	for _, id := range order {
		f := byID[id]
		issues := r.scan(tenantID, f.doc)
		safetyScore := SafetyScore(issues)
		results = append(results, RankedResult{
			Document:       f.doc,
			RelevanceScore: f.rrf,
			SafetyScore:    safetyScore,
			SafetyIssues:   issues,
			FinalScore:     FinalScore(f.rrf, safetyScore, r.config.SafetyWeight),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].FinalScore != results[j].FinalScore {
			return results[i].FinalScore > results[j].FinalScore
		}
		return results[i].RelevanceScore > results[j].RelevanceScore
	})

	if r.config.IncludeAllResults {
		r.report(results)
	} else {
		kept := results[:0]
		for _, res := range results {
			if !res.HasIssue(safety.IssueCrossTenant) {
				kept = append(kept, res)
			}
		}
		results = kept
	}

	for i := range results {
		results[i].Rank = i + 1
	}
	return results
}

func (r *Reranker) scan(tenantID string, doc model.RetrievedChunk) []safety.Issue {
	var issues []safety.Issue

	if inj := r.analyzer.DetectPromptInjection(doc.Text); inj.Detected {
		issues = append(issues, safety.Issue{
			Type:     safety.IssueInjectionAttempt,
			Severity: inj.RiskLevel,
			Details:  inj.Details,
		})
	}
	issues = append(issues, r.analyzer.DetectHarmfulContent(doc.Text)...)

	if doc.Metadata.TenantID == "" || doc.Metadata.TenantID != tenantID {
		issues = append(issues, safety.Issue{
			Type:     safety.IssueCrossTenant,
			Severity: safety.SeverityCritical,
			Details:  "document tenant " + quoteOrMissing(doc.Metadata.TenantID) + " does not match " + quoteOrMissing(tenantID),
		})
	}
	issues = append(issues, r.analyzer.DetectSuspiciousMarkup(doc.Text)...)
	return issues
}

func (r *Reranker) report(results []RankedResult) {
	if r.recorder == nil {
		return
	}
	for _, res := range results {
		for _, is := range res.SafetyIssues {
			r.recorder.RecordSafetyIssue(string(is.Type), string(is.Severity))
		}
	}
}

// Penalty 计算问题列表的惩罚总和，上限为 MaxPenalty。
func Penalty(issues []safety.Issue) float64 {
	var p float64
	for _, is := range issues {
		switch is.Type {
		case safety.IssueInjectionAttempt:
			p += injectionPenalty[is.Severity]
		case safety.IssueHarmfulContent, safety.IssuePIILeakage:
			p += harmfulFamilyPenalty
		case safety.IssueCrossTenant:
			p += crossTenantPenalty
		case safety.IssueSuspiciousMarkup:
			p += markupPenalty
		}
	}
	return math.Min(p, MaxPenalty)
}

// SafetyScore 由问题列表推导安全分数，范围 [MinSafetyScore, 1]。
func SafetyScore(issues []safety.Issue) float64 {
	return math.Max(1.0-Penalty(issues), MinSafetyScore)
}

// FinalScore 计算最终分数：rrf * max(1 + (safety-0.5)*weight, 0.05)。
func FinalScore(rrf, safetyScore, weight float64) float64 {
	mult := 1 + (safetyScore-0.5)*weight
	return rrf * math.Max(mult, minMultiplier)
}

func quoteOrMissing(s string) string {
	if s == "" {
		return "<missing>"
	}
	return `"` + s + `"`
}
