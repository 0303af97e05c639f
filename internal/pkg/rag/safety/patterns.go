package safety

import "regexp"

// Category 规则分类。
type Category string

const (
	CategoryInstructionOverride Category = "instruction_override"
	CategoryBoundaryEscape      Category = "boundary_escape"
	CategoryRolePlay            Category = "roleplay_unrestricted"
	CategoryMalware             Category = "malware_exploit"
	CategoryBreach              Category = "breach_bypass"
	CategoryCredential          Category = "credential_pii"
	CategoryMarkup              Category = "suspicious_markup"
)

// Pattern 一条检测规则。新增规则只需追加到对应表中。
type Pattern struct {
	Category Category
	Name     string
	Expr     *regexp.Regexp
	Severity Severity
}

func rule(c Category, name, expr string, sev Severity) Pattern {
	return Pattern{Category: c, Name: name, Expr: regexp.MustCompile(expr), Severity: sev}
}

// injectionPatterns 注入检测规则，按顺序单遍扫描，每条规则最多计一次。
var injectionPatterns = []Pattern{
	rule(CategoryInstructionOverride, "bracket_directive",
		`(?i)\[\s*(system|admin|root|developer)\s*(:|\]|\s)`, SeverityHigh),
	rule(CategoryInstructionOverride, "ignore_instructions",
		`(?i)\b(ignore|disregard|forget|override)\s+(all\s+|any\s+|the\s+)?(previous|prior|above|earlier|preceding)\s+(instructions?|rules|directions|prompts?|context)`, SeverityHigh),
	rule(CategoryInstructionOverride, "new_instructions",
		`(?i)\b(new|updated|revised)\s+(system\s+)?instructions?\s*:`, SeverityMedium),
	rule(CategoryInstructionOverride, "prompt_reveal",
		`(?i)\b(reveal|print|show|output|repeat)\s+(your|the)\s+(system\s+prompt|instructions|hidden\s+prompt)`, SeverityMedium),
	rule(CategoryBoundaryEscape, "context_close_tag",
		`(?i)<\s*/\s*(context|system|instructions?|user|assistant)\s*>`, SeverityHigh),
	rule(CategoryBoundaryEscape, "system_open_tag",
		`(?i)<\s*(new_system|system|admin)\b`, SeverityHigh),
	rule(CategoryBoundaryEscape, "override_context",
		`(?i)\boverride_context\b`, SeverityHigh),
	rule(CategoryBoundaryEscape, "chat_template_token",
		`(?i)<\|\s*(im_start|im_end|system|endoftext)\s*\|>`, SeverityHigh),
	rule(CategoryRolePlay, "unrestricted_persona",
		`(?i)\b(pretend|act|roleplay|role-play|behave)\s+(as|like|to\s+be)\s+(an?\s+)?(unrestricted|unfiltered|uncensored|jailbroken|evil)`, SeverityHigh),
	// 只在指令语境下命中，"comes with no limitations on seats" 这类产品文案不算
	rule(CategoryRolePlay, "no_restrictions",
		`(?i)\b((respond|answer|reply|operate|act|behave|write|speak)\s+(freely\s+)?(without|with\s+no)|you\s+(have|are\s+under|are\s+bound\s+by)\s+no)\s+(any\s+)?(restrictions|limitations|filters|guidelines|rules)\b`, SeverityMedium),
}

// jailbreakKeywords 越狱关键词，大小写不敏感的子串匹配。
var jailbreakKeywords = []string{
	"jailbreak",
	"dan mode",
	"do anything now",
	"developer mode",
	"ignore all previous",
	"ignore previous instructions",
	"bypass safety",
	"disable safety",
	"unfiltered mode",
	"god mode",
}

// harmfulPatterns 有害内容家族，每个家族命中一次即记一条问题。
var harmfulPatterns = []Pattern{
	rule(CategoryMalware, "malware_exploit",
		`(?i)\b(malware|ransomware|keylogger|trojan|rootkit|exploit|shellcode|zero[- ]day)\b`, SeverityHigh),
	rule(CategoryBreach, "breach_bypass",
		`(?i)\b(bypass(ing)?|circumvent(ing)?|breach(ing)?)\b.{0,40}\b(security|authentication|auth|firewall|safety|access\s+control|filters?)\b`, SeverityHigh),
	rule(CategoryCredential, "credential_assignment",
		`(?i)\b(password|passwd|api[_-]?key|secret[_-]?key|access[_-]?token|private[_-]?key)\s*[:=]\s*\S+`, SeverityHigh),
	rule(CategoryCredential, "ssn",
		`\b\d{3}-\d{2}-\d{4}\b`, SeverityHigh),
	rule(CategoryCredential, "card_number",
		`\b(?:\d[ -]?){13,16}\b`, SeverityHigh),
}

// markupPatterns 可疑指令标记。
var markupPatterns = []Pattern{
	rule(CategoryMarkup, "instruction_tag",
		`(?i)<\s*/?\s*(system|prompt|instructions?|override|admin)\b[^>]*>`, SeverityMedium),
	rule(CategoryMarkup, "bracket_tag",
		`(?i)\[\s*/?\s*(system|admin|inst|instructions?)\s*\]`, SeverityMedium),
	rule(CategoryMarkup, "hidden_comment",
		`(?i)<!--\s*(system|instruction|prompt|ignore)`, SeverityMedium),
	rule(CategoryMarkup, "chat_template_token",
		`(?i)<\|\s*(im_start|im_end|system|endoftext)\s*\|>`, SeverityMedium),
	rule(CategoryMarkup, "zero_width",
		`[\x{200B}-\x{200F}\x{2060}\x{FEFF}]`, SeverityMedium),
}

// sanitizeRules 净化规则：匹配内容替换为 replacement，"" 表示直接删除。
var sanitizeRules = []struct {
	expr        *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`(?is)<!--.*?-->`), ""},
	{regexp.MustCompile(`(?i)<\s*/?\s*(system|prompt|instructions?|override|admin|new_system|context)\b[^>]*>`), ""},
	{regexp.MustCompile(`(?i)<\|\s*(im_start|im_end|system|endoftext)\s*\|>`), ""},
	{regexp.MustCompile(`(?i)\[\s*/?\s*(system|admin|root|developer|inst|instructions?)\b[^\]]*\]`), redactedMarker},
	{regexp.MustCompile(`(?i)\boverride_context\b`), redactedMarker},
	{regexp.MustCompile(`[\x{200B}-\x{200F}\x{2060}\x{FEFF}]`), ""},
}

// boundaryEscapePatterns 用户查询中的边界逃逸。
var boundaryEscapePatterns = []Pattern{
	rule(CategoryBoundaryEscape, "context_close_tag", `(?i)<\s*/\s*context\s*>`, SeverityHigh),
	rule(CategoryBoundaryEscape, "new_system_tag", `(?i)<\s*new_system`, SeverityHigh),
	rule(CategoryBoundaryEscape, "override_context", `(?i)override_context`, SeverityHigh),
	rule(CategoryBoundaryEscape, "system_close_tag", `(?i)<\s*/\s*system\s*>`, SeverityHigh),
	rule(CategoryBoundaryEscape, "chat_template_token", `(?i)<\|\s*(im_start|im_end|system|endoftext)\s*\|>`, SeverityHigh),
}

const redactedMarker = "[redacted]"
