// Package safety implements the regex-based report rewriter described
// in §4.3. It is grounded on the teacher's
// internal/security.AuditFinding/Severity/AuditReport vocabulary
// (HasCritical, CountBySeverity), repurposed from filesystem/config
// auditing to rewriting drafted legal-advisory text.
package safety

import (
	"regexp"

	"github.com/legaladvisor/engine/pkg/models"
)

// Severity mirrors the teacher's AuditSeverity, narrowed to the two
// levels this checker produces.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarn     Severity = "warning"
)

// Rule is one entry in the fixed ordered rewrite list: every match of
// Pattern is recorded as an issue, then globally replaced by
// Replacement.
type Rule struct {
	Name        string
	Pattern     *regexp.Regexp
	Replacement string
	Severity    Severity
}

// Rules is the canonical ordered rule set from §4.3. Declaration order
// matters: later rules see the output already rewritten by earlier
// ones.
var Rules = []Rule{
	{
		Name:        "guarantee_win",
		Pattern:     regexp.MustCompile(`保证胜诉|肯定赢`),
		Replacement: "无法保证案件结果",
		Severity:    SeverityCritical,
	},
	{
		Name:        "fake_lawyer_identity",
		Pattern:     regexp.MustCompile(`我是律师|本律师|根据律师意见`),
		Replacement: "本回答由AI生成",
		Severity:    SeverityCritical,
	},
	{
		Name:        "absolute_certainty",
		Pattern:     regexp.MustCompile(`绝对没问题|肯定没事|一定行`),
		Replacement: "存在不确定性",
		Severity:    SeverityWarn,
	},
	{
		Name:        "must_win",
		Pattern:     regexp.MustCompile(`包赢|必赢|必胜|一定.{0,4}赢`),
		Replacement: "结果不确定",
		Severity:    SeverityCritical,
	},
	{
		Name:        "crime_judgement",
		Pattern:     regexp.MustCompile(`你构成.{0,6}罪|你.{0,6}坐牢|你.{0,6}犯罪`),
		Replacement: "建议咨询专业律师",
		Severity:    SeverityCritical,
	},
	{
		Name:        "legal_effect",
		Pattern:     regexp.MustCompile(`具有法律效力|法律上有效`),
		Replacement: "需执业律师确认效力",
		Severity:    SeverityWarn,
	},
}

// Checker applies Rules to candidate report text.
type Checker struct {
	rules []Rule
}

// New builds a Checker over the canonical rule set.
func New() *Checker {
	return &Checker{rules: Rules}
}

// Check runs every rule over text in declaration order, collecting an
// issue per match before rewriting, and returns the fully rewritten
// text alongside the issue list and whether any issue was critical.
func (c *Checker) Check(text string) models.SafetyResult {
	var issues []models.SafetyIssue
	var hasCritical bool

	current := text
	for _, rule := range c.rules {
		matches := rule.Pattern.FindAllString(current, -1)
		for _, m := range matches {
			issues = append(issues, models.SafetyIssue{
				Rule:     rule.Name,
				Matched:  m,
				Severity: string(rule.Severity),
			})
			if rule.Severity == SeverityCritical {
				hasCritical = true
			}
		}
		current = rule.Pattern.ReplaceAllString(current, rule.Replacement)
	}

	return models.SafetyResult{
		ModifiedContent: current,
		Issues:          issues,
		HasCritical:     hasCritical,
	}
}
