package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecker_GuaranteeWinIsCritical(t *testing.T) {
	c := New()
	result := c.Check("我们保证胜诉，请放心。")

	require.Len(t, result.Issues, 1)
	assert.Equal(t, "guarantee_win", result.Issues[0].Rule)
	assert.Equal(t, "critical", result.Issues[0].Severity)
	assert.True(t, result.HasCritical)
	assert.Contains(t, result.ModifiedContent, "无法保证案件结果")
	assert.NotContains(t, result.ModifiedContent, "保证胜诉")
}

func TestChecker_AbsoluteCertaintyIsWarningOnly(t *testing.T) {
	c := New()
	result := c.Check("这件事绝对没问题。")

	require.Len(t, result.Issues, 1)
	assert.Equal(t, "warning", result.Issues[0].Severity)
	assert.False(t, result.HasCritical)
}

func TestChecker_NoIssuesOnCleanText(t *testing.T) {
	c := New()
	result := c.Check("本报告仅供参考，不构成法律意见。")

	assert.Empty(t, result.Issues)
	assert.False(t, result.HasCritical)
	assert.Equal(t, "本报告仅供参考，不构成法律意见。", result.ModifiedContent)
}

func TestChecker_ReportsIssuesFromMultipleRules(t *testing.T) {
	c := New()
	// must_win and crime_judgement both match this text; each rule's
	// match is reported as its own issue.
	result := c.Check("我们包赢这个官司，而且你构成诈骗罪。")

	var names []string
	for _, i := range result.Issues {
		names = append(names, i.Rule)
	}
	assert.Contains(t, names, "must_win")
	assert.Contains(t, names, "crime_judgement")
	assert.True(t, result.HasCritical)
}

func TestChecker_Idempotent(t *testing.T) {
	c := New()
	first := c.Check("保证胜诉，包赢，你构成犯罪罪，具有法律效力。")
	second := c.Check(first.ModifiedContent)

	assert.Empty(t, second.Issues)
	assert.Equal(t, first.ModifiedContent, second.ModifiedContent)
}
