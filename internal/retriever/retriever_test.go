package retriever

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeKB(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		full := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return root
}

func TestRetriever_SearchScopesToScenario(t *testing.T) {
	root := writeKB(t, map[string]string{
		"labor/arbitration.md":  "# 劳动仲裁指引\n劳动仲裁的申请时效为一年。\n需要准备劳动合同和工资条。\n",
		"consumer/refund.md":    "# 退款须知\n消费者享有七天无理由退货的权利。\n",
	})
	r := New(DefaultConfig(root))

	results, err := r.Search("劳动仲裁", "labor", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Contains(t, results[0].FilePath, "labor")
}

func TestRetriever_SearchEmptyQueryReturnsEmpty(t *testing.T) {
	root := writeKB(t, map[string]string{"labor/a.md": "# 标题\n内容\n"})
	r := New(DefaultConfig(root))

	results, err := r.Search("", "labor", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetriever_SearchEmptyCorpusReturnsEmpty(t *testing.T) {
	root := t.TempDir()
	r := New(DefaultConfig(root))

	results, err := r.Search("劳动仲裁", "labor", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetriever_WindowingRespectsLineLimit(t *testing.T) {
	var lines string
	for i := 0; i < 45; i++ {
		lines += "劳动仲裁相关条款第" + string(rune('a'+i%26)) + "行\n"
	}
	root := writeKB(t, map[string]string{"labor/big.md": lines})
	r := New(Config{KBRoot: root, WindowLines: 20})

	results, err := r.Search("劳动仲裁", "labor", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, res := range results {
		assert.LessOrEqual(t, res.LineEnd-res.LineStart+1, 20)
	}
}

func TestRetriever_ReadFile(t *testing.T) {
	root := writeKB(t, map[string]string{"labor/a.md": "# 标题\n正文内容\n"})
	r := New(DefaultConfig(root))

	content, err := r.ReadFile("labor/a.md")
	require.NoError(t, err)
	assert.Contains(t, content, "正文内容")
}

func TestRetriever_ReadFileMissingFails(t *testing.T) {
	root := t.TempDir()
	r := New(DefaultConfig(root))

	_, err := r.ReadFile("missing.md")
	require.Error(t, err)
}

func TestRetriever_FallsBackToWholeRootWhenScenarioMissing(t *testing.T) {
	root := writeKB(t, map[string]string{"general.md": "# 通用\n劳动仲裁一般流程说明。\n"})
	r := New(DefaultConfig(root))

	results, err := r.Search("劳动仲裁", "nonexistent-scenario", 5)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}
