package worker

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/legaladvisor/engine/internal/errs"
	"github.com/legaladvisor/engine/internal/events"
	"github.com/legaladvisor/engine/internal/permission"
	"github.com/legaladvisor/engine/internal/retriever"
	"github.com/legaladvisor/engine/internal/safety"
	"github.com/legaladvisor/engine/internal/store"
	"github.com/legaladvisor/engine/internal/tools"
	"github.com/legaladvisor/engine/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// retrieverAdapter converts the concrete retriever's pkg/models result
// type into the tools package's local mirror, the same shim the
// top-level wiring uses to satisfy tools.Retriever.
type retrieverAdapter struct{ r *retriever.Retriever }

func (a retrieverAdapter) Search(query, scenario string, topK int) ([]tools.SearchResult, error) {
	results, err := a.r.Search(query, scenario, topK)
	if err != nil {
		return nil, err
	}
	out := make([]tools.SearchResult, len(results))
	for i, r := range results {
		out[i] = tools.SearchResult{
			FilePath:  r.FilePath,
			Title:     r.Title,
			Snippet:   r.Snippet,
			LineStart: r.LineStart,
			LineEnd:   r.LineEnd,
			Score:     r.Score,
		}
	}
	return out, nil
}

func (a retrieverAdapter) ReadFile(path string) (string, error) { return a.r.ReadFile(path) }

type safetyAdapter struct{ c *safety.Checker }

func (a safetyAdapter) Check(text string) tools.SafetyResult {
	result := a.c.Check(text)
	issues := make([]tools.SafetyIssue, len(result.Issues))
	for i, iss := range result.Issues {
		issues[i] = tools.SafetyIssue{Rule: iss.Rule, Matched: iss.Matched, Severity: iss.Severity}
	}
	return tools.SafetyResult{
		ModifiedContent: result.ModifiedContent,
		Issues:          issues,
		HasCritical:     result.HasCritical,
	}
}

type harness struct {
	store       *store.MemoryStore
	bus         *events.Bus
	registry    *tools.Registry
	gate        *permission.Gate
	worker      *Worker
	sessionID   string
	kbRoot      string
}

func newHarness(t *testing.T, maxIterations int, kbFiles map[string]string) *harness {
	t.Helper()
	kbRoot := t.TempDir()
	for rel, content := range kbFiles {
		full := filepath.Join(kbRoot, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}

	st := store.NewMemoryStore()
	bus := events.NewBus()
	reg := tools.NewRegistry()
	require.NoError(t, tools.RegisterBuiltins(reg))
	gate := permission.New(st, bus, 5*time.Millisecond)

	ret := retriever.New(retriever.DefaultConfig(kbRoot))
	chk := safety.New()

	w := New(st, bus, reg, gate, retrieverAdapter{ret}, safetyAdapter{chk}, maxIterations)

	ctx := context.Background()
	sess, err := st.CreateSession(ctx, "labor", "测试")
	require.NoError(t, err)

	return &harness{store: st, bus: bus, registry: reg, gate: gate, worker: w, sessionID: sess.ID, kbRoot: kbRoot}
}

func (h *harness) allowAll(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for _, name := range []string{"kb_search", "kb_read", "ask_user", "cite", "summarize_facts", "check_safety", "suggest_escalation"} {
		require.NoError(t, h.store.SetToolPermission(ctx, name, models.PermissionAllow))
	}
}

func TestWorker_HappyPathIntakeThenReport(t *testing.T) {
	h := newHarness(t, 10, nil)
	h.allowAll(t)
	ctx := context.Background()
	cancelled := func() bool { return false }

	turns := []string{
		"我想咨询劳动仲裁",
		"补充信息1", "补充信息2", "补充信息3", "补充信息4", "补充信息5", "补充信息6",
	}

	var allEvents []models.Event
	id := h.bus.Subscribe(func(e models.Event) { allEvents = append(allEvents, e) })
	defer h.bus.Unsubscribe(id)

	for i, content := range turns {
		err := h.worker.Run(ctx, "task-"+string(rune('a'+i)), h.sessionID, "labor", content, cancelled)
		require.NoError(t, err)
	}

	progressCount := 0
	doneCount := 0
	var lastCompleted models.Event
	for _, e := range allEvents {
		switch e.Kind {
		case models.EventIntakeProgress:
			progressCount++
		case models.EventIntakeDone:
			doneCount++
		case models.EventCompleted:
			lastCompleted = e
		}
	}
	assert.Equal(t, 6, progressCount)
	assert.Equal(t, 1, doneCount)

	report, ok := lastCompleted.Payload["report"].(string)
	require.True(t, ok, "expected final completed event to carry a report")
	for _, heading := range []string{"【事实摘要】", "【法律分析】", "【办事路径】", "【风险提示】", "【免责声明】", "【引用】"} {
		assert.Contains(t, report, heading)
	}
}

func TestWorker_MaxIterationsGuard(t *testing.T) {
	h := newHarness(t, 1, nil)
	h.allowAll(t)
	ctx := context.Background()
	keys := store.IntakeKeys(h.sessionID)
	require.NoError(t, h.store.SetSetting(ctx, keys.Idx, "6"))

	err := h.worker.Run(ctx, "task-1", h.sessionID, "labor", "补充信息6", func() bool { return false })
	require.Error(t, err)
	assert.Equal(t, errs.KindUnknown, errs.KindOf(err))
	assert.Contains(t, err.Error(), "max_iterations")
}

func TestWorker_CancellationDuringAsk(t *testing.T) {
	h := newHarness(t, 10, nil)
	// default permissions: ask_user is "ask".
	ctx := context.Background()

	requested := make(chan string, 1)
	h.bus.Subscribe(func(e models.Event) {
		if e.Kind == models.EventToolCallRequest {
			requested <- e.Payload["request_id"].(string)
		}
	})

	cancelled := false
	done := make(chan error, 1)
	go func() {
		done <- h.worker.Run(ctx, "task-1", h.sessionID, "labor", "我想咨询劳动仲裁", func() bool { return cancelled })
	}()

	select {
	case <-requested:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for tool_call_request")
	}

	cancelled = true

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Equal(t, errs.KindCancelled, errs.KindOf(err))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for worker to observe cancellation")
	}
}

func TestWorker_DeniedToolSurfacesError(t *testing.T) {
	h := newHarness(t, 10, nil)
	h.allowAll(t)
	ctx := context.Background()
	require.NoError(t, h.store.SetToolPermission(ctx, "kb_search", models.PermissionDeny))
	keys := store.IntakeKeys(h.sessionID)
	require.NoError(t, h.store.SetSetting(ctx, keys.Done, "1"))

	err := h.worker.Run(ctx, "task-1", h.sessionID, "labor", "直接生成报告", func() bool { return false })
	require.Error(t, err)
	assert.Equal(t, errs.KindTool, errs.KindOf(err))
	assert.Contains(t, err.Error(), "denied")
}

func TestWorker_SafetyInterception(t *testing.T) {
	h := newHarness(t, 10, map[string]string{
		"labor/guarantee.md": "# 胜诉保障\n本所承诺包赢官司，保证胜诉，绝对不会败诉。\n",
	})
	h.allowAll(t)
	ctx := context.Background()
	keys := store.IntakeKeys(h.sessionID)
	require.NoError(t, h.store.SetSetting(ctx, keys.Done, "1"))

	var intercepted models.Event
	var completed models.Event
	id := h.bus.Subscribe(func(e models.Event) {
		switch e.Kind {
		case models.EventReviewIntercepted:
			intercepted = e
		case models.EventCompleted:
			completed = e
		}
	})
	defer h.bus.Unsubscribe(id)

	err := h.worker.Run(ctx, "task-1", h.sessionID, "labor", "对方承诺包赢", func() bool { return false })
	require.NoError(t, err)

	assert.Equal(t, models.EventReviewIntercepted, intercepted.Kind)
	report, _ := completed.Payload["report"].(string)
	assert.True(t, strings.HasPrefix(report, "【安全审查】"))
	assert.NotContains(t, report, "包赢")
}

func TestWorker_PermissionPersistenceAcrossTurns(t *testing.T) {
	h := newHarness(t, 10, nil)
	ctx := context.Background()
	// allow everything except kb_search, which defaults to "ask".
	for _, name := range []string{"kb_read", "ask_user", "cite", "summarize_facts", "check_safety", "suggest_escalation"} {
		require.NoError(t, h.store.SetToolPermission(ctx, name, models.PermissionAllow))
	}
	keys := store.IntakeKeys(h.sessionID)
	require.NoError(t, h.store.SetSetting(ctx, keys.Done, "1"))

	var requestCount int
	id := h.bus.Subscribe(func(e models.Event) {
		if e.Kind == models.EventToolCallRequest && e.Payload["tool_name"] == "kb_search" {
			requestCount++
			requestID := e.Payload["request_id"].(string)
			go func() {
				_ = h.gate.Respond(requestID, permission.Response{Kind: permission.ResponseAllow, Always: true})
			}()
		}
	})
	defer h.bus.Unsubscribe(id)

	err := h.worker.Run(ctx, "task-1", h.sessionID, "labor", "第一次提问", func() bool { return false })
	require.NoError(t, err)
	assert.Equal(t, 1, requestCount)

	p, err := h.store.GetToolPermission(ctx, "kb_search")
	require.NoError(t, err)
	assert.Equal(t, models.PermissionAllow, p)

	err = h.worker.Run(ctx, "task-2", h.sessionID, "labor", "第二次提问", func() bool { return false })
	require.NoError(t, err)
	assert.Equal(t, 1, requestCount, "second turn should not trigger another ask")
}
