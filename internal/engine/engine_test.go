package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/legaladvisor/engine/internal/config"
	"github.com/legaladvisor/engine/internal/permission"
	"github.com/legaladvisor/engine/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, kbFiles map[string]string) *Engine {
	t.Helper()
	kbRoot := t.TempDir()
	for rel, content := range kbFiles {
		full := filepath.Join(kbRoot, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}

	cfg := config.Default()
	cfg.Retriever.KBRoot = kbRoot
	cfg.Intake.MaxIterations = 10

	e, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func (e *Engine) allowAll(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for _, name := range []string{"kb_search", "kb_read", "ask_user", "cite", "summarize_facts", "check_safety", "suggest_escalation"} {
		require.NoError(t, e.SetToolPermission(ctx, name, models.PermissionAllow))
	}
}

func waitForEvent(t *testing.T, e *Engine, kind models.EventKind, timeout time.Duration) models.Event {
	t.Helper()
	ch := make(chan models.Event, 32)
	id := e.SubscribeEvents(func(ev models.Event) { ch <- ev })
	defer e.UnsubscribeEvents(id)

	deadline := time.After(timeout)
	for {
		select {
		case ev := <-ch:
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event %s", kind)
		}
	}
}

func TestEngine_PermissionDefaults(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()

	for _, name := range []string{"cite", "summarize_facts", "check_safety", "suggest_escalation"} {
		p, err := e.GetToolPermission(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, models.PermissionAllow, p, name)
	}
	for _, name := range []string{"kb_search", "kb_read", "ask_user"} {
		p, err := e.GetToolPermission(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, models.PermissionAsk, p, name)
	}
}

func TestEngine_HappyPathIntakeThenReport(t *testing.T) {
	e := newTestEngine(t, nil)
	e.allowAll(t)
	ctx := context.Background()

	sess, err := e.CreateSession(ctx, "labor", "测试")
	require.NoError(t, err)

	turns := []string{
		"我想咨询劳动仲裁",
		"补充信息1", "补充信息2", "补充信息3", "补充信息4", "补充信息5", "补充信息6",
	}

	var lastTaskID string
	for _, content := range turns {
		taskID, err := e.SendMessage(ctx, sess.ID, content)
		require.NoError(t, err)
		lastTaskID = taskID
		waitForEvent(t, e, models.EventCompleted, time.Second)
	}
	assert.NotEmpty(t, lastTaskID)

	report, err := e.GenerateReport(ctx, sess.ID)
	require.NoError(t, err)
	for _, heading := range []string{"【事实摘要】", "【法律分析】", "【办事路径】", "【风险提示】", "【免责声明】", "【引用】"} {
		assert.Contains(t, report, heading)
	}

	path := filepath.Join(t.TempDir(), "report.md")
	require.NoError(t, e.ExportReportMarkdown(ctx, sess.ID, path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, report, string(data))
}

func TestEngine_CancellationDuringAsk(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()

	sess, err := e.CreateSession(ctx, "labor", "")
	require.NoError(t, err)

	reqEvent := make(chan models.Event, 1)
	id := e.SubscribeEvents(func(ev models.Event) {
		if ev.Kind == models.EventToolCallRequest {
			select {
			case reqEvent <- ev:
			default:
			}
		}
	})
	defer e.UnsubscribeEvents(id)

	taskID, err := e.SendMessage(ctx, sess.ID, "我想咨询劳动仲裁")
	require.NoError(t, err)

	select {
	case <-reqEvent:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for tool_call_request")
	}

	require.NoError(t, e.CancelAgentTask(taskID))
	waitForEvent(t, e, models.EventCancelled, time.Second)
}

func TestEngine_DeniedToolSurfacesError(t *testing.T) {
	e := newTestEngine(t, nil)
	e.allowAll(t)
	ctx := context.Background()
	require.NoError(t, e.SetToolPermission(ctx, "kb_search", models.PermissionDeny))

	sess, err := e.CreateSession(ctx, "labor", "")
	require.NoError(t, err)
	require.NoError(t, e.SetSetting(ctx, "intake:"+sess.ID+":done", "1"))

	_, err = e.SendMessage(ctx, sess.ID, "直接生成报告")
	require.NoError(t, err)

	ev := waitForEvent(t, e, models.EventError, time.Second)
	msg, _ := ev.Payload["message"].(string)
	assert.Contains(t, msg, "denied")
}

func TestEngine_SafetyInterception(t *testing.T) {
	e := newTestEngine(t, map[string]string{
		"labor/guarantee.md": "# 胜诉保障\n本所承诺包赢官司，保证胜诉，绝对不会败诉。\n",
	})
	e.allowAll(t)
	ctx := context.Background()

	sess, err := e.CreateSession(ctx, "labor", "")
	require.NoError(t, err)
	require.NoError(t, e.SetSetting(ctx, "intake:"+sess.ID+":done", "1"))

	_, err = e.SendMessage(ctx, sess.ID, "对方承诺包赢")
	require.NoError(t, err)

	waitForEvent(t, e, models.EventReviewIntercepted, time.Second)
	waitForEvent(t, e, models.EventCompleted, time.Second)

	report, err := e.GenerateReport(ctx, sess.ID)
	require.NoError(t, err)
	assert.Contains(t, report, "【安全审查】")
	assert.NotContains(t, report, "包赢")
}

func TestEngine_PermissionPersistence(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	for _, name := range []string{"kb_read", "ask_user", "cite", "summarize_facts", "check_safety", "suggest_escalation"} {
		require.NoError(t, e.SetToolPermission(ctx, name, models.PermissionAllow))
	}

	sess, err := e.CreateSession(ctx, "labor", "")
	require.NoError(t, err)
	require.NoError(t, e.SetSetting(ctx, "intake:"+sess.ID+":done", "1"))

	var mu sync.Mutex
	var requestIDs []string
	id := e.SubscribeEvents(func(ev models.Event) {
		if ev.Kind == models.EventToolCallRequest && ev.Payload["tool_name"] == "kb_search" {
			mu.Lock()
			requestIDs = append(requestIDs, ev.Payload["request_id"].(string))
			mu.Unlock()
		}
	})
	defer e.UnsubscribeEvents(id)

	_, err = e.SendMessage(ctx, sess.ID, "第一次提问")
	require.NoError(t, err)

	var reqID string
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		if len(requestIDs) == 0 {
			return false
		}
		reqID = requestIDs[0]
		return true
	}, time.Second, time.Millisecond)

	require.NoError(t, e.RespondToolCall(reqID, permission.Response{Kind: permission.ResponseAllow, Always: true}))
	waitForEvent(t, e, models.EventCompleted, time.Second)

	p, err := e.GetToolPermission(ctx, "kb_search")
	require.NoError(t, err)
	assert.Equal(t, models.PermissionAllow, p)

	_, err = e.SendMessage(ctx, sess.ID, "第二次提问")
	require.NoError(t, err)
	waitForEvent(t, e, models.EventCompleted, time.Second)
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, requestIDs, 1, "second turn should not trigger another ask")
}

func TestEngine_RegenerateReport(t *testing.T) {
	e := newTestEngine(t, nil)
	e.allowAll(t)
	ctx := context.Background()

	sess, err := e.CreateSession(ctx, "labor", "")
	require.NoError(t, err)
	require.NoError(t, e.SetSetting(ctx, "intake:"+sess.ID+":done", "1"))

	ch := make(chan models.Event, 32)
	id := e.SubscribeEvents(func(ev models.Event) { ch <- ev })
	defer e.UnsubscribeEvents(id)

	_, err = e.RegenerateReport(ctx, sess.ID)
	require.NoError(t, err)

	var sawRegenerating, sawCompleted bool
	deadline := time.After(time.Second)
	for !sawRegenerating || !sawCompleted {
		select {
		case ev := <-ch:
			switch ev.Kind {
			case models.EventReportRegenerating:
				sawRegenerating = true
			case models.EventCompleted:
				sawCompleted = true
			}
		case <-deadline:
			t.Fatalf("timed out: regenerating=%v completed=%v", sawRegenerating, sawCompleted)
		}
	}
}

func TestEngine_GenerateReportNotFound(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	sess, err := e.CreateSession(ctx, "labor", "")
	require.NoError(t, err)

	_, err = e.GenerateReport(ctx, sess.ID)
	require.Error(t, err)
}
