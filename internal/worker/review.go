package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/legaladvisor/engine/internal/errs"
	"github.com/legaladvisor/engine/internal/tools"
	"github.com/legaladvisor/engine/pkg/models"
)

const safetyHeaderFormat = "【安全审查】\n检测到 %d 处高风险表述，已自动拦截并改写。\n\n"

func (w *Worker) runReview(ctx context.Context, taskID, sessionID, scenario, draft string, cancelled func() bool) error {
	w.emitPhase(taskID, PhaseReviewing)
	if cancelled() {
		return errs.ErrCancelled
	}

	args, _ := json.Marshal(map[string]any{"content": draft})
	raw, err := w.callTool(ctx, taskID, sessionID, scenario, "check_safety", args, cancelled)
	if err != nil {
		return err
	}

	var result tools.SafetyResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return errs.Wrap(errs.KindTool, err, "check_safety: decode result")
	}

	criticalCount := 0
	for _, issue := range result.Issues {
		if issue.Severity == "critical" {
			criticalCount++
		}
	}

	if len(result.Issues) > 0 {
		kind := models.EventReviewAdjusted
		if result.HasCritical {
			kind = models.EventReviewIntercepted
		}
		w.bus.Emit(models.Event{
			Kind: kind,
			Payload: map[string]any{
				"task_id":        taskID,
				"session_id":     sessionID,
				"issue_count":    len(result.Issues),
				"critical_count": criticalCount,
			},
		})
	}

	final := result.ModifiedContent
	if result.HasCritical {
		final = fmt.Sprintf(safetyHeaderFormat, criticalCount) + final
	}

	if cancelled() {
		return errs.ErrCancelled
	}

	if _, err := w.store.CreateMessage(ctx, sessionID, models.RoleAssistant, final, models.PhaseReview, ""); err != nil {
		return err
	}

	w.bus.Emit(models.Event{
		Kind: models.EventCompleted,
		Payload: map[string]any{
			"task_id":    taskID,
			"session_id": sessionID,
			"report":     final,
		},
	})
	return nil
}

// callTool checks the permission gate for name before dispatching
// through the registry, per §4.6's requirement that the worker gate
// every tool call, not the registry itself.
func (w *Worker) callTool(ctx context.Context, taskID, sessionID, scenario, name string, args json.RawMessage, cancelled func() bool) (json.RawMessage, error) {
	if cancelled() {
		return nil, errs.ErrCancelled
	}
	if err := w.permissions.Check(ctx, taskID, sessionID, name, args, cancelled); err != nil {
		return nil, err
	}
	if cancelled() {
		return nil, errs.ErrCancelled
	}

	toolCtx := &tools.Context{
		Context:       ctx,
		Retriever:     w.retriever,
		SafetyChecker: w.safety,
		Scenario:      scenario,
	}
	result, err := w.registry.Execute(toolCtx, name, args)
	if err != nil {
		return nil, err
	}

	w.bus.Emit(models.Event{
		Kind: models.EventToolCallResult,
		Payload: map[string]any{
			"task_id":   taskID,
			"tool_name": name,
			"result":    string(result),
		},
	})
	return result, nil
}
