// Package worker implements the Plan→Draft→Review state machine from
// §4.8, grounded on the teacher's internal/agent/loop.go and
// runtime.go phase-driven agentic loop shape (iterate, check
// cancellation at boundaries, emit lifecycle events) and
// internal/agent/errors.go's LoopPhase enum — repurposed here from an
// LLM tool-calling loop into the deterministic Plan→Draft→Review
// progression.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/legaladvisor/engine/internal/errs"
	"github.com/legaladvisor/engine/internal/store"
	"github.com/legaladvisor/engine/internal/tools"
	"github.com/legaladvisor/engine/pkg/models"
)

// askUser invokes the ask_user tool, gated by permission like any other
// tool call, per §4.8's "invoke ask_user(scenario, index)" wording.
func (w *Worker) askUser(ctx context.Context, taskID, sessionID, scenario string, index int, cancelled func() bool) (string, error) {
	args, _ := json.Marshal(map[string]any{"scenario": scenario, "index": index})
	raw, err := w.callTool(ctx, taskID, sessionID, scenario, "ask_user", args, cancelled)
	if err != nil {
		return "", err
	}
	var parsed struct {
		Question string `json:"question"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", errs.Wrap(errs.KindTool, err, "ask_user: decode result")
	}
	return parsed.Question, nil
}

// Phase mirrors the teacher's LoopPhase, narrowed to this engine's
// three-phase progression.
type Phase string

const (
	PhasePlanning  Phase = "planning"
	PhaseDrafting  Phase = "drafting"
	PhaseReviewing Phase = "reviewing"
)

// Store is the subset of internal/store.Store the worker depends on.
type Store interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	CreateMessage(ctx context.Context, sessionID string, role models.Role, content string, phase models.Phase, toolCallsJSON string) (*models.Message, error)
}

// EventBus is the subset of internal/events.Bus the worker depends on.
type EventBus interface {
	Emit(evt models.Event)
}

// ToolRunner is the subset of internal/tools.Registry the worker
// depends on, gated through a PermissionChecker before each call.
type ToolRunner interface {
	Execute(ctx *tools.Context, name string, args json.RawMessage) (json.RawMessage, error)
}

// PermissionChecker is the subset of internal/permission.Gate the
// worker depends on.
type PermissionChecker interface {
	Check(ctx context.Context, taskID, sessionID, toolName string, arguments []byte, isCancelled func() bool) error
}

// Worker runs one user turn end-to-end through Plan, Draft, and
// Review.
type Worker struct {
	store         Store
	bus           EventBus
	registry      ToolRunner
	permissions   PermissionChecker
	retriever     tools.Retriever
	safety        tools.SafetyChecker
	maxIterations int
}

// New builds a Worker. maxIterations caps Plan-phase recursive
// re-entry from intake-done into Draft; the spec's default is 10.
func New(st Store, bus EventBus, registry ToolRunner, permissions PermissionChecker, retriever tools.Retriever, safety tools.SafetyChecker, maxIterations int) *Worker {
	if maxIterations <= 0 {
		maxIterations = 10
	}
	return &Worker{
		store:         st,
		bus:           bus,
		registry:      registry,
		permissions:   permissions,
		retriever:     retriever,
		safety:        safety,
		maxIterations: maxIterations,
	}
}

// Run executes the Plan→Draft→Review state machine for one turn,
// satisfying the internal/scheduler.Worker interface.
func (w *Worker) Run(ctx context.Context, taskID, sessionID, scenario, userContent string, cancelled func() bool) error {
	return w.runIteration(ctx, taskID, sessionID, scenario, userContent, cancelled, 0)
}

func (w *Worker) runIteration(ctx context.Context, taskID, sessionID, scenario, userContent string, cancelled func() bool, iteration int) error {
	if iteration >= w.maxIterations {
		return errs.Newf(errs.KindUnknown, "max_iterations exceeded: %d", iteration)
	}

	w.emitPhase(taskID, PhasePlanning)
	if cancelled() {
		return errs.ErrCancelled
	}

	keys := store.IntakeKeys(sessionID)
	idx := w.readIntakeIndex(ctx, keys)
	done := w.readIntakeDone(ctx, keys)
	questions := tools.CatalogFor(scenario)

	if !done {
		return w.runIntake(ctx, taskID, sessionID, scenario, userContent, cancelled, iteration, keys, idx, questions)
	}

	return w.runDraftAndReview(ctx, taskID, sessionID, scenario, userContent, cancelled)
}

func (w *Worker) readIntakeIndex(ctx context.Context, keys store.IntakeSettingKeys) int {
	v, err := w.store.GetSetting(ctx, keys.Idx)
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func (w *Worker) readIntakeDone(ctx context.Context, keys store.IntakeSettingKeys) bool {
	v, err := w.store.GetSetting(ctx, keys.Done)
	if err != nil {
		return false
	}
	return v == "1"
}

// runIntake implements the single-question-per-turn intake sub-state
// from §4.8.
func (w *Worker) runIntake(ctx context.Context, taskID, sessionID, scenario, userContent string, cancelled func() bool, iteration int, keys store.IntakeSettingKeys, currentIndex int, questions []tools.Question) error {
	if len(questions) == 0 {
		// empty catalog: intake completes immediately.
		if err := w.store.SetSetting(ctx, keys.Done, "1"); err != nil {
			return err
		}
		w.bus.Emit(models.Event{Kind: models.EventIntakeDone, Payload: map[string]any{"task_id": taskID, "session_id": sessionID}})
		return w.runIteration(ctx, taskID, sessionID, scenario, userContent, cancelled, iteration+1)
	}

	if currentIndex == 0 {
		question, err := w.askUser(ctx, taskID, sessionID, scenario, 0, cancelled)
		if err != nil {
			return err
		}
		if err := w.store.SetSetting(ctx, keys.Idx, "1"); err != nil {
			return err
		}
		message := introPreamble() + "\n" + question
		if _, err := w.store.CreateMessage(ctx, sessionID, models.RoleAssistant, message, models.PhasePlan, ""); err != nil {
			return err
		}
		w.emitIntakeProgress(taskID, 1, len(questions), question)
		w.emitCompleted(sessionID, taskID, message)
		return nil
	}

	answered := currentIndex - 1
	if err := w.store.SetSetting(ctx, keys.Answer(answered), userContent); err != nil {
		return err
	}

	if currentIndex < len(questions) {
		question, err := w.askUser(ctx, taskID, sessionID, scenario, currentIndex, cancelled)
		if err != nil {
			return err
		}
		if err := w.store.SetSetting(ctx, keys.Idx, strconv.Itoa(currentIndex+1)); err != nil {
			return err
		}
		ack := acknowledgement(answered, userContent)
		message := fmt.Sprintf("%s\n已完成 %d/%d 题。\n%s", ack, currentIndex, len(questions), question)
		if _, err := w.store.CreateMessage(ctx, sessionID, models.RoleAssistant, message, models.PhasePlan, ""); err != nil {
			return err
		}
		w.emitIntakeProgress(taskID, currentIndex+1, len(questions), question)
		w.emitCompleted(sessionID, taskID, message)
		return nil
	}

	if err := w.store.SetSetting(ctx, keys.Done, "1"); err != nil {
		return err
	}
	w.bus.Emit(models.Event{Kind: models.EventIntakeDone, Payload: map[string]any{"task_id": taskID, "session_id": sessionID}})
	return w.runIteration(ctx, taskID, sessionID, scenario, userContent, cancelled, iteration+1)
}

// acknowledgements cycles through a fixed 4-element set indexed by
// answered mod 4, with a dedicated variant when the answer carries a
// skip sentinel.
var acknowledgements = [4]string{
	"好的，已记录您的回答。",
	"收到，信息已保存。",
	"明白了，继续下一步。",
	"已登记，感谢补充。",
}

const skippedAcknowledgement = "已记录：该题暂未作答。"

func acknowledgement(answeredIndex int, answer string) string {
	if strings.Contains(answer, "跳过") || strings.Contains(answer, "（用户跳过此题）") {
		return skippedAcknowledgement
	}
	return acknowledgements[answeredIndex%4]
}

func introPreamble() string {
	return "为了更准确地帮您分析，我需要先了解一些基本情况。"
}

func (w *Worker) emitPhase(taskID string, phase Phase) {
	w.bus.Emit(models.Event{
		Kind:    models.EventAgentPhase,
		Payload: map[string]any{"task_id": taskID, "phase": string(phase)},
	})
}

func (w *Worker) emitIntakeProgress(taskID string, current, total int, question string) {
	w.bus.Emit(models.Event{
		Kind: models.EventIntakeProgress,
		Payload: map[string]any{
			"task_id":  taskID,
			"current":  current,
			"total":    total,
			"question": question,
		},
	})
}

func (w *Worker) emitCompleted(sessionID, taskID, message string) {
	w.bus.Emit(models.Event{
		Kind: models.EventCompleted,
		Payload: map[string]any{
			"task_id":    taskID,
			"session_id": sessionID,
			"message":    message,
		},
	})
}
