// Package scheduler implements the SessionScheduler from §4.7,
// grounded on the teacher's internal/agent/tool_registry.go lockSession
// ref-counted per-session sync.Mutex pattern (reused here directly as
// store.KeyedMutex) and internal/jobs.Store's task-record-with-
// cancelFunc shape for the cancellation registry.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/legaladvisor/engine/internal/errs"
	"github.com/legaladvisor/engine/internal/store"
	"github.com/legaladvisor/engine/pkg/models"
)

// EventBus is the subset of internal/events.Bus the scheduler depends on.
type EventBus interface {
	Emit(evt models.Event)
}

// Store is the subset of internal/store.Store the scheduler depends on.
type Store interface {
	GetSession(ctx context.Context, id string) (*models.Session, error)
	CreateMessage(ctx context.Context, sessionID string, role models.Role, content string, phase models.Phase, toolCallsJSON string) (*models.Message, error)
}

// Worker runs one user turn to completion. It must check cancel at
// the documented suspension points and must not block past
// cancellation being observed. On success the worker has already
// emitted its own completed (or intake_progress/intake_done) events;
// the scheduler only maps failure and cancellation onto events.
type Worker interface {
	Run(ctx context.Context, taskID, sessionID, scenario, userContent string, cancelled func() bool) error
}

// Scheduler serializes worker execution per session and tracks
// in-flight tasks for cancellation, per §4.7/§5.
type Scheduler struct {
	bus    EventBus
	store  Store
	worker Worker

	sessionLocks *store.KeyedMutex

	mu     sync.Mutex
	cancel map[string]*taskControl
}

type taskControl struct {
	sessionID string
	flag      int32
}

// New builds a Scheduler.
func New(bus EventBus, st Store, worker Worker) *Scheduler {
	return &Scheduler{
		bus:          bus,
		store:        st,
		worker:       worker,
		sessionLocks: store.NewKeyedMutex(),
		cancel:       make(map[string]*taskControl),
	}
}

// SendMessage persists the incoming user message, allocates a task id,
// and launches the worker on a background goroutine that serializes on
// the session mutex. It returns the task id immediately.
func (s *Scheduler) SendMessage(ctx context.Context, sessionID, scenario, content string) (string, error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return "", err
	}

	if _, err := s.store.CreateMessage(ctx, sessionID, models.RoleUser, content, models.PhasePlan, ""); err != nil {
		return "", err
	}

	taskID := uuid.NewString()
	ctl := &taskControl{sessionID: sessionID}

	s.mu.Lock()
	s.cancel[taskID] = ctl
	s.mu.Unlock()

	go s.runWorker(taskID, sessionID, scenario, content, ctl)

	return taskID, nil
}

func (s *Scheduler) runWorker(taskID, sessionID, scenario, content string, ctl *taskControl) {
	unlock := s.sessionLocks.Lock(sessionID)
	defer unlock()
	defer func() {
		s.mu.Lock()
		delete(s.cancel, taskID)
		s.mu.Unlock()
	}()

	isCancelled := func() bool { return atomic.LoadInt32(&ctl.flag) != 0 }

	err := s.worker.Run(context.Background(), taskID, sessionID, scenario, content, isCancelled)

	switch {
	case err != nil && errs.IsCancelled(err):
		s.bus.Emit(models.Event{Kind: models.EventCancelled, Payload: map[string]any{"task_id": taskID}})
	case err != nil:
		s.bus.Emit(models.Event{
			Kind: models.EventError,
			Payload: map[string]any{
				"task_id":   taskID,
				"message":   err.Error(),
				"retryable": false,
			},
		})
	}
}

// Cancel sets the cancel flag for taskID and emits cancelling. Workers
// observe the flag at phase boundaries, tool entries, and while polling
// for permission replies.
func (s *Scheduler) Cancel(taskID string) error {
	s.mu.Lock()
	ctl, ok := s.cancel[taskID]
	s.mu.Unlock()
	if !ok {
		return errs.Newf(errs.KindNotFound, "task %s not found", taskID)
	}

	atomic.StoreInt32(&ctl.flag, 1)
	s.bus.Emit(models.Event{Kind: models.EventCancelling, Payload: map[string]any{"task_id": taskID}})
	return nil
}
