package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/legaladvisor/engine/internal/errs"
	"github.com/legaladvisor/engine/internal/events"
	"github.com/legaladvisor/engine/internal/store"
	"github.com/legaladvisor/engine/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWorker struct {
	mu    sync.Mutex
	calls []string
	fn    func(taskID, sessionID, content string, cancelled func() bool) error
}

func (f *fakeWorker) Run(_ context.Context, taskID, sessionID, _ string, content string, cancelled func() bool) error {
	f.mu.Lock()
	f.calls = append(f.calls, taskID)
	f.mu.Unlock()
	return f.fn(taskID, sessionID, content, cancelled)
}

func waitForEvent(t *testing.T, bus *events.Bus, kind models.EventKind, timeout time.Duration) models.Event {
	t.Helper()
	ch := make(chan models.Event, 8)
	id := bus.Subscribe(func(e models.Event) { ch <- e })
	defer bus.Unsubscribe(id)

	deadline := time.After(timeout)
	for {
		select {
		case e := <-ch:
			if e.Kind == kind {
				return e
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event %s", kind)
		}
	}
}

func TestScheduler_SendMessageRunsWorkerUnderReturnedTaskID(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	sess, err := s.CreateSession(ctx, "labor", "t")
	require.NoError(t, err)

	bus := events.NewBus()
	worker := &fakeWorker{fn: func(taskID, sessionID, content string, cancelled func() bool) error {
		// a real worker would emit its own completed event here.
		bus.Emit(models.Event{Kind: models.EventCompleted, Payload: map[string]any{"task_id": taskID}})
		return nil
	}}
	sched := New(bus, s, worker)

	taskID, err := sched.SendMessage(ctx, sess.ID, "labor", "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, taskID)

	e := waitForEvent(t, bus, models.EventCompleted, time.Second)
	assert.Equal(t, taskID, e.Payload["task_id"])
}

func TestScheduler_SendMessageUnknownSessionFails(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	bus := events.NewBus()
	worker := &fakeWorker{fn: func(string, string, string, func() bool) error { return nil }}
	sched := New(bus, s, worker)

	_, err := sched.SendMessage(ctx, "missing", "labor", "hi")
	require.Error(t, err)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestScheduler_CancelUnknownTaskFails(t *testing.T) {
	s := store.NewMemoryStore()
	bus := events.NewBus()
	worker := &fakeWorker{fn: func(string, string, string, func() bool) error { return nil }}
	sched := New(bus, s, worker)

	err := sched.Cancel("missing")
	require.Error(t, err)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestScheduler_CancelEmitsCancelledNotCompleted(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	sess, err := s.CreateSession(ctx, "labor", "t")
	require.NoError(t, err)

	bus := events.NewBus()
	release := make(chan struct{})
	worker := &fakeWorker{fn: func(taskID, sessionID, content string, cancelled func() bool) error {
		for !cancelled() {
			select {
			case <-release:
				return nil
			case <-time.After(time.Millisecond):
			}
		}
		return errs.ErrCancelled
	}}
	sched := New(bus, s, worker)

	taskID, err := sched.SendMessage(ctx, sess.ID, "labor", "hello")
	require.NoError(t, err)

	require.NoError(t, sched.Cancel(taskID))
	waitForEvent(t, bus, models.EventCancelled, time.Second)
	close(release)
}

func TestScheduler_SerializesPerSession(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	sess, err := s.CreateSession(ctx, "labor", "t")
	require.NoError(t, err)

	var order []string
	var mu sync.Mutex
	bus := events.NewBus()
	worker := &fakeWorker{fn: func(taskID, sessionID, content string, cancelled func() bool) error {
		mu.Lock()
		order = append(order, content)
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		return nil
	}}
	sched := New(bus, s, worker)

	_, err = sched.SendMessage(ctx, sess.ID, "labor", "first")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = sched.SendMessage(ctx, sess.ID, "labor", "second")
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 2)
	assert.Equal(t, []string{"first", "second"}, order)
}
