package engine

import (
	"strings"
	"sync"
	"time"

	"github.com/legaladvisor/engine/internal/events"
	"github.com/legaladvisor/engine/internal/obs"
	"github.com/legaladvisor/engine/pkg/models"
)

// metricsBus wraps the real event bus so every Emit also updates
// Prometheus instrumentation, grounded on the teacher's pattern of a
// thin decorator around a hub that forwards the call before touching
// metrics (see internal/canvas/metrics.go in the reference repo).
// Emit still forwards to the inner bus unconditionally; metrics
// bookkeeping never blocks or drops an event.
type metricsBus struct {
	inner   *events.Bus
	metrics *obs.Metrics

	mu     sync.Mutex
	active map[string]taskPhaseState // task_id -> current phase + when it started
}

type taskPhaseState struct {
	phase string
	since time.Time
}

func newMetricsBus(inner *events.Bus, metrics *obs.Metrics) *metricsBus {
	return &metricsBus{inner: inner, metrics: metrics, active: make(map[string]taskPhaseState)}
}

func (b *metricsBus) Emit(evt models.Event) {
	b.inner.Emit(evt)
	if b.metrics == nil {
		return
	}

	taskID, _ := evt.Payload["task_id"].(string)
	now := time.Now()

	switch evt.Kind {
	case models.EventAgentPhase:
		phase, _ := evt.Payload["phase"].(string)
		b.mu.Lock()
		prev, wasActive := b.active[taskID]
		if !wasActive {
			b.metrics.ActiveSessions.Inc()
		} else {
			b.metrics.RecordPhase(prev.phase, now.Sub(prev.since).Seconds())
		}
		b.active[taskID] = taskPhaseState{phase: phase, since: now}
		b.mu.Unlock()

	case models.EventCompleted, models.EventCancelled, models.EventError:
		b.mu.Lock()
		if prev, ok := b.active[taskID]; ok {
			b.metrics.RecordPhase(prev.phase, now.Sub(prev.since).Seconds())
			delete(b.active, taskID)
			b.metrics.ActiveSessions.Dec()
		}
		b.mu.Unlock()

	case models.EventReviewAdjusted:
		b.metrics.RecordSafetyOutcome("adjusted")
	case models.EventReviewIntercepted:
		b.metrics.RecordSafetyOutcome("intercepted")
	}

	if evt.Kind == models.EventError {
		if msg, _ := evt.Payload["message"].(string); msg != "" {
			kind := "Unknown"
			// errs.Error messages start with "[Kind] ".
			if end := strings.Index(msg, "]"); strings.HasPrefix(msg, "[") && end > 1 {
				kind = msg[1:end]
			}
			b.metrics.RecordTaskError(kind)
		}
	}
}
