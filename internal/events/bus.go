// Package events implements the subscribable event bus described in
// §4.5 of the spec, grounded on the teacher's
// agent.CallbackSink/MultiSink (internal/agent/event_sink.go) pattern
// of delivering to a plain callback function per subscriber, and on the
// original Rust core's single global `listeners: HashMap<u64, ...>`
// (alawyer-core/src/lib.rs) that broadcasts every event to every
// listener with no session scoping.
package events

import (
	"sync"
	"time"

	"github.com/legaladvisor/engine/internal/errs"
	"github.com/legaladvisor/engine/pkg/models"
)

// Listener receives every event emitted on the bus.
type Listener func(models.Event)

// Bus is a per-process pub/sub fan-out to every subscriber, global
// across sessions per §4.5/§6: subscribe_events takes only a listener,
// and Emit broadcasts to the full subscriber snapshot. A session a
// listener cares about is carried in the event's own Payload (as the
// original core does for session_created/message_created/...), not by
// the bus's routing.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	byID   map[int]Listener
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{byID: make(map[int]Listener)}
}

// Subscribe registers listener for every event emitted on the bus and
// returns a subscription id for later Unsubscribe.
func (b *Bus) Subscribe(listener Listener) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.byID[id] = listener
	return id
}

// Unsubscribe removes a subscription, failing NotFound if id is unknown
// or already removed, per §4.5.
func (b *Bus) Unsubscribe(id int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.byID[id]; !ok {
		return errs.Newf(errs.KindNotFound, "subscription %d not found", id)
	}
	delete(b.byID, id)
	return nil
}

// Emit stamps evt with the current time and delivers it to every
// subscriber. The subscriber snapshot is taken under a read lock and
// released before any listener runs, so a listener calling
// Subscribe/Unsubscribe does not deadlock against Emit. Each listener
// is isolated from the others' panics: one misbehaving subscriber never
// blocks delivery to the rest.
func (b *Bus) Emit(evt models.Event) {
	evt.Timestamp = time.Now().Unix()

	b.mu.RLock()
	listeners := make([]Listener, 0, len(b.byID))
	for _, l := range b.byID {
		listeners = append(listeners, l)
	}
	b.mu.RUnlock()

	for _, l := range listeners {
		deliver(l, evt)
	}
}

// SubscriberCount reports how many listeners are currently registered.
// Useful for tests and diagnostics.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byID)
}

func deliver(l Listener, evt models.Event) {
	defer func() {
		_ = recover()
	}()
	l(evt)
}
