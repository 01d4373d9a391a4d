// Package permission implements the three-state (allow/ask/deny)
// PermissionGate from §4.6, grounded on the teacher's
// internal/agent/approval.go ApprovalChecker (decision enum, pending
// request registry) narrowed to the spec's simpler per-tool model: one
// tool catalog per process, no glob allow-lists, no per-agent policy
// layering.
package permission

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/legaladvisor/engine/internal/errs"
	"github.com/legaladvisor/engine/pkg/models"
)

// Store is the subset of internal/store.Store the gate depends on.
type Store interface {
	GetToolPermission(ctx context.Context, toolName string) (models.Permission, error)
	SetToolPermission(ctx context.Context, toolName string, permission models.Permission) error
}

// EventBus is the subset of internal/events.Bus the gate depends on.
type EventBus interface {
	Emit(evt models.Event)
}

// ResponseKind enumerates the host's reply to a tool_call_request.
type ResponseKind string

const (
	ResponseAllow               ResponseKind = "allow"
	ResponseAllowAllThisSession ResponseKind = "allow_all_this_session"
	ResponseDeny                ResponseKind = "deny"
)

// Response is the host's answer to an ask-flow request, delivered via
// respond_tool_call.
type Response struct {
	Kind   ResponseKind
	Always bool // only meaningful when Kind == ResponseAllow
}

type pendingRequest struct {
	sessionID string
	toolName  string
	reply     chan Response
}

// Gate resolves effective tool permissions and drives the ask-flow
// round trip with the host.
type Gate struct {
	store        Store
	bus          EventBus
	pollInterval time.Duration

	mu       sync.Mutex
	pending  map[string]*pendingRequest // request_id -> pending
	allowAll map[string]bool           // session_id -> allow-all-this-session
}

// New builds a Gate. pollInterval bounds how often the ask-flow checks
// cancel for a response while waiting; the spec's default is ~300ms.
func New(store Store, bus EventBus, pollInterval time.Duration) *Gate {
	if pollInterval <= 0 {
		pollInterval = 300 * time.Millisecond
	}
	return &Gate{
		store:        store,
		bus:          bus,
		pollInterval: pollInterval,
		pending:      make(map[string]*pendingRequest),
		allowAll:     make(map[string]bool),
	}
}

// Resolve computes the effective stored permission for (toolName,
// sessionID): if the session is in the allow-all set and the stored
// value is "ask", it resolves to "allow"; otherwise the stored (or
// default) value is used verbatim.
func (g *Gate) Resolve(ctx context.Context, toolName, sessionID string) (models.Permission, error) {
	stored, err := g.store.GetToolPermission(ctx, toolName)
	if err != nil {
		return "", err
	}

	g.mu.Lock()
	allowAll := g.allowAll[sessionID]
	g.mu.Unlock()

	if allowAll && stored == models.PermissionAsk {
		return models.PermissionAllow, nil
	}
	return stored, nil
}

// Check resolves the effective permission and, for "ask", drives the
// full round trip with the host: emit tool_call_request, poll for a
// reply (checking cancelled via isCancelled between polls), and apply
// the reply's side effects. It returns nil when the tool call may
// proceed, or a Tool/Cancelled error otherwise.
func (g *Gate) Check(ctx context.Context, taskID, sessionID, toolName string, arguments []byte, isCancelled func() bool) error {
	effective, err := g.Resolve(ctx, toolName, sessionID)
	if err != nil {
		return err
	}

	switch effective {
	case models.PermissionDeny:
		return errs.Newf(errs.KindTool, "tool %s is denied", toolName)
	case models.PermissionAllow:
		return nil
	}

	requestID := uuid.NewString()
	reply := make(chan Response, 1)

	g.mu.Lock()
	g.pending[requestID] = &pendingRequest{sessionID: sessionID, toolName: toolName, reply: reply}
	g.mu.Unlock()

	g.bus.Emit(models.Event{
		Kind: models.EventToolCallRequest,
		Payload: map[string]any{
			"task_id":    taskID,
			"request_id": requestID,
			"tool_name":  toolName,
			"arguments":  string(arguments),
		},
	})

	for {
		select {
		case resp := <-reply:
			return g.applyResponse(ctx, sessionID, toolName, resp)
		case <-time.After(g.pollInterval):
			if isCancelled != nil && isCancelled() {
				g.mu.Lock()
				delete(g.pending, requestID)
				g.mu.Unlock()
				return errs.ErrCancelled
			}
		}
	}
}

func (g *Gate) applyResponse(ctx context.Context, sessionID, toolName string, resp Response) error {
	switch resp.Kind {
	case ResponseDeny:
		return errs.Newf(errs.KindTool, "tool %s denied by user", toolName)
	case ResponseAllowAllThisSession:
		g.mu.Lock()
		g.allowAll[sessionID] = true
		g.mu.Unlock()
		return nil
	case ResponseAllow:
		if resp.Always {
			if err := g.store.SetToolPermission(ctx, toolName, models.PermissionAllow); err != nil {
				return err
			}
		}
		return nil
	default:
		return errs.Newf(errs.KindInvalidState, "unknown permission response kind %q", resp.Kind)
	}
}

// Respond delivers the host's reply to a pending ask-flow request and
// emits tool_call_response. It fails NotFound if requestID is unknown
// (already answered, cancelled, or never registered).
func (g *Gate) Respond(requestID string, resp Response) error {
	g.mu.Lock()
	pending, ok := g.pending[requestID]
	if ok {
		delete(g.pending, requestID)
	}
	g.mu.Unlock()

	if !ok {
		return errs.Newf(errs.KindNotFound, "pending tool call request %s not found", requestID)
	}

	pending.reply <- resp

	g.bus.Emit(models.Event{
		Kind: models.EventToolCallResponse,
		Payload: map[string]any{
			"request_id": requestID,
			"tool_name":  pending.toolName,
			"session_id": pending.sessionID,
		},
	})
	return nil
}
