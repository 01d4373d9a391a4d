package models

// EventKind enumerates the event kinds emitted on the EventBus, per the
// host-facing contract (§6 of the spec).
type EventKind string

const (
	EventSubscribed        EventKind = "subscribed"
	EventTest              EventKind = "test"
	EventSessionCreated    EventKind = "session_created"
	EventMessageCreated    EventKind = "message_created"
	EventModelUpdated      EventKind = "model_updated"
	EventModelConnectionOK EventKind = "model_connection_ok"
	EventModelPing         EventKind = "model_ping"
	EventAgentPhase        EventKind = "agent_phase"
	EventIntakeProgress    EventKind = "intake_progress"
	EventIntakeDone        EventKind = "intake_done"
	EventToolCallRequest   EventKind = "tool_call_request"
	EventToolCallResponse  EventKind = "tool_call_response"
	EventToolCallResult    EventKind = "tool_call_result"
	EventReviewAdjusted    EventKind = "review_adjusted"
	EventReviewIntercepted EventKind = "review_intercepted"
	EventCompleted         EventKind = "completed"
	EventCancelling        EventKind = "cancelling"
	EventCancelled         EventKind = "cancelled"
	EventError             EventKind = "error"
	EventReportRegenerating EventKind = "report_regenerating"
)

// Event is the value fanned out to every subscriber. Payload is a plain
// map so it serializes the same way regardless of transport. The Event
// struct is passed to each listener by value; its Payload map is the
// same map for every listener.
type Event struct {
	Kind      EventKind      `json:"kind"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp int64          `json:"timestamp"`
}
