// Package events provides the in-process typed event hub used for all
// cross-component notifications, plus WebSocket delivery to dashboard
// clients.
//
// The hub gives at-least-once intra-process delivery to all current
// subscribers, in publication order per publisher. It is not a persistence
// mechanism: a subscriber that falls behind its buffer loses the oldest
// events (logged). Components that need durable state read it from the
// session store, not from the bus.
package events

import "time"

// Kind enumerates the event types published on the hub.
type Kind string

// Session lifecycle events.
const (
	KindSessionCreated   Kind = "session_created"
	KindSessionEnqueued  Kind = "session_enqueued"
	KindSessionAssigned  Kind = "session_assigned"
	KindSessionUpdated   Kind = "session_updated"
	KindSessionCompleted Kind = "session_completed"
	KindSessionEscalated Kind = "session_escalated"
	KindSLABreach        Kind = "sla_breach"
)

// Stealth pacer events. Per session these are strictly ordered:
// typing_start (typing_progress)* typing_end response_ready.
const (
	KindTypingStart    Kind = "typing_start"
	KindTypingProgress Kind = "typing_progress"
	KindTypingEnd      Kind = "typing_end"
	KindResponseReady  Kind = "response_ready"
)

// QA events.
const (
	KindEvaluationCreated   Kind = "evaluation_created"
	KindCriterionScored     Kind = "criterion_scored"
	KindEvaluationCompleted Kind = "evaluation_completed"
	KindCalibrationRequired Kind = "calibration_required"
)

// Operational events.
const (
	KindQueueBackpressure Kind = "queue_backpressure"
)

// Event is a single hub notification. Payload holds the kind-specific
// struct from payloads.go.
type Event struct {
	Kind      Kind
	SessionID string
	At        time.Time
	Payload   any
}

// GlobalSessionsChannel is the WebSocket channel carrying session-level
// events for all sessions. The dashboard session list subscribes here.
const GlobalSessionsChannel = "sessions"

// SessionChannel returns the WebSocket channel name for one session's
// events. Format: "session:{session_id}".
func SessionChannel(sessionID string) string {
	return "session:" + sessionID
}

// ClientMessage is the JSON structure for client → server WebSocket messages.
type ClientMessage struct {
	Action  string `json:"action"`            // "subscribe", "unsubscribe", "ping"
	Channel string `json:"channel,omitempty"` // e.g. "session:abc-123"
}
