package events

import "time"

// Publisher is the typed publishing facade over the hub. Each public method
// accepts a specific payload struct from payloads.go and stamps the matching
// hub event. Publishing never blocks and never fails; components treat event
// delivery as best-effort.
type Publisher struct {
	hub *Hub
}

// NewPublisher creates a publisher over the given hub.
func NewPublisher(hub *Hub) *Publisher {
	return &Publisher{hub: hub}
}

// Hub exposes the underlying hub for subscribers.
func (p *Publisher) Hub() *Hub {
	return p.hub
}

func (p *Publisher) publish(kind Kind, sessionID string, payload any) {
	p.hub.Publish(Event{
		Kind:      kind,
		SessionID: sessionID,
		At:        time.Now(),
		Payload:   payload,
	})
}

// SessionCreated publishes a session_created event.
func (p *Publisher) SessionCreated(payload SessionCreatedPayload) {
	p.publish(KindSessionCreated, payload.SessionID, payload)
}

// SessionEnqueued publishes a session_enqueued event.
func (p *Publisher) SessionEnqueued(payload SessionEnqueuedPayload) {
	p.publish(KindSessionEnqueued, payload.SessionID, payload)
}

// SessionAssigned publishes a session_assigned event.
func (p *Publisher) SessionAssigned(payload SessionAssignedPayload) {
	p.publish(KindSessionAssigned, payload.SessionID, payload)
}

// SessionUpdated publishes a session_updated event.
func (p *Publisher) SessionUpdated(payload SessionUpdatedPayload) {
	p.publish(KindSessionUpdated, payload.SessionID, payload)
}

// SessionCompleted publishes a session_completed event.
func (p *Publisher) SessionCompleted(payload SessionCompletedPayload) {
	p.publish(KindSessionCompleted, payload.SessionID, payload)
}

// SessionEscalated publishes a session_escalated event.
func (p *Publisher) SessionEscalated(payload SessionEscalatedPayload) {
	p.publish(KindSessionEscalated, payload.SessionID, payload)
}

// SLABreach publishes an sla_breach event.
func (p *Publisher) SLABreach(payload SLABreachPayload) {
	p.publish(KindSLABreach, payload.SessionID, payload)
}

// TypingStart publishes a typing_start event.
func (p *Publisher) TypingStart(payload TypingStartPayload) {
	p.publish(KindTypingStart, payload.SessionID, payload)
}

// TypingProgress publishes a typing_progress event.
func (p *Publisher) TypingProgress(payload TypingProgressPayload) {
	p.publish(KindTypingProgress, payload.SessionID, payload)
}

// TypingEnd publishes a typing_end event.
func (p *Publisher) TypingEnd(payload TypingEndPayload) {
	p.publish(KindTypingEnd, payload.SessionID, payload)
}

// ResponseReady publishes a response_ready event.
func (p *Publisher) ResponseReady(payload ResponseReadyPayload) {
	p.publish(KindResponseReady, payload.SessionID, payload)
}

// EvaluationCreated publishes an evaluation_created event.
func (p *Publisher) EvaluationCreated(payload EvaluationCreatedPayload) {
	p.publish(KindEvaluationCreated, payload.SessionID, payload)
}

// CriterionScored publishes a criterion_scored event.
func (p *Publisher) CriterionScored(payload CriterionScoredPayload) {
	p.publish(KindCriterionScored, payload.SessionID, payload)
}

// EvaluationCompleted publishes an evaluation_completed event.
func (p *Publisher) EvaluationCompleted(payload EvaluationCompletedPayload) {
	p.publish(KindEvaluationCompleted, payload.SessionID, payload)
}

// CalibrationRequired publishes a calibration_required event.
func (p *Publisher) CalibrationRequired(payload CalibrationRequiredPayload) {
	p.publish(KindCalibrationRequired, payload.SessionID, payload)
}

// QueueBackpressure publishes a queue_backpressure event.
func (p *Publisher) QueueBackpressure(payload QueueBackpressurePayload) {
	p.publish(KindQueueBackpressure, "", payload)
}
