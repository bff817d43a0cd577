// Package escalation promotes sessions between agent tiers according to the
// configured rule set: trigger matching, authority checks, SLA stamping, and
// handoff back to the dispatcher.
package escalation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/ocintel/dispatch/pkg/directory"
	"github.com/ocintel/dispatch/pkg/events"
	"github.com/ocintel/dispatch/pkg/models"
	"github.com/ocintel/dispatch/pkg/queue"
	"github.com/ocintel/dispatch/pkg/services"
)

// Escalation failures.
var (
	// ErrNoMatchingRule means no rule's triggers matched the reason at the
	// session's current tier.
	ErrNoMatchingRule = errors.New("no escalation rule matches")
	// ErrNotAuthorized means the assigned agent may not escalate to the
	// rule's target tier.
	ErrNotAuthorized = errors.New("agent not authorized for target tier")
)

// Engine applies escalation rules to sessions. The rule set is fixed at
// construction; first match in configuration order wins.
type Engine struct {
	rules         []models.EscalationRule
	agents        *directory.Directory
	sessions      *services.SessionService
	dispatcher    *queue.Dispatcher
	publisher     *events.Publisher
	autoReenqueue bool
}

// NewEngine creates an engine over the given rule set and collaborators.
func NewEngine(rules []models.EscalationRule, agents *directory.Directory, sessions *services.SessionService, dispatcher *queue.Dispatcher, publisher *events.Publisher, autoReenqueue bool) *Engine {
	return &Engine{
		rules:         rules,
		agents:        agents,
		sessions:      sessions,
		dispatcher:    dispatcher,
		publisher:     publisher,
		autoReenqueue: autoReenqueue,
	}
}

// Rules returns the immutable rule set in match order.
func (e *Engine) Rules() []models.EscalationRule {
	out := make([]models.EscalationRule, len(e.rules))
	copy(out, e.rules)
	return out
}

// FindRule returns the first rule whose trigger list contains a substring of
// the lowercased reason and whose from-tier matches, or nil.
func (e *Engine) FindRule(reason string, fromTier int) *models.EscalationRule {
	lowered := strings.ToLower(reason)
	for i := range e.rules {
		rule := &e.rules[i]
		if rule.FromTier != fromTier {
			continue
		}
		for _, trigger := range rule.Triggers {
			if strings.Contains(lowered, strings.ToLower(trigger)) {
				return rule
			}
		}
	}
	return nil
}

// Result describes the outcome of a handled escalation.
type Result struct {
	Session    *models.Session
	Rule       *models.EscalationRule
	Reassigned bool
	// AgentID is the agent the session was handed to, when Reassigned.
	AgentID string
}

// HandleEscalation resolves a rule for the reason, promotes the session, and
// either hands it straight to an available agent at the target tier or
// returns it to the waiting queue with a priority bump.
//
// When the session is currently assigned, the assigned agent's authority must
// cover the target tier; unassigned sessions escalate on system authority.
func (e *Engine) HandleEscalation(ctx context.Context, sessionID, reason string) (*Result, error) {
	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	rule := e.FindRule(reason, sess.Tier)
	if rule == nil {
		return nil, ErrNoMatchingRule
	}

	var prevAgent *models.Agent
	if sess.AssignedAgentID != "" {
		prevAgent, err = e.agents.Get(sess.AssignedAgentID)
		if err != nil {
			return nil, err
		}
		if !prevAgent.EscalationAuthority.MayEscalateTo(rule.ToTier) {
			return nil, ErrNotAuthorized
		}
	}

	now := time.Now()
	ev := models.EscalationEvent{
		Timestamp: now,
		Reason:    reason,
		FromTier:  sess.Tier,
		ToTier:    rule.ToTier,
		RuleID:    rule.ID,
		Priority:  rule.Priority,
	}
	if rule.SLA > 0 {
		ev.SLA = now.Add(rule.SLA)
	}

	escalated, err := e.sessions.Escalate(ctx, sessionID, ev, sess.Priority+1)
	if err != nil {
		return nil, err
	}

	// The previous agent hands the session off; their handle time ends here.
	if prevAgent != nil {
		handleTime := time.Duration(0)
		if sess.AssignedAt != nil {
			handleTime = now.Sub(*sess.AssignedAt)
		}
		if _, err := e.agents.Release(prevAgent.ID, false, false, handleTime); err != nil {
			slog.Error("Failed to release agent on escalation",
				"agent_id", prevAgent.ID, "error", err)
		}
	}

	result := &Result{Session: escalated, Rule: rule}

	// Immediate reassignment wants an agent at exactly the target tier;
	// otherwise the session goes back to the queue at its bumped priority.
	if next := e.agents.SelectAvailableAt(rule.ToTier); next != nil {
		claimed, err := e.agents.Claim(next.ID, escalated.ID)
		if err == nil {
			assigned, err := e.sessions.Assign(ctx, escalated.ID, claimed)
			if err == nil {
				result.Session = assigned
				result.Reassigned = true
				result.AgentID = claimed.ID
			} else {
				if uErr := e.agents.Unclaim(claimed.ID); uErr != nil {
					slog.Error("Failed to unclaim agent after escalation assign failure",
						"agent_id", claimed.ID, "error", uErr)
				}
				slog.Error("Failed to reassign escalated session",
					"session_id", escalated.ID, "error", err)
			}
		}
	}

	if !result.Reassigned && e.autoReenqueue {
		e.dispatcher.Enqueue(result.Session)
	}

	slaStamp := ""
	if result.Session.EscalationSLA != nil {
		slaStamp = result.Session.EscalationSLA.Format(time.RFC3339Nano)
	}
	slog.Info("Session escalated",
		"session_id", sessionID,
		"rule_id", rule.ID,
		"from_tier", ev.FromTier,
		"to_tier", ev.ToTier,
		"reassigned", result.Reassigned)

	e.publisher.SessionEscalated(events.SessionEscalatedPayload{
		BasePayload: events.NewBasePayload(events.KindSessionEscalated, sessionID),
		Reason:      reason,
		RuleID:      rule.ID,
		RuleName:    rule.Name,
		FromTier:    ev.FromTier,
		ToTier:      ev.ToTier,
		Priority:    rule.Priority,
		SLA:         slaStamp,
		Reassigned:  result.Reassigned,
		AgentID:     result.AgentID,
	})

	return result, nil
}
