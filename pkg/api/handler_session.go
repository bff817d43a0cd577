package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ocintel/dispatch/pkg/database"
	"github.com/ocintel/dispatch/pkg/escalation"
	"github.com/ocintel/dispatch/pkg/models"
	"github.com/ocintel/dispatch/pkg/services"
	"github.com/ocintel/dispatch/pkg/stealth"
)

// createSession handles POST /api/v1/sessions: store the session, enqueue it,
// and return it with its queue position and wait estimate.
func (s *Server) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	sess, err := s.deps.Sessions.Create(c.Request.Context(), services.CreateSessionParams{
		Customer:       req.Customer,
		Category:       req.Category,
		Urgency:        req.Urgency,
		PromptID:       req.PromptID,
		InitialMessage: req.InitialMessage,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	s.deps.Dispatcher.Enqueue(sess)

	c.JSON(http.StatusCreated, s.sessionResponse(sess))
}

// getSession handles GET /api/v1/sessions/:id.
func (s *Server) getSession(c *gin.Context) {
	sess, err := s.deps.Sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.sessionResponse(sess))
}

// listSessions handles GET /api/v1/sessions?status=waiting,active.
func (s *Server) listSessions(c *gin.Context) {
	var filter database.SessionFilter
	if v := c.Query("status"); v != "" {
		for _, raw := range strings.Split(v, ",") {
			status := models.SessionStatus(strings.TrimSpace(raw))
			if !status.Valid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status: " + raw})
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	filter.AgentID = c.Query("agent_id")

	sessions, err := s.deps.Sessions.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]*sessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, s.sessionResponse(sess))
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out, "count": len(out)})
}

// postCustomerMessage handles POST /api/v1/sessions/:id/messages: run the
// message through the conversation runtime, escalate when asked, and pace the
// next scripted reply when an agent is attached.
func (s *Server) postCustomerMessage(c *gin.Context) {
	sessionID := c.Param("id")
	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	result, err := s.deps.Runtime.ProcessMessage(c.Request.Context(), sessionID, req.Content)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := gin.H{
		"extracted":         result.Extracted,
		"step_complete":     result.StepComplete,
		"next_step":         result.NextStep,
		"should_escalate":   result.ShouldEscalate,
		"advisory_fallback": result.AdvisoryFallback,
		"context":           result.Context,
	}

	if result.ShouldEscalate {
		escResult, err := s.deps.Engine.HandleEscalation(c.Request.Context(), sessionID, result.EscalationReason)
		switch {
		case err == nil:
			resp["escalated"] = true
			resp["escalation_rule"] = escResult.Rule.ID
			resp["reassigned"] = escResult.Reassigned
		case errors.Is(err, escalation.ErrNoMatchingRule):
			// Nothing matched at this tier; the request stands recorded in
			// the context triggers.
			resp["escalated"] = false
		default:
			respondError(c, err)
			return
		}
	}

	s.scheduleScriptedReply(c, sessionID)

	c.JSON(http.StatusOK, resp)
}

// scheduleScriptedReply paces the current step's first scripted message when
// the session has an agent attached.
func (s *Server) scheduleScriptedReply(c *gin.Context, sessionID string) {
	if s.deps.Pacer == nil {
		return
	}
	sess, err := s.deps.Sessions.Get(c.Request.Context(), sessionID)
	if err != nil || sess.AssignedAgentID == "" {
		return
	}
	msgs, err := s.deps.Runtime.NextMessages(c.Request.Context(), sessionID)
	if err != nil || len(msgs) == 0 {
		return
	}
	s.deps.Pacer.Schedule(stealth.Request{
		SessionID:    sessionID,
		AgentID:      sess.AssignedAgentID,
		AgentTier:    sess.Tier,
		Content:      msgs[0],
		ResponseType: models.ResponseTypeSimpleAnswer,
	})
}

// postAgentResponse handles POST /api/v1/sessions/:id/responses: queue an
// agent-authored response for paced delivery.
func (s *Server) postAgentResponse(c *gin.Context) {
	sessionID := c.Param("id")
	var req postResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if req.ResponseType == "" {
		req.ResponseType = models.ResponseTypeSimpleAnswer
	}
	if !req.ResponseType.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid response_type"})
		return
	}

	sess, err := s.deps.Sessions.Get(c.Request.Context(), sessionID)
	if err != nil {
		respondError(c, err)
		return
	}
	if sess.Status.IsTerminal() {
		respondError(c, services.ErrSessionCompleted)
		return
	}

	tier := sess.Tier
	if agent, err := s.deps.Agents.Get(req.AgentID); err == nil {
		tier = agent.Tier
	}

	s.deps.Pacer.Schedule(stealth.Request{
		SessionID:    sessionID,
		AgentID:      req.AgentID,
		AgentTier:    tier,
		Content:      req.Content,
		ResponseType: req.ResponseType,
	})
	c.JSON(http.StatusAccepted, gin.H{"scheduled": true})
}

// requestMode handles POST /api/v1/sessions/:id/mode: switch the active
// prompt, resetting conversation state.
func (s *Server) requestMode(c *gin.Context) {
	var req requestModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	sess, err := s.deps.Runtime.SwitchPrompt(c.Request.Context(), c.Param("id"), req.PromptID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.sessionResponse(sess))
}

// escalateSession handles POST /api/v1/sessions/:id/escalate.
func (s *Server) escalateSession(c *gin.Context) {
	var req escalateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	result, err := s.deps.Engine.HandleEscalation(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session":    s.sessionResponse(result.Session),
		"rule_id":    result.Rule.ID,
		"reassigned": result.Reassigned,
		"agent_id":   result.AgentID,
	})
}

// completeSession handles POST /api/v1/sessions/:id/complete: finish the
// session and return its agent to the pool.
func (s *Server) completeSession(c *gin.Context) {
	sessionID := c.Param("id")
	var req completeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	sess, err := s.deps.Sessions.Complete(c.Request.Context(), sessionID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	s.deps.Dispatcher.Remove(sessionID)
	if s.deps.Pacer != nil {
		s.deps.Pacer.Deactivate(sessionID)
	}

	if sess.AssignedAgentID != "" {
		handleTime := time.Duration(0)
		if sess.AssignedAt != nil {
			handleTime = time.Since(*sess.AssignedAt)
		}
		firstContact := len(sess.EscalationHistory) == 0
		if _, err := s.deps.Agents.Release(sess.AssignedAgentID, true, firstContact, handleTime); err != nil && !errors.Is(err, services.ErrNotFound) {
			respondError(c, err)
			return
		}
		s.deps.Dispatcher.AgentAvailable()
	}

	c.JSON(http.StatusOK, sess)
}
