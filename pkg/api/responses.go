package api

import (
	"time"

	"github.com/ocintel/dispatch/pkg/models"
)

// defaultHandleTime seeds the wait estimate before any agent has history.
const defaultHandleTime = 5 * time.Minute

// agentResponse decorates an agent with the composite quality metric.
type agentResponse struct {
	*models.Agent
	QualityScore float64 `json:"quality_score"`
}

// sessionResponse decorates a session with queue placement while it waits.
type sessionResponse struct {
	*models.Session
	QueuePosition   int   `json:"queue_position,omitempty"`
	EstimatedWaitMS int64 `json:"estimated_wait_ms,omitempty"`
}

// sessionResponse attaches queue position and a wait estimate to waiting
// sessions.
func (s *Server) sessionResponse(sess *models.Session) *sessionResponse {
	resp := &sessionResponse{Session: sess}
	if sess.Status != models.SessionStatusWaiting && sess.Status != models.SessionStatusEscalated {
		return resp
	}
	position := s.deps.Dispatcher.Position(sess.ID)
	if position == 0 {
		return resp
	}
	resp.QueuePosition = position
	resp.EstimatedWaitMS = s.estimateWait(position).Milliseconds()
	return resp
}

// estimateWait projects how long the given queue position waits: average
// handle time across the roster divided by the available agent count, times
// the position.
func (s *Server) estimateWait(position int) time.Duration {
	avg := time.Duration(0)
	sampled := 0
	for _, agent := range s.deps.Agents.List("") {
		if agent.Performance.AverageHandleTime > 0 {
			avg += agent.Performance.AverageHandleTime
			sampled++
		}
	}
	if sampled > 0 {
		avg /= time.Duration(sampled)
	} else {
		avg = defaultHandleTime
	}

	available := len(s.deps.Agents.List(models.AgentStatusAvailable))
	if available < 1 {
		available = 1
	}
	return time.Duration(position) * avg / time.Duration(available)
}
