package api

import "github.com/ocintel/dispatch/pkg/models"

// createSessionRequest is the POST /sessions body.
type createSessionRequest struct {
	Customer       models.Customer `json:"customer"`
	Category       string          `json:"category"`
	Urgency        models.Urgency  `json:"urgency"`
	PromptID       string          `json:"prompt_id"`
	InitialMessage string          `json:"initial_message"`
}

// postMessageRequest is the POST /sessions/:id/messages body.
type postMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// postResponseRequest is the POST /sessions/:id/responses body.
type postResponseRequest struct {
	AgentID      string              `json:"agent_id" binding:"required"`
	Content      string              `json:"content" binding:"required"`
	ResponseType models.ResponseType `json:"response_type"`
}

// requestModeRequest is the POST /sessions/:id/mode body.
type requestModeRequest struct {
	PromptID string `json:"prompt_id" binding:"required"`
}

// escalateRequest is the POST /sessions/:id/escalate body.
type escalateRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// completeRequest is the POST /sessions/:id/complete body.
type completeRequest struct {
	Reason string `json:"reason"`
}

// registerAgentRequest is the POST /agents body.
type registerAgentRequest struct {
	Name                  string   `json:"name" binding:"required"`
	Email                 string   `json:"email"`
	Tier                  int      `json:"tier"`
	SupervisorID          string   `json:"supervisor_id"`
	Skills                []string `json:"skills"`
	Certifications        []string `json:"certifications"`
	MaxConcurrentSessions int      `json:"max_concurrent_sessions"`
}

// setAgentStatusRequest is the PATCH /agents/:id/status body.
type setAgentStatusRequest struct {
	Status           models.AgentStatus `json:"status" binding:"required"`
	CurrentSessionID string             `json:"current_session_id"`
}

// registerKnowledgeRequest is the POST /knowledge body.
type registerKnowledgeRequest struct {
	Entry     models.KnowledgeEntry `json:"entry"`
	ActorTier int                   `json:"actor_tier"`
}

// createEvaluationRequest is the POST /evaluations body.
type createEvaluationRequest struct {
	InteractionID string `json:"interaction_id" binding:"required"`
	AgentID       string `json:"agent_id" binding:"required"`
	CustomerID    string `json:"customer_id"`
	Channel       string `json:"channel"`
	ScorecardID   string `json:"scorecard_id" binding:"required"`
	QAAgentID     string `json:"qa_agent_id" binding:"required"`
}

// scoreCriterionRequest is the POST /evaluations/:id/criteria/:critId body.
type scoreCriterionRequest struct {
	QAAgentID string    `json:"qa_agent_id" binding:"required"`
	SubScores []float64 `json:"sub_scores"`
	Notes     string    `json:"notes"`
}

// completeEvaluationRequest is the POST /evaluations/:id/complete body.
type completeEvaluationRequest struct {
	QAAgentID       string   `json:"qa_agent_id" binding:"required"`
	FinalNotes      string   `json:"final_notes"`
	Recommendations []string `json:"recommendations"`
}
