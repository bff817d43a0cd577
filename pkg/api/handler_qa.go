package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ocintel/dispatch/pkg/qa"
)

// createEvaluation handles POST /api/v1/evaluations.
func (s *Server) createEvaluation(c *gin.Context) {
	var req createEvaluationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	eval, err := s.deps.Evaluator.CreateEvaluation(c.Request.Context(), qa.CreateEvaluationParams{
		InteractionID: req.InteractionID,
		AgentID:       req.AgentID,
		CustomerID:    req.CustomerID,
		Channel:       req.Channel,
		ScorecardID:   req.ScorecardID,
		QAAgentID:     req.QAAgentID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, eval)
}

// getEvaluation handles GET /api/v1/evaluations/:id.
func (s *Server) getEvaluation(c *gin.Context) {
	eval, err := s.deps.Evaluator.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, eval)
}

// listEvaluations handles GET /api/v1/evaluations?qa_agent_id=.
func (s *Server) listEvaluations(c *gin.Context) {
	evals, err := s.deps.Evaluator.List(c.Request.Context(), c.Query("qa_agent_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"evaluations": evals, "count": len(evals)})
}

// scoreCriterion handles POST /api/v1/evaluations/:id/criteria/:critId.
func (s *Server) scoreCriterion(c *gin.Context) {
	var req scoreCriterionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	eval, err := s.deps.Evaluator.ScoreCriterion(c.Request.Context(),
		c.Param("id"), req.QAAgentID, c.Param("critId"), req.SubScores, req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, eval)
}

// completeEvaluation handles POST /api/v1/evaluations/:id/complete.
func (s *Server) completeEvaluation(c *gin.Context) {
	var req completeEvaluationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	eval, err := s.deps.Evaluator.Complete(c.Request.Context(),
		c.Param("id"), req.QAAgentID, req.FinalNotes, req.Recommendations)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, eval)
}
