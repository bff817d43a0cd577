package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ocintel/dispatch/pkg/directory"
	"github.com/ocintel/dispatch/pkg/models"
)

// registerAgent handles POST /api/v1/agents.
func (s *Server) registerAgent(c *gin.Context) {
	var req registerAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	agent, err := s.deps.Agents.Create(directory.CreateAgentParams{
		Name:                  req.Name,
		Email:                 req.Email,
		Tier:                  req.Tier,
		SupervisorID:          req.SupervisorID,
		Skills:                req.Skills,
		Certifications:        req.Certifications,
		MaxConcurrentSessions: req.MaxConcurrentSessions,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, agent)
}

// getAgent handles GET /api/v1/agents/:id. The payload carries the composite
// quality metric alongside the raw performance counters.
func (s *Server) getAgent(c *gin.Context) {
	agent, err := s.deps.Agents.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, agentResponse{
		Agent:        agent,
		QualityScore: directory.QualityScore(agent.Performance),
	})
}

// listAgents handles GET /api/v1/agents?tier=&status=.
func (s *Server) listAgents(c *gin.Context) {
	status := models.AgentStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status: " + string(status)})
		return
	}

	agents := s.deps.Agents.List(status)

	if v := c.Query("tier"); v != "" {
		tier, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tier: " + v})
			return
		}
		filtered := agents[:0]
		for _, agent := range agents {
			if agent.Tier == tier {
				filtered = append(filtered, agent)
			}
		}
		agents = filtered
	}

	c.JSON(http.StatusOK, gin.H{"agents": agents, "count": len(agents)})
}

// setAgentStatus handles PATCH /api/v1/agents/:id/status. Reporting available
// kicks the dispatcher.
func (s *Server) setAgentStatus(c *gin.Context) {
	var req setAgentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	agent, err := s.deps.Agents.UpdateStatus(c.Param("id"), req.Status, req.CurrentSessionID)
	if err != nil {
		respondError(c, err)
		return
	}
	if agent.Status == models.AgentStatusAvailable {
		s.deps.Dispatcher.AgentAvailable()
	}
	c.JSON(http.StatusOK, agent)
}

// getCustomerProfile handles GET /api/v1/customers/:id/profile.
func (s *Server) getCustomerProfile(c *gin.Context) {
	profile, err := s.deps.Profiles.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}
