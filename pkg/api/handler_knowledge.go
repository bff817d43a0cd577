package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// listKnowledge handles GET /api/v1/knowledge?tier=&q=. With a query it
// searches title and tags; without, it lists everything the tier may read.
func (s *Server) listKnowledge(c *gin.Context) {
	tier, err := strconv.Atoi(c.DefaultQuery("tier", "1"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tier"})
		return
	}

	entries := s.deps.Knowledge.Search(c.Query("q"), tier)
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

// registerKnowledge handles POST /api/v1/knowledge. Editing requires tier 3.
func (s *Server) registerKnowledge(c *gin.Context) {
	var req registerKnowledgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	entry, err := s.deps.Knowledge.Register(req.Entry, req.ActorTier)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

// listPrompts handles GET /api/v1/prompts.
func (s *Server) listPrompts(c *gin.Context) {
	prompts := s.deps.Config.Prompts.List()
	c.JSON(http.StatusOK, gin.H{"prompts": prompts, "count": len(prompts)})
}

// getPrompt handles GET /api/v1/prompts/:id.
func (s *Server) getPrompt(c *gin.Context) {
	prompt, ok := s.deps.Config.Prompts.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "resource not found"})
		return
	}
	c.JSON(http.StatusOK, prompt)
}

// getEscalationRules handles GET /api/v1/escalation/rules.
func (s *Server) getEscalationRules(c *gin.Context) {
	rules := s.deps.Engine.Rules()
	c.JSON(http.StatusOK, gin.H{"rules": rules, "count": len(rules)})
}
