package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ocintel/dispatch/pkg/models"
)

// queueStats handles GET /api/v1/queue/stats: depth, a per-priority
// histogram, the head wait estimate, and agent availability.
func (s *Server) queueStats(c *gin.Context) {
	snapshot := s.deps.Dispatcher.Snapshot()

	histogram := make(map[int]int)
	for _, item := range snapshot {
		histogram[item.Priority]++
	}

	resp := gin.H{
		"depth":              len(snapshot),
		"priority_histogram": histogram,
		"available_agents":   len(s.deps.Agents.List(models.AgentStatusAvailable)),
		"backpressure_limit": s.deps.Config.Queue.BackpressureSoftLimit,
	}
	if len(snapshot) > 0 {
		resp["head_session_id"] = snapshot[0].SessionID
		resp["head_wait_ms"] = s.estimateWait(1).Milliseconds()
	}
	c.JSON(http.StatusOK, resp)
}
