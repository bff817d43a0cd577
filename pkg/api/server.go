// Package api is the HTTP surface: REST routes for sessions, agents,
// knowledge, escalation, and QA, plus the websocket event stream.
package api

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ocintel/dispatch/pkg/config"
	"github.com/ocintel/dispatch/pkg/conversation"
	"github.com/ocintel/dispatch/pkg/database"
	"github.com/ocintel/dispatch/pkg/directory"
	"github.com/ocintel/dispatch/pkg/escalation"
	"github.com/ocintel/dispatch/pkg/events"
	"github.com/ocintel/dispatch/pkg/knowledge"
	"github.com/ocintel/dispatch/pkg/qa"
	"github.com/ocintel/dispatch/pkg/queue"
	"github.com/ocintel/dispatch/pkg/services"
	"github.com/ocintel/dispatch/pkg/stealth"
	"github.com/ocintel/dispatch/pkg/version"
)

// Deps carries everything the server serves from.
type Deps struct {
	Config     *config.Config
	Sessions   *services.SessionService
	Profiles   *services.ProfileService
	Runtime    *conversation.Runtime
	Engine     *escalation.Engine
	Dispatcher *queue.Dispatcher
	Agents     *directory.Directory
	Knowledge  *knowledge.Registry
	Evaluator  *qa.Evaluator
	Pacer      *stealth.Pacer

	// ConnManager serves /ws; nil disables the endpoint.
	ConnManager *events.ConnectionManager

	// DB backs the health check; nil reports "not configured".
	DB *sql.DB
}

// Server is the HTTP API over the dispatch core.
type Server struct {
	deps Deps
}

// NewServer creates a server.
func NewServer(deps Deps) *Server {
	return &Server{deps: deps}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	s.RegisterRoutes(r)
	return r
}

// RegisterRoutes attaches all endpoints to the engine.
func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)
	r.GET("/ws", s.handleWS)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/sessions", s.createSession)
		v1.GET("/sessions", s.listSessions)
		v1.GET("/sessions/:id", s.getSession)
		v1.POST("/sessions/:id/messages", s.postCustomerMessage)
		v1.POST("/sessions/:id/responses", s.postAgentResponse)
		v1.POST("/sessions/:id/mode", s.requestMode)
		v1.POST("/sessions/:id/escalate", s.escalateSession)
		v1.POST("/sessions/:id/complete", s.completeSession)

		v1.GET("/escalation/rules", s.getEscalationRules)

		v1.POST("/agents", s.registerAgent)
		v1.GET("/agents", s.listAgents)
		v1.GET("/agents/:id", s.getAgent)
		v1.PATCH("/agents/:id/status", s.setAgentStatus)

		v1.GET("/customers/:id/profile", s.getCustomerProfile)

		v1.GET("/knowledge", s.listKnowledge)
		v1.POST("/knowledge", s.registerKnowledge)

		v1.GET("/prompts", s.listPrompts)
		v1.GET("/prompts/:id", s.getPrompt)

		v1.GET("/queue/stats", s.queueStats)

		v1.POST("/evaluations", s.createEvaluation)
		v1.GET("/evaluations", s.listEvaluations)
		v1.GET("/evaluations/:id", s.getEvaluation)
		v1.POST("/evaluations/:id/criteria/:critId", s.scoreCriterion)
		v1.POST("/evaluations/:id/complete", s.completeEvaluation)
	}
}

// health reports liveness plus database and core-loop status.
func (s *Server) health(c *gin.Context) {
	resp := gin.H{
		"status":          "healthy",
		"version":         version.Full(),
		"queue_depth":     s.deps.Dispatcher.Depth(),
		"cached_sessions": s.deps.Sessions.CachedCount(),
	}
	if s.deps.Pacer != nil {
		resp["pacing_sessions"] = s.deps.Pacer.ActiveSessions()
	}

	if s.deps.DB == nil {
		resp["database"] = gin.H{"status": "not configured"}
		c.JSON(http.StatusOK, resp)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := database.Health(ctx, s.deps.DB)
	resp["database"] = dbHealth
	if err != nil {
		resp["status"] = "unhealthy"
		resp["error"] = err.Error()
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}
