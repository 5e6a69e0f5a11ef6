package api

import (
	"github.com/gin-gonic/gin"

	"github.com/agentbreak/coordinator/internal/channel/agent"
	"github.com/agentbreak/coordinator/internal/channel/ui"
	"github.com/agentbreak/coordinator/internal/common/logger"
	"github.com/agentbreak/coordinator/internal/controller"
)

// NewAgentRouter builds the gin engine served on server.agentPort: a
// health check plus the single agent websocket upgrade route.
func NewAgentRouter(ctrl *controller.Controller, agentHub *agent.Hub, lg *logger.Logger) *gin.Engine {
	router := gin.New()
	router.Use(Recovery(lg), RequestLogger(lg), ErrorHandler(lg), CORS())

	handler := NewHandler(ctrl, agentHub, nil, lg)
	router.GET("/health", handler.HealthCheck)
	router.GET("/ws/agent", handler.AgentWebsocket)

	return router
}

// NewUIRouter builds the gin engine served on server.uiPort: a health
// check plus the single UI websocket upgrade route.
func NewUIRouter(ctrl *controller.Controller, uiHub *ui.Hub, lg *logger.Logger) *gin.Engine {
	router := gin.New()
	router.Use(Recovery(lg), RequestLogger(lg), ErrorHandler(lg), CORS())

	handler := NewHandler(ctrl, nil, uiHub, lg)
	router.GET("/health", handler.HealthCheck)
	router.GET("/ws/ui", handler.UIWebsocket)

	return router
}
