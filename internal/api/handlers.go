package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agentbreak/coordinator/internal/channel/agent"
	"github.com/agentbreak/coordinator/internal/channel/ui"
	"github.com/agentbreak/coordinator/internal/common/logger"
	"github.com/agentbreak/coordinator/internal/controller"
)

// Handler exposes the coordinator's ambient HTTP surface.
type Handler struct {
	ctrl     *controller.Controller
	agentHub *agent.Hub
	uiHub    *ui.Hub
	logger   *logger.Logger
}

// NewHandler builds a Handler wired to the given controller and hubs.
func NewHandler(ctrl *controller.Controller, agentHub *agent.Hub, uiHub *ui.Hub, lg *logger.Logger) *Handler {
	return &Handler{ctrl: ctrl, agentHub: agentHub, uiHub: uiHub, logger: lg}
}

// HealthCheck reports liveness.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// AgentWebsocket upgrades the request to the single agent channel.
func (h *Handler) AgentWebsocket(c *gin.Context) {
	ch, err := h.agentHub.Accept(c.Writer, c.Request, h.ctrl)
	if err != nil {
		h.logger.Warn("agent websocket rejected")
		return
	}
	h.ctrl.AttachAgent(ch)
	ch.Run(c.Request.Context(), h.ctrl)
}

// UIWebsocket upgrades the request to the single UI channel.
func (h *Handler) UIWebsocket(c *gin.Context) {
	ch, err := h.uiHub.Accept(c.Writer, c.Request, h.ctrl)
	if err != nil {
		h.logger.Warn("UI websocket rejected")
		return
	}
	h.ctrl.AttachUI(ch)
	ch.Run(c.Request.Context(), h.ctrl)
}
