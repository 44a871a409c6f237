package approuters

import (
	"NiralaChat/internal/configuration"

	"github.com/gin-gonic/gin"
)

// MonitorRouters sets up monitoring API routes
func MonitorRouters(router *gin.Engine, container *configuration.Container) {
	monitorGroup := router.Group("/chat/api/monitor")
	{
		// GET /chat/api/monitor/stats - transport and session statistics
		monitorGroup.GET("/stats", container.MonitorHandler.GetHubStats)
	}
}
