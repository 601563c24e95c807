package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/qrdine/core/internal/middleware"
)

// RegisterRoutes mounts socket.io and the connection stats endpoint.
func RegisterRoutes(rg *gin.RouterGroup, hub *Hub, authMW gin.HandlerFunc) {
	handler := gin.WrapH(hub.Handler())
	rg.Any("/socket.io", handler)
	rg.Any("/socket.io/*any", handler)

	rg.GET("/gateway/stats", authMW, func(c *gin.Context) {
		orgID, ok := middleware.ScopedOrganization(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"organization": hub.ClientCount(orgID),
			"total":        hub.ClientCount(""),
		})
	})
}
