package v1

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const apiPrefix = "/api/v1"

// Register mounts the v1 routes and middleware on the router.
func Register(router *gin.Engine, h *Handler, logger *zap.Logger) {
	router.Use(RequestID(), RequestLogger(logger), Recovery(logger))

	router.GET("/healthz", h.Health)

	group := router.Group(apiPrefix)

	group.POST("/assessments", h.StartAssessment)
	group.GET("/assessments/:id/status", h.GetStatus)
	group.GET("/assessments/:id/results", h.GetResults)
	group.POST("/assessments/cleanup", h.Cleanup)

	group.GET("/priorities/top", h.TopPriorities)
	group.GET("/priorities/level/:level", h.PrioritiesByLevel)
}
