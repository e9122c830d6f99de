package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes sets up the API endpoints and groups them logically.
func RegisterRoutes(router *gin.Engine, h *APIHandler) {

	// --- Generation ---
	router.POST("/generate", h.Generate)              // Single JSON response
	router.POST("/generate/stream", h.GenerateStream) // SSE event stream

	// --- Project tree utilities ---
	projectGroup := router.Group("/project")
	{
		projectGroup.POST("/expand", h.ExpandProject) // Sparse file set -> complete project tree
		projectGroup.POST("/export", h.ExportProject) // Expand and write to disk
	}

	// --- Simple Health Check ---
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
