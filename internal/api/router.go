package api

import (
	"github.com/gin-gonic/gin"

	"ragserver/pkg/logger"
	"ragserver/pkg/ratelimiter"
)

// NewRouter assembles the HTTP routes. limiter and log are optional.
func NewRouter(h *Handler, limiter ratelimiter.RateLimiter, log *logger.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), CORS())
	if log != nil {
		router.Use(RequestLogger(log))
	}
	if limiter != nil {
		router.Use(RateLimit(limiter))
	}

	router.GET("/healthz", h.health)

	api := router.Group("/api/v1")
	{
		api.POST("/documents", h.uploadDocument)
		api.POST("/documents/batch", h.uploadDocumentBatch)
		api.DELETE("/documents", h.clearDocuments)
		api.GET("/stats", h.stats)
		api.POST("/chat", h.chat)
	}
	return router
}
