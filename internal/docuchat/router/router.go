// Package router wires the chat service routes onto a gin engine.
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/docuchat/docuchat/internal/docuchat/handler"
	"github.com/docuchat/docuchat/internal/docuchat/metrics"
)

// Register mounts the chat API, health and metrics endpoints.
func Register(engine *gin.Engine, chatHandler *handler.ChatHandler) {
	v1 := engine.Group("/v1")
	{
		docs := v1.Group("/documents")
		{
			docs.POST("", chatHandler.Ingest)
			docs.GET("", chatHandler.List)
			docs.DELETE("/:id", chatHandler.Delete)
		}

		v1.POST("/chat", chatHandler.Chat)
		v1.GET("/stats", chatHandler.Stats)
	}

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	engine.GET("/metrics", func(c *gin.Context) {
		c.String(http.StatusOK, metrics.GetChatMetrics().Export("docuchat", "core"))
	})

	logger.Info("HTTP routes registered")
}
