// Package api exposes the game service over HTTP.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tatianab/castle-adventure/internal/game"
)

// NewRouter builds the gin engine. metrics must be the same value passed to
// the service with game.WithMetrics for gameplay counters to show up.
func NewRouter(svc *game.Service, metrics *Metrics, logger *zap.Logger) *gin.Engine {
	logger = logger.Named("api")
	h := &handler{svc: svc, logger: logger}

	r := gin.New()
	r.Use(gin.Recovery(), metrics.middleware(), requestLogger(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "story": svc.Graph().Title()})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api", identityMiddleware())
	{
		gameGroup := api.Group("/game")
		{
			gameGroup.POST("/start", h.startOrResume)
			gameGroup.POST("/new", h.startNewGame)
			gameGroup.GET("/state", h.currentState)
		}

		api.GET("/scenes/:id", h.viewScene)
		api.POST("/scenes/:id/ending", h.reachEnding)
		api.POST("/choices/:id", h.applyChoice)
		api.POST("/items/:id/pickup", h.pickupItem)
		api.GET("/inventory", h.viewInventory)
		api.GET("/endings", h.listEndings)
	}
	return r
}
