// Package api exposes the matching engine over HTTP. Authentication is
// external; callers arrive with identity headers set by the gateway.
package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/slotline/bookingd/internal/api/middleware"
	"github.com/slotline/bookingd/internal/engine"
)

type handlers struct {
	engine *engine.Engine
	logger *zap.Logger
}

// NewRouter builds the gin engine with all routes and middleware.
func NewRouter(eng *engine.Engine, env string, logger *zap.Logger) *gin.Engine {
	if env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	h := &handlers{engine: eng, logger: logger}

	v1 := r.Group("/api/v1")
	v1.Use(middleware.Actor())
	{
		v1.POST("/slots", h.markAvailable)
		v1.GET("/slots", h.listSlots)
		v1.POST("/slots/:id/cancel", h.cancelSlot)
		v1.POST("/slots/:id/complete", h.completeSlot)

		v1.POST("/requests", h.requestSlot)
		v1.GET("/requests", h.listRequests)
		v1.GET("/requests/:id", h.getRequest)
	}

	return r
}
