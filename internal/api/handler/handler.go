// Package handler serves the admin HTTP API: health, status counters and a
// live counters feed over WebSocket.
package handler

import (
	"context"
	"time"

	"randomchat/backend/internal/logger"
	"randomchat/backend/internal/models"

	"github.com/gin-gonic/gin"
)

// StatsProvider returns the current status counters.
type StatsProvider interface {
	CountByStatus(ctx context.Context) (models.StatusCounts, error)
}

// Pinger checks the backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds the dependencies of the admin endpoints.
type Handler struct {
	Stats        StatsProvider
	DB           Pinger
	Auth         *Auth
	PushInterval time.Duration

	log *logger.Logger
}

func NewHandler(stats StatsProvider, db Pinger, auth *Auth, pushInterval time.Duration, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	if pushInterval <= 0 {
		pushInterval = 5 * time.Second
	}
	return &Handler{
		Stats:        stats,
		DB:           db,
		Auth:         auth,
		PushInterval: pushInterval,
		log:          log.With("service", "http"),
	}
}

// Router builds the gin engine with every route registered.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), h.requestLogger())

	r.GET("/healthz", h.Healthz)

	api := r.Group("/api", h.RequireAdmin())
	api.GET("/stats", h.GetStats)
	api.GET("/stats/ws", h.ServeStatsWebSocket)

	return r
}

func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.log.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
		)
	}
}
