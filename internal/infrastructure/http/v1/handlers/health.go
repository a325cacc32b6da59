// Package handlers provides HTTP request handlers.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"backoffice/internal/infrastructure/storage/postgres"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// poolStatser is implemented by the Postgres pool.
type poolStatser interface {
	Stats() postgres.PoolStats
}

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	version string
	store   string
	pinger  Pinger
}

// NewHealthHandler creates a health handler. A nil pinger means the in-memory store.
func NewHealthHandler(version string, pinger Pinger) *HealthHandler {
	store := "postgres"
	if pinger == nil {
		store = "memory"
	}
	return &HealthHandler{version: version, store: store, pinger: pinger}
}

// Live handles liveness probe (is the process alive?).
// GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Ready handles readiness probe (is the service ready to accept traffic?).
// GET /health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	if h.pinger != nil {
		if err := h.pinger.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "error",
				"checks": map[string]string{
					"database": "unhealthy: " + err.Error(),
				},
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"checks": map[string]string{
			"database": "healthy",
		},
	})
}

// Info returns application information.
// GET /health/info
func (h *HealthHandler) Info(c *gin.Context) {
	info := gin.H{
		"app":     "backoffice",
		"version": h.version,
		"store":   h.store,
	}
	if s, ok := h.pinger.(poolStatser); ok {
		info["pool"] = s.Stats()
	}
	c.JSON(http.StatusOK, info)
}
