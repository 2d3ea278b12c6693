package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetHealth handles GET /api/health: a deep check covering the database
// connection and the ingestion pipeline. A degraded feed reports 200 with
// degraded status because cached reads still work; a dead database is 503.
func (h *Handler) GetHealth(c *gin.Context) {
	sqlDB, err := h.store.DB().DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"database": "unreachable",
			"error":    err.Error(),
		})
		return
	}

	status, err := h.telemetry.Status(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}

	overall := "ok"
	if status.SourceDegraded {
		overall = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   overall,
		"database": "ok",
		"pipeline": status,
	})
}
