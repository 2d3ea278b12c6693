package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// GetMachines handles GET /api/machines. Each machine carries its derived
// status alongside the stored metadata.
func (h *Handler) GetMachines(c *gin.Context) {
	machines, err := h.telemetry.Machines(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, machines)
}

// GetSnapshot handles GET /api/machines/{machine_id}/snapshot: the latest
// effective reading with any manual override applied and deltas against
// the previous reading.
func (h *Handler) GetSnapshot(c *gin.Context) {
	snapshot, err := h.telemetry.Snapshot(c.Request.Context(), c.Param("machine_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// GetHistory handles GET /api/machines/{machine_id}/history with optional
// hours and limit query parameters.
func (h *Handler) GetHistory(c *gin.Context) {
	hours, err := intQuery(c, "hours", 1)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "hours must be a positive integer"})
		return
	}
	limit, err := intQuery(c, "limit", 60)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}

	machineID := c.Param("machine_id")
	readings, err := h.telemetry.History(c.Request.Context(), machineID, hours, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"machine_id": machineID,
		"count":      len(readings),
		"readings":   readings,
	})
}

// intQuery parses a positive integer query parameter with a default.
func intQuery(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, strconv.ErrSyntax
	}
	return v, nil
}
