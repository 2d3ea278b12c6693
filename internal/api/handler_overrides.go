package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"machine-health-backend/internal/telemetry"
)

// PutOverride handles PUT /api/machines/{machine_id}/override, replacing
// any previous override for the machine.
func (h *Handler) PutOverride(c *gin.Context) {
	var override telemetry.Override
	if err := c.ShouldBindJSON(&override); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	machineID := c.Param("machine_id")
	if err := h.telemetry.SetOverride(c.Request.Context(), machineID, override); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"machine_id": machineID, "override": override})
}

// DeleteOverride handles DELETE /api/machines/{machine_id}/override. The
// next snapshot reverts to nominal feed values immediately.
func (h *Handler) DeleteOverride(c *gin.Context) {
	machineID := c.Param("machine_id")
	had, err := h.telemetry.ClearOverride(c.Request.Context(), machineID)
	if err != nil {
		writeError(c, err)
		return
	}
	if !had {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no override set for machine " + machineID})
		return
	}
	c.Status(http.StatusNoContent)
}

// GetOverrides handles GET /api/overrides, listing all active overrides.
func (h *Handler) GetOverrides(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"overrides": h.telemetry.Overrides()})
}
