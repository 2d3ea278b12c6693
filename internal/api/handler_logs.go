package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"machine-health-backend/internal/errs"
	"machine-health-backend/internal/model"
)

// GetMaintenanceLogs handles GET /api/logs with optional machine_id and
// days query parameters.
func (h *Handler) GetMaintenanceLogs(c *gin.Context) {
	days, err := intQuery(c, "days", 30)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "days must be a positive integer"})
		return
	}

	since := time.Now().UTC().AddDate(0, 0, -days)
	logs, err := h.store.ListMaintenanceLogs(c.Request.Context(), c.Query("machine_id"), since)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(logs), "logs": logs})
}

type createLogRequest struct {
	MachineID     string  `json:"machine_id" binding:"required"`
	Action        string  `json:"action" binding:"required"`
	PerformedBy   string  `json:"performed_by" binding:"required"`
	DurationHours float64 `json:"duration_hours"`
	Notes         string  `json:"notes"`
	Status        string  `json:"status"`
}

// CreateMaintenanceLog handles POST /api/logs for maintenance recorded
// outside alert resolution (scheduled work, inspections).
func (h *Handler) CreateMaintenanceLog(c *gin.Context) {
	var req createLogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.store.GetMachine(c.Request.Context(), req.MachineID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = errs.NotFound("machine", req.MachineID)
		}
		writeError(c, err)
		return
	}

	status := model.LogStatus(req.Status)
	switch status {
	case "":
		status = model.LogCompleted
	case model.LogCompleted, model.LogInProgress, model.LogScheduled:
	default:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown log status: " + req.Status})
		return
	}

	id := uuid.New()
	entry := model.MaintenanceLog{
		ID:            fmt.Sprintf("LOG-%X", id[:4]),
		MachineID:     req.MachineID,
		Action:        req.Action,
		Performer:     req.PerformedBy,
		PerformedAt:   time.Now().UTC(),
		DurationHours: req.DurationHours,
		Notes:         req.Notes,
		Status:        status,
	}
	if err := h.store.CreateMaintenanceLog(c.Request.Context(), &entry); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

// DeleteMaintenanceLog handles DELETE /api/logs/{log_id}. Unlike alerts,
// log entries are hard-deleted.
func (h *Handler) DeleteMaintenanceLog(c *gin.Context) {
	logID := c.Param("log_id")
	deleted, err := h.store.DeleteMaintenanceLog(c.Request.Context(), logID)
	if err != nil {
		writeError(c, err)
		return
	}
	if !deleted {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("log %q not found", logID)})
		return
	}
	c.Status(http.StatusNoContent)
}
