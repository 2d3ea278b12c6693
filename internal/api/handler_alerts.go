package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"machine-health-backend/internal/model"
	"machine-health-backend/internal/store"
)

// GetAlerts handles GET /api/alerts with optional machine_id, state, and
// open filters; sort=severity orders critical first instead of newest
// first.
func (h *Handler) GetAlerts(c *gin.Context) {
	state := model.AlertState(c.Query("state"))
	switch state {
	case "", model.AlertActive, model.AlertAcknowledged, model.AlertResolved:
	default:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown alert state: " + string(state)})
		return
	}

	alerts, err := h.alerts.List(c.Request.Context(), store.AlertFilter{
		MachineID:  c.Query("machine_id"),
		State:      state,
		OpenOnly:   c.Query("open") == "true",
		BySeverity: c.Query("sort") == "severity",
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(alerts), "alerts": alerts})
}

// GetAlert handles GET /api/alerts/{alert_id}.
func (h *Handler) GetAlert(c *gin.Context) {
	alert, err := h.alerts.Get(c.Request.Context(), c.Param("alert_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

type acknowledgeRequest struct {
	OperatorID string `json:"operator_id"`
}

// AcknowledgeAlert handles POST /api/alerts/{alert_id}/acknowledge.
func (h *Handler) AcknowledgeAlert(c *gin.Context) {
	var req acknowledgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	alert, err := h.alerts.Acknowledge(c.Request.Context(), c.Param("alert_id"), req.OperatorID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

type resolveRequest struct {
	OperatorID      string `json:"operator_id"`
	RootCause       string `json:"root_cause"`
	ResolutionNotes string `json:"resolution_notes"`
	DowntimeMinutes int    `json:"downtime_minutes"`
}

// ResolveAlert handles POST /api/alerts/{alert_id}/resolve.
func (h *Handler) ResolveAlert(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	alert, err := h.alerts.Resolve(c.Request.Context(), c.Param("alert_id"),
		req.OperatorID, req.RootCause, req.ResolutionNotes, req.DowntimeMinutes)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

// DismissAlert handles DELETE /api/alerts/{alert_id}. Alerts are never
// hard-deleted; dismissal resolves the alert with system-attributed
// metadata.
func (h *Handler) DismissAlert(c *gin.Context) {
	alert, err := h.alerts.DismissAsResolved(c.Request.Context(), c.Param("alert_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

// GetAlertStatistics handles GET /api/alerts/statistics.
func (h *Handler) GetAlertStatistics(c *gin.Context) {
	stats, err := h.store.AlertStatistics(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
