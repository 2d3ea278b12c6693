// Package alert owns the alert lifecycle state machine: creation happens
// in the telemetry pipeline, every later transition goes through the
// Manager here. Transitions are strict; malformed requests are rejected,
// never coerced.
package alert

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"machine-health-backend/internal/errs"
	"machine-health-backend/internal/model"
	"machine-health-backend/internal/store"
)

// Dismissal is modeled as a resolution attributed to the system operator,
// preserving the invariant that alerts are never hard-deleted.
const (
	systemOperator     = "system"
	dismissedRootCause = "Dismissed by operator"
	dismissedNotes     = "Alert dismissed from the console without a recorded investigation."
)

// Manager performs alert state transitions against the store.
type Manager struct {
	store store.Store
}

// NewManager creates a lifecycle manager backed by the given store.
func NewManager(s store.Store) *Manager {
	return &Manager{store: s}
}

// Acknowledge moves an ACTIVE alert to ACKNOWLEDGED, recording the
// operator and timestamp. Valid only from ACTIVE.
func (m *Manager) Acknowledge(ctx context.Context, alertID, operatorID string) (model.Alert, error) {
	if operatorID == "" {
		return model.Alert{}, errs.Validation("operator_id", "must not be empty")
	}

	if _, err := m.get(ctx, alertID); err != nil {
		return model.Alert{}, err
	}

	ok, err := m.store.AcknowledgeAlert(ctx, alertID, operatorID, time.Now().UTC())
	if err != nil {
		return model.Alert{}, err
	}
	if !ok {
		return model.Alert{}, m.invalidTransition(ctx, alertID)
	}
	return m.get(ctx, alertID)
}

// Resolve moves an alert to RESOLVED from ACTIVE or ACKNOWLEDGED,
// recording the full resolution metadata and emitting a maintenance log
// entry linked to the alert's machine. RESOLVED is terminal.
func (m *Manager) Resolve(ctx context.Context, alertID, operatorID, rootCause, notes string, downtimeMinutes int) (model.Alert, error) {
	switch {
	case operatorID == "":
		return model.Alert{}, errs.Validation("operator_id", "must not be empty")
	case rootCause == "":
		return model.Alert{}, errs.Validation("root_cause", "must not be empty")
	case notes == "":
		return model.Alert{}, errs.Validation("resolution_notes", "must not be empty")
	case downtimeMinutes < 0:
		return model.Alert{}, errs.Validation("downtime_minutes", "must not be negative")
	}

	if _, err := m.get(ctx, alertID); err != nil {
		return model.Alert{}, err
	}

	ok, err := m.store.ResolveAlert(ctx, alertID, store.Resolution{
		OperatorID:      operatorID,
		RootCause:       rootCause,
		Notes:           notes,
		DowntimeMinutes: downtimeMinutes,
		At:              time.Now().UTC(),
	})
	if err != nil {
		return model.Alert{}, err
	}
	if !ok {
		return model.Alert{}, m.invalidTransition(ctx, alertID)
	}
	return m.get(ctx, alertID)
}

// DismissAsResolved routes a console "delete" through Resolve with
// system-attributed audit fields.
func (m *Manager) DismissAsResolved(ctx context.Context, alertID string) (model.Alert, error) {
	return m.Resolve(ctx, alertID, systemOperator, dismissedRootCause, dismissedNotes, 0)
}

// Get returns a single alert by id.
func (m *Manager) Get(ctx context.Context, alertID string) (model.Alert, error) {
	return m.get(ctx, alertID)
}

// List returns alerts matching the filter; zero values mean no filter.
// Listing is idempotent and side-effect-free.
func (m *Manager) List(ctx context.Context, filter store.AlertFilter) ([]model.Alert, error) {
	return m.store.ListAlerts(ctx, filter)
}

func (m *Manager) get(ctx context.Context, alertID string) (model.Alert, error) {
	alert, err := m.store.GetAlert(ctx, alertID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Alert{}, errs.NotFound("alert", alertID)
	}
	return alert, err
}

// invalidTransition builds the error for a guarded update that matched no
// row: the alert exists but its current state forbids the move.
func (m *Manager) invalidTransition(ctx context.Context, alertID string) error {
	from := "unknown"
	if alert, err := m.store.GetAlert(ctx, alertID); err == nil {
		from = string(alert.State)
	}
	return &errs.InvalidTransitionError{AlertID: alertID, From: from}
}
