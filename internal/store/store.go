package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"machine-health-backend/internal/model"
)

// Store defines the interface for all database operations. All machine,
// alert, and log mutation is funneled through here; alert state changes
// use conditional updates so concurrent transitions serialize per alert
// and the loser of a race observes no effect.
type Store interface {
	DB() *gorm.DB

	UpsertMachines(ctx context.Context, machines []model.Machine) error
	ListMachines(ctx context.Context) ([]model.Machine, error)
	GetMachine(ctx context.Context, id string) (model.Machine, error)

	SaveReading(ctx context.Context, reading *model.SensorReading) error
	SensorHistory(ctx context.Context, machineID string, since time.Time) ([]model.SensorReading, error)

	CreateAlert(ctx context.Context, alert *model.Alert) error
	GetAlert(ctx context.Context, id string) (model.Alert, error)
	ListAlerts(ctx context.Context, filter AlertFilter) ([]model.Alert, error)
	OpenAlert(ctx context.Context, machineID string) (*model.Alert, error)
	AcknowledgeAlert(ctx context.Context, alertID, operatorID string, at time.Time) (bool, error)
	ResolveAlert(ctx context.Context, alertID string, res Resolution) (bool, error)
	EscalateOpenAlert(ctx context.Context, machineID string, severity model.Severity, message string) (bool, error)
	AlertStatistics(ctx context.Context) (Statistics, error)

	CreateMaintenanceLog(ctx context.Context, entry *model.MaintenanceLog) error
	ListMaintenanceLogs(ctx context.Context, machineID string, since time.Time) ([]model.MaintenanceLog, error)
	DeleteMaintenanceLog(ctx context.Context, id string) (bool, error)
}

// AlertFilter narrows ListAlerts results. Zero values mean "no filter".
type AlertFilter struct {
	MachineID  string
	State      model.AlertState
	OpenOnly   bool
	BySeverity bool // order critical first instead of newest first
}

// Resolution carries the audit metadata recorded when an alert is
// resolved.
type Resolution struct {
	OperatorID      string
	RootCause       string
	Notes           string
	DowntimeMinutes int
	At              time.Time
}

// Statistics is the read-side projection over the alert set used for
// summary displays.
type Statistics struct {
	ByState    map[model.AlertState]int `json:"alerts_by_state"`
	BySeverity map[model.Severity]int   `json:"alerts_by_severity"`
	Active     int                      `json:"active_alerts"`
	Open       int                      `json:"open_alerts"`
	Closed     int                      `json:"resolved_alerts"`
	Total      int                      `json:"total_alerts"`
	TotalLogs  int                      `json:"total_logs"`
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// UpsertMachines inserts or refreshes machine metadata from the feed in
// one batch.
func (s *gormStore) UpsertMachines(ctx context.Context, machines []model.Machine) error {
	if len(machines) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "type", "health_score", "rul_hours", "last_maintenance", "updated_at"}),
	}).Create(&machines).Error
}

func (s *gormStore) ListMachines(ctx context.Context) ([]model.Machine, error) {
	var machines []model.Machine
	if err := s.db.WithContext(ctx).Order("id").Find(&machines).Error; err != nil {
		return nil, fmt.Errorf("failed to list machines: %w", err)
	}
	return machines, nil
}

func (s *gormStore) GetMachine(ctx context.Context, id string) (model.Machine, error) {
	var machine model.Machine
	err := s.db.WithContext(ctx).First(&machine, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Machine{}, err
		}
		return model.Machine{}, fmt.Errorf("failed to get machine %s: %w", id, err)
	}
	return machine, nil
}

func (s *gormStore) SaveReading(ctx context.Context, reading *model.SensorReading) error {
	if err := s.db.WithContext(ctx).Create(reading).Error; err != nil {
		return fmt.Errorf("failed to save reading for machine %s: %w", reading.MachineID, err)
	}
	return nil
}

// SensorHistory returns readings for the machine observed at or after
// since, ordered oldest to newest.
func (s *gormStore) SensorHistory(ctx context.Context, machineID string, since time.Time) ([]model.SensorReading, error) {
	var readings []model.SensorReading
	err := s.db.WithContext(ctx).
		Where("machine_id = ? AND observed_at >= ?", machineID, since).
		Order("observed_at ASC").
		Find(&readings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sensor history for machine %s: %w", machineID, err)
	}
	return readings, nil
}

func (s *gormStore) CreateAlert(ctx context.Context, alert *model.Alert) error {
	if err := s.db.WithContext(ctx).Create(alert).Error; err != nil {
		return fmt.Errorf("failed to create alert for machine %s: %w", alert.MachineID, err)
	}
	return nil
}

func (s *gormStore) GetAlert(ctx context.Context, id string) (model.Alert, error) {
	var alert model.Alert
	err := s.db.WithContext(ctx).First(&alert, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Alert{}, err
		}
		return model.Alert{}, fmt.Errorf("failed to get alert %s: %w", id, err)
	}
	return alert, nil
}

func (s *gormStore) ListAlerts(ctx context.Context, filter AlertFilter) ([]model.Alert, error) {
	q := s.db.WithContext(ctx).Model(&model.Alert{})
	if filter.MachineID != "" {
		q = q.Where("machine_id = ?", filter.MachineID)
	}
	if filter.State != "" {
		q = q.Where("state = ?", filter.State)
	}
	if filter.OpenOnly {
		q = q.Where("state IN ?", []model.AlertState{model.AlertActive, model.AlertAcknowledged})
	}

	var alerts []model.Alert
	if err := q.Order("created_at DESC").Find(&alerts).Error; err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}

	if filter.BySeverity {
		sort.SliceStable(alerts, func(i, j int) bool {
			return alerts[i].Severity.Rank() < alerts[j].Severity.Rank()
		})
	}
	return alerts, nil
}

// OpenAlert returns the machine's ACTIVE or ACKNOWLEDGED alert, or nil if
// none exists. At most one open alert per machine is ever created.
func (s *gormStore) OpenAlert(ctx context.Context, machineID string) (*model.Alert, error) {
	var alert model.Alert
	err := s.db.WithContext(ctx).
		Where("machine_id = ? AND state IN ?", machineID,
			[]model.AlertState{model.AlertActive, model.AlertAcknowledged}).
		Order("created_at DESC").
		First(&alert).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check open alert for machine %s: %w", machineID, err)
	}
	return &alert, nil
}

// AcknowledgeAlert moves the alert from ACTIVE to ACKNOWLEDGED. The state
// guard in the WHERE clause makes the transition atomic: the returned
// bool is false when the alert was no longer ACTIVE at update time.
func (s *gormStore) AcknowledgeAlert(ctx context.Context, alertID, operatorID string, at time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&model.Alert{}).
		Where("id = ? AND state = ?", alertID, model.AlertActive).
		Updates(map[string]any{
			"state":           model.AlertAcknowledged,
			"acknowledged_by": operatorID,
			"acknowledged_at": at,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to acknowledge alert %s: %w", alertID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ResolveAlert moves the alert to RESOLVED from ACTIVE or ACKNOWLEDGED
// and writes the linked maintenance log in the same transaction, so a
// concurrent read never observes a resolved alert without its metadata.
func (s *gormStore) ResolveAlert(ctx context.Context, alertID string, res Resolution) (bool, error) {
	resolved := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var alert model.Alert
		if err := tx.First(&alert, "id = ?", alertID).Error; err != nil {
			return err
		}

		update := tx.Model(&model.Alert{}).
			Where("id = ? AND state IN ?", alertID,
				[]model.AlertState{model.AlertActive, model.AlertAcknowledged}).
			Updates(map[string]any{
				"state":            model.AlertResolved,
				"resolved_by":      res.OperatorID,
				"resolved_at":      res.At,
				"root_cause":       res.RootCause,
				"resolution_notes": res.Notes,
				"downtime_minutes": res.DowntimeMinutes,
			})
		if update.Error != nil {
			return fmt.Errorf("failed to resolve alert %s: %w", alertID, update.Error)
		}
		if update.RowsAffected == 0 {
			// Lost the race or already terminal; leave the alert untouched.
			return nil
		}

		entry := model.MaintenanceLog{
			ID:            "LOG-" + alertID,
			MachineID:     alert.MachineID,
			AlertID:       &alertID,
			Action:        res.RootCause,
			Performer:     res.OperatorID,
			PerformedAt:   res.At,
			DurationHours: float64(res.DowntimeMinutes) / 60,
			Notes:         res.Notes,
			Status:        model.LogCompleted,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("failed to create maintenance log for alert %s: %w", alertID, err)
		}

		resolved = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return resolved, nil
}

// EscalateOpenAlert raises the severity of the machine's open alert when
// its condition worsens further. Returns false when no open alert exists
// or it already carries the severity.
func (s *gormStore) EscalateOpenAlert(ctx context.Context, machineID string, severity model.Severity, message string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&model.Alert{}).
		Where("machine_id = ? AND state IN ? AND severity <> ?", machineID,
			[]model.AlertState{model.AlertActive, model.AlertAcknowledged}, severity).
		Updates(map[string]any{
			"severity": severity,
			"message":  message,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to escalate alert for machine %s: %w", machineID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// AlertStatistics aggregates alert counts by state and severity plus the
// maintenance log total. Purely a read-side projection.
func (s *gormStore) AlertStatistics(ctx context.Context) (Statistics, error) {
	stats := Statistics{
		ByState:    make(map[model.AlertState]int),
		BySeverity: make(map[model.Severity]int),
	}

	type stateRow struct {
		State model.AlertState
		Count int
	}
	var stateRows []stateRow
	if err := s.db.WithContext(ctx).Model(&model.Alert{}).
		Select("state, COUNT(*) as count").
		Group("state").
		Scan(&stateRows).Error; err != nil {
		return Statistics{}, fmt.Errorf("failed to aggregate alerts by state: %w", err)
	}
	for _, row := range stateRows {
		stats.ByState[row.State] = row.Count
		stats.Total += row.Count
	}

	type severityRow struct {
		Severity model.Severity
		Count    int
	}
	var severityRows []severityRow
	if err := s.db.WithContext(ctx).Model(&model.Alert{}).
		Select("severity, COUNT(*) as count").
		Group("severity").
		Scan(&severityRows).Error; err != nil {
		return Statistics{}, fmt.Errorf("failed to aggregate alerts by severity: %w", err)
	}
	for _, row := range severityRows {
		stats.BySeverity[row.Severity] = row.Count
	}

	stats.Active = stats.ByState[model.AlertActive]
	stats.Open = stats.Active + stats.ByState[model.AlertAcknowledged]
	stats.Closed = stats.ByState[model.AlertResolved]

	var logCount int64
	if err := s.db.WithContext(ctx).Model(&model.MaintenanceLog{}).Count(&logCount).Error; err != nil {
		return Statistics{}, fmt.Errorf("failed to count maintenance logs: %w", err)
	}
	stats.TotalLogs = int(logCount)

	return stats, nil
}

func (s *gormStore) CreateMaintenanceLog(ctx context.Context, entry *model.MaintenanceLog) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to create maintenance log: %w", err)
	}
	return nil
}

// ListMaintenanceLogs returns log entries performed at or after since,
// newest first, optionally scoped to one machine.
func (s *gormStore) ListMaintenanceLogs(ctx context.Context, machineID string, since time.Time) ([]model.MaintenanceLog, error) {
	q := s.db.WithContext(ctx).Where("performed_at >= ?", since)
	if machineID != "" {
		q = q.Where("machine_id = ?", machineID)
	}

	var logs []model.MaintenanceLog
	if err := q.Order("performed_at DESC").Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to list maintenance logs: %w", err)
	}
	return logs, nil
}

// DeleteMaintenanceLog hard-deletes a log entry. Unlike alerts, log
// entries are truly removable.
func (s *gormStore) DeleteMaintenanceLog(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Delete(&model.MaintenanceLog{}, "id = ?", id)
	if res.Error != nil {
		return false, fmt.Errorf("failed to delete maintenance log %s: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}
