package model

import "time"

// LogStatus is the completion state of a maintenance action.
type LogStatus string

const (
	LogCompleted  LogStatus = "completed"
	LogInProgress LogStatus = "in_progress"
	LogScheduled  LogStatus = "scheduled"
)

// MaintenanceLog records a maintenance action performed on a machine.
// A log may be created as a byproduct of resolving an alert (AlertID set)
// but is separately addressable and, unlike alerts, truly deletable.
type MaintenanceLog struct {
	ID            string    `gorm:"primaryKey;size:64" json:"log_id"`
	MachineID     string    `gorm:"size:64;not null;index:idx_log_machine_created" json:"machine_id"`
	AlertID       *string   `gorm:"size:64" json:"alert_id,omitempty"`
	Action        string    `gorm:"size:512;not null" json:"action"`
	Performer     string    `gorm:"size:64;not null" json:"performed_by"`
	PerformedAt   time.Time `gorm:"not null;index:idx_log_machine_created" json:"performed_at"`
	DurationHours float64   `json:"duration_hours"`
	Notes         string    `gorm:"size:1024" json:"notes"`
	Status        LogStatus `gorm:"size:16;not null" json:"status"`
}
