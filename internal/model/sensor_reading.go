package model

import "time"

// SensorReading is one timestamped snapshot of a machine's sensors.
// Partial readings are expected: any sensor may be absent (nil).
// Rows are append-only; the newest reading per machine also lives in the
// in-memory trend window.
type SensorReading struct {
	ID          int64     `gorm:"autoIncrement;primaryKey" json:"-"`
	MachineID   string    `gorm:"size:64;not null;index:idx_machine_observed" json:"machine_id"`
	ObservedAt  time.Time `gorm:"not null;index:idx_machine_observed" json:"timestamp"`
	Temperature *float64  `json:"temperature"`
	VibrationX  *float64  `json:"vibration_x"`
	VibrationY  *float64  `json:"vibration_y"`
	Pressure    *float64  `json:"pressure"`
	RPM         *float64  `json:"rpm"`
	HealthScore float64   `gorm:"not null" json:"health_score"`
	RULHours    *float64  `json:"rul_hours"`
}
