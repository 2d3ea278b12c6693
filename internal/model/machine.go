package model

import "time"

// EquipmentType is the recognized class of a monitored machine.
type EquipmentType string

const (
	EquipmentPump  EquipmentType = "Pump"
	EquipmentMotor EquipmentType = "Motor"
	EquipmentHVAC  EquipmentType = "HVAC"
	EquipmentOther EquipmentType = "Other"
)

// Machine represents a monitored machine's basic information.
// Its status is always derived from HealthScore and never stored.
type Machine struct {
	ID              string        `gorm:"primaryKey;size:64" json:"machine_id"` // Upstream machine code, e.g. "PMP-001"
	DisplayName     string        `gorm:"size:256;not null" json:"machine_name"`
	Type            EquipmentType `gorm:"size:32;not null" json:"machine_type"`
	HealthScore     float64       `gorm:"not null" json:"health_score"`
	RULHours        *float64      `json:"rul_hours"`
	LastMaintenance *time.Time    `json:"last_maintenance"`
	CreatedAt       time.Time     `json:"-"`
	UpdatedAt       time.Time     `json:"-"`
}
