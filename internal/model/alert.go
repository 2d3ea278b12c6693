package model

import "time"

// Severity is the urgency ranking of an alert, independent of its state.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Rank orders severities for summary listings, most urgent first.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityWarning:
		return 1
	default:
		return 2
	}
}

// AlertState is the lifecycle stage of an alert. Transitions are
// monotonic: ACTIVE -> ACKNOWLEDGED -> RESOLVED, or ACTIVE -> RESOLVED.
// RESOLVED is terminal.
type AlertState string

const (
	AlertActive       AlertState = "ACTIVE"
	AlertAcknowledged AlertState = "ACKNOWLEDGED"
	AlertResolved     AlertState = "RESOLVED"
)

// Alert is one alert instance raised by the health classifier.
// Alerts are never deleted; dismissal routes through resolution.
type Alert struct {
	ID              string     `gorm:"primaryKey;size:64" json:"alert_id"`
	MachineID       string     `gorm:"size:64;not null;index:idx_alert_machine_state" json:"machine_id"`
	Severity        Severity   `gorm:"size:16;not null" json:"severity"`
	Message         string     `gorm:"size:512;not null" json:"message"`
	State           AlertState `gorm:"size:16;not null;index:idx_alert_machine_state;index" json:"state"`
	CreatedAt       time.Time  `gorm:"not null;index" json:"created_at"`
	AcknowledgedBy  *string    `gorm:"size:64" json:"acknowledged_by,omitempty"`
	AcknowledgedAt  *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedBy      *string    `gorm:"size:64" json:"resolved_by,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	RootCause       *string    `gorm:"size:512" json:"root_cause,omitempty"`
	ResolutionNotes *string    `gorm:"size:1024" json:"resolution_notes,omitempty"`
	DowntimeMinutes *int       `json:"downtime_minutes,omitempty"`
}

// Open reports whether the alert still requires operator attention.
func (a *Alert) Open() bool {
	return a.State == AlertActive || a.State == AlertAcknowledged
}
