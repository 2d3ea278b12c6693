// Package health maps machine health scores to discrete statuses and
// decides when a status change warrants a new alert.
package health

import "machine-health-backend/internal/model"

// Status is the derived condition of a machine. It is a pure function of
// the machine's current health score.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// Classification thresholds. A score of exactly 70 is healthy and exactly
// 40 is warning.
const (
	healthyThreshold  = 70.0
	criticalThreshold = 40.0
)

// Clamp bounds a raw health score to [0, 100].
func Clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Classify maps a health score to a status. The score is clamped before
// classification, so Classify is total over all float64 inputs.
func Classify(score float64) Status {
	s := Clamp(score)
	switch {
	case s >= healthyThreshold:
		return StatusHealthy
	case s >= criticalThreshold:
		return StatusWarning
	default:
		return StatusCritical
	}
}

// rank orders statuses by severity, worst last.
func rank(s Status) int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusWarning:
		return 1
	default:
		return 2
	}
}

// Worsened reports whether the move from prev to next enters warning or
// critical from a less severe status. Recovery never triggers anything:
// alerts are cleared only by explicit operator resolution.
func Worsened(prev, next Status) bool {
	return rank(next) > rank(prev) && next != StatusHealthy
}

// SeverityFor maps a degraded status to the severity of the alert it
// raises. Healthy has no alert severity and maps to info.
func SeverityFor(s Status) model.Severity {
	switch s {
	case StatusCritical:
		return model.SeverityCritical
	case StatusWarning:
		return model.SeverityWarning
	default:
		return model.SeverityInfo
	}
}
