package telemetry

import "machine-health-backend/internal/model"

// Override holds operator-supplied manual sensor values for one machine.
// Each field is optional and supersedes only the named sensor; fields
// left nil fall through to the nominal feed.
type Override struct {
	Temperature *float64 `json:"temperature,omitempty"`
	VibrationX  *float64 `json:"vibration_x,omitempty"`
	VibrationY  *float64 `json:"vibration_y,omitempty"`
	Pressure    *float64 `json:"pressure,omitempty"`
	RPM         *float64 `json:"rpm,omitempty"`
}

// Empty reports whether no sensor field is set.
func (o Override) Empty() bool {
	return o.Temperature == nil && o.VibrationX == nil && o.VibrationY == nil &&
		o.Pressure == nil && o.RPM == nil
}

// apply overlays the override onto a nominal reading. The stored reading
// is never modified; snapshots are built from a copy so clearing an
// override restores nominal values on the next read.
func (o Override) apply(r model.SensorReading) model.SensorReading {
	if o.Temperature != nil {
		r.Temperature = o.Temperature
	}
	if o.VibrationX != nil {
		r.VibrationX = o.VibrationX
	}
	if o.VibrationY != nil {
		r.VibrationY = o.VibrationY
	}
	if o.Pressure != nil {
		r.Pressure = o.Pressure
	}
	if o.RPM != nil {
		r.RPM = o.RPM
	}
	return r
}
