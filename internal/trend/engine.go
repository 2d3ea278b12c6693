// Package trend keeps the per-machine latest reading and a bounded recent
// history window, and computes signed deltas between consecutive readings.
// Deltas are purely informational and carry no side effects.
package trend

import (
	"iter"
	"sync"
	"time"

	"machine-health-backend/internal/model"
)

// Deltas holds the signed difference per numeric metric between a
// machine's two most recent readings. A metric whose value is absent on
// either side contributes a zero delta.
type Deltas struct {
	Temperature float64 `json:"temperature"`
	VibrationX  float64 `json:"vibration_x"`
	VibrationY  float64 `json:"vibration_y"`
	Pressure    float64 `json:"pressure"`
	RPM         float64 `json:"rpm"`
	HealthScore float64 `json:"health_score"`
	RULHours    float64 `json:"rul_hours"`
}

type window struct {
	latest  *model.SensorReading
	history []model.SensorReading // ring, newest-last
}

// Engine is the keyed reading store. It is owned by the telemetry service
// and shared by handle with the classifier; nothing else mutates it.
// Safe for concurrent use.
type Engine struct {
	mu       sync.RWMutex
	capacity int
	machines map[string]*window
}

// NewEngine creates an Engine retaining at most capacity readings per
// machine.
func NewEngine(capacity int) *Engine {
	if capacity <= 0 {
		capacity = 60
	}
	return &Engine{
		capacity: capacity,
		machines: make(map[string]*window),
	}
}

// Observe records a new reading for its machine and returns the deltas
// against the previously retained reading. The first reading for a
// machine yields all-zero deltas.
func (e *Engine) Observe(r model.SensorReading) Deltas {
	e.mu.Lock()
	defer e.mu.Unlock()

	w, ok := e.machines[r.MachineID]
	if !ok {
		w = &window{history: make([]model.SensorReading, 0, e.capacity)}
		e.machines[r.MachineID] = w
	}

	var d Deltas
	if w.latest != nil {
		d = diff(w.latest, &r)
	}

	if len(w.history) >= e.capacity {
		w.history = w.history[1:]
	}
	w.history = append(w.history, r)
	w.latest = &w.history[len(w.history)-1]
	return d
}

// Latest returns the most recent reading for the machine, or false if
// none has been observed.
func (e *Engine) Latest(machineID string) (model.SensorReading, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	w, ok := e.machines[machineID]
	if !ok || w.latest == nil {
		return model.SensorReading{}, false
	}
	return *w.latest, true
}

// Recent returns up to limit readings for the machine observed within the
// given lookback, ordered oldest to newest. The sequence is lazy and
// single-use; if fewer readings qualify, all of them are yielded.
func (e *Engine) Recent(machineID string, limit int, within time.Duration) iter.Seq[model.SensorReading] {
	e.mu.RLock()
	w, ok := e.machines[machineID]
	var snapshot []model.SensorReading
	if ok {
		snapshot = make([]model.SensorReading, len(w.history))
		copy(snapshot, w.history)
	}
	e.mu.RUnlock()

	cutoff := time.Now().Add(-within)
	return func(yield func(model.SensorReading) bool) {
		// Find the oldest qualifying index so the newest `limit` readings
		// inside the window are yielded oldest-first.
		start := 0
		for start < len(snapshot) && snapshot[start].ObservedAt.Before(cutoff) {
			start++
		}
		if limit > 0 && len(snapshot)-start > limit {
			start = len(snapshot) - limit
		}
		for _, r := range snapshot[start:] {
			if !yield(r) {
				return
			}
		}
	}
}

func diff(prev, cur *model.SensorReading) Deltas {
	return Deltas{
		Temperature: deltaOf(prev.Temperature, cur.Temperature),
		VibrationX:  deltaOf(prev.VibrationX, cur.VibrationX),
		VibrationY:  deltaOf(prev.VibrationY, cur.VibrationY),
		Pressure:    deltaOf(prev.Pressure, cur.Pressure),
		RPM:         deltaOf(prev.RPM, cur.RPM),
		HealthScore: cur.HealthScore - prev.HealthScore,
		RULHours:    deltaOf(prev.RULHours, cur.RULHours),
	}
}

func deltaOf(prev, cur *float64) float64 {
	if prev == nil || cur == nil {
		return 0
	}
	return *cur - *prev
}
