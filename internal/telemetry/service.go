// Package telemetry is the boundary component of the pipeline: it pulls
// the nominal feed, funnels every reading through the health classifier
// and delta engine, owns the manual override registry, and assembles the
// read-side views served by the API.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"machine-health-backend/config"
	"machine-health-backend/internal/errs"
	"machine-health-backend/internal/health"
	"machine-health-backend/internal/model"
	"machine-health-backend/internal/notification"
	"machine-health-backend/internal/parse"
	"machine-health-backend/internal/store"
	"machine-health-backend/internal/trend"
)

// MachineView is the fleet-listing projection of one machine.
type MachineView struct {
	model.Machine
	Status         health.Status `json:"status"`
	OverrideActive bool          `json:"manual_override"`
}

// Snapshot is the current effective state of one machine: its latest
// nominal reading with the active override overlaid, plus the deltas
// against the previous reading.
type Snapshot struct {
	MachineID      string        `json:"machine_id"`
	ObservedAt     time.Time     `json:"timestamp"`
	Temperature    *float64      `json:"temperature"`
	VibrationX     *float64      `json:"vibration_x"`
	VibrationY     *float64      `json:"vibration_y"`
	Pressure       *float64      `json:"pressure"`
	RPM            *float64      `json:"rpm"`
	HealthScore    float64       `json:"health_score"`
	RULHours       *float64      `json:"rul_hours"`
	Status         health.Status `json:"status"`
	Deltas         trend.Deltas  `json:"deltas"`
	OverrideActive bool          `json:"manual_override"`
}

// ComponentStatus summarizes pipeline health for the deep health check.
type ComponentStatus struct {
	SourceDegraded bool      `json:"source_degraded"`
	Machines       int       `json:"machines"`
	LastIngestAt   time.Time `json:"last_ingest_at"`
}

// Service orchestrates ingestion and serves derived state. Ingestion for
// the whole fleet runs on a single goroutine, so classification for a
// given machine always observes a consistent previous status. Reads are
// concurrent.
type Service struct {
	cfg        *config.Config
	store      store.Store
	source     Source
	trends     *trend.Engine
	workerPool *notification.WorkerPool

	mu         sync.RWMutex
	overrides  map[string]Override
	lastDeltas map[string]trend.Deltas
	prevStatus map[string]health.Status
	limiters   map[string]*rate.Limiter
	degraded   bool
	lastIngest time.Time
}

// NewService creates and initializes the telemetry service.
func NewService(cfg *config.Config, s store.Store, source Source) *Service {
	webpushOptions := webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}

	return &Service{
		cfg:        cfg,
		store:      s,
		source:     source,
		trends:     trend.NewEngine(cfg.History.MaxSamples),
		workerPool: notification.NewWorkerPool(cfg.WorkerPool.Size, s.DB(), &webpushOptions),
		overrides:  make(map[string]Override),
		lastDeltas: make(map[string]trend.Deltas),
		prevStatus: make(map[string]health.Status),
		limiters:   make(map[string]*rate.Limiter),
	}
}

// Run starts the ingestion loop until the context is cancelled.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Ingest.Enabled {
		log.Println("Telemetry ingestion is disabled. Not starting.")
		return
	}
	log.Println("Starting telemetry service...")

	s.workerPool.Start(ctx)

	s.IngestOnce(ctx)

	timer := time.NewTimer(s.cfg.Ingest.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Telemetry service shutting down.")
			return
		case <-timer.C:
			s.IngestOnce(ctx)
			timer.Reset(s.cfg.Ingest.Interval)
		}
	}
}

// IngestOnce performs a single ingestion cycle: fetch the feed, refresh
// machine metadata, record readings, classify, and raise alerts. On fetch
// failure the previous cycle's state stays cached and reads keep serving
// it (stale-but-available).
func (s *Service) IngestOnce(ctx context.Context) {
	items, err := s.source.Fetch(ctx)
	if err != nil {
		log.Printf("Error fetching telemetry feed: %v. Serving cached state.", err)
		s.mu.Lock()
		s.degraded = true
		s.mu.Unlock()
		return
	}

	now := time.Now().UTC()

	machines := make([]model.Machine, 0, len(items))
	for _, item := range items {
		machines = append(machines, s.prepareMachine(item))
	}
	if err := s.store.UpsertMachines(ctx, machines); err != nil {
		log.Printf("Error upserting machines: %v", err)
		return
	}

	created := 0
	for _, item := range items {
		alertID, err := s.ingestReading(ctx, item, now)
		if err != nil {
			log.Printf("Error ingesting reading for machine %s: %v", item.MachineID, err)
			continue
		}
		if alertID != "" {
			s.workerPool.Dispatch(alertID)
			created++
		}
	}

	s.mu.Lock()
	s.degraded = false
	s.lastIngest = now
	s.mu.Unlock()

	if created > 0 {
		log.Printf("Ingest cycle finished: %d readings, %d new alerts", len(items), created)
	}
}

// ingestReading runs one machine's reading through the pipeline and
// returns the id of the alert it raised, if any.
func (s *Service) ingestReading(ctx context.Context, item FeedItem, now time.Time) (string, error) {
	reading := model.SensorReading{
		MachineID:   item.MachineID,
		ObservedAt:  s.parseTimestamp(item.Timestamp, now),
		Temperature: item.Temperature,
		VibrationX:  item.VibrationX,
		VibrationY:  item.VibrationY,
		Pressure:    item.Pressure,
		RPM:         item.RPM,
		HealthScore: health.Clamp(item.HealthScore),
		RULHours:    item.RULHours,
	}

	deltas := s.trends.Observe(reading)
	if err := s.store.SaveReading(ctx, &reading); err != nil {
		return "", err
	}

	status := health.Classify(reading.HealthScore)

	s.mu.Lock()
	s.lastDeltas[item.MachineID] = deltas
	prev, seen := s.prevStatus[item.MachineID]
	if !seen {
		// A machine first observed in a degraded state should still alert.
		prev = health.StatusHealthy
	}
	s.mu.Unlock()

	var alertID string
	if health.Worsened(prev, status) {
		var err error
		alertID, err = s.raiseAlert(ctx, item.MachineID, status, reading.HealthScore)
		if err != nil {
			// Keep the old previous status so the next cycle still sees the
			// worsening and retries the alert.
			return "", err
		}
	}

	s.mu.Lock()
	s.prevStatus[item.MachineID] = status
	s.mu.Unlock()
	return alertID, nil
}

// raiseAlert creates a new alert for a worsening machine unless one is
// already open for it; a further worsening escalates the open alert's
// severity in place. One open alert per machine is the dedup rule.
func (s *Service) raiseAlert(ctx context.Context, machineID string, status health.Status, score float64) (string, error) {
	severity := health.SeverityFor(status)
	message := fmt.Sprintf("Machine %s degraded to %s (health %.1f)", machineID, status, score)

	open, err := s.store.OpenAlert(ctx, machineID)
	if err != nil {
		return "", err
	}
	if open != nil {
		if severity.Rank() < open.Severity.Rank() {
			if _, err := s.store.EscalateOpenAlert(ctx, machineID, severity, message); err != nil {
				return "", err
			}
			log.Printf("Escalated alert %s to %s for machine %s", open.ID, severity, machineID)
		}
		return "", nil
	}

	if !s.alertLimiter(machineID).Allow() {
		log.Printf("Alert rate limit hit for machine %s; suppressing", machineID)
		return "", nil
	}

	id := uuid.New()
	alert := model.Alert{
		ID:        fmt.Sprintf("ALERT-%X", id[:4]),
		MachineID: machineID,
		Severity:  severity,
		Message:   message,
		State:     model.AlertActive,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateAlert(ctx, &alert); err != nil {
		return "", err
	}
	log.Printf("Alert created: %s - %s", alert.ID, alert.Message)
	return alert.ID, nil
}

// alertLimiter returns the per-machine alert creation limiter.
func (s *Service) alertLimiter(machineID string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.limiters[machineID]
	if !ok {
		perMinute := s.cfg.Alerting.MaxAlertsPerMachinePerMinute
		l = rate.NewLimiter(rate.Limit(perMinute/60), int(perMinute))
		s.limiters[machineID] = l
	}
	return l
}

func (s *Service) prepareMachine(item FeedItem) model.Machine {
	machine := model.Machine{
		ID:          item.MachineID,
		DisplayName: item.MachineName,
		Type:        model.EquipmentOther,
		HealthScore: health.Clamp(item.HealthScore),
		RULHours:    item.RULHours,
	}
	if machine.DisplayName == "" {
		machine.DisplayName = item.MachineID
	}

	if parsed, err := parse.ParseCode(item.MachineID); err == nil {
		machine.Type = parsed.Type
	} else {
		log.Printf("Warning: could not parse machine code %q: %v", item.MachineID, err)
	}

	if item.LastMaintenance != nil {
		if ts := s.parseTimestampPtr(item.LastMaintenance); ts != nil {
			machine.LastMaintenance = ts
		}
	}
	return machine
}

// parseTimestamp converts the feed's timestamp string into a time.Time,
// respecting the configured timezone. Missing or malformed timestamps
// fall back to the cycle time rather than failing the reading.
func (s *Service) parseTimestamp(tsStr *string, fallback time.Time) time.Time {
	if ts := s.parseTimestampPtr(tsStr); ts != nil {
		return *ts
	}
	return fallback
}

func (s *Service) parseTimestampPtr(tsStr *string) *time.Time {
	if tsStr == nil || *tsStr == "" {
		return nil
	}

	loc := time.UTC
	if s.cfg.Ingest.Timezone != "" {
		l, err := time.LoadLocation(s.cfg.Ingest.Timezone)
		if err != nil {
			log.Printf("Warning: failed to load timezone %q: %v", s.cfg.Ingest.Timezone, err)
		} else {
			loc = l
		}
	}

	layout := "2006-01-02 15:04:05" // The layout of feed timestamps
	parsed, err := time.ParseInLocation(layout, *tsStr, loc)
	if err != nil {
		log.Printf("Warning: failed to parse timestamp %q: %v", *tsStr, err)
		return nil
	}
	return &parsed
}

// Machines lists the fleet with derived statuses.
func (s *Service) Machines(ctx context.Context) ([]MachineView, error) {
	machines, err := s.store.ListMachines(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	views := make([]MachineView, 0, len(machines))
	for _, m := range machines {
		_, hasOverride := s.overrides[m.ID]
		views = append(views, MachineView{
			Machine:        m,
			Status:         health.Classify(m.HealthScore),
			OverrideActive: hasOverride,
		})
	}
	return views, nil
}

// Snapshot returns the machine's current effective sensor state. When no
// reading is cached yet and the source is down, the failure is surfaced
// as UpstreamUnavailable rather than an empty snapshot.
func (s *Service) Snapshot(ctx context.Context, machineID string) (Snapshot, error) {
	reading, ok := s.trends.Latest(machineID)
	if !ok {
		if _, err := s.machineExists(ctx, machineID); err != nil {
			return Snapshot{}, err
		}
		return Snapshot{}, errs.ErrUpstreamUnavailable
	}

	s.mu.RLock()
	override, hasOverride := s.overrides[machineID]
	deltas := s.lastDeltas[machineID]
	s.mu.RUnlock()

	effective := reading
	if hasOverride {
		effective = override.apply(reading)
	}

	return Snapshot{
		MachineID:      machineID,
		ObservedAt:     effective.ObservedAt,
		Temperature:    effective.Temperature,
		VibrationX:     effective.VibrationX,
		VibrationY:     effective.VibrationY,
		Pressure:       effective.Pressure,
		RPM:            effective.RPM,
		HealthScore:    effective.HealthScore,
		RULHours:       effective.RULHours,
		Status:         health.Classify(effective.HealthScore),
		Deltas:         deltas,
		OverrideActive: hasOverride,
	}, nil
}

// History returns up to limit readings within the lookback, oldest to
// newest. Lookbacks inside the in-memory window are served from the
// trend engine; longer ones hit the database with stride downsampling.
func (s *Service) History(ctx context.Context, machineID string, hours, limit int) ([]model.SensorReading, error) {
	if _, err := s.machineExists(ctx, machineID); err != nil {
		return nil, err
	}
	if hours <= 0 {
		hours = 1
	}
	if limit <= 0 {
		limit = 60
	}

	lookback := time.Duration(hours) * time.Hour
	if lookback <= time.Duration(s.cfg.History.WindowMinutes)*time.Minute {
		readings := make([]model.SensorReading, 0, limit)
		for r := range s.trends.Recent(machineID, limit, lookback) {
			readings = append(readings, r)
		}
		return readings, nil
	}

	readings, err := s.store.SensorHistory(ctx, machineID, time.Now().UTC().Add(-lookback))
	if err != nil {
		return nil, err
	}
	if len(readings) > limit {
		step := len(readings) / limit
		sampled := make([]model.SensorReading, 0, limit)
		for i := 0; i < len(readings) && len(sampled) < limit; i += step {
			sampled = append(sampled, readings[i])
		}
		readings = sampled
	}
	return readings, nil
}

// SetOverride registers manual sensor values for the machine, replacing
// any previous override.
func (s *Service) SetOverride(ctx context.Context, machineID string, override Override) error {
	if override.Empty() {
		return errs.Validation("override", "at least one sensor field is required")
	}
	if _, err := s.machineExists(ctx, machineID); err != nil {
		return err
	}

	s.mu.Lock()
	s.overrides[machineID] = override
	s.mu.Unlock()

	log.Printf("Manual override set for machine %s", machineID)
	return nil
}

// ClearOverride removes the machine's override. The returned bool
// reports whether one was set.
func (s *Service) ClearOverride(ctx context.Context, machineID string) (bool, error) {
	if _, err := s.machineExists(ctx, machineID); err != nil {
		return false, err
	}

	s.mu.Lock()
	_, had := s.overrides[machineID]
	delete(s.overrides, machineID)
	s.mu.Unlock()

	if had {
		log.Printf("Manual override cleared for machine %s", machineID)
	}
	return had, nil
}

// Overrides returns a copy of the active override map.
func (s *Service) Overrides() map[string]Override {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Override, len(s.overrides))
	for id, o := range s.overrides {
		out[id] = o
	}
	return out
}

// Status reports pipeline component health for the deep health check.
func (s *Service) Status(ctx context.Context) (ComponentStatus, error) {
	machines, err := s.store.ListMachines(ctx)
	if err != nil {
		return ComponentStatus{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return ComponentStatus{
		SourceDegraded: s.degraded,
		Machines:       len(machines),
		LastIngestAt:   s.lastIngest,
	}, nil
}

func (s *Service) machineExists(ctx context.Context, machineID string) (model.Machine, error) {
	machine, err := s.store.GetMachine(ctx, machineID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Machine{}, errs.NotFound("machine", machineID)
	}
	return machine, err
}
