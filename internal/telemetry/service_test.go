package telemetry

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"machine-health-backend/config"
	"machine-health-backend/internal/errs"
	"machine-health-backend/internal/model"
	"machine-health-backend/internal/store"
)

// stubSource feeds canned items into the pipeline.
type stubSource struct {
	items []FeedItem
	err   error
}

func (s *stubSource) Fetch(ctx context.Context) ([]FeedItem, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.items, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Ingest:     config.IngestConfig{Enabled: true, Interval: time.Minute, Timezone: "UTC"},
		WorkerPool: config.WorkerPoolConfig{Size: 16},
		History:    config.HistoryConfig{MaxSamples: 120, WindowMinutes: 60},
		Alerting:   config.AlertingConfig{MaxAlertsPerMachinePerMinute: 3},
	}
}

func newTestService(t *testing.T) (*Service, *stubSource, store.Store) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.Machine{}, &model.SensorReading{}, &model.Alert{},
		&model.MaintenanceLog{}, &model.PushSubscription{},
	))

	s := store.NewGormStore(db)
	source := &stubSource{}
	return NewService(testConfig(), s, source), source, s
}

func f64(v float64) *float64 { return &v }

func reading(machineID string, score float64) FeedItem {
	return FeedItem{
		MachineID:   machineID,
		MachineName: "Coolant Pump 1",
		Temperature: f64(70),
		VibrationX:  f64(0.2),
		VibrationY:  f64(0.3),
		Pressure:    f64(4.1),
		RPM:         f64(1500),
		HealthScore: score,
		RULHours:    f64(800),
	}
}

func TestDegradationPipelineRaisesAndEscalates(t *testing.T) {
	svc, source, s := newTestService(t)
	ctx := context.Background()

	// Healthy cycles raise nothing, including the drop from 85 to 72.
	for _, score := range []float64{85, 72} {
		source.items = []FeedItem{reading("PMP-001", score)}
		svc.IngestOnce(ctx)
	}
	alerts, err := s.ListAlerts(ctx, store.AlertFilter{})
	require.NoError(t, err)
	assert.Empty(t, alerts)

	// Crossing into warning raises one alert.
	source.items = []FeedItem{reading("PMP-001", 55)}
	svc.IngestOnce(ctx)

	alerts, err = s.ListAlerts(ctx, store.AlertFilter{})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, model.AlertActive, alerts[0].State)
	assert.Equal(t, model.SeverityWarning, alerts[0].Severity)
	assert.Equal(t, "PMP-001", alerts[0].MachineID)

	// Worsening further escalates the open alert instead of raising a
	// second one.
	source.items = []FeedItem{reading("PMP-001", 38)}
	svc.IngestOnce(ctx)

	alerts, err = s.ListAlerts(ctx, store.AlertFilter{})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, model.SeverityCritical, alerts[0].Severity)
}

func TestFirstReadingDegradedRaisesAlert(t *testing.T) {
	svc, source, s := newTestService(t)
	ctx := context.Background()

	source.items = []FeedItem{reading("MTR-044", 30)}
	svc.IngestOnce(ctx)

	alerts, err := s.ListAlerts(ctx, store.AlertFilter{MachineID: "MTR-044"})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, model.SeverityCritical, alerts[0].Severity)
}

func TestOpenAlertSuppressesDuplicates(t *testing.T) {
	svc, source, s := newTestService(t)
	ctx := context.Background()

	source.items = []FeedItem{reading("PMP-002", 55)}
	svc.IngestOnce(ctx)

	// Recovery does not resolve the alert, and degrading again while it is
	// still open must not create another.
	for _, score := range []float64{85, 55, 85, 55} {
		source.items = []FeedItem{reading("PMP-002", score)}
		svc.IngestOnce(ctx)
	}

	alerts, err := s.ListAlerts(ctx, store.AlertFilter{MachineID: "PMP-002"})
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
}

func TestAlertRateLimitPerMachine(t *testing.T) {
	svc, source, s := newTestService(t)
	ctx := context.Background()

	// Each iteration resolves the open alert and flips the machine back to
	// healthy, so every degradation would raise a fresh alert if not for
	// the per-machine limiter (burst of 3 per minute).
	for i := 0; i < 5; i++ {
		source.items = []FeedItem{reading("HVAC-009", 55)}
		svc.IngestOnce(ctx)

		open, err := s.OpenAlert(ctx, "HVAC-009")
		require.NoError(t, err)
		if open != nil {
			_, err = s.ResolveAlert(ctx, open.ID, store.Resolution{
				OperatorID: "OP-001", RootCause: "test", Notes: "test", At: time.Now().UTC(),
			})
			require.NoError(t, err)
		}

		source.items = []FeedItem{reading("HVAC-009", 85)}
		svc.IngestOnce(ctx)
	}

	alerts, err := s.ListAlerts(ctx, store.AlertFilter{MachineID: "HVAC-009"})
	require.NoError(t, err)
	assert.Len(t, alerts, 3)
}

// flakyStore makes alert creation fail a configurable number of times.
type flakyStore struct {
	store.Store
	failCreates int
}

func (f *flakyStore) CreateAlert(ctx context.Context, alert *model.Alert) error {
	if f.failCreates > 0 {
		f.failCreates--
		return fmt.Errorf("connection reset")
	}
	return f.Store.CreateAlert(ctx, alert)
}

func TestAlertRetriedAfterCreateFailure(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.Machine{}, &model.SensorReading{}, &model.Alert{},
		&model.MaintenanceLog{}, &model.PushSubscription{},
	))

	base := store.NewGormStore(db)
	flaky := &flakyStore{Store: base, failCreates: 1}
	source := &stubSource{}
	svc := NewService(testConfig(), flaky, source)
	ctx := context.Background()

	// The worsening is observed but the insert fails; the previous status
	// must not advance, or the degradation would be swallowed for good.
	source.items = []FeedItem{reading("PMP-001", 55)}
	svc.IngestOnce(ctx)

	alerts, err := base.ListAlerts(ctx, store.AlertFilter{})
	require.NoError(t, err)
	assert.Empty(t, alerts)

	// Same degraded reading next cycle; the alert is raised this time.
	svc.IngestOnce(ctx)

	alerts, err = base.ListAlerts(ctx, store.AlertFilter{})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, model.SeverityWarning, alerts[0].Severity)
}

func TestOverrideOverlayAndRestore(t *testing.T) {
	svc, source, s := newTestService(t)
	ctx := context.Background()

	source.items = []FeedItem{reading("PMP-001", 85)}
	svc.IngestOnce(ctx)

	require.NoError(t, svc.SetOverride(ctx, "PMP-001", Override{Temperature: f64(105)}))

	snap, err := svc.Snapshot(ctx, "PMP-001")
	require.NoError(t, err)
	assert.True(t, snap.OverrideActive)
	assert.Equal(t, 105.0, *snap.Temperature)
	// Non-overridden sensors keep their nominal values.
	assert.Equal(t, 1500.0, *snap.RPM)

	// The stored reading is untouched by the override.
	stored, err := s.SensorHistory(ctx, "PMP-001", time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, 70.0, *stored[0].Temperature)

	had, err := svc.ClearOverride(ctx, "PMP-001")
	require.NoError(t, err)
	assert.True(t, had)

	snap, err = svc.Snapshot(ctx, "PMP-001")
	require.NoError(t, err)
	assert.False(t, snap.OverrideActive)
	assert.Equal(t, 70.0, *snap.Temperature)
}

func TestOverrideValidation(t *testing.T) {
	svc, source, _ := newTestService(t)
	ctx := context.Background()

	source.items = []FeedItem{reading("PMP-001", 85)}
	svc.IngestOnce(ctx)

	err := svc.SetOverride(ctx, "PMP-001", Override{})
	assert.True(t, errs.IsValidation(err))

	err = svc.SetOverride(ctx, "NO-SUCH", Override{Temperature: f64(50)})
	assert.True(t, errs.IsNotFound(err))

	had, err := svc.ClearOverride(ctx, "PMP-001")
	require.NoError(t, err)
	assert.False(t, had)
}

func TestSourceFailureKeepsServingCachedState(t *testing.T) {
	svc, source, _ := newTestService(t)
	ctx := context.Background()

	source.items = []FeedItem{reading("PMP-001", 85)}
	svc.IngestOnce(ctx)

	source.err = fmt.Errorf("connection refused")
	svc.IngestOnce(ctx)

	status, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.SourceDegraded)

	// Reads still serve the last good cycle.
	snap, err := svc.Snapshot(ctx, "PMP-001")
	require.NoError(t, err)
	assert.Equal(t, 85.0, snap.HealthScore)

	// A successful cycle clears the degraded flag.
	source.err = nil
	svc.IngestOnce(ctx)
	status, err = svc.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.SourceDegraded)
}

func TestSnapshotUnknownMachineIsNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Snapshot(context.Background(), "NO-SUCH")
	assert.True(t, errs.IsNotFound(err))
}

func TestHistoryServedFromMemoryWindow(t *testing.T) {
	svc, source, _ := newTestService(t)
	ctx := context.Background()

	for _, score := range []float64{90, 80, 70, 60} {
		source.items = []FeedItem{reading("PMP-001", score)}
		svc.IngestOnce(ctx)
	}

	readings, err := svc.History(ctx, "PMP-001", 1, 3)
	require.NoError(t, err)
	require.Len(t, readings, 3)
	// Newest three, oldest first.
	assert.Equal(t, 80.0, readings[0].HealthScore)
	assert.Equal(t, 60.0, readings[2].HealthScore)
}

func TestMachinesCarryDerivedStatus(t *testing.T) {
	svc, source, _ := newTestService(t)
	ctx := context.Background()

	source.items = []FeedItem{
		reading("PMP-001", 85),
		reading("MTR-002", 55),
		reading("HVAC-003", 20),
	}
	svc.IngestOnce(ctx)

	views, err := svc.Machines(ctx)
	require.NoError(t, err)
	require.Len(t, views, 3)

	byID := make(map[string]MachineView)
	for _, v := range views {
		byID[v.ID] = v
	}
	assert.Equal(t, "healthy", string(byID["PMP-001"].Status))
	assert.Equal(t, "warning", string(byID["MTR-002"].Status))
	assert.Equal(t, "critical", string(byID["HVAC-003"].Status))
	assert.Equal(t, model.EquipmentPump, byID["PMP-001"].Type)
	assert.Equal(t, model.EquipmentMotor, byID["MTR-002"].Type)
	assert.Equal(t, model.EquipmentHVAC, byID["HVAC-003"].Type)
}
