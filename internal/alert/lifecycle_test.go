package alert

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"machine-health-backend/internal/errs"
	"machine-health-backend/internal/model"
	"machine-health-backend/internal/store"
)

func newTestManager(t *testing.T) (*Manager, store.Store) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Alert{}, &model.MaintenanceLog{}))

	s := store.NewGormStore(db)
	return NewManager(s), s
}

func seedAlert(t *testing.T, s store.Store, id string) {
	t.Helper()
	err := s.CreateAlert(context.Background(), &model.Alert{
		ID:        id,
		MachineID: "PMP-001",
		Severity:  model.SeverityWarning,
		Message:   "Machine PMP-001 degraded to warning (health 55.0)",
		State:     model.AlertActive,
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
}

func TestAcknowledgeThenResolve(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()
	seedAlert(t, s, "ALERT-0001")

	acked, err := m.Acknowledge(ctx, "ALERT-0001", "OP-007")
	require.NoError(t, err)
	assert.Equal(t, model.AlertAcknowledged, acked.State)
	require.NotNil(t, acked.AcknowledgedBy)
	assert.Equal(t, "OP-007", *acked.AcknowledgedBy)
	assert.NotNil(t, acked.AcknowledgedAt)

	resolved, err := m.Resolve(ctx, "ALERT-0001", "OP-007", "Bearing wear", "Replaced bearing assembly and retested", 120)
	require.NoError(t, err)
	assert.Equal(t, model.AlertResolved, resolved.State)
	// Both acknowledgement and resolution metadata must survive.
	assert.NotNil(t, resolved.AcknowledgedBy)
	require.NotNil(t, resolved.ResolvedBy)
	assert.Equal(t, "OP-007", *resolved.ResolvedBy)
	require.NotNil(t, resolved.RootCause)
	assert.Equal(t, "Bearing wear", *resolved.RootCause)
	require.NotNil(t, resolved.DowntimeMinutes)
	assert.Equal(t, 120, *resolved.DowntimeMinutes)

	// Resolution produced the linked maintenance log.
	logs, err := s.ListMaintenanceLogs(ctx, "PMP-001", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "LOG-ALERT-0001", logs[0].ID)
	require.NotNil(t, logs[0].AlertID)
	assert.Equal(t, "ALERT-0001", *logs[0].AlertID)
	assert.Equal(t, model.LogCompleted, logs[0].Status)
}

func TestResolveDirectlyFromActive(t *testing.T) {
	m, s := newTestManager(t)
	seedAlert(t, s, "ALERT-0002")

	resolved, err := m.Resolve(context.Background(), "ALERT-0002", "OP-001", "Sensor fault", "Recalibrated temperature probe", 0)
	require.NoError(t, err)
	assert.Equal(t, model.AlertResolved, resolved.State)
	assert.Nil(t, resolved.AcknowledgedBy)
}

func TestResolveTwiceFailsAndKeepsFirstMetadata(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()
	seedAlert(t, s, "ALERT-0003")

	_, err := m.Resolve(ctx, "ALERT-0003", "OP-001", "Loose coupling", "Tightened and aligned coupling", 30)
	require.NoError(t, err)

	_, err = m.Resolve(ctx, "ALERT-0003", "OP-002", "Something else", "Should never be recorded", 99)
	require.Error(t, err)
	assert.True(t, errs.IsInvalidTransition(err))

	var te *errs.InvalidTransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, string(model.AlertResolved), te.From)

	// First resolution is untouched.
	alert, err := m.Get(ctx, "ALERT-0003")
	require.NoError(t, err)
	assert.Equal(t, "OP-001", *alert.ResolvedBy)
	assert.Equal(t, "Loose coupling", *alert.RootCause)
	assert.Equal(t, 30, *alert.DowntimeMinutes)
}

func TestAcknowledgeInvalidFromAcknowledgedOrResolved(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()
	seedAlert(t, s, "ALERT-0004")

	_, err := m.Acknowledge(ctx, "ALERT-0004", "OP-001")
	require.NoError(t, err)

	_, err = m.Acknowledge(ctx, "ALERT-0004", "OP-002")
	assert.True(t, errs.IsInvalidTransition(err))

	_, err = m.Resolve(ctx, "ALERT-0004", "OP-001", "Overheating", "Cleaned cooling fins", 15)
	require.NoError(t, err)

	_, err = m.Acknowledge(ctx, "ALERT-0004", "OP-003")
	assert.True(t, errs.IsInvalidTransition(err))
}

func TestAcknowledgeEmptyOperatorIsValidationError(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()
	seedAlert(t, s, "ALERT-0005")

	_, err := m.Acknowledge(ctx, "ALERT-0005", "")
	require.Error(t, err)
	assert.True(t, errs.IsValidation(err))

	// No state mutation occurred.
	alert, err := m.Get(ctx, "ALERT-0005")
	require.NoError(t, err)
	assert.Equal(t, model.AlertActive, alert.State)
}

func TestResolveValidation(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()
	seedAlert(t, s, "ALERT-0006")

	testCases := []struct {
		name            string
		operator        string
		rootCause       string
		notes           string
		downtimeMinutes int
		field           string
	}{
		{"empty operator", "", "cause", "notes", 0, "operator_id"},
		{"empty root cause", "OP-001", "", "notes", 0, "root_cause"},
		{"empty notes", "OP-001", "cause", "", 0, "resolution_notes"},
		{"negative downtime", "OP-001", "cause", "notes", -5, "downtime_minutes"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.Resolve(ctx, "ALERT-0006", tc.operator, tc.rootCause, tc.notes, tc.downtimeMinutes)
			require.Error(t, err)

			var ve *errs.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Field)
		})
	}

	alert, err := m.Get(ctx, "ALERT-0006")
	require.NoError(t, err)
	assert.Equal(t, model.AlertActive, alert.State)
}

func TestUnknownAlertIsNotFound(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.Acknowledge(context.Background(), "ALERT-NOPE", "OP-001")
	assert.True(t, errs.IsNotFound(err))

	_, err = m.Resolve(context.Background(), "ALERT-NOPE", "OP-001", "cause", "notes", 0)
	assert.True(t, errs.IsNotFound(err))
}

func TestDismissAsResolved(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()
	seedAlert(t, s, "ALERT-0007")

	dismissed, err := m.DismissAsResolved(ctx, "ALERT-0007")
	require.NoError(t, err)
	assert.Equal(t, model.AlertResolved, dismissed.State)
	assert.Equal(t, "system", *dismissed.ResolvedBy)
	assert.NotEmpty(t, *dismissed.RootCause)
	assert.NotEmpty(t, *dismissed.ResolutionNotes)

	// Dismissal is terminal like any resolution.
	_, err = m.DismissAsResolved(ctx, "ALERT-0007")
	assert.True(t, errs.IsInvalidTransition(err))
}

func TestListFiltersByState(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()
	seedAlert(t, s, "ALERT-0008")
	seedAlert(t, s, "ALERT-0009")

	_, err := m.Resolve(ctx, "ALERT-0008", "OP-001", "cause", "notes", 0)
	require.NoError(t, err)
	_, err = m.Resolve(ctx, "ALERT-0009", "OP-001", "cause", "notes", 0)
	require.NoError(t, err)

	active, err := m.List(ctx, store.AlertFilter{State: model.AlertActive})
	require.NoError(t, err)
	assert.Empty(t, active)

	resolved, err := m.List(ctx, store.AlertFilter{State: model.AlertResolved})
	require.NoError(t, err)
	assert.Len(t, resolved, 2)

	// Statistics totals equal the sum of per-state counts.
	stats, err := s.AlertStatistics(ctx)
	require.NoError(t, err)
	sum := 0
	for _, n := range stats.ByState {
		sum += n
	}
	assert.Equal(t, stats.Total, sum)
	assert.Equal(t, 2, stats.Closed)
	assert.Zero(t, stats.Open)
}
