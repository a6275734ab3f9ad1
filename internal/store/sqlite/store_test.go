package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vindstrom/solarctl/internal/core/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "solarctl.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSeedCorrectionMatrixCoversFeb29(t *testing.T) {
	assert := assert.New(t)
	s := newTestStore(t)

	assert.NoError(s.SeedCorrectionMatrix())

	cell, err := s.GetCorrectionCell(2, 29, 12)
	assert.NoError(err)
	assert.NotNil(cell)
	assert.Equal(1.0, cell.AvgCorr)

	// seeding twice must not duplicate or disturb existing rows
	assert.NoError(s.SeedCorrectionMatrix())
	cell2, err := s.GetCorrectionCell(2, 29, 12)
	assert.NoError(err)
	assert.Equal(cell.Count, cell2.Count)
}

func TestUpsertIrradianceThenForecastMergeIntoOneReading(t *testing.T) {
	assert := assert.New(t)
	s := newTestStore(t)

	hourTS := "2026-06-15T12:00"
	assert.NoError(s.UpsertIrradiance(hourTS, 800))
	assert.NoError(s.UpdateForecast(hourTS, 3.5, 0.9, 1.1))

	r, err := s.GetReading(hourTS)
	assert.NoError(err)
	assert.NotNil(r)
	assert.Equal(800.0, r.IrradianceWm2)
	assert.Equal(3.5, r.ProdForecastKWh)
	assert.NotNil(r.CorrectionApplied)
	assert.InDelta(1.1, *r.CorrectionApplied, 1e-9)
	assert.Nil(r.ProdActualKWh)
}

func TestGetReadingReturnsNilNotErrorWhenMissing(t *testing.T) {
	assert := assert.New(t)
	s := newTestStore(t)

	r, err := s.GetReading("2026-06-15T12:00")
	assert.NoError(err)
	assert.Nil(r)
}

func TestGetUnprocessedActualsOnlyReturnsUnlearnedRows(t *testing.T) {
	assert := assert.New(t)
	s := newTestStore(t)

	h1, h2 := "2026-06-15T12:00", "2026-06-15T13:00"
	assert.NoError(s.UpsertIrradiance(h1, 800))
	assert.NoError(s.UpdateForecast(h1, 3.5, 0.9, 1.1))
	assert.NoError(s.UpdateActual(h1, 3.0))

	assert.NoError(s.UpsertIrradiance(h2, 800))
	assert.NoError(s.UpdateForecast(h2, 3.5, 0.9, 1.1))
	assert.NoError(s.UpdateActual(h2, 3.2))
	assert.NoError(s.UpdateCorrection(h2, 3.2/3.5))

	actuals, err := s.GetUnprocessedActuals()
	assert.NoError(err)
	assert.Len(actuals, 1)
	assert.Equal(h1, actuals[0].HourTS)
}

func TestCorrectionMatrixUpsertOverwritesOnConflict(t *testing.T) {
	assert := assert.New(t)
	s := newTestStore(t)

	assert.NoError(s.UpdateCorrectionMatrix(6, 15, 12, 1.0, 1, 0.5, 3.0))
	assert.NoError(s.UpdateCorrectionMatrix(6, 15, 12, 1.1, 2, 1.0, 3.5))

	cell, err := s.GetCorrectionCell(6, 15, 12)
	assert.NoError(err)
	assert.Equal(1.1, cell.AvgCorr)
	assert.Equal(2, cell.Count)
}

func TestSmoothedMatrixUpsertAndGet(t *testing.T) {
	assert := assert.New(t)
	s := newTestStore(t)

	assert.NoError(s.UpsertSmoothed(166, 12, 0.95, 7))
	cell, err := s.GetSmoothedCell(166, 12)
	assert.NoError(err)
	assert.NotNil(cell)
	assert.Equal(0.95, cell.AvgCorr)
	assert.Equal(7, cell.Count)

	missing, err := s.GetSmoothedCell(1, 1)
	assert.NoError(err)
	assert.Nil(missing)
}

func TestGetPricesForRangeIsHalfOpen(t *testing.T) {
	assert := assert.New(t)
	s := newTestStore(t)

	assert.NoError(s.UpsertPrice("2026-06-15T23:45", 0.1, "test", "EUR"))
	assert.NoError(s.UpsertPrice("2026-06-16T00:00", 0.2, "test", "EUR"))
	assert.NoError(s.UpsertPrice("2026-06-16T00:15", 0.2, "test", "EUR"))

	slots, err := s.GetPricesForRange("2026-06-16T00:00", "2026-06-17T00:00")
	assert.NoError(err)
	assert.Len(slots, 2)
	assert.Equal("2026-06-16T00:00", slots[0].SlotTS)
}

func TestConsumptionUpsertPreservesNilTemp(t *testing.T) {
	assert := assert.New(t)
	s := newTestStore(t)

	assert.NoError(s.UpsertConsumption("2026-06-15T12:00", 450, nil, domain.SourceFlat))
	rows, err := s.GetConsumptionForRange("2026-06-15T00:00", "2026-06-16T00:00")
	assert.NoError(err)
	assert.Len(rows, 1)
	assert.Nil(rows[0].OutdoorTemp)
	assert.Equal(domain.SourceFlat, rows[0].Source)

	temp := 5.5
	assert.NoError(s.UpsertConsumption("2026-06-15T12:00", 470, &temp, domain.SourceInverterDelta))
	rows, err = s.GetConsumptionForRange("2026-06-15T00:00", "2026-06-16T00:00")
	assert.NoError(err)
	assert.Len(rows, 1)
	assert.NotNil(rows[0].OutdoorTemp)
	assert.InDelta(5.5, *rows[0].OutdoorTemp, 1e-9)
}

func TestEnergySnapshotAtOrBeforePicksLatestNotFuture(t *testing.T) {
	assert := assert.New(t)
	s := newTestStore(t)

	assert.NoError(s.UpsertEnergySnapshot("2026-06-15T12:00", 1, 2, 3, 4))
	assert.NoError(s.UpsertEnergySnapshot("2026-06-15T12:15", 1.1, 2.1, 3.1, 4.1))
	assert.NoError(s.UpsertEnergySnapshot("2026-06-15T13:00", 2, 3, 4, 5))

	snap, err := s.GetSnapshotAtOrBefore("2026-06-15T12:30")
	assert.NoError(err)
	assert.NotNil(snap)
	assert.Equal("2026-06-15T12:15", snap.TS)

	none, err := s.GetSnapshotAtOrBefore("2026-06-15T00:00")
	assert.NoError(err)
	assert.Nil(none)
}

func TestScheduleBatchUpsertThenDeleteForRange(t *testing.T) {
	assert := assert.New(t)
	s := newTestStore(t)

	slots := []domain.ScheduleSlot{
		{SlotTS: "2026-06-15T00:00", Action: domain.ActionIdle},
		{SlotTS: "2026-06-15T00:15", Action: domain.ActionChargeGrid, TargetW: 500},
	}
	assert.NoError(s.UpsertScheduleBatch(slots))

	got, err := s.GetScheduleForRange("2026-06-15T00:00", "2026-06-16T00:00")
	assert.NoError(err)
	assert.Len(got, 2)

	assert.NoError(s.DeleteScheduleForRange("2026-06-15T00:00", "2026-06-16T00:00"))
	got, err = s.GetScheduleForRange("2026-06-15T00:00", "2026-06-16T00:00")
	assert.NoError(err)
	assert.Len(got, 0)
}

func TestPipelineRunLedgerRoundTrip(t *testing.T) {
	assert := assert.New(t)
	s := newTestStore(t)

	assert.NoError(s.RecordPipelineRun(domain.PipelineFetch, domain.StatusOK, "2026-06-15T12:00"))
	assert.NoError(s.RecordPipelineRun(domain.PipelineLearn, domain.StatusError, "2026-06-15T12:05"))

	runs, err := s.GetAllPipelineRuns()
	assert.NoError(err)
	assert.Len(runs, 2)

	// re-recording the same pipeline overwrites, not duplicates
	assert.NoError(s.RecordPipelineRun(domain.PipelineFetch, domain.StatusOK, "2026-06-15T13:00"))
	runs, err = s.GetAllPipelineRuns()
	assert.NoError(err)
	assert.Len(runs, 2)
}
