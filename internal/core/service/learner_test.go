package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestLearnerFoldsUnprocessedActualIntoCell(t *testing.T) {
	assert := assert.New(t)

	store := newFakeStore()
	l := NewLearner(store, zap.NewNop())

	hourTS := hourKey("2026-06-15", 12)
	store.UpsertIrradiance(hourTS, 800)
	store.UpdateForecast(hourTS, 4.0, 1.0, 1.0)
	store.UpdateActual(hourTS, 3.2) // correction = 0.8

	err := l.Run()
	assert.NoError(err)

	cell, err := store.GetCorrectionCell(6, 15, 12)
	assert.NoError(err)
	assert.NotNil(cell)
	assert.InDelta(0.8, cell.AvgCorr, 1e-9)
	assert.Equal(1, cell.Count)
	assert.Equal(3.2, cell.MaxProdKWh)

	r, err := store.GetReading(hourTS)
	assert.NoError(err)
	assert.NotNil(r.Correction)
	assert.InDelta(0.8, *r.Correction, 1e-9)
}

func TestLearnerWeightedAverageAcrossTwoYears(t *testing.T) {
	assert := assert.New(t)

	store := newFakeStore()
	l := NewLearner(store, zap.NewNop())

	// Two different years landing on the same calendar (month, day,
	// hour) cell: the correction matrix is calendar-indexed, not
	// year-indexed, so both actuals should fold into one cell.
	h1 := hourKey("2026-06-15", 12)
	store.UpsertIrradiance(h1, 800)
	store.UpdateForecast(h1, 4.0, 1.0, 1.0)
	store.UpdateActual(h1, 4.0) // correction = 1.0

	assert.NoError(l.Run())

	h2 := hourKey("2027-06-15", 12)
	store.UpsertIrradiance(h2, 800)
	store.UpdateForecast(h2, 4.0, 1.0, 1.0)
	store.UpdateActual(h2, 3.2) // correction = 0.8

	assert.NoError(l.Run())

	cell, err := store.GetCorrectionCell(6, 15, 12)
	assert.NoError(err)
	assert.NotNil(cell)
	assert.Equal(2, cell.Count)
	assert.InDelta(0.9, cell.AvgCorr, 1e-9) // equal weight (same irradiance) -> plain average
}

func TestLearnerSkipsReadingWithoutForecast(t *testing.T) {
	assert := assert.New(t)

	store := newFakeStore()
	l := NewLearner(store, zap.NewNop())

	hourTS := hourKey("2026-06-15", 12)
	store.UpsertIrradiance(hourTS, 800)
	store.UpdateActual(hourTS, 3.2) // no forecast recorded

	err := l.Run()
	assert.NoError(err)

	cell, err := store.GetCorrectionCell(6, 15, 12)
	assert.NoError(err)
	assert.Nil(cell)
}

func TestLearnerLeavesProcessedActualsAlone(t *testing.T) {
	assert := assert.New(t)

	store := newFakeStore()
	l := NewLearner(store, zap.NewNop())

	hourTS := hourKey("2026-06-15", 12)
	store.UpsertIrradiance(hourTS, 800)
	store.UpdateForecast(hourTS, 4.0, 1.0, 1.0)
	store.UpdateActual(hourTS, 3.2)

	assert.NoError(l.Run())
	firstCount := store.cells[[3]int{6, 15, 12}].Count

	// A second run must not re-fold the same actual: GetUnprocessedActuals
	// only returns readings with Correction == nil.
	assert.NoError(l.Run())
	assert.Equal(firstCount, store.cells[[3]int{6, 15, 12}].Count)
}
