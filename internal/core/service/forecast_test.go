package service

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestForecastGeometryFallbackWhenCellEmpty(t *testing.T) {
	assert := assert.New(t)

	store := newFakeStore()
	cfg := testConfig()
	m := NewForecastModel(store, cfg, zap.NewNop())

	date := "2026-06-15"
	hourTS := hourKey(date, 12)
	store.UpsertIrradiance(hourTS, 800)

	err := m.Run(date)
	assert.NoError(err)

	r, err := store.GetReading(hourTS)
	assert.NoError(err)
	assert.NotNil(r)
	assert.NotNil(r.CorrectionApplied)

	expectedC := math.Cos(cfg.Panel.TiltDeg*math.Pi/180) * geometryFallback(6, 12)
	assert.InDelta(expectedC, *r.CorrectionApplied, 1e-9)

	expectedProd := cfg.Panel.PeakKW * (800.0 / 1000) * expectedC
	assert.InDelta(expectedProd, r.ProdForecastKWh, 1e-6)
}

func TestForecastBlendsCorrectionCellByWeight(t *testing.T) {
	assert := assert.New(t)

	store := newFakeStore()
	cfg := testConfig()
	cfg.Learning.EmpiricalBlendThreshold = 30
	m := NewForecastModel(store, cfg, zap.NewNop())

	date := "2026-06-15"
	hourTS := hourKey(date, 12)
	store.UpsertIrradiance(hourTS, 800)
	// full-weight cell: count == threshold means we == 1, so the
	// matrix correction should dominate completely.
	store.UpdateCorrectionMatrix(6, 15, 12, 1.4, 30, 30, 3.0)

	err := m.Run(date)
	assert.NoError(err)

	r, err := store.GetReading(hourTS)
	assert.NoError(err)
	assert.InDelta(1.4, *r.CorrectionApplied, 1e-9)
}

func TestForecastConfidenceClampedToOne(t *testing.T) {
	assert := assert.New(t)

	store := newFakeStore()
	cfg := testConfig()
	m := NewForecastModel(store, cfg, zap.NewNop())

	date := "2026-06-15"
	hourTS := hourKey(date, 12)
	store.UpsertIrradiance(hourTS, 1000) // > MinIrradianceWeight(400)

	err := m.Run(date)
	assert.NoError(err)

	r, err := store.GetReading(hourTS)
	assert.NoError(err)
	assert.Equal(1.0, r.Confidence)
}

func TestForecastSkipsReadingsAlreadyForecast(t *testing.T) {
	assert := assert.New(t)

	store := newFakeStore()
	cfg := testConfig()
	m := NewForecastModel(store, cfg, zap.NewNop())

	date := "2026-06-15"
	hourTS := hourKey(date, 12)
	store.UpsertIrradiance(hourTS, 800)
	assert.NoError(m.Run(date))

	firstProd := store.readings[hourTS].ProdForecastKWh

	// A second run must not touch a reading that already has a
	// correction applied; readingsNeedingForecast filters it out.
	assert.NoError(m.Run(date))
	assert.Equal(firstProd, store.readings[hourTS].ProdForecastKWh)
}

func TestRecencyBiasClampsToConfiguredBounds(t *testing.T) {
	assert := assert.New(t)

	store := newFakeStore()
	cfg := testConfig()
	// The threshold is on summed irradiance weight: one sample at
	// 800 W/m² weighs 800/850 ≈ 0.94.
	cfg.Learning.RecencyBias.MinSamples = 0.5
	cfg.Learning.RecencyBias.ClampMax = 1.5
	m := NewForecastModel(store, cfg, zap.NewNop())

	date := "2026-06-15"
	yesterday, err := AddDays(date, -1)
	assert.NoError(err)

	hourTS := hourKey(yesterday, 12)
	store.UpsertIrradiance(hourTS, 800)
	store.UpdateForecast(hourTS, 2.0, 1.0, 1.0)
	store.UpdateActual(hourTS, 6.0) // actual/forecast = 3.0, way above clamp

	b, err := m.recencyBias(date)
	assert.NoError(err)
	assert.Equal(cfg.Learning.RecencyBias.ClampMax, b)
}
