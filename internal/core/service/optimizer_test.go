package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vindstrom/solarctl/internal/core/domain"
	"go.uber.org/zap"
)

func seedPrice(store *fakeStore, ts string, price float64) {
	store.UpsertPrice(ts, price, "test", "EUR")
}

func TestOptimizerPairsCheapChargeWithExpensiveDischarge(t *testing.T) {
	assert := assert.New(t)

	store := newFakeStore()
	cfg := testConfig()
	o := NewOptimizer(store, cfg, zap.NewNop())

	seedPrice(store, "2026-06-15T02:00", 0.05)
	seedPrice(store, "2026-06-15T03:00", 0.05)
	seedPrice(store, "2026-06-15T18:00", 0.40)
	seedPrice(store, "2026-06-15T19:00", 0.40)

	var consumption [24]float64
	consumption[2], consumption[3], consumption[18], consumption[19] = 500, 500, 500, 500

	out, err := o.Run(OptimizerInput{
		From:         "2026-06-15T00:00",
		To:           "2026-06-16T00:00",
		ConsumptionW: consumption,
	})
	assert.NoError(err)
	assert.Len(out.Slots, 4)

	byTS := map[string]domain.ScheduleSlot{}
	for _, s := range out.Slots {
		byTS[s.SlotTS] = s
	}

	assert.Equal(domain.ActionChargeGrid, byTS["2026-06-15T02:00"].Action)
	assert.Equal(domain.ActionChargeGrid, byTS["2026-06-15T03:00"].Action)
	assert.Equal(domain.ActionDischarge, byTS["2026-06-15T18:00"].Action)
	assert.Equal(domain.ActionDischarge, byTS["2026-06-15T19:00"].Action)

	assert.Greater(out.Summary.Savings, 0.0)
	assert.Less(out.Summary.CostWithBattery, out.Summary.CostWithoutBattery)
}

func TestOptimizerSkipsPairingWhenSpreadBelowEfficiencyFloor(t *testing.T) {
	assert := assert.New(t)

	store := newFakeStore()
	cfg := testConfig()
	cfg.Battery.Efficiency = 0.5 // huge round-trip loss raises the spread floor
	o := NewOptimizer(store, cfg, zap.NewNop())

	seedPrice(store, "2026-06-15T02:00", 0.099)
	seedPrice(store, "2026-06-15T18:00", 0.100) // near-flat spread

	var consumption [24]float64
	consumption[2], consumption[18] = 500, 500

	out, err := o.Run(OptimizerInput{
		From:         "2026-06-15T00:00",
		To:           "2026-06-16T00:00",
		ConsumptionW: consumption,
	})
	assert.NoError(err)

	for _, s := range out.Slots {
		assert.Equal(domain.ActionIdle, s.Action)
	}
}

func TestOptimizerChargesFromSurplusSolar(t *testing.T) {
	assert := assert.New(t)

	store := newFakeStore()
	cfg := testConfig()
	o := NewOptimizer(store, cfg, zap.NewNop())

	seedPrice(store, "2026-06-15T12:00", 0.15)

	var solar, consumption [24]float64
	solar[12] = 3000
	consumption[12] = 500

	out, err := o.Run(OptimizerInput{
		From:           "2026-06-15T00:00",
		To:             "2026-06-16T00:00",
		SolarForecastW: solar,
		ConsumptionW:   consumption,
	})
	assert.NoError(err)
	assert.Len(out.Slots, 1)
	assert.Equal(domain.ActionChargeSolar, out.Slots[0].Action)
	assert.Greater(out.Slots[0].TargetW, 0.0)
}

func TestOptimizerErrorsWhenNoPricesForWindow(t *testing.T) {
	assert := assert.New(t)

	store := newFakeStore()
	cfg := testConfig()
	o := NewOptimizer(store, cfg, zap.NewNop())

	_, err := o.Run(OptimizerInput{From: "2026-06-15T00:00", To: "2026-06-16T00:00"})
	assert.Error(err)
	assert.Equal(domain.ErrDataMissing, domain.KindOf(err))
}

func TestOptimizerStartSOCIsClampedWithinConfiguredBounds(t *testing.T) {
	assert := assert.New(t)

	store := newFakeStore()
	cfg := testConfig()
	o := NewOptimizer(store, cfg, zap.NewNop())

	seedPrice(store, "2026-06-15T12:00", 0.15)
	var consumption [24]float64
	consumption[12] = 500

	tooHigh := 999.0
	out, err := o.Run(OptimizerInput{
		From:            "2026-06-15T00:00",
		To:              "2026-06-16T00:00",
		ConsumptionW:    consumption,
		StartSOCPercent: &tooHigh,
	})
	assert.NoError(err)
	assert.LessOrEqual(out.Slots[0].SOCStart, cfg.Battery.MaxSOC)
}

func TestOptimizerSOCStaysAboveFloorWhenStartingAtFloor(t *testing.T) {
	assert := assert.New(t)

	store := newFakeStore()
	cfg := testConfig()
	cfg.Battery.MinSOC = 10
	o := NewOptimizer(store, cfg, zap.NewNop())

	seedPrice(store, "2026-06-15T02:00", 0.05)
	seedPrice(store, "2026-06-15T03:00", 0.40)

	var consumption [24]float64
	consumption[2], consumption[3] = 500, 500

	startAtFloor := cfg.Battery.MinSOC
	out, err := o.Run(OptimizerInput{
		From:            "2026-06-15T00:00",
		To:              "2026-06-16T00:00",
		ConsumptionW:    consumption,
		StartSOCPercent: &startAtFloor,
	})
	assert.NoError(err)

	byTS := map[string]domain.ScheduleSlot{}
	for _, s := range out.Slots {
		byTS[s.SlotTS] = s
	}
	// 02:00 charges first; 03:00 would want to discharge but whether it
	// can depends on what 02:00 actually stored. Either way the SOC
	// trace must never dip below the configured floor.
	for _, s := range out.Slots {
		assert.GreaterOrEqual(s.SOCEnd, cfg.Battery.MinSOC-1e-3)
		_ = byTS
	}
}
