package service

import (
	"math"
	"sort"

	"github.com/vindstrom/solarctl/internal/config"
	"github.com/vindstrom/solarctl/internal/core/domain"
	"github.com/vindstrom/solarctl/internal/core/port"
	"go.uber.org/zap"
)

const slotHours = 0.25

// OptimizerInput bundles everything the greedy battery optimizer needs
// beyond the store-backed prices (§4.8).
type OptimizerInput struct {
	From, To          string // 96-slot window, [From, To)
	SolarForecastW    [24]float64
	ConsumptionW      [24]float64
	StartSOCPercent   *float64 // live SOC, if known
}

// SavingsSummary is the optimizer's cost/savings accounting (§4.8
// step 7).
type SavingsSummary struct {
	CostWithoutBattery float64
	CostWithBattery    float64
	Savings            float64
}

// OptimizerOutput is the full result of one optimizer run.
type OptimizerOutput struct {
	Slots   []domain.ScheduleSlot
	Summary SavingsSummary
}

// buildSlot is the optimizer's working representation of one price
// slot before actions are assigned.
type buildSlot struct {
	ts          string
	price       domain.PriceSlot
	solarW      float64
	consumptionW float64
	netW        float64
	buy         float64
	sellPrice   float64
	avoidableWh float64
	action      domain.Action
	targetW     float64
}

// candidate is a (slot index, relevant value) pair used while
// building the sorted candidate lists for the greedy pass.
type candidate struct {
	idx int
	val float64
}

// Optimizer is the greedy solar-aware battery optimizer (§4.8).
type Optimizer struct {
	store  port.Store
	cfg    config.Config
	logger *zap.Logger
}

func NewOptimizer(store port.Store, cfg config.Config, logger *zap.Logger) *Optimizer {
	return &Optimizer{store: store, cfg: cfg, logger: logger.With(zap.String("component", "optimizer"))}
}

// Run executes the full eight-step optimizer pipeline and persists the
// resulting schedule.
func (o *Optimizer) Run(in OptimizerInput) (*OptimizerOutput, error) {
	prices, err := o.store.GetPricesForRange(in.From, in.To)
	if err != nil {
		return nil, domain.NewError(domain.ErrStorage, "optimizer.prices", err)
	}
	if len(prices) == 0 {
		return nil, domain.NewError(domain.ErrDataMissing, "optimizer.prices", nil)
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i].SlotTS < prices[j].SlotTS })

	slots := o.buildSlots(prices, in)
	o.greedyPair(slots)
	o.assignIdleSolarSlots(slots)

	startWh := o.cfg.Battery.MinSOC / 100 * o.cfg.Battery.CapacityKWh * 1000
	if in.StartSOCPercent != nil {
		startWh = clamp(*in.StartSOCPercent/100*o.cfg.Battery.CapacityKWh*1000,
			o.cfg.Battery.MinSOC/100*o.cfg.Battery.CapacityKWh*1000,
			o.cfg.Battery.MaxSOC/100*o.cfg.Battery.CapacityKWh*1000)
	}
	out := o.forwardSOCPass(slots, startWh)
	summary := o.savingsSummary(slots, out)

	if err := o.store.DeleteScheduleForRange(in.From, in.To); err != nil {
		return nil, domain.NewError(domain.ErrStorage, "optimizer.delete", err)
	}
	if err := o.store.UpsertScheduleBatch(out); err != nil {
		return nil, domain.NewError(domain.ErrStorage, "optimizer.upsert", err)
	}

	return &OptimizerOutput{Slots: out, Summary: summary}, nil
}

// buildSlots is step 1+2: interpolate hourly solar/consumption into
// 96 15-min slots and compute net/buy/sell/avoidable per slot.
func (o *Optimizer) buildSlots(prices []domain.PriceSlot, in OptimizerInput) []*buildSlot {
	slots := make([]*buildSlot, len(prices))
	for i, p := range prices {
		hour, err := HourOfDay(p.SlotTS)
		if err != nil {
			hour = 0
		}
		solarW := in.SolarForecastW[hour]
		consumptionW := in.ConsumptionW[hour]
		if consumptionW == 0 {
			consumptionW = o.cfg.Consumption.FlatWatts
		}

		net := solarW - consumptionW
		buy := p.Price + o.cfg.Grid.TransferImportKWh + o.cfg.Grid.EnergyTaxKWh
		sellP := 0.0
		if o.cfg.Grid.SellEnabled {
			sellP = p.Price*o.cfg.Grid.SellPriceFactor - o.cfg.Grid.TransferExportKWh
		}
		avoidableWh := math.Min(math.Max(0, -net), o.cfg.Battery.MaxDischargeW) * slotHours

		slots[i] = &buildSlot{
			ts:           p.SlotTS,
			price:        p,
			solarW:       solarW,
			consumptionW: consumptionW,
			netW:         net,
			buy:          buy,
			sellPrice:    sellP,
			avoidableWh:  avoidableWh,
			action:       domain.ActionIdle,
		}
	}
	return slots
}

// minSpread is step 3: the efficiency-loss break-even spread.
func (o *Optimizer) minSpread(slots []*buildSlot) float64 {
	if len(slots) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range slots {
		sum += s.buy
	}
	avgBuy := sum / float64(len(slots))
	eff := o.cfg.Battery.Efficiency
	if eff <= 0 {
		eff = 1
	}
	return avgBuy * (1/eff - 1)
}

// greedyPair is step 4: build candidate lists and walk two pointers
// pairing charge/discharge slots while the spread clears the
// efficiency floor.
func (o *Optimizer) greedyPair(slots []*buildSlot) {
	minSpread := o.minSpread(slots)

	var discharge, charge []candidate
	for i, s := range slots {
		if s.avoidableWh > 0 {
			discharge = append(discharge, candidate{i, s.buy})
		}
		if s.netW <= 0 {
			charge = append(charge, candidate{i, s.buy})
		}
	}
	sort.SliceStable(discharge, func(i, j int) bool { return discharge[i].val > discharge[j].val })
	sort.SliceStable(charge, func(i, j int) bool { return charge[i].val < charge[j].val })

	remainingCapacityWh := o.cfg.Battery.CapacityKWh * 1000 * (o.cfg.Battery.MaxSOC - o.cfg.Battery.MinSOC) / 100
	eff := o.cfg.Battery.Efficiency
	if eff <= 0 {
		eff = 1
	}

	ci, di := 0, 0
	for ci < len(charge) && di < len(discharge) {
		cIdx := charge[ci].idx
		dIdx := discharge[di].idx
		if cIdx == dIdx {
			// same slot can't be both a charge and a discharge
			// candidate in the same pair; prefer advancing discharge
			// since it's the scarcer, higher-value side.
			di++
			continue
		}
		spread := slots[dIdx].buy - slots[cIdx].buy
		if spread <= minSpread {
			break
		}

		dischargeWh := math.Min(math.Min(slots[dIdx].avoidableWh, o.cfg.Battery.MaxDischargeW*slotHours), remainingCapacityWh)
		chargeWh := math.Min(dischargeWh/eff, o.cfg.Battery.MaxChargeW*slotHours)
		if chargeWh <= 0 {
			ci++
			continue
		}

		slots[dIdx].action = domain.ActionDischarge
		slots[dIdx].targetW = dischargeWh / slotHours
		slots[cIdx].action = domain.ActionChargeGrid
		slots[cIdx].targetW = chargeWh / slotHours

		remainingCapacityWh -= chargeWh
		ci++
		di++
	}
}

// assignIdleSolarSlots is step 5's remainder: any still-idle slot with
// positive net gets charge_solar.
func (o *Optimizer) assignIdleSolarSlots(slots []*buildSlot) {
	for _, s := range slots {
		if s.action == domain.ActionIdle && s.netW > 0 {
			s.action = domain.ActionChargeSolar
			s.targetW = math.Min(s.netW, o.cfg.Battery.MaxChargeW)
		}
	}
}

// forwardSOCPass is step 6: walk the slots in order, applying battery
// physics and possibly downgrading actions that can't actually be
// carried out (full battery, empty battery).
func (o *Optimizer) forwardSOCPass(slots []*buildSlot, startWh float64) []domain.ScheduleSlot {
	minWh := o.cfg.Battery.MinSOC / 100 * o.cfg.Battery.CapacityKWh * 1000
	maxWh := o.cfg.Battery.MaxSOC / 100 * o.cfg.Battery.CapacityKWh * 1000
	eff := o.cfg.Battery.Efficiency
	if eff <= 0 {
		eff = 1
	}

	soc := startWh
	out := make([]domain.ScheduleSlot, len(slots))

	for i, s := range slots {
		socStartPct := pctOf(soc, o.cfg.Battery.CapacityKWh)
		action := s.action
		targetW := s.targetW

		switch action {
		case domain.ActionChargeGrid:
			stored := math.Min(targetW*slotHours*eff, maxWh-soc)
			if stored <= 0 {
				action = domain.ActionIdle
				targetW = 0
			} else {
				soc += stored
				targetW = stored / (slotHours * eff)
			}
		case domain.ActionChargeSolar:
			stored := math.Min(targetW*slotHours, maxWh-soc)
			if stored <= 0 {
				if o.cfg.Grid.SellEnabled && s.sellPrice > 0 {
					action = domain.ActionSell
					targetW = math.Max(0, s.netW)
				} else {
					action = domain.ActionIdle
					targetW = 0
				}
			} else {
				soc += stored
				targetW = stored / slotHours
			}
		case domain.ActionDischarge, domain.ActionSell:
			drawn := math.Min(targetW*slotHours, soc-minWh)
			if drawn <= 0 {
				action = domain.ActionIdle
				targetW = 0
			} else {
				soc -= drawn
				targetW = drawn / slotHours
			}
		case domain.ActionIdle:
			targetW = 0
		}

		socEndPct := pctOf(soc, o.cfg.Battery.CapacityKWh)

		out[i] = domain.ScheduleSlot{
			SlotTS:      s.ts,
			Action:      action,
			TargetW:     math.Round(targetW),
			SOCStart:    round1(socStartPct),
			SOCEnd:      round1(socEndPct),
			Price:       s.price.Price,
			SolarW:      s.solarW,
			Consumption: s.consumptionW,
		}
		// Reflect any downgrade back onto the working slot so the
		// savings summary (step 7) uses post-pass values, not the
		// pre-pass pairing decision; see DESIGN.md on the source's
		// charge_grid-vs-idle accounting ambiguity.
		slots[i].action = action
		slots[i].targetW = targetW
	}
	return out
}

// savingsSummary is step 7, computed from the post-forward-pass
// actions and watts (see DESIGN.md for why post-pass values are
// required here).
func (o *Optimizer) savingsSummary(slots []*buildSlot, out []domain.ScheduleSlot) SavingsSummary {
	var without, with float64
	for i, s := range slots {
		baseline := math.Max(0, (s.consumptionW-s.solarW)*slotHours/1000) * s.buy
		without += baseline
		with += baseline

		switch out[i].Action {
		case domain.ActionDischarge:
			with -= (out[i].TargetW * slotHours / 1000) * s.buy
		case domain.ActionChargeGrid:
			with += (out[i].TargetW * slotHours / 1000) * s.buy
		case domain.ActionSell:
			with -= (out[i].TargetW * slotHours / 1000) * s.sellPrice
		}
	}
	return SavingsSummary{
		CostWithoutBattery: without,
		CostWithBattery:    with,
		Savings:            without - with,
	}
}

func pctOf(wh, capacityKWh float64) float64 {
	if capacityKWh <= 0 {
		return 0
	}
	return wh / (capacityKWh * 1000) * 100
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
