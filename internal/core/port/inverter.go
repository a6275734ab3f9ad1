package port

import "github.com/vindstrom/solarctl/internal/core/domain"

// InverterMode mirrors the status register's mode lookup table.
type InverterMode string

const (
	ModeWaiting InverterMode = "waiting"
	ModeNormal  InverterMode = "normal"
	ModeFault   InverterMode = "fault"
	ModeFlash   InverterMode = "flash"
	ModeStorage InverterMode = "storage"
	ModeUnknown InverterMode = "unknown"
)

// InverterState is the cheap, frequently-polled state used by the
// execute pipeline and by manual overrides.
type InverterState struct {
	SOCPercent float64
	PowerW     float64 // positive = discharging, derived from -voltage*current/10
	RawVoltage float64 // raw BMS voltage register value, no scaling applied
	Mode       InverterMode
}

// InverterMetrics is the fuller telemetry snapshot used by the
// consumption pipeline's instantaneous fallback and by the HTTP API.
type InverterMetrics struct {
	SOCPercent     float64
	BatteryW       float64
	GridImportW    float64
	GridExportW    float64
	SolarW         float64
	ConsumptionW   float64
	DailyEnergy    EnergyTotals
}

// EnergyTotals are the four daily-cumulative counters, reset at local
// midnight on the inverter side.
type EnergyTotals struct {
	LoadKWh     float64
	ACGenKWh    float64
	GridInKWh   float64
	GridOutKWh  float64
	PVTodayKWh  float64
}

// ApplyResult reports what apply_schedule actually did, for logging
// and for the dry-run scenario (S6).
type ApplyResult struct {
	Applied int
	Skipped int
	Target  int // the SOC floor that was written (or would have been, in dry-run)
}

// OverrideResult is returned by the manual charge/discharge/idle
// overrides.
type OverrideResult struct {
	SOCPercent float64
	TargetSOC  int
}

// InverterDriver is the contract every inverter brand implements.
// ApplySchedule, GetState and ResetToDefault are the core operations;
// the interface also requires the metrics, energy-total, manual
// override and peak-shaving methods.
type InverterDriver interface {
	GetState() (*InverterState, error)
	GetMetrics() (*InverterMetrics, error)
	GetEnergyTotals() (*EnergyTotals, error)
	ApplySchedule(slots []domain.ScheduleSlot) (*ApplyResult, error)
	Charge() (*OverrideResult, error)
	Discharge() (*OverrideResult, error)
	Idle() (*OverrideResult, error)
	SetPeakShavingTarget(kw float64) error
	ResetToDefault() error
	Close() error
}
