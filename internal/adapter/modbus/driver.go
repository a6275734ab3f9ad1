// Package modbus is the reference inverter driver (§4.9): a Modbus
// TCP client wrapped in a lazy singleton connection, a one-second
// inter-command gate, and destroy-on-error reconnection, grounded on
// the teacher's sunspec_modbus client wrapper.
package modbus

import (
	"fmt"
	"math"
	"sync"
	"time"

	simonvetter "github.com/simonvetter/modbus"
	"go.uber.org/zap"

	"github.com/vindstrom/solarctl/internal/core/domain"
	"github.com/vindstrom/solarctl/internal/core/port"
)

// Driver is the reference Modbus TCP inverter driver. All exported
// methods serialize through gate, which also enforces the minimum
// one-second gap between operations.
type Driver struct {
	url           string
	unitID        uint8
	connectTimeout time.Duration
	responseTimeout time.Duration
	dryRun        bool

	chargeSOC    int
	dischargeSOC int

	logger *zap.Logger

	mu       sync.Mutex
	client   *simonvetter.ModbusClient
	lastCall time.Time
}

// Config bundles the driver's wiring parameters, lifted from
// config.InverterConfig so this package stays decoupled from the
// config package.
type Config struct {
	Host            string
	Port            uint
	UnitID          uint8
	TimeoutMs       uint32
	DryRun          bool
	ChargeSOC       int
	DischargeSOC    int
}

const minInterCommandGap = 1 * time.Second
const connectTimeout = 10 * time.Second

func New(cfg Config, logger *zap.Logger) *Driver {
	responseTimeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if responseTimeout <= 0 {
		responseTimeout = 5 * time.Second
	}
	return &Driver{
		url:             fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port),
		unitID:          cfg.UnitID,
		connectTimeout:  connectTimeout,
		responseTimeout: responseTimeout,
		dryRun:          cfg.DryRun,
		chargeSOC:       cfg.ChargeSOC,
		dischargeSOC:    cfg.DischargeSOC,
		logger:          logger.With(zap.String("component", "modbus_driver")),
	}
}

// ensureConnected lazily opens the singleton connection. Must be
// called with mu held.
func (d *Driver) ensureConnected() error {
	if d.client != nil {
		return nil
	}
	client, err := simonvetter.NewClient(&simonvetter.ClientConfiguration{
		URL:     d.url,
		Timeout: d.responseTimeout,
	})
	if err != nil {
		return err
	}
	if d.unitID > 0 {
		if err := client.SetUnitId(d.unitID); err != nil {
			return err
		}
	}
	if err := client.Open(); err != nil {
		return err
	}
	d.client = client
	return nil
}

// gate serializes Modbus access, enforces the minimum inter-command
// gap, and destroys the connection on any operation error so the next
// call re-establishes it.
func (d *Driver) gate(op string, fn func(*simonvetter.ModbusClient) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if wait := minInterCommandGap - time.Since(d.lastCall); wait > 0 {
		time.Sleep(wait)
	}

	if err := d.ensureConnected(); err != nil {
		d.lastCall = time.Now()
		return domain.NewError(domain.ErrTransport, "modbus."+op+".connect", err)
	}

	err := fn(d.client)
	d.lastCall = time.Now()
	if err != nil {
		d.client.Close()
		d.client = nil
		return domain.NewError(domain.ErrTransport, "modbus."+op, err)
	}
	return nil
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.client == nil {
		return nil
	}
	err := d.client.Close()
	d.client = nil
	return err
}

// GetState reads the status register and the 3-register BMS block.
func (d *Driver) GetState() (*port.InverterState, error) {
	var out port.InverterState
	err := d.gate("get_state", func(c *simonvetter.ModbusClient) error {
		status, err := c.ReadRegister(regStatus, simonvetter.INPUT_REGISTER)
		if err != nil {
			return err
		}
		bms, err := c.ReadRegisters(regBMSVoltage, 3, simonvetter.INPUT_REGISTER)
		if err != nil {
			return err
		}
		voltage := bms[0]
		current := decodeI16(bms[1])
		soc := bms[2]

		out.Mode = statusToMode(status)
		out.RawVoltage = float64(voltage)
		out.SOCPercent = float64(soc)
		out.PowerW = -float64(voltage) * float64(current) / 10
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetMetrics reads PV power, the BMS block, the 40-register daily
// energy block, and instantaneous grid import, then derives
// battery/grid-export watts.
func (d *Driver) GetMetrics() (*port.InverterMetrics, error) {
	var out port.InverterMetrics
	var totals port.EnergyTotals

	err := d.gate("get_metrics", func(c *simonvetter.ModbusClient) error {
		pvHi, err := c.ReadRegisters(regPVPowerHi, 2, simonvetter.INPUT_REGISTER)
		if err != nil {
			return err
		}
		solarW := float64(decodeU32BE(pvHi[0], pvHi[1])) / 10

		bms, err := c.ReadRegisters(regBMSVoltage, 3, simonvetter.INPUT_REGISTER)
		if err != nil {
			return err
		}
		soc := float64(bms[2])

		giHi, err := c.ReadRegisters(regGridImportHi, 2, simonvetter.INPUT_REGISTER)
		if err != nil {
			return err
		}
		gridImportW := float64(decodeU32BE(giHi[0], giHi[1])) / 10

		block, err := c.ReadRegisters(regDailyBlock, dailyBlockSize, simonvetter.INPUT_REGISTER)
		if err != nil {
			return err
		}
		loadW := float64(decodeU32BE(block[offsetLoadW], block[offsetLoadW+1])) / 10
		totals.ACGenKWh = float64(decodeU32BE(block[offsetACGenKWh10], block[offsetACGenKWh10+1])) / 10
		totals.GridInKWh = float64(decodeU32BE(block[offsetGridInKWh10], block[offsetGridInKWh10+1])) / 10
		totals.GridOutKWh = float64(decodeU32BE(block[offsetGridOutKWh10], block[offsetGridOutKWh10+1])) / 10
		totals.LoadKWh = float64(decodeU32BE(block[offsetLoadKWh10], block[offsetLoadKWh10+1])) / 10
		totals.PVTodayKWh = float64(decodeU32BE(block[offsetPVKWh10], block[offsetPVKWh10+1])) / 10

		consumptionW := loadW
		batteryW := consumptionW - solarW - gridImportW
		gridExportW := math.Max(0, solarW-consumptionW-math.Max(0, -batteryW))

		out = port.InverterMetrics{
			SOCPercent:   soc,
			BatteryW:     batteryW,
			GridImportW:  gridImportW,
			GridExportW:  gridExportW,
			SolarW:       solarW,
			ConsumptionW: consumptionW,
			DailyEnergy:  totals,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (d *Driver) GetEnergyTotals() (*port.EnergyTotals, error) {
	metrics, err := d.GetMetrics()
	if err != nil {
		return nil, err
	}
	return &metrics.DailyEnergy, nil
}

// intentFor maps a schedule action to a charge/discharge/idle intent.
func intentFor(a domain.Action) string {
	switch a {
	case domain.ActionChargeGrid, domain.ActionChargeSolar:
		return "charge"
	case domain.ActionDischarge, domain.ActionSell:
		return "discharge"
	default:
		return "idle"
	}
}

func clampSOC(v int) int {
	if v < 13 {
		return 13
	}
	if v > 100 {
		return 100
	}
	return v
}

// targetFor resolves an intent into the SOC floor to write, reading
// the current SOC only when the intent is idle.
func (d *Driver) targetFor(intent string, currentSOC func() (int, error)) (int, error) {
	switch intent {
	case "charge":
		return clampSOC(d.chargeSOC), nil
	case "discharge":
		return clampSOC(d.dischargeSOC), nil
	default:
		soc, err := currentSOC()
		if err != nil {
			return 0, err
		}
		return clampSOC(soc), nil
	}
}

// ApplySchedule finds the current slot (latest slot_ts <= now, else
// the first slot), maps its action to an intent, and writes the SOC
// floor register once.
func (d *Driver) ApplySchedule(slots []domain.ScheduleSlot) (*port.ApplyResult, error) {
	if len(slots) == 0 {
		return &port.ApplyResult{Skipped: 1}, nil
	}
	now := time.Now().Format("2006-01-02T15:04")
	current := slots[0]
	for _, s := range slots {
		if s.SlotTS <= now {
			current = s
		}
	}

	intent := intentFor(current.Action)
	var readSOC int
	target, err := d.targetFor(intent, func() (int, error) {
		state, err := d.GetState()
		if err != nil {
			return 0, err
		}
		readSOC = int(math.Round(state.SOCPercent))
		return readSOC, nil
	})
	if err != nil {
		return nil, err
	}

	if d.dryRun {
		d.logger.Info("dry-run: would write SOC floor", zap.Int("target", target), zap.String("intent", intent))
		return &port.ApplyResult{Applied: 1, Target: target}, nil
	}

	if err := d.writeSOCFloor(target); err != nil {
		return nil, err
	}
	return &port.ApplyResult{Applied: 1, Target: target}, nil
}

func (d *Driver) writeSOCFloor(target int) error {
	return d.gate("write_soc_floor", func(c *simonvetter.ModbusClient) error {
		return c.WriteRegister(regSOCFloor, uint16(target))
	})
}

func (d *Driver) override(intent string) (*port.OverrideResult, error) {
	var readSOC int
	target, err := d.targetFor(intent, func() (int, error) {
		state, err := d.GetState()
		if err != nil {
			return 0, err
		}
		readSOC = int(math.Round(state.SOCPercent))
		return readSOC, nil
	})
	if err != nil {
		return nil, err
	}

	if d.dryRun {
		d.logger.Info("dry-run: would apply override", zap.String("intent", intent), zap.Int("target", target))
		return &port.OverrideResult{SOCPercent: float64(readSOC), TargetSOC: target}, nil
	}
	if err := d.writeSOCFloor(target); err != nil {
		return nil, err
	}
	return &port.OverrideResult{SOCPercent: float64(readSOC), TargetSOC: target}, nil
}

func (d *Driver) Charge() (*port.OverrideResult, error)    { return d.override("charge") }
func (d *Driver) Discharge() (*port.OverrideResult, error) { return d.override("discharge") }
func (d *Driver) Idle() (*port.OverrideResult, error)      { return d.override("idle") }

// SetPeakShavingTarget writes the grid-import cap register, scale 0.1 kW.
func (d *Driver) SetPeakShavingTarget(kw float64) error {
	value := uint16(math.Round(kw * 10))
	if d.dryRun {
		d.logger.Info("dry-run: would write grid-import cap", zap.Float64("kw", kw))
		return nil
	}
	return d.gate("set_peak_shaving_target", func(c *simonvetter.ModbusClient) error {
		return c.WriteRegister(regGridImportCap, value)
	})
}

func (d *Driver) ResetToDefault() error {
	target := clampSOC(d.dischargeSOC)
	if d.dryRun {
		d.logger.Info("dry-run: would reset SOC floor to discharge_soc", zap.Int("target", target))
		return nil
	}
	return d.writeSOCFloor(target)
}
