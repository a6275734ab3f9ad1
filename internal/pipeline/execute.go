package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/vindstrom/solarctl/internal/core/domain"
	"github.com/vindstrom/solarctl/internal/core/port"
	"github.com/vindstrom/solarctl/internal/core/service"
)

// Telemetry is the narrow surface the execute pipeline publishes to
// after each tick, satisfied by adapter/mqtt.Publisher. A nil
// Telemetry simply skips publishing.
type Telemetry interface {
	PublishSOC(socPercent float64, mode string)
	PublishSchedule(activeAction string, targetW float64)
	PublishForecast(nextHourKWh float64)
}

// ExecutePipeline reads the live SOC, fetches the rolling schedule
// window, filters to the slots still ahead, and applies the active
// one to the inverter (§4.10's "execute" row).
type ExecutePipeline struct {
	store     port.Store
	driver    port.InverterDriver
	clock     *service.Clock
	telemetry Telemetry
	logger    *zap.Logger
}

func NewExecutePipeline(store port.Store, driver port.InverterDriver, clock *service.Clock, telemetry Telemetry, logger *zap.Logger) *ExecutePipeline {
	return &ExecutePipeline{store: store, driver: driver, clock: clock, telemetry: telemetry, logger: logger.With(zap.String("pipeline", domain.PipelineExecute))}
}

func (p *ExecutePipeline) Run(ctx context.Context) error {
	now := p.clock.Now()
	to, err := service.AddHours(now, 24)
	if err != nil {
		return domain.NewError(domain.ErrProtocol, "execute.to", err)
	}

	slots, err := p.store.GetScheduleForRange(now, to)
	if err != nil {
		return domain.NewError(domain.ErrStorage, "execute.schedule", err)
	}

	future := make([]domain.ScheduleSlot, 0, len(slots))
	for _, s := range slots {
		if s.SlotTS >= now {
			future = append(future, s)
		}
	}
	if len(future) == 0 {
		future = slots
	}

	result, err := p.driver.ApplySchedule(future)
	if err != nil {
		return domain.NewError(domain.ErrTransport, "execute.apply", err)
	}
	p.logger.Debug("applied schedule", zap.Int("applied", result.Applied), zap.Int("skipped", result.Skipped), zap.Int("target", result.Target))
	p.publishTelemetry(future, now)
	return nil
}

// publishTelemetry mirrors the active slot, live SOC, and next hour's
// forecast onto the telemetry side-channel. Best-effort: a failure
// here is logged and dropped, never returned as a pipeline error.
func (p *ExecutePipeline) publishTelemetry(slots []domain.ScheduleSlot, now string) {
	if p.telemetry == nil || len(slots) == 0 {
		return
	}

	current := slots[0]
	for _, s := range slots {
		if s.SlotTS <= now {
			current = s
		}
	}
	p.telemetry.PublishSchedule(string(current.Action), current.TargetW)

	if state, err := p.driver.GetState(); err != nil {
		p.logger.Warn("telemetry: live state unavailable", zap.Error(err))
	} else {
		p.telemetry.PublishSOC(state.SOCPercent, string(state.Mode))
	}

	nextHour, err := service.AddHours(now, 1)
	if err != nil {
		return
	}
	hourTS, err := service.HourStart(nextHour)
	if err != nil {
		return
	}
	if r, err := p.store.GetReading(hourTS); err == nil && r != nil {
		p.telemetry.PublishForecast(r.ProdForecastKWh)
	}
}
