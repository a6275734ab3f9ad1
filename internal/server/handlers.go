package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/vindstrom/solarctl/internal/core/domain"
	"github.com/vindstrom/solarctl/internal/core/service"
)

// pipelineIntervals are each pipeline's nominal cadence, used only by
// the health check's "within 1.5x interval" staleness rule.
var pipelineIntervals = map[string]time.Duration{
	domain.PipelineFetch:       6 * time.Hour,
	domain.PipelineLearn:       time.Hour,
	domain.PipelineSmooth:      24 * time.Hour,
	domain.PipelineBattery:     time.Hour,
	domain.PipelineConsumption: time.Hour,
	domain.PipelineSnapshot:    15 * time.Minute,
	domain.PipelineExecute:     15 * time.Minute,
}

func (s *Server) healthHandler(c echo.Context) error {
	runs, err := s.store.GetAllPipelineRuns()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health: storage error")
	}

	now := s.clock.NowTime()
	for _, r := range runs {
		interval, known := pipelineIntervals[r.Name]
		if !known {
			continue
		}
		if r.LastStatus == domain.StatusNeverRun || r.LastRunTS == "" {
			return c.String(http.StatusServiceUnavailable, "health: "+r.Name+" never ran")
		}
		last, err := time.ParseInLocation(service.TSLayout, r.LastRunTS, now.Location())
		if err != nil {
			continue
		}
		if now.Sub(last) > time.Duration(float64(interval)*1.5) {
			return c.String(http.StatusServiceUnavailable, "health: "+r.Name+" stale")
		}
	}
	return c.String(http.StatusOK, "ok")
}

func (s *Server) forecastHandler(c echo.Context) error {
	today := s.clock.Today()
	out := make([]map[string]any, 0, 24)
	for h := 0; h < 24; h++ {
		r, err := s.store.GetReading(service.HourTS(today, h))
		if err != nil || r == nil {
			continue
		}
		out = append(out, map[string]any{
			"hour_ts":           r.HourTS,
			"prod_forecast_kwh": r.ProdForecastKWh,
			"confidence":        r.Confidence,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) pricesHandler(c echo.Context) error {
	today := s.clock.Today()
	tomorrow, err := service.AddDays(today, 1)
	if err != nil {
		return c.String(http.StatusInternalServerError, err.Error())
	}
	slots, err := s.store.GetPricesForRange(today+"T00:00", tomorrow+"T00:00")
	if err != nil {
		return c.String(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, slots)
}

func (s *Server) solarHandler(c echo.Context) error {
	today := s.clock.Today()
	out := make([]domain.SolarReading, 0, 24)
	for h := 0; h < 24; h++ {
		r, err := s.store.GetReading(service.HourTS(today, h))
		if err != nil || r == nil {
			continue
		}
		out = append(out, *r)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) scheduleHandler(c echo.Context) error {
	now := s.clock.Now()
	to, err := service.AddHours(now, 24)
	if err != nil {
		return c.String(http.StatusInternalServerError, err.Error())
	}
	slots, err := s.store.GetScheduleForRange(now, to)
	if err != nil {
		return c.String(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, slots)
}

func (s *Server) historyHandler(c echo.Context) error {
	now := s.clock.Now()
	from, err := service.AddHours(now, -24)
	if err != nil {
		return c.String(http.StatusInternalServerError, err.Error())
	}
	slots, err := s.store.GetScheduleForRange(from, now)
	if err != nil {
		return c.String(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, slots)
}

func (s *Server) controlChargeHandler(c echo.Context) error {
	res, err := s.driver.Charge()
	return s.respondOverride(c, res, err)
}

func (s *Server) controlDischargeHandler(c echo.Context) error {
	res, err := s.driver.Discharge()
	return s.respondOverride(c, res, err)
}

func (s *Server) controlIdleHandler(c echo.Context) error {
	res, err := s.driver.Idle()
	return s.respondOverride(c, res, err)
}

type peakShavingRequest struct {
	KW float64 `json:"kw"`
}

func (s *Server) controlPeakShavingHandler(c echo.Context) error {
	var req peakShavingRequest
	if err := c.Bind(&req); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	if err := s.driver.SetPeakShavingTarget(req.KW); err != nil {
		return c.String(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"kw": req.KW})
}

func (s *Server) respondOverride(c echo.Context, res any, err error) error {
	if err != nil {
		return c.String(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}
