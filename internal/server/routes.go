package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func (s *Server) registerRoutes() http.Handler {
	e := echo.New()
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	if s.cfg.Dashboard.AuthUser != "" {
		e.Use(middleware.BasicAuth(func(user, pass string, c echo.Context) (bool, error) {
			return user == s.cfg.Dashboard.AuthUser && pass == s.cfg.Dashboard.AuthPass, nil
		}))
	}

	e.GET("/health", s.healthHandler)
	e.GET("/forecast", s.forecastHandler)
	e.GET("/api/prices", s.pricesHandler)
	e.GET("/api/solar", s.solarHandler)
	e.GET("/battery/schedule", s.scheduleHandler)
	e.GET("/battery/history", s.historyHandler)
	e.POST("/battery/control/charge", s.controlChargeHandler)
	e.POST("/battery/control/discharge", s.controlDischargeHandler)
	e.POST("/battery/control/idle", s.controlIdleHandler)
	e.POST("/battery/control/peak-shaving", s.controlPeakShavingHandler)

	return e
}
