// Package server is the brief, out-of-core HTTP surface (§6):
// forecast/price/solar/schedule reads, manual battery overrides, and a
// health check, built on echo like the teacher's server package.
package server

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/vindstrom/solarctl/internal/config"
	"github.com/vindstrom/solarctl/internal/core/port"
	"github.com/vindstrom/solarctl/internal/core/service"
)

type Server struct {
	port    uint
	httpLog bool

	store    port.Store
	driver   port.InverterDriver
	clock    *service.Clock
	cfg      config.Config
	logger   *zap.Logger
}

func New(cfg config.Config, store port.Store, driver port.InverterDriver, clock *service.Clock, logger *zap.Logger) *http.Server {
	s := &Server{
		port:    cfg.Port,
		httpLog: cfg.HttpLog,
		store:   store,
		driver:  driver,
		clock:   clock,
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "server")),
	}

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.registerRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}
