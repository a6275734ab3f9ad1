package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/vindstrom/solarctl/internal/core/domain"
	"github.com/vindstrom/solarctl/internal/core/service"
)

// SmoothPipeline rebuilds the smoothed matrix from the raw readings
// (§4.10's "smooth" row).
type SmoothPipeline struct {
	smoother *service.Smoother
	logger   *zap.Logger
}

func NewSmoothPipeline(smoother *service.Smoother, logger *zap.Logger) *SmoothPipeline {
	return &SmoothPipeline{smoother: smoother, logger: logger.With(zap.String("pipeline", domain.PipelineSmooth))}
}

func (p *SmoothPipeline) Run(ctx context.Context) error {
	return p.smoother.Run()
}
