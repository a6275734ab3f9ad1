package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/vindstrom/solarctl/internal/core/domain"
	"github.com/vindstrom/solarctl/internal/core/service"
)

// LearnPipeline folds newly realized actuals into the correction
// matrix (§4.10's "learn" row).
type LearnPipeline struct {
	learner *service.Learner
	logger  *zap.Logger
}

func NewLearnPipeline(learner *service.Learner, logger *zap.Logger) *LearnPipeline {
	return &LearnPipeline{learner: learner, logger: logger.With(zap.String("pipeline", domain.PipelineLearn))}
}

func (p *LearnPipeline) Run(ctx context.Context) error {
	return p.learner.Run()
}
