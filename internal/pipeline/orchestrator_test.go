package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vindstrom/solarctl/internal/core/domain"
)

type panickyRunner struct{}

func (panickyRunner) Run(ctx context.Context) error {
	panic("boom")
}

type okRunner struct{}

func (okRunner) Run(ctx context.Context) error { return nil }

func TestSafeRunRecoversPanicAsErrPanic(t *testing.T) {
	assert := assert.New(t)

	err := safeRun(context.Background(), "test_pipeline", panickyRunner{})
	assert.Error(err)
	assert.Equal(domain.ErrPanic, domain.KindOf(err))
}

func TestSafeRunPassesThroughSuccess(t *testing.T) {
	assert := assert.New(t)

	err := safeRun(context.Background(), "test_pipeline", okRunner{})
	assert.NoError(err)
}
