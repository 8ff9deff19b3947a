package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalDesk/internal/domain/models"
	domsvc "SignalDesk/internal/domain/service"
)

func TestSignalCycleJobToleratesPartialMissingData(t *testing.T) {
	clock := newClock(testNow)
	e := newEngine(clock, market("EURUSD"), []domsvc.SignalProvider{
		&stubProvider{id: "a", side: models.SideBuy, strength: 60, clock: clock},
	})

	job := NewSignalCycleJob(e, []string{"EURUSD", "GBPUSD"}, "@every 30s", 0, nil)
	assert.Equal(t, "signal-cycle", job.Name())
	assert.Equal(t, "@every 30s", job.Schedule())
	require.NoError(t, job.Run(context.Background()))
	assert.Len(t, e.GetSignalsForSymbol("EURUSD"), 1)

	allMissing := NewSignalCycleJob(e, []string{"GBPUSD"}, "@every 30s", 0, nil)
	assert.ErrorIs(t, allMissing.Run(context.Background()), ErrMissingMarketData)
}
