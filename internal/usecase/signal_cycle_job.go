package usecase

import (
	"context"
	"errors"
	"time"

	"SignalDesk/pkg/logger"
)

// SignalCycleJobName identifies the scheduled signal cycle.
const SignalCycleJobName = "signal-cycle"

// SignalCycleJob runs GenerateSignals over a fixed symbol list on a schedule.
type SignalCycleJob struct {
	engine   *SignalEngine
	symbols  []string
	schedule string
	timeout  time.Duration
	l        *logger.Logger
}

func NewSignalCycleJob(engine *SignalEngine, symbols []string, schedule string, timeout time.Duration, l *logger.Logger) *SignalCycleJob {
	if l == nil {
		l = logger.Nop()
	}
	return &SignalCycleJob{engine: engine, symbols: symbols, schedule: schedule, timeout: timeout, l: l}
}

func (j *SignalCycleJob) Name() string     { return SignalCycleJobName }
func (j *SignalCycleJob) Schedule() string { return j.schedule }

// Run treats missing market data as a partial success: it is logged and the
// remaining symbols' signals stand.
func (j *SignalCycleJob) Run(ctx context.Context) error {
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}
	report, err := j.engine.GenerateSignals(ctx, j.symbols)
	if err == nil {
		return nil
	}
	if ctx.Err() == nil && errors.Is(err, ErrMissingMarketData) && len(report.Failed) < len(report.Symbols) {
		j.l.Warn("signal cycle partially skipped",
			logger.Int("failed", len(report.Failed)),
			logger.Error(err),
		)
		return nil
	}
	return err
}
