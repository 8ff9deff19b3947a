package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"SignalDesk/pkg/logger"
)

// Job is a unit of scheduled work.
type Job interface {
	Name() string
	Schedule() string
	Run(ctx context.Context) error
}

// JobResult is the outcome of one run.
type JobResult struct {
	JobName   string        `json:"job_name"`
	StartTime time.Time     `json:"start_time"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
}

const historySize = 50

// Scheduler runs jobs on cron specs. A run still in progress when its next
// tick fires causes that tick to be skipped.
type Scheduler struct {
	cron    *cron.Cron
	l       *logger.Logger
	timeout time.Duration

	mu      sync.RWMutex
	jobs    map[string]Job
	history map[string][]JobResult

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a scheduler. Each run is bounded by timeout when positive.
func New(l *logger.Logger, timeout time.Duration) *Scheduler {
	if l == nil {
		l = logger.Nop()
	}
	cl := cronLogger{l: l}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		l:       l,
		timeout: timeout,
		jobs:    make(map[string]Job),
		history: make(map[string][]JobResult),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// AddJob registers job under its schedule.
func (s *Scheduler) AddJob(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already exists", name)
	}
	if _, err := s.cron.AddFunc(job.Schedule(), func() { s.runJob(job) }); err != nil {
		return fmt.Errorf("schedule job %s: %w", name, err)
	}
	s.jobs[name] = job
	s.l.Info("job scheduled", logger.String("job", name), logger.String("schedule", job.Schedule()))
	return nil
}

func (s *Scheduler) Start() {
	s.l.Info("scheduler starting")
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.l.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow runs the named job synchronously, outside its schedule.
func (s *Scheduler) RunNow(name string) (JobResult, error) {
	s.mu.RLock()
	job, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return JobResult{}, fmt.Errorf("job %s not found", name)
	}
	return s.runJob(job), nil
}

func (s *Scheduler) runJob(job Job) JobResult {
	ctx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	err := job.Run(ctx)
	res := JobResult{JobName: job.Name(), StartTime: start, Duration: time.Since(start), Success: err == nil}
	if err != nil {
		res.Error = err.Error()
		s.l.Warn("job failed", logger.String("job", res.JobName), logger.Duration("duration_ms", res.Duration), logger.Error(err))
	} else {
		s.l.Debug("job done", logger.String("job", res.JobName), logger.Duration("duration_ms", res.Duration))
	}

	s.mu.Lock()
	h := append(s.history[res.JobName], res)
	if len(h) > historySize {
		h = h[len(h)-historySize:]
	}
	s.history[res.JobName] = h
	s.mu.Unlock()
	return res
}

// History returns the recent results of a job, oldest first.
func (s *Scheduler) History(name string) []JobResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]JobResult(nil), s.history[name]...)
}

// cronLogger adapts the app logger to cron.Logger.
type cronLogger struct{ l *logger.Logger }

func (c cronLogger) Info(msg string, kv ...interface{}) {
	c.l.Debug("cron: "+msg, kvFields(kv)...)
}

func (c cronLogger) Error(err error, msg string, kv ...interface{}) {
	c.l.Error("cron: "+msg, append(kvFields(kv), logger.Error(err))...)
}

func kvFields(kv []interface{}) []logger.Field {
	out := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logger.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
