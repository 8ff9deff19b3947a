package middleware

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
)

// QuoteSink is the downstream stage the pipeline feeds.
type QuoteSink interface {
	Process(ctx context.Context, q models.Quote) error
}

// QuoteSinkFunc adapts a function to QuoteSink.
type QuoteSinkFunc func(ctx context.Context, q models.Quote) error

func (f QuoteSinkFunc) Process(ctx context.Context, q models.Quote) error { return f(ctx, q) }

// QuotePipeline sits between the quote stream and the quote book.
// It validates, filters unknown symbols, throttles per symbol and
// optionally transforms quotes.
type QuotePipeline struct {
	sink      QuoteSink
	metrics   domrepo.Metrics
	maxRPS    int
	allowed   map[string]struct{}
	transform func(models.Quote) models.Quote
	now       func() time.Time

	mu       sync.Mutex
	lastSeen map[string]time.Time // per-symbol last accepted time
}

type PipelineOption func(*QuotePipeline)

// WithMaxRPS sets the max quotes per second per symbol. Zero disables throttling.
func WithMaxRPS(n int) PipelineOption {
	return func(p *QuotePipeline) {
		if n >= 0 {
			p.maxRPS = n
		}
	}
}

// WithSymbols restricts the pipeline to the given symbols.
func WithSymbols(symbols []string) PipelineOption {
	return func(p *QuotePipeline) {
		if len(symbols) == 0 {
			return
		}
		p.allowed = make(map[string]struct{}, len(symbols))
		for _, s := range symbols {
			p.allowed[s] = struct{}{}
		}
	}
}

// WithTransform sets a transformation hook applied before throttling.
func WithTransform(fn func(models.Quote) models.Quote) PipelineOption {
	return func(p *QuotePipeline) { p.transform = fn }
}

func withNow(fn func() time.Time) PipelineOption {
	return func(p *QuotePipeline) { p.now = fn }
}

// NewQuotePipeline creates a new pipeline.
func NewQuotePipeline(sink QuoteSink, metrics domrepo.Metrics, opts ...PipelineOption) *QuotePipeline {
	p := &QuotePipeline{
		sink:     sink,
		metrics:  metrics,
		maxRPS:   20, // default throttle per symbol
		now:      time.Now,
		lastSeen: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process validates, throttles, and forwards q downstream. Throttled and
// filtered quotes are dropped without error.
func (p *QuotePipeline) Process(ctx context.Context, q models.Quote) error {
	start := p.now()
	if err := validateQuote(q); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if p.allowed != nil {
		if _, ok := p.allowed[q.Symbol]; !ok {
			return nil
		}
	}
	if p.transform != nil {
		q = p.transform(q)
		if err := validateQuote(q); err != nil {
			p.metrics.RecordError("pipeline_transform_invalid")
			return err
		}
	}
	if !p.allow(q.Symbol, start) {
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}
	if err := p.sink.Process(ctx, q); err != nil {
		p.metrics.RecordError("pipeline_process")
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

func validateQuote(q models.Quote) error {
	if q.Symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	if q.Timestamp.IsZero() {
		return fmt.Errorf("timestamp invalid")
	}
	if math.IsNaN(q.Price) || q.Price <= 0 {
		return fmt.Errorf("price invalid: %v", q.Price)
	}
	if q.Volume < 0 || q.Bid < 0 || q.Ask < 0 {
		return fmt.Errorf("negative bid/ask/volume")
	}
	return nil
}

func (p *QuotePipeline) allow(symbol string, now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	last, ok := p.lastSeen[symbol]
	if ok && now.Sub(last) < time.Second/time.Duration(p.maxRPS) {
		return false
	}
	p.lastSeen[symbol] = now
	return true
}
