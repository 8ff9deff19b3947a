package usecase

import (
	"context"
	"sync"
	"time"

	"SignalDesk/internal/domain/models"
	drepo "SignalDesk/internal/domain/repository"
	mid "SignalDesk/internal/middleware"
	"SignalDesk/internal/repository"
	"SignalDesk/pkg/logger"
)

// QuoteCollector pumps a quote stream through the quote pipeline into the
// quote book, persisting bars the book closes when a BarWriter is set.
type QuoteCollector struct {
	stream  drepo.QuoteStream
	book    *repository.QuoteBook
	bars    drepo.BarWriter
	metrics drepo.Metrics
	pipe    *mid.QuotePipeline
	l       *logger.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewQuoteCollector creates a collector. bars may be nil.
func NewQuoteCollector(stream drepo.QuoteStream, book *repository.QuoteBook, bars drepo.BarWriter, metrics drepo.Metrics, l *logger.Logger, opts ...mid.PipelineOption) *QuoteCollector {
	if l == nil {
		l = logger.Nop()
	}
	c := &QuoteCollector{stream: stream, book: book, bars: bars, metrics: metrics, l: l}
	c.pipe = mid.NewQuotePipeline(mid.QuoteSinkFunc(c.apply), metrics, opts...)
	return c
}

// IsConnected returns true if the quote stream is connected.
func (c *QuoteCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *QuoteCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		_ = c.stream.Close()
		return err
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx)
	}()
	return nil
}

func (c *QuoteCollector) run(ctx context.Context) {
	for {
		qCh, errCh := c.stream.Read(ctx)
		c.consume(ctx, qCh, errCh)
		if ctx.Err() != nil {
			return
		}
		for {
			c.metrics.RecordError("stream")
			err := c.stream.Reconnect(ctx)
			if err == nil {
				c.l.Info("quote stream reconnected")
				break
			}
			if ctx.Err() != nil {
				return
			}
			c.l.Warn("quote stream reconnect failed", logger.Error(err))
		}
	}
}

// consume returns when the stream fails or ctx ends.
func (c *QuoteCollector) consume(ctx context.Context, qCh <-chan models.Quote, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errCh:
			if ok && err != nil {
				c.l.Warn("quote stream error", logger.Error(err))
			}
			return
		case q, ok := <-qCh:
			if !ok {
				return
			}
			if err := c.pipe.Process(ctx, q); err != nil {
				c.l.Debug("quote rejected", logger.String("symbol", q.Symbol), logger.Error(err))
			}
		}
	}
}

func (c *QuoteCollector) apply(ctx context.Context, q models.Quote) error {
	bar, closed := c.book.Update(q)
	if !closed || c.bars == nil {
		return nil
	}
	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.bars.StoreBars(wctx, q.Symbol, []models.Bar{*bar}); err != nil {
		c.metrics.RecordError("bar_store")
		c.l.Error("store bar failed", logger.String("symbol", q.Symbol), logger.Error(err))
	}
	return nil
}

// Shutdown stops the consume loop and closes the stream.
func (c *QuoteCollector) Shutdown(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	err := c.stream.Close()
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}
