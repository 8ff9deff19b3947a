package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalDesk/internal/domain/models"
	"SignalDesk/pkg/metrics"
)

type sinkRecorder struct {
	got []models.Quote
	err error
}

func (s *sinkRecorder) Process(_ context.Context, q models.Quote) error {
	s.got = append(s.got, q)
	return s.err
}

var base = time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

func q(sym string, price float64) models.Quote {
	return models.Quote{Symbol: sym, Price: price, Bid: price, Ask: price, Timestamp: base}
}

func TestPipelineValidatesAndFilters(t *testing.T) {
	sink := &sinkRecorder{}
	p := NewQuotePipeline(sink, metrics.Nop{}, WithSymbols([]string{"EURUSD"}))
	ctx := context.Background()

	assert.Error(t, p.Process(ctx, q("", 1)))
	assert.Error(t, p.Process(ctx, q("EURUSD", 0)))
	assert.Error(t, p.Process(ctx, models.Quote{Symbol: "EURUSD", Price: 1}))
	require.NoError(t, p.Process(ctx, q("GBPUSD", 1.25)))
	require.NoError(t, p.Process(ctx, q("EURUSD", 1.08)))

	require.Len(t, sink.got, 1)
	assert.Equal(t, "EURUSD", sink.got[0].Symbol)
}

func TestPipelineThrottlesPerSymbol(t *testing.T) {
	sink := &sinkRecorder{}
	now := base
	p := NewQuotePipeline(sink, metrics.Nop{}, WithMaxRPS(2), withNow(func() time.Time { return now }))
	ctx := context.Background()

	require.NoError(t, p.Process(ctx, q("EURUSD", 1)))
	now = now.Add(100 * time.Millisecond)
	require.NoError(t, p.Process(ctx, q("EURUSD", 2)))
	require.NoError(t, p.Process(ctx, q("USDJPY", 150)))
	now = now.Add(500 * time.Millisecond)
	require.NoError(t, p.Process(ctx, q("EURUSD", 3)))

	require.Len(t, sink.got, 3)
	assert.Equal(t, []float64{1, 150, 3}, []float64{sink.got[0].Price, sink.got[1].Price, sink.got[2].Price})
}

func TestPipelineTransformAndDownstreamError(t *testing.T) {
	sink := &sinkRecorder{err: errors.New("book closed")}
	p := NewQuotePipeline(sink, metrics.Nop{}, WithMaxRPS(0), WithTransform(func(in models.Quote) models.Quote {
		in.Price = (in.Bid + in.Ask) / 2
		return in
	}))

	in := q("EURUSD", 1)
	in.Bid, in.Ask = 1.0, 1.2
	err := p.Process(context.Background(), in)
	assert.ErrorContains(t, err, "book closed")
	require.Len(t, sink.got, 1)
	assert.InDelta(t, 1.1, sink.got[0].Price, 1e-9)
}
