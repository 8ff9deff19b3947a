package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalDesk/internal/domain/models"
	mid "SignalDesk/internal/middleware"
	"SignalDesk/internal/repository"
	"SignalDesk/pkg/metrics"
)

// scriptedStream delivers one batch of quotes per Read, then fails the read.
type scriptedStream struct {
	mu         sync.Mutex
	batches    [][]models.Quote
	reconnects int
	connected  bool
}

func (s *scriptedStream) Connect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	return nil
}

func (s *scriptedStream) Subscribe(context.Context) error { return nil }

func (s *scriptedStream) Read(ctx context.Context) (<-chan models.Quote, <-chan error) {
	s.mu.Lock()
	var batch []models.Quote
	if len(s.batches) > 0 {
		batch, s.batches = s.batches[0], s.batches[1:]
	}
	s.mu.Unlock()

	qCh := make(chan models.Quote)
	errCh := make(chan error, 1)
	go func() {
		defer close(qCh)
		for _, q := range batch {
			select {
			case qCh <- q:
			case <-ctx.Done():
				return
			}
		}
		if batch == nil {
			<-ctx.Done()
			return
		}
		errCh <- errors.New("connection reset")
	}()
	return qCh, errCh
}

func (s *scriptedStream) Reconnect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnects++
	return nil
}

func (s *scriptedStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	return nil
}

func (s *scriptedStream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

type barRecorder struct {
	mu   sync.Mutex
	bars []models.Bar
}

func (b *barRecorder) StoreBars(_ context.Context, _ string, bars []models.Bar) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bars = append(b.bars, bars...)
	return nil
}

func (b *barRecorder) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.bars)
}

func TestQuoteCollectorFeedsBookAcrossReconnects(t *testing.T) {
	at := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	stream := &scriptedStream{batches: [][]models.Quote{
		{{Symbol: "EURUSD", Price: 1.10, Timestamp: at}},
		{{Symbol: "EURUSD", Price: 1.11, Timestamp: at.Add(time.Minute)}},
	}}
	book := repository.NewQuoteBook(10)
	bars := &barRecorder{}
	c := NewQuoteCollector(stream, book, bars, metrics.Nop{}, nil, mid.WithMaxRPS(0))

	require.NoError(t, c.Start(context.Background()))
	assert.True(t, c.IsConnected())

	require.Eventually(t, func() bool {
		q, ok := book.Latest("EURUSD")
		return ok && q.Price == 1.11
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return bars.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Shutdown(ctx))
	assert.False(t, c.IsConnected())

	stream.mu.Lock()
	defer stream.mu.Unlock()
	assert.GreaterOrEqual(t, stream.reconnects, 2)
}
