package repository

import (
	"context"
	"sync"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
)

// QuoteBook keeps the latest quote per symbol and folds quotes into
// one-minute bars in memory. It serves as a HistoryStore when no database is
// configured.
type QuoteBook struct {
	mu       sync.RWMutex
	quotes   map[string]models.Quote
	closed   map[string][]models.Bar // ascending, at most capacity
	forming  map[string]*models.Bar
	capacity int
}

// NewQuoteBook creates a book retaining up to capacity closed bars per symbol.
func NewQuoteBook(capacity int) *QuoteBook {
	if capacity <= 0 {
		capacity = 1000
	}
	return &QuoteBook{
		quotes:   make(map[string]models.Quote),
		closed:   make(map[string][]models.Bar),
		forming:  make(map[string]*models.Bar),
		capacity: capacity,
	}
}

// Update records q. When q opens a new minute, the bar it supersedes is
// returned. Quotes older than the latest one are ignored.
func (b *QuoteBook) Update(q models.Quote) (*models.Bar, bool) {
	ts := q.Timestamp.UTC()
	bucket := ts.Truncate(time.Minute)

	b.mu.Lock()
	defer b.mu.Unlock()

	if prev, ok := b.quotes[q.Symbol]; ok && ts.Before(prev.Timestamp) {
		return nil, false
	}
	b.quotes[q.Symbol] = q

	cur := b.forming[q.Symbol]
	switch {
	case cur == nil:
		b.forming[q.Symbol] = newBar(bucket, q)
		return nil, false
	case bucket.Equal(cur.Timestamp):
		cur.High = max(cur.High, q.Price)
		cur.Low = min(cur.Low, q.Price)
		cur.Close = q.Price
		cur.Volume += q.Volume
		return nil, false
	case bucket.After(cur.Timestamp):
		done := *cur
		bars := append(b.closed[q.Symbol], done)
		if len(bars) > b.capacity {
			bars = bars[len(bars)-b.capacity:]
		}
		b.closed[q.Symbol] = bars
		b.forming[q.Symbol] = newBar(bucket, q)
		return &done, true
	default:
		return nil, false
	}
}

func newBar(bucket time.Time, q models.Quote) *models.Bar {
	return &models.Bar{
		Timestamp: bucket,
		Open:      q.Price,
		High:      q.Price,
		Low:       q.Price,
		Close:     q.Price,
		Volume:    q.Volume,
	}
}

// Latest returns a copy of the newest quote for symbol.
func (b *QuoteBook) Latest(symbol string) (*models.Quote, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	q, ok := b.quotes[symbol]
	if !ok {
		return nil, false
	}
	return &q, true
}

// GetLatestNBars returns up to n bars ending with the forming bar.
func (b *QuoteBook) GetLatestNBars(_ context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.Bar, error) {
	b.mu.RLock()
	bars := make([]models.Bar, 0, len(b.closed[symbol])+1)
	bars = append(bars, b.closed[symbol]...)
	if cur := b.forming[symbol]; cur != nil {
		bars = append(bars, *cur)
	}
	b.mu.RUnlock()

	if tf != domrepo.TF1m {
		bars = aggregateBars(bars, tf.Duration())
	}
	if n > 0 && len(bars) > n {
		bars = bars[len(bars)-n:]
	}
	return bars, nil
}

// aggregateBars folds ascending bars into buckets of width d.
func aggregateBars(bars []models.Bar, d time.Duration) []models.Bar {
	out := make([]models.Bar, 0, len(bars))
	for _, bar := range bars {
		bucket := bar.Timestamp.Truncate(d)
		if n := len(out); n > 0 && out[n-1].Timestamp.Equal(bucket) {
			last := &out[n-1]
			last.High = max(last.High, bar.High)
			last.Low = min(last.Low, bar.Low)
			last.Close = bar.Close
			last.Volume += bar.Volume
			continue
		}
		bar.Timestamp = bucket
		out = append(out, bar)
	}
	return out
}

var _ domrepo.HistoryStore = (*QuoteBook)(nil)
