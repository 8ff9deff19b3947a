package repository

import (
	"context"
	"time"

	"SignalDesk/internal/domain/models"
)

// MarketDataSource supplies the latest quote and recent bar history for a symbol.
// A nil quote with a nil error means no quote is available. Implementations
// carry their own timeout and retry policy.
type MarketDataSource interface {
	GetLatestQuote(ctx context.Context, symbol string) (*models.Quote, error)
	GetHistory(ctx context.Context, symbol string, count int) ([]models.Bar, error)
}

// HistoryStore reads bar history from persistent storage.
type HistoryStore interface {
	GetLatestNBars(ctx context.Context, symbol string, n int, tf Timeframe) ([]models.Bar, error)
}

// SentimentSource provides externally computed sentiment readings.
// A nil reading with a nil error means none is available.
type SentimentSource interface {
	GetSentiment(ctx context.Context, symbol string) (*models.Sentiment, error)
}

// SignalSink receives newly generated signals after a cycle commits.
type SignalSink interface {
	Name() string
	PublishSignals(ctx context.Context, signals []models.Signal) error
	Close() error
}

// SignalArchive is a sink that can also be queried.
type SignalArchive interface {
	SignalSink
	Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]models.Signal, error)
	Health(ctx context.Context) error
}

// Clock abstracts time so cycles and blackout checks are testable.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

type Metrics interface {
	RecordSignal(provider, symbol string, side models.Side)
	RecordProviderError(provider string)
	RecordMissingData(symbol string)
	RecordActiveSignals(symbol string, n int)
	RecordLatency(op string, seconds float64)
	RecordBlackout(active bool)
	RecordError(kind string)
}

// QuoteStream is a live feed of quotes.
type QuoteStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan models.Quote, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// BarWriter persists completed bars.
type BarWriter interface {
	StoreBars(ctx context.Context, symbol string, bars []models.Bar) error
}
