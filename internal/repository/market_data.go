package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	applogger "SignalDesk/pkg/logger"
)

// QuoteLookup returns the newest known quote for a symbol.
type QuoteLookup interface {
	Latest(symbol string) (*models.Quote, bool)
}

// MarketData implements MarketDataSource over a quote lookup and one or two
// history stores. Every call is bounded by the configured timeout.
type MarketData struct {
	quotes           QuoteLookup
	history          domrepo.HistoryStore
	fallback         domrepo.HistoryStore
	tf               domrepo.Timeframe
	timeout          time.Duration
	quoteFromHistory bool
	l                *applogger.Logger
}

type MarketDataOption func(*MarketData)

// WithQuotes sets the live quote lookup.
func WithQuotes(q QuoteLookup) MarketDataOption {
	return func(m *MarketData) { m.quotes = q }
}

// WithFallbackHistory sets a store consulted when the primary one fails.
func WithFallbackHistory(h domrepo.HistoryStore) MarketDataOption {
	return func(m *MarketData) { m.fallback = h }
}

// WithTimeframe sets the bar resolution handed to providers.
func WithTimeframe(tf domrepo.Timeframe) MarketDataOption {
	return func(m *MarketData) {
		if domrepo.IsValidTimeframe(tf) {
			m.tf = tf
		}
	}
}

// WithCallTimeout bounds each quote or history lookup.
func WithCallTimeout(d time.Duration) MarketDataOption {
	return func(m *MarketData) { m.timeout = d }
}

// WithQuoteFromHistory derives a quote from the last bar when no live quote exists.
func WithQuoteFromHistory(enabled bool) MarketDataOption {
	return func(m *MarketData) { m.quoteFromHistory = enabled }
}

func WithMarketDataLogger(l *applogger.Logger) MarketDataOption {
	return func(m *MarketData) {
		if l != nil {
			m.l = l
		}
	}
}

func NewMarketData(history domrepo.HistoryStore, opts ...MarketDataOption) *MarketData {
	m := &MarketData{
		history: history,
		tf:      domrepo.DefaultTimeframe(),
		timeout: 5 * time.Second,
		l:       applogger.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MarketData) GetLatestQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	if m.quotes != nil {
		if q, ok := m.quotes.Latest(symbol); ok {
			return q, nil
		}
	}
	if !m.quoteFromHistory {
		return nil, nil
	}
	bars, err := m.GetHistory(ctx, symbol, 1)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, nil
	}
	last := bars[len(bars)-1]
	return &models.Quote{
		Symbol:    symbol,
		Price:     last.Close,
		Bid:       last.Close,
		Ask:       last.Close,
		Timestamp: last.Timestamp,
		Volume:    last.Volume,
	}, nil
}

func (m *MarketData) GetHistory(ctx context.Context, symbol string, count int) ([]models.Bar, error) {
	if m.history == nil && m.fallback == nil {
		return nil, errors.New("no history store configured")
	}
	if m.history != nil {
		bars, err := m.fetch(ctx, m.history, symbol, count)
		if err == nil || m.fallback == nil {
			return bars, err
		}
		m.l.Warn("history store failed, using fallback",
			applogger.String("symbol", symbol),
			applogger.Error(err),
		)
	}
	return m.fetch(ctx, m.fallback, symbol, count)
}

func (m *MarketData) fetch(ctx context.Context, store domrepo.HistoryStore, symbol string, count int) ([]models.Bar, error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	bars, err := store.GetLatestNBars(ctx, symbol, count, m.tf)
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", symbol, err)
	}
	return bars, nil
}

var _ domrepo.MarketDataSource = (*MarketData)(nil)
