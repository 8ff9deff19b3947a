package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
)

var t0 = time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

func quote(sym string, price float64, at time.Time) models.Quote {
	return models.Quote{Symbol: sym, Price: price, Bid: price, Ask: price, Volume: 1, Timestamp: at}
}

func TestQuoteBookFoldsMinuteBars(t *testing.T) {
	b := NewQuoteBook(10)

	_, closed := b.Update(quote("EURUSD", 1.10, t0.Add(5*time.Second)))
	assert.False(t, closed)
	b.Update(quote("EURUSD", 1.12, t0.Add(20*time.Second)))
	b.Update(quote("EURUSD", 1.09, t0.Add(40*time.Second)))

	bar, closed := b.Update(quote("EURUSD", 1.11, t0.Add(70*time.Second)))
	require.True(t, closed)
	assert.Equal(t, models.Bar{Timestamp: t0, Open: 1.10, High: 1.12, Low: 1.09, Close: 1.09, Volume: 3}, *bar)

	bars, err := b.GetLatestNBars(context.Background(), "EURUSD", 10, domrepo.TF1m)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, t0.Add(time.Minute), bars[1].Timestamp)
	assert.Equal(t, 1.11, bars[1].Close)

	q, ok := b.Latest("EURUSD")
	require.True(t, ok)
	assert.Equal(t, 1.11, q.Price)
}

func TestQuoteBookIgnoresStaleQuotes(t *testing.T) {
	b := NewQuoteBook(10)
	b.Update(quote("EURUSD", 1.10, t0.Add(30*time.Second)))
	b.Update(quote("EURUSD", 9.99, t0.Add(10*time.Second)))

	q, _ := b.Latest("EURUSD")
	assert.Equal(t, 1.10, q.Price)

	_, ok := b.Latest("GBPUSD")
	assert.False(t, ok)
}

func TestQuoteBookCapacityAndAggregation(t *testing.T) {
	b := NewQuoteBook(12)
	for i := 0; i < 20; i++ {
		b.Update(quote("EURUSD", float64(100+i), t0.Add(time.Duration(i)*time.Minute)))
	}

	bars, err := b.GetLatestNBars(context.Background(), "EURUSD", 0, domrepo.TF1m)
	require.NoError(t, err)
	assert.Len(t, bars, 13, "12 closed plus the forming bar")
	assert.Equal(t, 107.0, bars[0].Close)

	five, err := b.GetLatestNBars(context.Background(), "EURUSD", 2, domrepo.TF5m)
	require.NoError(t, err)
	require.Len(t, five, 2)
	assert.Equal(t, t0.Add(10*time.Minute), five[0].Timestamp)
	assert.Equal(t, 110.0, five[0].Open)
	assert.Equal(t, 114.0, five[0].Close)
	assert.Equal(t, 114.0, five[0].High)
	assert.Equal(t, 5.0, five[0].Volume)
	assert.Equal(t, 119.0, five[1].Close)
}
