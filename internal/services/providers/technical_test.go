package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/services/indicators"
)

func TestTechnicalOversoldBuy(t *testing.T) {
	p := NewTechnicalProvider(fixedClock{testNow}, nil)
	bars := barsFrom(ramp(60, 200, -1))

	sig, err := p.GenerateSignal(context.Background(), "EURUSD", quoteAt("EURUSD", bars), bars)
	require.NoError(t, err)
	require.NotNil(t, sig)

	// RSI rule only: the falling MACD histogram disagrees with BUY
	assert.Equal(t, models.SideBuy, sig.Side)
	assert.InDelta(t, 25, sig.Strength, 1e-9)
	assert.InDelta(t, 20, sig.Confidence, 1e-9)
	assert.Equal(t, TechnicalID, sig.Source)
	assert.Equal(t, testNow.Add(technicalTTL), sig.ExpiresAt)
	assert.Contains(t, sig.Indicators, "rsi")
}

func TestTechnicalOverboughtSell(t *testing.T) {
	p := NewTechnicalProvider(fixedClock{testNow}, nil)
	bars := barsFrom(ramp(60, 100, 1))

	sig, err := p.GenerateSignal(context.Background(), "EURUSD", quoteAt("EURUSD", bars), bars)
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, models.SideSell, sig.Side)
	assert.InDelta(t, 25, sig.Strength, 1e-9)
}

func TestTechnicalBollingerProximity(t *testing.T) {
	closes := append(ramp(60, 100, 0), ramp(14, 99.99, -0.01)...)
	bars := barsFrom(closes)
	p := NewTechnicalProvider(fixedClock{testNow}, nil)

	sig, err := p.GenerateSignal(context.Background(), "EURUSD", quoteAt("EURUSD", bars), bars)
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, models.SideBuy, sig.Side)
	assert.InDelta(t, 40, sig.Strength, 1e-9)
	assert.InDelta(t, 32, sig.Confidence, 1e-9)
	assert.Contains(t, sig.Reasoning, "lower Bollinger band")
}

func TestTechnicalTrendConfirmation(t *testing.T) {
	closes := append(ramp(230, 100, 1), ramp(20, 329, -0.5)...)
	bars := barsFrom(closes)
	p := NewTechnicalProvider(fixedClock{testNow}, nil)

	sig, err := p.GenerateSignal(context.Background(), "EURUSD", quoteAt("EURUSD", bars), bars)
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, models.SideBuy, sig.Side)
	assert.InDelta(t, 35, sig.Strength, 1e-9)
	assert.Contains(t, sig.Indicators, "sma200")
}

func TestTechnicalMACDPicksSideWhenRSINeutral(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + float64(i%2)
	}
	bars := barsFrom(closes)
	macd, err := indicators.MACD(closes)
	require.NoError(t, err)
	require.NotZero(t, macd.Histogram)

	p := NewTechnicalProvider(fixedClock{testNow}, nil)
	sig, err := p.GenerateSignal(context.Background(), "EURUSD", quoteAt("EURUSD", bars), bars)
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, sideOf(macd.Histogram), sig.Side)
	assert.InDelta(t, 20, sig.Strength, 1e-9)
}

func TestTechnicalInsufficientDataWithoutFallback(t *testing.T) {
	bars := barsFrom(ramp(10, 100, 1))
	p := NewTechnicalProvider(fixedClock{testNow}, NewDemoFallback(false, 1))

	sig, err := p.GenerateSignal(context.Background(), "EURUSD", quoteAt("EURUSD", bars), bars)
	require.NoError(t, err)
	assert.Nil(t, sig)
}

func TestTechnicalDemoFallbackIsSeeded(t *testing.T) {
	bars := barsFrom(ramp(10, 100, 1))
	gen := func() *models.Signal {
		p := NewTechnicalProvider(fixedClock{testNow}, NewDemoFallback(true, 42))
		sig, err := p.GenerateSignal(context.Background(), "EURUSD", quoteAt("EURUSD", bars), bars)
		require.NoError(t, err)
		require.NotNil(t, sig)
		return sig
	}
	a, b := gen(), gen()
	assert.Equal(t, a.Side, b.Side)
	assert.Equal(t, a.Strength, b.Strength)
	assert.GreaterOrEqual(t, a.Strength, 20.0)
	assert.LessOrEqual(t, a.Strength, 60.0)
	assert.Equal(t, 1.0, a.Indicators["demo"])
	assert.True(t, a.ExpiresAt.After(a.CreatedAt))
}
