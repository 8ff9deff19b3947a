package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalDesk/internal/domain/models"
)

type stubPredictor struct {
	price float64
	calls int
}

func (s *stubPredictor) Predict(context.Context, string, []models.Bar) (float64, error) {
	s.calls++
	return s.price, nil
}

func TestMLPredictionStrength(t *testing.T) {
	bars := barsFrom(ramp(60, 100, 0))
	cases := []struct {
		name      string
		predicted float64
		side      models.Side
		strength  float64
	}{
		{"floored", 101, models.SideBuy, 25},
		{"scaled", 103, models.SideBuy, 60},
		{"capped", 90, models.SideSell, 100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := NewMLPredictionProvider(&stubPredictor{price: tc.predicted}, fixedClock{testNow}, nil)
			sig, err := p.GenerateSignal(context.Background(), "EURUSD", quoteAt("EURUSD", bars), bars)
			require.NoError(t, err)
			require.NotNil(t, sig)
			assert.Equal(t, tc.side, sig.Side)
			assert.InDelta(t, tc.strength, sig.Strength, 1e-9)
			assert.InDelta(t, 75, sig.Confidence, 1e-9)
			assert.Equal(t, testNow.Add(mlTTL), sig.ExpiresAt)
		})
	}
}

func TestMLPredictionSmallChange(t *testing.T) {
	bars := barsFrom(ramp(60, 100, 0))
	p := NewMLPredictionProvider(&stubPredictor{price: 100.1}, fixedClock{testNow}, nil)
	sig, err := p.GenerateSignal(context.Background(), "EURUSD", quoteAt("EURUSD", bars), bars)
	require.NoError(t, err)
	assert.Nil(t, sig)
}

func TestMLPredictionNeedsFiftyBars(t *testing.T) {
	bars := barsFrom(ramp(49, 100, 0))
	pred := &stubPredictor{price: 120}
	p := NewMLPredictionProvider(pred, fixedClock{testNow}, nil)
	sig, err := p.GenerateSignal(context.Background(), "EURUSD", quoteAt("EURUSD", bars), bars)
	require.NoError(t, err)
	assert.Nil(t, sig)
	assert.Zero(t, pred.calls)
}

func TestTrendPredictorExtrapolates(t *testing.T) {
	bars := barsFrom(ramp(60, 100, 1))
	got, err := NewTrendPredictor().Predict(context.Background(), "EURUSD", bars)
	require.NoError(t, err)
	assert.InDelta(t, 159+5, got, 1e-6)

	_, err = NewTrendPredictor().Predict(context.Background(), "EURUSD", bars[:5])
	assert.Error(t, err)
}
