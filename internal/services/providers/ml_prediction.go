package providers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	domsvc "SignalDesk/internal/domain/service"
	"SignalDesk/internal/services/indicators"
)

const (
	MLPredictionID  = "ml_prediction"
	mlTTL           = 30 * time.Minute
	mlMinBars       = 50
	mlMinChange     = 0.002
	mlConfidence    = 75
	mlMinStrength   = 25
	mlStrengthScale = 2000
)

// MLPredictionProvider compares a predicted price with the current one.
type MLPredictionProvider struct {
	predictor domsvc.Predictor
	clock     domrepo.Clock
	fallback  *DemoFallback
}

func NewMLPredictionProvider(predictor domsvc.Predictor, clock domrepo.Clock, fallback *DemoFallback) *MLPredictionProvider {
	return &MLPredictionProvider{predictor: predictor, clock: clock, fallback: fallback}
}

func (p *MLPredictionProvider) ID() string   { return MLPredictionID }
func (p *MLPredictionProvider) Name() string { return "ML Prediction" }

func (p *MLPredictionProvider) GenerateSignal(ctx context.Context, symbol string, quote models.Quote, history []models.Bar) (*models.Signal, error) {
	now := p.clock.Now()
	if len(history) < mlMinBars {
		return p.fallback.synthesize(symbol, now, p.demoProfile()), nil
	}
	predicted, err := p.predictor.Predict(ctx, symbol, history)
	if err != nil {
		if errors.Is(err, indicators.ErrInsufficientData) {
			return p.fallback.synthesize(symbol, now, p.demoProfile()), nil
		}
		return nil, fmt.Errorf("predict %s: %w", symbol, err)
	}

	current := quote.Price
	if current <= 0 {
		current = history[len(history)-1].Close
	}
	if current <= 0 {
		return nil, fmt.Errorf("predict %s: non-positive current price", symbol)
	}
	change := (predicted - current) / current
	if math.Abs(change) < mlMinChange {
		return p.fallback.synthesize(symbol, now, p.demoProfile()), nil
	}

	side := models.SideBuy
	if change < 0 {
		side = models.SideSell
	}
	strength := math.Max(math.Min(math.Abs(change)*mlStrengthScale, 100), mlMinStrength)
	reason := fmt.Sprintf("model predicts %.5f vs current %.5f (%+.2f%%)", predicted, current, change*100)
	sig := models.NewSignal(symbol, side, strength, mlConfidence, MLPredictionID,
		map[string]float64{"predicted_price": predicted, "current_price": current, "change": change},
		reason, now, mlTTL)
	return &sig, nil
}

func (p *MLPredictionProvider) demoProfile() fallbackProfile {
	return fallbackProfile{
		source:      MLPredictionID,
		minStrength: mlMinStrength,
		maxStrength: 50,
		confidence:  func(float64) float64 { return mlConfidence },
		ttl:         mlTTL,
	}
}

var _ domsvc.SignalProvider = (*MLPredictionProvider)(nil)
