package service

import (
	"context"

	"SignalDesk/internal/domain/models"
)

// SignalProvider produces at most one signal per symbol per cycle.
// A nil signal with a nil error means the provider has nothing to say.
type SignalProvider interface {
	ID() string
	Name() string
	GenerateSignal(ctx context.Context, symbol string, quote models.Quote, history []models.Bar) (*models.Signal, error)
}

// Predictor estimates the next price from a bar history.
type Predictor interface {
	Predict(ctx context.Context, symbol string, history []models.Bar) (float64, error)
}
