package providers

import (
	"context"
	"fmt"

	"SignalDesk/internal/domain/models"
	domsvc "SignalDesk/internal/domain/service"
	"SignalDesk/internal/services/indicators"
)

// TrendPredictor is a naive stand-in for a real model: it fits a least-squares
// line through the last Window closes and extrapolates it Horizon bars ahead.
type TrendPredictor struct {
	Window  int
	Horizon int
}

func NewTrendPredictor() *TrendPredictor {
	return &TrendPredictor{Window: 20, Horizon: 5}
}

func (t *TrendPredictor) Predict(_ context.Context, _ string, history []models.Bar) (float64, error) {
	if t.Window < 2 || len(history) < t.Window {
		return 0, fmt.Errorf("trend predictor: need %d bars, have %d: %w", t.Window, len(history), indicators.ErrInsufficientData)
	}
	closes := models.Closes(history[len(history)-t.Window:])
	n := float64(len(closes))
	var sx, sy, sxy, sxx float64
	for i, y := range closes {
		x := float64(i)
		sx += x
		sy += y
		sxy += x * y
		sxx += x * x
	}
	slope := (n*sxy - sx*sy) / (n*sxx - sx*sx)
	intercept := (sy - slope*sx) / n
	return intercept + slope*(n-1+float64(t.Horizon)), nil
}

var _ domsvc.Predictor = (*TrendPredictor)(nil)
