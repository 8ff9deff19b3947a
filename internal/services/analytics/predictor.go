package analytics

import (
	"context"
	"fmt"
	"time"

	"SignalDesk/internal/domain/models"
	domsvc "SignalDesk/internal/domain/service"
)

// HTTPPredictor asks an external model service for the next price.
type HTTPPredictor struct {
	base     *HTTPServiceBase
	attempts int
}

func NewHTTPPredictor(baseURL string, timeout time.Duration) *HTTPPredictor {
	return &HTTPPredictor{base: NewHTTPServiceBase(baseURL, timeout), attempts: 3}
}

type predictRequest struct {
	Symbol string    `json:"symbol"`
	Closes []float64 `json:"closes"`
}

type predictResponse struct {
	Predicted float64 `json:"predicted"`
	Model     string  `json:"model"`
}

func (p *HTTPPredictor) Predict(ctx context.Context, symbol string, history []models.Bar) (float64, error) {
	var pr predictResponse
	err := p.base.PostJSONWithRetry(ctx, "/price/predict", predictRequest{Symbol: symbol, Closes: models.Closes(history)}, &pr, p.attempts)
	if err != nil {
		return 0, fmt.Errorf("predict: %w", err)
	}
	if pr.Predicted <= 0 {
		return 0, fmt.Errorf("predict: model %q returned non-positive price", pr.Model)
	}
	return pr.Predicted, nil
}

var _ domsvc.Predictor = (*HTTPPredictor)(nil)
