package providers

import (
	"context"
	"fmt"
	"math"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	domsvc "SignalDesk/internal/domain/service"
)

const (
	SentimentID        = "sentiment"
	sentimentTTL       = 60 * time.Minute
	sentimentThreshold = 0.2
	sentimentConf      = 65
)

// SentimentProvider turns an external sentiment score in [-1,1] into a signal.
type SentimentProvider struct {
	source   domrepo.SentimentSource
	clock    domrepo.Clock
	fallback *DemoFallback
}

func NewSentimentProvider(source domrepo.SentimentSource, clock domrepo.Clock, fallback *DemoFallback) *SentimentProvider {
	return &SentimentProvider{source: source, clock: clock, fallback: fallback}
}

func (p *SentimentProvider) ID() string   { return SentimentID }
func (p *SentimentProvider) Name() string { return "Market Sentiment" }

func (p *SentimentProvider) GenerateSignal(ctx context.Context, symbol string, _ models.Quote, _ []models.Bar) (*models.Signal, error) {
	now := p.clock.Now()
	s, err := p.source.GetSentiment(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("sentiment %s: %w", symbol, err)
	}
	if s == nil || math.Abs(s.Score) < sentimentThreshold {
		return p.fallback.synthesize(symbol, now, fallbackProfile{
			source:      SentimentID,
			minStrength: 20,
			maxStrength: 40,
			confidence:  func(float64) float64 { return sentimentConf },
			ttl:         sentimentTTL,
		}), nil
	}

	score := math.Max(-1, math.Min(1, s.Score))
	side, mood := models.SideBuy, "bullish"
	if score < 0 {
		side, mood = models.SideSell, "bearish"
	}
	reason := fmt.Sprintf("market sentiment %s (%.2f), %.0f%% of traders long", mood, score, s.Positioning)
	sig := models.NewSignal(symbol, side, math.Abs(score)*100, sentimentConf, SentimentID,
		map[string]float64{"sentiment": score, "positioning": s.Positioning},
		reason, now, sentimentTTL)
	return &sig, nil
}

var _ domsvc.SignalProvider = (*SentimentProvider)(nil)
