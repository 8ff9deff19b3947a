package models

import (
	"time"

	"github.com/google/uuid"
)

// Side is the direction of a trading signal.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Signal is a directional recommendation produced by one provider for one symbol.
// Strength and Confidence are percentages in [0,100].
type Signal struct {
	ID         string             `json:"id"`
	Symbol     string             `json:"symbol"`
	Side       Side               `json:"side"`
	Strength   float64            `json:"strength"`
	Confidence float64            `json:"confidence"`
	Source     string             `json:"source"`
	Indicators map[string]float64 `json:"indicators,omitempty"`
	Reasoning  string             `json:"reasoning"`
	CreatedAt  time.Time          `json:"created_at"`
	ExpiresAt  time.Time          `json:"expires_at"`
}

// NewSignal builds a signal with a fresh ID, clamped strength/confidence and
// an expiry of createdAt+ttl. A non-positive ttl is bumped to one second so
// ExpiresAt always lies after CreatedAt.
func NewSignal(symbol string, side Side, strength, confidence float64, source string, indicators map[string]float64, reasoning string, createdAt time.Time, ttl time.Duration) Signal {
	if ttl <= 0 {
		ttl = time.Second
	}
	return Signal{
		ID:         uuid.NewString(),
		Symbol:     symbol,
		Side:       side,
		Strength:   ClampPercent(strength),
		Confidence: ClampPercent(confidence),
		Source:     source,
		Indicators: indicators,
		Reasoning:  reasoning,
		CreatedAt:  createdAt,
		ExpiresAt:  createdAt.Add(ttl),
	}
}

// ActiveAt reports whether the signal has not yet expired at t.
func (s Signal) ActiveAt(t time.Time) bool {
	return s.ExpiresAt.After(t)
}

// ClampPercent bounds v to [0,100].
func ClampPercent(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

// ConsensusSignal aggregates the majority side of a symbol's active signals.
type ConsensusSignal struct {
	Signal
	BuyCount  int `json:"buy_count"`
	SellCount int `json:"sell_count"`
	Agreeing  int `json:"agreeing"`
}

// ProviderInfo describes a registered signal provider.
type ProviderInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// Sentiment is an externally computed market sentiment reading.
type Sentiment struct {
	Symbol      string    `json:"symbol"`
	Score       float64   `json:"score"`       // -1 (bearish) .. 1 (bullish)
	Positioning float64   `json:"positioning"` // percent of traders long
	UpdatedAt   time.Time `json:"updated_at"`
}
