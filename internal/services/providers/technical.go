package providers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	domsvc "SignalDesk/internal/domain/service"
	"SignalDesk/internal/services/indicators"
)

const (
	TechnicalID  = "technical"
	technicalTTL = 15 * time.Minute

	rsiPeriod     = 14
	rsiOversold   = 40
	rsiOverbought = 60
	bbPeriod      = 20
	bbK           = 2.0
	bandProximity = 0.002
	trendFast     = 50
	trendSlow     = 200
)

// TechnicalProvider scores RSI, MACD, Bollinger band proximity and the
// SMA50/SMA200 trend. The first rule that picks a side fixes it; later rules
// only add strength when they agree.
type TechnicalProvider struct {
	clock    domrepo.Clock
	fallback *DemoFallback
}

func NewTechnicalProvider(clock domrepo.Clock, fallback *DemoFallback) *TechnicalProvider {
	return &TechnicalProvider{clock: clock, fallback: fallback}
}

func (p *TechnicalProvider) ID() string   { return TechnicalID }
func (p *TechnicalProvider) Name() string { return "Technical Analysis" }

func (p *TechnicalProvider) GenerateSignal(_ context.Context, symbol string, quote models.Quote, history []models.Bar) (*models.Signal, error) {
	now := p.clock.Now()
	closes := models.Closes(history)

	rsi, err := indicators.RSI(closes, rsiPeriod)
	if err != nil {
		return p.noSignal(symbol, now, err)
	}
	macd, err := indicators.MACD(closes)
	if err != nil {
		return p.noSignal(symbol, now, err)
	}
	bands, err := indicators.BollingerBands(closes, bbPeriod, bbK)
	if err != nil {
		return p.noSignal(symbol, now, err)
	}

	price := quote.Price
	if price <= 0 {
		price = closes[len(closes)-1]
	}

	ind := map[string]float64{
		"price":          price,
		"rsi":            rsi,
		"macd":           macd.MACD,
		"macd_signal":    macd.Signal,
		"macd_histogram": macd.Histogram,
		"bb_upper":       bands.Upper,
		"bb_middle":      bands.Middle,
		"bb_lower":       bands.Lower,
	}

	var side models.Side
	strength := 0.0
	var reasons []string

	switch {
	case rsi < rsiOversold:
		side = models.SideBuy
		strength += 25
		reasons = append(reasons, fmt.Sprintf("RSI oversold (%.1f)", rsi))
	case rsi > rsiOverbought:
		side = models.SideSell
		strength += 25
		reasons = append(reasons, fmt.Sprintf("RSI overbought (%.1f)", rsi))
	}

	if hs := sideOf(macd.Histogram); hs != "" {
		if side == "" {
			side = hs
		}
		if hs == side {
			strength += 20
			reasons = append(reasons, fmt.Sprintf("MACD histogram %s (%.5f)", direction(hs), macd.Histogram))
		}
	}

	switch {
	case side == models.SideBuy && near(price, bands.Lower):
		strength += 15
		reasons = append(reasons, "price at lower Bollinger band")
	case side == models.SideSell && near(price, bands.Upper):
		strength += 15
		reasons = append(reasons, "price at upper Bollinger band")
	}

	sma50, err50 := indicators.SMA(closes, trendFast)
	sma200, err200 := indicators.SMA(closes, trendSlow)
	if err50 == nil && err200 == nil {
		ind["sma50"] = sma50
		ind["sma200"] = sma200
		if (side == models.SideBuy && sma50 > sma200) || (side == models.SideSell && sma50 < sma200) {
			strength += 10
			reasons = append(reasons, "SMA50/SMA200 trend confirms")
		}
	}

	if side == "" || strength < 20 {
		return p.fallback.synthesize(symbol, now, p.demoProfile()), nil
	}

	strength = math.Min(strength, 100)
	confidence := math.Min(strength*0.8, 85)
	sig := models.NewSignal(symbol, side, strength, confidence, TechnicalID, ind, strings.Join(reasons, "; "), now, technicalTTL)
	return &sig, nil
}

func (p *TechnicalProvider) noSignal(symbol string, now time.Time, err error) (*models.Signal, error) {
	if errors.Is(err, indicators.ErrInsufficientData) {
		return p.fallback.synthesize(symbol, now, p.demoProfile()), nil
	}
	return nil, err
}

func (p *TechnicalProvider) demoProfile() fallbackProfile {
	return fallbackProfile{
		source:      TechnicalID,
		minStrength: 20,
		maxStrength: 60,
		confidence:  func(s float64) float64 { return math.Min(s*0.8, 85) },
		ttl:         technicalTTL,
	}
}

func near(price, level float64) bool {
	if level <= 0 {
		return false
	}
	return math.Abs(price-level)/level <= bandProximity
}

func sideOf(v float64) models.Side {
	switch {
	case v > 0:
		return models.SideBuy
	case v < 0:
		return models.SideSell
	default:
		return ""
	}
}

func direction(s models.Side) string {
	if s == models.SideBuy {
		return "bullish"
	}
	return "bearish"
}

var _ domsvc.SignalProvider = (*TechnicalProvider)(nil)
