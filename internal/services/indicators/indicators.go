// Package indicators implements technical indicators over ascending price series.
// Every function returns ErrInsufficientData when the series is shorter than
// the window it needs.
package indicators

import (
	"errors"
	"fmt"
	"math"
)

var ErrInsufficientData = errors.New("insufficient data")

// MACD periods.
const (
	MACDFast   = 12
	MACDSlow   = 26
	MACDSignal = 9
)

func insufficient(name string, need, have int) error {
	return fmt.Errorf("%s: need %d prices, have %d: %w", name, need, have, ErrInsufficientData)
}

// SMA is the arithmetic mean of the last period prices.
func SMA(series []float64, period int) (float64, error) {
	if period <= 0 || len(series) < period {
		return 0, insufficient("sma", period, len(series))
	}
	sum := 0.0
	for _, v := range series[len(series)-period:] {
		sum += v
	}
	return sum / float64(period), nil
}

// EMA is the recursive exponential moving average seeded with the first price,
// using k = 2/(period+1).
func EMA(series []float64, period int) (float64, error) {
	if period <= 0 || len(series) < period {
		return 0, insufficient("ema", period, len(series))
	}
	line := emaLine(series, period)
	return line[len(line)-1], nil
}

// emaLine returns the EMA value after every price.
func emaLine(series []float64, period int) []float64 {
	k := 2.0 / float64(period+1)
	out := make([]float64, len(series))
	out[0] = series[0]
	for i := 1; i < len(series); i++ {
		out[i] = series[i]*k + out[i-1]*(1-k)
	}
	return out
}

// RSI computes the relative strength index over the trailing period price
// differences. A window without losses yields 100, a flat window 50.
func RSI(series []float64, period int) (float64, error) {
	if period <= 0 || len(series) < period+1 {
		return 0, insufficient("rsi", period+1, len(series))
	}
	gains, losses := 0.0, 0.0
	window := series[len(series)-period-1:]
	for i := 1; i < len(window); i++ {
		d := window[i] - window[i-1]
		if d > 0 {
			gains += d
		} else {
			losses -= d
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50, nil
		}
		return 100, nil
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), nil
}

// MACDResult holds the latest MACD line, signal line and histogram values.
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// MACD computes the 12/26/9 MACD. The signal line is an EMA of the MACD line
// series, which starts once the slow EMA has its full window.
func MACD(series []float64) (MACDResult, error) {
	need := MACDSlow + MACDSignal - 1
	if len(series) < need {
		return MACDResult{}, insufficient("macd", need, len(series))
	}
	fast := emaLine(series, MACDFast)
	slow := emaLine(series, MACDSlow)
	line := make([]float64, 0, len(series)-MACDSlow+1)
	for i := MACDSlow - 1; i < len(series); i++ {
		line = append(line, fast[i]-slow[i])
	}
	signal := emaLine(line, MACDSignal)
	res := MACDResult{
		MACD:   line[len(line)-1],
		Signal: signal[len(signal)-1],
	}
	res.Histogram = res.MACD - res.Signal
	return res, nil
}

// Bands holds Bollinger band levels.
type Bands struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// BollingerBands computes SMA(period) ± k × population standard deviation of the window.
func BollingerBands(series []float64, period int, k float64) (Bands, error) {
	middle, err := SMA(series, period)
	if err != nil {
		return Bands{}, fmt.Errorf("bollinger: %w", err)
	}
	variance := 0.0
	for _, v := range series[len(series)-period:] {
		d := v - middle
		variance += d * d
	}
	sd := math.Sqrt(variance / float64(period))
	band := sd * k
	return Bands{Upper: middle + band, Middle: middle, Lower: middle - band}, nil
}
