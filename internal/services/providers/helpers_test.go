package providers

import (
	"time"

	"SignalDesk/internal/domain/models"
)

var testNow = time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func barsFrom(closes []float64) []models.Bar {
	out := make([]models.Bar, len(closes))
	for i, c := range closes {
		out[i] = models.Bar{
			Timestamp: testNow.Add(time.Duration(i-len(closes)) * time.Minute),
			Open:      c, High: c, Low: c, Close: c, Volume: 1,
		}
	}
	return out
}

func ramp(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func quoteAt(symbol string, bars []models.Bar) models.Quote {
	last := bars[len(bars)-1].Close
	return models.Quote{Symbol: symbol, Price: last, Bid: last, Ask: last, Timestamp: testNow}
}
