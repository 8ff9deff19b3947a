package providers

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"SignalDesk/internal/domain/models"
)

// DemoFallback synthesizes a randomized signal when a provider has nothing to
// report. It is off unless explicitly enabled and draws from its own seeded
// source, so runs are reproducible for a fixed seed.
type DemoFallback struct {
	enabled bool
	mu      sync.Mutex
	rnd     *rand.Rand
}

// NewDemoFallback creates a fallback policy. A disabled policy never produces signals.
func NewDemoFallback(enabled bool, seed int64) *DemoFallback {
	return &DemoFallback{enabled: enabled, rnd: rand.New(rand.NewSource(seed))}
}

// Enabled is nil-safe.
func (f *DemoFallback) Enabled() bool { return f != nil && f.enabled }

type fallbackProfile struct {
	source      string
	minStrength float64
	maxStrength float64
	confidence  func(strength float64) float64
	ttl         time.Duration
}

// synthesize returns nil when the policy is disabled.
func (f *DemoFallback) synthesize(symbol string, now time.Time, prof fallbackProfile) *models.Signal {
	if !f.Enabled() {
		return nil
	}
	f.mu.Lock()
	buy := f.rnd.Intn(2) == 0
	strength := prof.minStrength + f.rnd.Float64()*(prof.maxStrength-prof.minStrength)
	f.mu.Unlock()

	side := models.SideSell
	if buy {
		side = models.SideBuy
	}
	sig := models.NewSignal(symbol, side, strength, prof.confidence(strength), prof.source,
		map[string]float64{"demo": 1},
		fmt.Sprintf("demo fallback: no %s condition met", prof.source),
		now, prof.ttl)
	return &sig
}
