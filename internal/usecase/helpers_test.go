package usecase

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"SignalDesk/internal/domain/models"
)

var testNow = time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(t time.Time) *manualClock { return &manualClock{now: t} }

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *manualClock) Advance(d time.Duration) { c.Set(c.Now().Add(d)) }

// fakeMarket serves one quote and a short history for every symbol in prices.
type fakeMarket struct {
	prices  map[string]float64
	histErr map[string]error
}

func (f *fakeMarket) GetLatestQuote(_ context.Context, symbol string) (*models.Quote, error) {
	p, ok := f.prices[symbol]
	if !ok {
		return nil, nil
	}
	return &models.Quote{Symbol: symbol, Price: p, Bid: p, Ask: p, Timestamp: testNow}, nil
}

func (f *fakeMarket) GetHistory(_ context.Context, symbol string, _ int) ([]models.Bar, error) {
	if err := f.histErr[symbol]; err != nil {
		return nil, err
	}
	p := f.prices[symbol]
	return []models.Bar{{Timestamp: testNow.Add(-time.Minute), Open: p, High: p, Low: p, Close: p}}, nil
}

// stubProvider emits a fixed signal.
type stubProvider struct {
	id         string
	side       models.Side
	strength   float64
	confidence float64
	ttl        time.Duration
	clock      *manualClock
	delay      time.Duration
	err        error
	panics     bool
	silent     bool

	mu    sync.Mutex
	calls int
}

func (p *stubProvider) ID() string   { return p.id }
func (p *stubProvider) Name() string { return "stub " + p.id }

func (p *stubProvider) GenerateSignal(_ context.Context, symbol string, _ models.Quote, _ []models.Bar) (*models.Signal, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	if p.panics {
		panic("boom")
	}
	if p.err != nil {
		return nil, p.err
	}
	if p.silent {
		return nil, nil
	}
	ttl := p.ttl
	if ttl == 0 {
		ttl = 15 * time.Minute
	}
	s := models.NewSignal(symbol, p.side, p.strength, p.confidence, p.id, nil, "stub", p.clock.Now(), ttl)
	return &s, nil
}

func (p *stubProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type recordingSink struct {
	name string
	err  error

	mu  sync.Mutex
	got []models.Signal
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) PublishSignals(_ context.Context, sigs []models.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, sigs...)
	return s.err
}

func (s *recordingSink) Close() error { return nil }

var errProvider = errors.New("provider down")

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
