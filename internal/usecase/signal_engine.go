package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	domsvc "SignalDesk/internal/domain/service"
	"SignalDesk/pkg/logger"
	"SignalDesk/pkg/metrics"
	"SignalDesk/pkg/util"
)

const (
	ConsensusSource = "consensus"
	consensusTTL    = 10 * time.Minute
)

// ErrMissingMarketData is matched by every MissingMarketDataError.
var ErrMissingMarketData = errors.New("missing market data")

// MissingMarketDataError reports a symbol skipped because its quote or
// history could not be obtained.
type MissingMarketDataError struct {
	Symbol string
	What   string // "quote" or "history"
	Err    error
}

func (e *MissingMarketDataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: no %s: %v", e.Symbol, e.What, e.Err)
	}
	return fmt.Sprintf("%s: no %s", e.Symbol, e.What)
}

func (e *MissingMarketDataError) Is(target error) bool { return target == ErrMissingMarketData }

func (e *MissingMarketDataError) Unwrap() error { return e.Err }

// CycleReport summarizes one GenerateSignals run.
type CycleReport struct {
	StartedAt      time.Time         `json:"started_at"`
	Duration       time.Duration     `json:"duration"`
	Symbols        []string          `json:"symbols"`
	Generated      []models.Signal   `json:"generated"`
	Failed         map[string]string `json:"failed,omitempty"`
	ProviderErrors int               `json:"provider_errors"`
}

type registeredProvider struct {
	provider domsvc.SignalProvider
	enabled  bool
}

// SignalEngine runs the registered providers for each symbol, keeps each
// symbol's non-expired signals and a bounded history, and derives consensus.
type SignalEngine struct {
	data    domrepo.MarketDataSource
	clock   domrepo.Clock
	metrics domrepo.Metrics
	l       *logger.Logger
	sinks   []domrepo.SignalSink
	ids     models.IDSource

	historyBars  int
	concurrency  int
	historyLimit int
	sinkTimeout  time.Duration

	provMu    sync.RWMutex
	providers []*registeredProvider

	stateMu sync.RWMutex
	active  map[string][]models.Signal

	lockMu   sync.Mutex
	symLocks map[string]*sync.Mutex

	histMu  sync.Mutex
	history []models.Signal
}

type EngineOption func(*SignalEngine)

func WithClock(c domrepo.Clock) EngineOption {
	return func(e *SignalEngine) {
		if c != nil {
			e.clock = c
		}
	}
}

func WithEngineMetrics(m domrepo.Metrics) EngineOption {
	return func(e *SignalEngine) {
		if m != nil {
			e.metrics = m
		}
	}
}

func WithEngineLogger(l *logger.Logger) EngineOption {
	return func(e *SignalEngine) {
		if l != nil {
			e.l = l
		}
	}
}

// WithSinks adds sinks that receive each cycle's new signals.
func WithSinks(sinks ...domrepo.SignalSink) EngineOption {
	return func(e *SignalEngine) {
		for _, s := range sinks {
			if s != nil {
				e.sinks = append(e.sinks, s)
			}
		}
	}
}

// WithHistoryBars sets how many bars are requested per symbol.
func WithHistoryBars(n int) EngineOption {
	return func(e *SignalEngine) {
		if n > 0 {
			e.historyBars = n
		}
	}
}

// WithConcurrency bounds how many symbols are processed at once.
func WithConcurrency(n int) EngineOption {
	return func(e *SignalEngine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithHistoryLimit bounds the signal history ring.
func WithHistoryLimit(n int) EngineOption {
	return func(e *SignalEngine) {
		if n > 0 {
			e.historyLimit = n
		}
	}
}

func WithSinkTimeout(d time.Duration) EngineOption {
	return func(e *SignalEngine) {
		if d > 0 {
			e.sinkTimeout = d
		}
	}
}

// WithIDSource sets how committed signals are identified.
func WithIDSource(ids models.IDSource) EngineOption {
	return func(e *SignalEngine) {
		if ids != nil {
			e.ids = ids
		}
	}
}

// NewSignalEngine registers providers in the given order, all enabled.
func NewSignalEngine(data domrepo.MarketDataSource, providers []domsvc.SignalProvider, opts ...EngineOption) *SignalEngine {
	e := &SignalEngine{
		data:         data,
		clock:        domrepo.SystemClock{},
		metrics:      metrics.Nop{},
		l:            logger.Nop(),
		historyBars:  250,
		concurrency:  4,
		historyLimit: 1000,
		sinkTimeout:  5 * time.Second,
		ids:          models.RandomIDs{},
		active:       make(map[string][]models.Signal),
		symLocks:     make(map[string]*sync.Mutex),
	}
	for _, p := range providers {
		e.providers = append(e.providers, &registeredProvider{provider: p, enabled: true})
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// GenerateSignals runs one cycle over symbols. Symbols whose market data is
// unavailable are skipped; their errors are joined into the returned error
// while the report still covers every symbol that succeeded.
func (e *SignalEngine) GenerateSignals(ctx context.Context, symbols []string) (*CycleReport, error) {
	began := time.Now()
	symbols = util.NormalizeSymbols(symbols)
	report := &CycleReport{StartedAt: e.clock.Now(), Symbols: symbols, Failed: map[string]string{}}

	type result struct {
		signals    []models.Signal
		providerEr int
		err        error
	}
	results := make([]result, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, sym := range symbols {
		g.Go(func() error {
			sigs, perr, err := e.processSymbol(gctx, sym)
			results[i] = result{signals: sigs, providerEr: perr, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for i, r := range results {
		report.ProviderErrors += r.providerEr
		if r.err != nil {
			report.Failed[symbols[i]] = r.err.Error()
			errs = append(errs, r.err)
			continue
		}
		report.Generated = append(report.Generated, r.signals...)
	}

	if len(report.Generated) > 0 {
		e.appendHistory(report.Generated)
		e.publish(ctx, report.Generated)
	}

	report.Duration = time.Since(began)
	e.metrics.RecordLatency("cycle", report.Duration.Seconds())
	e.l.Info("signal cycle done",
		logger.Int("symbols", len(symbols)),
		logger.Int("generated", len(report.Generated)),
		logger.Int("failed", len(report.Failed)),
		logger.Int("provider_errors", report.ProviderErrors),
		logger.Duration("duration_ms", report.Duration),
	)
	return report, errors.Join(errs...)
}

func (e *SignalEngine) processSymbol(ctx context.Context, symbol string) ([]models.Signal, int, error) {
	quote, err := e.data.GetLatestQuote(ctx, symbol)
	if err != nil || quote == nil {
		e.metrics.RecordMissingData(symbol)
		return nil, 0, &MissingMarketDataError{Symbol: symbol, What: "quote", Err: err}
	}
	history, err := e.data.GetHistory(ctx, symbol, e.historyBars)
	if err != nil || len(history) == 0 {
		e.metrics.RecordMissingData(symbol)
		return nil, 0, &MissingMarketDataError{Symbol: symbol, What: "history", Err: err}
	}

	fresh, providerErrs := e.runProviders(ctx, symbol, *quote, history)
	for i := range fresh {
		fresh[i].ID = e.ids.NewID(symbol)
	}

	if err := ctx.Err(); err != nil {
		return nil, providerErrs, fmt.Errorf("%s: cycle cancelled before commit: %w", symbol, err)
	}
	n := e.commit(symbol, fresh)
	e.metrics.RecordActiveSignals(symbol, n)
	for _, s := range fresh {
		e.metrics.RecordSignal(s.Source, symbol, s.Side)
	}
	return fresh, providerErrs, nil
}

// runProviders runs the enabled providers concurrently and returns their
// signals in registration order.
func (e *SignalEngine) runProviders(ctx context.Context, symbol string, quote models.Quote, history []models.Bar) ([]models.Signal, int) {
	providers := e.enabledProviders()
	out := make([]*models.Signal, len(providers))
	errs := make([]error, len(providers))

	var wg sync.WaitGroup
	for i, p := range providers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out[i], errs[i] = e.safeGenerate(ctx, p, symbol, quote, history)
		}()
	}
	wg.Wait()

	var (
		signals []models.Signal
		failed  int
	)
	for i, p := range providers {
		if errs[i] != nil {
			failed++
			e.metrics.RecordProviderError(p.ID())
			e.l.Warn("provider failed",
				logger.String("provider", p.ID()),
				logger.String("symbol", symbol),
				logger.Error(errs[i]),
			)
			continue
		}
		if out[i] != nil {
			signals = append(signals, *out[i])
		}
	}
	return signals, failed
}

func (e *SignalEngine) safeGenerate(ctx context.Context, p domsvc.SignalProvider, symbol string, quote models.Quote, history []models.Bar) (sig *models.Signal, err error) {
	defer func() {
		if r := recover(); r != nil {
			sig, err = nil, fmt.Errorf("provider %s panicked: %v", p.ID(), r)
		}
	}()
	return p.GenerateSignal(ctx, symbol, quote, history)
}

// commit drops expired signals, appends fresh ones and swaps in the new set.
func (e *SignalEngine) commit(symbol string, fresh []models.Signal) int {
	mu := e.symbolLock(symbol)
	mu.Lock()
	defer mu.Unlock()

	now := e.clock.Now()
	e.stateMu.RLock()
	prev := e.active[symbol]
	e.stateMu.RUnlock()

	next := make([]models.Signal, 0, len(prev)+len(fresh))
	for _, s := range prev {
		if s.ActiveAt(now) {
			next = append(next, s)
		}
	}
	next = append(next, fresh...)

	e.stateMu.Lock()
	if len(next) == 0 {
		delete(e.active, symbol)
	} else {
		e.active[symbol] = next
	}
	e.stateMu.Unlock()
	return len(next)
}

func (e *SignalEngine) symbolLock(symbol string) *sync.Mutex {
	e.lockMu.Lock()
	defer e.lockMu.Unlock()
	mu, ok := e.symLocks[symbol]
	if !ok {
		mu = &sync.Mutex{}
		e.symLocks[symbol] = mu
	}
	return mu
}

func (e *SignalEngine) appendHistory(signals []models.Signal) {
	e.histMu.Lock()
	defer e.histMu.Unlock()
	e.history = append(e.history, signals...)
	if over := len(e.history) - e.historyLimit; over > 0 {
		e.history = append(e.history[:0:0], e.history[over:]...)
	}
}

// publish hands new signals to every sink. Sink failures never fail a cycle.
func (e *SignalEngine) publish(ctx context.Context, signals []models.Signal) {
	for _, s := range e.sinks {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.sinkTimeout)
		err := s.PublishSignals(sctx, signals)
		cancel()
		if err != nil {
			e.metrics.RecordError("sink_" + s.Name())
			e.l.Error("signal sink failed",
				logger.String("sink", s.Name()),
				logger.Int("signals", len(signals)),
				logger.Error(err),
			)
		}
	}
}

func (e *SignalEngine) enabledProviders() []domsvc.SignalProvider {
	e.provMu.RLock()
	defer e.provMu.RUnlock()
	out := make([]domsvc.SignalProvider, 0, len(e.providers))
	for _, rp := range e.providers {
		if rp.enabled {
			out = append(out, rp.provider)
		}
	}
	return out
}

// GetSignalsForSymbol returns the symbol's signals that have not expired.
// Symbols are matched case-insensitively.
func (e *SignalEngine) GetSignalsForSymbol(symbol string) []models.Signal {
	symbol = util.NormalizeSymbol(symbol)
	now := e.clock.Now()
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return activeCopy(e.active[symbol], now)
}

// GetAllActiveSignals returns non-expired signals for every symbol that has any.
func (e *SignalEngine) GetAllActiveSignals() map[string][]models.Signal {
	now := e.clock.Now()
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	out := make(map[string][]models.Signal, len(e.active))
	for sym, set := range e.active {
		if live := activeCopy(set, now); len(live) > 0 {
			out[sym] = live
		}
	}
	return out
}

func activeCopy(set []models.Signal, now time.Time) []models.Signal {
	out := make([]models.Signal, 0, len(set))
	for _, s := range set {
		if s.ActiveAt(now) {
			out = append(out, s)
		}
	}
	return out
}

// GetSignalHistory returns the newest limit signals, oldest first.
// A non-positive limit returns the whole history.
func (e *SignalEngine) GetSignalHistory(limit int) []models.Signal {
	e.histMu.Lock()
	defer e.histMu.Unlock()
	from := 0
	if limit > 0 && limit < len(e.history) {
		from = len(e.history) - limit
	}
	return append([]models.Signal(nil), e.history[from:]...)
}

// GetConsensusSignal returns the majority view over the symbol's active
// signals, or nil when there are none or the sides are tied.
func (e *SignalEngine) GetConsensusSignal(symbol string) *models.ConsensusSignal {
	symbol = util.NormalizeSymbol(symbol)
	active := e.GetSignalsForSymbol(symbol)
	if len(active) == 0 {
		return nil
	}
	var buys, sells []models.Signal
	for _, s := range active {
		if s.Side == models.SideBuy {
			buys = append(buys, s)
		} else {
			sells = append(sells, s)
		}
	}
	if len(buys) == len(sells) {
		return nil
	}
	side, majority := models.SideBuy, buys
	if len(sells) > len(buys) {
		side, majority = models.SideSell, sells
	}

	var strength, confidence float64
	sources := map[string]struct{}{}
	for _, s := range majority {
		strength += s.Strength
		confidence += s.Confidence
		sources[s.Source] = struct{}{}
	}
	n := float64(len(majority))
	names := make([]string, 0, len(sources))
	for s := range sources {
		names = append(names, s)
	}
	sort.Strings(names)

	sig := models.NewSignal(symbol, side, strength/n, confidence/n, ConsensusSource,
		map[string]float64{
			"buy_count":  float64(len(buys)),
			"sell_count": float64(len(sells)),
		},
		fmt.Sprintf("Consensus of %d agreeing providers (%s)", len(majority), strings.Join(names, ", ")),
		e.clock.Now(), consensusTTL)
	parents := make([]string, 0, len(active))
	for _, s := range active {
		parents = append(parents, s.ID)
	}
	sig.ID = models.DerivedID(parents)
	return &models.ConsensusSignal{
		Signal:    sig,
		BuyCount:  len(buys),
		SellCount: len(sells),
		Agreeing:  len(majority),
	}
}

// EnableProvider enables a provider by ID. It reports false for unknown IDs.
func (e *SignalEngine) EnableProvider(id string) bool { return e.setEnabled(id, true) }

// DisableProvider disables a provider by ID. It reports false for unknown IDs.
func (e *SignalEngine) DisableProvider(id string) bool { return e.setEnabled(id, false) }

func (e *SignalEngine) setEnabled(id string, enabled bool) bool {
	e.provMu.Lock()
	defer e.provMu.Unlock()
	for _, rp := range e.providers {
		if rp.provider.ID() == id {
			if rp.enabled != enabled {
				e.l.Info("provider toggled", logger.String("provider", id), logger.Bool("enabled", enabled))
			}
			rp.enabled = enabled
			return true
		}
	}
	return false
}

// GetProviders lists providers in registration order.
func (e *SignalEngine) GetProviders() []models.ProviderInfo {
	e.provMu.RLock()
	defer e.provMu.RUnlock()
	out := make([]models.ProviderInfo, 0, len(e.providers))
	for _, rp := range e.providers {
		out = append(out, models.ProviderInfo{ID: rp.provider.ID(), Name: rp.provider.Name(), Enabled: rp.enabled})
	}
	return out
}

// Close closes every sink.
func (e *SignalEngine) Close() error {
	var errs []error
	for _, s := range e.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close sink %s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
