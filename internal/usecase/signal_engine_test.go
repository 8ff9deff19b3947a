package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalDesk/internal/domain/models"
	domsvc "SignalDesk/internal/domain/service"
)

func market(symbols ...string) *fakeMarket {
	m := &fakeMarket{prices: map[string]float64{}, histErr: map[string]error{}}
	for _, s := range symbols {
		m.prices[s] = 1.1
	}
	return m
}

func newEngine(clock *manualClock, data *fakeMarket, ps []domsvc.SignalProvider, opts ...EngineOption) *SignalEngine {
	return NewSignalEngine(data, ps, append([]EngineOption{WithClock(clock)}, opts...)...)
}

func TestConsensusMajorityMean(t *testing.T) {
	clock := newClock(testNow)
	e := newEngine(clock, market("EURUSD"), []domsvc.SignalProvider{
		&stubProvider{id: "a", side: models.SideBuy, strength: 60, confidence: 50, clock: clock},
		&stubProvider{id: "b", side: models.SideBuy, strength: 70, confidence: 60, clock: clock},
		&stubProvider{id: "c", side: models.SideBuy, strength: 80, confidence: 70, clock: clock},
		&stubProvider{id: "d", side: models.SideSell, strength: 90, confidence: 90, clock: clock},
	})

	_, err := e.GenerateSignals(context.Background(), []string{"EURUSD"})
	require.NoError(t, err)

	c := e.GetConsensusSignal("EURUSD")
	require.NotNil(t, c)
	assert.Equal(t, models.SideBuy, c.Side)
	assert.InDelta(t, 70, c.Strength, 1e-9)
	assert.InDelta(t, 60, c.Confidence, 1e-9)
	assert.Equal(t, 3, c.BuyCount)
	assert.Equal(t, 1, c.SellCount)
	assert.Equal(t, 3, c.Agreeing)
	assert.Equal(t, ConsensusSource, c.Source)
	assert.Contains(t, c.Reasoning, "3 agreeing providers")
	assert.Equal(t, testNow.Add(10*time.Minute), c.ExpiresAt)
}

func TestConsensusTieAndEmpty(t *testing.T) {
	clock := newClock(testNow)
	e := newEngine(clock, market("EURUSD"), []domsvc.SignalProvider{
		&stubProvider{id: "a", side: models.SideBuy, strength: 60, clock: clock},
		&stubProvider{id: "b", side: models.SideSell, strength: 70, clock: clock},
	})
	assert.Nil(t, e.GetConsensusSignal("EURUSD"))

	_, err := e.GenerateSignals(context.Background(), []string{"EURUSD"})
	require.NoError(t, err)
	assert.Len(t, e.GetSignalsForSymbol("EURUSD"), 2)
	assert.Nil(t, e.GetConsensusSignal("EURUSD"), "a tie yields no consensus")
}

func TestReadsMatchSymbolsCaseInsensitively(t *testing.T) {
	clock := newClock(testNow)
	e := newEngine(clock, market("EURUSD"), []domsvc.SignalProvider{
		&stubProvider{id: "a", side: models.SideBuy, strength: 60, confidence: 50, clock: clock},
	})

	report, err := e.GenerateSignals(context.Background(), []string{"eurusd"})
	require.NoError(t, err)
	assert.Equal(t, []string{"EURUSD"}, report.Symbols)

	assert.Len(t, e.GetSignalsForSymbol("eurusd"), 1)
	assert.Len(t, e.GetSignalsForSymbol(" EurUsd "), 1)
	c := e.GetConsensusSignal("eurusd")
	require.NotNil(t, c)
	assert.Equal(t, "EURUSD", c.Symbol)
}

func TestSeededIDsMakeCyclesReproducible(t *testing.T) {
	run := func() map[string][]string {
		clock := newClock(testNow)
		e := newEngine(clock, market("EURUSD", "GBPUSD", "USDJPY"), []domsvc.SignalProvider{
			&stubProvider{id: "a", side: models.SideBuy, strength: 60, clock: clock},
			&stubProvider{id: "b", side: models.SideBuy, strength: 70, clock: clock},
		}, WithIDSource(models.NewSeededIDs(42)), WithConcurrency(3))

		_, err := e.GenerateSignals(context.Background(), []string{"EURUSD", "GBPUSD", "USDJPY"})
		require.NoError(t, err)

		out := map[string][]string{}
		for sym, set := range e.GetAllActiveSignals() {
			for _, s := range set {
				out[sym] = append(out[sym], s.ID)
			}
		}
		c1, c2 := e.GetConsensusSignal("EURUSD"), e.GetConsensusSignal("EURUSD")
		require.NotNil(t, c1)
		require.NotNil(t, c2)
		assert.Equal(t, c1.ID, c2.ID, "consensus id is stable across reads")
		out["consensus"] = []string{c1.ID}
		return out
	}

	first, second := run(), run()
	assert.Equal(t, first, second)
	assert.Len(t, first["EURUSD"], 2)
	assert.NotEqual(t, first["EURUSD"][0], first["EURUSD"][1])
}

func TestSignalsStackAcrossCycles(t *testing.T) {
	clock := newClock(testNow)
	e := newEngine(clock, market("EURUSD"), []domsvc.SignalProvider{
		&stubProvider{id: "a", side: models.SideBuy, strength: 60, clock: clock},
	})
	ctx := context.Background()

	_, err := e.GenerateSignals(ctx, []string{"EURUSD"})
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = e.GenerateSignals(ctx, []string{"EURUSD"})
	require.NoError(t, err)

	active := e.GetSignalsForSymbol("EURUSD")
	require.Len(t, active, 2)
	assert.NotEqual(t, active[0].ID, active[1].ID)
	assert.True(t, active[0].CreatedAt.Before(active[1].CreatedAt))
	assert.Len(t, e.GetSignalHistory(0), 2)
}

func TestExpiredSignalsArePrunedAndHiddenFromReads(t *testing.T) {
	clock := newClock(testNow)
	e := newEngine(clock, market("EURUSD", "USDJPY"), []domsvc.SignalProvider{
		&stubProvider{id: "a", side: models.SideBuy, strength: 60, ttl: time.Minute, clock: clock},
	})
	ctx := context.Background()

	_, err := e.GenerateSignals(ctx, []string{"EURUSD", "USDJPY"})
	require.NoError(t, err)
	assert.Len(t, e.GetAllActiveSignals(), 2)

	clock.Advance(2 * time.Minute)
	assert.Empty(t, e.GetSignalsForSymbol("EURUSD"))
	assert.Empty(t, e.GetAllActiveSignals())
	assert.Nil(t, e.GetConsensusSignal("EURUSD"))

	_, err = e.GenerateSignals(ctx, []string{"EURUSD"})
	require.NoError(t, err)
	active := e.GetSignalsForSymbol("EURUSD")
	require.Len(t, active, 1)
	assert.Equal(t, clock.Now(), active[0].CreatedAt)
	assert.Len(t, e.GetSignalHistory(0), 3, "history keeps expired signals")
}

func TestProviderFailuresAreIsolated(t *testing.T) {
	clock := newClock(testNow)
	good := &stubProvider{id: "good", side: models.SideSell, strength: 55, clock: clock}
	e := newEngine(clock, market("EURUSD"), []domsvc.SignalProvider{
		&stubProvider{id: "err", err: errProvider, clock: clock},
		&stubProvider{id: "panic", panics: true, clock: clock},
		good,
		&stubProvider{id: "quiet", silent: true, clock: clock},
	})

	report, err := e.GenerateSignals(context.Background(), []string{"EURUSD"})
	require.NoError(t, err)
	assert.Equal(t, 2, report.ProviderErrors)
	require.Len(t, report.Generated, 1)
	assert.Equal(t, "good", report.Generated[0].Source)
	assert.Len(t, e.GetSignalsForSymbol("EURUSD"), 1)
}

func TestMissingMarketDataSkipsSymbol(t *testing.T) {
	clock := newClock(testNow)
	data := market("EURUSD", "GBPUSD")
	data.histErr["GBPUSD"] = errors.New("timeout")
	e := newEngine(clock, data, []domsvc.SignalProvider{
		&stubProvider{id: "a", side: models.SideBuy, strength: 60, clock: clock},
	})

	report, err := e.GenerateSignals(context.Background(), []string{"eurusd", "GBPUSD", "XAUUSD"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingMarketData)

	var mde *MissingMarketDataError
	require.ErrorAs(t, err, &mde)
	assert.Contains(t, []string{"GBPUSD", "XAUUSD"}, mde.Symbol)

	assert.Len(t, report.Failed, 2)
	assert.Contains(t, report.Failed["GBPUSD"], "timeout")
	assert.Contains(t, report.Failed, "XAUUSD")
	assert.Len(t, e.GetSignalsForSymbol("EURUSD"), 1)
	assert.Empty(t, e.GetSignalsForSymbol("GBPUSD"))
}

func TestCancelledCycleLeavesStateUntouched(t *testing.T) {
	clock := newClock(testNow)
	sink := &recordingSink{name: "rec"}
	e := newEngine(clock, market("EURUSD"), []domsvc.SignalProvider{
		&stubProvider{id: "a", side: models.SideBuy, strength: 60, clock: clock},
	}, WithSinks(sink))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.GenerateSignals(ctx, []string{"EURUSD"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, e.GetSignalsForSymbol("EURUSD"))
	assert.Empty(t, e.GetSignalHistory(0))
	assert.Empty(t, sink.got)
}

func TestProviderToggling(t *testing.T) {
	clock := newClock(testNow)
	a := &stubProvider{id: "a", side: models.SideBuy, strength: 60, clock: clock}
	b := &stubProvider{id: "b", side: models.SideSell, strength: 60, clock: clock}
	e := newEngine(clock, market("EURUSD"), []domsvc.SignalProvider{a, b})

	assert.False(t, e.DisableProvider("nope"))
	assert.True(t, e.DisableProvider("a"))
	assert.True(t, e.DisableProvider("a"))

	infos := e.GetProviders()
	require.Len(t, infos, 2)
	assert.Equal(t, models.ProviderInfo{ID: "a", Name: "stub a", Enabled: false}, infos[0])
	assert.True(t, infos[1].Enabled)

	_, err := e.GenerateSignals(context.Background(), []string{"EURUSD"})
	require.NoError(t, err)
	assert.Equal(t, 0, a.Calls())
	assert.Equal(t, 1, b.Calls())

	assert.True(t, e.EnableProvider("a"))
	assert.True(t, e.GetProviders()[0].Enabled)
}

func TestResultsKeepRegistrationOrder(t *testing.T) {
	clock := newClock(testNow)
	e := newEngine(clock, market("EURUSD"), []domsvc.SignalProvider{
		&stubProvider{id: "slow", side: models.SideBuy, strength: 60, delay: 30 * time.Millisecond, clock: clock},
		&stubProvider{id: "fast", side: models.SideBuy, strength: 60, clock: clock},
	})

	report, err := e.GenerateSignals(context.Background(), []string{"EURUSD"})
	require.NoError(t, err)
	require.Len(t, report.Generated, 2)
	assert.Equal(t, "slow", report.Generated[0].Source)
	assert.Equal(t, "fast", report.Generated[1].Source)
}

func TestHistoryIsBounded(t *testing.T) {
	clock := newClock(testNow)
	e := newEngine(clock, market("EURUSD"), []domsvc.SignalProvider{
		&stubProvider{id: "a", side: models.SideBuy, strength: 60, clock: clock},
		&stubProvider{id: "b", side: models.SideBuy, strength: 60, clock: clock},
	}, WithHistoryLimit(3))
	ctx := context.Background()

	_, err := e.GenerateSignals(ctx, []string{"EURUSD"})
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = e.GenerateSignals(ctx, []string{"EURUSD"})
	require.NoError(t, err)

	all := e.GetSignalHistory(0)
	require.Len(t, all, 3)
	assert.Equal(t, testNow.Add(time.Second), all[2].CreatedAt)

	last := e.GetSignalHistory(2)
	require.Len(t, last, 2)
	assert.Equal(t, all[1].ID, last[0].ID)
	assert.Equal(t, all[2].ID, last[1].ID)
}

func TestSinkFailureDoesNotFailCycle(t *testing.T) {
	clock := newClock(testNow)
	ok := &recordingSink{name: "ok"}
	bad := &recordingSink{name: "bad", err: errors.New("broker unavailable")}
	e := newEngine(clock, market("EURUSD"), []domsvc.SignalProvider{
		&stubProvider{id: "a", side: models.SideBuy, strength: 60, clock: clock},
	}, WithSinks(bad, ok))

	_, err := e.GenerateSignals(context.Background(), []string{"EURUSD"})
	require.NoError(t, err)
	assert.Len(t, ok.got, 1)
	assert.Len(t, bad.got, 1)
	require.NoError(t, e.Close())
}
