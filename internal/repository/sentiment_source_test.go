package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalDesk/internal/domain/models"
	"SignalDesk/pkg/cache"
)

type clockAt time.Time

func (c clockAt) Now() time.Time { return time.Time(c) }

func TestCacheSentimentSource(t *testing.T) {
	mc := cache.NewMemoryCache(cache.WithMemoryCleanup(0))
	defer mc.Close()
	src := NewCacheSentimentSource(mc, time.Hour, 30*time.Minute, clockAt(t0))
	ctx := context.Background()

	s, err := src.GetSentiment(ctx, "EURUSD")
	require.NoError(t, err)
	assert.Nil(t, s, "miss is not an error")

	require.NoError(t, src.Put(ctx, models.Sentiment{Symbol: "EURUSD", Score: 0.6, Positioning: 35}))
	s, err = src.GetSentiment(ctx, "EURUSD")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, 0.6, s.Score)
	assert.Equal(t, t0, s.UpdatedAt)

	require.NoError(t, src.Put(ctx, models.Sentiment{Symbol: "GBPUSD", Score: -0.4, UpdatedAt: t0.Add(-time.Hour)}))
	s, err = src.GetSentiment(ctx, "GBPUSD")
	require.NoError(t, err)
	assert.Nil(t, s, "stale reading")

	assert.Error(t, src.Put(ctx, models.Sentiment{Symbol: "EURUSD", Score: 1.5}))
	assert.Error(t, src.Put(ctx, models.Sentiment{Score: 0.1}))
}

func TestCacheSentimentSourceIgnoresSymbolCase(t *testing.T) {
	mc := cache.NewMemoryCache(cache.WithMemoryCleanup(0))
	defer mc.Close()
	src := NewCacheSentimentSource(mc, time.Hour, 30*time.Minute, clockAt(t0))
	ctx := context.Background()

	require.NoError(t, src.Put(ctx, models.Sentiment{Symbol: " eurusd", Score: 0.8}))

	for _, sym := range []string{"EURUSD", "eurusd", "EurUsd"} {
		s, err := src.GetSentiment(ctx, sym)
		require.NoError(t, err)
		require.NotNil(t, s, sym)
		assert.Equal(t, "EURUSD", s.Symbol)
		assert.Equal(t, 0.8, s.Score)
	}
	assert.Error(t, src.Put(ctx, models.Sentiment{Symbol: "   ", Score: 0.1}))
}
