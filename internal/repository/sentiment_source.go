package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	"SignalDesk/pkg/cache"
	"SignalDesk/pkg/util"
)

const sentimentKeyPrefix = "sentiment"

// CacheSentimentSource reads sentiment readings stored in a cache by an
// upstream scorer. Readings older than maxAge are ignored.
type CacheSentimentSource struct {
	cache  cache.Service
	ttl    time.Duration
	maxAge time.Duration
	clock  domrepo.Clock
}

func NewCacheSentimentSource(c cache.Service, ttl, maxAge time.Duration, clock domrepo.Clock) *CacheSentimentSource {
	if clock == nil {
		clock = domrepo.SystemClock{}
	}
	return &CacheSentimentSource{cache: c, ttl: ttl, maxAge: maxAge, clock: clock}
}

func (s *CacheSentimentSource) GetSentiment(ctx context.Context, symbol string) (*models.Sentiment, error) {
	symbol = util.NormalizeSymbol(symbol)
	v, err := cache.GetTyped[models.Sentiment](ctx, s.cache, cache.GenerateKey(sentimentKeyPrefix, symbol))
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get sentiment %s: %w", symbol, err)
	}
	if s.maxAge > 0 && !v.UpdatedAt.IsZero() && s.clock.Now().Sub(v.UpdatedAt) > s.maxAge {
		return nil, nil
	}
	return &v, nil
}

// Put stores a reading under its upper-cased symbol.
func (s *CacheSentimentSource) Put(ctx context.Context, v models.Sentiment) error {
	v.Symbol = util.NormalizeSymbol(v.Symbol)
	if v.Symbol == "" {
		return errors.New("sentiment symbol required")
	}
	if v.Score < -1 || v.Score > 1 {
		return fmt.Errorf("sentiment score %v out of range [-1,1]", v.Score)
	}
	if v.UpdatedAt.IsZero() {
		v.UpdatedAt = s.clock.Now()
	}
	return s.cache.Set(ctx, cache.GenerateKey(sentimentKeyPrefix, v.Symbol), v, s.ttl)
}

var _ domrepo.SentimentSource = (*CacheSentimentSource)(nil)
