package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalDesk/internal/domain/models"
	pkgkafka "SignalDesk/pkg/kafka"
	"SignalDesk/pkg/metrics"
)

func TestNewsEventsHandler(t *testing.T) {
	clock := newClock(at(10, 0))
	g := londonOnly(t, clock)
	h := NewNewsEventsHandler("news-events", g, metrics.Nop{})
	ctx := context.Background()
	assert.Equal(t, "news-events", h.Topic())

	require.NoError(t, h.Handle(ctx, []byte(`{"id":"cpi","time":"2025-03-10T10:05:00Z","currency":"usd","title":"CPI","buffer_minutes":10}`)))
	assert.True(t, g.IsNewsBlackoutActive())

	unix := at(12, 0).UnixMilli()
	require.NoError(t, h.Handle(ctx, []byte(`{"time":`+itoa(unix)+`,"currency":"EUR","impact":"medium","title":"PMI"}`)))
	up := g.GetUpcomingNewsEvents(3)
	require.Len(t, up, 2)
	assert.Equal(t, at(12, 0), up[1].Time)

	for _, bad := range []string{
		`not json`,
		`{"time":"yesterday","currency":"USD"}`,
		`{"time":"2025-03-10T12:00:00Z","currency":"DOLLAR"}`,
	} {
		err := h.Handle(ctx, []byte(bad))
		assert.ErrorIs(t, err, pkgkafka.ErrPermanent, bad)
	}
}

type sentimentStore struct {
	got []models.Sentiment
	err error
}

func (s *sentimentStore) Put(_ context.Context, v models.Sentiment) error {
	s.got = append(s.got, v)
	return s.err
}

func TestSentimentHandler(t *testing.T) {
	store := &sentimentStore{}
	h := NewSentimentHandler("sentiment", store, metrics.Nop{})
	ctx := context.Background()

	require.NoError(t, h.Handle(ctx, []byte(`{"symbol":"EURUSD","score":-0.45,"positioning":62,"updated_at":"2025-03-10T09:59:00Z"}`)))
	require.Len(t, store.got, 1)
	assert.Equal(t, -0.45, store.got[0].Score)
	assert.Equal(t, time.Date(2025, 3, 10, 9, 59, 0, 0, time.UTC), store.got[0].UpdatedAt)

	assert.ErrorIs(t, h.Handle(ctx, []byte(`{"symbol":"EURUSD","score":3}`)), pkgkafka.ErrPermanent)
	assert.ErrorIs(t, h.Handle(ctx, []byte(`{`)), pkgkafka.ErrPermanent)

	store.err = errors.New("redis down")
	err := h.Handle(ctx, []byte(`{"symbol":"EURUSD","score":0.1}`))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, pkgkafka.ErrPermanent, "transient failures are retried")
}
