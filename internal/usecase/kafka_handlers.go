package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	pkgkafka "SignalDesk/pkg/kafka"
	"SignalDesk/pkg/util"
)

// NewsEventsHandler consumes scheduled news releases into the session gate.
type NewsEventsHandler struct {
	topic   string
	gate    *SessionGate
	metrics domrepo.Metrics
}

func NewNewsEventsHandler(topic string, gate *SessionGate, metrics domrepo.Metrics) *NewsEventsHandler {
	return &NewsEventsHandler{topic: topic, gate: gate, metrics: metrics}
}

func (h *NewsEventsHandler) Topic() string { return h.topic }

// incoming message schema: {id, time, currency, impact, title, buffer_minutes};
// time is RFC3339 or unix seconds.
func (h *NewsEventsHandler) Handle(_ context.Context, b []byte) error {
	var m struct {
		ID            string          `json:"id"`
		Time          json.RawMessage `json:"time"`
		Currency      string          `json:"currency"`
		Impact        string          `json:"impact"`
		Title         string          `json:"title"`
		BufferMinutes int             `json:"buffer_minutes"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("news_unmarshal")
		return fmt.Errorf("%w: decode news event: %v", pkgkafka.ErrPermanent, err)
	}
	ts, ok := parseEventTime(m.Time)
	if !ok {
		h.metrics.RecordError("news_time")
		return fmt.Errorf("%w: news event time %s", pkgkafka.ErrPermanent, string(m.Time))
	}
	_, err := h.gate.AddNewsEvent(models.NewsEvent{
		ID:            m.ID,
		Time:          ts,
		Currency:      m.Currency,
		Impact:        m.Impact,
		Title:         m.Title,
		BufferMinutes: m.BufferMinutes,
	})
	if errors.Is(err, ErrInvalidNewsEvent) {
		h.metrics.RecordError("news_invalid")
		return fmt.Errorf("%w: %v", pkgkafka.ErrPermanent, err)
	}
	return err
}

func parseEventTime(raw json.RawMessage) (time.Time, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return util.ParseTime(s)
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil && n > 0 {
		if n > 1e11 { // ms
			n /= 1000
		}
		return time.Unix(n, 0).UTC(), true
	}
	return time.Time{}, false
}

// SentimentWriter stores sentiment readings.
type SentimentWriter interface {
	Put(ctx context.Context, s models.Sentiment) error
}

// SentimentHandler consumes sentiment readings published by an upstream scorer.
type SentimentHandler struct {
	topic   string
	store   SentimentWriter
	metrics domrepo.Metrics
}

func NewSentimentHandler(topic string, store SentimentWriter, metrics domrepo.Metrics) *SentimentHandler {
	return &SentimentHandler{topic: topic, store: store, metrics: metrics}
}

func (h *SentimentHandler) Topic() string { return h.topic }

func (h *SentimentHandler) Handle(ctx context.Context, b []byte) error {
	var s models.Sentiment
	if err := json.Unmarshal(b, &s); err != nil {
		h.metrics.RecordError("sentiment_unmarshal")
		return fmt.Errorf("%w: decode sentiment: %v", pkgkafka.ErrPermanent, err)
	}
	if s.Symbol == "" || s.Score < -1 || s.Score > 1 {
		h.metrics.RecordError("sentiment_invalid")
		return fmt.Errorf("%w: invalid sentiment for %q", pkgkafka.ErrPermanent, s.Symbol)
	}
	start := time.Now()
	err := h.store.Put(ctx, s)
	h.metrics.RecordLatency("sentiment_store", time.Since(start).Seconds())
	return err
}

var (
	_ pkgkafka.MessageHandler = (*NewsEventsHandler)(nil)
	_ pkgkafka.MessageHandler = (*SentimentHandler)(nil)
)
