package usecase

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	"SignalDesk/pkg/logger"
	"SignalDesk/pkg/metrics"
	"SignalDesk/pkg/util"
)

const (
	ReasonNewsBlackout    = "news blackout"
	ReasonOutsideSession  = "outside active session"
	ReasonSymbolNotTraded = "symbol not traded in active session"
)

var (
	ErrInvalidSession   = errors.New("invalid session")
	ErrInvalidNewsEvent = errors.New("invalid news event")
)

type compiledSession struct {
	models.TradingSession
	start, end int // minutes after local midnight
	loc        *time.Location
}

func compileSession(s models.TradingSession) (compiledSession, error) {
	if s.Name == "" {
		return compiledSession{}, fmt.Errorf("%w: name required", ErrInvalidSession)
	}
	start, err := util.ParseClock(s.Start)
	if err != nil {
		return compiledSession{}, fmt.Errorf("%w %q: start: %v", ErrInvalidSession, s.Name, err)
	}
	end, err := util.ParseClock(s.End)
	if err != nil {
		return compiledSession{}, fmt.Errorf("%w %q: end: %v", ErrInvalidSession, s.Name, err)
	}
	if s.Timezone == "" {
		s.Timezone = "UTC"
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return compiledSession{}, fmt.Errorf("%w %q: timezone: %v", ErrInvalidSession, s.Name, err)
	}
	s.Symbols = util.NormalizeSymbols(s.Symbols)
	return compiledSession{TradingSession: s, start: start, end: end, loc: loc}, nil
}

// contains reports whether t falls in the window on the session's own
// wall clock. End before Start wraps past midnight; Start == End is all day.
func (c compiledSession) contains(t time.Time) bool {
	m := util.MinuteOfDay(t.In(c.loc))
	switch {
	case c.start < c.end:
		return m >= c.start && m < c.end
	case c.start > c.end:
		return m >= c.start || m < c.end
	default:
		return true
	}
}

func (c compiledSession) trades(symbol string) bool {
	for _, s := range c.Symbols {
		if strings.EqualFold(s, symbol) {
			return true
		}
	}
	return false
}

// SessionGate decides whether a symbol may trade now. Blackout state is
// derived from the stored news events on every query, so there are no timers
// to cancel when events or sessions change.
type SessionGate struct {
	clock         domrepo.Clock
	metrics       domrepo.Metrics
	l             *logger.Logger
	defaultBuffer int

	mu       sync.RWMutex
	sessions []compiledSession
	events   []models.NewsEvent // ascending by Time
}

type GateOption func(*SessionGate)

func WithGateClock(c domrepo.Clock) GateOption {
	return func(g *SessionGate) {
		if c != nil {
			g.clock = c
		}
	}
}

func WithGateMetrics(m domrepo.Metrics) GateOption {
	return func(g *SessionGate) {
		if m != nil {
			g.metrics = m
		}
	}
}

func WithGateLogger(l *logger.Logger) GateOption {
	return func(g *SessionGate) {
		if l != nil {
			g.l = l
		}
	}
}

// WithDefaultBuffer sets the blackout buffer for events that carry none.
func WithDefaultBuffer(minutes int) GateOption {
	return func(g *SessionGate) {
		if minutes >= 0 {
			g.defaultBuffer = minutes
		}
	}
}

// NewSessionGate validates and installs sessions. An empty list installs
// DefaultSessions.
func NewSessionGate(sessions []models.TradingSession, opts ...GateOption) (*SessionGate, error) {
	g := &SessionGate{
		clock:         domrepo.SystemClock{},
		metrics:       metrics.Nop{},
		l:             logger.Nop(),
		defaultBuffer: 15,
	}
	for _, opt := range opts {
		opt(g)
	}
	if len(sessions) == 0 {
		sessions = DefaultSessions()
	}
	seen := make(map[string]struct{}, len(sessions))
	for _, s := range sessions {
		cs, err := compileSession(s)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[cs.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate name %q", ErrInvalidSession, cs.Name)
		}
		seen[cs.Name] = struct{}{}
		g.sessions = append(g.sessions, cs)
	}
	return g, nil
}

// DefaultSessions returns the four major FX sessions in their local time.
func DefaultSessions() []models.TradingSession {
	return []models.TradingSession{
		{Name: "Sydney", Start: "07:00", End: "16:00", Timezone: "Australia/Sydney", Symbols: []string{"AUDUSD", "NZDUSD", "AUDJPY"}, Active: true},
		{Name: "Tokyo", Start: "09:00", End: "18:00", Timezone: "Asia/Tokyo", Symbols: []string{"USDJPY", "EURJPY", "AUDJPY", "AUDUSD"}, Active: true},
		{Name: "London", Start: "08:00", End: "17:00", Timezone: "Europe/London", Symbols: []string{"EURUSD", "GBPUSD", "EURGBP", "USDCHF"}, Active: true},
		{Name: "New York", Start: "08:00", End: "17:00", Timezone: "America/New_York", Symbols: []string{"EURUSD", "GBPUSD", "USDJPY", "USDCAD"}, Active: true},
	}
}

// IsSymbolTradeable applies the news blackout first, then the session windows.
func (g *SessionGate) IsSymbolTradeable(symbol string) models.Tradeability {
	now := g.clock.Now()
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.blackoutAt(now) {
		return models.Tradeability{Allowed: false, Reason: ReasonNewsBlackout}
	}
	open := false
	for _, s := range g.sessions {
		if !s.Active || !s.contains(now) {
			continue
		}
		open = true
		if s.trades(symbol) {
			return models.Tradeability{Allowed: true, Session: s.Name}
		}
	}
	if open {
		return models.Tradeability{Allowed: false, Reason: ReasonSymbolNotTraded}
	}
	return models.Tradeability{Allowed: false, Reason: ReasonOutsideSession}
}

// OpenSessions lists the names of active sessions whose window contains now.
func (g *SessionGate) OpenSessions() []string {
	now := g.clock.Now()
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []string
	for _, s := range g.sessions {
		if s.Active && s.contains(now) {
			out = append(out, s.Name)
		}
	}
	return out
}

// IsNewsBlackoutActive reports whether any stored event's blackout covers now.
func (g *SessionGate) IsNewsBlackoutActive() bool {
	now := g.clock.Now()
	g.mu.RLock()
	active := g.blackoutAt(now)
	g.mu.RUnlock()
	g.metrics.RecordBlackout(active)
	return active
}

func (g *SessionGate) blackoutAt(now time.Time) bool {
	for _, ev := range g.events {
		if ev.Covers(now) {
			return true
		}
	}
	return false
}

// ActiveBlackouts returns the events whose blackout covers now.
func (g *SessionGate) ActiveBlackouts() []models.NewsEvent {
	now := g.clock.Now()
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []models.NewsEvent
	for _, ev := range g.events {
		if ev.Covers(now) {
			out = append(out, ev)
		}
	}
	return out
}

// AddNewsEvent validates and stores ev, replacing any event with the same ID.
// Events whose blackout has already ended are pruned.
func (g *SessionGate) AddNewsEvent(ev models.NewsEvent) (models.NewsEvent, error) {
	if ev.Time.IsZero() {
		return ev, fmt.Errorf("%w: time required", ErrInvalidNewsEvent)
	}
	ev.Currency = strings.ToUpper(strings.TrimSpace(ev.Currency))
	if len(ev.Currency) != 3 {
		return ev, fmt.Errorf("%w: currency %q must be a 3-letter code", ErrInvalidNewsEvent, ev.Currency)
	}
	switch ev.Impact = strings.ToLower(ev.Impact); ev.Impact {
	case "":
		ev.Impact = models.ImpactHigh
	case models.ImpactLow, models.ImpactMedium, models.ImpactHigh:
	default:
		return ev, fmt.Errorf("%w: impact %q", ErrInvalidNewsEvent, ev.Impact)
	}
	if ev.BufferMinutes < 0 {
		return ev, fmt.Errorf("%w: negative buffer", ErrInvalidNewsEvent)
	}
	if ev.BufferMinutes == 0 {
		ev.BufferMinutes = g.defaultBuffer
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	ev.Time = ev.Time.UTC()

	now := g.clock.Now()
	g.mu.Lock()
	kept := make([]models.NewsEvent, 0, len(g.events)+1)
	for _, e := range g.events {
		if e.ID != ev.ID && e.BlackoutEnd().After(now) {
			kept = append(kept, e)
		}
	}
	if ev.BlackoutEnd().After(now) {
		kept = append(kept, ev)
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Time.Before(kept[j].Time) })
	g.events = kept
	active := g.blackoutAt(now)
	g.mu.Unlock()

	g.metrics.RecordBlackout(active)
	g.l.Info("news event added",
		logger.String("id", ev.ID),
		logger.String("currency", ev.Currency),
		logger.String("impact", ev.Impact),
		logger.Int("buffer_minutes", ev.BufferMinutes),
		logger.Bool("blackout_active", active),
	)
	return ev, nil
}

// GetUpcomingNewsEvents returns events with Time in [now, now+hours], ascending.
func (g *SessionGate) GetUpcomingNewsEvents(hours int) []models.NewsEvent {
	now := g.clock.Now()
	until := now.Add(time.Duration(hours) * time.Hour)
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []models.NewsEvent
	for _, ev := range g.events {
		if !ev.Time.Before(now) && !ev.Time.After(until) {
			out = append(out, ev)
		}
	}
	return out
}

// GetSessions returns copies of the sessions in configuration order.
func (g *SessionGate) GetSessions() []models.TradingSession {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]models.TradingSession, len(g.sessions))
	for i, s := range g.sessions {
		out[i] = s.TradingSession
		out[i].Symbols = append([]string(nil), s.Symbols...)
	}
	return out
}

// UpdateSession applies patch to the named session. It reports false for an
// unknown name and rejects patches that leave the session invalid.
func (g *SessionGate) UpdateSession(name string, patch models.SessionPatch) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, cur := range g.sessions {
		if cur.Name != name {
			continue
		}
		next := cur.TradingSession
		if patch.Start != nil {
			next.Start = *patch.Start
		}
		if patch.End != nil {
			next.End = *patch.End
		}
		if patch.Timezone != nil {
			next.Timezone = *patch.Timezone
		}
		if patch.Symbols != nil {
			next.Symbols = patch.Symbols
		}
		if patch.Active != nil {
			next.Active = *patch.Active
		}
		cs, err := compileSession(next)
		if err != nil {
			return true, err
		}
		g.sessions[i] = cs
		g.l.Info("session updated", logger.String("session", name), logger.Bool("active", cs.Active))
		return true, nil
	}
	return false, nil
}
