package models

import "time"

// TradingSession is a named daily window, evaluated in its own timezone,
// restricting which symbols may trade.
type TradingSession struct {
	Name     string   `json:"name" yaml:"name"`
	Start    string   `json:"start" yaml:"start"` // HH:MM
	End      string   `json:"end" yaml:"end"`     // HH:MM, may be before Start for overnight sessions
	Timezone string   `json:"timezone" yaml:"timezone"`
	Symbols  []string `json:"symbols" yaml:"symbols"`
	Active   bool     `json:"active" yaml:"active"`
}

// SessionPatch carries a partial session update. Nil fields are left unchanged.
type SessionPatch struct {
	Start    *string  `json:"start,omitempty"`
	End      *string  `json:"end,omitempty"`
	Timezone *string  `json:"timezone,omitempty"`
	Symbols  []string `json:"symbols,omitempty"`
	Active   *bool    `json:"active,omitempty"`
}

// Impact levels for news events.
const (
	ImpactLow    = "low"
	ImpactMedium = "medium"
	ImpactHigh   = "high"
)

// NewsEvent is a scheduled release. Trading is blacked out for
// BufferMinutes on either side of Time.
type NewsEvent struct {
	ID            string    `json:"id"`
	Time          time.Time `json:"time"`
	Currency      string    `json:"currency"`
	Impact        string    `json:"impact"`
	Title         string    `json:"title"`
	BufferMinutes int       `json:"buffer_minutes"`
}

// BlackoutStart is the first instant of the event's blackout interval.
func (e NewsEvent) BlackoutStart() time.Time {
	return e.Time.Add(-time.Duration(e.BufferMinutes) * time.Minute)
}

// BlackoutEnd is the instant the event's blackout interval closes.
func (e NewsEvent) BlackoutEnd() time.Time {
	return e.Time.Add(time.Duration(e.BufferMinutes) * time.Minute)
}

// Covers reports whether t lies inside [BlackoutStart, BlackoutEnd).
func (e NewsEvent) Covers(t time.Time) bool {
	return !t.Before(e.BlackoutStart()) && t.Before(e.BlackoutEnd())
}

// Tradeability is the answer to a "may this symbol trade now" query.
type Tradeability struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Session string `json:"session,omitempty"`
}
