package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	signalsTotal   *prometheus.CounterVec
	providerErrors *prometheus.CounterVec
	missingData    *prometheus.CounterVec
	activeSignals  *prometheus.GaugeVec
	latency        *prometheus.HistogramVec
	blackout       prometheus.Gauge
	errorsTotal    *prometheus.CounterVec
}

// New registers the collectors on the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the collectors on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		signalsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signaldesk_signals_generated_total",
				Help: "Signals produced by providers",
			},
			[]string{"provider", "symbol", "side"},
		),
		providerErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signaldesk_provider_errors_total",
				Help: "Provider failures, including recovered panics",
			},
			[]string{"provider"},
		),
		missingData: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signaldesk_missing_market_data_total",
				Help: "Symbols skipped because market data was unavailable",
			},
			[]string{"symbol"},
		),
		activeSignals: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "signaldesk_active_signals",
				Help: "Non-expired signals held per symbol after the last commit",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signaldesk_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		blackout: f.NewGauge(prometheus.GaugeOpts{
			Name: "signaldesk_news_blackout_active",
			Help: "1 while a news blackout is in effect",
		}),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signaldesk_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
	}
}

func (r *Recorder) RecordSignal(provider, symbol string, side models.Side) {
	r.signalsTotal.WithLabelValues(provider, symbol, string(side)).Inc()
}

func (r *Recorder) RecordProviderError(provider string) {
	r.providerErrors.WithLabelValues(provider).Inc()
}

func (r *Recorder) RecordMissingData(symbol string) {
	r.missingData.WithLabelValues(symbol).Inc()
}

func (r *Recorder) RecordActiveSignals(symbol string, n int) {
	r.activeSignals.WithLabelValues(symbol).Set(float64(n))
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordBlackout(active bool) {
	if active {
		r.blackout.Set(1)
		return
	}
	r.blackout.Set(0)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// Nop discards all measurements.
type Nop struct{}

func (Nop) RecordSignal(string, string, models.Side) {}
func (Nop) RecordProviderError(string)               {}
func (Nop) RecordMissingData(string)                 {}
func (Nop) RecordActiveSignals(string, int)          {}
func (Nop) RecordLatency(string, float64)            {}
func (Nop) RecordBlackout(bool)                      {}
func (Nop) RecordError(string)                       {}

var (
	_ domrepo.Metrics = (*Recorder)(nil)
	_ domrepo.Metrics = Nop{}
)
