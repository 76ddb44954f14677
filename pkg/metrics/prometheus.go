package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"SessionBreak/internal/domain/models"
)

const namespace = "sessionbreak"

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	messagesSent *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	lastPrice    *prometheus.GaugeVec
	latency      *prometheus.HistogramVec
	entries      *prometheus.CounterVec
	breakEvens   *prometheus.CounterVec
	rangeHigh    *prometheus.GaugeVec
	rangeLow     *prometheus.GaugeVec
	rangeWidth   *prometheus.GaugeVec
	sessionState *prometheus.GaugeVec
}

// New registers the recorder's collectors on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers on reg; tests pass a fresh prometheus.NewRegistry().
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		messagesSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_sent_total",
				Help:      "Total number of messages sent to a backend",
			},
			[]string{"backend", "symbol"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_price",
				Help:      "Last recorded price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of operations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		entries: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "entries_total",
				Help:      "Breakout entries requested per session and direction",
			},
			[]string{"label", "direction"},
		),
		breakEvens: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "break_even_total",
				Help:      "Break-even modifications requested per session",
			},
			[]string{"label"},
		),
		rangeHigh: f.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Name: "range_high", Help: "Confirmed range high"},
			[]string{"label"},
		),
		rangeLow: f.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Name: "range_low", Help: "Confirmed range low"},
			[]string{"label"},
		),
		rangeWidth: f.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Name: "range_width", Help: "Confirmed range width"},
			[]string{"label"},
		),
		sessionState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "session_range_confirmed",
				Help:      "1 when the session range is confirmed, 0 otherwise",
			},
			[]string{"label"},
		),
	}
}

func (r *Recorder) RecordMessageSent(backend, symbol string) {
	r.messagesSent.WithLabelValues(backend, symbol).Inc()
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordEntry(label string, dir models.Direction) {
	r.entries.WithLabelValues(label, string(dir)).Inc()
}

func (r *Recorder) RecordBreakEven(label string) {
	r.breakEvens.WithLabelValues(label).Inc()
}

// RecordRange exports the confirmed range of a session. Unset ranges are ignored.
func (r *Recorder) RecordRange(label string, rg models.Range) {
	if !rg.IsSet {
		return
	}
	r.rangeHigh.WithLabelValues(label).Set(rg.High)
	r.rangeLow.WithLabelValues(label).Set(rg.Low)
	r.rangeWidth.WithLabelValues(label).Set(rg.Width())
}

func (r *Recorder) RecordSessionState(label string, state models.SessionState) {
	v := 0.0
	if state == models.StateRangeConfirmed {
		v = 1
	}
	r.sessionState.WithLabelValues(label).Set(v)
}
