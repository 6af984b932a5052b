package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var connStates = []string{"DISCONNECTED", "CONNECTING", "CONNECTED", "ERROR", "CLOSED"}

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	ticksTotal    *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	lastPrice     *prometheus.GaugeVec
	latency       *prometheus.HistogramVec
	signalsTotal  *prometheus.CounterVec
	notifications *prometheus.CounterVec
	connState     *prometheus.GaugeVec
}

// New creates a recorder registered on the default Prometheus registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the collectors on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		ticksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tickwatch_ticks_total",
				Help: "Total number of ticks ingested",
			},
			[]string{"symbol"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tickwatch_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tickwatch_last_price",
				Help: "Last traded price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tickwatch_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		signalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tickwatch_signals_total",
				Help: "Signals handed to the dispatcher",
			},
			[]string{"type"},
		),
		notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tickwatch_notifications_total",
				Help: "Notification attempts by result",
			},
			[]string{"result"},
		),
		connState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tickwatch_connection_state",
				Help: "1 for the current state of each streaming connection",
			},
			[]string{"conn", "state"},
		),
	}
}

// RecordTick counts one ingested tick.
func (r *Recorder) RecordTick(symbol string) {
	r.ticksTotal.WithLabelValues(symbol).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordSignal(kind string) {
	r.signalsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordNotification(result string) {
	r.notifications.WithLabelValues(result).Inc()
}

func (r *Recorder) RecordConnectionState(index int, state string) {
	conn := strconv.Itoa(index)
	for _, s := range connStates {
		v := 0.0
		if s == state {
			v = 1
		}
		r.connState.WithLabelValues(conn, s).Set(v)
	}
}
