package ingest

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeStored      = "stored"
	OutcomeDecodeError = "decode_error"
	OutcomeStoreError  = "store_error"
)

// Metrics counts what happens to device frames. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	frames            *prometheus.CounterVec
	timeouts          prometheus.Counter
	aggregateFailures prometheus.Counter
	linkDrops         prometheus.Counter
	connected         prometheus.Gauge
	lastReading       prometheus.Gauge
}

// NewMetrics builds the collectors and registers them with reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nitronimbus",
			Name:      "frames_total",
			Help:      "Device frames processed by outcome.",
		}, []string{"outcome"}),
		timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nitronimbus",
			Name:      "frame_timeouts_total",
			Help:      "Polling cycles that ended without a frame.",
		}),
		aggregateFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nitronimbus",
			Name:      "statistics_failures_total",
			Help:      "Daily statistics recomputations that failed.",
		}),
		linkDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nitronimbus",
			Name:      "link_drops_total",
			Help:      "Times the device link went down while polling.",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nitronimbus",
			Name:      "device_connected",
			Help:      "1 while the device link is open.",
		}),
		lastReading: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nitronimbus",
			Name:      "last_reading_timestamp_seconds",
			Help:      "Unix time of the most recently stored reading.",
		}),
	}

	for _, outcome := range []string{OutcomeStored, OutcomeDecodeError, OutcomeStoreError} {
		m.frames.WithLabelValues(outcome)
	}

	if reg != nil {
		reg.MustRegister(
			m.frames,
			m.timeouts,
			m.aggregateFailures,
			m.linkDrops,
			m.connected,
			m.lastReading,
		)
	}

	return m
}

func (m *Metrics) Frame(outcome string) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Timeout() {
	if m == nil {
		return
	}
	m.timeouts.Inc()
}

func (m *Metrics) AggregateFailure() {
	if m == nil {
		return
	}
	m.aggregateFailures.Inc()
}

func (m *Metrics) LinkDrop() {
	if m == nil {
		return
	}
	m.linkDrops.Inc()
}

func (m *Metrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}

func (m *Metrics) Stored(at time.Time) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(OutcomeStored).Inc()
	m.lastReading.Set(float64(at.Unix()))
}
