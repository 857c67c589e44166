package phone

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// durBuckets lists histogram buckets for call durations, in seconds.
var durBuckets = []float64{
	1, 10, 30, 60, 5 * 60, 10 * 60, 30 * 60, 3600, 3 * 3600,
}

// Metrics holds the registry counters. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	calls    *prometheus.CounterVec
	rejected *prometheus.CounterVec
	reinit   *prometheus.CounterVec
	active   prometheus.Gauge
	duration prometheus.Histogram
}

func mustRegister[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	err := reg.Register(c)
	if err != nil {
		var e prometheus.AlreadyRegisteredError
		if errors.As(err, &e) {
			return e.ExistingCollector.(T)
		}
		panic(err)
	}
	return c
}

// NewMetrics creates the registry metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{}
	m.calls = mustRegister(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sipphone",
		Name:      "calls_total",
		Help:      "Number of calls added to the registry",
	}, []string{"direction"}))
	m.rejected = mustRegister(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sipphone",
		Name:      "calls_rejected_total",
		Help:      "Number of calls that were not added to the registry",
	}, []string{"reason"}))
	m.reinit = mustRegister(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sipphone",
		Name:      "reinit_total",
		Help:      "Number of engine re-initialization requests",
	}, []string{"result"}))
	m.active = mustRegister(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sipphone",
		Name:      "calls_active",
		Help:      "Number of active calls",
	}))
	m.duration = mustRegister(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sipphone",
		Name:      "call_duration_seconds",
		Help:      "Duration of ended calls",
		Buckets:   durBuckets,
	}))
	return m
}

func (m *Metrics) callAdded(dir Direction) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(dir.String()).Inc()
	m.active.Inc()
}

func (m *Metrics) callRejected(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) callEnded(duration int) {
	if m == nil {
		return
	}
	m.active.Dec()
	m.duration.Observe(float64(duration))
}

func (m *Metrics) reinitDone(result string) {
	if m == nil {
		return
	}
	m.reinit.WithLabelValues(result).Inc()
}
