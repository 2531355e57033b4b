package monitor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the poll loop counters exported on /metrics. A nil *Metrics records nothing.
type Metrics struct {
	Passes       prometheus.Counter
	PassDuration prometheus.Histogram
	Devices      prometheus.Gauge
	Chunks       *prometheus.CounterVec
	Characters   *prometheus.CounterVec
	ReadErrors   *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Passes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "multiserial",
			Subsystem: "poll",
			Name:      "passes_total",
			Help:      "Total number of scans over all devices",
		}),
		PassDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "multiserial",
			Subsystem: "poll",
			Name:      "pass_duration_seconds",
			Help:      "Time spent reading all devices in one scan",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1},
		}),
		Devices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "multiserial",
			Subsystem: "poll",
			Name:      "devices",
			Help:      "Number of devices visited in the last scan",
		}),
		Chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "multiserial",
			Subsystem: "output",
			Name:      "chunks_total",
			Help:      "Total number of output chunks appended to the sink",
		}, []string{"device"}),
		Characters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "multiserial",
			Subsystem: "output",
			Name:      "characters_total",
			Help:      "Total number of decoded characters received",
		}, []string{"device"}),
		ReadErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "multiserial",
			Subsystem: "poll",
			Name:      "read_errors_total",
			Help:      "Total number of failed or panicking device reads",
		}, []string{"device"}),
	}

	for _, c := range []prometheus.Collector{m.Passes, m.PassDuration, m.Devices, m.Chunks, m.Characters, m.ReadErrors} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observePass(devices int, took time.Duration) {
	if m == nil {
		return
	}
	m.Passes.Inc()
	m.Devices.Set(float64(devices))
	m.PassDuration.Observe(took.Seconds())
}

func (m *Metrics) observeChunk(device string, chars int) {
	if m == nil {
		return
	}
	m.Chunks.WithLabelValues(device).Inc()
	m.Characters.WithLabelValues(device).Add(float64(chars))
}

func (m *Metrics) observeError(device string) {
	if m == nil {
		return
	}
	m.ReadErrors.WithLabelValues(device).Inc()
}
