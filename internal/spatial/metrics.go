package spatial

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type handleMetrics struct {
	live      *prometheus.GaugeVec
	creates   *prometheus.CounterVec
	failures  *prometheus.CounterVec
	collected *prometheus.CounterVec
}

var metrics = newHandleMetrics()

func newHandleMetrics() *handleMetrics {
	return &handleMetrics{
		live: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "nimbus",
			Subsystem: "native",
			Name:      "handles_live",
			Help:      "Native handles currently held, by object kind.",
		}, []string{"kind"}),
		creates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nimbus",
			Subsystem: "native",
			Name:      "handle_creates_total",
			Help:      "Native handles created or retained, by object kind.",
		}, []string{"kind"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nimbus",
			Subsystem: "native",
			Name:      "handle_create_failures_total",
			Help:      "Native factory calls that returned an error status.",
		}, []string{"kind", "error"}),
		collected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nimbus",
			Subsystem: "native",
			Name:      "handles_collected_total",
			Help:      "Handles released by the garbage collector instead of Release.",
		}, []string{"kind"}),
	}
}

func (m *handleMetrics) created(kind string) {
	m.live.WithLabelValues(kind).Inc()
	m.creates.WithLabelValues(kind).Inc()
}

func (m *handleMetrics) released(kind string) {
	m.live.WithLabelValues(kind).Dec()
}

func (m *handleMetrics) failed(kind string, err error) {
	label := "unknown"
	var e *Error
	if errors.As(err, &e) {
		label = e.Kind.String()
	}
	m.failures.WithLabelValues(kind, label).Inc()
}

func (m *handleMetrics) leaked(kind string) {
	m.live.WithLabelValues(kind).Dec()
	m.collected.WithLabelValues(kind).Inc()
}

// Collectors returns the handle metrics.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{metrics.live, metrics.creates, metrics.failures, metrics.collected}
}

// RegisterMetrics registers the handle metrics with reg. Registering twice
// is not an error.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}
