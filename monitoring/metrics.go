package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of a run. Each Metrics has its own
// registry so that several runs can live in one process.
type Metrics struct {
	registry *prometheus.Registry

	steps             prometheus.Counter
	currentStep       prometheus.Gauge
	imbalances        *prometheus.CounterVec
	imbalanceMax      *prometheus.GaugeVec
	calculateDuration *prometheus.HistogramVec

	mu  sync.Mutex
	max map[string]float64
}

// NewMetrics creates the collectors under the given namespace.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "hydrosim"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		max:      make(map[string]float64),
	}

	m.steps = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "run",
		Name:      "steps_total",
		Help:      "Number of time steps completed",
	})

	m.currentStep = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "run",
		Name:      "current_step",
		Help:      "Index of the last completed time step",
	})

	m.imbalances = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "budget",
			Name:      "imbalances_total",
			Help:      "Number of conservation budget violations",
		},
		[]string{"component"},
	)

	m.imbalanceMax = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "budget",
			Name:      "imbalance_max",
			Help:      "Largest budget violation magnitude seen",
		},
		[]string{"component"},
	)

	m.calculateDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "component",
			Name:      "calculate_duration_seconds",
			Help:      "Time taken by the calculate phase of a component",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10), // 10us to ~2.6s
		},
		[]string{"component"},
	)

	m.registry.MustRegister(
		m.steps,
		m.currentStep,
		m.imbalances,
		m.imbalanceMax,
		m.calculateDuration,
	)

	return m
}

// Registry returns the registry of the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordStep counts a completed step.
func (m *Metrics) RecordStep(step int) {
	m.steps.Inc()
	m.currentStep.Set(float64(step))
}

// RecordImbalance counts a budget violation.
func (m *Metrics) RecordImbalance(component string, magnitude float64) {
	m.imbalances.WithLabelValues(component).Inc()

	m.mu.Lock()
	defer m.mu.Unlock()

	if magnitude > m.max[component] {
		m.max[component] = magnitude
		m.imbalanceMax.WithLabelValues(component).Set(magnitude)
	}
}

// RecordCalculate observes the duration of a calculate phase.
func (m *Metrics) RecordCalculate(component string, d time.Duration) {
	m.calculateDuration.WithLabelValues(component).Observe(d.Seconds())
}
