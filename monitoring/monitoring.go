package monitoring

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jobquill/textgen"
)

// Metrics exposes router behavior to Prometheus. All record methods are safe
// on a nil receiver so the router can run without metrics wired.
type Metrics struct {
	registry *prometheus.Registry

	attemptsTotal  *prometheus.CounterVec
	successesTotal *prometheus.CounterVec
	failuresTotal  *prometheus.CounterVec
	skipsTotal     *prometheus.CounterVec
	healthState    *prometheus.GaugeVec
}

func NewMetrics(namespace string) (*Metrics, error) {
	if namespace == "" {
		namespace = "textgen"
	}

	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		attemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_attempts_total",
				Help:      "Total adapter invocations per provider",
			},
			[]string{"provider"},
		),
		successesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_successes_total",
				Help:      "Total successful completions per provider",
			},
			[]string{"provider"},
		),
		failuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_failures_total",
				Help:      "Total adapter failures per provider and failure kind",
			},
			[]string{"provider", "kind"},
		),
		skipsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_skips_total",
				Help:      "Tiers skipped by the quota gate, per provider and reason",
			},
			[]string{"provider", "reason"},
		),
		healthState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "provider_health_state",
				Help:      "Provider health: 0 healthy, 1 rate limited, 2 disabled",
			},
			[]string{"provider"},
		),
	}

	collectors := []prometheus.Collector{
		m.attemptsTotal,
		m.successesTotal,
		m.failuresTotal,
		m.skipsTotal,
		m.healthState,
	}
	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			return nil, fmt.Errorf("failed to register collector: %v", err)
		}
	}

	return m, nil
}

// Handler returns an HTTP handler serving the metrics registry. The caller
// decides where (or whether) to mount it; this library opens no listeners.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordAttempt(provider string) {
	if m == nil {
		return
	}
	m.attemptsTotal.WithLabelValues(provider).Inc()
}

func (m *Metrics) RecordSuccess(provider string) {
	if m == nil {
		return
	}
	m.successesTotal.WithLabelValues(provider).Inc()
}

func (m *Metrics) RecordFailure(provider string, kind string) {
	if m == nil {
		return
	}
	m.failuresTotal.WithLabelValues(provider, kind).Inc()
}

func (m *Metrics) RecordSkip(provider string, reason string) {
	if m == nil {
		return
	}
	m.skipsTotal.WithLabelValues(provider, reason).Inc()
}

func (m *Metrics) SetHealth(provider string, health textgen.Health) {
	if m == nil {
		return
	}
	m.healthState.WithLabelValues(provider).Set(healthValue(health))
}

func healthValue(health textgen.Health) float64 {
	switch health {
	case textgen.HealthRateLimited:
		return 1
	case textgen.HealthDisabledFreeTier:
		return 2
	}
	return 0
}
