// Package metrics defines the Prometheus collectors the engine reports to.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "vgoat"

type Metrics struct {
	// Assignments counts decisions by outcome: assigned, existing, excluded, control_fallback.
	Assignments *prometheus.CounterVec

	// Conversions counts conversion calls by result: converted, already_converted.
	Conversions *prometheus.CounterVec

	PublishFailures prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which suits tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Assignments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "assignments_total",
				Help:      "Assignment decisions by outcome",
			},
			[]string{"outcome"},
		),
		Conversions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "conversions_total",
				Help:      "Conversion tracking calls by result",
			},
			[]string{"result"},
		),
		PublishFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "event_publish_failures_total",
				Help:      "Events that could not be handed to the notification bus",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(m.Assignments, m.Conversions, m.PublishFailures)
	}
	return m
}
