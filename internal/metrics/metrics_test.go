package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/headline-goat/variant-goat/internal/metrics"
)

func TestNew_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.Assignments.WithLabelValues("assigned").Inc()
	m.Assignments.WithLabelValues("assigned").Inc()
	m.Conversions.WithLabelValues("converted").Inc()
	m.PublishFailures.Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Assignments.WithLabelValues("assigned")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Conversions.WithLabelValues("converted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PublishFailures))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.ElementsMatch(t, []string{
		"vgoat_assignments_total",
		"vgoat_conversions_total",
		"vgoat_event_publish_failures_total",
	}, names)
}

func TestNew_NilRegistry(t *testing.T) {
	m := metrics.New(nil)
	m.Assignments.WithLabelValues("excluded").Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Assignments.WithLabelValues("excluded")))
}
