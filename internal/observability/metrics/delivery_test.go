package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliveryLatencyObservesPerStatus(t *testing.T) {
	registry := prometheus.NewRegistry()
	latency, err := NewDeliveryLatency(registry)
	require.NoError(t, err)

	latency.Observe("success", "json", 120*time.Millisecond)
	latency.Observe("success", "json", 80*time.Millisecond)
	latency.Observe("failed", "slack", time.Second)

	families, err := registry.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)

	counts := map[string]uint64{}
	for _, m := range families[0].GetMetric() {
		counts[labelValue(m, "status")+"/"+labelValue(m, "format")] = m.GetHistogram().GetSampleCount()
	}
	assert.Equal(t, uint64(2), counts["success/json"])
	assert.Equal(t, uint64(1), counts["failed/slack"])
}

func TestDeliveryLatencyReusesRegisteredCollector(t *testing.T) {
	registry := prometheus.NewRegistry()
	first, err := NewDeliveryLatency(registry)
	require.NoError(t, err)
	second, err := NewDeliveryLatency(registry)
	require.NoError(t, err)

	first.Observe("success", "json", time.Millisecond)
	second.Observe("success", "json", time.Millisecond)

	families, err := registry.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Equal(t, uint64(2), families[0].GetMetric()[0].GetHistogram().GetSampleCount())
}

func labelValue(m *dto.Metric, name string) string {
	for _, pair := range m.GetLabel() {
		if pair.GetName() == name {
			return pair.GetValue()
		}
	}
	return ""
}
