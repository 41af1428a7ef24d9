package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %q not found", name)
	return 0
}

func TestMetrics_RecordsGaugesAndCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SetVoicesActive(3)
	m.SetBusesActive(2)
	m.SetFlowsActive(1)
	m.SetQueueDepth(7)
	m.ObserveBlock(time.Millisecond, 512)
	m.IncWarningsEmitted()
	m.IncLoaderTask("ok")
	m.SetPrecacheState("intro", 2)

	assert.Equal(t, 3.0, gaugeValue(t, reg, "sms_voices_active"))
	assert.Equal(t, 2.0, gaugeValue(t, reg, "sms_mix_buses_active"))
	assert.Equal(t, 1.0, gaugeValue(t, reg, "sms_flows_active"))
	assert.Equal(t, 7.0, gaugeValue(t, reg, "sms_command_queue_depth"))
}

func TestMetrics_NilReceiverIsNoOp(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SetVoicesActive(1)
		m.ObserveBlock(time.Second, 256)
		m.IncWarningsEmitted()
		m.IncVoicesDropped()
		m.IncLoaderTask("error")
		m.SetPrecacheState("x", 1)
	})
}
