package gapmetrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	gapmetrics "github.com/dantte-lp/gogap/internal/metrics"
)

func TestNewCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := gapmetrics.NewCollector(reg)

	if c.Connections == nil {
		t.Error("Connections is nil")
	}
	if c.ACLTransitions == nil {
		t.Error("ACLTransitions is nil")
	}
	if c.PairingAttempts == nil {
		t.Error("PairingAttempts is nil")
	}
	if c.PairingFailures == nil {
		t.Error("PairingFailures is nil")
	}
	if c.DiscoverySessions == nil {
		t.Error("DiscoverySessions is nil")
	}

	// Verify all metrics are registered by gathering them.
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	_ = families
}

func TestRegisterUnregisterConnection(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := gapmetrics.NewCollector(reg)

	const peer = "AA:BB:CC:DD:EE:FF"

	c.RegisterConnection(peer)
	if val := gaugeValue(t, c.Connections, peer); val != 1 {
		t.Errorf("after RegisterConnection: gauge = %v, want 1", val)
	}

	c.UnregisterConnection(peer)
	if val := gaugeValue(t, c.Connections, peer); val != 0 {
		t.Errorf("after UnregisterConnection: gauge = %v, want 0", val)
	}
}

func TestACLTransitions(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := gapmetrics.NewCollector(reg)

	c.RecordACLTransition("NotConnected", "Connecting")
	c.RecordACLTransition("NotConnected", "Connecting")
	c.RecordACLTransition("Connecting", "Interrogating")

	if val := counterValue(t, c.ACLTransitions, "", "NotConnected", "Connecting"); val != 2 {
		t.Errorf("NotConnected->Connecting = %v, want 2", val)
	}
	if val := counterValue(t, c.ACLTransitions, "", "Connecting", "Interrogating"); val != 1 {
		t.Errorf("Connecting->Interrogating = %v, want 1", val)
	}
}

func TestPairingCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := gapmetrics.NewCollector(reg)

	c.IncPairingAttempts()
	c.IncPairingAttempts()
	c.IncPairingFailures()

	m := &dto.Metric{}
	if err := c.PairingAttempts.Write(m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := m.GetCounter().GetValue(); got != 2 {
		t.Errorf("PairingAttempts = %v, want 2", got)
	}

	m = &dto.Metric{}
	if err := c.PairingFailures.Write(m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := m.GetCounter().GetValue(); got != 1 {
		t.Errorf("PairingFailures = %v, want 1", got)
	}
}

func TestDiscoverySessions(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := gapmetrics.NewCollector(reg)

	c.SetDiscoverySessions("inquiry", 2)
	c.SetDiscoverySessions("le_active", 1)

	if val := gaugeValue(t, c.DiscoverySessions, "inquiry"); val != 2 {
		t.Errorf("inquiry sessions = %v, want 2", val)
	}
	if val := gaugeValue(t, c.DiscoverySessions, "le_active"); val != 1 {
		t.Errorf("le_active sessions = %v, want 1", val)
	}

	c.SetDiscoverySessions("inquiry", 0)
	if val := gaugeValue(t, c.DiscoverySessions, "inquiry"); val != 0 {
		t.Errorf("inquiry sessions after release = %v, want 0", val)
	}
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

func gaugeValue(t *testing.T, vec *prometheus.GaugeVec, labels ...string) float64 {
	t.Helper()

	gauge, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}

	m := &dto.Metric{}
	if err := gauge.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}

	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()

	counter, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}

	m := &dto.Metric{}
	if err := counter.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}

	return m.GetCounter().GetValue()
}
