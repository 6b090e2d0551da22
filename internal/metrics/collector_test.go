package captpmetrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	captpmetrics "github.com/dantte-lp/gocaptp/internal/metrics"
)

func TestNewCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := captpmetrics.NewCollector(reg)

	if c.Sessions == nil {
		t.Error("Sessions is nil")
	}
	if c.OperationsSent == nil {
		t.Error("OperationsSent is nil")
	}
	if c.OperationsReceived == nil {
		t.Error("OperationsReceived is nil")
	}
	if c.ExportTableSize == nil {
		t.Error("ExportTableSize is nil")
	}
	if c.ImportTableSize == nil {
		t.Error("ImportTableSize is nil")
	}
	if c.Aborts == nil {
		t.Error("Aborts is nil")
	}
	if c.HandshakeFailures == nil {
		t.Error("HandshakeFailures is nil")
	}

	// Verify all metrics are registered by gathering them; registration
	// must not panic.
	if _, err := reg.Gather(); err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
}

func TestRegisterUnregisterSession(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := captpmetrics.NewCollector(reg)

	c.RegisterSession("peer.example", "tcp")

	val := gaugeValue(t, c.Sessions, "peer.example", "tcp")
	if val != 1 {
		t.Errorf("after RegisterSession: sessions gauge = %v, want 1", val)
	}

	c.UnregisterSession("peer.example", "tcp")

	val = gaugeValue(t, c.Sessions, "peer.example", "tcp")
	if val != 0 {
		t.Errorf("after UnregisterSession: sessions gauge = %v, want 0", val)
	}
}

func TestOperationCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := captpmetrics.NewCollector(reg)

	c.IncOperationsSent("peer.example", "op:deliver")
	c.IncOperationsSent("peer.example", "op:deliver")
	c.IncOperationsSent("peer.example", "op:deliver")

	val := counterValue(t, c.OperationsSent, "peer.example", "op:deliver")
	if val != 3 {
		t.Errorf("OperationsSent = %v, want 3", val)
	}

	c.IncOperationsReceived("peer.example", "op:deliver-only")
	c.IncOperationsReceived("peer.example", "op:deliver-only")

	val = counterValue(t, c.OperationsReceived, "peer.example", "op:deliver-only")
	if val != 2 {
		t.Errorf("OperationsReceived = %v, want 2", val)
	}
}

func TestTableSizeGauges(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := captpmetrics.NewCollector(reg)

	c.SetExportTableSize("peer.example", "tcp", 4)
	if val := gaugeValue(t, c.ExportTableSize, "peer.example", "tcp"); val != 4 {
		t.Errorf("ExportTableSize = %v, want 4", val)
	}

	c.SetImportTableSize("peer.example", "tcp", 2)
	if val := gaugeValue(t, c.ImportTableSize, "peer.example", "tcp"); val != 2 {
		t.Errorf("ImportTableSize = %v, want 2", val)
	}
}

func TestAbortsAndHandshakeFailures(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := captpmetrics.NewCollector(reg)

	c.IncAborts("peer.example")
	c.IncAborts("peer.example")

	val := counterValue(t, c.Aborts, "peer.example")
	if val != 2 {
		t.Errorf("Aborts = %v, want 2", val)
	}

	c.IncHandshakeFailures()

	m := &dto.Metric{}
	if err := c.HandshakeFailures.Write(m); err != nil {
		t.Fatalf("write handshake failures metric: %v", err)
	}
	if got := m.GetCounter().GetValue(); got != 1 {
		t.Errorf("HandshakeFailures = %v, want 1", got)
	}
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

// gaugeValue reads the current value of a GaugeVec with the given labels.
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

// counterValue reads the current value of a CounterVec with the given labels.
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
