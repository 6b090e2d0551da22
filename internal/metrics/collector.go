// Package captpmetrics defines the Prometheus metrics exported by a gocaptp
// daemon.
package captpmetrics

import "github.com/prometheus/client_golang/prometheus"

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "gocaptp"
	subsystem = "session"
)

// Label names for CapTP metrics.
const (
	labelDesignator = "designator"
	labelTransport  = "transport"
	labelOperation  = "operation"
)

// -------------------------------------------------------------------------
// Collector — Prometheus CapTP Metrics
// -------------------------------------------------------------------------

// Collector holds all CapTP Prometheus metrics.
//
//   - Sessions gauges track currently established sessions per peer.
//   - Operation counters track inbound/outbound wire traffic by kind.
//   - Export/import gauges track live table sizes for capacity alerting.
//   - Abort counters flag protocol errors and peer-initiated teardowns.
type Collector struct {
	// Sessions tracks the number of currently established sessions.
	Sessions *prometheus.GaugeVec

	// OperationsSent counts outbound wire operations by kind.
	OperationsSent *prometheus.CounterVec

	// OperationsReceived counts inbound wire operations by kind.
	OperationsReceived *prometheus.CounterVec

	// ExportTableSize gauges the live export table size per peer.
	ExportTableSize *prometheus.GaugeVec

	// ImportTableSize gauges the live import set size per peer.
	ImportTableSize *prometheus.GaugeVec

	// Aborts counts session aborts, labeled by designator only; the reason
	// text itself is not a label to avoid unbounded cardinality.
	Aborts *prometheus.CounterVec

	// HandshakeFailures counts handshakes that failed version or signature
	// verification, before a Session exists to attribute a designator to.
	HandshakeFailures prometheus.Counter
}

// NewCollector creates a Collector with all CapTP metrics registered
// against reg. If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.Sessions,
		c.OperationsSent,
		c.OperationsReceived,
		c.ExportTableSize,
		c.ImportTableSize,
		c.Aborts,
		c.HandshakeFailures,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	sessionLabels := []string{labelDesignator, labelTransport}
	operationLabels := []string{labelDesignator, labelOperation}

	return &Collector{
		Sessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "established",
			Help:      "Number of currently established CapTP sessions.",
		}, sessionLabels),

		OperationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "operations_sent_total",
			Help:      "Total CapTP wire operations sent, by operation kind.",
		}, operationLabels),

		OperationsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "operations_received_total",
			Help:      "Total CapTP wire operations received, by operation kind.",
		}, operationLabels),

		ExportTableSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "export_table_size",
			Help:      "Current number of objects in a session's export table.",
		}, sessionLabels),

		ImportTableSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "import_table_size",
			Help:      "Current number of positions in a session's import set.",
		}, sessionLabels),

		Aborts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "aborts_total",
			Help:      "Total session aborts, by peer designator.",
		}, []string{labelDesignator}),

		HandshakeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "handshake_failures_total",
			Help:      "Total handshake attempts rejected for version mismatch or bad signature.",
		}),
	}
}

// -------------------------------------------------------------------------
// Session Lifecycle
// -------------------------------------------------------------------------

// RegisterSession increments the established sessions gauge for designator.
func (c *Collector) RegisterSession(designator, transport string) {
	c.Sessions.WithLabelValues(designator, transport).Inc()
}

// UnregisterSession decrements the established sessions gauge for
// designator.
func (c *Collector) UnregisterSession(designator, transport string) {
	c.Sessions.WithLabelValues(designator, transport).Dec()
}

// -------------------------------------------------------------------------
// Operation Counters
// -------------------------------------------------------------------------

// IncOperationsSent increments the sent-operations counter for designator
// and operation.
func (c *Collector) IncOperationsSent(designator, operation string) {
	c.OperationsSent.WithLabelValues(designator, operation).Inc()
}

// IncOperationsReceived increments the received-operations counter for
// designator and operation.
func (c *Collector) IncOperationsReceived(designator, operation string) {
	c.OperationsReceived.WithLabelValues(designator, operation).Inc()
}

// -------------------------------------------------------------------------
// Table Gauges
// -------------------------------------------------------------------------

// SetExportTableSize records the current export table size for designator.
func (c *Collector) SetExportTableSize(designator, transport string, size int) {
	c.ExportTableSize.WithLabelValues(designator, transport).Set(float64(size))
}

// SetImportTableSize records the current import set size for designator.
func (c *Collector) SetImportTableSize(designator, transport string, size int) {
	c.ImportTableSize.WithLabelValues(designator, transport).Set(float64(size))
}

// -------------------------------------------------------------------------
// Aborts and Handshake Failures
// -------------------------------------------------------------------------

// IncAborts increments the abort counter for designator.
func (c *Collector) IncAborts(designator string) {
	c.Aborts.WithLabelValues(designator).Inc()
}

// IncHandshakeFailures increments the handshake failure counter.
func (c *Collector) IncHandshakeFailures() {
	c.HandshakeFailures.Inc()
}
