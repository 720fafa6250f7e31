package gapmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "gogap"
	subsystem = "gap"
)

// Label names for GAP metrics.
const (
	labelPeerAddr  = "peer_addr"
	labelFromState = "from_state"
	labelToState   = "to_state"
	labelMode      = "mode"
)

// -------------------------------------------------------------------------
// Collector — Prometheus GAP Metrics
// -------------------------------------------------------------------------

// Collector holds every GAP Prometheus metric.
//
// Metrics are designed for host-stack observability:
//   - Connections tracks currently open ACL links.
//   - ACLTransitions records FSM changes for alerting on repeated
//     interrogation/pairing failures.
//   - Pairing counters flag authentication trouble.
//   - Discovery gauges track how many callers are holding open
//     discovery/discoverable/scan sessions.
type Collector struct {
	// Connections tracks the number of currently open ACL connections,
	// labeled by peer address.
	Connections *prometheus.GaugeVec

	// ACLTransitions counts ACL FSM state transitions (§4.2.2), labeled
	// with the old state and new state for precise alerting.
	ACLTransitions *prometheus.CounterVec

	// PairingAttempts counts pairing procedures started (§4.2.5).
	PairingAttempts prometheus.Counter

	// PairingFailures counts pairing procedures that ended in failure.
	PairingFailures prometheus.Counter

	// DiscoverySessions tracks currently held BR/EDR Discovery Manager
	// sessions and LE Discovery Manager scan sessions, labeled by mode
	// (inquiry, inquiry_scan, le_active, le_background).
	DiscoverySessions *prometheus.GaugeVec

	// InquiryResults counts BR/EDR inquiry result events received.
	InquiryResults prometheus.Counter

	// LEAdvertisingReports counts LE advertising report events received.
	LEAdvertisingReports prometheus.Counter
}

// NewCollector creates a Collector with all GAP metrics registered
// against the provided prometheus.Registerer. If reg is nil,
// prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.Connections,
		c.ACLTransitions,
		c.PairingAttempts,
		c.PairingFailures,
		c.DiscoverySessions,
		c.InquiryResults,
		c.LEAdvertisingReports,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	peerLabels := []string{labelPeerAddr}
	transitionLabels := []string{labelPeerAddr, labelFromState, labelToState}
	modeLabels := []string{labelMode}

	return &Collector{
		Connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connections",
			Help:      "Number of currently open ACL connections.",
		}, peerLabels),

		ACLTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "acl_transitions_total",
			Help:      "Total ACL connection FSM state transitions.",
		}, transitionLabels),

		PairingAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pairing_attempts_total",
			Help:      "Total pairing procedures started.",
		}),

		PairingFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pairing_failures_total",
			Help:      "Total pairing procedures that ended in failure.",
		}),

		DiscoverySessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "discovery_sessions",
			Help:      "Number of currently held discovery/scan sessions, by mode.",
		}, modeLabels),

		InquiryResults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "inquiry_results_total",
			Help:      "Total BR/EDR inquiry result events received.",
		}),

		LEAdvertisingReports: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "le_advertising_reports_total",
			Help:      "Total LE advertising report events received.",
		}),
	}
}

// -------------------------------------------------------------------------
// Connection Lifecycle
// -------------------------------------------------------------------------

// RegisterConnection increments the open-connections gauge for peer.
// Implements gap.MetricsReporter.
func (c *Collector) RegisterConnection(peer string) {
	c.Connections.WithLabelValues(peer).Inc()
}

// UnregisterConnection decrements the open-connections gauge for peer.
// Implements gap.MetricsReporter.
func (c *Collector) UnregisterConnection(peer string) {
	c.Connections.WithLabelValues(peer).Dec()
}

// -------------------------------------------------------------------------
// ACL State Transitions
// -------------------------------------------------------------------------

// RecordACLTransition increments the ACL transition counter with the old
// and new state labels. Implements gap.MetricsReporter.
func (c *Collector) RecordACLTransition(from, to string) {
	c.ACLTransitions.WithLabelValues("", from, to).Inc()
}

// -------------------------------------------------------------------------
// Pairing
// -------------------------------------------------------------------------

// IncPairingAttempts increments the pairing-attempts counter. Implements
// gap.MetricsReporter.
func (c *Collector) IncPairingAttempts() {
	c.PairingAttempts.Inc()
}

// IncPairingFailures increments the pairing-failures counter. Implements
// gap.MetricsReporter.
func (c *Collector) IncPairingFailures() {
	c.PairingFailures.Inc()
}

// -------------------------------------------------------------------------
// Discovery
// -------------------------------------------------------------------------

// SetDiscoverySessions sets the current session count for mode (one of
// "inquiry", "inquiry_scan", "le_active", "le_background").
func (c *Collector) SetDiscoverySessions(mode string, n int) {
	c.DiscoverySessions.WithLabelValues(mode).Set(float64(n))
}

// IncInquiryResults increments the inquiry-result-event counter.
func (c *Collector) IncInquiryResults() {
	c.InquiryResults.Inc()
}

// IncLEAdvertisingReports increments the LE-advertising-report-event
// counter.
func (c *Collector) IncLEAdvertisingReports() {
	c.LEAdvertisingReports.Inc()
}
