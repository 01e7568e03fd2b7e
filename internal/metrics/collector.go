// Package udpmetrics provides a Prometheus-backed implementation of
// udp.MetricsSink, plus gauges for the listener/association counts that
// internal/udp.Core tracks but doesn't push through the sink interface.
package udpmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "goudpstack"
	subsystem = "udp"
)

// Label values for the dropped-datagram counter, matching the drop reasons
// distinguished by internal/udp.Core.Recv.
const (
	ReasonMalformed = "malformed"
	ReasonChecksum  = "checksum"
	ReasonNoMatch   = "no_match"

	labelReason = "reason"
)

// -------------------------------------------------------------------------
// Collector — Prometheus UDP Stack Metrics
// -------------------------------------------------------------------------

// Collector holds all UDP datagram-handler Prometheus metrics. It
// implements udp.MetricsSink so it can be passed directly to
// udp.WithMetrics.
type Collector struct {
	// DatagramsSent counts datagrams successfully handed to the IP layer
	// by Core.Send.
	DatagramsSent prometheus.Counter

	// DatagramsReceived counts datagrams accepted by Core.Recv for
	// demultiplexing (i.e. that passed header/length validation).
	DatagramsReceived prometheus.Counter

	// DatagramsDropped counts datagrams dropped during receive, labeled
	// by reason: malformed, checksum, or no_match.
	DatagramsDropped *prometheus.CounterVec

	// Listeners tracks the number of attached listeners. Set via
	// SetListeners, typically polled from udp.Core.ListenerCount.
	Listeners prometheus.Gauge

	// Associations tracks the number of attached associations. Set via
	// SetAssociations, typically polled from udp.Core.AssociationCount.
	Associations prometheus.Gauge

	// DestUnreachSent counts ICMP Destination Unreachable (port
	// unreachable) messages emitted for undeliverable datagrams.
	DestUnreachSent prometheus.Counter
}

// NewCollector creates a Collector with all metrics registered against
// the provided prometheus.Registerer. If reg is nil,
// prometheus.DefaultRegisterer is used.
//
// All metrics are created with the "goudpstack_udp_" prefix
// (namespace_subsystem) to avoid collisions with other exporters.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.DatagramsSent,
		c.DatagramsReceived,
		c.DatagramsDropped,
		c.Listeners,
		c.Associations,
		c.DestUnreachSent,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	return &Collector{
		DatagramsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "datagrams_sent_total",
			Help:      "Total UDP datagrams handed to the IP layer.",
		}),

		DatagramsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "datagrams_received_total",
			Help:      "Total UDP datagrams accepted for demultiplexing.",
		}),

		DatagramsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "datagrams_dropped_total",
			Help:      "Total UDP datagrams dropped during receive, by reason.",
		}, []string{labelReason}),

		Listeners: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "listeners",
			Help:      "Number of currently attached UDP listeners.",
		}),

		Associations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "associations",
			Help:      "Number of currently attached UDP associations.",
		}),

		DestUnreachSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dest_unreach_sent_total",
			Help:      "Total ICMP Destination Unreachable (port unreachable) messages sent.",
		}),
	}
}

// -------------------------------------------------------------------------
// udp.MetricsSink
// -------------------------------------------------------------------------

// DatagramSent implements udp.MetricsSink.
func (c *Collector) DatagramSent() {
	c.DatagramsSent.Inc()
}

// DatagramReceived implements udp.MetricsSink.
func (c *Collector) DatagramReceived() {
	c.DatagramsReceived.Inc()
}

// DatagramDroppedMalformed implements udp.MetricsSink.
func (c *Collector) DatagramDroppedMalformed() {
	c.DatagramsDropped.WithLabelValues(ReasonMalformed).Inc()
}

// DatagramDroppedChecksum implements udp.MetricsSink.
func (c *Collector) DatagramDroppedChecksum() {
	c.DatagramsDropped.WithLabelValues(ReasonChecksum).Inc()
}

// DatagramDroppedNoMatch implements udp.MetricsSink.
func (c *Collector) DatagramDroppedNoMatch() {
	c.DatagramsDropped.WithLabelValues(ReasonNoMatch).Inc()
}

// DestUnreachSent implements udp.MetricsSink.
func (c *Collector) DestUnreachSent() {
	c.DestUnreachSent.Inc()
}

// -------------------------------------------------------------------------
// Listener / Association Gauges
// -------------------------------------------------------------------------

// SetListeners sets the attached-listener gauge to n. Callers typically
// poll udp.Core.ListenerCount on a short interval.
func (c *Collector) SetListeners(n int) {
	c.Listeners.Set(float64(n))
}

// SetAssociations sets the attached-association gauge to n. Callers
// typically poll udp.Core.AssociationCount on a short interval.
func (c *Collector) SetAssociations(n int) {
	c.Associations.Set(float64(n))
}
