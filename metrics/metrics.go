// Package metrics registers the Prometheus collectors that describe this
// server's own activity: connection counts, ingest throughput, and
// websocket subscriber counts. The /metrics endpoint in daemon/mailhttpd
// serves these through promhttp.Handler against the default registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector this server exposes. The zero value is not
// usable; construct one with New and register it once with RegisterGlobally.
type Metrics struct {
	ActiveSMTPConnections prometheus.Gauge
	MessagesIngested      prometheus.Counter
	IngestErrors          prometheus.Counter
	ActiveSubscribers     prometheus.Gauge
}

// New builds the collector set without registering it.
func New() *Metrics {
	return &Metrics{
		ActiveSMTPConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mercury_smtp_active_connections",
			Help: "Number of SMTP client connections currently open.",
		}),
		MessagesIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mercury_messages_ingested_total",
			Help: "Number of messages successfully captured and stored.",
		}),
		IngestErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mercury_ingest_errors_total",
			Help: "Number of messages dropped due to a parsing or storage error.",
		}),
		ActiveSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mercury_websocket_subscribers",
			Help: "Number of open websocket subscriptions to the new-mail event stream.",
		}),
	}
}

// RegisterGlobally registers every collector with prometheus's default
// registry, the one promhttp.Handler() serves.
func (m *Metrics) RegisterGlobally() error {
	for _, c := range []prometheus.Collector{
		m.ActiveSMTPConnections,
		m.MessagesIngested,
		m.IngestErrors,
		m.ActiveSubscribers,
	} {
		if err := prometheus.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ConnectionGauge returns a callback suitable for smtpd.Daemon.SetConnectionGauge.
func (m *Metrics) ConnectionGauge() func(delta int) {
	return func(delta int) {
		m.ActiveSMTPConnections.Add(float64(delta))
	}
}
