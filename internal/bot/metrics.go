// Package bot owns the ingestion side: the gateway connection lifecycle,
// the inbound event handlers, and the retention sweeper.
//
// This file exposes Prometheus instrumentation for the ingestion pipeline.
// Cardinality is deliberately flat (no per-guild labels): the dashboards
// only need pipeline-level throughput and connection state.
package bot

import "github.com/prometheus/client_golang/prometheus"

var (
	// messagesIngested counts messages stored from gateway events.
	messagesIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "discord_messages_ingested_total",
		Help: "Total number of messages stored from the gateway.",
	})

	// messagesSwept counts messages removed by the retention sweeper.
	messagesSwept = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "discord_messages_swept_total",
		Help: "Total number of messages deleted by retention sweeps.",
	})

	// sweepFailures counts sweep cycles that ended in an error.
	sweepFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "discord_sweep_failures_total",
		Help: "Total number of retention sweeps that failed.",
	})

	// gatewayConnected is 1 while the gateway connection is open.
	gatewayConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "discord_gateway_connected",
		Help: "Whether the gateway connection is currently open (0 or 1).",
	})
)

func init() {
	prometheus.MustRegister(messagesIngested, messagesSwept, sweepFailures, gatewayConnected)
}
