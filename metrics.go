package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the gateway
type Metrics struct {
	// WebSocket connection metrics
	ConnectedClients prometheus.Gauge
	ConnectionsTotal prometheus.Counter
	MessagesReceived prometheus.Counter
	MessagesSent     prometheus.Counter

	// Authentication metrics
	AuthRejects prometheus.Counter

	// RPC method metrics
	RPCRequests *prometheus.CounterVec

	// Block event metrics
	Subscribers       prometheus.Gauge
	BlocksBroadcast   prometheus.Counter
	SubscribersPruned prometheus.Counter

	// Transaction metrics
	TxSubmitted prometheus.Counter
}

// NewMetrics initializes and registers Prometheus metrics
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(nil)
}

// NewMetricsWithRegistry initializes and registers Prometheus metrics with a custom registry
func NewMetricsWithRegistry(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		ConnectedClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "evmgate_connected_clients",
			Help: "The current number of connected clients",
		}),
		ConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "evmgate_connections_total",
			Help: "The total number of WebSocket connections made since server start",
		}),
		MessagesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "evmgate_ws_messages_received_total",
			Help: "The total number of WebSocket messages received",
		}),
		MessagesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "evmgate_ws_messages_sent_total",
			Help: "The total number of WebSocket messages sent",
		}),
		AuthRejects: factory.NewCounter(prometheus.CounterOpts{
			Name: "evmgate_auth_rejects_total",
			Help: "The total number of connections rejected at the auth handshake",
		}),
		RPCRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evmgate_rpc_requests_total",
				Help: "The total number of RPC requests by method",
			},
			[]string{"method", "status"},
		),
		Subscribers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "evmgate_block_subscribers",
			Help: "The current number of block event subscribers",
		}),
		BlocksBroadcast: factory.NewCounter(prometheus.CounterOpts{
			Name: "evmgate_blocks_broadcast_total",
			Help: "The total number of block notifications broadcast",
		}),
		SubscribersPruned: factory.NewCounter(prometheus.CounterOpts{
			Name: "evmgate_subscribers_pruned_total",
			Help: "The total number of dead subscribers pruned during broadcast",
		}),
		TxSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "evmgate_tx_submitted_total",
			Help: "The total number of transactions submitted upstream",
		}),
	}
}
