package samp

import "github.com/prometheus/client_golang/prometheus"

type hubMetrics struct {
	registry *prometheus.Registry
	messages *prometheus.CounterVec
	failures prometheus.Counter
	clients  prometheus.Gauge
}

// Each hub owns its registry so several hubs can live in one process.
func newHubMetrics() *hubMetrics {
	m := &hubMetrics{
		registry: prometheus.NewRegistry(),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "samp",
			Subsystem: "hub",
			Name:      "messages_total",
			Help:      "Messages accepted for routing, by hub method and MType.",
		}, []string{"method", "mtype"}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "samp",
			Subsystem: "hub",
			Name:      "delivery_failures_total",
			Help:      "Callbacks into clients that failed.",
		}),
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "samp",
			Subsystem: "hub",
			Name:      "registered_clients",
			Help:      "Registered clients, the hub included.",
		}),
	}
	m.registry.MustRegister(m.messages, m.failures, m.clients)
	m.clients.Set(1)
	return m
}
