package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Protocol metrics
	RegistrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ocpi_registrations_total",
		Help: "Credentials handshakes by result",
	}, []string{"result"})

	AuthFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ocpi_auth_failures_total",
		Help: "Requests rejected for an unknown or blocked access token",
	})

	// Store metrics
	EntityMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ocpi_entity_mutations_total",
		Help: "Party store mutations by entity kind and outcome",
	}, []string{"kind", "outcome"})

	RegisteredRemoteParties = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ocpi_remote_parties",
		Help: "Counterparties currently held by the registry",
	})

	CommandLogAppendLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ocpi_command_log_append_seconds",
		Help:    "Latency of command log appends",
		Buckets: prometheus.DefBuckets,
	})
)
