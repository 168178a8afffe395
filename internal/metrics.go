package internal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	commandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tedis_commands_total",
			Help: "Total store commands issued through the typed facade",
		},
		[]string{"command", "outcome"},
	)

	commandRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tedis_command_retries_total",
			Help: "Retries of idempotent store commands",
		},
		[]string{"command"},
	)

	poolConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tedis_pool_connections",
			Help: "Open pooled store connections",
		},
	)
)

const (
	outcomeOK    = "ok"
	outcomeError = "error"
)

func observe(command string, err error) {
	outcome := outcomeOK
	if err != nil {
		outcome = outcomeError
	}
	commandsTotal.WithLabelValues(command, outcome).Inc()
}
