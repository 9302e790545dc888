package main

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	outcomeOK               = "ok"
	outcomePrecondition     = "precondition"
	outcomeBadRequest       = "bad_request"
	outcomeFailed           = "failed"
	outcomeUnknownWorkspace = "unknown_workspace"
)

type consoleMetrics struct {
	commands       *prometheus.CounterVec
	remoteDuration *prometheus.HistogramVec
}

// newConsoleMetrics registers the console collectors, plus the Go and
// process collectors, on reg.
func newConsoleMetrics(reg prometheus.Registerer) *consoleMetrics {
	m := &consoleMetrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kyc_console",
			Name:      "commands_total",
			Help:      "Console commands by outcome.",
		}, []string{"command", "outcome"}),
		remoteDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kyc_console",
			Name:      "remote_request_duration_seconds",
			Help:      "Duration of calls to the verification API.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	reg.MustRegister(
		m.commands,
		m.remoteDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *consoleMetrics) observeCommand(command, outcome string) {
	m.commands.WithLabelValues(command, outcome).Inc()
}

// observeRemote matches console.ObserveFunc.
func (m *consoleMetrics) observeRemote(op string, elapsed time.Duration) {
	m.remoteDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}
