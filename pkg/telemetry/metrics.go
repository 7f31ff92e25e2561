// Package telemetry wires optional tracing and metrics export for a CLI run.
package telemetry

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Outcome labels
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics collects per-run counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	requestDuration *prometheus.HistogramVec
	bridges         *prometheus.CounterVec
	approvals       prometheus.Counter
}

// NewMetrics creates a metrics set on its own registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "usdc_bridge_aggregator_request_duration_seconds",
				Help:    "Duration of aggregator API requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint", "outcome"},
		),
		bridges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "usdc_bridge_transfers_total",
				Help: "Bridge attempts by destination and outcome",
			},
			[]string{"destination", "outcome"},
		),
		approvals: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "usdc_bridge_approvals_total",
				Help: "Token approvals submitted",
			},
		),
	}
	m.registry.MustRegister(m.requestDuration, m.bridges, m.approvals)
	return m
}

// ObserveRequest records one aggregator call
func (m *Metrics) ObserveRequest(endpoint, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(endpoint, outcome).Observe(d.Seconds())
}

// RecordBridge counts a finished bridge attempt
func (m *Metrics) RecordBridge(destination, outcome string) {
	if m == nil {
		return
	}
	m.bridges.WithLabelValues(destination, outcome).Inc()
}

// RecordApproval counts a submitted approval
func (m *Metrics) RecordApproval() {
	if m == nil {
		return
	}
	m.approvals.Inc()
}

// Gatherer exposes the underlying registry
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// Push sends the collected metrics to a Prometheus Pushgateway. Empty url is a no-op.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if m == nil || url == "" {
		return nil
	}
	return push.New(url, job).Gatherer(m.registry).PushContext(ctx)
}
