// Package metrics exposes Prometheus collectors for analysis runs and fix
// outcomes. A nil *Metrics is valid and records nothing.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "codefix"

// Metrics holds the collectors for one process. Collectors are registered on
// a private registry so independent instances never collide.
type Metrics struct {
	registry *prometheus.Registry

	ToolRuns           *prometheus.CounterVec
	FixOutcomes        *prometheus.CounterVec
	Backups            prometheus.Counter
	Rollbacks          prometheus.Counter
	GenerationDuration *prometheus.HistogramVec
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ToolRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "analysis",
				Name:      "tool_runs_total",
				Help:      "Total analysis tool invocations by outcome",
			},
			[]string{"tool", "status"},
		),
		FixOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "fixer",
				Name:      "outcomes_total",
				Help:      "Total fix invocations by terminal state",
			},
			[]string{"result"},
		),
		Backups: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fixer",
			Name:      "backups_total",
			Help:      "Total backups written before overwriting a file",
		}),
		Rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fixer",
			Name:      "rollbacks_total",
			Help:      "Total backups restored after a failed write",
		}),
		GenerationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "generation",
				Name:      "duration_seconds",
				Help:      "Generation backend latency in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms to ~2m
			},
			[]string{"backend", "status"},
		),
	}

	m.registry.MustRegister(m.ToolRuns, m.FixOutcomes, m.Backups, m.Rollbacks, m.GenerationDuration)
	return m
}

// Registry returns the registry holding all collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveToolRun counts one tool invocation.
func (m *Metrics) ObserveToolRun(tool, status string) {
	if m == nil {
		return
	}
	m.ToolRuns.WithLabelValues(tool, status).Inc()
}

// ObserveOutcome counts one terminal pipeline state.
func (m *Metrics) ObserveOutcome(result string) {
	if m == nil {
		return
	}
	m.FixOutcomes.WithLabelValues(result).Inc()
}

// ObserveBackup counts one backup written.
func (m *Metrics) ObserveBackup() {
	if m == nil {
		return
	}
	m.Backups.Inc()
}

// ObserveRollback counts one backup restored.
func (m *Metrics) ObserveRollback() {
	if m == nil {
		return
	}
	m.Rollbacks.Inc()
}

// ObserveGeneration records one backend call.
func (m *Metrics) ObserveGeneration(backend string, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.GenerationDuration.WithLabelValues(backend, status).Observe(d.Seconds())
}

// WriteTextfile writes all metrics in the text exposition format, for
// node_exporter's textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
