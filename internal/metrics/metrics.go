// Package metrics counts node outcomes and verification processes for one
// orchestration and writes them as a Prometheus text file into the state
// directory, where a node exporter textfile collector can pick them up.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ariel-frischer/proctest/internal/node"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "proctest"
	// FileName is the text file written into the state directory.
	FileName = "metrics.prom"
)

// Process results recorded by RecordProcess.
const (
	ResultCompleted = "completed"
	ResultFailed    = "failed"
	ResultKilled    = "killed"
	ResultCrashed   = "crashed"
)

// Metrics holds the collectors of one orchestration on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	nodesTotal          *prometheus.CounterVec
	processesTotal      *prometheus.CounterVec
	verificationSeconds *prometheus.HistogramVec
	configErrorsTotal   prometheus.Counter
	unsupportiveNodes   *prometheus.GaugeVec
}

// New creates the collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		nodesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "nodes_total",
			Help:      "Nodes by final state",
		}, []string{"group", "state"}),
		processesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "processes_total",
			Help:      "Verification processes by how they ended",
		}, []string{"group", "result"}),
		verificationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Name:      "verification_duration_seconds",
			Help:      "Wall time of verification processes",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 8),
		}, []string{"group"}),
		configErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "configuration_errors_total",
			Help:      "Configuration errors that aborted a run before verification",
		}),
		unsupportiveNodes: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Name:      "unsupportive_nodes",
			Help:      "Nodes from which no requirement is reachable",
		}, []string{"group"}),
	}
}

// Registry exposes the private registry, for tests and custom exporters.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordTree counts every node of root by its final state.
func (m *Metrics) RecordTree(root *node.Node) {
	group := root.ID.Group
	root.Walk(func(n *node.Node) bool {
		m.nodesTotal.WithLabelValues(group, n.State.String()).Inc()
		return true
	})
}

// RecordProcess counts one verification process and observes its duration.
func (m *Metrics) RecordProcess(group, result string, d time.Duration) {
	m.processesTotal.WithLabelValues(group, result).Inc()
	m.verificationSeconds.WithLabelValues(group).Observe(d.Seconds())
}

// RecordConfigErrors counts configuration errors of an aborted run.
func (m *Metrics) RecordConfigErrors(n int) {
	m.configErrorsTotal.Add(float64(n))
}

// SetUnsupportive sets the unsupportive node count of group.
func (m *Metrics) SetUnsupportive(group string, n int) {
	m.unsupportiveNodes.WithLabelValues(group).Set(float64(n))
}

// Path returns the metrics file path in stateDir.
func Path(stateDir string) string {
	return filepath.Join(stateDir, FileName)
}

// WriteFile writes all collected metrics to stateDir in the Prometheus text
// format, replacing the previous file atomically.
func (m *Metrics) WriteFile(stateDir string) error {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(Path(stateDir), m.registry); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	return nil
}
