// Package metrics records counters for a triage run. A run is a batch job,
// so metrics are written to a node_exporter textfile instead of being served.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Mutation operations recorded in triage_board_mutations_total
const (
	OpAdd    = "add"
	OpRemove = "remove"
	OpUpdate = "update"
)

// Metrics holds the collectors for one process. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	timelineRetries   prometheus.Counter
	timelineTruncated prometheus.Counter
	issuesCollected   *prometheus.CounterVec
	boardMutations    *prometheus.CounterVec
	lastRunDuration   prometheus.Gauge
}

// New creates a Metrics instance registered on its own registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		timelineRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "triage_timeline_retries_total",
			Help: "Timeline page requests retried after a server-requested delay.",
		}),
		timelineTruncated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "triage_timeline_truncated_total",
			Help: "Timelines cut short by a non-retryable page error.",
		}),
		issuesCollected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_issues_collected_total",
			Help: "Open issues and pull requests collected and weighted.",
		}, []string{"repository"}),
		boardMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_board_mutations_total",
			Help: "Project board mutations by operation and result.",
		}, []string{"op", "result"}),
		lastRunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "triage_last_run_duration_seconds",
			Help: "Wall time of the most recent triage run.",
		}),
	}

	m.registry.MustRegister(
		m.timelineRetries,
		m.timelineTruncated,
		m.issuesCollected,
		m.boardMutations,
		m.lastRunDuration,
	)
	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// TimelineRetry records one retried timeline request
func (m *Metrics) TimelineRetry() {
	if m == nil {
		return
	}
	m.timelineRetries.Inc()
}

// TimelineTruncated records a timeline that stopped on an error
func (m *Metrics) TimelineTruncated() {
	if m == nil {
		return
	}
	m.timelineTruncated.Inc()
}

// IssuesCollected records n collected issues for a repository
func (m *Metrics) IssuesCollected(repository string, n int) {
	if m == nil {
		return
	}
	m.issuesCollected.WithLabelValues(repository).Add(float64(n))
}

// BoardMutation records the outcome of one board mutation
func (m *Metrics) BoardMutation(op string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.boardMutations.WithLabelValues(op, result).Inc()
}

// RunFinished records the duration of a run
func (m *Metrics) RunFinished(d time.Duration) {
	if m == nil {
		return
	}
	m.lastRunDuration.Set(d.Seconds())
}

// WriteTextfile writes every metric to path in the text exposition format
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
