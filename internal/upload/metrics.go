package upload

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names.
const (
	MetricCommits        = "photo_commits_total"
	MetricStageFailures  = "photo_commit_stage_failures_total"
	MetricCompensations  = "photo_commit_compensations_total"
	MetricCommitDuration = "photo_commit_duration_seconds"
)

// Commit outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Metrics contains Prometheus metrics for the commit sequencer.
type Metrics struct {
	commits        *prometheus.CounterVec
	stageFailures  *prometheus.CounterVec
	compensations  *prometheus.CounterVec
	commitDuration prometheus.Histogram
}

// NewMetrics creates unregistered commit metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricCommits,
			Help: "Total number of upload commits by outcome",
		}, []string{"outcome"}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricStageFailures,
			Help: "Total number of commits aborted at each stage",
		}, []string{"stage"}),
		compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricCompensations,
			Help: "Total number of undo actions run after a failed commit",
		}, []string{"action", "result"}),
		commitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricCommitDuration,
			Help:    "Duration of upload commits in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}

// Register registers all metrics with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors returns all collectors.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.commits, m.stageFailures, m.compensations, m.commitDuration}
}

func (m *Metrics) incCommit(outcome string) {
	if m == nil {
		return
	}
	m.commits.WithLabelValues(outcome).Inc()
}

func (m *Metrics) incStageFailure(stage Stage) {
	if m == nil {
		return
	}
	m.stageFailures.WithLabelValues(string(stage)).Inc()
}

func (m *Metrics) incCompensation(action string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.compensations.WithLabelValues(action, result).Inc()
}

func (m *Metrics) observeDuration(seconds float64) {
	if m == nil {
		return
	}
	m.commitDuration.Observe(seconds)
}
