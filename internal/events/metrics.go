package events

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records task outcomes and timings as Prometheus metrics.
type Metrics struct {
	taskStages    *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	runTasks      *prometheus.GaugeVec
	runs          *prometheus.CounterVec
}

// NewMetrics creates the metrics and registers them to reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	var m Metrics

	m.taskStages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskgrid",
		Name:      "task_stages_total",
		Help:      "Number of finished task stages by stage and final status.",
	}, []string{"stage", "status"})

	m.stageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "taskgrid",
		Name:      "task_stage_duration_seconds",
		Help:      "Time spent in a task stage.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"stage"})

	m.runTasks = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "taskgrid",
		Name:      "run_tasks",
		Help:      "Number of in-query tasks of the last run by outcome.",
	}, []string{"outcome"})

	m.runs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskgrid",
		Name:      "runs_total",
		Help:      "Number of finished executions by level.",
	}, []string{"level"})

	reg.MustRegister(m.taskStages, m.stageDuration, m.runTasks, m.runs)
	return &m
}

func (m *Metrics) Report(e Event) {
	switch e.Kind {
	case FinishTaskStage:
		m.taskStages.WithLabelValues(e.Stage, e.Status).Inc()
		m.stageDuration.WithLabelValues(e.Stage).Observe(e.Duration.Seconds())
	case ExecutionFinished:
		m.runs.WithLabelValues(string(e.Level)).Inc()
		for _, outcome := range []string{"succeeded", "skipped", "failed"} {
			if names, ok := e.Details[outcome].([]string); ok {
				m.runTasks.WithLabelValues(outcome).Set(float64(len(names)))
			}
		}
	}
}
