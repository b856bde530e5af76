// Package metrics holds the Prometheus collectors for the task engine.
package metrics

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	JobsCreated     prometheus.Counter
	TasksGenerated  prometheus.Counter
	Transitions     *prometheus.CounterVec
	CascadeUnblocks prometheus.Counter
	OverdueTasks    prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which is what tests want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "printflow",
			Name:      "jobs_created_total",
			Help:      "Jobs created together with their task chain.",
		}),
		TasksGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "printflow",
			Name:      "tasks_generated_total",
			Help:      "Tasks materialized by the task generator.",
		}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "printflow",
			Name:      "task_transitions_total",
			Help:      "Task status transitions, by from and to status.",
		}, []string{"from", "to"}),
		CascadeUnblocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "printflow",
			Name:      "cascade_unblocks_total",
			Help:      "Queued tasks moved to pending after the prior stage completed.",
		}),
		OverdueTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "printflow",
			Name:      "overdue_tasks",
			Help:      "Open tasks past their stage deadline at the last sweep.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.JobsCreated, m.TasksGenerated, m.Transitions, m.CascadeUnblocks, m.OverdueTasks)
	}
	return m
}
