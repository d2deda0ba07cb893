// Package metrics exposes prometheus collectors for the load harness
// and the registries it drives, following the teacher's
// prometheus/client_golang dependency (unused directly by oasis-core's
// retrieved files, but present in its go.mod as an ambient
// observability dependency every subsystem is expected to feed).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// TaskDuration records how long one load-harness task (team creation,
// a project mutation, a chat send, ...) took.
var TaskDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "hackmesh",
		Subsystem: "harness",
		Name:      "task_duration_seconds",
		Help:      "Duration of one simulated hackathon task.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"task"},
)

// TaskTotal counts completed tasks by outcome.
var TaskTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "hackmesh",
		Subsystem: "harness",
		Name:      "tasks_total",
		Help:      "Total simulated hackathon tasks, by task and outcome.",
	},
	[]string{"task", "outcome"},
)

// InFlight reports tasks currently executing, useful for eyeballing
// whether the harness's concurrency cap is actually being hit.
var InFlight = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "hackmesh",
		Subsystem: "harness",
		Name:      "tasks_in_flight",
		Help:      "Number of load-harness tasks currently executing.",
	},
)

func init() {
	prometheus.MustRegister(TaskDuration, TaskTotal, InFlight)
}
