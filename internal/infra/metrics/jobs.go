package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(jobsTotal, jobsClaimedTotal, stepsTotal, stepDuration, jobsInFlight) }

var (
	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_jobs_total",
			Help: "Workflow jobs by lifecycle event.",
		},
		[]string{"status"}, // 'triggered', 'completed', 'failed', 'interrupted'
	)

	jobsClaimedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "workflow_jobs_claimed_total",
			Help: "Jobs leased by a worker, re-claims included.",
		},
	)

	stepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_steps_total",
			Help: "Executed workflow steps by role and outcome.",
		},
		[]string{"role", "status"},
	)

	stepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "workflow_step_duration_seconds",
			Help:    "Wall time of one step including searches.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"role"},
	)

	jobsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "workflow_jobs_in_flight",
			Help: "Jobs currently executing in this process.",
		},
	)
)

func IncJob(status string) {
	jobsTotal.WithLabelValues(norm(status)).Inc()
}

func IncJobClaimed() { jobsClaimedTotal.Inc() }

func ObserveStep(role, status string, took time.Duration) {
	stepsTotal.WithLabelValues(norm(role), norm(status)).Inc()
	stepDuration.WithLabelValues(norm(role)).Observe(took.Seconds())
}

func AddJobsInFlight(delta float64) { jobsInFlight.Add(delta) }
