package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// CronJobMetrics records cron worker runs. lastSuccess lets alerts catch a
// reservation-expiry job that silently stopped completing.
type CronJobMetrics struct {
	duration    *prometheus.HistogramVec
	runs        *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
	now         func() time.Time
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "eventrentals_cron_job_duration_seconds",
		Help:    "Duration of cron jobs in seconds.",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"job"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eventrentals_cron_job_runs_total",
		Help: "Cron job executions by outcome.",
	}, []string{"job", "outcome"})
	lastSuccess := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "eventrentals_cron_job_last_success_timestamp_seconds",
		Help: "Unix time of the last successful run per job.",
	}, []string{"job"})
	reg.MustRegister(duration, runs, lastSuccess)
	return &CronJobMetrics{
		duration:    duration,
		runs:        runs,
		lastSuccess: lastSuccess,
		now:         time.Now,
	}
}

func (c *CronJobMetrics) ObserveDuration(job string, duration time.Duration) {
	if c == nil || c.duration == nil {
		return
	}
	c.duration.WithLabelValues(normalizeLabel(job)).Observe(duration.Seconds())
}

func (c *CronJobMetrics) IncSuccess(job string) {
	if c == nil || c.runs == nil {
		return
	}
	label := normalizeLabel(job)
	c.runs.WithLabelValues(label, outcomeSuccess).Inc()
	c.lastSuccess.WithLabelValues(label).Set(float64(c.now().Unix()))
}

func (c *CronJobMetrics) IncFailure(job string) {
	if c == nil || c.runs == nil {
		return
	}
	c.runs.WithLabelValues(normalizeLabel(job), outcomeFailure).Inc()
}

func normalizeLabel(job string) string {
	if job == "" {
		return "unknown"
	}
	return job
}
