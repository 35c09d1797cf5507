package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
	outcomeSkipped = "skipped"
)

// CronJobMetrics tracks each scheduled job. A nil value or one built without a
// registerer records nothing.
type CronJobMetrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	clock       func() time.Time
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return nil
	}
	m := &CronJobMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cron_job_runs_total",
			Help: "Cron job executions by outcome (success, failure, skipped).",
		}, []string{"job", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cron_job_duration_seconds",
			Help:    "Wall time of one cron job run.",
			Buckets: []float64{.05, .25, 1, 5, 15, 30, 60, 120},
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cron_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run; alert when the reconciliation sweep goes stale.",
		}, []string{"job"}),
		clock: time.Now,
	}
	reg.MustRegister(m.runs, m.duration, m.lastSuccess)
	return m
}

func (c *CronJobMetrics) ObserveDuration(job string, d time.Duration) {
	if c == nil {
		return
	}
	c.duration.WithLabelValues(labelValue(job)).Observe(d.Seconds())
}

func (c *CronJobMetrics) IncSuccess(job string) {
	if c.record(job, outcomeSuccess) {
		c.lastSuccess.WithLabelValues(labelValue(job)).Set(float64(c.clock().Unix()))
	}
}

func (c *CronJobMetrics) IncFailure(job string) { c.record(job, outcomeFailure) }

// IncSkipped counts jobs abandoned because the cycle lost its lock.
func (c *CronJobMetrics) IncSkipped(job string) { c.record(job, outcomeSkipped) }

func (c *CronJobMetrics) record(job, outcome string) bool {
	if c == nil {
		return false
	}
	c.runs.WithLabelValues(labelValue(job), outcome).Inc()
	return true
}

// labelValue keeps empty label values out of the series set.
func labelValue(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
