// Package metrics exposes Prometheus collectors for the sync pipeline and the
// session gate.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	stageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "workouttracker",
		Subsystem: "pipeline",
		Name:      "stage_duration_seconds",
		Help:      "Duration of pipeline stages.",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"stage", "outcome"})
	activitiesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "workouttracker",
		Subsystem: "pipeline",
		Name:      "activities_total",
		Help:      "Activities handled by the pipeline by result.",
	}, []string{"result"})
	lockContention = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "workouttracker",
		Subsystem: "pipeline",
		Name:      "lock_contention_total",
		Help:      "Pipeline runs rejected because the account was already locked.",
	})
	lastSuccess = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "workouttracker",
		Subsystem: "pipeline",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the last successful run of an operation.",
	}, []string{"op"})
	sessionChecks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "workouttracker",
		Subsystem: "session",
		Name:      "checks_total",
		Help:      "Session checks by outcome.",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(stageDuration, activitiesTotal, lockContention, lastSuccess, sessionChecks)
}

// ObserveStage records how long a stage took.
func ObserveStage(stage string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	stageDuration.WithLabelValues(stage, outcome).Observe(d.Seconds())
}

// AddActivities counts n activities with the given result, e.g. "extracted",
// "stored", "failed" or "loaded".
func AddActivities(result string, n int) {
	if n <= 0 {
		return
	}
	activitiesTotal.WithLabelValues(result).Add(float64(n))
}

// RecordLockContention counts a run rejected by the account lock.
func RecordLockContention() {
	lockContention.Inc()
}

// RecordSuccess updates the last success watermark of op.
func RecordSuccess(op string, ts time.Time) {
	if ts.IsZero() {
		return
	}
	lastSuccess.WithLabelValues(op).Set(float64(ts.Unix()))
}

// RecordSession counts a session check outcome: "ok", "refreshed",
// "anonymous" or "rejected".
func RecordSession(outcome string) {
	sessionChecks.WithLabelValues(outcome).Inc()
}
