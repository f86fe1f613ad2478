// Package metrics records per-run batch metrics for a Prometheus Pushgateway.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const jobName = "snowwhite"

// Run holds the collectors for a single run.
type Run struct {
	registry  *prometheus.Registry
	instances *prometheus.GaugeVec
	rounds    prometheus.Gauge
	duration  prometheus.Gauge
	lastRun   prometheus.Gauge
}

// NewRun creates a fresh registry with the run collectors registered.
func NewRun() *Run {
	r := &Run{
		registry: prometheus.NewRegistry(),
		instances: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "snowwhite_instances",
			Help: "Instances targeted by the last run, by outcome.",
		}, []string{"outcome"}),
		rounds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "snowwhite_poll_rounds",
			Help: "Polling rounds used by the last run.",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "snowwhite_run_duration_seconds",
			Help: "Wall-clock duration of the last run.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "snowwhite_last_run_timestamp_seconds",
			Help: "Unix time the last run finished.",
		}),
	}
	r.registry.MustRegister(r.instances, r.rounds, r.duration, r.lastRun)
	return r
}

// Observe records the outcome counts and timings of a finished run.
func (r *Run) Observe(succeeded, failed, pending, rounds int, started, finished time.Time) {
	r.instances.WithLabelValues("success").Set(float64(succeeded))
	r.instances.WithLabelValues("failed").Set(float64(failed))
	r.instances.WithLabelValues("pending").Set(float64(pending))
	r.rounds.Set(float64(rounds))
	r.duration.Set(finished.Sub(started).Seconds())
	r.lastRun.Set(float64(finished.Unix()))
}

// Push replaces the metrics of the (app, action) group on the gateway.
func (r *Run) Push(ctx context.Context, gatewayURL, app, action string) error {
	if r == nil {
		return errors.New("nil run metrics")
	}
	if gatewayURL == "" {
		return errors.New("pushgateway url is required")
	}
	return push.New(gatewayURL, jobName).
		Gatherer(r.registry).
		Grouping("app", app).
		Grouping("action", action).
		PushContext(ctx)
}
