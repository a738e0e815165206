package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// JobName is the Pushgateway job label of every push
const JobName = "scrapebot"

// Recorder collects the metrics of one run in its own registry. A nil
// Recorder discards everything.
type Recorder struct {
	registry *prometheus.Registry

	steps    *prometheus.CounterVec
	results  prometheus.Counter
	duration prometheus.Gauge
	success  prometheus.Gauge
}

// New creates a recorder with a fresh registry
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		steps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scrapebot",
			Name:      "steps_total",
			Help:      "Steps executed, by step type and outcome.",
		}, []string{"type", "outcome"}),
		results: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "scrapebot",
			Name:      "results_captured_total",
			Help:      "Result records written to the result file.",
		}),
		duration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "scrapebot",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of the run.",
		}),
		success: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "scrapebot",
			Name:      "run_success",
			Help:      "1 when the run completed without an engine error.",
		}),
	}
}

// Registry exposes the gatherer of this run
func (r *Recorder) Registry() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.registry
}

// Step counts one executed step. ok is false for steps that were logged as
// errors.
func (r *Recorder) Step(stepType string, ok bool) {
	if r == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	r.steps.WithLabelValues(stepType, outcome).Inc()
}

// ResultCaptured counts one record written by the result sink
func (r *Recorder) ResultCaptured() {
	if r == nil {
		return
	}
	r.results.Inc()
}

// Finish records the outcome of the run
func (r *Recorder) Finish(d time.Duration, success bool) {
	if r == nil {
		return
	}
	r.duration.Set(d.Seconds())
	if success {
		r.success.Set(1)
	} else {
		r.success.Set(0)
	}
}

// Push sends the run metrics to the Pushgateway at url, grouped by uid.
// client may be nil.
func (r *Recorder) Push(ctx context.Context, url, uid string, client *http.Client) error {
	if r == nil || url == "" {
		return nil
	}
	pusher := push.New(url, JobName).
		Gatherer(r.registry).
		Grouping("uid", uid)
	if client != nil {
		pusher = pusher.Client(client)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("pushing metrics to %s: %w", url, err)
	}
	return nil
}
