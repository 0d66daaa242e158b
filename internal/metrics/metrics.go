// Package metrics holds the Prometheus instruments of the console.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "visionctl"

// Collector owns a private registry. All methods are safe on a nil receiver
// so components can be built without instrumentation.
type Collector struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	polls           *prometheus.CounterVec
	activeLoops     prometheus.Gauge
	refreshes       *prometheus.CounterVec
	jobs            *prometheus.CounterVec
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Requests sent to the inference service by operation and outcome.",
		}, []string{"op", "outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "Latency of requests to the inference service.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "training_polls_total",
			Help:      "Training status polls by outcome.",
		}, []string{"outcome"}),
		activeLoops: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "training_poll_loops_active",
			Help:      "Training status poll loops currently running.",
		}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dataset_refresh_total",
			Help:      "Dataset refreshes by outcome.",
		}, []string{"outcome"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "training_jobs_total",
			Help:      "Training jobs by terminal phase.",
		}, []string{"phase"}),
	}
	c.registry.MustRegister(c.requests, c.requestDuration, c.polls, c.activeLoops, c.refreshes, c.jobs)
	return c
}

// Registry exposes the registry for scraping and tests.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// ObserveRequest records one API call.
func (c *Collector) ObserveRequest(op string, err error, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(op, outcome(err)).Inc()
	c.requestDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// ObservePoll records one training status poll.
func (c *Collector) ObservePoll(err error) {
	if c == nil {
		return
	}
	c.polls.WithLabelValues(outcome(err)).Inc()
}

// LoopStarted and LoopStopped track running poll loops.
func (c *Collector) LoopStarted() {
	if c == nil {
		return
	}
	c.activeLoops.Inc()
}

func (c *Collector) LoopStopped() {
	if c == nil {
		return
	}
	c.activeLoops.Dec()
}

// ObserveRefresh records one dataset refresh; partial counts refreshes where
// at least one source failed.
func (c *Collector) ObserveRefresh(err error) {
	if c == nil {
		return
	}
	c.refreshes.WithLabelValues(outcome(err)).Inc()
}

// ObserveJob records a training job reaching phase.
func (c *Collector) ObserveJob(phase string) {
	if c == nil {
		return
	}
	c.jobs.WithLabelValues(phase).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
