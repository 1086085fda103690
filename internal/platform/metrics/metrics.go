package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"staffdesk/internal/domain/staff"
)

// Collector owns a private registry so tests can build as many as they like.
type Collector struct {
	registry           *prometheus.Registry
	requests           *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	transitions        *prometheus.CounterVec
	transitionDuration *prometheus.HistogramVec
	lockViolations     *prometheus.CounterVec
	duplicates         prometheus.Gauge
	jobRuns            *prometheus.CounterVec
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "staffdesk",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status code.",
		}, []string{"method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "staffdesk",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "staffdesk",
			Name:      "lifecycle_transitions_total",
			Help:      "Removal and return attempts by outcome.",
		}, []string{"type", "outcome"}),
		transitionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "staffdesk",
			Name:      "lifecycle_transition_duration_seconds",
			Help:      "Time spent moving a record between locations.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 15},
		}, []string{"type"}),
		lockViolations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "staffdesk",
			Name:      "lock_violations_total",
			Help:      "Refused edits to locked payment or work rows.",
		}, []string{"collection"}),
		duplicates: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "staffdesk",
			Name:      "reconcile_duplicates",
			Help:      "Records present in both active and exited locations at the last scan.",
		}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "staffdesk",
			Name:      "job_runs_total",
			Help:      "Background job runs by type and status.",
		}, []string{"job", "status"}),
	}
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.requests,
		c.requestDuration,
		c.transitions,
		c.transitionDuration,
		c.lockViolations,
		c.duplicates,
		c.jobRuns,
	)
	return c
}

func (c *Collector) Record(method string, status int, duration time.Duration) {
	c.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

func (c *Collector) TransitionFinished(kind staff.EventType, outcome string, elapsed time.Duration) {
	c.transitions.WithLabelValues(string(kind), outcome).Inc()
	if elapsed > 0 {
		c.transitionDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
	}
}

func (c *Collector) LockViolations(collection string, count int) {
	c.lockViolations.WithLabelValues(collection).Add(float64(count))
}

func (c *Collector) SetDuplicates(n int) {
	c.duplicates.Set(float64(n))
}

func (c *Collector) JobFinished(job, status string) {
	c.jobRuns.WithLabelValues(job, status).Inc()
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
