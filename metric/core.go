package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the publishing metrics shared by every protocol back end and the
// pipeline runner.
type Metrics struct {
	ValuesPublished  *prometheus.CounterVec
	PublishErrors    *prometheus.CounterVec
	ActivePublishers *prometheus.GaugeVec
	PipelineRuns     prometheus.Counter
	RunDuration      prometheus.Histogram
	StepErrors       *prometheus.CounterVec
	PipelineRunning  prometheus.Gauge
	NATSConnected    prometheus.Gauge
	NATSReconnects   prometheus.Counter
	NATSCircuitState prometheus.Gauge
}

// NewMetrics creates the core metric set. Collectors are not registered until the
// owning MetricsRegistry registers them.
func NewMetrics() *Metrics {
	return &Metrics{
		ValuesPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "netpublish",
				Subsystem: "publisher",
				Name:      "values_total",
				Help:      "Values handed to a protocol back end, by publish kind",
			},
			[]string{"protocol", "kind"},
		),
		PublishErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "netpublish",
				Subsystem: "publisher",
				Name:      "errors_total",
				Help:      "Back end publish failures",
			},
			[]string{"protocol", "class"},
		),
		ActivePublishers: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "netpublish",
				Subsystem: "publisher",
				Name:      "active",
				Help:      "Publishers created and not yet closed",
			},
			[]string{"protocol"},
		),
		PipelineRuns: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "netpublish",
				Subsystem: "pipeline",
				Name:      "runs_total",
				Help:      "Completed pipeline runs",
			},
		),
		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "netpublish",
				Subsystem: "pipeline",
				Name:      "run_duration_seconds",
				Help:      "Pipeline run duration in seconds",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
			},
		),
		StepErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "netpublish",
				Subsystem: "pipeline",
				Name:      "step_errors_total",
				Help:      "Errors reported by pipeline steps",
			},
			[]string{"step", "class"},
		),
		PipelineRunning: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "netpublish",
				Subsystem: "pipeline",
				Name:      "running",
				Help:      "Pipeline runner state (0=stopped, 1=running)",
			},
		),
		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "netpublish",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),
		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "netpublish",
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),
		NATSCircuitState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "netpublish",
				Subsystem: "nats",
				Name:      "circuit_breaker",
				Help:      "NATS circuit breaker status (0=closed, 1=open, 2=half-open)",
			},
		),
	}
}

func (c *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.ValuesPublished,
		c.PublishErrors,
		c.ActivePublishers,
		c.PipelineRuns,
		c.RunDuration,
		c.StepErrors,
		c.PipelineRunning,
		c.NATSConnected,
		c.NATSReconnects,
		c.NATSCircuitState,
	}
}

// RecordPublish counts one publish of the given kind ("map", "value", "nothing").
func (c *Metrics) RecordPublish(protocol, kind string) {
	if c == nil {
		return
	}
	c.ValuesPublished.WithLabelValues(protocol, kind).Inc()
}

// RecordPublishError counts a back end failure with its error class.
func (c *Metrics) RecordPublishError(protocol, class string) {
	if c == nil {
		return
	}
	c.PublishErrors.WithLabelValues(protocol, class).Inc()
}

// PublisherOpened increments the active publisher gauge.
func (c *Metrics) PublisherOpened(protocol string) {
	if c == nil {
		return
	}
	c.ActivePublishers.WithLabelValues(protocol).Inc()
}

// PublisherClosed decrements the active publisher gauge.
func (c *Metrics) PublisherClosed(protocol string) {
	if c == nil {
		return
	}
	c.ActivePublishers.WithLabelValues(protocol).Dec()
}

// RecordRun records one completed pipeline run.
func (c *Metrics) RecordRun(duration time.Duration) {
	if c == nil {
		return
	}
	c.PipelineRuns.Inc()
	c.RunDuration.Observe(duration.Seconds())
}

// RecordStepError counts an error reported by a step.
func (c *Metrics) RecordStepError(step, class string) {
	if c == nil {
		return
	}
	c.StepErrors.WithLabelValues(step, class).Inc()
}

// RecordRunning sets the runner state gauge.
func (c *Metrics) RecordRunning(running bool) {
	if c == nil {
		return
	}
	c.PipelineRunning.Set(boolGauge(running))
}

// RecordNATSStatus updates NATS connection status
func (c *Metrics) RecordNATSStatus(connected bool) {
	if c == nil {
		return
	}
	c.NATSConnected.Set(boolGauge(connected))
}

// RecordNATSReconnect increments reconnection counter
func (c *Metrics) RecordNATSReconnect() {
	if c == nil {
		return
	}
	c.NATSReconnects.Inc()
}

// RecordCircuitBreakerState updates circuit breaker status
func (c *Metrics) RecordCircuitBreakerState(state int) {
	if c == nil {
		return
	}
	c.NATSCircuitState.Set(float64(state))
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
