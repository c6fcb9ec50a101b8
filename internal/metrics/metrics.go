// Package metrics collects and exposes Prometheus metrics for the
// irrigation controller core: task throughput, open-valve count,
// flow anomalies, wipe progress, and crash-recovery time.
//
// Metric categories mirror RED/USE: counters for rate/errors, a
// histogram for task duration, gauges for current state.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector collects Prometheus metrics for the controller core.
type Collector struct {
	tasksEnqueued  prometheus.Counter
	tasksStarted   prometheus.Counter
	tasksCompleted prometheus.Counter
	tasksFailed    prometheus.Counter

	flowAnomalies *prometheus.CounterVec

	taskDuration prometheus.Histogram
	recoveryTime prometheus.Gauge

	queueDepth    prometheus.Gauge
	activeValves  prometheus.Gauge
	wipeStep      prometheus.Gauge
}

// NewCollector constructs and registers a Collector.
func NewCollector() *Collector {
	c := &Collector{
		tasksEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "irrigation_tasks_enqueued_total",
			Help: "Total number of tasks enqueued",
		}),
		tasksStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "irrigation_tasks_started_total",
			Help: "Total number of tasks that began running",
		}),
		tasksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "irrigation_tasks_completed_total",
			Help: "Total number of tasks completed successfully",
		}),
		tasksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "irrigation_tasks_failed_total",
			Help: "Total number of tasks that ended in failure",
		}),
		flowAnomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "irrigation_flow_anomalies_total",
			Help: "Total number of flow anomalies by kind",
		}, []string{"kind"}),
		taskDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "irrigation_task_duration_seconds",
			Help:    "Task run duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		recoveryTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "irrigation_recovery_time_seconds",
			Help: "Time taken to recover persisted state on boot",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "irrigation_queue_depth",
			Help: "Current number of pending tasks",
		}),
		activeValves: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "irrigation_active_valves",
			Help: "Current number of open valves",
		}),
		wipeStep: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "irrigation_wipe_step",
			Help: "Current factory-wipe state machine step (0 = idle)",
		}),
	}

	prometheus.MustRegister(
		c.tasksEnqueued, c.tasksStarted, c.tasksCompleted, c.tasksFailed,
		c.flowAnomalies, c.taskDuration, c.recoveryTime,
		c.queueDepth, c.activeValves, c.wipeStep,
	)

	return c
}

func (c *Collector) RecordEnqueue()  { c.tasksEnqueued.Inc() }
func (c *Collector) RecordStart()    { c.tasksStarted.Inc() }
func (c *Collector) RecordFailed()   { c.tasksFailed.Inc() }

// RecordCompleted records a completed task's duration.
func (c *Collector) RecordCompleted(duration time.Duration) {
	c.tasksCompleted.Inc()
	c.taskDuration.Observe(duration.Seconds())
}

// RecordFlowAnomaly increments the anomaly counter for the given kind
// ("no_flow", "unexpected_flow", "stall").
func (c *Collector) RecordFlowAnomaly(kind string) {
	c.flowAnomalies.WithLabelValues(kind).Inc()
}

// SetRecoveryTime records how long boot-time recovery took.
func (c *Collector) SetRecoveryTime(seconds float64) {
	c.recoveryTime.Set(seconds)
}

// UpdateGauges updates the instantaneous state gauges.
func (c *Collector) UpdateGauges(queueDepth, activeValves int, wipeStep int) {
	c.queueDepth.Set(float64(queueDepth))
	c.activeValves.Set(float64(activeValves))
	c.wipeStep.Set(float64(wipeStep))
}

// StartServer starts the Prometheus /metrics HTTP endpoint.
func StartServer(port int) error {
	http.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	return http.ListenAndServe(addr, nil)
}
