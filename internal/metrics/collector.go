package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Simodalstix/AWS-dr-pilot-light/internal/config"
	"github.com/Simodalstix/AWS-dr-pilot-light/internal/core"
)

// Collector owns every dr_* series. It plugs into the health monitor as a
// snapshot sink and into the workflow engine as an observer.
type Collector struct {
	config *config.RemoteWriteConfig

	// Probe and health metrics
	probeDuration       *prometheus.HistogramVec
	probeUp             *prometheus.GaugeVec
	regionHealthy       *prometheus.GaugeVec
	consecutiveFailures *prometheus.GaugeVec
	lastCheckTimestamp  *prometheus.GaugeVec

	// Workflow metrics
	runsTotal        *prometheus.CounterVec
	runsActive       prometheus.Gauge
	runDuration      *prometheus.HistogramVec
	stateTransitions *prometheus.CounterVec

	// DNS steering metrics
	dnsFlipsTotal prometheus.Counter
	dnsOnStandby  prometheus.Gauge
}

func NewCollector(cfg *config.RemoteWriteConfig) *Collector {
	return &Collector{
		config: cfg,

		probeDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dr_probe_duration_seconds",
				Help:    "Health probe round-trip duration",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"region", "kind"},
		),

		probeUp: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dr_probe_up",
				Help: "Latest raw probe result (1=healthy, 0=unhealthy)",
			},
			[]string{"region", "kind"},
		),

		regionHealthy: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dr_region_healthy",
				Help: "Debounced region health judgment (1=healthy, 0=unhealthy)",
			},
			[]string{"region"},
		),

		consecutiveFailures: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dr_region_consecutive_failures",
				Help: "Consecutive failed probes for the worst track of a region",
			},
			[]string{"region"},
		),

		lastCheckTimestamp: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dr_region_last_check_timestamp",
				Help: "Unix timestamp of the last probe cycle for a region",
			},
			[]string{"region"},
		),

		runsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dr_failover_runs_total",
				Help: "Total number of failover runs by terminal status",
			},
			[]string{"status"},
		),

		runsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "dr_failover_runs_active",
				Help: "Number of currently running failover runs",
			},
		),

		runDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dr_failover_run_duration_seconds",
				Help:    "Failover run duration from trigger to terminal state",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
			},
			[]string{"status"},
		),

		stateTransitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dr_workflow_state_transitions_total",
				Help: "Workflow state entries by state",
			},
			[]string{"state"},
		),

		dnsFlipsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "dr_dns_steering_flips_total",
				Help: "Number of times the active DNS target changed",
			},
		),

		dnsOnStandby: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "dr_dns_on_standby",
				Help: "Whether the protected name currently steers to the standby (1) or primary (0)",
			},
		),
	}
}

// ObserveProbe records one raw probe result.
func (c *Collector) ObserveProbe(result core.HealthCheckResult) {
	labels := prometheus.Labels{"region": result.RegionID, "kind": string(result.Kind)}
	c.probeDuration.With(labels).Observe(result.Latency.Seconds())
	if result.Healthy {
		c.probeUp.With(labels).Set(1)
	} else {
		c.probeUp.With(labels).Set(0)
	}
}

// PublishHealth records the debounced snapshot after each probe cycle.
func (c *Collector) PublishHealth(_ context.Context, status core.HealthStatus) {
	healthy := 0.0
	if status.State == core.StateHealthy {
		healthy = 1
	}
	c.regionHealthy.WithLabelValues(status.RegionID).Set(healthy)
	c.consecutiveFailures.WithLabelValues(status.RegionID).Set(float64(status.ConsecutiveFailures))
	if !status.LastCheck.IsZero() {
		c.lastCheckTimestamp.WithLabelValues(status.RegionID).Set(float64(status.LastCheck.Unix()))
	}
}

// Workflow engine observer callbacks.

func (c *Collector) RunStarted(string) {
	c.runsActive.Inc()
}

func (c *Collector) StateEntered(state core.WorkflowState) {
	c.stateTransitions.WithLabelValues(string(state)).Inc()
}

func (c *Collector) RunFinished(status core.RunStatus, duration time.Duration) {
	c.runsActive.Dec()
	c.runsTotal.WithLabelValues(string(status)).Inc()
	c.runDuration.WithLabelValues(string(status)).Observe(duration.Seconds())
}

// DNSSteered records a steering flip.
func (c *Collector) DNSSteered(onStandby bool) {
	c.dnsFlipsTotal.Inc()
	if onStandby {
		c.dnsOnStandby.Set(1)
	} else {
		c.dnsOnStandby.Set(0)
	}
}
