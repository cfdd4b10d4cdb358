package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Simodalstix/AWS-dr-pilot-light/internal/core"
)

// Options bound the rolling window and set the hysteresis thresholds.
type Options struct {
	FailureThreshold int
	SuccessThreshold int
	WindowSize       int
	ProbeInterval    time.Duration
}

// track holds the per region/kind rolling window and debounce counters.
type track struct {
	window    []core.HealthCheckResult
	failures  int
	successes int
	state     core.HealthState
	lastCheck time.Time
}

// SnapshotSink receives the debounced status after each probe cycle. The
// redis cache and the metrics collector both hang off this.
type SnapshotSink interface {
	PublishHealth(ctx context.Context, status core.HealthStatus)
}

// Monitor converts raw probe results into stable per-region health judgments.
// It is the single source of truth for "is region X healthy": the workflow
// engine and the DNS controller both read Status and nothing else, so they
// can never disagree on the underlying signal.
type Monitor struct {
	mu      sync.RWMutex
	opts    Options
	tracks  map[string]map[core.ProbeKind]*track
	regions []core.RegionEndpoint
	probers []Prober
	sinks   []SnapshotSink
	logger  *zap.Logger
}

func NewMonitor(regions []core.RegionEndpoint, probers []Prober, opts Options, logger *zap.Logger) *Monitor {
	if opts.FailureThreshold < 1 {
		opts.FailureThreshold = 3
	}
	if opts.SuccessThreshold < 1 {
		opts.SuccessThreshold = 2
	}
	if opts.WindowSize < 1 {
		opts.WindowSize = 50
	}
	if opts.ProbeInterval <= 0 {
		opts.ProbeInterval = 30 * time.Second
	}

	m := &Monitor{
		opts:    opts,
		tracks:  make(map[string]map[core.ProbeKind]*track),
		regions: regions,
		probers: probers,
		logger:  logger,
	}
	for _, r := range regions {
		m.tracks[r.RegionID] = make(map[core.ProbeKind]*track)
		for _, p := range probers {
			// New regions start healthy so a cold start never triggers
			// failover before thresholds have had a chance to apply.
			m.tracks[r.RegionID][p.Kind()] = &track{state: core.StateHealthy}
		}
	}
	return m
}

func (m *Monitor) AddSink(sink SnapshotSink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, sink)
}

// ProbeObserver is an optional sink extension receiving raw results for
// instrumentation. Health decisions still go exclusively through Status.
type ProbeObserver interface {
	ObserveProbe(result core.HealthCheckResult)
}

// Record appends a raw result to its region/kind window and advances the
// debounce counters. State flips only on threshold crossings: individual
// failures are absorbed, never escalated.
func (m *Monitor) Record(result core.HealthCheckResult) {
	for _, sink := range m.snapshotSinks() {
		if obs, ok := sink.(ProbeObserver); ok {
			obs.ObserveProbe(result)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	kinds, ok := m.tracks[result.RegionID]
	if !ok {
		kinds = make(map[core.ProbeKind]*track)
		m.tracks[result.RegionID] = kinds
	}
	t, ok := kinds[result.Kind]
	if !ok {
		t = &track{state: core.StateHealthy}
		kinds[result.Kind] = t
	}

	t.window = append(t.window, result)
	if len(t.window) > m.opts.WindowSize {
		t.window = t.window[len(t.window)-m.opts.WindowSize:]
	}
	t.lastCheck = result.CheckedAt

	if result.Healthy {
		t.successes++
		t.failures = 0
		if t.state == core.StateUnhealthy && t.successes >= m.opts.SuccessThreshold {
			t.state = core.StateHealthy
			m.logger.Info("Region track recovered",
				zap.String("region", result.RegionID),
				zap.String("kind", string(result.Kind)),
				zap.Int("consecutive_successes", t.successes),
			)
		}
	} else {
		t.failures++
		t.successes = 0
		if t.state == core.StateHealthy && t.failures >= m.opts.FailureThreshold {
			t.state = core.StateUnhealthy
			m.logger.Warn("Region track went unhealthy",
				zap.String("region", result.RegionID),
				zap.String("kind", string(result.Kind)),
				zap.Int("consecutive_failures", t.failures),
				zap.String("last_error", result.Error),
			)
		}
	}
}

// Status returns the debounced judgment for a region. The region is healthy
// only when every tracked kind is healthy; counters come from the worst track.
func (m *Monitor) Status(regionID string) core.HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := core.HealthStatus{
		RegionID: regionID,
		State:    core.StateHealthy,
	}

	kinds, ok := m.tracks[regionID]
	if !ok {
		return status
	}

	first := true
	for _, t := range kinds {
		if t.state == core.StateUnhealthy {
			status.State = core.StateUnhealthy
		}
		if t.failures > status.ConsecutiveFailures {
			status.ConsecutiveFailures = t.failures
		}
		if first || t.successes < status.ConsecutiveSuccesses {
			status.ConsecutiveSuccesses = t.successes
		}
		if t.lastCheck.After(status.LastCheck) {
			status.LastCheck = t.lastCheck
		}
		first = false
	}
	return status
}

// Window returns a copy of the raw results retained for a region/kind.
// Diagnostic surface only; health decisions always go through Status.
func (m *Monitor) Window(regionID string, kind core.ProbeKind) []core.HealthCheckResult {
	m.mu.RLock()
	defer m.mu.RUnlock()

	kinds, ok := m.tracks[regionID]
	if !ok {
		return nil
	}
	t, ok := kinds[kind]
	if !ok {
		return nil
	}
	out := make([]core.HealthCheckResult, len(t.window))
	copy(out, t.window)
	return out
}

// Start runs the probe loop until the context is cancelled. Every region and
// probe kind is checked concurrently each tick, independent of any workflow
// activity.
func (m *Monitor) Start(ctx context.Context) {
	m.logger.Info("Starting health monitor",
		zap.Duration("probe_interval", m.opts.ProbeInterval),
		zap.Int("regions", len(m.regions)),
	)

	// Probe immediately so the first status is not a full interval away.
	m.probeAll(ctx)

	ticker := time.NewTicker(m.opts.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Stopping health monitor")
			return
		case <-ticker.C:
			m.probeAll(ctx)
		}
	}
}

func (m *Monitor) probeAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, region := range m.regions {
		for _, prober := range m.probers {
			wg.Add(1)
			go func(r core.RegionEndpoint, p Prober) {
				defer wg.Done()
				result := p.Probe(ctx, r)
				m.Record(result)
			}(region, prober)
		}
	}
	wg.Wait()

	for _, region := range m.regions {
		status := m.Status(region.RegionID)
		for _, sink := range m.snapshotSinks() {
			sink.PublishHealth(ctx, status)
		}
	}
}

func (m *Monitor) snapshotSinks() []SnapshotSink {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sinks
}
