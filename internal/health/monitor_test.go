package health

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Simodalstix/AWS-dr-pilot-light/internal/core"
)

func probeResult(region string, kind core.ProbeKind, healthy bool) core.HealthCheckResult {
	return core.HealthCheckResult{
		RegionID:  region,
		Kind:      kind,
		Healthy:   healthy,
		CheckedAt: time.Now(),
	}
}

func newTestMonitor(opts Options) *Monitor {
	regions := []core.RegionEndpoint{
		{RegionID: "us-east-1", ComputeEndpoint: "primary.example.com", Role: core.RolePrimary},
	}
	return NewMonitor(regions, nil, opts, zap.NewNop())
}

func TestMonitorHysteresis(t *testing.T) {
	opts := Options{FailureThreshold: 3, SuccessThreshold: 2, WindowSize: 10}

	t.Run("starts healthy", func(t *testing.T) {
		m := newTestMonitor(opts)
		status := m.Status("us-east-1")
		assert.Equal(t, core.StateHealthy, status.State)
	})

	t.Run("failures below threshold do not flip state", func(t *testing.T) {
		m := newTestMonitor(opts)
		m.Record(probeResult("us-east-1", core.ProbeCompute, false))
		m.Record(probeResult("us-east-1", core.ProbeCompute, false))

		status := m.Status("us-east-1")
		assert.Equal(t, core.StateHealthy, status.State)
		assert.Equal(t, 2, status.ConsecutiveFailures)
	})

	t.Run("flips unhealthy at failure threshold", func(t *testing.T) {
		m := newTestMonitor(opts)
		for i := 0; i < 3; i++ {
			m.Record(probeResult("us-east-1", core.ProbeCompute, false))
		}

		status := m.Status("us-east-1")
		assert.Equal(t, core.StateUnhealthy, status.State)
		assert.Equal(t, 3, status.ConsecutiveFailures)
	})

	t.Run("single success does not recover", func(t *testing.T) {
		m := newTestMonitor(opts)
		for i := 0; i < 3; i++ {
			m.Record(probeResult("us-east-1", core.ProbeCompute, false))
		}
		m.Record(probeResult("us-east-1", core.ProbeCompute, true))

		assert.Equal(t, core.StateUnhealthy, m.Status("us-east-1").State)
	})

	t.Run("recovers at success threshold", func(t *testing.T) {
		m := newTestMonitor(opts)
		for i := 0; i < 3; i++ {
			m.Record(probeResult("us-east-1", core.ProbeCompute, false))
		}
		m.Record(probeResult("us-east-1", core.ProbeCompute, true))
		m.Record(probeResult("us-east-1", core.ProbeCompute, true))

		assert.Equal(t, core.StateHealthy, m.Status("us-east-1").State)
	})

	t.Run("intervening success resets failure count", func(t *testing.T) {
		m := newTestMonitor(opts)
		m.Record(probeResult("us-east-1", core.ProbeCompute, false))
		m.Record(probeResult("us-east-1", core.ProbeCompute, false))
		m.Record(probeResult("us-east-1", core.ProbeCompute, true))
		m.Record(probeResult("us-east-1", core.ProbeCompute, false))
		m.Record(probeResult("us-east-1", core.ProbeCompute, false))

		status := m.Status("us-east-1")
		assert.Equal(t, core.StateHealthy, status.State, "a flapping probe must never cross the threshold")
		assert.Equal(t, 2, status.ConsecutiveFailures)
	})
}

func TestMonitorCombinesKinds(t *testing.T) {
	opts := Options{FailureThreshold: 3, SuccessThreshold: 2, WindowSize: 10}

	t.Run("region unhealthy when one kind is unhealthy", func(t *testing.T) {
		m := newTestMonitor(opts)
		m.Record(probeResult("us-east-1", core.ProbeCompute, true))
		for i := 0; i < 3; i++ {
			m.Record(probeResult("us-east-1", core.ProbeDatabase, false))
		}

		status := m.Status("us-east-1")
		assert.Equal(t, core.StateUnhealthy, status.State)
		assert.Equal(t, 3, status.ConsecutiveFailures)
	})

	t.Run("region healthy only when all kinds recovered", func(t *testing.T) {
		m := newTestMonitor(opts)
		for i := 0; i < 3; i++ {
			m.Record(probeResult("us-east-1", core.ProbeCompute, false))
			m.Record(probeResult("us-east-1", core.ProbeDatabase, false))
		}
		m.Record(probeResult("us-east-1", core.ProbeCompute, true))
		m.Record(probeResult("us-east-1", core.ProbeCompute, true))

		assert.Equal(t, core.StateUnhealthy, m.Status("us-east-1").State)

		m.Record(probeResult("us-east-1", core.ProbeDatabase, true))
		m.Record(probeResult("us-east-1", core.ProbeDatabase, true))

		assert.Equal(t, core.StateHealthy, m.Status("us-east-1").State)
	})
}

func TestMonitorWindowBound(t *testing.T) {
	m := newTestMonitor(Options{FailureThreshold: 3, SuccessThreshold: 2, WindowSize: 5})

	for i := 0; i < 12; i++ {
		m.Record(probeResult("us-east-1", core.ProbeCompute, true))
	}

	window := m.Window("us-east-1", core.ProbeCompute)
	assert.Len(t, window, 5)
}

func TestMonitorUnknownRegion(t *testing.T) {
	m := newTestMonitor(Options{})

	status := m.Status("eu-west-1")
	assert.Equal(t, core.StateHealthy, status.State)
	assert.Zero(t, status.ConsecutiveFailures)
	assert.Nil(t, m.Window("eu-west-1", core.ProbeCompute))
}

type recordingSink struct {
	statuses []core.HealthStatus
	probes   []core.HealthCheckResult
}

func (s *recordingSink) PublishHealth(_ context.Context, status core.HealthStatus) {
	s.statuses = append(s.statuses, status)
}

func (s *recordingSink) ObserveProbe(result core.HealthCheckResult) {
	s.probes = append(s.probes, result)
}

func TestMonitorSinks(t *testing.T) {
	t.Run("probe observers see raw results", func(t *testing.T) {
		m := newTestMonitor(Options{FailureThreshold: 3, SuccessThreshold: 2})
		sink := &recordingSink{}
		m.AddSink(sink)

		m.Record(probeResult("us-east-1", core.ProbeCompute, false))

		require.Len(t, sink.probes, 1)
		assert.False(t, sink.probes[0].Healthy)
		// A single raw failure must not surface as an unhealthy status.
		assert.Equal(t, core.StateHealthy, m.Status("us-east-1").State)
	})
}
