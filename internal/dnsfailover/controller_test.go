package dnsfailover

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Simodalstix/AWS-dr-pilot-light/internal/core"
)

type fakeAdapter struct {
	mu      sync.Mutex
	binds   []string
	upserts []upsert
}

type upsert struct {
	name   string
	setID  string
	role   core.RegionRole
	target string
	check  string
}

func (f *fakeAdapter) BindHealthCheck(_ context.Context, endpoint string, _ int, _ time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.binds = append(f.binds, endpoint)
	return "check-" + endpoint, nil
}

func (f *fakeAdapter) UpsertFailoverRecord(_ context.Context, name, setID string, role core.RegionRole, target, checkID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, upsert{name, setID, role, target, checkID})
	return nil
}

type switchableHealth struct {
	mu    sync.Mutex
	state core.HealthState
}

func (s *switchableHealth) set(state core.HealthState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *switchableHealth) Status(regionID string) core.HealthStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.HealthStatus{RegionID: regionID, State: s.state}
}

type stubReplicas struct {
	state core.PromotionState
}

func (s stubReplicas) Describe(_ context.Context, replicaID string) (core.DatabaseReplica, error) {
	return core.DatabaseReplica{ReplicaID: replicaID, PromotionState: s.state}, nil
}

type captureNotifier struct {
	mu       sync.Mutex
	subjects []string
}

func (n *captureNotifier) Publish(_ context.Context, subject, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subjects = append(n.subjects, subject)
	return nil
}

func (n *captureNotifier) seen(subject string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, s := range n.subjects {
		if s == subject {
			return true
		}
	}
	return false
}

func testControllerConfig() Config {
	return Config{
		RecordName: "app.example.com",
		Primary: core.RegionEndpoint{
			RegionID:        "us-east-1",
			ComputeEndpoint: "primary.example.com",
			Role:            core.RolePrimary,
		},
		Standby: core.RegionEndpoint{
			RegionID:        "us-west-2",
			ComputeEndpoint: "standby.example.com",
			Role:            core.RoleStandby,
		},
		StandbyReplicaID: "standby-db",
		FailureThreshold: 3,
		CheckInterval:    30 * time.Second,
		WatchInterval:    15 * time.Second,
	}
}

func TestControllerEnsureRecords(t *testing.T) {
	adapter := &fakeAdapter{}
	health := &switchableHealth{state: core.StateHealthy}
	c := NewController(testControllerConfig(), adapter, health, nil, nil, zap.NewNop())

	require.NoError(t, c.EnsureRecords(context.Background()))

	require.Len(t, adapter.upserts, 2)
	assert.Equal(t, "primary", adapter.upserts[0].setID)
	assert.Equal(t, core.RolePrimary, adapter.upserts[0].role)
	assert.Equal(t, "primary.example.com", adapter.upserts[0].target)
	assert.Equal(t, "standby", adapter.upserts[1].setID)
	assert.Equal(t, core.RoleStandby, adapter.upserts[1].role)

	// Every record carries its bound health check.
	assert.Equal(t, "check-primary.example.com", adapter.upserts[0].check)
	assert.Equal(t, "check-standby.example.com", adapter.upserts[1].check)

	rs := c.RecordSet()
	assert.Equal(t, "check-primary.example.com", rs.HealthCheckIDs["us-east-1"])
	assert.Equal(t, "check-standby.example.com", rs.HealthCheckIDs["us-west-2"])
	assert.Equal(t, "primary.example.com", rs.ActiveTarget, "initial active target is the primary")
}

func TestControllerSteering(t *testing.T) {
	t.Run("flips to standby when primary goes unhealthy", func(t *testing.T) {
		health := &switchableHealth{state: core.StateHealthy}
		notifier := &captureNotifier{}
		c := NewController(testControllerConfig(), &fakeAdapter{}, health,
			stubReplicas{state: core.PromotionStandalone}, notifier, zap.NewNop())

		var flips []string
		c.SetFlipHook(func(target string) { flips = append(flips, target) })

		c.evaluate(context.Background())
		assert.Equal(t, "primary.example.com", c.RecordSet().ActiveTarget)
		assert.Empty(t, flips)

		health.set(core.StateUnhealthy)
		c.evaluate(context.Background())

		assert.Equal(t, "standby.example.com", c.RecordSet().ActiveTarget)
		assert.Equal(t, []string{"standby.example.com"}, flips)
		assert.True(t, notifier.seen("DNS failover engaged"))
	})

	t.Run("reverts when primary recovers", func(t *testing.T) {
		health := &switchableHealth{state: core.StateUnhealthy}
		notifier := &captureNotifier{}
		c := NewController(testControllerConfig(), &fakeAdapter{}, health,
			stubReplicas{state: core.PromotionStandalone}, notifier, zap.NewNop())

		c.evaluate(context.Background())
		require.Equal(t, "standby.example.com", c.RecordSet().ActiveTarget)

		health.set(core.StateHealthy)
		c.evaluate(context.Background())

		assert.Equal(t, "primary.example.com", c.RecordSet().ActiveTarget)
		assert.True(t, notifier.seen("DNS failback"))
	})

	t.Run("steady state does not re-notify", func(t *testing.T) {
		health := &switchableHealth{state: core.StateUnhealthy}
		notifier := &captureNotifier{}
		c := NewController(testControllerConfig(), &fakeAdapter{}, health,
			stubReplicas{state: core.PromotionStandalone}, notifier, zap.NewNop())

		flips := 0
		c.SetFlipHook(func(string) { flips++ })

		c.evaluate(context.Background())
		c.evaluate(context.Background())
		c.evaluate(context.Background())

		assert.Equal(t, 1, flips)

		notifier.mu.Lock()
		defer notifier.mu.Unlock()
		assert.Len(t, notifier.subjects, 1)
	})

	t.Run("warns when standby replica is not promoted yet", func(t *testing.T) {
		health := &switchableHealth{state: core.StateUnhealthy}
		notifier := &captureNotifier{}
		c := NewController(testControllerConfig(), &fakeAdapter{}, health,
			stubReplicas{state: core.PromotionReplica}, notifier, zap.NewNop())

		c.evaluate(context.Background())

		assert.True(t, notifier.seen("DR degraded reads"),
			"steering ahead of promotion must flag degraded reads")
		assert.True(t, notifier.seen("DNS failover engaged"))
	})

	t.Run("no degraded-reads warning once promoted", func(t *testing.T) {
		health := &switchableHealth{state: core.StateUnhealthy}
		notifier := &captureNotifier{}
		c := NewController(testControllerConfig(), &fakeAdapter{}, health,
			stubReplicas{state: core.PromotionStandalone}, notifier, zap.NewNop())

		c.evaluate(context.Background())

		assert.False(t, notifier.seen("DR degraded reads"))
	})
}

func TestControllerVerifyActive(t *testing.T) {
	newObserved := func() (*zap.Logger, *observer.ObservedLogs) {
		obsCore, logs := observer.New(zapcore.WarnLevel)
		return zap.New(obsCore), logs
	}

	t.Run("matching answer does not warn", func(t *testing.T) {
		logger, logs := newObserved()
		c := NewController(testControllerConfig(), &fakeAdapter{},
			&switchableHealth{state: core.StateHealthy}, nil, nil, logger)
		c.resolve = func(ctx context.Context) ([]string, error) {
			return []string{"203.0.113.10"}, nil
		}
		c.lookup = func(host string) ([]string, error) {
			return []string{"203.0.113.10"}, nil
		}

		c.VerifyActive(context.Background())

		assert.Zero(t, logs.FilterMessage("Served DNS answer drifts from derived active target").Len())
	})

	t.Run("drifting answer warns", func(t *testing.T) {
		logger, logs := newObserved()
		c := NewController(testControllerConfig(), &fakeAdapter{},
			&switchableHealth{state: core.StateHealthy}, nil, nil, logger)
		c.resolve = func(ctx context.Context) ([]string, error) {
			return []string{"198.51.100.7"}, nil
		}
		c.lookup = func(host string) ([]string, error) {
			return []string{"203.0.113.10"}, nil
		}

		c.VerifyActive(context.Background())

		assert.Equal(t, 1, logs.FilterMessage("Served DNS answer drifts from derived active target").Len())
	})

	t.Run("resolution failure is skipped quietly", func(t *testing.T) {
		logger, logs := newObserved()
		c := NewController(testControllerConfig(), &fakeAdapter{},
			&switchableHealth{state: core.StateHealthy}, nil, nil, logger)
		c.resolve = func(ctx context.Context) ([]string, error) {
			return nil, context.DeadlineExceeded
		}

		c.VerifyActive(context.Background())

		assert.Zero(t, logs.Len())
	})
}

func TestControllerWatchLoop(t *testing.T) {
	t.Run("steers before the first tick", func(t *testing.T) {
		health := &switchableHealth{state: core.StateUnhealthy}
		cfg := testControllerConfig()
		cfg.WatchInterval = time.Hour
		c := NewController(cfg, &fakeAdapter{}, health,
			stubReplicas{state: core.PromotionStandalone}, &captureNotifier{}, zap.NewNop())

		flipped := make(chan string, 1)
		c.SetFlipHook(func(target string) { flipped <- target })

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go c.Start(ctx)

		select {
		case target := <-flipped:
			assert.Equal(t, "standby.example.com", target)
		case <-time.After(2 * time.Second):
			t.Fatal("initial evaluation did not run before the first tick")
		}
	})

	t.Run("verifies resolution when a resolver is configured", func(t *testing.T) {
		cfg := testControllerConfig()
		cfg.WatchInterval = 2 * time.Millisecond
		cfg.Resolver = "192.0.2.53:53"
		c := NewController(cfg, &fakeAdapter{}, &switchableHealth{state: core.StateHealthy},
			nil, nil, zap.NewNop())

		resolved := make(chan struct{}, 1)
		c.resolve = func(ctx context.Context) ([]string, error) {
			select {
			case resolved <- struct{}{}:
			default:
			}
			return []string{"203.0.113.10"}, nil
		}
		c.lookup = func(host string) ([]string, error) {
			return []string{"203.0.113.10"}, nil
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go c.Start(ctx)

		select {
		case <-resolved:
		case <-time.After(2 * time.Second):
			t.Fatal("watch loop never queried the resolver")
		}
	})
}
