package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Simodalstix/AWS-dr-pilot-light/internal/core"
)

type stubHealth struct {
	mu    sync.Mutex
	state core.HealthState
}

func (s *stubHealth) Status(regionID string) core.HealthStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.HealthStatus{RegionID: regionID, State: s.state, ConsecutiveFailures: 3}
}

type fakeResources struct {
	mu            sync.Mutex
	scaleCalls    int
	ensureCalls   int
	promoteCalls  int
	validateCalls int

	scaleErr    error
	promoteErr  error
	validateErr error
	validateOK  bool
}

func (r *fakeResources) Scale(_ context.Context, _ string, _, _ int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scaleCalls++
	return r.scaleErr
}

func (r *fakeResources) EnsureScaled(_ context.Context, _ string, _ int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureCalls++
	return nil
}

func (r *fakeResources) Promote(_ context.Context, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.promoteCalls++
	return r.promoteErr
}

func (r *fakeResources) Validate(_ context.Context, _, _ string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validateCalls++
	return r.validateOK, r.validateErr
}

func (r *fakeResources) counts() (scale, ensure, promote, validate int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scaleCalls, r.ensureCalls, r.promoteCalls, r.validateCalls
}

type fakeNotifier struct {
	mu       sync.Mutex
	subjects []string
}

func (n *fakeNotifier) Publish(_ context.Context, subject, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subjects = append(n.subjects, subject)
	return nil
}

func (n *fakeNotifier) seen(subject string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, s := range n.subjects {
		if s == subject {
			return true
		}
	}
	return false
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testConfig() Config {
	return Config{
		Target:         "payments",
		PrimaryRegion:  "us-east-1",
		GroupID:        "standby-asg",
		TargetCapacity: 2,
		MinCapacity:    2,
		ReplicaID:      "standby-db",
		TargetGroupARN: "arn:aws:elasticloadbalancing:us-west-2:123:targetgroup/standby/abc",
		Timeout:        30 * time.Minute,
		SettleDelay:    2 * time.Minute,
	}
}

func newTestEngine(t *testing.T, cfg Config, health HealthSource, resources Resources, notifier Notifier) (*Engine, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	eng := NewEngine(cfg, store, health, resources, notifier, zap.NewNop())
	eng.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return eng, store
}

func TestEngineHealthyPrimaryNoAction(t *testing.T) {
	health := &stubHealth{state: core.StateHealthy}
	resources := &fakeResources{validateOK: true}
	notifier := &fakeNotifier{}
	eng, store := newTestEngine(t, testConfig(), health, resources, notifier)

	runID, err := eng.Trigger(context.Background(), "scheduled drill", nil)
	require.NoError(t, err)
	eng.Wait()

	run, err := store.Get(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, core.RunSucceeded, run.Status)
	assert.Equal(t, core.StateHealthyNoAction, run.CurrentState)
	require.NotNil(t, run.EndedAt)

	scale, ensure, promote, validate := resources.counts()
	assert.Zero(t, scale, "a healthy primary must never be failed over")
	assert.Zero(t, ensure)
	assert.Zero(t, promote)
	assert.Zero(t, validate)

	assert.True(t, notifier.seen("DR failover starting"))
	assert.True(t, notifier.seen("DR check completed: primary healthy"))
}

func TestEngineSuccessfulFailover(t *testing.T) {
	health := &stubHealth{state: core.StateUnhealthy}
	resources := &fakeResources{validateOK: true}
	notifier := &fakeNotifier{}
	eng, store := newTestEngine(t, testConfig(), health, resources, notifier)

	runID, err := eng.Trigger(context.Background(), "primary region down", map[string]string{"source": "alarm"})
	require.NoError(t, err)
	eng.Wait()

	run, err := store.Get(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, core.RunSucceeded, run.Status)
	assert.Equal(t, core.StateSucceeded, run.CurrentState)
	assert.Equal(t, "true", run.Context["scale_issued"])
	assert.Equal(t, "alarm", run.Metadata["source"])

	scale, ensure, promote, validate := resources.counts()
	assert.Equal(t, 1, scale)
	assert.Zero(t, ensure, "a fresh run issues the scale mutation, not the resume path")
	assert.Equal(t, 1, promote)
	assert.Equal(t, 1, validate)

	// The full path is recorded for the audit trail.
	states := make([]core.WorkflowState, 0, len(run.StepHistory))
	for _, step := range run.StepHistory {
		states = append(states, step.State)
	}
	assert.Equal(t, []core.WorkflowState{
		core.StateStart,
		core.StateNotify,
		core.StateCheckHealth,
		core.StateFailover,
		core.StateWaitStabilize,
		core.StateValidate,
		core.StateSucceeded,
	}, states)

	assert.True(t, notifier.seen("DR failover completed"))
}

func TestEngineValidationFailure(t *testing.T) {
	health := &stubHealth{state: core.StateUnhealthy}
	resources := &fakeResources{validateOK: false}
	notifier := &fakeNotifier{}
	eng, store := newTestEngine(t, testConfig(), health, resources, notifier)

	runID, err := eng.Trigger(context.Background(), "primary region down", nil)
	require.NoError(t, err)
	eng.Wait()

	run, err := store.Get(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, core.RunFailed, run.Status)
	assert.Equal(t, core.StateFailed, run.CurrentState)
	assert.Contains(t, run.FailureReason, "validation failed")
	assert.True(t, notifier.seen("DR failover failed"))
}

func TestEngineScaleExhaustion(t *testing.T) {
	health := &stubHealth{state: core.StateUnhealthy}
	resources := &fakeResources{
		scaleErr: &core.TaskExecutionError{Task: "scale", Attempts: 3, Err: errors.New("throttled")},
	}
	notifier := &fakeNotifier{}
	eng, store := newTestEngine(t, testConfig(), health, resources, notifier)

	runID, err := eng.Trigger(context.Background(), "primary region down", nil)
	require.NoError(t, err)
	eng.Wait()

	run, err := store.Get(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, core.RunFailed, run.Status)
	assert.Contains(t, run.FailureReason, "scale")

	_, _, promote, _ := resources.counts()
	assert.Zero(t, promote, "promotion must not run after the scale step failed")
}

func TestEngineRejectsConcurrentTrigger(t *testing.T) {
	health := &stubHealth{state: core.StateUnhealthy}
	store := NewMemoryStore()

	now := time.Now()
	inflight := &core.FailoverWorkflowRun{
		RunID:        "existing",
		Target:       "payments",
		StartTime:    now,
		CurrentState: core.StateWaitStabilize,
		Status:       core.RunRunning,
		Context:      core.StringMap{},
		UpdatedAt:    now,
	}
	require.NoError(t, store.Create(context.Background(), inflight))

	eng := NewEngine(testConfig(), store, health, &fakeResources{validateOK: true}, &fakeNotifier{}, zap.NewNop())

	_, err := eng.Trigger(context.Background(), "second trigger", nil)
	assert.ErrorIs(t, err, core.ErrConcurrencyConflict)
}

func TestEngineTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.Timeout = 1 * time.Minute
	cfg.SettleDelay = 2 * time.Minute

	health := &stubHealth{state: core.StateUnhealthy}
	resources := &fakeResources{validateOK: true}
	notifier := &fakeNotifier{}
	eng, store := newTestEngine(t, cfg, health, resources, notifier)

	clk := &fakeClock{t: time.Now()}
	eng.now = clk.Now
	// The settle delay is the only wait on the happy path; advancing the clock
	// there pushes the run past its bound.
	eng.sleep = func(ctx context.Context, d time.Duration) error {
		clk.Advance(d)
		return nil
	}

	runID, err := eng.Trigger(context.Background(), "primary region down", nil)
	require.NoError(t, err)
	eng.Wait()

	run, err := store.Get(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, core.RunTimedOut, run.Status)
	assert.Equal(t, core.StateTimedOut, run.CurrentState)
	assert.Contains(t, run.FailureReason, "timeout")
	assert.True(t, notifier.seen("DR failover timed out"))

	_, _, _, validate := resources.counts()
	assert.Zero(t, validate, "no step may start after the workflow bound expired")
}

func TestEngineResume(t *testing.T) {
	health := &stubHealth{state: core.StateUnhealthy}
	resources := &fakeResources{validateOK: true}
	notifier := &fakeNotifier{}

	store := NewMemoryStore()
	now := time.Now()
	interrupted := &core.FailoverWorkflowRun{
		RunID:         "resume-me",
		Target:        "payments",
		TriggerReason: "primary region down",
		StartTime:     now,
		CurrentState:  core.StateFailover,
		Status:        core.RunRunning,
		StepHistory: core.StepHistory{
			{State: core.StateStart, EnteredAt: now},
			{State: core.StateNotify, EnteredAt: now},
			{State: core.StateCheckHealth, EnteredAt: now},
			{State: core.StateFailover, EnteredAt: now},
		},
		Context:   core.StringMap{"scale_issued": "true"},
		UpdatedAt: now,
	}
	require.NoError(t, store.Create(context.Background(), interrupted))

	eng := NewEngine(testConfig(), store, health, resources, notifier, zap.NewNop())
	eng.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	require.NoError(t, eng.Start(context.Background()))
	eng.Wait()

	run, err := store.Get(context.Background(), "resume-me")
	require.NoError(t, err)
	assert.Equal(t, core.RunSucceeded, run.Status)

	scale, ensure, promote, _ := resources.counts()
	assert.Zero(t, scale, "a resumed run must not re-issue the scale mutation")
	assert.Equal(t, 1, ensure)
	assert.Equal(t, 1, promote)
}

func TestEngineShutdownLeavesRunResumable(t *testing.T) {
	health := &stubHealth{state: core.StateUnhealthy}
	resources := &fakeResources{validateOK: true}
	eng, store := newTestEngine(t, testConfig(), health, resources, &fakeNotifier{})

	// Simulate the process shutting down mid settle delay.
	eng.sleep = func(ctx context.Context, d time.Duration) error {
		return context.Canceled
	}

	runID, err := eng.Trigger(context.Background(), "primary region down", nil)
	require.NoError(t, err)
	eng.Wait()

	run, err := store.Get(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, core.RunRunning, run.Status, "shutdown must leave the run for the next process")
	assert.Equal(t, core.StateWaitStabilize, run.CurrentState)
}

type recordingObserver struct {
	mu       sync.Mutex
	started  int
	states   []core.WorkflowState
	finished []core.RunStatus
}

func (o *recordingObserver) RunStarted(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started++
}

func (o *recordingObserver) StateEntered(state core.WorkflowState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, state)
}

func (o *recordingObserver) RunFinished(status core.RunStatus, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, status)
}

func TestEngineObserverCallbacks(t *testing.T) {
	health := &stubHealth{state: core.StateHealthy}
	eng, _ := newTestEngine(t, testConfig(), health, &fakeResources{}, &fakeNotifier{})
	obs := &recordingObserver{}
	eng.SetObserver(obs)

	_, err := eng.Trigger(context.Background(), "scheduled drill", nil)
	require.NoError(t, err)
	eng.Wait()

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, 1, obs.started)
	assert.Equal(t, []core.RunStatus{core.RunSucceeded}, obs.finished)
	assert.Contains(t, obs.states, core.StateHealthyNoAction)
}

func TestEngineListRuns(t *testing.T) {
	health := &stubHealth{state: core.StateHealthy}
	eng, _ := newTestEngine(t, testConfig(), health, &fakeResources{}, &fakeNotifier{})

	first, err := eng.Trigger(context.Background(), "drill one", nil)
	require.NoError(t, err)
	eng.Wait()
	second, err := eng.Trigger(context.Background(), "drill two", nil)
	require.NoError(t, err)
	eng.Wait()

	runs, err := eng.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	ids := []string{runs[0].RunID, runs[1].RunID}
	assert.Contains(t, ids, first)
	assert.Contains(t, ids, second)

	_, err = eng.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, core.ErrRunNotFound)
}
