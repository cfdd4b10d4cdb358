package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Simodalstix/AWS-dr-pilot-light/internal/core"
)

// HealthSource is the monitor's debounced view. The engine never sees raw
// probe results.
type HealthSource interface {
	Status(regionID string) core.HealthStatus
}

// Resources is the activator surface the engine drives.
type Resources interface {
	Scale(ctx context.Context, groupID string, desired, min int) error
	EnsureScaled(ctx context.Context, groupID string, desired int) error
	Promote(ctx context.Context, replicaID string) error
	Validate(ctx context.Context, groupID, targetGroupARN string) (bool, error)
}

// Notifier publishes run lifecycle messages. Best effort: errors are logged
// by the engine and never alter a run's status.
type Notifier interface {
	Publish(ctx context.Context, subject, message string) error
}

// Observer receives run lifecycle callbacks, used by the metrics collector.
type Observer interface {
	RunStarted(target string)
	StateEntered(state core.WorkflowState)
	RunFinished(status core.RunStatus, duration time.Duration)
}

// Config carries everything one protected target needs.
type Config struct {
	Target         string
	PrimaryRegion  string
	GroupID        string
	TargetCapacity int
	MinCapacity    int
	ReplicaID      string
	TargetGroupARN string
	Timeout        time.Duration
	SettleDelay    time.Duration
}

// Engine is the failover workflow state machine for one protected target.
// Runs are durable: every transition is checkpointed through the store, and
// Resume picks up runs that were mid-flight when the process died.
type Engine struct {
	cfg       Config
	store     RunStore
	health    HealthSource
	resources Resources
	notifier  Notifier
	observer  Observer
	logger    *zap.Logger

	runCtx context.Context
	wg     sync.WaitGroup

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewEngine(cfg Config, store RunStore, health HealthSource, resources Resources, notifier Notifier, logger *zap.Logger) *Engine {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Minute
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 2 * time.Minute
	}
	return &Engine{
		cfg:       cfg,
		store:     store,
		health:    health,
		resources: resources,
		notifier:  notifier,
		logger:    logger,
		runCtx:    context.Background(),
		now:       time.Now,
		sleep: func(ctx context.Context, d time.Duration) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
				return nil
			}
		},
	}
}

// SetObserver attaches a lifecycle observer. Must be called before Start.
func (e *Engine) SetObserver(obs Observer) {
	e.observer = obs
}

// Start resumes any runs left running by a previous process. Spawned runs
// live under ctx; cancelling it abandons in-flight drives.
func (e *Engine) Start(ctx context.Context) error {
	e.runCtx = ctx

	running, err := e.store.ListRunning(ctx)
	if err != nil {
		return fmt.Errorf("list running runs: %w", err)
	}

	for _, run := range running {
		e.logger.Info("Resuming interrupted run",
			zap.String("run_id", run.RunID),
			zap.String("state", string(run.CurrentState)),
		)
		r := run
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.drive(e.runCtx, r)
		}()
	}
	return nil
}

// Wait blocks until all in-flight runs have reached a terminal state.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Trigger starts a new failover run. It rejects with ErrConcurrencyConflict
// while another run for the same target is still running; triggers are never
// queued.
func (e *Engine) Trigger(ctx context.Context, reason string, metadata map[string]string) (string, error) {
	now := e.now()
	run := &core.FailoverWorkflowRun{
		RunID:         uuid.New().String(),
		Target:        e.cfg.Target,
		TriggerReason: reason,
		Metadata:      core.StringMap(metadata),
		StartTime:     now,
		CurrentState:  core.StateStart,
		Status:        core.RunRunning,
		StepHistory:   core.StepHistory{{State: core.StateStart, EnteredAt: now, Detail: reason}},
		Context:       core.StringMap{},
		UpdatedAt:     now,
	}

	if err := e.store.Create(ctx, run); err != nil {
		if errors.Is(err, core.ErrConcurrencyConflict) {
			e.logger.Warn("Trigger rejected, run already in progress",
				zap.String("target", e.cfg.Target),
				zap.String("reason", reason),
			)
		}
		return "", err
	}

	e.logger.Info("Failover run triggered",
		zap.String("run_id", run.RunID),
		zap.String("target", e.cfg.Target),
		zap.String("reason", reason),
	)
	if e.observer != nil {
		e.observer.RunStarted(e.cfg.Target)
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.drive(e.runCtx, run)
	}()

	return run.RunID, nil
}

// GetRun returns the durable record for a run ID.
func (e *Engine) GetRun(ctx context.Context, runID string) (*core.FailoverWorkflowRun, error) {
	return e.store.Get(ctx, runID)
}

// ListRuns returns recent runs, newest first.
func (e *Engine) ListRuns(ctx context.Context, limit int) ([]*core.FailoverWorkflowRun, error) {
	return e.store.List(ctx, limit)
}

// drive advances a run until it reaches a terminal state. The step context is
// deadlined at StartTime+Timeout so in-flight polls are abandoned the moment
// the workflow bound expires; the underlying cloud operations are not safely
// abortable and are left to finish on their own.
func (e *Engine) drive(ctx context.Context, run *core.FailoverWorkflowRun) {
	deadline := run.StartTime.Add(e.cfg.Timeout)
	stepCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	for run.Status == core.RunRunning {
		if !e.now().Before(deadline) {
			e.finish(ctx, run, core.StateTimedOut, core.ErrWorkflowTimeout.Error())
			return
		}

		next, detail, err := e.step(stepCtx, run)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || !e.now().Before(deadline) {
				e.finish(ctx, run, core.StateTimedOut, core.ErrWorkflowTimeout.Error())
				return
			}
			if errors.Is(err, context.Canceled) {
				// Process shutdown: leave the run checkpointed as running so
				// the next process resumes it.
				e.logger.Info("Run interrupted by shutdown", zap.String("run_id", run.RunID))
				return
			}
			e.finish(ctx, run, core.StateFailed, err.Error())
			return
		}

		e.transition(ctx, run, next, detail)
	}
}

// step executes the current state's work and names the successor.
func (e *Engine) step(ctx context.Context, run *core.FailoverWorkflowRun) (core.WorkflowState, string, error) {
	switch run.CurrentState {
	case core.StateStart:
		return core.StateNotify, "", nil

	case core.StateNotify:
		e.publish(ctx, "DR failover starting",
			fmt.Sprintf("run %s triggered: %s", run.RunID, run.TriggerReason))
		return core.StateCheckHealth, "", nil

	case core.StateCheckHealth:
		status := e.health.Status(e.cfg.PrimaryRegion)
		if status.State == core.StateHealthy {
			return core.StateHealthyNoAction,
				fmt.Sprintf("primary %s healthy, no action", e.cfg.PrimaryRegion), nil
		}
		return core.StateFailover,
			fmt.Sprintf("primary %s unhealthy after %d consecutive failures",
				e.cfg.PrimaryRegion, status.ConsecutiveFailures), nil

	case core.StateFailover:
		if err := e.failover(ctx, run); err != nil {
			return "", "", err
		}
		return core.StateWaitStabilize, "standby scaled and replica promoted", nil

	case core.StateWaitStabilize:
		if err := e.sleep(ctx, e.cfg.SettleDelay); err != nil {
			return "", "", err
		}
		return core.StateValidate, "", nil

	case core.StateValidate:
		ok, err := e.resources.Validate(ctx, e.cfg.GroupID, e.cfg.TargetGroupARN)
		if err != nil {
			return "", "", err
		}
		if !ok {
			return "", "", errors.New("validation failed: standby capacity or target health below requirements")
		}
		return core.StateSucceeded, "standby validated", nil

	default:
		return "", "", fmt.Errorf("no transition from state %q", run.CurrentState)
	}
}

// failover drives the two activation sub-steps. A marker in the run context
// records that the scale request was issued, so a resumed run only polls for
// stabilization instead of re-issuing the mutation. Promote needs no marker:
// it is idempotent by contract.
func (e *Engine) failover(ctx context.Context, run *core.FailoverWorkflowRun) error {
	if run.Context["scale_issued"] == "true" {
		if err := e.resources.EnsureScaled(ctx, e.cfg.GroupID, e.cfg.TargetCapacity); err != nil {
			return err
		}
	} else {
		run.Context["scale_issued"] = "true"
		e.checkpoint(ctx, run)
		if err := e.resources.Scale(ctx, e.cfg.GroupID, e.cfg.TargetCapacity, e.cfg.MinCapacity); err != nil {
			return err
		}
	}

	return e.resources.Promote(ctx, e.cfg.ReplicaID)
}

// transition records entry into the next state and checkpoints. States that
// imply a terminal status close the run.
func (e *Engine) transition(ctx context.Context, run *core.FailoverWorkflowRun, next core.WorkflowState, detail string) {
	switch next {
	case core.StateHealthyNoAction, core.StateSucceeded, core.StateFailed, core.StateTimedOut:
		e.finish(ctx, run, next, detail)
	default:
		run.CurrentState = next
		run.StepHistory = append(run.StepHistory, core.StepRecord{
			State:     next,
			EnteredAt: e.now(),
			Detail:    detail,
		})
		run.UpdatedAt = e.now()
		e.checkpoint(ctx, run)
		if e.observer != nil {
			e.observer.StateEntered(next)
		}
	}
}

// finish moves a run into its terminal state. Terminal runs are immutable:
// re-entry requires a fresh trigger and a new run ID.
func (e *Engine) finish(ctx context.Context, run *core.FailoverWorkflowRun, state core.WorkflowState, detail string) {
	now := e.now()
	run.CurrentState = state
	run.StepHistory = append(run.StepHistory, core.StepRecord{
		State:     state,
		EnteredAt: now,
		Detail:    detail,
	})
	run.UpdatedAt = now
	run.EndedAt = &now

	var subject string
	switch state {
	case core.StateHealthyNoAction:
		run.Status = core.RunSucceeded
		subject = "DR check completed: primary healthy"
	case core.StateSucceeded:
		run.Status = core.RunSucceeded
		subject = "DR failover completed"
	case core.StateTimedOut:
		run.Status = core.RunTimedOut
		run.FailureReason = detail
		subject = "DR failover timed out"
	default:
		run.Status = core.RunFailed
		run.FailureReason = detail
		subject = "DR failover failed"
	}

	e.checkpoint(ctx, run)

	duration := now.Sub(run.StartTime)
	e.logger.Info("Run finished",
		zap.String("run_id", run.RunID),
		zap.String("state", string(state)),
		zap.String("status", string(run.Status)),
		zap.Duration("duration", duration),
		zap.String("detail", detail),
	)
	if e.observer != nil {
		e.observer.StateEntered(state)
		e.observer.RunFinished(run.Status, duration)
	}

	e.publish(ctx, subject, fmt.Sprintf("run %s: %s", run.RunID, detail))
}

// checkpoint persists the run. Checkpoint failures are logged and the run
// keeps going: losing audit fidelity beats abandoning a failover mid-flight.
func (e *Engine) checkpoint(ctx context.Context, run *core.FailoverWorkflowRun) {
	// The step context may already be expired; checkpoints must still land.
	if ctx.Err() != nil {
		ctx = context.Background()
	}
	if err := e.store.Update(ctx, run); err != nil {
		e.logger.Error("Failed to checkpoint run",
			zap.Error(err),
			zap.String("run_id", run.RunID),
			zap.String("state", string(run.CurrentState)),
		)
	}
}

func (e *Engine) publish(ctx context.Context, subject, message string) {
	if e.notifier == nil {
		return
	}
	if ctx.Err() != nil {
		ctx = context.Background()
	}
	if err := e.notifier.Publish(ctx, subject, message); err != nil {
		e.logger.Warn("Notification publish failed",
			zap.Error(err),
			zap.String("subject", subject),
		)
	}
}
