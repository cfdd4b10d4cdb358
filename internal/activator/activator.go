package activator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Simodalstix/AWS-dr-pilot-light/internal/core"
)

// ComputeAdapter mutates and observes the standby scaling group.
type ComputeAdapter interface {
	Scale(ctx context.Context, groupID string, desired, min int) error
	Describe(ctx context.Context, groupID string) (core.ComputeScalingGroup, error)
}

// DatabaseAdapter drives the one-way replica promotion.
type DatabaseAdapter interface {
	Promote(ctx context.Context, replicaID string) error
	Describe(ctx context.Context, replicaID string) (core.DatabaseReplica, error)
}

// TargetAdapter reports how many registered targets are passing their
// load-balancer health checks.
type TargetAdapter interface {
	HealthyTargets(ctx context.Context, targetGroupARN string) (int, error)
}

// PollConfig bounds the stabilization loops.
type PollConfig struct {
	Interval    time.Duration
	MaxAttempts int
}

// Activator performs the irreversible activation operations: compute
// scale-out and database promotion, each blocking with bounded polling until
// the operation stabilizes.
type Activator struct {
	compute ComputeAdapter
	db      DatabaseAdapter
	targets TargetAdapter
	poll    PollConfig
	retry   RetryPolicy
	logger  *zap.Logger

	// sleep is swapped in tests to avoid real waits.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(compute ComputeAdapter, db DatabaseAdapter, targets TargetAdapter, poll PollConfig, retry RetryPolicy, logger *zap.Logger) *Activator {
	if poll.Interval <= 0 {
		poll.Interval = 30 * time.Second
	}
	if poll.MaxAttempts < 1 {
		poll.MaxAttempts = 20
	}
	return &Activator{
		compute: compute,
		db:      db,
		targets: targets,
		poll:    poll,
		retry:   retry,
		logger:  logger,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Scale raises the group to the desired capacity and polls until the observed
// instance count catches up. Exhausting the poll budget is a TaskExecutionError.
func (a *Activator) Scale(ctx context.Context, groupID string, desired, min int) error {
	a.logger.Info("Scaling compute group",
		zap.String("group_id", groupID),
		zap.Int("desired", desired),
		zap.Int("min", min),
	)

	err := a.retry.Do(ctx, "scale", a.logger, func(ctx context.Context) error {
		return a.compute.Scale(ctx, groupID, desired, min)
	})
	if err != nil {
		return err
	}

	return a.EnsureScaled(ctx, groupID, desired)
}

// EnsureScaled polls until the group's observed capacity reaches desired. It
// never mutates the group, which makes it safe to call when resuming a run
// whose scale request was already issued before a crash.
func (a *Activator) EnsureScaled(ctx context.Context, groupID string, desired int) error {
	return a.waitUntilStable(ctx, "scale", func(ctx context.Context) (bool, error) {
		group, err := a.compute.Describe(ctx, groupID)
		if err != nil {
			return false, err
		}
		return group.Observed >= desired, nil
	})
}

// Promote converts the standby replica into a standalone writable instance.
// Promotion is one-way: a replica already standalone short-circuits to
// success without re-issuing the operation.
func (a *Activator) Promote(ctx context.Context, replicaID string) error {
	replica, err := a.db.Describe(ctx, replicaID)
	if err != nil {
		return fmt.Errorf("describe replica %s: %w", replicaID, err)
	}
	if replica.PromotionState == core.PromotionStandalone {
		a.logger.Info("Replica already standalone, promotion skipped",
			zap.String("replica_id", replicaID),
		)
		return nil
	}

	if replica.PromotionState == core.PromotionReplica {
		a.logger.Info("Promoting database replica", zap.String("replica_id", replicaID))
		err := a.retry.Do(ctx, "promote", a.logger, func(ctx context.Context) error {
			return a.db.Promote(ctx, replicaID)
		})
		if err != nil {
			return err
		}
	}

	return a.waitUntilStable(ctx, "promote", func(ctx context.Context) (bool, error) {
		r, err := a.db.Describe(ctx, replicaID)
		if err != nil {
			return false, err
		}
		return r.PromotionState == core.PromotionStandalone, nil
	})
}

// Validate aggregates instance health and target health: the group must run
// at least its desired capacity and at least one registered target must
// report healthy. Both must hold.
func (a *Activator) Validate(ctx context.Context, groupID, targetGroupARN string) (bool, error) {
	group, err := a.compute.Describe(ctx, groupID)
	if err != nil {
		return false, fmt.Errorf("describe group %s: %w", groupID, err)
	}

	healthy, err := a.targets.HealthyTargets(ctx, targetGroupARN)
	if err != nil {
		return false, fmt.Errorf("describe target health %s: %w", targetGroupARN, err)
	}

	ok := group.Observed >= group.Desired && healthy >= 1
	a.logger.Info("Validation evaluated",
		zap.String("group_id", groupID),
		zap.Int("observed", group.Observed),
		zap.Int("desired", group.Desired),
		zap.Int("healthy_targets", healthy),
		zap.Bool("passed", ok),
	)
	return ok, nil
}

func (a *Activator) waitUntilStable(ctx context.Context, op string, check func(ctx context.Context) (bool, error)) error {
	var lastErr error
	for attempt := 1; attempt <= a.poll.MaxAttempts; attempt++ {
		stable, err := check(ctx)
		if err != nil {
			lastErr = err
			a.logger.Warn("Stabilization poll failed",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		} else if stable {
			a.logger.Info("Operation stabilized",
				zap.String("op", op),
				zap.Int("attempts", attempt),
			)
			return nil
		}

		if attempt == a.poll.MaxAttempts {
			break
		}
		if err := a.sleep(ctx, a.poll.Interval); err != nil {
			return err
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("%s did not stabilize", op)
	}
	return &core.TaskExecutionError{Task: op, Attempts: a.poll.MaxAttempts, Err: lastErr}
}
