package sla

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Simodalstix/AWS-dr-pilot-light/internal/core"
)

// RunSource is the slice of the run store the calculator reads.
type RunSource interface {
	List(ctx context.Context, limit int) ([]*core.FailoverWorkflowRun, error)
}

// Objectives are the recovery targets the calculator reports against.
type Objectives struct {
	// RTO is the recovery time objective: the bound on trigger-to-recovered
	// duration for a successful failover.
	RTO time.Duration
}

type Report struct {
	PeriodStart     time.Time     `json:"period_start"`
	PeriodEnd       time.Time     `json:"period_end"`
	TotalRuns       int           `json:"total_runs"`
	Succeeded       int           `json:"succeeded"`
	Failed          int           `json:"failed"`
	TimedOut        int           `json:"timed_out"`
	NoActionRuns    int           `json:"no_action_runs"`
	AvgRecoveryTime time.Duration `json:"avg_recovery_time"`
	MaxRecoveryTime time.Duration `json:"max_recovery_time"`
	RTOTarget       time.Duration `json:"rto_target"`
	RTOMet          bool          `json:"rto_met"`
}

// Calculator reports achieved recovery times against the configured RTO.
type Calculator struct {
	runs       RunSource
	objectives Objectives
	logger     *zap.Logger
}

func NewCalculator(runs RunSource, objectives Objectives, logger *zap.Logger) *Calculator {
	return &Calculator{
		runs:       runs,
		objectives: objectives,
		logger:     logger,
	}
}

// Report aggregates the most recent runs. Recovery time is measured only on
// runs that actually activated the standby: healthy no-action runs carry no
// recovery signal and are counted separately.
func (c *Calculator) Report(ctx context.Context, limit int) (*Report, error) {
	runs, err := c.runs.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("no runs recorded")
	}

	report := &Report{
		RTOTarget: c.objectives.RTO,
		RTOMet:    true,
	}

	var totalRecovery time.Duration
	recoveries := 0

	for _, run := range runs {
		if report.PeriodStart.IsZero() || run.StartTime.Before(report.PeriodStart) {
			report.PeriodStart = run.StartTime
		}
		end := run.UpdatedAt
		if run.EndedAt != nil {
			end = *run.EndedAt
		}
		if end.After(report.PeriodEnd) {
			report.PeriodEnd = end
		}

		report.TotalRuns++
		switch run.Status {
		case core.RunSucceeded:
			if run.CurrentState == core.StateHealthyNoAction {
				report.NoActionRuns++
				continue
			}
			report.Succeeded++
			if run.EndedAt != nil {
				recovery := run.EndedAt.Sub(run.StartTime)
				totalRecovery += recovery
				recoveries++
				if recovery > report.MaxRecoveryTime {
					report.MaxRecoveryTime = recovery
				}
				if c.objectives.RTO > 0 && recovery > c.objectives.RTO {
					report.RTOMet = false
				}
			}
		case core.RunFailed:
			report.Failed++
			report.RTOMet = false
		case core.RunTimedOut:
			report.TimedOut++
			report.RTOMet = false
		}
	}

	if recoveries > 0 {
		report.AvgRecoveryTime = totalRecovery / time.Duration(recoveries)
	}

	c.logger.Debug("RTO report computed",
		zap.Int("total_runs", report.TotalRuns),
		zap.Duration("max_recovery", report.MaxRecoveryTime),
		zap.Bool("rto_met", report.RTOMet),
	)
	return report, nil
}
