package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling/types"
	"go.uber.org/zap"

	"github.com/Simodalstix/AWS-dr-pilot-light/internal/core"
)

// ComputeAdapter drives the standby Auto Scaling group.
type ComputeAdapter struct {
	client *autoscaling.Client
	logger *zap.Logger
}

func NewComputeAdapter(cfg aws.Config, logger *zap.Logger) *ComputeAdapter {
	return &ComputeAdapter{
		client: autoscaling.NewFromConfig(cfg),
		logger: logger,
	}
}

func (a *ComputeAdapter) Scale(ctx context.Context, groupID string, desired, min int) error {
	_, err := a.client.UpdateAutoScalingGroup(ctx, &autoscaling.UpdateAutoScalingGroupInput{
		AutoScalingGroupName: aws.String(groupID),
		DesiredCapacity:      aws.Int32(int32(desired)),
		MinSize:              aws.Int32(int32(min)),
	})
	if err != nil {
		return fmt.Errorf("update auto scaling group %s: %w", groupID, err)
	}
	a.logger.Info("Scaling group capacity updated",
		zap.String("group_id", groupID),
		zap.Int("desired", desired),
		zap.Int("min", min),
	)
	return nil
}

func (a *ComputeAdapter) Describe(ctx context.Context, groupID string) (core.ComputeScalingGroup, error) {
	resp, err := a.client.DescribeAutoScalingGroups(ctx, &autoscaling.DescribeAutoScalingGroupsInput{
		AutoScalingGroupNames: []string{groupID},
	})
	if err != nil {
		return core.ComputeScalingGroup{}, fmt.Errorf("describe auto scaling group %s: %w", groupID, err)
	}
	if len(resp.AutoScalingGroups) == 0 {
		return core.ComputeScalingGroup{}, fmt.Errorf("auto scaling group %s not found", groupID)
	}

	asg := resp.AutoScalingGroups[0]
	group := core.ComputeScalingGroup{
		GroupID: groupID,
		Min:     int(aws.ToInt32(asg.MinSize)),
		Max:     int(aws.ToInt32(asg.MaxSize)),
		Desired: int(aws.ToInt32(asg.DesiredCapacity)),
		Role:    core.RoleStandby,
	}
	for _, inst := range asg.Instances {
		if inst.LifecycleState == types.LifecycleStateInService &&
			aws.ToString(inst.HealthStatus) == "Healthy" {
			group.Observed++
		}
	}
	return group, nil
}
