package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
	"go.uber.org/zap"
)

// TargetAdapter reports load-balancer target health for validation.
type TargetAdapter struct {
	client *elbv2.Client
	logger *zap.Logger
}

func NewTargetAdapter(cfg aws.Config, logger *zap.Logger) *TargetAdapter {
	return &TargetAdapter{
		client: elbv2.NewFromConfig(cfg),
		logger: logger,
	}
}

func (a *TargetAdapter) HealthyTargets(ctx context.Context, targetGroupARN string) (int, error) {
	resp, err := a.client.DescribeTargetHealth(ctx, &elbv2.DescribeTargetHealthInput{
		TargetGroupArn: aws.String(targetGroupARN),
	})
	if err != nil {
		return 0, fmt.Errorf("describe target health %s: %w", targetGroupARN, err)
	}

	healthy := 0
	for _, desc := range resp.TargetHealthDescriptions {
		if desc.TargetHealth != nil && desc.TargetHealth.State == types.TargetHealthStateEnumHealthy {
			healthy++
		}
	}
	a.logger.Debug("Target health described",
		zap.String("target_group", targetGroupARN),
		zap.Int("healthy", healthy),
		zap.Int("total", len(resp.TargetHealthDescriptions)),
	)
	return healthy, nil
}
