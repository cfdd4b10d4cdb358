package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"go.uber.org/zap"

	"github.com/Simodalstix/AWS-dr-pilot-light/internal/core"
)

// DatabaseAdapter drives the read-replica promotion.
type DatabaseAdapter struct {
	client *rds.Client
	logger *zap.Logger
}

func NewDatabaseAdapter(cfg aws.Config, logger *zap.Logger) *DatabaseAdapter {
	return &DatabaseAdapter{
		client: rds.NewFromConfig(cfg),
		logger: logger,
	}
}

func (a *DatabaseAdapter) Promote(ctx context.Context, replicaID string) error {
	_, err := a.client.PromoteReadReplica(ctx, &rds.PromoteReadReplicaInput{
		DBInstanceIdentifier: aws.String(replicaID),
	})
	if err != nil {
		return fmt.Errorf("promote read replica %s: %w", replicaID, err)
	}
	a.logger.Info("Read replica promotion issued", zap.String("replica_id", replicaID))
	return nil
}

func (a *DatabaseAdapter) Describe(ctx context.Context, replicaID string) (core.DatabaseReplica, error) {
	resp, err := a.client.DescribeDBInstances(ctx, &rds.DescribeDBInstancesInput{
		DBInstanceIdentifier: aws.String(replicaID),
	})
	if err != nil {
		return core.DatabaseReplica{}, fmt.Errorf("describe db instance %s: %w", replicaID, err)
	}
	if len(resp.DBInstances) == 0 {
		return core.DatabaseReplica{}, fmt.Errorf("db instance %s not found", replicaID)
	}

	inst := resp.DBInstances[0]
	replica := core.DatabaseReplica{
		ReplicaID: replicaID,
		SourceID:  aws.ToString(inst.ReadReplicaSourceDBInstanceIdentifier),
	}

	// Promotion state is inferred from the replication link and the instance
	// status: the source identifier disappears once promotion completes.
	status := aws.ToString(inst.DBInstanceStatus)
	switch {
	case replica.SourceID == "" && status == "available":
		replica.PromotionState = core.PromotionStandalone
	case replica.SourceID != "" && status == "available":
		replica.PromotionState = core.PromotionReplica
	default:
		replica.PromotionState = core.PromotionPromoting
	}
	return replica, nil
}
