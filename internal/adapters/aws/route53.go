package aws

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"
	"go.uber.org/zap"

	"github.com/Simodalstix/AWS-dr-pilot-light/internal/core"
)

// DNSAdapter manages Route 53 health checks and failover record sets.
type DNSAdapter struct {
	client       *route53.Client
	hostedZoneID string
	logger       *zap.Logger
}

func NewDNSAdapter(cfg aws.Config, hostedZoneID string, logger *zap.Logger) *DNSAdapter {
	return &DNSAdapter{
		client:       route53.NewFromConfig(cfg),
		hostedZoneID: hostedZoneID,
		logger:       logger,
	}
}

// BindHealthCheck creates (or finds) the HTTP health check for an endpoint.
// The caller reference is derived from the endpoint so repeated startups
// reuse the same check instead of accumulating duplicates.
func (a *DNSAdapter) BindHealthCheck(ctx context.Context, endpoint string, failureThreshold int, interval time.Duration) (string, error) {
	callerRef := "dr-pilot-light-" + endpoint

	resp, err := a.client.CreateHealthCheck(ctx, &route53.CreateHealthCheckInput{
		CallerReference: aws.String(callerRef),
		HealthCheckConfig: &types.HealthCheckConfig{
			Type:                     types.HealthCheckTypeHttp,
			FullyQualifiedDomainName: aws.String(endpoint),
			ResourcePath:             aws.String("/health"),
			Port:                     aws.Int32(80),
			RequestInterval:          aws.Int32(int32(interval / time.Second)),
			FailureThreshold:         aws.Int32(int32(failureThreshold)),
		},
	})
	if err != nil {
		var exists *types.HealthCheckAlreadyExists
		if errors.As(err, &exists) {
			return a.findHealthCheck(ctx, callerRef)
		}
		return "", fmt.Errorf("create health check for %s: %w", endpoint, err)
	}

	id := aws.ToString(resp.HealthCheck.Id)
	a.logger.Info("Health check created",
		zap.String("endpoint", endpoint),
		zap.String("check_id", id),
	)
	return id, nil
}

func (a *DNSAdapter) findHealthCheck(ctx context.Context, callerRef string) (string, error) {
	paginator := route53.NewListHealthChecksPaginator(a.client, &route53.ListHealthChecksInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return "", fmt.Errorf("list health checks: %w", err)
		}
		for _, check := range page.HealthChecks {
			if aws.ToString(check.CallerReference) == callerRef {
				return aws.ToString(check.Id), nil
			}
		}
	}
	return "", fmt.Errorf("health check with caller reference %s not found", callerRef)
}

func (a *DNSAdapter) UpsertFailoverRecord(ctx context.Context, name, setID string, role core.RegionRole, target, checkID string) error {
	failover := types.ResourceRecordSetFailoverSecondary
	if role == core.RolePrimary {
		failover = types.ResourceRecordSetFailoverPrimary
	}

	_, err := a.client.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(a.hostedZoneID),
		ChangeBatch: &types.ChangeBatch{
			Changes: []types.Change{{
				Action: types.ChangeActionUpsert,
				ResourceRecordSet: &types.ResourceRecordSet{
					Name:            aws.String(name),
					Type:            types.RRTypeCname,
					TTL:             aws.Int64(60),
					SetIdentifier:   aws.String(setID),
					Failover:        failover,
					HealthCheckId:   aws.String(checkID),
					ResourceRecords: []types.ResourceRecord{{Value: aws.String(target)}},
				},
			}},
		},
	})
	if err != nil {
		return fmt.Errorf("upsert failover record %s/%s: %w", name, setID, err)
	}
	return nil
}
