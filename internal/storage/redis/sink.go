package redis

import (
	"context"

	"go.uber.org/zap"

	"github.com/Simodalstix/AWS-dr-pilot-light/internal/core"
)

// HealthSink adapts the cache to the monitor's snapshot sink. Cache write
// failures only cost freshness for external readers, so they are logged and
// dropped.
type HealthSink struct {
	client *Client
	logger *zap.Logger
}

func NewHealthSink(client *Client, logger *zap.Logger) *HealthSink {
	return &HealthSink{client: client, logger: logger}
}

func (s *HealthSink) PublishHealth(ctx context.Context, status core.HealthStatus) {
	if err := s.client.CacheRegionHealth(ctx, status); err != nil {
		s.logger.Debug("Failed to cache region health",
			zap.Error(err),
			zap.String("region", status.RegionID),
		)
	}
}
