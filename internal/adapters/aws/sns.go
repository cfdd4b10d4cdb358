package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"go.uber.org/zap"
)

// SNSNotifier publishes run lifecycle messages to an SNS topic.
type SNSNotifier struct {
	client   *sns.Client
	topicARN string
	logger   *zap.Logger
}

func NewSNSNotifier(cfg aws.Config, topicARN string, logger *zap.Logger) *SNSNotifier {
	return &SNSNotifier{
		client:   sns.NewFromConfig(cfg),
		topicARN: topicARN,
		logger:   logger,
	}
}

func (n *SNSNotifier) Publish(ctx context.Context, subject, message string) error {
	_, err := n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String(subject),
		Message:  aws.String(message),
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	n.logger.Debug("Notification published",
		zap.String("topic", n.topicARN),
		zap.String("subject", subject),
	)
	return nil
}
