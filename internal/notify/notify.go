package notify

import (
	"context"

	"go.uber.org/zap"
)

// Notifier publishes operational messages to the configured channel.
type Notifier interface {
	Publish(ctx context.Context, subject, message string) error
}

// LogNotifier writes notifications to the log. Used when no topic is
// configured, and as the fallback channel in local runs.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Publish(_ context.Context, subject, message string) error {
	n.logger.Info("Notification",
		zap.String("subject", subject),
		zap.String("message", message),
	)
	return nil
}

// BestEffort wraps a notifier so publish failures are logged and swallowed.
// Notification failures never alter a run's outcome.
type BestEffort struct {
	inner  Notifier
	logger *zap.Logger
}

func NewBestEffort(inner Notifier, logger *zap.Logger) *BestEffort {
	return &BestEffort{inner: inner, logger: logger}
}

func (n *BestEffort) Publish(ctx context.Context, subject, message string) error {
	if err := n.inner.Publish(ctx, subject, message); err != nil {
		n.logger.Warn("Notification publish failed",
			zap.Error(err),
			zap.String("subject", subject),
		)
	}
	return nil
}
