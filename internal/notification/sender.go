package notification

import (
	"context"

	"go.uber.org/zap"
)

// Sender delivers one email. The real mail transport is an external
// collaborator; implementations must honor the context deadline since each
// attempt is individually time-bounded by the dispatcher.
type Sender interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// LogSender logs emails instead of delivering them. Used in development and
// as the default when no transport is configured.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a sender that only logs
func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, recipient, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.logger.Info("Email delivered (log transport)",
		zap.String("recipient", recipient),
		zap.String("subject", subject),
		zap.Int("body_bytes", len(body)),
	)
	return nil
}
