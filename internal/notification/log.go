package notification

import (
	"context"
	"strings"

	"github.com/bullion/compliance-service/internal/pkg/logger"
)

// LogSender writes notifications to the log instead of publishing them.
// Used when no Kafka brokers are configured.
type LogSender struct {
	log *logger.Logger
}

// NewLogSender creates a log-only sender
func NewLogSender(log *logger.Logger) *LogSender {
	return &LogSender{log: log.Named("notification")}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if len(msg.Recipients) == 0 {
		return ErrNoRecipients
	}
	s.log.WithContext(ctx).Info("notification",
		logger.StringField("kind", string(msg.Kind)),
		logger.StringField("priority", string(msg.Priority)),
		logger.StringField("recipients", strings.Join(msg.Recipients, ",")),
	)
	return nil
}
