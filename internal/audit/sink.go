package audit

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/serroba/url-shortener/internal/messaging"
	"go.uber.org/zap"
)

// Sink persists audit events.
type Sink interface {
	Record(ctx context.Context, event *Event) error
}

// LogSink writes audit events to a logger.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a sink that logs every event at info level.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("audit")}
}

func (s *LogSink) Record(_ context.Context, event *Event) error {
	if event.Type == "" {
		return errors.New("audit event without type")
	}

	s.logger.Info("audit event",
		zap.String("type", string(event.Type)),
		zap.String("userId", event.UserID),
		zap.String("email", event.Email),
		zap.String("reason", event.Reason),
		zap.String("clientIp", event.ClientIP),
		zap.String("userAgent", event.UserAgent),
		zap.Time("occurredAt", event.OccurredAt),
	)

	return nil
}

// NewConsumer subscribes sink to topic.
func NewConsumer(subscriber message.Subscriber, topic string, sink Sink, logger *zap.Logger) *messaging.Consumer[Event] {
	return messaging.NewConsumer(subscriber, topic, sink.Record, logger)
}
