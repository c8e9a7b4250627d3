package events

import (
	"context"
	"log/slog"
)

// LogSink writes events to the logger. The binary uses it when no database (and so no
// outbox) is configured.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(ctx context.Context, evt Event) error {
	s.logger.InfoContext(ctx, "event emitted",
		"event_id", evt.ID,
		"event_type", evt.Type,
		"tenant_id", evt.TenantID,
		"staff_id", evt.StaffID,
		"payload", string(evt.Payload),
	)
	return nil
}
