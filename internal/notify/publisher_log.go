package notify

import (
	"context"
	"log/slog"
)

// LogPublisher is the development fallback when no brokers are configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, ev Event) error {
	p.logger.InfoContext(ctx, "notification",
		"kind", ev.Kind,
		"event_id", ev.ID,
		"tenant_id", ev.TenantID,
		"payload", ev.Payload,
	)
	return nil
}
