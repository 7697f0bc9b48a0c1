// Package notify implements the best-effort side channel: clock-event
// receipts to guards and panic alerts to operators. Dispatch is
// submit-and-forget — it runs outside the primary transaction, never blocks
// the caller, and its failures are logged, never propagated.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Kind labels a notification for routing on the consumer side.
type Kind string

const (
	KindClockReceipt Kind = "clock_receipt"
	KindPanicAlert   Kind = "panic_alert"
)

// Event is one outbound notification.
type Event struct {
	ID         uuid.UUID      `json:"id"`
	Kind       Kind           `json:"kind"`
	TenantID   uuid.UUID      `json:"tenant_id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload"`
}

// Publisher delivers events to the outbound channel (Kafka in production,
// the log in development).
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Dispatcher is the submit-and-forget boundary handed to services. The
// concrete Worker drains submissions in the background.
type Dispatcher interface {
	Submit(ev Event)
}

// Worker buffers submissions and drains them to a Publisher. Overflow drops
// the event with a warning: losing a receipt is acceptable, stalling a clock
// event is not.
type Worker struct {
	inbox     chan Event
	publisher Publisher
	logger    *slog.Logger
}

// NewWorker builds a worker with the given buffer capacity.
func NewWorker(publisher Publisher, buffer int, logger *slog.Logger) *Worker {
	if buffer <= 0 {
		buffer = 256
	}
	return &Worker{
		inbox:     make(chan Event, buffer),
		publisher: publisher,
		logger:    logger,
	}
}

// Submit enqueues without blocking. Never returns an error: the primary
// operation's correctness must not depend on notification delivery.
func (w *Worker) Submit(ev Event) {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	select {
	case w.inbox <- ev:
	default:
		w.logger.Warn("notification dropped, inbox full",
			"kind", ev.Kind,
			"event_id", ev.ID,
		)
	}
}

// Run drains the inbox until ctx is cancelled. Publish failures are logged
// and the event is discarded; there is no retry on this channel.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-w.inbox:
			if err := w.publisher.Publish(ctx, ev); err != nil {
				w.logger.ErrorContext(ctx, "notification publish failed",
					"kind", ev.Kind,
					"event_id", ev.ID,
					"error", err,
				)
			}
		}
	}
}
