// Package client is the edge patrol-execution client: a single-threaded,
// cooperative state machine that drives a guard through login, the pending
// list, checkpoint scanning and completion, surviving connectivity loss
// through a durable offline queue.
package client

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	dErrors "vigil/pkg/domain-errors"
)

// State is the client's position in the flow.
type State string

const (
	StateLogin       State = "login"
	StatePendingList State = "pending_list"
	StateInExecution State = "in_execution"
	StateCompleted   State = "completed"
)

// Options configure the client.
type Options struct {
	// UserAgent identifies the device in the start snapshot.
	UserAgent string
	// LocationTimeout bounds geolocation acquisition. Expiry fails closed.
	LocationTimeout time.Duration
	// MotionAlpha weighs the newest motion sample in the decaying average.
	MotionAlpha float64
}

// Client drives one guard session. Single-threaded and cooperative: network
// round-trips and geolocation acquisition are the only suspension points,
// and none of the methods may be called concurrently.
type Client struct {
	api     ServerAPI
	queue   *Queue
	locator Locator
	battery BatteryReader
	motion  *MotionSampler
	logger  *slog.Logger

	userAgent       string
	locationTimeout time.Duration

	state     State
	creds     Credentials
	pending   []PendingExecution
	execution *PendingExecution
	outcome   *CompletionAck
}

func New(api ServerAPI, queue *Queue, locator Locator, battery BatteryReader, logger *slog.Logger, opts Options) *Client {
	if opts.LocationTimeout <= 0 {
		opts.LocationTimeout = 8 * time.Second
	}
	return &Client{
		api:             api,
		queue:           queue,
		locator:         locator,
		battery:         battery,
		motion:          NewMotionSampler(opts.MotionAlpha),
		logger:          logger,
		userAgent:       opts.UserAgent,
		locationTimeout: opts.LocationTimeout,
		state:           StateLogin,
	}
}

// State returns the current machine state.
func (c *Client) State() State {
	return c.state
}

// Pending returns the fetched pending list.
func (c *Client) Pending() []PendingExecution {
	return c.pending
}

// Outcome returns the stored terminal result after completion.
func (c *Client) Outcome() *CompletionAck {
	return c.outcome
}

// Login authenticates and fetches today's pending list. On success the
// machine moves to pending_list; on failure it stays in login and the error
// is surfaced to the operator.
func (c *Client) Login(ctx context.Context, creds Credentials) (*Session, error) {
	if c.state != StateLogin {
		return nil, dErrors.Newf(dErrors.CodeConflict, "login is not available from %s", c.state)
	}

	session, err := c.api.Authenticate(ctx, creds)
	if err != nil {
		return nil, err
	}
	pending, err := c.api.ListPending(ctx, creds)
	if err != nil {
		return nil, err
	}

	c.creds = creds
	c.pending = pending
	c.state = StatePendingList
	return session, nil
}

// StartExecution selects one pending execution and starts it. The machine
// moves to in_execution only on server acknowledgement.
func (c *Client) StartExecution(ctx context.Context, executionID uuid.UUID) (*StartAck, error) {
	if c.state != StatePendingList {
		return nil, dErrors.Newf(dErrors.CodeConflict, "start is not available from %s", c.state)
	}
	var selected *PendingExecution
	for i := range c.pending {
		if c.pending[i].ID == executionID {
			selected = &c.pending[i]
			break
		}
	}
	if selected == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "execution is not on the pending list")
	}

	ack, err := c.api.Start(ctx, executionID, c.userAgent, c.battery.Level())
	if err != nil {
		return nil, err
	}

	selected.CheckpointTotal = ack.CheckpointTotal
	c.execution = selected
	c.state = StateInExecution
	return ack, nil
}

// ScanCheckpoint captures one scan: a fresh location fix (fail closed), the
// decayed motion score and current battery, then submits online or appends
// to the durable queue when the server is unreachable. Non-transient
// rejections are surfaced without queuing.
func (c *Client) ScanCheckpoint(ctx context.Context, checkpointCode string, rawMotion float64) (*MarkAck, error) {
	if c.state != StateInExecution {
		return nil, dErrors.Newf(dErrors.CodeConflict, "scanning is not available from %s", c.state)
	}

	fix, err := c.acquireFix(ctx)
	if err != nil {
		// No fix, no mark. The scan is not queued either: queued evidence
		// must carry confirmed coordinates.
		return nil, err
	}

	sub := MarkSubmission{
		ExecutionID:    c.execution.ID,
		CheckpointCode: checkpointCode,
		Lat:            fix.Lat,
		Lng:            fix.Lng,
		BatteryLevel:   c.battery.Level(),
		MotionScore:    c.motion.Sample(rawMotion),
		ClientRef:      uuid.New(),
	}

	ack, err := c.api.Mark(ctx, sub)
	if err == nil {
		return ack, nil
	}
	if !dErrors.HasCode(err, dErrors.CodeUnavailable) {
		return nil, err
	}

	// Offline: persist the scan for the next flush.
	queued := QueuedMark{
		ClientRef:      sub.ClientRef,
		ExecutionID:    sub.ExecutionID,
		CheckpointCode: sub.CheckpointCode,
		Lat:            sub.Lat,
		Lng:            sub.Lng,
		BatteryLevel:   sub.BatteryLevel,
		MotionScore:    sub.MotionScore,
		CapturedAt:     time.Now().UTC(),
	}
	if qErr := c.queue.Enqueue(ctx, queued); qErr != nil {
		return nil, dErrors.Wrap(qErr, dErrors.CodeInternal, "server unreachable and queue write failed")
	}
	c.logger.Warn("mark queued offline",
		"checkpoint", checkpointCode,
		"client_ref", sub.ClientRef,
	)
	return nil, err
}

// FlushQueue drains the offline queue strictly in FIFO order. An item is
// consumed only on confirmed acceptance (a duplicate acknowledgement counts)
// or on a definitive rejection the server will never accept; a transient
// failure stops the flush with the item still queued. Returns the number of
// marks confirmed.
func (c *Client) FlushQueue(ctx context.Context) (int, error) {
	confirmed := 0
	for {
		head, err := c.queue.Head(ctx)
		if err != nil {
			if errors.Is(err, ErrQueueEmpty) {
				return confirmed, nil
			}
			return confirmed, dErrors.Wrap(err, dErrors.CodeInternal, "read offline queue")
		}

		sub := MarkSubmission{
			ExecutionID:    head.ExecutionID,
			CheckpointCode: head.CheckpointCode,
			Lat:            head.Lat,
			Lng:            head.Lng,
			BatteryLevel:   head.BatteryLevel,
			MotionScore:    head.MotionScore,
			ClientRef:      head.ClientRef,
		}
		_, err = c.api.Mark(ctx, sub)
		switch {
		case err == nil:
			if cErr := c.queue.Consume(ctx, head.Seq); cErr != nil {
				return confirmed, dErrors.Wrap(cErr, dErrors.CodeInternal, "consume queue entry")
			}
			confirmed++
		case dErrors.HasCode(err, dErrors.CodeUnavailable):
			// Still offline; the head stays queued for the next flush.
			return confirmed, err
		default:
			// The server definitively rejected this scan; retrying is
			// forbidden for non-transient errors. Drop it and surface.
			if cErr := c.queue.Consume(ctx, head.Seq); cErr != nil {
				return confirmed, dErrors.Wrap(cErr, dErrors.CodeInternal, "consume queue entry")
			}
			c.logger.Warn("queued mark rejected by server",
				"checkpoint", head.CheckpointCode,
				"client_ref", head.ClientRef,
				"error", err.Error(),
			)
			return confirmed, err
		}
	}
}

// CompleteExecution flushes any queued marks, then asks the server to
// finalize. The machine reaches the terminal completed state on response,
// storing the outcome for display.
func (c *Client) CompleteExecution(ctx context.Context) (*CompletionAck, error) {
	if c.state != StateInExecution {
		return nil, dErrors.Newf(dErrors.CodeConflict, "complete is not available from %s", c.state)
	}

	if _, err := c.FlushQueue(ctx); err != nil && dErrors.HasCode(err, dErrors.CodeUnavailable) {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "queued marks not yet delivered")
	}

	outcome, err := c.api.Complete(ctx, c.execution.ID)
	if err != nil {
		return nil, err
	}
	c.outcome = outcome
	c.state = StateCompleted
	return outcome, nil
}

// Panic reports the current coordinates best-effort. It never alters the
// machine state and never blocks the flow: failures, including a missing
// location fix, are logged and swallowed.
func (c *Client) Panic(ctx context.Context) {
	if c.execution == nil {
		return
	}
	fix, err := c.acquireFix(ctx)
	if err != nil {
		c.logger.Warn("panic without location fix", "error", err.Error())
		fix = Fix{}
	}
	if err := c.api.Panic(ctx, c.execution.ID, fix.Lat, fix.Lng); err != nil {
		c.logger.Warn("panic delivery failed", "error", err.Error())
	}
}
