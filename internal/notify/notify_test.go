package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

type capturingPublisher struct {
	mu     sync.Mutex
	events []Event
	fail   bool
}

func (p *capturingPublisher) Publish(ctx context.Context, ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker down")
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *capturingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type WorkerSuite struct {
	suite.Suite
	publisher *capturingPublisher
	worker    *Worker
}

func TestWorkerSuite(t *testing.T) {
	suite.Run(t, new(WorkerSuite))
}

func (s *WorkerSuite) SetupTest() {
	s.publisher = &capturingPublisher{}
	s.worker = NewWorker(s.publisher, 8, slog.New(slog.DiscardHandler))
}

func (s *WorkerSuite) TestSubmittedEventIsPublished() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = s.worker.Run(ctx)
		close(done)
	}()

	s.worker.Submit(Event{Kind: KindClockReceipt, TenantID: uuid.New()})

	s.Eventually(func() bool { return s.publisher.count() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func (s *WorkerSuite) TestSubmitAssignsID() {
	s.worker.Submit(Event{Kind: KindPanicAlert})
	ev := <-s.worker.inbox
	s.NotEqual(uuid.Nil, ev.ID)
}

func (s *WorkerSuite) TestSubmitNeverBlocksWhenFull() {
	// No worker running; fill the buffer and keep going.
	for range 20 {
		s.worker.Submit(Event{Kind: KindClockReceipt})
	}
	// Reaching here without deadlock is the assertion; the buffer holds the
	// first 8.
	s.Len(s.worker.inbox, 8)
}

func (s *WorkerSuite) TestPublishFailureDoesNotStopWorker() {
	s.publisher.fail = true
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.worker.Run(ctx) }()

	s.worker.Submit(Event{Kind: KindClockReceipt})
	s.worker.Submit(Event{Kind: KindClockReceipt})

	s.Eventually(func() bool { return len(s.worker.inbox) == 0 }, time.Second, 5*time.Millisecond)
	s.Equal(0, s.publisher.count())
}
