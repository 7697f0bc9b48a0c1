package client

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

type QueueSuite struct {
	suite.Suite
	path  string
	queue *Queue
	ctx   context.Context
}

func TestQueueSuite(t *testing.T) {
	suite.Run(t, new(QueueSuite))
}

func (s *QueueSuite) SetupTest() {
	s.path = filepath.Join(s.T().TempDir(), "marks.db")
	q, err := OpenQueue(s.path)
	s.Require().NoError(err)
	s.queue = q
	s.ctx = context.Background()
}

func (s *QueueSuite) TearDownTest() {
	s.NoError(s.queue.Close())
}

func (s *QueueSuite) enqueue(code string) QueuedMark {
	m := QueuedMark{
		ClientRef:      uuid.New(),
		ExecutionID:    uuid.New(),
		CheckpointCode: code,
		Lat:            -33.4489,
		Lng:            -70.6693,
		BatteryLevel:   88,
		MotionScore:    0.5,
		CapturedAt:     time.Date(2026, 3, 10, 22, 15, 0, 0, time.UTC),
	}
	s.Require().NoError(s.queue.Enqueue(s.ctx, m))
	return m
}

func (s *QueueSuite) TestEmptyQueue() {
	_, err := s.queue.Head(s.ctx)
	s.ErrorIs(err, ErrQueueEmpty)

	n, err := s.queue.Len(s.ctx)
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *QueueSuite) TestFIFOOrder() {
	first := s.enqueue("CP-1")
	s.enqueue("CP-2")
	s.enqueue("CP-3")

	head, err := s.queue.Head(s.ctx)
	s.Require().NoError(err)
	s.Equal("CP-1", head.CheckpointCode)
	s.Equal(first.ClientRef, head.ClientRef)

	s.Require().NoError(s.queue.Consume(s.ctx, head.Seq))

	head, err = s.queue.Head(s.ctx)
	s.Require().NoError(err)
	s.Equal("CP-2", head.CheckpointCode)

	n, err := s.queue.Len(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, n)
}

func (s *QueueSuite) TestHeadDoesNotConsume() {
	s.enqueue("CP-1")

	for i := 0; i < 3; i++ {
		head, err := s.queue.Head(s.ctx)
		s.Require().NoError(err)
		s.Equal("CP-1", head.CheckpointCode, "head stays until confirmed")
	}
}

func (s *QueueSuite) TestSurvivesReopen() {
	queued := s.enqueue("CP-1")
	s.enqueue("CP-2")
	s.Require().NoError(s.queue.Close())

	reopened, err := OpenQueue(s.path)
	s.Require().NoError(err)
	s.queue = reopened

	n, err := s.queue.Len(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, n, "queued marks survive a restart")

	head, err := s.queue.Head(s.ctx)
	s.Require().NoError(err)
	s.Equal(queued.ClientRef, head.ClientRef)
	s.Equal(queued.CapturedAt, head.CapturedAt)
}

func (s *QueueSuite) TestCursorSurvivesReopen() {
	s.enqueue("CP-1")
	s.enqueue("CP-2")

	head, err := s.queue.Head(s.ctx)
	s.Require().NoError(err)
	s.Require().NoError(s.queue.Consume(s.ctx, head.Seq))
	s.Require().NoError(s.queue.Close())

	reopened, err := OpenQueue(s.path)
	s.Require().NoError(err)
	s.queue = reopened

	head, err = s.queue.Head(s.ctx)
	s.Require().NoError(err)
	s.Equal("CP-2", head.CheckpointCode, "consumed entries never replay")
}
