package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"vigil/internal/attendance"
	"vigil/pkg/platform/sentinel"
)

// MemoryStore keeps events and attendance rows in process. RunInTx takes a
// coarse lock, which gives the same atomicity the SQL store gets from a
// transaction.
type MemoryStore struct {
	mu         sync.Mutex
	events     []*attendance.ClockEvent
	attendance map[string]*attendance.DailyAttendance
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		attendance: make(map[string]*attendance.DailyAttendance),
	}
}

// memoryTx operates on the store while RunInTx holds the lock.
type memoryTx struct {
	s       *MemoryStore
	events  []*attendance.ClockEvent
	updates map[string]*attendance.DailyAttendance
}

func (s *MemoryStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{s: s, updates: make(map[string]*attendance.DailyAttendance)}
	if err := fn(tx); err != nil {
		return err
	}
	// Commit staged writes.
	s.events = append(s.events, tx.events...)
	for key, row := range tx.updates {
		s.attendance[key] = row
	}
	return nil
}

func (tx *memoryTx) LastEventOfDay(ctx context.Context, guardID, installationID uuid.UUID, day time.Time) (*attendance.ClockEvent, error) {
	var last *attendance.ClockEvent
	scan := func(ev *attendance.ClockEvent) {
		if ev.GuardID != guardID || ev.InstallationID != installationID {
			return
		}
		if !attendance.DayOf(ev.Timestamp).Equal(attendance.DayOf(day)) {
			return
		}
		if last == nil || ev.Timestamp.After(last.Timestamp) {
			last = ev
		}
	}
	for _, ev := range tx.s.events {
		scan(ev)
	}
	for _, ev := range tx.events {
		scan(ev)
	}
	if last == nil {
		return nil, sentinel.ErrNotFound
	}
	copied := *last
	return &copied, nil
}

func (tx *memoryTx) InsertEvent(ctx context.Context, ev *attendance.ClockEvent) error {
	copied := *ev
	tx.events = append(tx.events, &copied)
	return nil
}

func (tx *memoryTx) FindAttendance(ctx context.Context, guardID, installationID uuid.UUID, day time.Time) (*attendance.DailyAttendance, error) {
	key := attendanceKey(guardID, installationID, day)
	if row, ok := tx.updates[key]; ok {
		copied := *row
		return &copied, nil
	}
	if row, ok := tx.s.attendance[key]; ok {
		copied := *row
		return &copied, nil
	}
	return nil, sentinel.ErrNotFound
}

func (tx *memoryTx) SaveAttendance(ctx context.Context, row *attendance.DailyAttendance) error {
	copied := *row
	tx.updates[attendanceKey(row.GuardID, row.InstallationID, row.Day)] = &copied
	return nil
}

func (s *MemoryStore) ListEvents(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]*attendance.ClockEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*attendance.ClockEvent
	for _, ev := range s.events {
		if ev.TenantID != tenantID {
			continue
		}
		if ev.Timestamp.Before(from) || !ev.Timestamp.Before(to) {
			continue
		}
		copied := *ev
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *MemoryStore) ListAttendance(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]*attendance.DailyAttendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*attendance.DailyAttendance
	for _, row := range s.attendance {
		if row.TenantID != tenantID {
			continue
		}
		if row.Day.Before(attendance.DayOf(from)) || !row.Day.Before(to) {
			continue
		}
		copied := *row
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}

func attendanceKey(guardID, installationID uuid.UUID, day time.Time) string {
	return guardID.String() + "|" + installationID.String() + "|" + day.Format("2006-01-02")
}
