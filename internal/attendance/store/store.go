// Package store defines the attendance persistence boundary. The event
// insert and the daily-attendance update must commit or fail together, so
// the store exposes a transactional scope.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"vigil/internal/attendance"
)

// Tx is the write scope available inside RunInTx. The alternation lookup and
// the insert run in the same scope so a retried duplicate submission hits the
// alternation check instead of persisting twice.
type Tx interface {
	// LastEventOfDay returns the guard's most recent event at the
	// installation on the calendar day, or sentinel.ErrNotFound.
	LastEventOfDay(ctx context.Context, guardID, installationID uuid.UUID, day time.Time) (*attendance.ClockEvent, error)
	// InsertEvent persists an immutable event.
	InsertEvent(ctx context.Context, ev *attendance.ClockEvent) error
	// FindAttendance returns the daily row, or sentinel.ErrNotFound.
	FindAttendance(ctx context.Context, guardID, installationID uuid.UUID, day time.Time) (*attendance.DailyAttendance, error)
	// SaveAttendance creates or updates the daily row.
	SaveAttendance(ctx context.Context, row *attendance.DailyAttendance) error
}

// Store is the attendance persistence contract.
type Store interface {
	// RunInTx executes fn atomically: either the event and the attendance
	// update both commit, or neither does.
	RunInTx(ctx context.Context, fn func(tx Tx) error) error

	// ListEvents returns all events for a tenant in [from, to), ordered by
	// timestamp. Used by the integrity audit pass.
	ListEvents(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]*attendance.ClockEvent, error)

	// ListAttendance returns the finalized daily rows for a tenant in
	// [from, to). Read by the KPI aggregator.
	ListAttendance(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]*attendance.DailyAttendance, error)
}
