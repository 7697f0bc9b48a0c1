// Package store defines the patrol persistence boundary. Execution state
// transitions and mark inserts must commit together, so the store exposes a
// transactional scope keyed by execution.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"vigil/internal/patrol"
)

// Tx is the write scope available inside RunInTx. The execution load inside
// the scope is the single-writer guard: two concurrent marks against the
// same execution serialize on it.
type Tx interface {
	// FindExecutionForUpdate loads the execution and locks it for the rest
	// of the scope. Returns sentinel.ErrNotFound when absent.
	FindExecutionForUpdate(ctx context.Context, id uuid.UUID) (*patrol.Execution, error)
	// SaveExecution persists state, counters and the final trust score.
	SaveExecution(ctx context.Context, exec *patrol.Execution) error
	// FindMarkByClientRef returns a previously accepted mark carrying the
	// client's idempotency key, or sentinel.ErrNotFound.
	FindMarkByClientRef(ctx context.Context, executionID, clientRef uuid.UUID) (*patrol.Mark, error)
	// InsertMark appends one confirmed scan.
	InsertMark(ctx context.Context, mark *patrol.Mark) error
	// ListMarks returns the execution's marks in scan order. Reading them
	// inside the scope keeps the trust-score inputs consistent with the
	// locked execution row.
	ListMarks(ctx context.Context, executionID uuid.UUID) ([]*patrol.Mark, error)
}

// Store is the patrol persistence contract.
type Store interface {
	// RunInTx executes fn atomically against one execution.
	RunInTx(ctx context.Context, fn func(tx Tx) error) error

	// FindTemplate loads a route template with its ordered checkpoints.
	FindTemplate(ctx context.Context, id uuid.UUID) (*patrol.Template, error)

	// FindExecution is the read-only lookup used outside a write scope.
	FindExecution(ctx context.Context, id uuid.UUID) (*patrol.Execution, error)

	// ListPending returns non-terminal executions scheduled at the
	// installation on the calendar day, ordered by scheduled time.
	ListPending(ctx context.Context, installationID uuid.UUID, day time.Time) ([]*patrol.Execution, error)

	// ListMarks returns an execution's marks in scan order.
	ListMarks(ctx context.Context, executionID uuid.UUID) ([]*patrol.Mark, error)

	// InsertAlert persists a panic alert. Alerts live outside the execution
	// write scope; raising one never touches execution state.
	InsertAlert(ctx context.Context, alert *patrol.Alert) error

	// ListAlerts returns a tenant's panic alerts raised in [from, to).
	ListAlerts(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]*patrol.Alert, error)

	// ListFinalized returns executions that reached a terminal state with
	// ScheduledFor in [from, to). Read by the KPI aggregator.
	ListFinalized(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]*patrol.Execution, error)
}
