package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// GuardDirectory resolves guards. Implemented over the HR system's tables;
// this core never writes guards.
type GuardDirectory interface {
	// FindByNationalID resolves a guard by normalized national ID within a
	// tenant. Returns sentinel.ErrNotFound when absent.
	FindByNationalID(ctx context.Context, tenantID uuid.UUID, nationalID string) (*Guard, error)
}

// InstallationDirectory resolves installations.
type InstallationDirectory interface {
	// FindBySiteCode resolves an installation by its current rotating site
	// code. Returns sentinel.ErrNotFound when no active installation carries
	// the code.
	FindBySiteCode(ctx context.Context, siteCode string) (*Installation, error)
}

// ScheduleDirectory answers whether a guard is assigned to a site on a day.
// Roster generation is out of scope; this is a pure read.
type ScheduleDirectory interface {
	HasAssignment(ctx context.Context, guardID, installationID uuid.UUID, day time.Time) (bool, error)
}
