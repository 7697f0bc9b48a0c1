package identity

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"vigil/pkg/platform/sentinel"
)

// MemoryDirectory is an in-memory directory for single-node deployments and
// tests. It implements GuardDirectory, InstallationDirectory and
// ScheduleDirectory.
type MemoryDirectory struct {
	mu            sync.RWMutex
	guards        map[uuid.UUID]*Guard
	installations map[uuid.UUID]*Installation
	assignments   map[string]struct{} // guardID|installationID|day
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		guards:        make(map[uuid.UUID]*Guard),
		installations: make(map[uuid.UUID]*Installation),
		assignments:   make(map[string]struct{}),
	}
}

// PutGuard seeds or replaces a guard record.
func (d *MemoryDirectory) PutGuard(g *Guard) {
	d.mu.Lock()
	defer d.mu.Unlock()
	copied := *g
	d.guards[g.ID] = &copied
}

// PutInstallation seeds or replaces an installation record.
func (d *MemoryDirectory) PutInstallation(i *Installation) {
	d.mu.Lock()
	defer d.mu.Unlock()
	copied := *i
	d.installations[i.ID] = &copied
}

// Assign marks a guard as scheduled at an installation on a calendar day.
func (d *MemoryDirectory) Assign(guardID, installationID uuid.UUID, day time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.assignments[assignmentKey(guardID, installationID, day)] = struct{}{}
}

func (d *MemoryDirectory) FindByNationalID(ctx context.Context, tenantID uuid.UUID, nationalID string) (*Guard, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, g := range d.guards {
		if g.TenantID == tenantID && g.NationalID == nationalID {
			copied := *g
			return &copied, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (d *MemoryDirectory) FindBySiteCode(ctx context.Context, siteCode string) (*Installation, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, i := range d.installations {
		if i.SiteCode == siteCode && i.Active {
			copied := *i
			return &copied, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (d *MemoryDirectory) HasAssignment(ctx context.Context, guardID, installationID uuid.UUID, day time.Time) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.assignments[assignmentKey(guardID, installationID, day)]
	return ok, nil
}

func assignmentKey(guardID, installationID uuid.UUID, day time.Time) string {
	return guardID.String() + "|" + installationID.String() + "|" + day.Format("2006-01-02")
}
