package identity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// GuardStatus is the HR lifecycle state of a guard.
type GuardStatus string

const (
	StatusApplicant   GuardStatus = "applicant"
	StatusSelected    GuardStatus = "selected"
	StatusHired       GuardStatus = "hired"
	StatusTerminated  GuardStatus = "terminated"
	StatusBlacklisted GuardStatus = "blacklisted"
)

// Guard is a tenant-scoped field worker. Owned by the HR system; this core
// only reads it to authenticate submissions.
type Guard struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	NationalID string // normalized, no dots or dash
	FirstName  string
	LastName   string
	Status     GuardStatus
	PINHash    []byte // bcrypt; empty when no PIN has been issued
	CreatedAt  time.Time
}

// DisplayName is the name shown on clock-event receipts.
func (g *Guard) DisplayName() string {
	if g.FirstName == "" {
		return g.LastName
	}
	if g.LastName == "" {
		return g.FirstName
	}
	return fmt.Sprintf("%s %s", g.FirstName, g.LastName)
}

// ActiveEligible reports whether the guard may clock in or run patrols.
// Only hired guards are eligible; blacklisted guards are rejected even if a
// stale status transition left them hired elsewhere.
func (g *Guard) ActiveEligible() bool {
	return g.Status == StatusHired
}

// HasPIN reports whether a PIN has been provisioned.
func (g *Guard) HasPIN() bool {
	return len(g.PINHash) > 0
}

// VerifyPIN checks the submitted PIN against the stored bcrypt hash.
func (g *Guard) VerifyPIN(pin string) bool {
	if !g.HasPIN() {
		return false
	}
	return bcrypt.CompareHashAndPassword(g.PINHash, []byte(pin)) == nil
}

// HashPIN produces the bcrypt hash stored on a guard. Exposed for seeds and
// tests; production hashes are written by the HR system.
func HashPIN(pin string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
}

// Geofence is a circular on-site boundary.
type Geofence struct {
	Lat          float64
	Lng          float64
	RadiusMeters float64
}

// Installation is a tenant-scoped site guards report to.
type Installation struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	Name     string
	// SiteCode is the rotating access code guards key in. Opaque here; the
	// rotation schedule is owned by operations.
	SiteCode string
	Active   bool
	// Geofence is nil when the site has no surveyed center; submissions are
	// then accepted unvalidated.
	Geofence *Geofence
	// ShiftStart is the local "15:04" shift start used for lateness, empty
	// when the site has no fixed shift.
	ShiftStart string
}

// ShiftStartOn resolves ShiftStart against a calendar day, in the day's
// location. Returns false when the site has no fixed shift.
func (i *Installation) ShiftStartOn(day time.Time) (time.Time, bool) {
	if i.ShiftStart == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("15:04", i.ShiftStart)
	if err != nil {
		return time.Time{}, false
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, day.Location()), true
}
