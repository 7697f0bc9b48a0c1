package attendance

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventType distinguishes entries from exits. Events for a guard at an
// installation must strictly alternate within a calendar day.
type EventType string

const (
	EventEntry EventType = "entry"
	EventExit  EventType = "exit"
)

// ParseEventType validates a wire value.
func ParseEventType(raw string) (EventType, bool) {
	switch EventType(raw) {
	case EventEntry:
		return EventEntry, true
	case EventExit:
		return EventExit, true
	}
	return "", false
}

// VerificationMethodSiteCodePIN identifies the current capture mechanism in
// the integrity digest. New capture methods get new identifiers so old hashes
// stay reproducible.
const VerificationMethodSiteCodePIN = "site_code_pin"

// ClockEvent is one presence submission. Immutable once persisted: it is
// never updated or deleted by this core, and its integrity hash must always
// be reproducible from the persisted fields alone.
type ClockEvent struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	GuardID        uuid.UUID
	InstallationID uuid.UUID
	Type           EventType
	// Timestamp is the server clock at acceptance. Client-supplied times are
	// never trusted.
	Timestamp time.Time
	Lat       float64
	Lng       float64
	// GeofenceValidated is false when the installation has no surveyed
	// center; such events are accepted but flagged unvalidated.
	GeofenceValidated bool
	// DistanceMeters is the computed distance from the geofence center,
	// nil when no center is configured.
	DistanceMeters *float64
	// LatenessMinutes is set on entries at installations with a fixed shift
	// start, nil otherwise.
	LatenessMinutes *int
	// EvidencePhotoRef is an opaque reference to an externally stored photo,
	// never the payload itself.
	EvidencePhotoRef   string
	VerificationMethod string
	IntegrityHash      string
}

// ComputeIntegrityHash digests the canonical, order-fixed concatenation of
// the event's identity-bearing fields. Any recomputation from stored fields
// must reproduce the persisted hash exactly; a mismatch means the row was
// altered after the fact.
func (e *ClockEvent) ComputeIntegrityHash() string {
	parts := []string{
		e.GuardID.String(),
		e.InstallationID.String(),
		string(e.Type),
		e.Timestamp.UTC().Format(time.RFC3339),
		strconv.FormatFloat(e.Lat, 'f', -1, 64),
		strconv.FormatFloat(e.Lng, 'f', -1, 64),
		e.VerificationMethod,
		e.TenantID.String(),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// VerifyIntegrity reports whether the stored hash matches a recomputation.
func (e *ClockEvent) VerifyIntegrity() bool {
	return e.IntegrityHash == e.ComputeIntegrityHash()
}

// AttendanceStatus is the daily expected-vs-actual presence state.
type AttendanceStatus string

const (
	AttendancePending AttendanceStatus = "pending"
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
)

// DailyAttendance tracks one guard's expected presence at one installation
// for one calendar day. Created when a schedule exists for the day, then
// mutated by the recorder as matching events arrive.
type DailyAttendance struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	GuardID        uuid.UUID
	InstallationID uuid.UUID
	Day            time.Time // midnight, day's location
	Status         AttendanceStatus
	CheckInAt      *time.Time
	CheckOutAt     *time.Time
	// EntryEventID references the ClockEvent that satisfied the check-in.
	EntryEventID *uuid.UUID
	ExitEventID  *uuid.UUID
	UpdatedAt    time.Time
}

// DayOf truncates a timestamp to its calendar day, preserving location.
func DayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
