// Package patrol holds the patrol-integrity domain model: route templates,
// execution state, checkpoint marks and panic alerts.
package patrol

import (
	"time"

	"github.com/google/uuid"
)

// ExecutionState is the lifecycle of one scheduled patrol instance.
//
//	pending -> in_progress -> {completed | partial | suspicious}
//
// All three end states are terminal; there is no way back.
type ExecutionState string

const (
	StatePending    ExecutionState = "pending"
	StateInProgress ExecutionState = "in_progress"
	StateCompleted  ExecutionState = "completed"
	StatePartial    ExecutionState = "partial"
	StateSuspicious ExecutionState = "suspicious"
)

// Terminal reports whether the state admits no further transitions.
func (s ExecutionState) Terminal() bool {
	switch s {
	case StateCompleted, StatePartial, StateSuspicious:
		return true
	}
	return false
}

// Checkpoint is one scannable point on a route, with the offset from patrol
// start at which the scan is expected.
type Checkpoint struct {
	Code           string
	Name           string
	ExpectedOffset time.Duration
}

// Template is the ordered checkpoint list for a site's patrol route.
type Template struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	InstallationID uuid.UUID
	Name           string
	Checkpoints    []Checkpoint
}

// CheckpointByCode returns the checkpoint with the given code, if any.
func (t *Template) CheckpointByCode(code string) (Checkpoint, bool) {
	for _, cp := range t.Checkpoints {
		if cp.Code == code {
			return cp, true
		}
	}
	return Checkpoint{}, false
}

// DeviceSnapshot is recorded when an execution starts. The raw user agent is
// kept for audit; DisplayName is the parsed browser/OS summary shown to
// operators.
type DeviceSnapshot struct {
	UserAgent    string
	DisplayName  string
	BatteryLevel float64
}

// Execution is one scheduled patrol instance moving through the state
// machine. MarksRecorded never exceeds the template's checkpoint count.
type Execution struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	InstallationID uuid.UUID
	GuardID        uuid.UUID
	TemplateID     uuid.UUID
	ScheduledFor   time.Time
	State          ExecutionState

	MarksRecorded   int
	CheckpointTotal int

	Device      *DeviceSnapshot
	StartedAt   *time.Time
	CompletedAt *time.Time
	// TrustScore is set on finalization, 0-100.
	TrustScore *float64
}

// CompletionRatio is marks recorded over the template's checkpoint count.
func (e *Execution) CompletionRatio() float64 {
	if e.CheckpointTotal == 0 {
		return 0
	}
	return float64(e.MarksRecorded) / float64(e.CheckpointTotal)
}

// Mark is one confirmed checkpoint scan. Append-only while the execution is
// in progress.
type Mark struct {
	ID          uuid.UUID
	ExecutionID uuid.UUID
	// ClientRef is the edge client's idempotency key. A retried submission
	// carrying a known ref is acknowledged without being counted again.
	ClientRef      uuid.UUID
	CheckpointCode string
	Timestamp      time.Time
	Lat            float64
	Lng            float64
	BatteryLevel   float64
	MotionScore    float64
}

// Alert is a persisted panic signal raised from the field. It never touches
// execution state.
type Alert struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	ExecutionID    uuid.UUID
	InstallationID uuid.UUID
	GuardID        uuid.UUID
	Lat            float64
	Lng            float64
	RaisedAt       time.Time
}

// CircularDeviation is the absolute distance between two offsets on a
// 24-hour circle, never larger than 12 hours. A mark scanned at 23:50
// against a 00:10 expectation deviates 20 minutes, not 23h40m.
func CircularDeviation(a, b time.Duration) time.Duration {
	const day = 24 * time.Hour
	d := (a - b) % day
	if d < 0 {
		d += day
	}
	if d > day/2 {
		d = day - d
	}
	return d
}
