// Package service implements the clock-event recorder: credential checks,
// the alternation and geofence invariants, the tamper-evident hash, and the
// transactional attendance update.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"vigil/internal/attendance"
	attmetrics "vigil/internal/attendance/metrics"
	"vigil/internal/attendance/store"
	"vigil/internal/identity"
	"vigil/internal/notify"
	"vigil/internal/ratelimit"
	dErrors "vigil/pkg/domain-errors"
	"vigil/pkg/geo"
	"vigil/pkg/natid"
	"vigil/pkg/platform/sentinel"
	"vigil/pkg/requestcontext"
)

// RegisterInput is a clock-event submission after transport decoding.
type RegisterInput struct {
	SiteCode         string
	NationalID       string
	PIN              string
	Type             string
	Lat              float64
	Lng              float64
	EvidencePhotoRef string
}

// Receipt is the success payload returned to the guard.
type Receipt struct {
	EventID           uuid.UUID
	Type              attendance.EventType
	Timestamp         time.Time
	GeofenceValidated bool
	DistanceMeters    *float64
	LatenessMinutes   *int
	GuardName         string
	InstallationName  string
	IntegrityHash     string
}

// Service is the clock-event recorder.
type Service struct {
	installations identity.InstallationDirectory
	guards        identity.GuardDirectory
	schedule      identity.ScheduleDirectory
	store         store.Store

	dispatcher notify.Dispatcher
	lockout    *ratelimit.Lockout
	logger     *slog.Logger
	metrics    *attmetrics.Metrics
	tracer     trace.Tracer
}

// Option configures the Service.
type Option func(*Service)

// WithDispatcher sets the best-effort receipt dispatcher.
func WithDispatcher(d notify.Dispatcher) Option {
	return func(s *Service) { s.dispatcher = d }
}

// WithLockout enables failed-PIN lockout on the credential pipeline.
func WithLockout(l *ratelimit.Lockout) Option {
	return func(s *Service) { s.lockout = l }
}

// WithMetrics sets the recorder metrics.
func WithMetrics(m *attmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(
	installations identity.InstallationDirectory,
	guards identity.GuardDirectory,
	schedule identity.ScheduleDirectory,
	st store.Store,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		installations: installations,
		guards:        guards,
		schedule:      schedule,
		store:         st,
		logger:        logger,
		tracer:        otel.Tracer("vigil/attendance"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterClockEvent validates, authenticates and persists one submission.
// On success the event and the daily-attendance update are committed
// together; on any failure nothing is persisted.
func (s *Service) RegisterClockEvent(ctx context.Context, in RegisterInput) (*Receipt, error) {
	ctx, span := s.tracer.Start(ctx, "attendance.RegisterClockEvent")
	defer span.End()

	receipt, err := s.registerClockEvent(ctx, in)
	if err != nil {
		s.metrics.IncRejected(string(dErrors.CodeOf(err)))
		return nil, err
	}
	s.metrics.IncAccepted(string(receipt.Type))
	return receipt, nil
}

func (s *Service) registerClockEvent(ctx context.Context, in RegisterInput) (*Receipt, error) {
	eventType, ok := attendance.ParseEventType(in.Type)
	if !ok {
		return nil, dErrors.New(dErrors.CodeValidation, "event type must be entry or exit")
	}
	if !natid.Valid(in.NationalID) {
		return nil, dErrors.New(dErrors.CodeValidation, "malformed national id")
	}
	if in.SiteCode == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "site code is required")
	}
	if in.Lat < -90 || in.Lat > 90 || in.Lng < -180 || in.Lng > 180 {
		return nil, dErrors.New(dErrors.CodeValidation, "coordinates out of range")
	}

	installation, err := s.installations.FindBySiteCode(ctx, in.SiteCode)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "unknown or inactive site code")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "resolve installation")
	}

	normalized := natid.Normalize(in.NationalID)
	if err := s.lockout.Check(ctx, installation.TenantID, normalized); err != nil {
		return nil, err
	}

	guard, err := s.guards.FindByNationalID(ctx, installation.TenantID, normalized)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "unknown credentials")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "resolve guard")
	}

	if guard.Status == identity.StatusBlacklisted {
		return nil, dErrors.New(dErrors.CodeForbidden, "guard is blacklisted")
	}
	if !guard.ActiveEligible() {
		return nil, dErrors.New(dErrors.CodeForbidden, "guard is not active")
	}

	if !guard.HasPIN() {
		return nil, dErrors.New(dErrors.CodeForbidden, "no PIN configured for guard")
	}
	if !guard.VerifyPIN(in.PIN) {
		s.lockout.RecordFailure(ctx, installation.TenantID, normalized)
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid PIN")
	}
	s.lockout.Reset(ctx, installation.TenantID, normalized)

	// Geofence: validated only when the site has a surveyed center. Never
	// silently bypassed when one is configured.
	geofenceValidated := false
	var distance *float64
	if fence := installation.Geofence; fence != nil {
		within, d := geo.WithinRadius(
			geo.Point{Lat: fence.Lat, Lng: fence.Lng},
			geo.Point{Lat: in.Lat, Lng: in.Lng},
			fence.RadiusMeters,
		)
		distance = &d
		if !within {
			s.metrics.IncGeofenceDenied()
			return nil, dErrors.New(dErrors.CodeForbidden, "submission outside installation geofence").
				WithDetails(map[string]any{
					"distance_meters": d,
					"radius_meters":   fence.RadiusMeters,
				})
		}
		geofenceValidated = true
	}

	now := requestcontext.Now(ctx).UTC()

	event := &attendance.ClockEvent{
		ID:                 uuid.New(),
		TenantID:           installation.TenantID,
		GuardID:            guard.ID,
		InstallationID:     installation.ID,
		Type:               eventType,
		Timestamp:          now,
		Lat:                in.Lat,
		Lng:                in.Lng,
		GeofenceValidated:  geofenceValidated,
		DistanceMeters:     distance,
		EvidencePhotoRef:   in.EvidencePhotoRef,
		VerificationMethod: attendance.VerificationMethodSiteCodePIN,
	}
	if eventType == attendance.EventEntry {
		if shiftStart, ok := installation.ShiftStartOn(now); ok {
			minutes := int(now.Sub(shiftStart).Minutes())
			if minutes < 0 {
				minutes = 0
			}
			event.LatenessMinutes = &minutes
		}
	}
	event.IntegrityHash = event.ComputeIntegrityHash()

	err = s.store.RunInTx(ctx, func(tx store.Tx) error {
		last, err := tx.LastEventOfDay(ctx, guard.ID, installation.ID, now)
		switch {
		case err == nil:
			if last.Type == eventType {
				return dErrors.Newf(dErrors.CodeConflict, "a %s was already recorded, events must alternate", eventType)
			}
		case errors.Is(err, sentinel.ErrNotFound):
			if eventType == attendance.EventExit {
				return dErrors.New(dErrors.CodeConflict, "cannot exit without a prior entry today")
			}
		default:
			return dErrors.Wrap(err, dErrors.CodeInternal, "load day chain")
		}

		if err := tx.InsertEvent(ctx, event); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "duplicate submission")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "persist clock event")
		}

		return s.applyToAttendance(ctx, tx, event)
	})
	if err != nil {
		return nil, err
	}

	s.dispatchReceipt(ctx, guard, installation, event)

	return &Receipt{
		EventID:           event.ID,
		Type:              event.Type,
		Timestamp:         event.Timestamp,
		GeofenceValidated: event.GeofenceValidated,
		DistanceMeters:    event.DistanceMeters,
		LatenessMinutes:   event.LatenessMinutes,
		GuardName:         guard.DisplayName(),
		InstallationName:  installation.Name,
		IntegrityHash:     event.IntegrityHash,
	}, nil
}

// applyToAttendance updates the guard's daily row when a schedule assignment
// exists. Runs inside the same transaction as the event insert.
func (s *Service) applyToAttendance(ctx context.Context, tx store.Tx, event *attendance.ClockEvent) error {
	scheduled, err := s.schedule.HasAssignment(ctx, event.GuardID, event.InstallationID, event.Timestamp)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "check schedule assignment")
	}
	if !scheduled {
		return nil
	}

	row, err := tx.FindAttendance(ctx, event.GuardID, event.InstallationID, event.Timestamp)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "load daily attendance")
		}
		row = &attendance.DailyAttendance{
			ID:             uuid.New(),
			TenantID:       event.TenantID,
			GuardID:        event.GuardID,
			InstallationID: event.InstallationID,
			Day:            attendance.DayOf(event.Timestamp),
			Status:         attendance.AttendancePending,
		}
	}

	ts := event.Timestamp
	switch event.Type {
	case attendance.EventEntry:
		if row.CheckInAt == nil {
			row.CheckInAt = &ts
			row.EntryEventID = &event.ID
		}
		if row.Status == attendance.AttendancePending {
			row.Status = attendance.AttendancePresent
		}
	case attendance.EventExit:
		row.CheckOutAt = &ts
		row.ExitEventID = &event.ID
	}
	row.UpdatedAt = ts

	if err := tx.SaveAttendance(ctx, row); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "save daily attendance")
	}
	return nil
}

// dispatchReceipt notifies the guard outside the transaction. Best-effort:
// never blocks and never fails the registration.
func (s *Service) dispatchReceipt(ctx context.Context, guard *identity.Guard, installation *identity.Installation, event *attendance.ClockEvent) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Submit(notify.Event{
		Kind:       notify.KindClockReceipt,
		TenantID:   event.TenantID,
		OccurredAt: event.Timestamp,
		Payload: map[string]any{
			"event_id":     event.ID.String(),
			"event_type":   string(event.Type),
			"guard":        guard.DisplayName(),
			"installation": installation.Name,
			"timestamp":    event.Timestamp.Format(time.RFC3339),
		},
	})
}
