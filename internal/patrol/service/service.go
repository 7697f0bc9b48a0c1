// Package service implements the patrol verification server: credential
// checks, the execution state machine, idempotent checkpoint marks, trust
// scoring on completion, and panic alerts.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mssola/useragent"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"vigil/internal/identity"
	"vigil/internal/notify"
	"vigil/internal/patrol"
	patrolmetrics "vigil/internal/patrol/metrics"
	"vigil/internal/patrol/store"
	"vigil/internal/platform/config"
	"vigil/internal/ratelimit"
	dErrors "vigil/pkg/domain-errors"
	"vigil/pkg/natid"
	"vigil/pkg/platform/sentinel"
	"vigil/pkg/requestcontext"
)

// Credentials authenticate one call. The patrol surface is credential-per-
// call; there is no session.
type Credentials struct {
	SiteCode   string
	NationalID string
	PIN        string
}

// Session is the resolved identity behind a successful credential check.
type Session struct {
	GuardID          uuid.UUID
	GuardName        string
	TenantID         uuid.UUID
	InstallationID   uuid.UUID
	InstallationName string
}

// PendingExecution is one selectable patrol on the pending list.
type PendingExecution struct {
	ID              uuid.UUID
	TemplateID      uuid.UUID
	TemplateName    string
	ScheduledFor    time.Time
	State           patrol.ExecutionState
	MarksRecorded   int
	CheckpointTotal int
}

// StartInput carries the device snapshot recorded when an execution starts.
type StartInput struct {
	ExecutionID  uuid.UUID
	UserAgent    string
	BatteryLevel float64
}

// StartResult acknowledges the pending -> in_progress transition.
type StartResult struct {
	ExecutionID     uuid.UUID
	State           patrol.ExecutionState
	StartedAt       time.Time
	DeviceName      string
	CheckpointTotal int
}

// MarkInput is one checkpoint scan after transport decoding.
type MarkInput struct {
	ExecutionID    uuid.UUID
	CheckpointCode string
	Lat            float64
	Lng            float64
	BatteryLevel   float64
	MotionScore    float64
	// ClientRef is the edge client's idempotency key. A replayed submission
	// with a known ref is acknowledged without being counted again.
	ClientRef uuid.UUID
}

// MarkReceipt acknowledges a scan. Duplicate is set when the submission was
// a replay of an already-counted mark.
type MarkReceipt struct {
	MarkID          uuid.UUID
	Timestamp       time.Time
	MarksRecorded   int
	CheckpointTotal int
	Duplicate       bool
}

// CompletionResult is the terminal outcome of an execution.
type CompletionResult struct {
	ExecutionID     uuid.UUID
	State           patrol.ExecutionState
	CompletionRatio float64
	TrustScore      float64
	Breakdown       patrol.Breakdown
}

// PanicInput reports the guard's coordinates at the moment of the alert.
type PanicInput struct {
	ExecutionID uuid.UUID
	Lat         float64
	Lng         float64
}

// AlertAck confirms a panic alert was recorded.
type AlertAck struct {
	AlertID  uuid.UUID
	RaisedAt time.Time
}

// Service is the patrol verification server.
type Service struct {
	installations identity.InstallationDirectory
	guards        identity.GuardDirectory
	store         store.Store
	trust         config.TrustConfig

	dispatcher notify.Dispatcher
	lockout    *ratelimit.Lockout
	logger     *slog.Logger
	metrics    *patrolmetrics.Metrics
	tracer     trace.Tracer
}

// Option configures the Service.
type Option func(*Service)

// WithDispatcher sets the best-effort alert dispatcher.
func WithDispatcher(d notify.Dispatcher) Option {
	return func(s *Service) { s.dispatcher = d }
}

// WithLockout enables failed-PIN lockout on the credential pipeline.
func WithLockout(l *ratelimit.Lockout) Option {
	return func(s *Service) { s.lockout = l }
}

// WithMetrics sets the patrol metrics.
func WithMetrics(m *patrolmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(
	installations identity.InstallationDirectory,
	guards identity.GuardDirectory,
	st store.Store,
	trust config.TrustConfig,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		installations: installations,
		guards:        guards,
		store:         st,
		trust:         trust,
		logger:        logger,
		tracer:        otel.Tracer("vigil/patrol"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authenticate verifies field credentials against a site and returns the
// resolved guard session.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (*Session, error) {
	guard, installation, err := s.authenticate(ctx, creds)
	if err != nil {
		return nil, err
	}
	return &Session{
		GuardID:          guard.ID,
		GuardName:        guard.DisplayName(),
		TenantID:         installation.TenantID,
		InstallationID:   installation.ID,
		InstallationName: installation.Name,
	}, nil
}

// ListPending returns today's non-terminal executions at the credentialed
// site, restricted to the guard when an execution names one.
func (s *Service) ListPending(ctx context.Context, creds Credentials) ([]PendingExecution, error) {
	guard, installation, err := s.authenticate(ctx, creds)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx).UTC()
	execs, err := s.store.ListPending(ctx, installation.ID, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list pending executions")
	}

	out := make([]PendingExecution, 0, len(execs))
	for _, exec := range execs {
		if exec.GuardID != uuid.Nil && exec.GuardID != guard.ID {
			continue
		}
		pe := PendingExecution{
			ID:              exec.ID,
			TemplateID:      exec.TemplateID,
			ScheduledFor:    exec.ScheduledFor,
			State:           exec.State,
			MarksRecorded:   exec.MarksRecorded,
			CheckpointTotal: exec.CheckpointTotal,
		}
		if tmpl, err := s.store.FindTemplate(ctx, exec.TemplateID); err == nil {
			pe.TemplateName = tmpl.Name
		}
		out = append(out, pe)
	}
	return out, nil
}

// Start transitions a pending execution to in_progress and records the
// device snapshot.
func (s *Service) Start(ctx context.Context, in StartInput) (*StartResult, error) {
	ctx, span := s.tracer.Start(ctx, "patrol.Start")
	defer span.End()

	if in.ExecutionID == uuid.Nil {
		return nil, dErrors.New(dErrors.CodeValidation, "execution id is required")
	}
	if in.BatteryLevel < 0 || in.BatteryLevel > 100 {
		return nil, dErrors.New(dErrors.CodeValidation, "battery level out of range")
	}

	now := requestcontext.Now(ctx).UTC()
	device := &patrol.DeviceSnapshot{
		UserAgent:    in.UserAgent,
		DisplayName:  deviceDisplayName(in.UserAgent),
		BatteryLevel: in.BatteryLevel,
	}

	var result *StartResult
	err := s.store.RunInTx(ctx, func(tx store.Tx) error {
		exec, err := s.loadExecution(ctx, tx, in.ExecutionID)
		if err != nil {
			return err
		}
		switch {
		case exec.State.Terminal():
			return dErrors.New(dErrors.CodeConflict, "execution is already finalized")
		case exec.State == patrol.StateInProgress:
			return dErrors.New(dErrors.CodeConflict, "execution is already started")
		}

		exec.State = patrol.StateInProgress
		exec.StartedAt = &now
		exec.Device = device
		if err := tx.SaveExecution(ctx, exec); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "save execution")
		}
		result = &StartResult{
			ExecutionID:     exec.ID,
			State:           exec.State,
			StartedAt:       now,
			DeviceName:      device.DisplayName,
			CheckpointTotal: exec.CheckpointTotal,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "patrol started",
		"execution_id", result.ExecutionID,
		"device", result.DeviceName,
	)
	return result, nil
}

// MarkCheckpoint appends one scan to an in-progress execution. The client
// ref makes the operation idempotent: a replay is acknowledged with the
// original mark and no counter change.
func (s *Service) MarkCheckpoint(ctx context.Context, in MarkInput) (*MarkReceipt, error) {
	ctx, span := s.tracer.Start(ctx, "patrol.MarkCheckpoint")
	defer span.End()

	if in.ExecutionID == uuid.Nil {
		return nil, dErrors.New(dErrors.CodeValidation, "execution id is required")
	}
	if in.CheckpointCode == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "checkpoint code is required")
	}
	if in.Lat < -90 || in.Lat > 90 || in.Lng < -180 || in.Lng > 180 {
		return nil, dErrors.New(dErrors.CodeValidation, "coordinates out of range")
	}
	if in.BatteryLevel < 0 || in.BatteryLevel > 100 {
		return nil, dErrors.New(dErrors.CodeValidation, "battery level out of range")
	}
	if in.MotionScore < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "motion score out of range")
	}
	if in.ClientRef == uuid.Nil {
		in.ClientRef = uuid.New()
	}

	now := requestcontext.Now(ctx).UTC()

	var receipt *MarkReceipt
	err := s.store.RunInTx(ctx, func(tx store.Tx) error {
		exec, err := s.loadExecution(ctx, tx, in.ExecutionID)
		if err != nil {
			return err
		}
		if exec.State != patrol.StateInProgress {
			return dErrors.Newf(dErrors.CodeConflict, "execution is %s, marks require in_progress", exec.State)
		}

		// Replay detection before any other check: a mark that was already
		// accepted must be acknowledged even if the patrol has since filled
		// its counter.
		if prior, err := tx.FindMarkByClientRef(ctx, exec.ID, in.ClientRef); err == nil {
			receipt = &MarkReceipt{
				MarkID:          prior.ID,
				Timestamp:       prior.Timestamp,
				MarksRecorded:   exec.MarksRecorded,
				CheckpointTotal: exec.CheckpointTotal,
				Duplicate:       true,
			}
			return nil
		} else if !errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "check mark replay")
		}

		tmpl, err := s.store.FindTemplate(ctx, exec.TemplateID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "load route template")
		}
		if _, ok := tmpl.CheckpointByCode(in.CheckpointCode); !ok {
			return dErrors.Newf(dErrors.CodeNotFound, "checkpoint %s is not on this route", in.CheckpointCode)
		}

		if exec.MarksRecorded >= exec.CheckpointTotal {
			return dErrors.New(dErrors.CodeConflict, "all checkpoints already recorded")
		}

		mark := &patrol.Mark{
			ID:             uuid.New(),
			ExecutionID:    exec.ID,
			ClientRef:      in.ClientRef,
			CheckpointCode: in.CheckpointCode,
			Timestamp:      now,
			Lat:            in.Lat,
			Lng:            in.Lng,
			BatteryLevel:   in.BatteryLevel,
			MotionScore:    in.MotionScore,
		}
		if err := tx.InsertMark(ctx, mark); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "persist mark")
		}
		exec.MarksRecorded++
		if err := tx.SaveExecution(ctx, exec); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "save execution")
		}

		receipt = &MarkReceipt{
			MarkID:          mark.ID,
			Timestamp:       mark.Timestamp,
			MarksRecorded:   exec.MarksRecorded,
			CheckpointTotal: exec.CheckpointTotal,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if receipt.Duplicate {
		s.metrics.IncMarkDuplicate()
	} else {
		s.metrics.IncMarkRecorded()
	}
	return receipt, nil
}

// Complete finalizes an in-progress execution: computes the completion
// ratio and trust score and sets the terminal state. The state is terminal
// afterward; further marks are rejected.
func (s *Service) Complete(ctx context.Context, executionID uuid.UUID) (*CompletionResult, error) {
	ctx, span := s.tracer.Start(ctx, "patrol.Complete")
	defer span.End()

	if executionID == uuid.Nil {
		return nil, dErrors.New(dErrors.CodeValidation, "execution id is required")
	}

	now := requestcontext.Now(ctx).UTC()

	var result *CompletionResult
	err := s.store.RunInTx(ctx, func(tx store.Tx) error {
		exec, err := s.loadExecution(ctx, tx, executionID)
		if err != nil {
			return err
		}
		if exec.State != patrol.StateInProgress {
			return dErrors.Newf(dErrors.CodeConflict, "execution is %s, completion requires in_progress", exec.State)
		}

		tmpl, err := s.store.FindTemplate(ctx, exec.TemplateID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "load route template")
		}
		marks, err := tx.ListMarks(ctx, exec.ID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "load marks")
		}

		samples := make([]patrol.Mark, len(marks))
		for i, m := range marks {
			samples[i] = *m
		}

		ratio := exec.CompletionRatio()
		score, breakdown := patrol.TrustScore(s.trust, exec, tmpl, samples)
		exec.State = patrol.FinalState(s.trust, ratio, score)
		exec.CompletedAt = &now
		exec.TrustScore = &score
		if err := tx.SaveExecution(ctx, exec); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "save execution")
		}

		result = &CompletionResult{
			ExecutionID:     exec.ID,
			State:           exec.State,
			CompletionRatio: ratio,
			TrustScore:      score,
			Breakdown:       breakdown,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncFinalized(string(result.State))
	if result.State == patrol.StateSuspicious {
		s.logger.WarnContext(ctx, "patrol finalized as suspicious",
			"execution_id", result.ExecutionID,
			"trust_score", result.TrustScore,
			"completion_ratio", result.CompletionRatio,
		)
	}
	return result, nil
}

// Panic records an alert with the guard's coordinates and notifies
// operators. Always accepted while the execution exists, terminal or not;
// never mutates execution state.
func (s *Service) Panic(ctx context.Context, in PanicInput) (*AlertAck, error) {
	if in.ExecutionID == uuid.Nil {
		return nil, dErrors.New(dErrors.CodeValidation, "execution id is required")
	}
	if in.Lat < -90 || in.Lat > 90 || in.Lng < -180 || in.Lng > 180 {
		return nil, dErrors.New(dErrors.CodeValidation, "coordinates out of range")
	}

	exec, err := s.store.FindExecution(ctx, in.ExecutionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "unknown execution")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "find execution")
	}

	alert := &patrol.Alert{
		ID:             uuid.New(),
		TenantID:       exec.TenantID,
		ExecutionID:    exec.ID,
		InstallationID: exec.InstallationID,
		GuardID:        exec.GuardID,
		Lat:         in.Lat,
		Lng:         in.Lng,
		RaisedAt:    requestcontext.Now(ctx).UTC(),
	}
	if err := s.store.InsertAlert(ctx, alert); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist panic alert")
	}

	s.metrics.IncPanicAlert()
	if s.dispatcher != nil {
		s.dispatcher.Submit(notify.Event{
			Kind:       notify.KindPanicAlert,
			TenantID:   alert.TenantID,
			OccurredAt: alert.RaisedAt,
			Payload: map[string]any{
				"alert_id":     alert.ID.String(),
				"execution_id": alert.ExecutionID.String(),
				"guard_id":     alert.GuardID.String(),
				"lat":          alert.Lat,
				"lng":          alert.Lng,
			},
		})
	}
	s.logger.WarnContext(ctx, "panic alert raised",
		"alert_id", alert.ID,
		"execution_id", alert.ExecutionID,
	)
	return &AlertAck{AlertID: alert.ID, RaisedAt: alert.RaisedAt}, nil
}

// authenticate shares the credential pipeline across patrol operations.
func (s *Service) authenticate(ctx context.Context, creds Credentials) (*identity.Guard, *identity.Installation, error) {
	if !natid.Valid(creds.NationalID) {
		return nil, nil, dErrors.New(dErrors.CodeValidation, "malformed national id")
	}
	if creds.SiteCode == "" {
		return nil, nil, dErrors.New(dErrors.CodeValidation, "site code is required")
	}

	installation, err := s.installations.FindBySiteCode(ctx, creds.SiteCode)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil, dErrors.New(dErrors.CodeNotFound, "unknown or inactive site code")
		}
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "resolve installation")
	}

	normalized := natid.Normalize(creds.NationalID)
	if err := s.lockout.Check(ctx, installation.TenantID, normalized); err != nil {
		return nil, nil, err
	}

	guard, err := s.guards.FindByNationalID(ctx, installation.TenantID, normalized)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil, dErrors.New(dErrors.CodeUnauthorized, "unknown credentials")
		}
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "resolve guard")
	}

	if guard.Status == identity.StatusBlacklisted {
		return nil, nil, dErrors.New(dErrors.CodeForbidden, "guard is blacklisted")
	}
	if !guard.ActiveEligible() {
		return nil, nil, dErrors.New(dErrors.CodeForbidden, "guard is not active")
	}
	if !guard.HasPIN() {
		return nil, nil, dErrors.New(dErrors.CodeForbidden, "no PIN configured for guard")
	}
	if !guard.VerifyPIN(creds.PIN) {
		s.lockout.RecordFailure(ctx, installation.TenantID, normalized)
		return nil, nil, dErrors.New(dErrors.CodeUnauthorized, "invalid PIN")
	}
	s.lockout.Reset(ctx, installation.TenantID, normalized)
	return guard, installation, nil
}

func (s *Service) loadExecution(ctx context.Context, tx store.Tx, id uuid.UUID) (*patrol.Execution, error) {
	exec, err := tx.FindExecutionForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "unknown execution")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "find execution")
	}
	return exec, nil
}

// deviceDisplayName renders the operator-facing device summary from the raw
// user agent.
func deviceDisplayName(raw string) string {
	if raw == "" {
		return "unknown device"
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	os := ua.OSInfo().Name
	switch {
	case name == "" && os == "":
		return "unknown device"
	case name == "":
		return os
	case os == "":
		return fmt.Sprintf("%s %s", name, version)
	default:
		return fmt.Sprintf("%s %s on %s", name, version, os)
	}
}
