package kpi

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"vigil/internal/attendance"
	"vigil/internal/patrol"
	dErrors "vigil/pkg/domain-errors"
)

type fakeAttendanceSource struct {
	rows   []*attendance.DailyAttendance
	events []*attendance.ClockEvent
}

func (f *fakeAttendanceSource) ListAttendance(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]*attendance.DailyAttendance, error) {
	return f.rows, nil
}

func (f *fakeAttendanceSource) ListEvents(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]*attendance.ClockEvent, error) {
	return f.events, nil
}

type fakePatrolSource struct {
	execs     []*patrol.Execution
	marks     map[uuid.UUID][]*patrol.Mark
	templates map[uuid.UUID]*patrol.Template
	alerts    []*patrol.Alert
}

func (f *fakePatrolSource) ListFinalized(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]*patrol.Execution, error) {
	return f.execs, nil
}

func (f *fakePatrolSource) ListMarks(ctx context.Context, executionID uuid.UUID) ([]*patrol.Mark, error) {
	return f.marks[executionID], nil
}

func (f *fakePatrolSource) FindTemplate(ctx context.Context, id uuid.UUID) (*patrol.Template, error) {
	return f.templates[id], nil
}

func (f *fakePatrolSource) ListAlerts(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]*patrol.Alert, error) {
	return f.alerts, nil
}

type KPIServiceSuite struct {
	suite.Suite
	attendance *fakeAttendanceSource
	patrols    *fakePatrolSource
	service    *Service
	tenantID   uuid.UUID
	from       time.Time
	to         time.Time
}

func TestKPIServiceSuite(t *testing.T) {
	suite.Run(t, new(KPIServiceSuite))
}

func (s *KPIServiceSuite) SetupTest() {
	s.attendance = &fakeAttendanceSource{}
	s.patrols = &fakePatrolSource{
		marks:     make(map[uuid.UUID][]*patrol.Mark),
		templates: make(map[uuid.UUID]*patrol.Template),
	}
	s.service = NewService(s.attendance, s.patrols, slog.New(slog.DiscardHandler))
	s.tenantID = uuid.New()
	s.from = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s.to = time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
}

func (s *KPIServiceSuite) aggregate() *Aggregate {
	agg, err := s.service.Aggregate(context.Background(), s.tenantID, s.from, s.to)
	s.Require().NoError(err)
	return agg
}

func (s *KPIServiceSuite) TestAggregateRejectsEmptyWindow() {
	_, err := s.service.Aggregate(context.Background(), s.tenantID, s.from, s.from)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *KPIServiceSuite) TestAttendanceRowsBecomeScheduledShifts() {
	installationID := uuid.New()
	checkIn := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	s.attendance.rows = []*attendance.DailyAttendance{
		{
			InstallationID: installationID,
			Day:            time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
			Status:         attendance.AttendancePresent,
			CheckInAt:      &checkIn,
		},
		{
			InstallationID: installationID,
			Day:            time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC),
			Status:         attendance.AttendanceAbsent,
		},
	}

	agg := s.aggregate()
	s.Equal(2, agg.Global.Scheduled)
	s.Equal(1, agg.Global.Completed)
	s.Equal(50.0, agg.Global.CompliancePct)
	s.Equal(1, agg.Global.Alerts)
}

func (s *KPIServiceSuite) TestEntryLatenessFeedsDeviations() {
	installationID := uuid.New()
	lateness := 12
	s.attendance.events = []*attendance.ClockEvent{
		{
			InstallationID:  installationID,
			Type:            attendance.EventEntry,
			Timestamp:       time.Date(2026, 3, 10, 8, 12, 0, 0, time.UTC),
			LatenessMinutes: &lateness,
		},
	}

	agg := s.aggregate()
	s.Require().Len(agg.Installations, 1)
	s.InDelta(12.0, agg.Installations[0].AvgDeviationMin, 1e-9)
}

func (s *KPIServiceSuite) TestFinalizedPatrolsMapToIncidents() {
	installationID := uuid.New()
	scheduled := time.Date(2026, 3, 10, 22, 0, 0, 0, time.UTC)
	s.patrols.execs = []*patrol.Execution{
		{
			ID:              uuid.New(),
			InstallationID:  installationID,
			ScheduledFor:    scheduled,
			State:           patrol.StateSuspicious,
			CheckpointTotal: 5,
			MarksRecorded:   5,
		},
		{
			ID:              uuid.New(),
			InstallationID:  installationID,
			ScheduledFor:    scheduled,
			State:           patrol.StatePartial,
			CheckpointTotal: 5,
			MarksRecorded:   3,
		},
	}

	agg := s.aggregate()
	s.Require().Len(agg.Installations, 1)
	s.Equal(1, agg.Installations[0].CriticalIncidents)
	s.Equal(1, agg.Installations[0].NoveltyIncidents)
	s.Equal(10, agg.Global.Scheduled)
	s.Equal(8, agg.Global.Completed)
}

func (s *KPIServiceSuite) TestMarkTimingFeedsDeviations() {
	installationID := uuid.New()
	started := time.Date(2026, 3, 10, 22, 0, 0, 0, time.UTC)
	tmpl := &patrol.Template{
		ID: uuid.New(),
		Checkpoints: []patrol.Checkpoint{
			{Code: "CP-1", ExpectedOffset: 10 * time.Minute},
		},
	}
	s.patrols.templates[tmpl.ID] = tmpl

	execID := uuid.New()
	s.patrols.execs = []*patrol.Execution{
		{
			ID:              execID,
			InstallationID:  installationID,
			TemplateID:      tmpl.ID,
			ScheduledFor:    started,
			StartedAt:       &started,
			State:           patrol.StateCompleted,
			CheckpointTotal: 1,
			MarksRecorded:   1,
		},
	}
	s.patrols.marks[execID] = []*patrol.Mark{
		{CheckpointCode: "CP-1", Timestamp: started.Add(18 * time.Minute)},
	}

	agg := s.aggregate()
	s.Require().Len(agg.Installations, 1)
	s.InDelta(8.0, agg.Installations[0].AvgDeviationMin, 1e-9)
}

func (s *KPIServiceSuite) TestPanicAlertsCountAsCritical() {
	installationID := uuid.New()
	s.patrols.alerts = []*patrol.Alert{
		{
			ID:             uuid.New(),
			InstallationID: installationID,
			RaisedAt:       time.Date(2026, 3, 15, 3, 0, 0, 0, time.UTC),
		},
	}

	agg := s.aggregate()
	s.Require().Len(agg.Installations, 1)
	s.Equal(installationID, agg.Installations[0].InstallationID)
	s.Equal(1, agg.Installations[0].CriticalIncidents)
	s.Equal(1, agg.Global.CriticalIncidents)
}

func (s *KPIServiceSuite) TestSnapshotWindowBounds() {
	// 2026-03-10 is a Tuesday.
	base := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	snap, err := s.service.Snapshot(context.Background(), s.tenantID, base)
	s.Require().NoError(err)

	day := func(m time.Month, d int) time.Time {
		return time.Date(2026, m, d, 0, 0, 0, 0, time.UTC)
	}

	s.Equal(day(3, 9), snap.Week.From)
	s.Equal(day(3, 11), snap.Week.To)
	s.Equal(day(3, 2), snap.Week.PriorFrom)
	s.Equal(day(3, 4), snap.Week.PriorTo)

	s.Equal(day(3, 1), snap.MonthToDate.From)
	s.Equal(day(3, 11), snap.MonthToDate.To)
	s.Equal(day(2, 1), snap.MonthToDate.PriorFrom)
	s.Equal(day(2, 11), snap.MonthToDate.PriorTo)

	s.Equal(day(1, 1), snap.YearToDate.From)
	s.Equal(day(3, 11), snap.YearToDate.To)
	s.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), snap.YearToDate.PriorFrom)
	s.Equal(time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC), snap.YearToDate.PriorTo)
}

func (s *KPIServiceSuite) TestSnapshotClampsShortPriorMonth() {
	base := time.Date(2026, 3, 31, 9, 0, 0, 0, time.UTC)
	snap, err := s.service.Snapshot(context.Background(), s.tenantID, base)
	s.Require().NoError(err)

	// February 2026 has 28 days, so the prior window ends at its close.
	s.Equal(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), snap.MonthToDate.PriorFrom)
	s.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), snap.MonthToDate.PriorTo)
}

func (s *KPIServiceSuite) TestSnapshotDeltasAgainstPriorWeek() {
	installationID := uuid.New()
	row := func(d int, present bool) *attendance.DailyAttendance {
		r := &attendance.DailyAttendance{
			InstallationID: installationID,
			Day:            time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC),
		}
		if present {
			at := r.Day.Add(8 * time.Hour)
			r.CheckInAt = &at
		}
		return r
	}
	// Prior week (Mar 2-4): 2 of 2 covered. Current week (Mar 9-10): 1 of 2.
	s.attendance.rows = []*attendance.DailyAttendance{
		row(2, true), row(3, true),
		row(9, true), row(10, false),
	}

	base := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)
	snap, err := s.service.Snapshot(context.Background(), s.tenantID, base)
	s.Require().NoError(err)

	s.Equal(100.0, snap.Week.Prior.CompliancePct)
	s.Equal(50.0, snap.Week.Current.CompliancePct)
	s.InDelta(-50.0, snap.Week.Delta.CompliancePts, 1e-9)
	s.Equal(1, snap.Week.Delta.Omissions)
}
