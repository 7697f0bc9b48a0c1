package kpi

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"vigil/internal/attendance"
	"vigil/internal/patrol"
	dErrors "vigil/pkg/domain-errors"
)

// AttendanceSource is the slice of the attendance store the aggregator
// reads.
type AttendanceSource interface {
	ListAttendance(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]*attendance.DailyAttendance, error)
	ListEvents(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]*attendance.ClockEvent, error)
}

// PatrolSource is the slice of the patrol store the aggregator reads.
type PatrolSource interface {
	ListFinalized(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]*patrol.Execution, error)
	ListMarks(ctx context.Context, executionID uuid.UUID) ([]*patrol.Mark, error)
	FindTemplate(ctx context.Context, id uuid.UUID) (*patrol.Template, error)
	ListAlerts(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]*patrol.Alert, error)
}

// Service computes aggregates and snapshots on demand. Read-only and
// stateless across calls.
type Service struct {
	attendance AttendanceSource
	patrols    PatrolSource
	logger     *slog.Logger
	tracer     trace.Tracer
}

func NewService(att AttendanceSource, pat PatrolSource, logger *slog.Logger) *Service {
	return &Service{
		attendance: att,
		patrols:    pat,
		logger:     logger,
		tracer:     otel.Tracer("vigil/kpi"),
	}
}

// Aggregate rolls up the tenant's finalized records for [from, to).
func (s *Service) Aggregate(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (*Aggregate, error) {
	ctx, span := s.tracer.Start(ctx, "kpi.Aggregate")
	defer span.End()

	if !from.Before(to) {
		return nil, dErrors.New(dErrors.CodeValidation, "from must precede to")
	}

	records, err := s.collectRecords(ctx, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	return Compute(from, to, records), nil
}

// Window pairs a horizon's current rollup with its equivalent prior period.
type Window struct {
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
	PriorFrom time.Time `json:"priorFrom"`
	PriorTo   time.Time `json:"priorTo"`
	Current   Global    `json:"current"`
	Prior     Global    `json:"prior"`
	Delta     Delta     `json:"delta"`
}

// Delta is the change between a window and its prior period.
type Delta struct {
	CompliancePts float64 `json:"compliancePts"`
	Omissions     int     `json:"omissions"`
	Alerts        int     `json:"alerts"`
}

// Snapshot is the three-horizon dashboard rollup.
type Snapshot struct {
	Base        time.Time `json:"baseDate"`
	Week        Window    `json:"week"`
	MonthToDate Window    `json:"monthToDate"`
	YearToDate  Window    `json:"yearToDate"`
}

// Snapshot aggregates the current ISO week, month-to-date and year-to-date
// through base, each beside its exactly-equivalent prior period. The six
// windows share no mutable state and run concurrently.
func (s *Service) Snapshot(ctx context.Context, tenantID uuid.UUID, base time.Time) (*Snapshot, error) {
	ctx, span := s.tracer.Start(ctx, "kpi.Snapshot")
	defer span.End()

	base = attendance.DayOf(base.UTC())
	snap := &Snapshot{Base: base}
	end := base.AddDate(0, 0, 1)

	weekFrom := isoWeekStart(base)
	snap.Week = Window{
		From: weekFrom, To: end,
		PriorFrom: weekFrom.AddDate(0, 0, -7), PriorTo: end.AddDate(0, 0, -7),
	}

	monthFrom := time.Date(base.Year(), base.Month(), 1, 0, 0, 0, 0, time.UTC)
	priorMonthFrom := monthFrom.AddDate(0, -1, 0)
	priorDay := base.Day()
	if last := daysInMonth(priorMonthFrom); priorDay > last {
		priorDay = last
	}
	snap.MonthToDate = Window{
		From: monthFrom, To: end,
		PriorFrom: priorMonthFrom, PriorTo: priorMonthFrom.AddDate(0, 0, priorDay),
	}

	yearFrom := time.Date(base.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	priorYearFrom := yearFrom.AddDate(-1, 0, 0)
	snap.YearToDate = Window{
		From: yearFrom, To: end,
		PriorFrom: priorYearFrom, PriorTo: priorYearFrom.AddDate(0, 0, base.YearDay()),
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range []*Window{&snap.Week, &snap.MonthToDate, &snap.YearToDate} {
		g.Go(func() error {
			agg, err := s.Aggregate(gctx, tenantID, w.From, w.To)
			if err != nil {
				return err
			}
			w.Current = agg.Global
			return nil
		})
		g.Go(func() error {
			agg, err := s.Aggregate(gctx, tenantID, w.PriorFrom, w.PriorTo)
			if err != nil {
				return err
			}
			w.Prior = agg.Global
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, w := range []*Window{&snap.Week, &snap.MonthToDate, &snap.YearToDate} {
		w.Delta = Delta{
			CompliancePts: w.Current.CompliancePct - w.Prior.CompliancePct,
			Omissions:     w.Current.Omitted - w.Prior.Omitted,
			Alerts:        w.Current.Alerts - w.Prior.Alerts,
		}
	}
	return snap, nil
}

// collectRecords reduces stored rows to aggregation records.
func (s *Service) collectRecords(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]Record, error) {
	var records []Record

	rows, err := s.attendance.ListAttendance(ctx, tenantID, from, to)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list attendance")
	}
	for _, row := range rows {
		rec := Record{
			InstallationID: row.InstallationID,
			Day:            attendance.DayOf(row.Day),
			Scheduled:      1,
		}
		if row.CheckInAt != nil {
			rec.Completed = 1
		}
		records = append(records, rec)
	}

	// Entry lateness feeds the deviation series.
	events, err := s.attendance.ListEvents(ctx, tenantID, from, to)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list clock events")
	}
	for _, ev := range events {
		if ev.LatenessMinutes == nil || *ev.LatenessMinutes == 0 {
			continue
		}
		records = append(records, Record{
			InstallationID: ev.InstallationID,
			Day:            attendance.DayOf(ev.Timestamp),
			Deviations:     []time.Duration{time.Duration(*ev.LatenessMinutes) * time.Minute},
		})
	}

	execs, err := s.patrols.ListFinalized(ctx, tenantID, from, to)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list finalized patrols")
	}
	templates := make(map[uuid.UUID]*patrol.Template)
	for _, exec := range execs {
		rec := Record{
			InstallationID: exec.InstallationID,
			Day:            attendance.DayOf(exec.ScheduledFor),
			Scheduled:      exec.CheckpointTotal,
			Completed:      exec.MarksRecorded,
		}
		switch exec.State {
		case patrol.StateSuspicious:
			rec.CriticalIncidents = 1
		case patrol.StatePartial:
			rec.NoveltyIncidents = 1
		}

		if exec.StartedAt != nil {
			tmpl, ok := templates[exec.TemplateID]
			if !ok {
				tmpl, err = s.patrols.FindTemplate(ctx, exec.TemplateID)
				if err != nil {
					return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load template")
				}
				templates[exec.TemplateID] = tmpl
			}
			marks, err := s.patrols.ListMarks(ctx, exec.ID)
			if err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list marks")
			}
			for _, m := range marks {
				cp, ok := tmpl.CheckpointByCode(m.CheckpointCode)
				if !ok {
					continue
				}
				rec.Deviations = append(rec.Deviations,
					patrol.CircularDeviation(m.Timestamp.Sub(*exec.StartedAt), cp.ExpectedOffset))
			}
		}
		records = append(records, rec)
	}

	alerts, err := s.patrols.ListAlerts(ctx, tenantID, from, to)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list panic alerts")
	}
	for _, a := range alerts {
		records = append(records, Record{
			InstallationID:    a.InstallationID,
			Day:               attendance.DayOf(a.RaisedAt),
			CriticalIncidents: 1,
		})
	}

	return records, nil
}

// isoWeekStart returns the Monday of base's ISO week.
func isoWeekStart(base time.Time) time.Time {
	offset := (int(base.Weekday()) + 6) % 7
	return attendance.DayOf(base).AddDate(0, 0, -offset)
}

func daysInMonth(monthStart time.Time) int {
	return monthStart.AddDate(0, 1, -1).Day()
}
