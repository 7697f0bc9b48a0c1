package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"vigil/internal/attendance"
	"vigil/pkg/platform/sentinel"
)

// PostgresStore persists clock events and daily attendance in PostgreSQL.
//
// Concurrency: RunInTx opens the boundary for the alternation invariant.
// LastEventOfDay takes a transaction-scoped advisory lock on the guard's day
// chain, so two concurrent submissions for the same guard/day serialize and
// the loser sees the winner's event.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type postgresTx struct {
	tx *sql.Tx
}

func (s *PostgresStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin attendance tx: %w", err)
	}
	if err := fn(&postgresTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit attendance tx: %w", err)
	}
	return nil
}

func (t *postgresTx) LastEventOfDay(ctx context.Context, guardID, installationID uuid.UUID, day time.Time) (*attendance.ClockEvent, error) {
	// An advisory lock on the guard/installation/day chain makes the
	// lookup-then-insert atomic even when no row exists yet to FOR UPDATE:
	// two concurrent first-entries of the day serialize here.
	const lockQ = `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`
	dayStart := attendance.DayOf(day)
	lockKey := guardID.String() + "|" + installationID.String() + "|" + dayStart.Format("2006-01-02")
	if _, err := t.tx.ExecContext(ctx, lockQ, lockKey); err != nil {
		return nil, fmt.Errorf("lock day chain: %w", err)
	}

	const q = `
		SELECT id, tenant_id, guard_id, installation_id, event_type, event_ts,
		       lat, lng, geofence_validated, distance_m, lateness_min,
		       evidence_photo_ref, verification_method, integrity_hash
		FROM clock_events
		WHERE guard_id = $1 AND installation_id = $2
		  AND event_ts >= $3 AND event_ts < $4
		ORDER BY event_ts DESC
		LIMIT 1`

	row := t.tx.QueryRowContext(ctx, q, guardID, installationID, dayStart, dayStart.AddDate(0, 0, 1))
	ev, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("last event of day: %w", err)
	}
	return ev, nil
}

func (t *postgresTx) InsertEvent(ctx context.Context, ev *attendance.ClockEvent) error {
	const q = `
		INSERT INTO clock_events (
			id, tenant_id, guard_id, installation_id, event_type, event_ts,
			lat, lng, geofence_validated, distance_m, lateness_min,
			evidence_photo_ref, verification_method, integrity_hash
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`

	_, err := t.tx.ExecContext(ctx, q,
		ev.ID, ev.TenantID, ev.GuardID, ev.InstallationID, ev.Type, ev.Timestamp,
		ev.Lat, ev.Lng, ev.GeofenceValidated, ev.DistanceMeters, ev.LatenessMinutes,
		nullString(ev.EvidencePhotoRef), ev.VerificationMethod, ev.IntegrityHash,
	)
	if err != nil {
		return fmt.Errorf("insert clock event: %w", err)
	}
	return nil
}

func (t *postgresTx) FindAttendance(ctx context.Context, guardID, installationID uuid.UUID, day time.Time) (*attendance.DailyAttendance, error) {
	const q = `
		SELECT id, tenant_id, guard_id, installation_id, day, status,
		       check_in_at, check_out_at, entry_event_id, exit_event_id, updated_at
		FROM daily_attendance
		WHERE guard_id = $1 AND installation_id = $2 AND day = $3
		FOR UPDATE`

	var row attendance.DailyAttendance
	err := t.tx.QueryRowContext(ctx, q, guardID, installationID, attendance.DayOf(day)).Scan(
		&row.ID, &row.TenantID, &row.GuardID, &row.InstallationID, &row.Day, &row.Status,
		&row.CheckInAt, &row.CheckOutAt, &row.EntryEventID, &row.ExitEventID, &row.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find daily attendance: %w", err)
	}
	return &row, nil
}

func (t *postgresTx) SaveAttendance(ctx context.Context, row *attendance.DailyAttendance) error {
	const q = `
		INSERT INTO daily_attendance (
			id, tenant_id, guard_id, installation_id, day, status,
			check_in_at, check_out_at, entry_event_id, exit_event_id, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (guard_id, installation_id, day) DO UPDATE SET
			status = EXCLUDED.status,
			check_in_at = EXCLUDED.check_in_at,
			check_out_at = EXCLUDED.check_out_at,
			entry_event_id = EXCLUDED.entry_event_id,
			exit_event_id = EXCLUDED.exit_event_id,
			updated_at = EXCLUDED.updated_at`

	_, err := t.tx.ExecContext(ctx, q,
		row.ID, row.TenantID, row.GuardID, row.InstallationID, attendance.DayOf(row.Day), row.Status,
		row.CheckInAt, row.CheckOutAt, row.EntryEventID, row.ExitEventID, row.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save daily attendance: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListEvents(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]*attendance.ClockEvent, error) {
	const q = `
		SELECT id, tenant_id, guard_id, installation_id, event_type, event_ts,
		       lat, lng, geofence_validated, distance_m, lateness_min,
		       evidence_photo_ref, verification_method, integrity_hash
		FROM clock_events
		WHERE tenant_id = $1 AND event_ts >= $2 AND event_ts < $3
		ORDER BY event_ts`

	rows, err := s.db.QueryContext(ctx, q, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list clock events: %w", err)
	}
	defer rows.Close()

	var out []*attendance.ClockEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan clock event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListAttendance(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]*attendance.DailyAttendance, error) {
	const q = `
		SELECT id, tenant_id, guard_id, installation_id, day, status,
		       check_in_at, check_out_at, entry_event_id, exit_event_id, updated_at
		FROM daily_attendance
		WHERE tenant_id = $1 AND day >= $2 AND day < $3
		ORDER BY day`

	rows, err := s.db.QueryContext(ctx, q, tenantID, attendance.DayOf(from), to)
	if err != nil {
		return nil, fmt.Errorf("list daily attendance: %w", err)
	}
	defer rows.Close()

	var out []*attendance.DailyAttendance
	for rows.Next() {
		var row attendance.DailyAttendance
		err := rows.Scan(
			&row.ID, &row.TenantID, &row.GuardID, &row.InstallationID, &row.Day, &row.Status,
			&row.CheckInAt, &row.CheckOutAt, &row.EntryEventID, &row.ExitEventID, &row.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan daily attendance: %w", err)
		}
		out = append(out, &row)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(r rowScanner) (*attendance.ClockEvent, error) {
	var ev attendance.ClockEvent
	var photoRef sql.NullString
	err := r.Scan(
		&ev.ID, &ev.TenantID, &ev.GuardID, &ev.InstallationID, &ev.Type, &ev.Timestamp,
		&ev.Lat, &ev.Lng, &ev.GeofenceValidated, &ev.DistanceMeters, &ev.LatenessMinutes,
		&photoRef, &ev.VerificationMethod, &ev.IntegrityHash,
	)
	if err != nil {
		return nil, err
	}
	ev.EvidencePhotoRef = photoRef.String
	return &ev, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
